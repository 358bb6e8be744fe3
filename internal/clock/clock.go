// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package clock provides the single abstraction for "now" used throughout
// the scheduler, arbiter, and notification packages so tests can inject a
// fake clock instead of sleeping on wall time.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is re-exported so callers only ever import this package, never
// clockwork directly.
type Clock = clockwork.Clock

// New returns the real, wall-clock Clock used in production.
func New() Clock {
	return clockwork.NewRealClock()
}

// NewFake returns a controllable clock for tests.
func NewFake() clockwork.FakeClock {
	return clockwork.NewFakeClock()
}

// amsterdam is loaded once; the scheduler and notification jobs reason about
// day boundaries in Europe/Amsterdam local time per spec.
var amsterdam = mustLoadLocation("Europe/Amsterdam")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// A missing tzdata is a deployment defect, not a recoverable error;
		// every code path that reasons about calendar-day boundaries would
		// silently misbehave otherwise.
		panic("clock: failed to load " + name + " timezone: " + err.Error())
	}
	return loc
}

// AmsterdamNow returns now, converted to Europe/Amsterdam local time.
func AmsterdamNow(c Clock) time.Time {
	return InAmsterdam(c.Now())
}

// InAmsterdam converts an arbitrary instant to Europe/Amsterdam local time,
// for callers reasoning about a specific timestamp rather than "now".
func InAmsterdam(t time.Time) time.Time {
	return t.In(amsterdam)
}

// DaysUntil returns the number of whole calendar days remaining until
// deadline, as seen from now, rounded up and floored at zero. Mirrors
// the original's `_days_until`: ceil-to-day, never negative.
func DaysUntil(now, deadline time.Time) int {
	if !deadline.After(now) {
		return 0
	}
	d := deadline.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
