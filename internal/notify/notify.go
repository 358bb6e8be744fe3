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

// Package notify decides when a boundary-triggered message needs to go out
// (device-changed, subscription-expired, coverage reminders, the daily
// admin kick report) and hands the text to a Sender. Actual delivery (the
// chat-bot surface) is out of scope for this repo and lives behind the
// narrow Sender interface, satisfied by a stub in tests and by whatever
// front-end process owns outbound messaging in production.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// Sender delivers a single text message to a user or the admin owner.
type Sender interface {
	Send(ctx context.Context, tgID int64, text string) error
}

const kickReportJobStateKey = "daily_kick_report_last_date"

// Dispatcher owns the decide-to-notify logic for every boundary event the
// scheduler and session arbiter raise.
type Dispatcher struct {
	db      *gorm.DB
	sender  Sender
	clock   clock.Clock
	windows []int
	ownerID int64
	reportN int
}

// New builds a Dispatcher. windowDays is the set of day-counts before
// coverage end that trigger a reminder (spec default: 7, 3, 1); ownerChatID
// receives the daily kick report; reportLimit caps how many rows the kick
// report query returns in one pass.
func New(db *gorm.DB, sender Sender, clk clock.Clock, windowDays []int, ownerChatID int64, reportLimit int) *Dispatcher {
	return &Dispatcher{db: db, sender: sender, clock: clk, windows: windowDays, ownerID: ownerChatID, reportN: reportLimit}
}

// DeviceChanged implements the session arbiter's DeviceChangeNotifier
// contract: tells a user their previous device lost the single active
// Region-VPN slot to a newer one.
func (d *Dispatcher) DeviceChanged(ctx context.Context, tgID int64, oldIP, newIP string) error {
	text := fmt.Sprintf(
		"A new device just became the active Region-VPN session.\n"+
			"Previously active: %s\nNow active: %s\n\n"+
			"Only one device may use Region-VPN at a time; reconnect on the "+
			"previous device to take the slot back.",
		oldIP, newIP,
	)
	return d.sender.Send(ctx, tgID, text)
}

// NotifyDeviceChanged satisfies internal/arbiter's DeviceChangeNotifier
// interface by forwarding to DeviceChanged.
func (d *Dispatcher) NotifyDeviceChanged(ctx context.Context, tgID int64, oldIP, newIP string) error {
	return d.DeviceChanged(ctx, tgID, oldIP, newIP)
}

// SubscriptionExpired tells a user their subscription has ended and both
// entitlements have been disabled.
func (d *Dispatcher) SubscriptionExpired(ctx context.Context, tgID int64) error {
	return d.sender.Send(ctx, tgID,
		"Your subscription has expired. VPN access has been disabled and "+
			"your Yandex family membership will be rotated out.")
}

// RunReminders evaluates every coverage-tracked membership against the
// configured day windows and sends each boundary message at most once,
// dedup'd via the Notified{7,3,1}dAt columns. A membership whose
// subscription has already been extended past its frozen coverage window
// ("renewed") only ever gets the 1-day "new invite" notice, never the 7/3
// day reminders, matching the coverage-aware renewal rule.
func (d *Dispatcher) RunReminders(ctx context.Context, now time.Time) error {
	for _, m := range models.ListReminderCandidates(d.db) {
		sub, exists := models.FindSubscriptionByUser(d.db, m.TGID)
		if !exists || !sub.IsActive || !sub.EndAt.After(now) {
			continue
		}

		remaining := clock.DaysUntil(now, *m.CoverageEndAt)
		renewed := sub.EndAt.After(*m.CoverageEndAt)

		for _, windowDays := range d.windows {
			column, alreadySent, text := d.windowPlan(&m, windowDays, renewed)
			if column == "" {
				continue
			}
			if err := d.maybeSendWindow(ctx, &m, remaining, windowDays, renewed, alreadySent, column, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// windowPlan resolves the dedup column and message text for one configured
// reminder window; only the three day-counts the schema has a dedup column
// for (7, 3, 1) are honored, matching the coverage reminder's only defined
// boundaries.
func (d *Dispatcher) windowPlan(m *models.YandexMembership, windowDays int, renewed bool) (column string, alreadySent *time.Time, text string) {
	switch windowDays {
	case 7:
		return "notified_7d_at", m.Notified7dAt, "Your Yandex Plus coverage ends in 7 days."
	case 3:
		return "notified_3d_at", m.Notified3dAt, "Your Yandex Plus coverage ends in 3 days."
	case 1:
		return "notified_1d_at", m.Notified1dAt, d.oneDayMessage(renewed)
	default:
		return "", nil, ""
	}
}

func (d *Dispatcher) oneDayMessage(renewed bool) string {
	if renewed {
		return "A new Yandex Plus family invite will be issued tomorrow."
	}
	return "Your Yandex Plus coverage ends tomorrow."
}

// maybeSendWindow sends the window-day message when remaining equals
// windowDays and alreadySent is nil, skipping 7/3-day windows entirely when
// renewed is true.
func (d *Dispatcher) maybeSendWindow(ctx context.Context, m *models.YandexMembership, remaining, windowDays int, renewed bool, alreadySent *time.Time, column, text string) error {
	if windowDays != 1 && renewed {
		return nil
	}
	if remaining != windowDays || alreadySent != nil {
		return nil
	}
	if err := d.sender.Send(ctx, m.TGID, text); err != nil {
		return fmt.Errorf("notify: sending %d-day reminder to %d: %w", windowDays, m.TGID, err)
	}
	return models.SetReminderSent(d.db, m.TGID, column, d.clock.Now())
}

// RunDailyKickReport sends the admin an enumeration of users whose
// subscription has ended but whose Yandex membership is not yet flagged
// removed. Per the 12:00-Amsterdam boundary rule, it fires at most once per
// calendar day: any tick from 12:00 through 23:59 local time sends if no
// report is recorded yet for today, then records it — so a missed exact
// tick at noon (scheduler jitter, downtime) still catches up later the same
// day instead of silently skipping it.
//
// force bypasses both the hour check and the job-state dedup: an operator
// asking for the report right now gets it right now, and the bypassed send
// is not recorded, so the regular noon-triggered run still fires on
// schedule afterward.
func (d *Dispatcher) RunDailyKickReport(ctx context.Context, now time.Time, force bool) error {
	amsterdamNow := clock.InAmsterdam(now)
	if !force && amsterdamNow.Hour() < 12 {
		return nil
	}

	today := amsterdamNow.Format("2006-01-02")
	if !force {
		if last, ok := models.GetJobState(d.db, kickReportJobStateKey); ok && last == today {
			return nil
		}
	}

	text := d.buildKickReportText(now)
	if err := d.sender.Send(ctx, d.ownerID, text); err != nil {
		return fmt.Errorf("notify: sending daily kick report: %w", err)
	}
	if force {
		return nil
	}
	return models.SetJobState(d.db, kickReportJobStateKey, today, d.clock.Now())
}

func (d *Dispatcher) buildKickReportText(now time.Time) string {
	rows := models.ListKickReportCandidates(d.db, now, d.reportN)
	if len(rows) == 0 {
		return "No members due for removal today."
	}

	text := "Members due for removal today:\n\n"
	for i, row := range rows {
		text += "#" + strconv.Itoa(i+1) +
			" tg_id=" + strconv.FormatInt(row.TGID, 10) +
			" subscription_end=" + row.EndAt.Format("2006-01-02 15:04") + "\n"
	}
	return text
}
