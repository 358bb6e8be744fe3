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

// Package arbiter keeps exactly one active device per Region-VPN user: the
// most recently connected device becomes the active one, the previous
// device keeps its client config but has its traffic blackholed until it
// reconnects and becomes the latest again.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/sbs-poc/accessbroker/internal/xray"
	"gorm.io/gorm"
)

// RegionVPN is the subset of *xray.Service the arbiter drives each tick.
type RegionVPN interface {
	TailAccessLog(ctx context.Context, n int) ([]string, error)
	ApplyRoutingUpdate(ctx context.Context, enabled map[int64]bool, activeIP map[int64]string) error
}

// TCShaper applies a best-effort per-user egress rate limit on the
// Region-VPN server. A failure here never blocks the routing switch it
// accompanies.
type TCShaper interface {
	ApplyTCLimit(ctx context.Context, tgID int64, ip string, rateMbit int) error
}

// DeviceChangeNotifier tells a user their previous device lost access
// because a new one just took over the single active slot.
type DeviceChangeNotifier interface {
	NotifyDeviceChanged(ctx context.Context, tgID int64, oldIP, newIP string) error
}

// Service runs the one-tick body of the session guard loop. It is driven by
// its own gocron tick job in internal/cmd, separate from internal/scheduler's
// jobs, rather than owning its own goroutine and sleep; that job takes the
// arbiter's advisory lock around each Tick and is stopped at shutdown.
type Service struct {
	db       *gorm.DB
	region   RegionVPN
	cfg      config.Arbiter
	clock    clock.Clock
	notifier DeviceChangeNotifier
	tc       TCShaper

	// seen holds, per tg_id, the timestamp of the most recent access-log
	// line already folded into state. The original implementation keyed
	// this off a single process-wide scalar; per-tg_id dedup means one
	// user's out-of-order log line can never cause a different user's
	// genuinely newer line to be skipped.
	seen *xsync.Map[int64, time.Time]
}

// New builds a Service. notifier and tc may be nil: device-changed
// notifications and tc shaping are both best-effort extras, never required
// for the arbiter to keep the one-active-device invariant.
func New(db *gorm.DB, region RegionVPN, cfg config.Arbiter, clk clock.Clock, notifier DeviceChangeNotifier, tc TCShaper) *Service {
	return &Service{
		db:       db,
		region:   region,
		cfg:      cfg,
		clock:    clk,
		notifier: notifier,
		tc:       tc,
		seen:     xsync.NewMap[int64, time.Time](),
	}
}

// latestEvent is one user's most recent access-log observation within a
// single tick.
type latestEvent struct {
	at time.Time
	ip string
}

// Tick tails the access log once, folds any new lines into per-user
// session state, and pushes a single batched routing update to the
// Region-VPN server for whichever users actually changed.
func (s *Service) Tick(ctx context.Context) error {
	lines, err := s.region.TailAccessLog(ctx, s.cfg.AccessLogTailLines)
	if err != nil {
		return fmt.Errorf("arbiter: tailing access log: %w", err)
	}

	latest := s.foldEvents(lines)
	if len(latest) == 0 {
		return nil
	}

	tgIDs := make([]int64, 0, len(latest))
	for tgID := range latest {
		tgIDs = append(tgIDs, tgID)
	}
	activeIDs := activeSubset(s.db, tgIDs)

	enabledMap := make(map[int64]bool, len(latest))
	switches := make(map[int64]string)
	type notification struct {
		tgID         int64
		oldIP, newIP string
	}
	var notifications []notification

	for tgID, ev := range latest {
		row, exists := models.FindRegionSession(s.db, tgID)
		oldIP := ""
		if exists {
			oldIP = row.ActiveIP
		}

		if !activeIDs[tgID] {
			enabledMap[tgID] = false
			if err := models.TouchLastSeen(s.db, tgID, ev.at); err != nil {
				slog.Error("arbiter: touching last-seen for inactive user", "tg_id", tgID, "error", err)
			}
			continue
		}

		enabledMap[tgID] = true

		if oldIP == ev.ip {
			if err := models.TouchLastSeen(s.db, tgID, ev.at); err != nil {
				slog.Error("arbiter: touching last-seen", "tg_id", tgID, "error", err)
			}
			continue
		}

		if err := models.UpsertActiveIP(s.db, tgID, ev.ip, ev.at); err != nil {
			slog.Error("arbiter: upserting active ip", "tg_id", tgID, "error", err)
			continue
		}
		switches[tgID] = ev.ip
		if oldIP != "" {
			notifications = append(notifications, notification{tgID: tgID, oldIP: oldIP, newIP: ev.ip})
		}
	}

	if len(enabledMap) > 0 || len(switches) > 0 {
		applyEnabled, applyActiveIP := enabledMap, switches
		if len(applyEnabled) == 0 {
			applyEnabled = nil
		}
		if len(applyActiveIP) == 0 {
			applyActiveIP = nil
		}
		if err := s.region.ApplyRoutingUpdate(ctx, applyEnabled, applyActiveIP); err != nil {
			return fmt.Errorf("arbiter: applying routing update: %w", err)
		}
	}

	if len(switches) > 0 {
		s.applyTCShaping(ctx, switches)
	}

	for _, n := range notifications {
		s.notifyDeviceChanged(ctx, n.tgID, n.oldIP, n.newIP)
	}

	return nil
}

// foldEvents parses every tailed line, drops any line already folded into
// state for its tg_id (by this process's per-tg_id high-water mark), and
// keeps only the most recent line per tg_id within this batch.
func (s *Service) foldEvents(lines []string) map[int64]latestEvent {
	latest := make(map[int64]latestEvent)
	for _, line := range lines {
		event, ok := xray.ParseAccessLine(line)
		if !ok {
			continue
		}
		if last, ok := s.seen.Load(event.TGID); ok && !event.Time.After(last) {
			continue
		}
		if cur, ok := latest[event.TGID]; !ok || event.Time.After(cur.at) {
			latest[event.TGID] = latestEvent{at: event.Time, ip: event.IP}
		}
	}
	for tgID, ev := range latest {
		s.seen.Store(tgID, ev.at)
	}
	return latest
}

// applyTCShaping runs the optional per-user egress limit for each switched
// IP. Failures are logged and otherwise ignored: routing policy is already
// correct regardless of whether shaping succeeds.
func (s *Service) applyTCShaping(ctx context.Context, switches map[int64]string) {
	if !s.cfg.TCShapingEnabled || s.tc == nil {
		return
	}
	for tgID, ip := range switches {
		if err := s.tc.ApplyTCLimit(ctx, tgID, ip, s.cfg.TCRateMbit); err != nil {
			slog.Error("arbiter: applying tc limit", "tg_id", tgID, "ip", ip, "error", err)
		}
	}
}

func (s *Service) notifyDeviceChanged(ctx context.Context, tgID int64, oldIP, newIP string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyDeviceChanged(ctx, tgID, oldIP, newIP); err != nil {
		slog.Error("arbiter: notifying device change", "tg_id", tgID, "error", err)
	}
}

// activeSubset returns the set of tgIDs, out of candidates, with a
// currently-active subscription.
func activeSubset(db *gorm.DB, candidates []int64) map[int64]bool {
	active := make(map[int64]bool, len(candidates))
	for _, sub := range models.ListActive(db) {
		active[sub.TGID] = true
	}
	result := make(map[int64]bool, len(candidates))
	for _, tgID := range candidates {
		result[tgID] = active[tgID]
	}
	return result
}
