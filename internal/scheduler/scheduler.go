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

// Package scheduler runs the cooperative, single-replica background jobs
// that drive subscription expiry, Region-VPN pruning, Yandex membership
// rotation, coverage reminders, referral-earning release, and the daily
// admin kick report — all six, in order, behind one advisory-lock
// acquisition per tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// WireGuardRevoker is the subset of *wireguard.Service the expiry job needs.
type WireGuardRevoker interface {
	RevokePeers(ctx context.Context, tgID int64, reason string) error
}

// RegionVPN is the subset of *xray.Service the expiry/prune jobs need.
type RegionVPN interface {
	ApplyEnabledMap(ctx context.Context, enabled map[int64]bool) error
	RevokeClient(ctx context.Context, tgID int64) (bool, error)
}

// ReferralReleaser is the subset of *referral.Service the scheduler drives.
type ReferralReleaser interface {
	ReleaseDue(now time.Time) (int64, error)
}

// Notifier is the subset of *notify.Dispatcher the scheduler drives.
type Notifier interface {
	SubscriptionExpired(ctx context.Context, tgID int64) error
	RunReminders(ctx context.Context, now time.Time) error
	RunDailyKickReport(ctx context.Context, now time.Time, force bool) error
}

const expiredClientGracePeriod = 24 * time.Hour

// Service owns the gocron-driven tick loop.
type Service struct {
	db                    *gorm.DB
	cfg                   config.Scheduler
	clock                 clock.Clock
	wireguard             WireGuardRevoker
	region                RegionVPN
	referral              ReferralReleaser
	notifier              Notifier
	yandexRotationEnabled bool

	gocron gocron.Scheduler
}

// New builds a Service. region, referral, and notifier may be nil: a
// deployment without Region-VPN/referrals/outbound notifications configured
// simply skips the corresponding jobs.
func New(gdb *gorm.DB, cfg config.Scheduler, clk clock.Clock, wg WireGuardRevoker, region RegionVPN, referralSvc ReferralReleaser, notifier Notifier, yandexRotationEnabled bool) (*Service, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}
	return &Service{
		db:                    gdb,
		cfg:                   cfg,
		clock:                 clk,
		wireguard:             wg,
		region:                region,
		referral:              referralSvc,
		notifier:              notifier,
		yandexRotationEnabled: yandexRotationEnabled,
		gocron:                sched,
	}, nil
}

// Start schedules the tick job at the configured interval and starts the
// underlying gocron scheduler.
func (s *Service) Start() error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(time.Duration(s.cfg.TickInterval)*time.Second),
		gocron.NewTask(func() {
			if err := s.Tick(context.Background()); err != nil {
				slog.Error("scheduler: tick failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("scheduler: scheduling tick job: %w", err)
	}
	s.gocron.Start()
	return nil
}

// Stop drains the gocron scheduler.
func (s *Service) Stop() error {
	return s.gocron.Shutdown()
}

// Tick runs one pass of all six jobs, guarded by a single advisory-lock
// acquisition so only one replica does the work on a given tick. Each job's
// own failure is logged and does not prevent the remaining jobs from
// running, matching the original's per-job try/except isolation.
func (s *Service) Tick(ctx context.Context) error {
	locked, err := db.TryAdvisoryLock(s.db, s.cfg.AdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("scheduler: acquiring advisory lock: %w", err)
	}
	if !locked {
		return nil
	}
	defer func() {
		if err := db.AdvisoryUnlock(s.db, s.cfg.AdvisoryLockKey); err != nil {
			slog.Error("scheduler: releasing advisory lock", "error", err)
		}
	}()

	now := s.clock.Now()

	if err := s.expireSubscriptions(ctx, now); err != nil {
		slog.Error("scheduler: expire subscriptions job failed", "error", err)
	}
	if err := s.pruneRegionVPNClients(ctx, now); err != nil {
		slog.Error("scheduler: prune region-vpn clients job failed", "error", err)
	}
	if s.yandexRotationEnabled {
		if err := s.rotateYandexMemberships(now); err != nil {
			slog.Error("scheduler: rotate yandex memberships job failed", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.RunReminders(ctx, now); err != nil {
			slog.Error("scheduler: coverage reminders job failed", "error", err)
		}
	}
	if s.referral != nil {
		if _, err := s.referral.ReleaseDue(now); err != nil {
			slog.Error("scheduler: releasing due referral earnings failed", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.RunDailyKickReport(ctx, now, false); err != nil {
			slog.Error("scheduler: daily kick report job failed", "error", err)
		}
	}

	return nil
}

// expireSubscriptions flips every subscription whose window has passed to
// expired, revokes both entitlements, and notifies the user. WireGuard
// revocation happens per user immediately (it is already per-user); the
// Region-VPN disable is batched into a single ApplyEnabledMap call for
// every user expired this tick.
func (s *Service) expireSubscriptions(ctx context.Context, now time.Time) error {
	expiring := models.ListExpiring(s.db, now)
	if len(expiring) == 0 {
		return nil
	}

	disabled := make(map[int64]bool, len(expiring))
	for _, sub := range expiring {
		if err := models.ExpireSubscription(s.db, sub.TGID); err != nil {
			slog.Error("scheduler: expiring subscription", "tg_id", sub.TGID, "error", err)
			continue
		}
		if s.wireguard != nil {
			if err := s.wireguard.RevokePeers(ctx, sub.TGID, "subscription_expired"); err != nil {
				slog.Error("scheduler: revoking wireguard peers on expiry", "tg_id", sub.TGID, "error", err)
			}
		}
		if s.notifier != nil {
			if err := s.notifier.SubscriptionExpired(ctx, sub.TGID); err != nil {
				slog.Error("scheduler: notifying subscription expiry", "tg_id", sub.TGID, "error", err)
			}
		}
		disabled[sub.TGID] = false
	}

	if s.region != nil && len(disabled) > 0 {
		if err := s.region.ApplyEnabledMap(ctx, disabled); err != nil {
			return fmt.Errorf("scheduler: disabling region-vpn for expired users: %w", err)
		}
	}
	return nil
}

// pruneRegionVPNClients drops the Xray client entry and local session row
// for users whose subscription has been inactive for more than the
// reconnect grace period, freeing server state while still honoring the
// 24-hour window a user has to renew on the same config.
func (s *Service) pruneRegionVPNClients(ctx context.Context, now time.Time) error {
	if s.region == nil {
		return nil
	}
	cutoff := now.Add(-expiredClientGracePeriod)
	for _, sub := range models.ListInactiveBefore(s.db, cutoff) {
		if _, err := s.region.RevokeClient(ctx, sub.TGID); err != nil {
			slog.Error("scheduler: revoking region-vpn client", "tg_id", sub.TGID, "error", err)
		}
		if err := models.DeleteRegionSession(s.db, sub.TGID); err != nil {
			slog.Error("scheduler: deleting region session", "tg_id", sub.TGID, "error", err)
		}
	}
	return nil
}

// rotateYandexMemberships flags every membership whose frozen coverage
// window ended while the owning subscription is still active: the external
// Yandex collaborator is expected to watch removed_at and actually issue a
// new invite, this core's only job is to record that the rotation is due.
func (s *Service) rotateYandexMemberships(now time.Time) error {
	for _, m := range models.ListKickCandidates(s.db, now) {
		if err := models.MarkRemoved(s.db, m.TGID, now); err != nil {
			slog.Error("scheduler: marking yandex membership removed", "tg_id", m.TGID, "error", err)
		}
	}
	return nil
}
