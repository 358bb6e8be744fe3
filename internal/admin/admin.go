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

// Package admin implements the two operator actions the HTTP admin surface
// exposes directly: a full reset of a user's entitlements and state, and
// forgiving an abuse-flagged Yandex membership without touching anything
// else about the user.
package admin

import (
	"context"
	"fmt"

	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/sbs-poc/accessbroker/internal/wireguard"
	"github.com/sbs-poc/accessbroker/internal/xray"
	"gorm.io/gorm"
)

const resetReason = "admin_reset"

// Service orchestrates the reset/forgive operations across every
// subsystem that holds state for a user.
type Service struct {
	db        *gorm.DB
	wireguard *wireguard.Service
	xray      *xray.Service
	clock     clock.Clock
}

func New(db *gorm.DB, wg *wireguard.Service, x *xray.Service, clk clock.Clock) *Service {
	return &Service{db: db, wireguard: wg, xray: x, clock: clk}
}

// ResetUser wipes a user's subscription window, revokes both entitlements,
// drops their region-VPN session and Yandex membership rows, and clears
// their flow-resumption state. Payments and revoked-peer history are left
// in place for audit, per the underlying models' own retention contract.
func (s *Service) ResetUser(ctx context.Context, tgID int64) error {
	if err := s.wireguard.RevokePeers(ctx, tgID, resetReason); err != nil {
		return fmt.Errorf("admin: revoking wireguard peers: %w", err)
	}
	if _, err := s.xray.RevokeClient(ctx, tgID); err != nil {
		return fmt.Errorf("admin: revoking xray client: %w", err)
	}
	if err := models.DeleteRegionSession(s.db, tgID); err != nil {
		return fmt.Errorf("admin: clearing region session: %w", err)
	}
	if err := models.DeleteYandexMembership(s.db, tgID); err != nil {
		return fmt.Errorf("admin: clearing yandex membership: %w", err)
	}
	if err := models.ResetSubscription(s.db, tgID); err != nil {
		return fmt.Errorf("admin: resetting subscription: %w", err)
	}
	if err := models.ResetUser(s.db, tgID); err != nil {
		return fmt.Errorf("admin: resetting user flow state: %w", err)
	}
	return nil
}

// ForgiveUser lifts a Yandex membership's removed/notified flags without
// touching the user's subscription, payments, or VPN entitlements. It
// reports false if the user has no membership row to forgive.
func (s *Service) ForgiveUser(tgID int64) (bool, error) {
	if _, exists := models.FindYandexMembership(s.db, tgID); !exists {
		return false, nil
	}
	if err := models.ForgiveYandexMembership(s.db, tgID); err != nil {
		return false, fmt.Errorf("admin: forgiving yandex membership: %w", err)
	}
	return true, nil
}
