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

package referral

import (
	"errors"
	"fmt"

	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// ErrInsufficientBalance is returned by RequestPayout when the user's
// available earnings don't cover the requested amount.
var ErrInsufficientBalance = errors.New("referral: insufficient available balance")

// ErrBelowMinimumPayout is returned by RequestPayout when the requested
// amount is under the configured per-request minimum.
var ErrBelowMinimumPayout = errors.New("referral: amount below minimum payout")

// RequestPayout greedily reserves available earnings for tgID in
// id-ascending order until amountRUB is covered, splitting the last line
// into a reserved part and a residual available part if it overshoots, and
// persists a new PayoutRequest row referencing the reserved earnings.
func (s *Service) RequestPayout(tgID int64, amountRUB int64, requisites, note string) (models.PayoutRequest, error) {
	if s.cfg.MinPayoutMinor > 0 && amountRUB < s.cfg.MinPayoutMinor {
		return models.PayoutRequest{}, ErrBelowMinimumPayout
	}

	var payout models.PayoutRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		earnings := models.ListAvailableEarningsForUser(tx, tgID)

		payout = models.PayoutRequest{
			TGID:       tgID,
			AmountRUB:  amountRUB,
			Status:     models.PayoutStatusPending,
			Requisites: requisites,
			Note:       note,
			CreatedAt:  s.clock.Now(),
		}
		if err := models.CreatePayoutRequest(tx, &payout); err != nil {
			return fmt.Errorf("referral: creating payout request: %w", err)
		}

		remaining := amountRUB
		for i := range earnings {
			if remaining <= 0 {
				break
			}
			e := &earnings[i]

			if e.EarnedRUB <= remaining {
				remaining -= e.EarnedRUB
				e.Status = models.EarningStatusReserved
				e.PayoutRequestID = &payout.ID
				if err := models.SaveEarning(tx, e); err != nil {
					return fmt.Errorf("referral: reserving earning %d: %w", e.ID, err)
				}
				continue
			}

			// Split: the reserved portion covers the remainder exactly,
			// the residual stays available as a fresh row.
			residual := models.ReferralEarning{
				ReferrerTGID:     e.ReferrerTGID,
				ReferredTGID:     e.ReferredTGID,
				PaymentID:        nil,
				PaymentAmountRUB: e.PaymentAmountRUB,
				Percent:          e.Percent,
				EarnedRUB:        e.EarnedRUB - remaining,
				Status:           models.EarningStatusAvailable,
				AvailableAt:      e.AvailableAt,
				CreatedAt:        s.clock.Now(),
			}
			if err := models.CreateEarning(tx, &residual); err != nil {
				return fmt.Errorf("referral: splitting residual earning: %w", err)
			}

			e.EarnedRUB = remaining
			e.Status = models.EarningStatusReserved
			e.PayoutRequestID = &payout.ID
			if err := models.SaveEarning(tx, e); err != nil {
				return fmt.Errorf("referral: reserving split earning %d: %w", e.ID, err)
			}
			remaining = 0
		}

		if remaining > 0 {
			return ErrInsufficientBalance
		}
		return nil
	})
	if err != nil {
		return models.PayoutRequest{}, err
	}
	return payout, nil
}

// MarkPaid flips every earning reserved against payoutRequestID to paid.
func (s *Service) MarkPaid(payoutRequestID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		earnings := models.ListReservedEarningsForPayout(tx, payoutRequestID)
		for i := range earnings {
			earnings[i].Status = models.EarningStatusPaid
			earnings[i].PaidAt = &now
			if err := models.SaveEarning(tx, &earnings[i]); err != nil {
				return fmt.Errorf("referral: marking earning %d paid: %w", earnings[i].ID, err)
			}
		}
		return models.MarkPayoutRequestProcessed(tx, payoutRequestID, models.PayoutStatusPaid, now)
	})
}

// Reject flips every earning reserved against payoutRequestID back to
// available and clears its payout linkage.
func (s *Service) Reject(payoutRequestID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		earnings := models.ListReservedEarningsForPayout(tx, payoutRequestID)
		for i := range earnings {
			earnings[i].Status = models.EarningStatusAvailable
			earnings[i].PayoutRequestID = nil
			if err := models.SaveEarning(tx, &earnings[i]); err != nil {
				return fmt.Errorf("referral: releasing earning %d: %w", earnings[i].ID, err)
			}
		}
		return models.MarkPayoutRequestProcessed(tx, payoutRequestID, models.PayoutStatusRejected, s.clock.Now())
	})
}
