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

// Package referral is the tiered commission ledger: it opens a referral
// record on a payer's first successful payment, credits the inviter an
// earning on every payment event, and reserves/settles payouts against the
// accumulated available balance.
package referral

import (
	"fmt"
	"time"

	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// Service credits and settles referral earnings against one database.
type Service struct {
	db    *gorm.DB
	cfg   config.Referral
	clock clock.Clock
}

func New(db *gorm.DB, cfg config.Referral, clk clock.Clock) *Service {
	return &Service{db: db, cfg: cfg, clock: clk}
}

// commissionPercent chooses the commission tier for a referrer with
// activeReferrals currently-active referred users: {1-3 -> 5%, 4-9 -> 11%,
// 10+ -> 17%}. The zero case also resolves to 5% rather than 0 so the
// cabinet UI never shows a 0% rate; OnPaymentSuccess always calls this
// after opening the referral row being credited, so activeReferrals is
// never actually 0 in practice.
func commissionPercent(activeReferrals int) int {
	switch {
	case activeReferrals >= 10:
		return 17
	case activeReferrals >= 4:
		return 11
	default:
		return 5
	}
}

// OnPaymentSuccess opens a referral row for payer if one doesn't already
// exist and the payer has a known inviter, then credits the inviter a
// pending earning with the hold-adjusted availability date (with HoldDays
// of zero or less the earning is created available at the paid time). It
// is a no-op (not an error) when the payer has no inviter.
func (s *Service) OnPaymentSuccess(payment models.Payment) error {
	payer := models.FindUserByID(s.db, payment.TGID)
	if payer.ReferredByTGID == nil {
		return nil
	}
	referrerTGID := *payer.ReferredByTGID

	if _, exists := models.FindReferralByReferred(s.db, payment.TGID); !exists {
		ref := models.Referral{
			ReferrerTGID:   referrerTGID,
			ReferredTGID:   payment.TGID,
			Status:         models.ReferralStatusActive,
			FirstPaymentID: payment.ID,
			ActivatedAt:    s.clock.Now(),
		}
		if err := models.CreateReferral(s.db, &ref); err != nil {
			return fmt.Errorf("referral: opening referral row: %w", err)
		}
	}

	activeReferrals := models.CountActiveReferralsFor(s.db, referrerTGID)
	percent := commissionPercent(activeReferrals)

	paidAt := s.clock.Now()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}

	status := models.EarningStatusPending
	availableAt := paidAt.AddDate(0, 0, s.cfg.HoldDays)
	if s.cfg.HoldDays <= 0 {
		status = models.EarningStatusAvailable
		availableAt = paidAt
	}

	earned := roundCommission(payment.AmountMinor, percent)
	paymentID := payment.ID
	earning := models.ReferralEarning{
		ReferrerTGID:     referrerTGID,
		ReferredTGID:     payment.TGID,
		PaymentID:        &paymentID,
		PaymentAmountRUB: payment.AmountMinor,
		Percent:          percent,
		EarnedRUB:        earned,
		Status:           status,
		AvailableAt:      availableAt,
		CreatedAt:        s.clock.Now(),
	}
	if err := models.CreateEarning(s.db, &earning); err != nil {
		return fmt.Errorf("referral: crediting earning: %w", err)
	}
	return nil
}

// roundCommission computes round(amount * percent / 100) using
// round-half-away-from-zero on integer minor units, matching the spec's
// plain "round" over non-negative amounts.
func roundCommission(amountMinor int64, percent int) int64 {
	return (amountMinor*int64(percent) + 50) / 100
}

// ReleaseDue flips pending earnings whose hold has elapsed to available,
// the scheduler's job 5.
func (s *Service) ReleaseDue(now time.Time) (int64, error) {
	return models.ReleaseDueEarnings(s.db, now)
}
