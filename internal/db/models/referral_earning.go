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

package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusAvailable EarningStatus = "available"
	EarningStatusReserved  EarningStatus = "reserved"
	EarningStatusPaid      EarningStatus = "paid"
)

// ErrDuplicateEarning is returned by CreateEarning when a
// (payment_id, referrer_tg_id) row already exists, the referral ledger's
// idempotency guarantee against event replay.
var ErrDuplicateEarning = errors.New("referral: earning already recorded for this payment")

// ReferralEarning is immutable on creation; only Status/PayoutRequestID/
// PaidAt ever change, and only along the lifecycle
// pending -> available -> reserved -> paid (or reserved -> available on a
// rejected payout).
type ReferralEarning struct {
	ID               uint          `json:"id" gorm:"primaryKey"`
	ReferrerTGID     int64         `json:"referrer_tg_id" gorm:"index"`
	ReferredTGID     int64         `json:"referred_tg_id"`
	PaymentID        *uint         `json:"payment_id" gorm:"uniqueIndex:idx_payment_referrer"`
	PaymentAmountRUB int64         `json:"payment_amount_rub"`
	Percent          int           `json:"percent"`
	EarnedRUB        int64         `json:"earned_rub"`
	Status           EarningStatus `json:"status" gorm:"default:pending"`
	AvailableAt      time.Time     `json:"available_at"`
	PaidAt           *time.Time    `json:"paid_at"`
	PayoutRequestID  *uint         `json:"payout_request_id"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (ReferralEarning) TableName() string {
	return "referral_earnings"
}

// CreateEarning enforces the (payment_id, referrer_tg_id) idempotency
// invariant explicitly, ahead of the unique index, so callers get
// ErrDuplicateEarning instead of a raw constraint violation.
func CreateEarning(db *gorm.DB, e *ReferralEarning) error {
	if e.PaymentID != nil {
		var count int64
		db.Model(&ReferralEarning{}).Where("payment_id = ? AND referrer_tg_id = ?", *e.PaymentID, e.ReferrerTGID).Count(&count)
		if count > 0 {
			return ErrDuplicateEarning
		}
	}
	return db.Create(e).Error
}

// ReleaseDueEarnings flips every pending earning whose hold has elapsed to
// available, and returns how many rows were affected.
func ReleaseDueEarnings(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&ReferralEarning{}).
		Where("status = ? AND available_at <= ?", EarningStatusPending, now).
		Update("status", EarningStatusAvailable)
	return result.RowsAffected, result.Error
}

func ListAvailableEarningsForUser(db *gorm.DB, tgID int64) []ReferralEarning {
	var earnings []ReferralEarning
	db.Where("referrer_tg_id = ? AND status = ?", tgID, EarningStatusAvailable).Order("id asc").Find(&earnings)
	return earnings
}

func SumEarningsForUser(db *gorm.DB, tgID int64, statuses ...EarningStatus) int64 {
	var total int64
	query := db.Model(&ReferralEarning{}).Where("referrer_tg_id = ?", tgID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	query.Select("COALESCE(SUM(earned_rub), 0)").Scan(&total)
	return total
}

func SaveEarning(db *gorm.DB, e *ReferralEarning) error {
	return db.Save(e).Error
}
