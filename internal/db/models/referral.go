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
	"time"

	"gorm.io/gorm"
)

type ReferralStatus string

const (
	ReferralStatusActive ReferralStatus = "active"
)

// Referral records that ReferredTGID was invited by ReferrerTGID. It is
// opened at most once per referred user, on their first successful
// payment.
type Referral struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ReferrerTGID   int64          `json:"referrer_tg_id" gorm:"index"`
	ReferredTGID   int64          `json:"referred_tg_id" gorm:"uniqueIndex"`
	Status         ReferralStatus `json:"status" gorm:"default:active"`
	FirstPaymentID uint           `json:"first_payment_id"`
	ActivatedAt    time.Time      `json:"activated_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

func FindReferralByReferred(db *gorm.DB, referredTGID int64) (Referral, bool) {
	var r Referral
	result := db.Where("referred_tg_id = ?", referredTGID).Limit(1).Find(&r)
	return r, result.RowsAffected > 0
}

func CreateReferral(db *gorm.DB, r *Referral) error {
	return db.Create(r).Error
}
