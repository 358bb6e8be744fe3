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

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRejected PayoutStatus = "rejected"
)

// PayoutRequest reserves a set of ReferralEarning rows for payment. The
// reservation accounting lives on the earnings themselves
// (PayoutRequestID); this row is the clerical record of the request.
type PayoutRequest struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	TGID        int64        `json:"tg_id" gorm:"index"`
	AmountRUB   int64        `json:"amount_rub"`
	Status      PayoutStatus `json:"status" gorm:"default:pending"`
	Requisites  string       `json:"requisites"`
	Note        string       `json:"note"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_requests"
}

func CreatePayoutRequest(db *gorm.DB, r *PayoutRequest) error {
	return db.Create(r).Error
}

func FindPayoutRequest(db *gorm.DB, id uint) (PayoutRequest, bool) {
	var r PayoutRequest
	result := db.First(&r, id)
	return r, result.Error == nil
}

func ListReservedEarningsForPayout(db *gorm.DB, payoutRequestID uint) []ReferralEarning {
	var earnings []ReferralEarning
	db.Where("payout_request_id = ? AND status = ?", payoutRequestID, EarningStatusReserved).Find(&earnings)
	return earnings
}

func MarkPayoutRequestProcessed(db *gorm.DB, id uint, status PayoutStatus, processedAt time.Time) error {
	return db.Model(&PayoutRequest{}).Where("id = ?", id).Updates(map[string]any{
		"status":       status,
		"processed_at": processedAt,
	}).Error
}
