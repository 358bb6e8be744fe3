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

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ErrDuplicateProviderPaymentID is returned by CreatePayment when the
// provider-supplied external transaction id has already been recorded.
var ErrDuplicateProviderPaymentID = errors.New("payment: duplicate provider payment id")

// Payment is an append-only ledger row; nothing updates a Payment besides
// its Status/PaidAt transition from pending to a terminal state.
type Payment struct {
	ID                 uint          `json:"id" gorm:"primaryKey"`
	TGID               int64         `json:"tg_id" gorm:"index"`
	AmountMinor        int64         `json:"amount_minor"`
	Currency           string        `json:"currency"`
	Provider           string        `json:"provider"`
	Status             PaymentStatus `json:"status" gorm:"default:pending"`
	PaidAt             *time.Time    `json:"paid_at"`
	PeriodDays         int           `json:"period_days"`
	PeriodMonths       int           `json:"period_months"`
	ProviderPaymentID  string        `json:"provider_payment_id" gorm:"uniqueIndex"`
	CreatedAt          time.Time     `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// CreatePayment rejects a duplicate provider transaction id up front rather
// than relying solely on the unique index, so callers get a typed error
// instead of a raw driver constraint violation.
func CreatePayment(db *gorm.DB, p *Payment) error {
	if p.ProviderPaymentID != "" {
		var count int64
		db.Model(&Payment{}).Where("provider_payment_id = ?", p.ProviderPaymentID).Count(&count)
		if count > 0 {
			return ErrDuplicateProviderPaymentID
		}
	}
	return db.Create(p).Error
}

func MarkPaymentPaid(db *gorm.DB, id uint, paidAt time.Time) error {
	return db.Model(&Payment{}).Where("id = ?", id).Updates(map[string]any{
		"status":  PaymentStatusPaid,
		"paid_at": paidAt,
	}).Error
}

func FindPaymentByProviderID(db *gorm.DB, providerPaymentID string) (Payment, bool) {
	var p Payment
	result := db.Where("provider_payment_id = ?", providerPaymentID).Limit(1).Find(&p)
	return p, result.RowsAffected > 0
}

func ListPaymentsForUser(db *gorm.DB, tgID int64) []Payment {
	var payments []Payment
	db.Where("tg_id = ?", tgID).Order("id asc").Find(&payments)
	return payments
}
