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

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Subscription is one row per User (TGID is both primary key and foreign
// key). IsActive is a materialized view of "EndAt > now"; the scheduler's
// expiry sweep flips it to false once EndAt passes, and ResetSubscription
// clears it on an administrator reset.
type Subscription struct {
	TGID     int64              `json:"tg_id" gorm:"primaryKey;autoIncrement:false"`
	StartAt  time.Time          `json:"start_at"`
	EndAt    time.Time          `json:"end_at"`
	IsActive bool               `json:"is_active"`
	Status   SubscriptionStatus `json:"status" gorm:"default:active"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func FindSubscriptionByUser(db *gorm.DB, tgID int64) (Subscription, bool) {
	var sub Subscription
	result := db.Where("tg_id = ?", tgID).Limit(1).Find(&sub)
	return sub, result.RowsAffected > 0
}

// ListExpiring returns active subscriptions whose EndAt has already passed,
// the working set for the scheduler's expiry sweep.
func ListExpiring(db *gorm.DB, now time.Time) []Subscription {
	var subs []Subscription
	db.Where("is_active = ? AND end_at <= ?", true, now).Order("tg_id asc").Find(&subs)
	return subs
}

// ListActive returns every currently-active subscription, the working set
// the session arbiter partitions access-log events against.
func ListActive(db *gorm.DB) []Subscription {
	var subs []Subscription
	db.Where("is_active = ?", true).Find(&subs)
	return subs
}

// ListInactiveBefore returns subscriptions that have been inactive since
// before cutoff, the scheduler's working set for pruning Region-VPN
// clients whose 24-hour reconnect grace period has elapsed.
func ListInactiveBefore(db *gorm.DB, cutoff time.Time) []Subscription {
	var subs []Subscription
	db.Where("is_active = ? AND end_at < ?", false, cutoff).Find(&subs)
	return subs
}

// Extend pushes EndAt forward by months whole calendar months from
// max(now, current EndAt), matching the payment-extension invariant: a
// zero-month extend never shortens the window.
func (s *Subscription) Extend(now time.Time, months int) {
	base := s.EndAt
	if now.After(base) {
		base = now
	}
	s.EndAt = base.AddDate(0, months, 0)
	s.StartAt = now
	s.IsActive = true
	s.Status = SubscriptionStatusActive
}

func UpsertSubscription(db *gorm.DB, sub *Subscription) error {
	return db.Save(sub).Error
}

// ExpireSubscription flips a subscription to the expired state in place;
// callers are responsible for the accompanying peer revocations and
// notifications within the same tick.
func ExpireSubscription(db *gorm.DB, tgID int64) error {
	return db.Model(&Subscription{}).Where("tg_id = ?", tgID).Updates(map[string]any{
		"is_active": false,
		"status":    SubscriptionStatusExpired,
	}).Error
}

// ResetSubscription hard-clears a subscription window for the admin
// reset-user operation: unlike ExpireSubscription (which only flips the
// active flag for a subscription that ran its course), this also nulls
// the start/end timestamps so the user shows no prior window at all.
func ResetSubscription(db *gorm.DB, tgID int64) error {
	var zero time.Time
	return db.Model(&Subscription{}).Where("tg_id = ?", tgID).Updates(map[string]any{
		"start_at":  zero,
		"end_at":    zero,
		"is_active": false,
		"status":    SubscriptionStatusExpired,
	}).Error
}
