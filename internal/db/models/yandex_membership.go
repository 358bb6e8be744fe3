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

// YandexMembership is the core's narrow view onto the Yandex family
// subsystem, which the core treats as an external collaborator: a
// screen-scraper owns account/invite-slot lifecycle and only publishes a
// coverage window and the core's own notification-dedup flags back here.
type YandexMembership struct {
	TGID          int64      `json:"tg_id" gorm:"primaryKey;autoIncrement:false"`
	CoverageEndAt *time.Time `json:"coverage_end_at"`
	RemovedAt     *time.Time `json:"removed_at"`
	Notified7dAt  *time.Time `json:"notified_7d_at"`
	Notified3dAt  *time.Time `json:"notified_3d_at"`
	Notified1dAt  *time.Time `json:"notified_1d_at"`
}

func (YandexMembership) TableName() string {
	return "yandex_memberships"
}

// DeleteYandexMembership drops tgID's membership row entirely, the admin
// reset-user operation's full wipe (as opposed to MarkRemoved, which keeps
// the row as an audit trail of a coverage-ended rotation).
func DeleteYandexMembership(db *gorm.DB, tgID int64) error {
	return db.Where("tg_id = ?", tgID).Delete(&YandexMembership{}).Error
}

// ForgiveYandexMembership clears the removed flag and every notification
// dedup flag so the membership once again reads as freshly covered,
// the admin forgive-abuse operation's narrow-view analogue of lifting an
// external suspension.
func ForgiveYandexMembership(db *gorm.DB, tgID int64) error {
	return db.Model(&YandexMembership{}).Where("tg_id = ?", tgID).Updates(map[string]any{
		"removed_at":     nil,
		"notified_7d_at": nil,
		"notified_3d_at": nil,
		"notified_1d_at": nil,
	}).Error
}

func FindYandexMembership(db *gorm.DB, tgID int64) (YandexMembership, bool) {
	var m YandexMembership
	result := db.Where("tg_id = ?", tgID).Limit(1).Find(&m)
	return m, result.RowsAffected > 0
}

// ListReminderCandidates returns every membership with a known coverage
// end, not yet removed, that the notification dispatcher must evaluate
// against the 7/3/1-day boundaries.
func ListReminderCandidates(db *gorm.DB) []YandexMembership {
	var memberships []YandexMembership
	db.Where("coverage_end_at IS NOT NULL AND removed_at IS NULL").Find(&memberships)
	return memberships
}

// ListKickCandidates returns memberships whose coverage ended while the
// user's subscription remains active, the working set for rotating Yandex
// memberships the scheduler job drains.
func ListKickCandidates(db *gorm.DB, now time.Time) []YandexMembership {
	var memberships []YandexMembership
	db.Joins("JOIN subscriptions ON subscriptions.tg_id = yandex_memberships.tg_id").
		Where("yandex_memberships.coverage_end_at IS NOT NULL AND yandex_memberships.coverage_end_at <= ? AND yandex_memberships.removed_at IS NULL AND subscriptions.is_active = ?", now, true).
		Find(&memberships)
	return memberships
}

func SetReminderSent(db *gorm.DB, tgID int64, column string, sentAt time.Time) error {
	return db.Model(&YandexMembership{}).Where("tg_id = ?", tgID).Update(column, sentAt).Error
}

// MarkRemoved flags a membership as handled by the rotation job: the
// external collaborator is expected to watch this flag to actually kick and
// re-invite, the core's job is only to record that coverage ended while the
// subscription was still active.
func MarkRemoved(db *gorm.DB, tgID int64, removedAt time.Time) error {
	return db.Model(&YandexMembership{}).Where("tg_id = ?", tgID).Update("removed_at", removedAt).Error
}

// KickReportRow is one line of the daily admin kick report: a membership
// whose owning subscription has already ended but which this core has not
// yet flagged removed.
type KickReportRow struct {
	TGID  int64     `json:"tg_id"`
	EndAt time.Time `json:"end_at"`
}

// ListKickReportCandidates joins memberships against subscriptions to find
// users whose subscription end_at has passed and whose membership is not
// yet flagged removed, ordered (end_at asc, tg_id asc) and capped at limit.
func ListKickReportCandidates(db *gorm.DB, now time.Time, limit int) []KickReportRow {
	var rows []KickReportRow
	db.Table("yandex_memberships").
		Select("yandex_memberships.tg_id AS tg_id, subscriptions.end_at AS end_at").
		Joins("JOIN subscriptions ON subscriptions.tg_id = yandex_memberships.tg_id").
		Where("subscriptions.end_at <= ? AND yandex_memberships.removed_at IS NULL", now).
		Order("subscriptions.end_at asc, yandex_memberships.tg_id asc").
		Limit(limit).
		Find(&rows)
	return rows
}
