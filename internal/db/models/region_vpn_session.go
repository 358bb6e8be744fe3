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

// RegionVpnSession is one row per user tracking which source IP the session
// arbiter currently treats as "the active device" on the shared Xray
// server.
type RegionVpnSession struct {
	TGID         int64     `json:"tg_id" gorm:"primaryKey;autoIncrement:false"`
	ActiveIP     string    `json:"active_ip"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	LastSwitchAt time.Time `json:"last_switch_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (RegionVpnSession) TableName() string {
	return "region_vpn_sessions"
}

func FindRegionSession(db *gorm.DB, tgID int64) (RegionVpnSession, bool) {
	var session RegionVpnSession
	result := db.Where("tg_id = ?", tgID).Limit(1).Find(&session)
	return session, result.RowsAffected > 0
}

func ListRegionSessions(db *gorm.DB) []RegionVpnSession {
	var sessions []RegionVpnSession
	db.Find(&sessions)
	return sessions
}

// UpsertActiveIP records a new observed source IP and switch timestamp in
// one write; callers only call this when the IP actually changed.
func UpsertActiveIP(db *gorm.DB, tgID int64, ip string, seenAt time.Time) error {
	session := RegionVpnSession{
		TGID:         tgID,
		ActiveIP:     ip,
		LastSeenAt:   seenAt,
		LastSwitchAt: seenAt,
		CreatedAt:    seenAt,
	}
	return db.Save(&session).Error
}

func TouchLastSeen(db *gorm.DB, tgID int64, seenAt time.Time) error {
	return db.Model(&RegionVpnSession{}).Where("tg_id = ?", tgID).Update("last_seen_at", seenAt).Error
}

// DeleteRegionSession drops the arbiter's session-tracking row for tgID,
// the admin reset-user operation's equivalent of forgetting which device
// was last active.
func DeleteRegionSession(db *gorm.DB, tgID int64) error {
	return db.Where("tg_id = ?", tgID).Delete(&RegionVpnSession{}).Error
}
