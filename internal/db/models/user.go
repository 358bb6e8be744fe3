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

// UserStatus is the coarse lifecycle state of a User row.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusRemoved UserStatus = "removed"
)

// User is keyed by the external chat platform id rather than a surrogate
// key: every other table hangs off that id, and the chat front-end is the
// sole source of user identity (the core never authenticates end-users).
type User struct {
	TGID            int64      `json:"tg_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt       time.Time  `json:"created_at"`
	Status          UserStatus `json:"status" gorm:"default:active"`
	RefCode         string     `json:"ref_code" gorm:"uniqueIndex"`
	ReferredByTGID  *int64     `json:"referred_by_tg_id"`
	ReferredAt      *time.Time `json:"referred_at"`
	FlowState       string     `json:"flow_state"`
	FlowData        string     `json:"flow_data"`
	TGUsername      string     `json:"tg_username"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
}

func (User) TableName() string {
	return "users"
}

func UserExists(db *gorm.DB, tgID int64) bool {
	var count int64
	db.Model(&User{}).Where("tg_id = ?", tgID).Limit(1).Count(&count)
	return count > 0
}

func FindUserByID(db *gorm.DB, tgID int64) User {
	var user User
	db.First(&user, "tg_id = ?", tgID)
	return user
}

func FindUserByRefCode(db *gorm.DB, refCode string) (User, bool) {
	var user User
	result := db.Where("ref_code = ?", refCode).Limit(1).Find(&user)
	return user, result.RowsAffected > 0
}

func ListUsers(db *gorm.DB) []User {
	var users []User
	db.Order("tg_id asc").Find(&users)
	return users
}

func CountUsers(db *gorm.DB) int {
	var count int64
	db.Model(&User{}).Count(&count)
	return int(count)
}

func CountActiveReferralsFor(db *gorm.DB, referrerTGID int64) int {
	var count int64
	db.Model(&Referral{}).Where("referrer_tg_id = ? AND status = ?", referrerTGID, ReferralStatusActive).Count(&count)
	return int(count)
}

// ResetUser wipes the flow-resumption fields (flow_state, flow_data) an
// administrator can clear without touching the user's subscription,
// payments, or peer history, which remain for audit.
func ResetUser(db *gorm.DB, tgID int64) error {
	updates := map[string]any{
		"flow_state": "",
		"flow_data":  "",
	}
	return db.Model(&User{}).Where("tg_id = ?", tgID).Updates(updates).Error
}
