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

// ContentRequest is a short-lived, single-use token tying a user to a
// content URL surfaced by the out-of-core content-search collaborator.
type ContentRequest struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      int64     `json:"user_id" gorm:"index"`
	Token       string    `json:"token" gorm:"uniqueIndex"`
	ContentURL  string    `json:"content_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (ContentRequest) TableName() string {
	return "content_requests"
}

func CreateContentRequest(db *gorm.DB, r *ContentRequest) error {
	return db.Create(r).Error
}

// ConsumeContentRequest looks the token up and deletes it in the same call,
// giving single-use semantics by lookup: a second lookup for the same token
// always misses.
func ConsumeContentRequest(db *gorm.DB, token string, now time.Time) (ContentRequest, bool) {
	var r ContentRequest
	result := db.Where("token = ? AND expires_at > ?", token, now).Limit(1).Find(&r)
	if result.RowsAffected == 0 {
		return ContentRequest{}, false
	}
	db.Delete(&ContentRequest{}, r.ID)
	return r, true
}
