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

// Ratelimit backs the admin HTTP surface's GORM-based rate-limit store, one
// row per limiter key (typically a client IP).
type Ratelimit struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Hits      int64     `json:"hits"`
	Timestamp time.Time `json:"timestamp"`
}

// FindRatelimitByKey returns the rate-limit row for key.
func FindRatelimitByKey(db *gorm.DB, key string) (*Ratelimit, error) {
	var rl Ratelimit
	if err := db.Where("key = ?", key).First(&rl).Error; err != nil {
		return nil, err
	}
	return &rl, nil
}

// RatelimitKeyExists reports whether key already has a tracked window.
func RatelimitKeyExists(db *gorm.DB, key string) (bool, error) {
	var count int64
	if err := db.Model(&Ratelimit{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
