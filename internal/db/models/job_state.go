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
	"gorm.io/gorm/clause"
)

// JobState is a small key-value table for scheduler jobs that need to
// remember a fact across ticks without a dedicated column, e.g. "the daily
// kick report was already sent for 2026-03-15".
type JobState struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (JobState) TableName() string {
	return "job_state"
}

func GetJobState(db *gorm.DB, key string) (string, bool) {
	var state JobState
	result := db.Where("key = ?", key).Limit(1).Find(&state)
	if result.RowsAffected == 0 {
		return "", false
	}
	return state.Value, true
}

// SetJobState upserts the row, so a job's "already ran" marker can be
// written unconditionally without a prior existence check.
func SetJobState(db *gorm.DB, key, value string, updatedAt time.Time) error {
	state := JobState{Key: key, Value: value, UpdatedAt: updatedAt}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
}
