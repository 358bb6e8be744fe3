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

	gorm_seeder "github.com/kachit/gorm-seeder"
	"gorm.io/gorm"
)

// AppSetting is the singleton row MakeDB checks on startup to decide
// whether the seed stack still needs to run.
type AppSetting struct {
	ID        uint `gorm:"primaryKey"`
	HasSeeded bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (AppSetting) TableName() string {
	return "app_settings"
}

func GetAppSetting(db *gorm.DB) (AppSetting, bool) {
	var setting AppSetting
	result := db.Order("id asc").Limit(1).Find(&setting)
	return setting, result.RowsAffected > 0
}

func MarkAppSeeded(db *gorm.DB, setting *AppSetting) error {
	setting.HasSeeded = true
	return db.Save(setting).Error
}

// AppSettingSeeder creates the singleton AppSetting row the first time
// MakeDB runs against a fresh database.
type AppSettingSeeder struct {
	gorm_seeder.SeederAbstract
}

const AppSettingSeederRows = 1

func NewAppSettingSeeder(cfg gorm_seeder.SeederConfiguration) AppSettingSeeder {
	return AppSettingSeeder{gorm_seeder.NewSeederAbstract(cfg)}
}

func (s *AppSettingSeeder) Seed(db *gorm.DB) error {
	return db.Create(&AppSetting{HasSeeded: false}).Error
}

func (s *AppSettingSeeder) Clear(db *gorm.DB) error {
	return nil
}
