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

package migration

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// add_app_settings_table_migration_202603010001 creates the singleton
// app_settings table MakeDB uses to decide whether the seed stack has
// already run. It is split from the core-tables migration so the seed
// stack can be wired in independently of the domain schema.
func add_app_settings_table_migration_202603010001(_ *gorm.DB, _ *config.Config) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202603010001",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&models.AppSetting{}); err != nil {
				return fmt.Errorf("could not create app_settings table: %w", err)
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.AppSetting{})
		},
	}
}
