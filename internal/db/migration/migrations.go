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

// Package migration holds the linear gormigrate history for the core
// database. Each file defines one migration function named for the table
// or column it touches, aggregated here in chronological order.
package migration

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/sbs-poc/accessbroker/internal/config"
	"gorm.io/gorm"
)

// Migrate runs every registered migration against db in order, creating the
// gormigrate bookkeeping table on first run.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		create_core_tables_migration_202603010000(db, cfg),
		add_app_settings_table_migration_202603010001(db, cfg),
		add_referral_ref_code_index_migration_202603020000(db, cfg),
		add_ratelimit_table_migration_202603030000(db, cfg),
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}
