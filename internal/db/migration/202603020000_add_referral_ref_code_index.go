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
	"gorm.io/gorm"
)

// add_referral_ref_code_index_migration_202603020000 backfills an index on
// referral_earnings(referrer_tg_id, status), the column pair the payout
// job's availability sweep filters on every tick.
func add_referral_ref_code_index_migration_202603020000(_ *gorm.DB, _ *config.Config) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202603020000",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_referral_earnings_referrer_status ON referral_earnings (referrer_tg_id, status)").Error; err != nil {
				return fmt.Errorf("could not create referral_earnings index: %w", err)
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP INDEX IF EXISTS idx_referral_earnings_referrer_status").Error
		},
	}
}
