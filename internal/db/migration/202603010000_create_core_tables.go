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

func create_core_tables_migration_202603010000(_ *gorm.DB, _ *config.Config) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202603010000",
		Migrate: func(tx *gorm.DB) error {
			err := tx.AutoMigrate(
				&models.User{},
				&models.Subscription{},
				&models.Payment{},
				&models.VpnPeer{},
				&models.RegionVpnSession{},
				&models.Referral{},
				&models.ReferralEarning{},
				&models.PayoutRequest{},
				&models.ContentRequest{},
				&models.JobState{},
				&models.YandexMembership{},
			)
			if err != nil {
				return fmt.Errorf("could not create core tables: %w", err)
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.User{},
				&models.Subscription{},
				&models.Payment{},
				&models.VpnPeer{},
				&models.RegionVpnSession{},
				&models.Referral{},
				&models.ReferralEarning{},
				&models.PayoutRequest{},
				&models.ContentRequest{},
				&models.JobState{},
				&models.YandexMembership{},
			)
		},
	}
}
