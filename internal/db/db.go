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
//
// The source code is available at <https://github.com/sbs-poc/accessbroker>

// Package db opens the core database connection, runs migrations, and seeds
// the singleton AppSetting row on first boot.
package db

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	gorm_seeder "github.com/kachit/gorm-seeder"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/migration"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	connsPerCPU = 10
	maxIdleTime = 10 * time.Minute
)

// MakeDB opens the configured database, runs every migration, and seeds the
// app_settings singleton and its dependents if this is a fresh database.
func MakeDB(cfg *config.Config) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error

	switch cfg.Database.Driver {
	case config.DatabaseDriverSQLite:
		gdb, err = gorm.Open(sqlite.Open(cfg.Database.DSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("could not open sqlite database: %w", err)
		}
	default:
		gdb, err = gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("could not open postgres database: %w", err)
		}
		if cfg.Tracing.OTLPEndpoint != "" {
			if err := gdb.Use(otelgorm.NewPlugin()); err != nil {
				return nil, fmt.Errorf("could not trace database: %w", err)
			}
		}
	}

	if err := migration.Migrate(gdb, cfg); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	setting, exists := models.GetAppSetting(gdb)
	if !exists {
		slog.Info("app_settings entry doesn't exist, seeding database")
		appSettingSeeder := models.NewAppSettingSeeder(gorm_seeder.SeederConfiguration{Rows: models.AppSettingSeederRows})
		seedersStack := gorm_seeder.NewSeedersStack(gdb)
		seedersStack.AddSeeder(&appSettingSeeder)

		if err := seedersStack.Seed(); err != nil {
			return nil, fmt.Errorf("could not seed database: %w", err)
		}

		setting, exists = models.GetAppSetting(gdb)
		if !exists {
			return nil, fmt.Errorf("app_settings row missing after seeding")
		}
		if err := models.MarkAppSeeded(gdb, &setting); err != nil {
			return nil, fmt.Errorf("could not mark database seeded: %w", err)
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("could not access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(runtime.GOMAXPROCS(0))
	sqlDB.SetMaxOpenConns(runtime.GOMAXPROCS(0) * connsPerCPU)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	return gdb, nil
}
