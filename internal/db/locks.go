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

package db

import (
	"fmt"

	"gorm.io/gorm"
)

// TryAdvisoryLock attempts to take a Postgres session-level advisory lock
// so only one replica of a cooperative loop (scheduler, session arbiter)
// runs its body on a given tick. Against the sqlite test driver, which has
// no such primitive, it always succeeds: tests run single-process anyway.
func TryAdvisoryLock(gdb *gorm.DB, key int64) (bool, error) {
	if gdb.Dialector.Name() != "postgres" {
		return true, nil
	}
	var locked bool
	if err := gdb.Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&locked).Error; err != nil {
		return false, fmt.Errorf("db: acquiring advisory lock %d: %w", key, err)
	}
	return locked, nil
}

// AdvisoryUnlock releases a lock taken by TryAdvisoryLock. A no-op against
// sqlite, matching TryAdvisoryLock's no-op acquire.
func AdvisoryUnlock(gdb *gorm.DB, key int64) error {
	if gdb.Dialector.Name() != "postgres" {
		return nil
	}
	if err := gdb.Exec("SELECT pg_advisory_unlock(?)", key).Error; err != nil {
		return fmt.Errorf("db: releasing advisory lock %d: %w", key, err)
	}
	return nil
}
