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

package models_test

import (
	"testing"
	"time"

	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestCreateEarningRejectsDuplicate(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	e1 := models.ReferralEarning{ReferrerTGID: 1, ReferredTGID: 2, PaymentID: uintPtr(10), EarnedRUB: 500, Percent: 5}
	require.NoError(t, models.CreateEarning(database, &e1))

	e2 := models.ReferralEarning{ReferrerTGID: 1, ReferredTGID: 2, PaymentID: uintPtr(10), EarnedRUB: 500, Percent: 5}
	err := models.CreateEarning(database, &e2)
	assert.ErrorIs(t, err, models.ErrDuplicateEarning)
}

func TestReleaseDueEarnings(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	due := models.ReferralEarning{ReferrerTGID: 1, PaymentID: uintPtr(1), Status: models.EarningStatusPending, AvailableAt: now.Add(-time.Hour)}
	notDue := models.ReferralEarning{ReferrerTGID: 1, PaymentID: uintPtr(2), Status: models.EarningStatusPending, AvailableAt: now.Add(time.Hour)}
	require.NoError(t, database.Create(&due).Error)
	require.NoError(t, database.Create(&notDue).Error)

	released, err := models.ReleaseDueEarnings(database, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	available := models.ListAvailableEarningsForUser(database, 1)
	assert.Len(t, available, 1)
	assert.Equal(t, due.ID, available[0].ID)
}

func TestSumEarningsForUser(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	require.NoError(t, database.Create(&models.ReferralEarning{ReferrerTGID: 1, PaymentID: uintPtr(1), EarnedRUB: 500, Status: models.EarningStatusAvailable}).Error)
	require.NoError(t, database.Create(&models.ReferralEarning{ReferrerTGID: 1, PaymentID: uintPtr(2), EarnedRUB: 300, Status: models.EarningStatusPaid}).Error)
	require.NoError(t, database.Create(&models.ReferralEarning{ReferrerTGID: 1, PaymentID: uintPtr(3), EarnedRUB: 900, Status: models.EarningStatusPending}).Error)

	assert.Equal(t, int64(1700), models.SumEarningsForUser(database, 1))
	assert.Equal(t, int64(500), models.SumEarningsForUser(database, 1, models.EarningStatusAvailable))
	assert.Equal(t, int64(0), models.SumEarningsForUser(database, 999))
}
