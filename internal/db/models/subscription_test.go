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

func TestSubscriptionExtendFromNeverSubscribed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var sub models.Subscription
	sub.Extend(now, 1)

	assert.Equal(t, now, sub.StartAt)
	assert.Equal(t, now.AddDate(0, 1, 0), sub.EndAt)
	assert.True(t, sub.IsActive)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestSubscriptionExtendFromStillActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := models.Subscription{EndAt: now.AddDate(0, 0, 10)}
	sub.Extend(now, 1)

	// base is the existing end date, not now, since it's still in the future.
	assert.Equal(t, now.AddDate(0, 0, 10).AddDate(0, 1, 0), sub.EndAt)
}

func TestSubscriptionExtendFromExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := models.Subscription{EndAt: now.AddDate(0, 0, -10), IsActive: false, Status: models.SubscriptionStatusExpired}
	sub.Extend(now, 1)

	assert.Equal(t, now.AddDate(0, 1, 0), sub.EndAt)
	assert.True(t, sub.IsActive)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestUpsertAndFindSubscription(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	_, ok := models.FindSubscriptionByUser(database, 7)
	assert.False(t, ok)

	now := time.Now().UTC().Truncate(time.Second)
	sub := models.Subscription{TGID: 7, StartAt: now, EndAt: now.AddDate(0, 1, 0), IsActive: true, Status: models.SubscriptionStatusActive}
	require.NoError(t, models.UpsertSubscription(database, &sub))

	found, ok := models.FindSubscriptionByUser(database, 7)
	assert.True(t, ok)
	assert.True(t, found.IsActive)
}

func TestListExpiringAndExpireSubscription(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	past := models.Subscription{TGID: 1, StartAt: now.AddDate(0, -2, 0), EndAt: now.AddDate(0, 0, -1), IsActive: true, Status: models.SubscriptionStatusActive}
	future := models.Subscription{TGID: 2, StartAt: now, EndAt: now.AddDate(0, 1, 0), IsActive: true, Status: models.SubscriptionStatusActive}
	require.NoError(t, database.Create(&past).Error)
	require.NoError(t, database.Create(&future).Error)

	expiring := models.ListExpiring(database, now)
	assert.Len(t, expiring, 1)
	assert.Equal(t, int64(1), expiring[0].TGID)

	require.NoError(t, models.ExpireSubscription(database, 1))

	found, ok := models.FindSubscriptionByUser(database, 1)
	assert.True(t, ok)
	assert.False(t, found.IsActive)
	assert.Equal(t, models.SubscriptionStatusExpired, found.Status)

	active := models.ListActive(database)
	assert.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].TGID)
}
