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

package arbiter_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sbs-poc/accessbroker/internal/arbiter"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRegion struct {
	mu         sync.Mutex
	lines      []string
	enabledMap map[int64]bool
	activeIP   map[int64]string
}

func (f *fakeRegion) TailAccessLog(_ context.Context, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...), nil
}

func (f *fakeRegion) ApplyRoutingUpdate(_ context.Context, enabled map[int64]bool, activeIP map[int64]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabledMap = enabled
	f.activeIP = activeIP
	return nil
}

type notifyCall struct {
	tgID         int64
	oldIP, newIP string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NotifyDeviceChanged(_ context.Context, tgID int64, oldIP, newIP string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{tgID: tgID, oldIP: oldIP, newIP: newIP})
	return nil
}

type tcCall struct {
	tgID     int64
	ip       string
	rateMbit int
}

type fakeTCShaper struct {
	mu    sync.Mutex
	calls []tcCall
}

func (f *fakeTCShaper) ApplyTCLimit(_ context.Context, tgID int64, ip string, rateMbit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tcCall{tgID: tgID, ip: ip, rateMbit: rateMbit})
	return nil
}

func accessLine(ts string, ip string, tgID int64) string {
	return "2026/02/15 " + ts + " from " + ip + ":1155 accepted tcp:1.1.1.1:443 email: tg:" + strconv.FormatInt(tgID, 10)
}

func makeTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Driver = config.DatabaseDriverSQLite
	cfg.Database.Database = ""
	gdb, err := db.MakeDB(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})
	return gdb
}

func seedActiveSubscription(t *testing.T, gdb *gorm.DB, tgID int64) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.Subscription{
		TGID:     tgID,
		StartAt:  time.Now(),
		EndAt:    time.Now().AddDate(0, 1, 0),
		IsActive: true,
		Status:   models.SubscriptionStatusActive,
	}).Error)
}

func testArbiterConfig() config.Arbiter {
	return config.Arbiter{
		Enabled:            true,
		AccessLogTailLines: 250,
		TCShapingEnabled:   false,
		TCRateMbit:         50,
	}
}

func TestTickSwitchesActiveIPOnNewDevice(t *testing.T) {
	gdb := makeTestDB(t)
	seedActiveSubscription(t, gdb, 42)

	region := &fakeRegion{lines: []string{accessLine("22:03:06.330641", "1.2.3.4", 42)}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), nil, nil)

	require.NoError(t, svc.Tick(context.Background()))

	require.Equal(t, map[int64]bool{42: true}, region.enabledMap)
	require.Equal(t, map[int64]string{42: "1.2.3.4"}, region.activeIP)

	session, ok := models.FindRegionSession(gdb, 42)
	require.True(t, ok)
	require.Equal(t, "1.2.3.4", session.ActiveIP)
}

func TestTickBlackholesInactiveSubscription(t *testing.T) {
	gdb := makeTestDB(t)
	// No subscription row at all: tg_id 99 is never active.

	region := &fakeRegion{lines: []string{accessLine("22:03:06.330641", "9.9.9.9", 99)}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), nil, nil)

	require.NoError(t, svc.Tick(context.Background()))

	require.Equal(t, map[int64]bool{99: false}, region.enabledMap)
	require.Nil(t, region.activeIP)
}

func TestTickSkipsLinesAlreadyFoldedIntoState(t *testing.T) {
	gdb := makeTestDB(t)
	seedActiveSubscription(t, gdb, 7)

	line := accessLine("22:03:06.330641", "1.1.1.1", 7)
	region := &fakeRegion{lines: []string{line}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), nil, nil)

	require.NoError(t, svc.Tick(context.Background()))
	require.Equal(t, map[int64]string{7: "1.1.1.1"}, region.activeIP)

	region.activeIP = nil
	region.lines = []string{line}
	require.NoError(t, svc.Tick(context.Background()))
	require.Nil(t, region.activeIP, "a line already folded into state must not be replayed")
}

func TestTickNotifiesOnlyOnDeviceChange(t *testing.T) {
	gdb := makeTestDB(t)
	seedActiveSubscription(t, gdb, 7)

	notifier := &fakeNotifier{}
	region := &fakeRegion{lines: []string{accessLine("22:03:06.330641", "1.1.1.1", 7)}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), notifier, nil)

	require.NoError(t, svc.Tick(context.Background()))
	require.Empty(t, notifier.calls, "first-ever connection has no prior device to notify about")

	region.lines = []string{accessLine("22:04:06.330641", "2.2.2.2", 7)}
	require.NoError(t, svc.Tick(context.Background()))

	require.Len(t, notifier.calls, 1)
	require.Equal(t, notifyCall{tgID: 7, oldIP: "1.1.1.1", newIP: "2.2.2.2"}, notifier.calls[0])
}

func TestTickAppliesTCShapingOnlyWhenEnabled(t *testing.T) {
	gdb := makeTestDB(t)
	seedActiveSubscription(t, gdb, 7)

	tc := &fakeTCShaper{}
	region := &fakeRegion{lines: []string{accessLine("22:03:06.330641", "1.1.1.1", 7)}}
	cfg := testArbiterConfig()
	cfg.TCShapingEnabled = true
	svc := arbiter.New(gdb, region, cfg, clock.New(), nil, tc)

	require.NoError(t, svc.Tick(context.Background()))

	require.Len(t, tc.calls, 1)
	require.Equal(t, tcCall{tgID: 7, ip: "1.1.1.1", rateMbit: 50}, tc.calls[0])
}

func TestTickNoOpWhenNoParsableLines(t *testing.T) {
	gdb := makeTestDB(t)
	region := &fakeRegion{lines: []string{"not a valid access log line"}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), nil, nil)

	require.NoError(t, svc.Tick(context.Background()))
	require.Nil(t, region.enabledMap)
	require.Nil(t, region.activeIP)
}

func TestTickLeavesUnchangedIPWithoutReswitching(t *testing.T) {
	gdb := makeTestDB(t)
	seedActiveSubscription(t, gdb, 7)

	region := &fakeRegion{lines: []string{accessLine("22:03:06.330641", "1.1.1.1", 7)}}
	svc := arbiter.New(gdb, region, testArbiterConfig(), clock.New(), nil, nil)
	require.NoError(t, svc.Tick(context.Background()))

	region.activeIP = nil
	region.lines = []string{accessLine("22:04:06.330641", "1.1.1.1", 7)}
	require.NoError(t, svc.Tick(context.Background()))

	require.Nil(t, region.activeIP, "same ip as before should not trigger a routing switch")
	require.Equal(t, map[int64]bool{7: true}, region.enabledMap)
}
