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

package admin_test

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sbs-poc/accessbroker/internal/admin"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/sbs-poc/accessbroker/internal/vault"
	"github.com/sbs-poc/accessbroker/internal/wireguard"
	"github.com/sbs-poc/accessbroker/internal/xray"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const seedXrayConfig = `{
  "inbounds": [
    {
      "protocol": "vless",
      "settings": {
        "clients": []
      }
    }
  ],
  "routing": {
    "rules": []
  }
}`

var heredocRE = regexp.MustCompile(`(?s)cat > \S+ <<'__XRAYCFG__'\n(.*)\n__XRAYCFG__`)

type fakeXrayRemote struct {
	mu     sync.Mutex
	path   string
	config string
}

func (f *fakeXrayRemote) Run(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case cmd == fmt.Sprintf("cat %s", f.path):
		return f.config, nil
	case strings.HasPrefix(cmd, "cat > "):
		m := heredocRE.FindStringSubmatch(cmd)
		if m == nil {
			return "", fmt.Errorf("fake: could not parse heredoc from %q", cmd)
		}
		f.config = m[1]
		return "", nil
	case cmd == "sudo systemctl restart xray":
		return "", nil
	default:
		return "", fmt.Errorf("fake: unhandled command %q", cmd)
	}
}

type fakeWireGuardRemote struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeWireGuardRemote) Run(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return "", nil
}

func newTestService(t *testing.T) (*admin.Service, *gorm.DB) {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Driver = config.DatabaseDriverSQLite
	cfg.Database.Database = ""
	cfg.WireGuard.Interface = "wg0"
	cfg.WireGuard.Network = "10.66.0.0/16"
	cfg.WireGuard.DNS = "1.1.1.1"
	cfg.WireGuard.Endpoint = "vpn.example.invalid:51820"
	cfg.WireGuard.ServerPublicKey = "serverpubkey"
	cfg.WireGuard.AllowedIPs = "0.0.0.0/0"
	cfg.RegionVPN.ConfigPath = "/usr/local/etc/xray/config.json"
	cfg.RegionVPN.MaxClients = 2
	cfg.RegionVPN.VLESS = config.VLESS{Host: "region.example.invalid", Port: 443}

	gdb, err := db.MakeDB(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})

	v, err := vault.New("test-secret-for-admin-vault")
	require.NoError(t, err)

	wgSvc, err := wireguard.New(gdb, cfg.WireGuard, v, &fakeWireGuardRemote{}, clock.New())
	require.NoError(t, err)

	xraySvc := xray.New(&fakeXrayRemote{path: cfg.RegionVPN.ConfigPath, config: seedXrayConfig}, cfg.RegionVPN)

	return admin.New(gdb, wgSvc, xraySvc, clock.New()), gdb
}

func TestResetUserClearsAllState(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	tgID := int64(42)

	require.NoError(t, gdb.Create(&models.User{TGID: tgID, RefCode: "x", FlowState: "awaiting_payment"}).Error)
	require.NoError(t, gdb.Create(&models.Subscription{TGID: tgID, StartAt: time.Now(), EndAt: time.Now().AddDate(0, 1, 0), IsActive: true, Status: models.SubscriptionStatusActive}).Error)
	require.NoError(t, models.UpsertActiveIP(gdb, tgID, "203.0.113.5", time.Now()))
	require.NoError(t, gdb.Create(&models.YandexMembership{TGID: tgID}).Error)
	_, err := createTestPeer(gdb, tgID)
	require.NoError(t, err)

	require.NoError(t, svc.ResetUser(ctx, tgID))

	sub, exists := models.FindSubscriptionByUser(gdb, tgID)
	require.True(t, exists)
	require.False(t, sub.IsActive)
	require.True(t, sub.EndAt.IsZero())

	_, sessionExists := models.FindRegionSession(gdb, tgID)
	require.False(t, sessionExists)

	_, membershipExists := models.FindYandexMembership(gdb, tgID)
	require.False(t, membershipExists)

	user := models.FindUserByID(gdb, tgID)
	require.Equal(t, "", user.FlowState)

	peers := models.ListActivePeers(gdb)
	require.Empty(t, peers)
}

func createTestPeer(gdb *gorm.DB, tgID int64) (models.VpnPeer, error) {
	peer := models.VpnPeer{
		TGID:            tgID,
		ClientPublicKey: "pubkey-1",
		ClientIP:        "10.66.0.2",
		ServerCode:      wireguard.ServerCode,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	err := models.CreatePeer(gdb, &peer)
	return peer, err
}

func TestResetUserIsSafeWithNoExistingState(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.ResetUser(context.Background(), 999))
}

func TestForgiveUserReturnsFalseWithoutMembership(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.ForgiveUser(123)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForgiveUserClearsRemovedAndNotifiedFlags(t *testing.T) {
	svc, gdb := newTestService(t)
	tgID := int64(55)
	now := time.Now()
	require.NoError(t, gdb.Create(&models.YandexMembership{
		TGID:         tgID,
		RemovedAt:    &now,
		Notified7dAt: &now,
	}).Error)

	ok, err := svc.ForgiveUser(tgID)
	require.NoError(t, err)
	require.True(t, ok)

	m, exists := models.FindYandexMembership(gdb, tgID)
	require.True(t, exists)
	require.Nil(t, m.RemovedAt)
	require.Nil(t, m.Notified7dAt)
}
