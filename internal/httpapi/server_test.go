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

package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sbs-poc/accessbroker/internal/admin"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/sbs-poc/accessbroker/internal/httpapi"
	"github.com/sbs-poc/accessbroker/internal/httpapi/wsbroadcast"
	"github.com/sbs-poc/accessbroker/internal/pubsub"
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

type fakeRemote struct{}

func (fakeRemote) Run(_ context.Context, _ string) (string, error) { return "", nil }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Driver = config.DatabaseDriverSQLite
	cfg.Database.Database = ""
	cfg.Redis.Enabled = false
	cfg.WireGuard.Interface = "wg0"
	cfg.WireGuard.Network = "10.66.0.0/16"
	cfg.WireGuard.DNS = "1.1.1.1"
	cfg.WireGuard.Endpoint = "vpn.example.invalid:51820"
	cfg.WireGuard.ServerPublicKey = "serverpubkey"
	cfg.WireGuard.AllowedIPs = "0.0.0.0/0"
	cfg.RegionVPN.ConfigPath = "/usr/local/etc/xray/config.json"
	cfg.RegionVPN.MaxClients = 2
	cfg.RegionVPN.VLESS = config.VLESS{Host: "region.example.invalid", Port: 443}
	cfg.HTTP.CanonicalHost = "https://admin.example.invalid"
	cfg.HTTP.AdminToken = "test-admin-token"
	return cfg
}

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB, string) {
	t.Helper()

	cfg := testConfig(t)

	gdb, err := db.MakeDB(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})

	v, err := vault.New("test-secret-for-httpapi-vault")
	require.NoError(t, err)
	wgSvc, err := wireguard.New(gdb, cfg.WireGuard, v, fakeRemote{}, clock.New())
	require.NoError(t, err)
	xraySvc := xray.New(fakeRemote{}, cfg.RegionVPN)
	adminSvc := admin.New(gdb, wgSvc, xraySvc, clock.New())

	ps, err := pubsub.MakePubSub(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	hub := wsbroadcast.NewHub(ps)

	srv := httptest.NewServer(httpapi.New(gdb, &cfg, adminSvc, hub, nil).Handler)
	t.Cleanup(srv.Close)

	return srv, gdb, cfg.HTTP.AdminToken
}

func TestHealthzReportsOKWithWorkingDB(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRejectMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/admin/users/1/reset", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRejectWrongToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/users/1/reset", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestResetUserRouteSucceedsWithValidToken(t *testing.T) {
	srv, gdb, token := newTestServer(t)

	require.NoError(t, gdb.Create(&models.Subscription{TGID: 99, IsActive: true}).Error)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/users/99/reset", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body["reset"])
}

func TestForgiveUserRouteReturnsNotFoundWithoutMembership(t *testing.T) {
	srv, _, token := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/users/123/forgive", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetUserRouteRejectsInvalidTGID(t *testing.T) {
	srv, _, token := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/admin/users/not-a-number/reset", srv.URL), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type fakeKickReporter struct {
	called bool
	forced bool
}

func (f *fakeKickReporter) RunDailyKickReport(_ context.Context, _ time.Time, force bool) error {
	f.called = true
	f.forced = force
	return nil
}

func TestKickReportRouteForcesAnImmediateSend(t *testing.T) {
	cfg := testConfig(t)
	gdb, err := db.MakeDB(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})

	reporter := &fakeKickReporter{}
	srv := httptest.NewServer(httpapi.New(gdb, &cfg, nil, nil, reporter).Handler)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/kick-report", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cfg.HTTP.AdminToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, reporter.called)
	require.True(t, reporter.forced, "the admin route must force the report regardless of time-of-day/dedup state")
}
