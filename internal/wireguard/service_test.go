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

package wireguard_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/vault"
	"github.com/sbs-poc/accessbroker/internal/wireguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu       sync.Mutex
	commands []string
	failNext bool
}

func (f *fakeRemote) Run(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", errors.New("fake: connection refused")
	}
	f.commands = append(f.commands, cmd)
	return "", nil
}

func newTestService(t *testing.T) (*wireguard.Service, *fakeRemote) {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Driver = config.DatabaseDriverSQLite
	cfg.WireGuard.Interface = "wg0"
	cfg.WireGuard.Network = "10.66.0.0/16"
	cfg.WireGuard.DNS = "1.1.1.1"
	cfg.WireGuard.Endpoint = "vpn.example.invalid:51820"
	cfg.WireGuard.ServerPublicKey = "serverpubkey"
	cfg.WireGuard.AllowedIPs = "0.0.0.0/0"

	gdb, err := db.MakeDB(&cfg)
	require.NoError(t, err)

	v, err := vault.New("test-secret-for-wireguard-vault")
	require.NoError(t, err)

	remote := &fakeRemote{}
	svc, err := wireguard.New(gdb, cfg.WireGuard, v, remote, clock.New())
	require.NoError(t, err)

	return svc, remote
}

func TestEnsurePeerCreatesThenReuses(t *testing.T) {
	t.Parallel()
	svc, remote := newTestService(t)

	peer1, err := svc.EnsurePeer(context.Background(), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, peer1.ClientPublicKey)
	assert.NotEmpty(t, peer1.ClientIP)
	assert.Len(t, remote.commands, 1)

	peer2, err := svc.EnsurePeer(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, peer1.ID, peer2.ID)
	// No additional remote mutation for an already-existing peer.
	assert.Len(t, remote.commands, 1)
}

func TestRotatePeerRevokesPrevious(t *testing.T) {
	t.Parallel()
	svc, remote := newTestService(t)
	ctx := context.Background()

	original, err := svc.EnsurePeer(ctx, 200)
	require.NoError(t, err)

	rotated, privateKey, err := svc.RotatePeer(ctx, 200, "manual")
	require.NoError(t, err)
	assert.NotEmpty(t, privateKey)
	assert.NotEqual(t, original.ID, rotated.ID)
	assert.NotEqual(t, original.ClientPublicKey, rotated.ClientPublicKey)

	active, err := svc.EnsurePeer(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, rotated.ID, active.ID)

	// One add for the original peer, one add for the rotated peer, one
	// remove for the original.
	assert.Len(t, remote.commands, 3)
}

func TestRevokePeersClearsActivePeer(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsurePeer(ctx, 300)
	require.NoError(t, err)

	require.NoError(t, svc.RevokePeers(ctx, 300, "subscription_expired"))

	peer, err := svc.EnsurePeer(ctx, 300)
	require.NoError(t, err)
	// EnsurePeer after a revoke must issue a brand new peer.
	assert.NotEmpty(t, peer.ClientPublicKey)
}

func TestCreatePeerSurfacesTransientError(t *testing.T) {
	t.Parallel()
	svc, remote := newTestService(t)
	remote.failNext = true

	_, err := svc.EnsurePeer(context.Background(), 400)
	require.Error(t, err)
	assert.ErrorIs(t, err, wireguard.ErrTransient)
}

func TestBuildClientConfigIncludesKeepalive(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	peer, err := svc.EnsurePeer(context.Background(), 500)
	require.NoError(t, err)

	text := svc.BuildClientConfig(peer, "plaintext-private-key")
	assert.Contains(t, text, "PersistentKeepalive = 25")
	assert.Contains(t, text, peer.ClientIP)
	assert.Contains(t, text, "plaintext-private-key")
}
