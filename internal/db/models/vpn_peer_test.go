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

func TestFindActivePeerAndListActivePeers(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	_, ok := models.FindActivePeer(database, 1, "wg0")
	assert.False(t, ok)

	peer := models.VpnPeer{TGID: 1, ClientPublicKey: "pub1", ClientIP: "10.66.0.2", ServerCode: "wg0", IsActive: true}
	require.NoError(t, models.CreatePeer(database, &peer))

	found, ok := models.FindActivePeer(database, 1, "wg0")
	assert.True(t, ok)
	assert.Equal(t, "pub1", found.ClientPublicKey)

	active := models.ListActivePeers(database)
	assert.Len(t, active, 1)

	ips := models.ListPeerIPsInUse(database)
	assert.Equal(t, []string{"10.66.0.2"}, ips)
}

func TestRevokeActivePeers(t *testing.T) {
	t.Parallel()
	database, cleanup := makeTestDB(t)
	defer cleanup()

	peer := models.VpnPeer{TGID: 1, ClientPublicKey: "pub1", ClientIP: "10.66.0.2", ServerCode: "wg0", IsActive: true}
	require.NoError(t, models.CreatePeer(database, &peer))

	revokedKeys, err := models.RevokeActivePeers(database, 1, "rotation", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []string{"pub1"}, revokedKeys)

	_, ok := models.FindActivePeer(database, 1, "wg0")
	assert.False(t, ok)

	// Revoking again with nothing active returns an empty, non-nil-error result.
	revokedAgain, err := models.RevokeActivePeers(database, 1, "rotation", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, revokedAgain)
}
