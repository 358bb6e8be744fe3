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

package wireguard

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseNet(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	return n
}

func TestAllocIPDeterministic(t *testing.T) {
	t.Parallel()
	network := mustParseNet(t, "10.66.0.0/16")

	ip, err := allocIP(network, 42, map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "10.66.0.44", ip)

	// Same input always yields the same address.
	ip2, err := allocIP(network, 42, map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, ip, ip2)
}

func TestAllocIPCollisionScansForward(t *testing.T) {
	t.Parallel()
	network := mustParseNet(t, "10.66.0.0/16")

	inUse := map[string]struct{}{"10.66.0.44": {}}
	ip, err := allocIP(network, 42, inUse)
	require.NoError(t, err)
	assert.Equal(t, "10.66.0.45", ip)
}

func TestAllocIPDifferentUsersDontCollide(t *testing.T) {
	t.Parallel()
	network := mustParseNet(t, "10.66.0.0/16")

	ip1, err := allocIP(network, 1, map[string]struct{}{})
	require.NoError(t, err)
	ip2, err := allocIP(network, 2, map[string]struct{}{})
	require.NoError(t, err)

	assert.NotEqual(t, ip1, ip2)
}

func TestAllocIPExhaustedRangeErrors(t *testing.T) {
	t.Parallel()
	network := mustParseNet(t, "10.66.0.0/30")

	inUse := map[string]struct{}{"10.66.0.2": {}, "10.66.0.3": {}}
	_, err := allocIP(network, 1, inUse)
	assert.Error(t, err)
}
