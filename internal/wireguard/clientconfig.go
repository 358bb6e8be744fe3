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
	"fmt"

	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/models"
)

const persistentKeepalive = 25

// BuildClientConfig renders the textual WireGuard interface block a user
// drops into their own client, given the plaintext private key (never
// stored) and the peer's assigned address.
func BuildClientConfig(cfg config.WireGuard, peer models.VpnPeer, privateKey string) string {
	return fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = %s/32
DNS = %s

[Peer]
PublicKey = %s
Endpoint = %s
AllowedIPs = %s
PersistentKeepalive = %d
`, privateKey, peer.ClientIP, cfg.DNS, cfg.ServerPublicKey, cfg.Endpoint, cfg.AllowedIPs, persistentKeepalive)
}
