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
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// keyPair is a base64-encoded X25519 key pair in WireGuard's own wire
// format (raw 32-byte scalars, standard base64).
type keyPair struct {
	private string
	public  string
}

func generateKeyPair() (keyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return keyPair{}, fmt.Errorf("wireguard: generating private key: %w", err)
	}

	// Clamp per RFC 7748 / the WireGuard key-generation convention.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return keyPair{}, fmt.Errorf("wireguard: deriving public key: %w", err)
	}

	return keyPair{
		private: base64.StdEncoding.EncodeToString(priv[:]),
		public:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}
