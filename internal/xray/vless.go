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

package xray

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildVlessURL renders the vless:// share link for an already-provisioned
// client UUID, using the VLESS block of the region-VPN config.
func (s *Service) BuildVlessURL(clientUUID string) string {
	v := s.cfg.VLESS

	query := url.Values{}
	query.Set("encryption", "none")
	query.Set("security", "reality")
	if v.Flow != "" {
		query.Set("flow", v.Flow)
	}
	if v.SNI != "" {
		query.Set("sni", v.SNI)
	}
	if v.Fingerprint != "" {
		query.Set("fp", v.Fingerprint)
	}
	query.Set("type", "tcp")
	if v.PublicKey != "" {
		query.Set("pbk", v.PublicKey)
	}
	if v.ShortID != "" {
		query.Set("sid", v.ShortID)
	}

	label := v.Label
	if label == "" {
		label = "VPN Region"
	}
	fragment := strings.ReplaceAll(label, " ", "%20")

	return fmt.Sprintf("vless://%s@%s:%d?%s#%s", clientUUID, v.Host, v.Port, query.Encode(), fragment)
}
