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
	"context"
	"fmt"
)

// tcInterface is the egress interface the session arbiter shapes per-IP
// traffic on; the server's single shared uplink.
const tcInterface = "eth0"

// tcClassID derives a stable htb classid in 1:10..1:ffff from tgID, wide
// enough in practice to avoid collisions across the handful of concurrent
// devices a single server ever carries.
func tcClassID(tgID int64) uint32 {
	id := uint32(tgID%0xfff0) + 0x10
	return id
}

// ApplyTCLimit installs (or replaces) a per-IP htb rate limit on the
// Region-VPN server's egress interface: one class per user, classified by
// destination IP, capped at rateMbit megabits/sec. Safe to call repeatedly
// for the same tg_id; `tc class replace` and `tc filter replace` both
// overwrite any prior rule rather than erroring on it.
func (s *Service) ApplyTCLimit(ctx context.Context, tgID int64, ip string, rateMbit int) error {
	classID := tcClassID(tgID)
	cmd := fmt.Sprintf(
		"tc class replace dev %s parent 1: classid 1:%x htb rate %dmbit ceil %dmbit && "+
			"tc filter replace dev %s parent 1: protocol ip prio 1 u32 match ip dst %s/32 flowid 1:%x",
		tcInterface, classID, rateMbit, rateMbit,
		tcInterface, ip, classID,
	)
	if _, err := s.remote.Run(ctx, cmd); err != nil {
		return fmt.Errorf("xray: applying tc limit for tg=%d ip=%s: %w", tgID, ip, err)
	}
	return nil
}
