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

package models

import (
	"time"

	"gorm.io/gorm"
)

// VpnPeer is a WireGuard peer record. Revoked peers are retained for audit
// and must never be returned by ListActivePeers, which is the set the
// WireGuard adapter reconciles against the remote interface.
type VpnPeer struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	TGID                int64      `json:"tg_id" gorm:"index"`
	ClientPublicKey     string     `json:"client_public_key"`
	ClientPrivateKeyEnc string     `json:"client_private_key_enc"`
	ClientIP            string     `json:"client_ip"`
	ServerCode          string     `json:"server_code"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	RevokedAt           *time.Time `json:"revoked_at"`
	RotationReason      string     `json:"rotation_reason"`
}

func (VpnPeer) TableName() string {
	return "vpn_peers"
}

// FindActivePeer returns the current active peer for (user, serverCode), if
// any. At most one such row may exist per the entitlement service's
// uniqueness invariant.
func FindActivePeer(db *gorm.DB, tgID int64, serverCode string) (VpnPeer, bool) {
	var peer VpnPeer
	result := db.Where("tg_id = ? AND server_code = ? AND is_active = ?", tgID, serverCode, true).Limit(1).Find(&peer)
	return peer, result.RowsAffected > 0
}

func ListActivePeers(db *gorm.DB) []VpnPeer {
	var peers []VpnPeer
	db.Where("is_active = ?", true).Order("id asc").Find(&peers)
	return peers
}

func ListPeerIPsInUse(db *gorm.DB) []string {
	var ips []string
	db.Model(&VpnPeer{}).Where("is_active = ?", true).Pluck("client_ip", &ips)
	return ips
}

func CreatePeer(db *gorm.DB, peer *VpnPeer) error {
	return db.Create(peer).Error
}

// RevokeActivePeers marks every active peer for tgID revoked with reason
// and returns the public keys that were revoked, so the caller can issue
// the best-effort "wg set wg0 peer <pub> remove" commands.
func RevokeActivePeers(db *gorm.DB, tgID int64, reason string, revokedAt time.Time) ([]string, error) {
	var peers []VpnPeer
	if err := db.Where("tg_id = ? AND is_active = ?", tgID, true).Find(&peers).Error; err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, nil
	}
	publicKeys := make([]string, 0, len(peers))
	for _, peer := range peers {
		publicKeys = append(publicKeys, peer.ClientPublicKey)
	}
	err := db.Model(&VpnPeer{}).Where("tg_id = ? AND is_active = ?", tgID, true).Updates(map[string]any{
		"is_active":       false,
		"revoked_at":      revokedAt,
		"rotation_reason": reason,
	}).Error
	return publicKeys, err
}
