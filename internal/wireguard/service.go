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

// Package wireguard is the entitlement service for the shared WireGuard
// server: it owns peer IP allocation, key generation and at-rest
// encryption, the remote `wg set` mutations, and the client-facing config
// text builder.
package wireguard

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"github.com/sbs-poc/accessbroker/internal/sshx"
	"github.com/sbs-poc/accessbroker/internal/vault"
	"gorm.io/gorm"
)

// ErrTransient wraps a remote-mutation failure the caller may retry, per
// the adapter's documented failure semantics: one retry already happened
// inside sshx.Target.Run, so a caller-level retry means trying again on a
// later scheduler tick or user action.
var ErrTransient = errors.New("wireguard: transient remote failure")

// ServerCode is the fixed logical server identifier for the single shared
// WireGuard server this service manages; VpnPeer rows carry it so the
// schema already supports more than one server without a migration.
const ServerCode = "wg0"

// Remote is the minimal surface this service needs from the SSH transport,
// satisfied by *sshx.Target in production and fakeable in tests.
type Remote interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// Service implements ensure/rotate/revoke against a single shared WireGuard
// interface.
type Service struct {
	db     *gorm.DB
	cfg    config.WireGuard
	vault  *vault.Vault
	remote Remote
	clock  clock.Clock
	net    *net.IPNet
}

// New builds a Service from the WireGuard config block. remote may be nil
// only in tests that never call a method performing a remote mutation.
func New(db *gorm.DB, cfg config.WireGuard, v *vault.Vault, remote Remote, clk clock.Clock) (*Service, error) {
	_, network, err := net.ParseCIDR(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("wireguard: parsing network %q: %w", cfg.Network, err)
	}

	return &Service{db: db, cfg: cfg, vault: v, remote: remote, clock: clk, net: network}, nil
}

// NewFromSSHTarget is the production constructor, wiring an sshx.Target as
// Remote.
func NewFromSSHTarget(db *gorm.DB, cfg config.WireGuard, v *vault.Vault, clk clock.Clock) (*Service, error) {
	target, err := sshx.New(cfg.SSH)
	if err != nil {
		return nil, fmt.Errorf("wireguard: building ssh target: %w", err)
	}
	return New(db, cfg, v, target, clk)
}

// EnsurePeer returns the current active peer for tgID, creating one if
// none exists.
func (s *Service) EnsurePeer(ctx context.Context, tgID int64) (models.VpnPeer, error) {
	if peer, ok := models.FindActivePeer(s.db, tgID, ServerCode); ok {
		return peer, nil
	}
	peer, _, err := s.createPeer(ctx, tgID)
	return peer, err
}

// RotatePeer issues a fresh peer and revokes every previously active peer
// for tgID with reason, returning the new peer and its plaintext private
// key (for one-time delivery to the user; never persisted in the clear).
func (s *Service) RotatePeer(ctx context.Context, tgID int64, reason string) (models.VpnPeer, string, error) {
	peer, privateKey, err := s.createPeer(ctx, tgID)
	if err != nil {
		return models.VpnPeer{}, "", err
	}

	if err := s.revokeOthers(ctx, tgID, peer.ID, reason); err != nil {
		return peer, privateKey, err
	}
	return peer, privateKey, nil
}

// RevokePeers marks every active peer for tgID revoked and best-effort
// removes each from the remote interface.
func (s *Service) RevokePeers(ctx context.Context, tgID int64, reason string) error {
	publicKeys, err := models.RevokeActivePeers(s.db, tgID, reason, s.clock.Now())
	if err != nil {
		return fmt.Errorf("wireguard: revoking peers in db: %w", err)
	}

	for _, pub := range publicKeys {
		// Best-effort: the db revocation already committed, so a failed
		// remote removal is ignored and never surfaced as this call's error.
		_, _ = s.remote.Run(ctx, fmt.Sprintf("wg set %s peer %s remove", s.cfg.Interface, pub))
	}
	return nil
}

func (s *Service) revokeOthers(ctx context.Context, tgID int64, keepPeerID uint, reason string) error {
	var others []models.VpnPeer
	if err := s.db.Where("tg_id = ? AND server_code = ? AND is_active = ? AND id <> ?", tgID, ServerCode, true, keepPeerID).Find(&others).Error; err != nil {
		return fmt.Errorf("wireguard: listing peers to rotate out: %w", err)
	}
	if len(others) == 0 {
		return nil
	}

	now := s.clock.Now()
	ids := make([]uint, 0, len(others))
	for _, o := range others {
		ids = append(ids, o.ID)
	}
	if err := s.db.Model(&models.VpnPeer{}).Where("id IN ?", ids).Updates(map[string]any{
		"is_active":       false,
		"revoked_at":      now,
		"rotation_reason": reason,
	}).Error; err != nil {
		return fmt.Errorf("wireguard: marking rotated peers revoked: %w", err)
	}

	for _, o := range others {
		_, _ = s.remote.Run(ctx, fmt.Sprintf("wg set %s peer %s remove", s.cfg.Interface, o.ClientPublicKey))
	}
	return nil
}

// createPeer allocates an IP, generates a key pair, installs the peer on
// the remote interface, encrypts the private key at rest, and persists the
// row. It returns the plaintext private key alongside the stored row so
// the caller can hand it to the user exactly once.
func (s *Service) createPeer(ctx context.Context, tgID int64) (models.VpnPeer, string, error) {
	clientIP, err := s.allocateIP(tgID)
	if err != nil {
		return models.VpnPeer{}, "", err
	}

	keys, err := generateKeyPair()
	if err != nil {
		return models.VpnPeer{}, "", fmt.Errorf("wireguard: %w", err)
	}

	cmd := fmt.Sprintf("wg set %s peer %s allowed-ips %s/32", s.cfg.Interface, keys.public, clientIP)
	if _, err := s.remote.Run(ctx, cmd); err != nil {
		return models.VpnPeer{}, "", fmt.Errorf("%w: %w", ErrTransient, err)
	}

	encPriv, err := s.vault.EncryptString(keys.private)
	if err != nil {
		return models.VpnPeer{}, "", fmt.Errorf("wireguard: encrypting private key: %w", err)
	}

	peer := models.VpnPeer{
		TGID:                tgID,
		ClientPublicKey:     keys.public,
		ClientPrivateKeyEnc: encPriv,
		ClientIP:            clientIP,
		ServerCode:          ServerCode,
		IsActive:            true,
		CreatedAt:           s.clock.Now(),
	}
	if err := models.CreatePeer(s.db, &peer); err != nil {
		return models.VpnPeer{}, "", fmt.Errorf("wireguard: persisting peer: %w", err)
	}

	return peer, keys.private, nil
}

func (s *Service) allocateIP(tgID int64) (string, error) {
	inUse := make(map[string]struct{})
	for _, ip := range models.ListPeerIPsInUse(s.db) {
		inUse[ip] = struct{}{}
	}
	return allocIP(s.net, tgID, inUse)
}

// BuildClientConfig renders cfg's textual client block for peer, given its
// plaintext private key.
func (s *Service) BuildClientConfig(peer models.VpnPeer, privateKey string) string {
	return BuildClientConfig(s.cfg, peer, privateKey)
}
