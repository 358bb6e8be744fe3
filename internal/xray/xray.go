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

// Package xray is the entitlement adapter for the shared Region-VPN Xray
// server: it owns the remote VLESS+Reality client list, the blackhole/
// IP-steering routing rules, and the access-log tail used by the session
// arbiter.
package xray

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/sshx"
)

// ErrServerOverloaded is returned by EnsureClient when the configured
// max-clients ceiling is already reached and tg_id has no existing entry.
var ErrServerOverloaded = errors.New("xray: server overloaded")

// ErrConfigInvalid marks a malformed or structurally unexpected remote
// config (missing VLESS inbound, unparsable JSON).
var ErrConfigInvalid = errors.New("xray: invalid remote config")

// Remote is the minimal surface this adapter needs from the SSH transport,
// satisfied by *sshx.Target in production and fakeable in tests.
type Remote interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// Service mutates a single remote Xray config file over SSH.
type Service struct {
	remote Remote
	cfg    config.RegionVPN
}

// New builds a Service against an already-constructed Remote.
func New(remote Remote, cfg config.RegionVPN) *Service {
	return &Service{remote: remote, cfg: cfg}
}

// NewFromSSHTarget is the production constructor, wiring an sshx.Target as
// Remote.
func NewFromSSHTarget(cfg config.RegionVPN) (*Service, error) {
	target, err := sshx.New(cfg.SSH)
	if err != nil {
		return nil, fmt.Errorf("xray: building ssh target: %w", err)
	}
	return New(target, cfg), nil
}
