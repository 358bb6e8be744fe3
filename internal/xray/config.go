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
	"encoding/json"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

const (
	tmpConfigPath  = "/tmp/xray_config_new.json"
	heredocMarker  = "__XRAYCFG__"
	restartCommand = "sudo systemctl restart xray"
)

func (s *Service) readConfig(ctx context.Context) (map[string]any, error) {
	out, err := s.remote.Run(ctx, fmt.Sprintf("cat %s", s.cfg.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("xray: reading remote config: %w", err)
	}
	if out == "" {
		return nil, fmt.Errorf("%w: remote config is empty", ErrConfigInvalid)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return cfg, nil
}

// writeConfig installs cfg over the remote config path and restarts Xray,
// unless cfg hashes identically to before (no-op skip).
func (s *Service) writeConfig(ctx context.Context, before, cfg map[string]any) error {
	if before != nil {
		beforeHash, err1 := hashstructure.Hash(before, hashstructure.FormatV2, nil)
		afterHash, err2 := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
		if err1 == nil && err2 == nil && beforeHash == afterHash {
			return nil
		}
	}

	text, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("xray: marshaling config: %w", err)
	}

	cmd := fmt.Sprintf(
		"cat > %s <<'%s'\n%s\n%s\nsudo install -m 644 %s %s",
		tmpConfigPath, heredocMarker, string(text), heredocMarker, tmpConfigPath, s.cfg.ConfigPath,
	)
	if _, err := s.remote.Run(ctx, cmd); err != nil {
		return fmt.Errorf("xray: installing config: %w", err)
	}

	if _, err := s.remote.Run(ctx, restartCommand); err != nil {
		return fmt.Errorf("xray: restarting daemon: %w", err)
	}
	return nil
}

// vlessInbound locates the first VLESS inbound's settings.clients slice,
// creating it if the inbound exists but clients is absent. It returns the
// inbound's settings map and the live clients slice so callers can mutate
// either in place before a writeConfig call.
func vlessInbound(cfg map[string]any) (map[string]any, []any, error) {
	inbounds, _ := cfg["inbounds"].([]any)
	for _, raw := range inbounds {
		ib, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		protocol, _ := ib["protocol"].(string)
		if protocol != "vless" {
			continue
		}
		settings, ok := ib["settings"].(map[string]any)
		if !ok {
			continue
		}
		clients, _ := settings["clients"].([]any)
		if clients == nil {
			clients = []any{}
			settings["clients"] = clients
		}
		return settings, clients, nil
	}
	return nil, nil, fmt.Errorf("%w: no vless inbound found", ErrConfigInvalid)
}
