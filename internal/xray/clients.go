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

	"github.com/google/uuid"
)

// Client is one provisioned VLESS client as reported by ListClients.
type Client struct {
	ID    string
	Email string
	Flow  string
}

func clientEmail(tgID int64) string {
	return fmt.Sprintf("tg:%d", tgID)
}

// matchesUser reports whether a client's email identifies tgID, tolerating
// the legacy bare-ID alias alongside the canonical tg:<id> form.
func matchesUser(raw any, tgID int64) bool {
	c, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	email, _ := c["email"].(string)
	return email == clientEmail(tgID) || email == fmt.Sprintf("%d", tgID)
}

// EnsureClient returns the share URL for tgID's VLESS client, provisioning
// one if none exists. Fails with ErrServerOverloaded when max_clients is
// already reached and tgID has no existing client.
func (s *Service) EnsureClient(ctx context.Context, tgID int64) (string, error) {
	cfg, err := s.readConfig(ctx)
	if err != nil {
		return "", err
	}

	settings, clients, err := vlessInbound(cfg)
	if err != nil {
		return "", err
	}

	for _, raw := range clients {
		if !matchesUser(raw, tgID) {
			continue
		}
		c, _ := raw.(map[string]any)
		clientUUID, _ := c["id"].(string)
		if clientUUID != "" {
			return s.BuildVlessURL(clientUUID), nil
		}
		// Config has a bad entry for this user; repair the ID in place.
		clientUUID = uuid.NewString()
		c["id"] = clientUUID
		if err := s.writeConfig(ctx, nil, cfg); err != nil {
			return "", err
		}
		return s.BuildVlessURL(clientUUID), nil
	}

	if s.cfg.MaxClients > 0 && len(clients) >= s.cfg.MaxClients {
		return "", ErrServerOverloaded
	}

	clientUUID := uuid.NewString()
	newClient := map[string]any{"id": clientUUID, "email": clientEmail(tgID)}
	if s.cfg.VLESS.Flow != "" {
		newClient["flow"] = s.cfg.VLESS.Flow
	}
	settings["clients"] = append(clients, newClient)

	if err := s.writeConfig(ctx, nil, cfg); err != nil {
		return "", err
	}
	return s.BuildVlessURL(clientUUID), nil
}

// RevokeClient removes tgID's client entry, if any, reporting whether a
// client was actually removed.
func (s *Service) RevokeClient(ctx context.Context, tgID int64) (bool, error) {
	cfg, err := s.readConfig(ctx)
	if err != nil {
		return false, err
	}

	settings, clients, err := vlessInbound(cfg)
	if err != nil {
		return false, err
	}

	kept := make([]any, 0, len(clients))
	removed := false
	for _, raw := range clients {
		if matchesUser(raw, tgID) {
			removed = true
			continue
		}
		kept = append(kept, raw)
	}
	if !removed {
		return false, nil
	}
	settings["clients"] = kept

	if err := s.writeConfig(ctx, nil, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// ListClients returns a best-effort snapshot of every provisioned VLESS
// client; this is not the same as "currently connected" sessions.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	cfg, err := s.readConfig(ctx)
	if err != nil {
		return nil, err
	}

	_, clients, err := vlessInbound(cfg)
	if err != nil {
		return nil, err
	}

	out := make([]Client, 0, len(clients))
	for _, raw := range clients {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := c["id"].(string)
		email, _ := c["email"].(string)
		flow, _ := c["flow"].(string)
		out = append(out, Client{ID: id, Email: email, Flow: flow})
	}
	return out, nil
}
