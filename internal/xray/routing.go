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
)

// deepCopyConfig round-trips cfg through JSON so later in-place mutation of
// the original doesn't affect the copy used as the writeConfig "before"
// snapshot for the skip-if-unchanged hash comparison.
func deepCopyConfig(cfg map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("xray: snapshotting config: %w", err)
	}
	var clone map[string]any
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("xray: snapshotting config: %w", err)
	}
	return clone, nil
}

const (
	blackholeOutbound = "blackhole"
	directOutbound    = "direct"
)

func blackholeTag(tgID int64) string {
	return fmt.Sprintf("accessbroker-blackhole:%d", tgID)
}

func ipSteeringTag(tgID int64) string {
	return fmt.Sprintf("accessbroker-ipsteer:%d", tgID)
}

// routingRules returns the live routing.rules slice, creating the routing
// object and rules array if either is absent.
func routingRules(cfg map[string]any) []any {
	routing, ok := cfg["routing"].(map[string]any)
	if !ok {
		routing = map[string]any{}
		cfg["routing"] = routing
	}
	rules, _ := routing["rules"].([]any)
	return rules
}

func setRoutingRules(cfg map[string]any, rules []any) {
	routing, _ := cfg["routing"].(map[string]any)
	if routing == nil {
		routing = map[string]any{}
		cfg["routing"] = routing
	}
	routing["rules"] = rules
}

// removeRulesTagged drops every rule whose ruleTag matches one of tags.
func removeRulesTagged(rules []any, tags map[string]struct{}) []any {
	kept := make([]any, 0, len(rules))
	for _, raw := range rules {
		rule, ok := raw.(map[string]any)
		if !ok {
			kept = append(kept, raw)
			continue
		}
		tag, _ := rule["ruleTag"].(string)
		if _, drop := tags[tag]; drop {
			continue
		}
		kept = append(kept, raw)
	}
	return kept
}

// applyEnabledRules mutates cfg's routing rules in place so each user's
// traffic is blackholed when enabled is false, and no blackhole rule
// remains for a user whose enabled is true.
func applyEnabledRules(cfg map[string]any, enabled map[int64]bool) {
	rules := routingRules(cfg)
	tags := make(map[string]struct{}, len(enabled))
	for tgID := range enabled {
		tags[blackholeTag(tgID)] = struct{}{}
	}
	rules = removeRulesTagged(rules, tags)

	for tgID, isEnabled := range enabled {
		if isEnabled {
			continue
		}
		rules = append(rules, map[string]any{
			"type":        "field",
			"ruleTag":     blackholeTag(tgID),
			"user":        []any{clientEmail(tgID)},
			"outboundTag": blackholeOutbound,
		})
	}
	setRoutingRules(cfg, rules)
}

// applyActiveIPRules mutates cfg's routing rules in place so each user's
// current source IP gets a direct-route rule, replacing any prior
// IP-steering rule for that user so only the latest device's address
// routes normally.
func applyActiveIPRules(cfg map[string]any, activeIP map[int64]string) {
	rules := routingRules(cfg)
	tags := make(map[string]struct{}, len(activeIP))
	for tgID := range activeIP {
		tags[ipSteeringTag(tgID)] = struct{}{}
	}
	rules = removeRulesTagged(rules, tags)

	for tgID, ip := range activeIP {
		rules = append(rules, map[string]any{
			"type":        "field",
			"ruleTag":     ipSteeringTag(tgID),
			"source":      []any{fmt.Sprintf("%s/32", ip)},
			"outboundTag": directOutbound,
		})
	}
	setRoutingRules(cfg, rules)
}

// ApplyEnabledMap ensures each user's traffic is blackholed when enabled is
// false, and that no blackhole rule remains for a user whose enabled is
// true. Applied as a single read-modify-write-restart cycle for the whole
// map, never one remote round trip per user.
func (s *Service) ApplyEnabledMap(ctx context.Context, enabled map[int64]bool) error {
	if len(enabled) == 0 {
		return nil
	}
	return s.ApplyRoutingUpdate(ctx, enabled, nil)
}

// ApplyActiveIPMap installs a direct-route rule for each user's current
// source IP, replacing any prior IP-steering rule for that user so only the
// latest device's address routes normally.
func (s *Service) ApplyActiveIPMap(ctx context.Context, activeIP map[int64]string) error {
	if len(activeIP) == 0 {
		return nil
	}
	return s.ApplyRoutingUpdate(ctx, nil, activeIP)
}

// ApplyRoutingUpdate folds an enabled-map change and an active-IP-map change
// into a single read-modify-write-restart cycle: one remote config read, one
// application of both rule-sets, one write and (if anything actually
// changed) one Xray restart — never two round trips for a tick that needs
// both, which is the common case whenever a switched device's user was also
// just (re)enabled or disabled in the same pass.
func (s *Service) ApplyRoutingUpdate(ctx context.Context, enabled map[int64]bool, activeIP map[int64]string) error {
	if len(enabled) == 0 && len(activeIP) == 0 {
		return nil
	}

	cfg, err := s.readConfig(ctx)
	if err != nil {
		return err
	}
	before, err := deepCopyConfig(cfg)
	if err != nil {
		return err
	}

	if len(enabled) > 0 {
		applyEnabledRules(cfg, enabled)
	}
	if len(activeIP) > 0 {
		applyActiveIPRules(cfg, activeIP)
	}

	return s.writeConfig(ctx, before, cfg)
}
