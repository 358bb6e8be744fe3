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

// Package featureflags resolves the small set of job/feature toggles that
// gate optional scheduler and arbiter behavior directly against the loaded
// Config, rather than against a free-form flag list.
package featureflags

import "github.com/sbs-poc/accessbroker/internal/config"

type FeatureFlag string

const (
	FeatureScheduler    FeatureFlag = "scheduler"
	FeatureArbiter      FeatureFlag = "arbiter"
	FeatureRegionVPN    FeatureFlag = "region_vpn"
	FeatureYandexRotate FeatureFlag = "yandex_rotation"
	FeatureTCShaping    FeatureFlag = "tc_shaping"
)

// FeatureFlags resolves flags against one loaded Config.
type FeatureFlags struct {
	config *config.Config
}

func New(cfg *config.Config) *FeatureFlags {
	return &FeatureFlags{config: cfg}
}

// IsEnabled reports whether flag is on for this deployment. RegionVPN is
// considered configured (and therefore enabled) whenever its SSH host is
// set; the others are explicit config booleans.
func (f *FeatureFlags) IsEnabled(flag FeatureFlag) bool {
	switch flag {
	case FeatureScheduler:
		return f.config.Scheduler.Enabled
	case FeatureArbiter:
		return f.config.Arbiter.Enabled
	case FeatureRegionVPN:
		return f.config.RegionVPN.SSH.Host != ""
	case FeatureYandexRotate:
		return f.config.Yandex.RotationEnabled
	case FeatureTCShaping:
		return f.config.Arbiter.TCShapingEnabled
	default:
		return false
	}
}
