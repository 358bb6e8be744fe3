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

package config

import "errors"

var (
	ErrInvalidLogLevel               = errors.New("invalid log level provided")
	ErrSecretRequired                = errors.New("secret key is required for the application")
	ErrPasswordSaltRequired          = errors.New("password salt is required for hashing")
	ErrInvalidRedisHost              = errors.New("invalid Redis host provided")
	ErrInvalidRedisPort              = errors.New("invalid Redis port provided")
	ErrInvalidDatabaseDriver         = errors.New("invalid database driver provided")
	ErrInvalidDatabaseHost           = errors.New("invalid database host provided")
	ErrInvalidDatabasePort           = errors.New("invalid database port provided")
	ErrInvalidDatabaseName           = errors.New("invalid database name provided")
	ErrInvalidHTTPHost               = errors.New("invalid HTTP bind address provided")
	ErrInvalidHTTPPort               = errors.New("invalid HTTP port provided")
	ErrOwnerChatIDRequired           = errors.New("owner chat id is required to deliver the admin kick report")
	ErrInvalidWGSSHHost              = errors.New("invalid WireGuard SSH host provided")
	ErrWGSSHCredentialsRequired      = errors.New("WireGuard SSH requires a password or a base64 private key")
	ErrInvalidWGServerPublicKey      = errors.New("WireGuard server public key is required")
	ErrInvalidWGEndpoint             = errors.New("WireGuard endpoint is required")
	ErrInvalidWGNetwork              = errors.New("WireGuard network CIDR is required")
	ErrInvalidRegionSSHHost          = errors.New("invalid region-VPN SSH host provided")
	ErrRegionSSHCredentialsRequired  = errors.New("region-VPN SSH requires a password or a base64 private key")
	ErrInvalidRegionConfigPath       = errors.New("region-VPN Xray config path is required")
	ErrInvalidRegionAccessLog        = errors.New("region-VPN access log path is required")
	ErrInvalidRegionMaxClients       = errors.New("region-VPN max clients must be positive")
	ErrInvalidVLESSHost              = errors.New("VLESS host is required")
	ErrInvalidVLESSPort              = errors.New("invalid VLESS port provided")
	ErrVaultSecretRequired           = errors.New("vault secret is required to encrypt stored private keys")
	ErrInvalidReferralHoldDays       = errors.New("referral hold days must not be negative")
	ErrInvalidPricingAmount          = errors.New("pricing amount must be positive")
	ErrInvalidPricingCurrency        = errors.New("pricing currency is required")
	ErrInvalidPricingMonths          = errors.New("pricing month count must be positive")
	ErrInvalidNotifyWindows          = errors.New("at least one notification window day is required")
	ErrInvalidPaymentsBaseURL        = errors.New("payments base URL is required")
	ErrInvalidPaymentsSecret         = errors.New("payments secret is required")
	ErrInvalidSMTPHost               = errors.New("invalid SMTP host provided")
	ErrInvalidSMTPPort               = errors.New("invalid SMTP port provided")
	ErrInvalidSMTPAuthMethod         = errors.New("invalid SMTP authentication method provided")
	ErrInvalidSMTPTLS                = errors.New("invalid SMTP TLS setting provided")
	ErrSMTPFromRequired              = errors.New("SMTP 'from' address is required when SMTP is enabled")
	ErrInvalidSMTPUsername           = errors.New("SMTP username is required when SMTP authentication is enabled")
	ErrInvalidSMTPPassword           = errors.New("SMTP password is required when SMTP authentication is enabled")
	ErrInvalidMetricsBindAddress     = errors.New("invalid metrics server bind address provided")
	ErrInvalidMetricsPort            = errors.New("invalid metrics server port provided")
	ErrInvalidPProfBindAddress       = errors.New("invalid pprof server bind address provided")
	ErrInvalidPProfPort              = errors.New("invalid pprof server port provided")
)

// Validate validates the Redis configuration.
func (r Redis) Validate() error {
	if errs := r.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the Redis configuration, returning every violation.
func (r Redis) ValidateWithFields() []error {
	if !r.Enabled {
		return nil
	}
	var errs []error
	if r.Host == "" {
		errs = append(errs, ErrInvalidRedisHost)
	}
	if r.Port <= 0 || r.Port > 65535 {
		errs = append(errs, ErrInvalidRedisPort)
	}
	return errs
}

// Validate validates the Database configuration.
func (d Database) Validate() error {
	if errs := d.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the Database configuration, returning every violation.
func (d Database) ValidateWithFields() []error {
	var errs []error
	if d.Driver != DatabaseDriverSQLite && d.Driver != DatabaseDriverPostgres {
		errs = append(errs, ErrInvalidDatabaseDriver)
	}
	if d.Driver == DatabaseDriverPostgres {
		if d.Host == "" {
			errs = append(errs, ErrInvalidDatabaseHost)
		}
		if d.Port <= 0 || d.Port > 65535 {
			errs = append(errs, ErrInvalidDatabasePort)
		}
	}
	if d.Database == "" {
		errs = append(errs, ErrInvalidDatabaseName)
	}
	return errs
}

// Validate validates the HTTP configuration.
func (h HTTP) Validate() error {
	if errs := h.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the HTTP configuration, returning every violation.
func (h HTTP) ValidateWithFields() []error {
	var errs []error
	if h.Bind == "" {
		errs = append(errs, ErrInvalidHTTPHost)
	}
	if h.Port <= 0 || h.Port > 65535 {
		errs = append(errs, ErrInvalidHTTPPort)
	}
	return errs
}

// Validate validates the WireGuard configuration.
func (w WireGuard) Validate() error {
	if errs := w.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the WireGuard configuration, returning every violation.
func (w WireGuard) ValidateWithFields() []error {
	var errs []error
	if w.SSH.Host == "" {
		errs = append(errs, ErrInvalidWGSSHHost)
	}
	if w.SSH.Password == "" && w.SSH.PrivateKeyBase64 == "" {
		errs = append(errs, ErrWGSSHCredentialsRequired)
	}
	if w.ServerPublicKey == "" {
		errs = append(errs, ErrInvalidWGServerPublicKey)
	}
	if w.Endpoint == "" {
		errs = append(errs, ErrInvalidWGEndpoint)
	}
	if w.Network == "" {
		errs = append(errs, ErrInvalidWGNetwork)
	}
	return errs
}

// Validate validates the RegionVPN configuration.
func (r RegionVPN) Validate() error {
	if errs := r.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the RegionVPN configuration, returning every violation.
func (r RegionVPN) ValidateWithFields() []error {
	var errs []error
	if r.SSH.Host == "" {
		errs = append(errs, ErrInvalidRegionSSHHost)
	}
	if r.SSH.Password == "" && r.SSH.PrivateKeyBase64 == "" {
		errs = append(errs, ErrRegionSSHCredentialsRequired)
	}
	if r.ConfigPath == "" {
		errs = append(errs, ErrInvalidRegionConfigPath)
	}
	if r.AccessLogPath == "" {
		errs = append(errs, ErrInvalidRegionAccessLog)
	}
	if r.MaxClients <= 0 {
		errs = append(errs, ErrInvalidRegionMaxClients)
	}
	if r.VLESS.Host == "" {
		errs = append(errs, ErrInvalidVLESSHost)
	}
	if r.VLESS.Port <= 0 || r.VLESS.Port > 65535 {
		errs = append(errs, ErrInvalidVLESSPort)
	}
	return errs
}

// Validate validates the Vault configuration.
func (v Vault) Validate() error {
	if v.Secret == "" {
		return ErrVaultSecretRequired
	}
	return nil
}

// Validate validates the Referral configuration.
func (r Referral) Validate() error {
	if r.HoldDays < 0 {
		return ErrInvalidReferralHoldDays
	}
	return nil
}

// Validate validates the Pricing configuration.
func (p Pricing) Validate() error {
	if errs := p.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the Pricing configuration, returning every violation.
func (p Pricing) ValidateWithFields() []error {
	var errs []error
	if p.AmountMinor <= 0 {
		errs = append(errs, ErrInvalidPricingAmount)
	}
	if p.Currency == "" {
		errs = append(errs, ErrInvalidPricingCurrency)
	}
	if p.MonthCount <= 0 {
		errs = append(errs, ErrInvalidPricingMonths)
	}
	return errs
}

// Validate validates the Notifications configuration.
func (n Notifications) Validate() error {
	if len(n.WindowsDays) == 0 {
		return ErrInvalidNotifyWindows
	}
	return nil
}

// Validate validates the Payments configuration.
func (p Payments) Validate() error {
	if errs := p.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the Payments configuration, returning every violation.
func (p Payments) ValidateWithFields() []error {
	var errs []error
	if p.BaseURL == "" {
		errs = append(errs, ErrInvalidPaymentsBaseURL)
	}
	if p.Secret == "" {
		errs = append(errs, ErrInvalidPaymentsSecret)
	}
	return errs
}

// Validate validates the SMTP configuration.
func (s SMTP) Validate() error {
	if errs := s.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the SMTP configuration, returning every violation.
func (s SMTP) ValidateWithFields() []error {
	if !s.Enabled {
		return nil
	}
	var errs []error
	if s.Host == "" {
		errs = append(errs, ErrInvalidSMTPHost)
	}
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, ErrInvalidSMTPPort)
	}
	if s.AuthMethod != SMTPAuthMethodPlain && s.AuthMethod != SMTPAuthMethodLogin && s.AuthMethod != SMTPAuthMethodNone {
		errs = append(errs, ErrInvalidSMTPAuthMethod)
	}
	if s.TLS != SMTPTLSNone && s.TLS != SMTPTLSStartTLS && s.TLS != SMTPTLSImplicit {
		errs = append(errs, ErrInvalidSMTPTLS)
	}
	if s.From == "" {
		errs = append(errs, ErrSMTPFromRequired)
	}
	if s.AuthMethod != SMTPAuthMethodNone {
		if s.Username == "" {
			errs = append(errs, ErrInvalidSMTPUsername)
		}
		if s.Password == "" {
			errs = append(errs, ErrInvalidSMTPPassword)
		}
	}
	return errs
}

// Validate validates the Metrics configuration.
func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Bind == "" {
		return ErrInvalidMetricsBindAddress
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMetricsPort
	}
	return nil
}

// Validate validates the PProf configuration.
func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Bind == "" {
		return ErrInvalidPProfBindAddress
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ErrInvalidPProfPort
	}
	return nil
}

// Validate validates the entire configuration, returning the first violation found.
func (c Config) Validate() error {
	if errs := c.ValidateWithFields(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateWithFields validates the entire configuration, returning every violation.
func (c Config) ValidateWithFields() []error {
	var errs []error

	if c.LogLevel != LogLevelDebug && c.LogLevel != LogLevelInfo &&
		c.LogLevel != LogLevelWarn && c.LogLevel != LogLevelError {
		errs = append(errs, ErrInvalidLogLevel)
	}
	if c.Secret == "" {
		errs = append(errs, ErrSecretRequired)
	}
	if c.PasswordSalt == "" {
		errs = append(errs, ErrPasswordSaltRequired)
	}
	if c.Owner.ChatID == 0 {
		errs = append(errs, ErrOwnerChatIDRequired)
	}

	errs = append(errs, c.Redis.ValidateWithFields()...)
	errs = append(errs, c.Database.ValidateWithFields()...)
	errs = append(errs, c.HTTP.ValidateWithFields()...)
	errs = append(errs, c.WireGuard.ValidateWithFields()...)
	errs = append(errs, c.RegionVPN.ValidateWithFields()...)

	if err := c.Vault.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Referral.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Pricing.ValidateWithFields()...)
	if err := c.Notifications.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Payments.ValidateWithFields()...)
	errs = append(errs, c.SMTP.ValidateWithFields()...)

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.PProf.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}
