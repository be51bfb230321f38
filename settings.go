package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds process-wide configuration. Values come from the
// environment (optionally seeded from a .env file) and apply to every
// bot in the process.
type Settings struct {
	// HTTP admin API listen port
	Port string `envconfig:"PORT" default:"1242"`

	// Directory holding per-bot YAML configs and JSON databases
	ConfigDir string `envconfig:"CONFIG_DIR" default:"config"`

	// DSN for the shared cache database. A postgres:// URL selects the
	// Postgres driver, anything else is treated as a SQLite file path.
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"data/cache.db"`

	// Minimum spacing between login submissions across all bots
	LoginLimiterDelay time.Duration `envconfig:"LOGIN_LIMITER_DELAY" default:"5s"`

	// Minimum spacing between gift/key redemption calls across all bots
	GiftsLimiterDelay time.Duration `envconfig:"GIFTS_LIMITER_DELAY" default:"1s"`

	// Minimum spacing between mobile-confirmation polls across all bots
	ConfirmationsLimiterDelay time.Duration `envconfig:"CONFIRMATIONS_LIMITER_DELAY" default:"10s"`

	// How long a connection attempt may run without a terminal login
	// outcome before the watchdog recycles the bot
	ConnectionTimeout time.Duration `envconfig:"CONNECTION_TIMEOUT" default:"90s"`

	// How often an actively farmed game has its drop count re-checked
	FarmingRecheckDelay time.Duration `envconfig:"FARMING_RECHECK_DELAY" default:"15m"`

	// How long to wait before reconnecting after an invalid-credential
	// disconnect when no cached login key was involved
	InvalidCredentialDelay time.Duration `envconfig:"INVALID_CREDENTIAL_DELAY" default:"25m"`

	// How long to wait before resuming a rate-limited redemption queue
	RedeemCooldown time.Duration `envconfig:"REDEEM_COOLDOWN" default:"1h"`

	// How often to rescan badges when there was nothing left to farm, 0 disables
	IdleFarmingPeriod time.Duration `envconfig:"IDLE_FARMING_PERIOD" default:"8h"`

	// Quiet period applied to config-directory filesystem events
	FileWatchQuietPeriod time.Duration `envconfig:"FILE_WATCH_QUIET_PERIOD" default:"1s"`

	// Maximum concurrent HTTP connections per downstream host
	MaxConnectionsPerHost int `envconfig:"MAX_CONNECTIONS_PER_HOST" default:"10"`

	// Global ceiling on outbound web requests per second, shared by all bots
	WebRequestsPerSecond float64 `envconfig:"WEB_REQUESTS_PER_SECOND" default:"5"`

	// Maximum games idled simultaneously in restricted farming mode
	MaxGamesFarmedConcurrently int `envconfig:"MAX_GAMES_FARMED_CONCURRENTLY" default:"32"`

	// How many consecutive invalid-credential results stop the bot for good
	MaxInvalidCredentialFailures int `envconfig:"MAX_INVALID_CREDENTIAL_FAILURES" default:"3"`

	// App IDs whose zero-drop fast path is not trusted and must be
	// re-verified against the per-game page during badge scans
	UntrustedAppIDs []uint32 `envconfig:"UNTRUSTED_APP_IDS" default:"440,570,730"`

	// Base URL of the storefront/community web API
	WebAPIBaseURL string `envconfig:"WEB_API_BASE_URL" default:"https://steamcommunity.com"`

	// Optional proxy URL template for SDK connections, [session]
	// expands to a per-account value
	ProxyURL string `envconfig:"PROXY_URL"`
}

// LoadSettings reads process settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}

	if s.MaxConnectionsPerHost <= 0 {
		s.MaxConnectionsPerHost = 1
	}

	if s.MaxGamesFarmedConcurrently <= 0 {
		s.MaxGamesFarmedConcurrently = 1
	}

	if s.MaxInvalidCredentialFailures <= 0 {
		s.MaxInvalidCredentialFailures = 3
	}

	return &s, nil
}

// BotConfigPath returns the YAML config path for the named bot.
func (s *Settings) BotConfigPath(name string) string {
	return filepath.Join(s.ConfigDir, name+".yaml")
}

// BotDatabasePath returns the JSON database path for the named bot.
func (s *Settings) BotDatabasePath(name string) string {
	return filepath.Join(s.ConfigDir, name+".db.json")
}

// RedeemAuditPath returns the audit log path for terminal key
// outcomes, split into used and unused files.
func (s *Settings) RedeemAuditPath(name string, used bool) string {
	if used {
		return filepath.Join(s.ConfigDir, name+".keys.used.txt")
	}
	return filepath.Join(s.ConfigDir, name+".keys.unused.txt")
}

// IsUntrustedAppID reports whether the app's zero-drop fast path needs
// secondary verification.
func (s *Settings) IsUntrustedAppID(appID uint32) bool {
	for _, id := range s.UntrustedAppIDs {
		if id == appID {
			return true
		}
	}
	return false
}
