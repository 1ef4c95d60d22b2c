// Package config loads apexsim-server's runtime configuration from a
// TOML file, then overlays environment variables and command-line
// flags, in that increasing order of precedence (§1.2). It is the one
// place startup parameters are assembled before any other component is
// constructed.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every recognized option (§6).
type Config struct {
	TickRateHz                 int `toml:"tick_rate_hz"`
	MaxPlayersPerSession       int `toml:"max_players_per_session"`
	CountdownSeconds           int `toml:"countdown_seconds"`
	HeartbeatIntervalMs        int `toml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs         int `toml:"heartbeat_timeout_ms"`
	RaceTimeCeilingSeconds     int `toml:"race_time_ceiling_seconds"`
	SessionCleanupGraceSeconds int `toml:"session_cleanup_grace_seconds"`
	MaxLapLimit                int `toml:"max_lap_limit"`
	MaxSessionsSoftCap         int `toml:"max_sessions_soft_cap"`

	ReliableBindAddr string `toml:"reliable_bind_addr"`
	DatagramBindAddr string `toml:"datagram_bind_addr"`
	ProbeBindAddr    string `toml:"probe_bind_addr"`

	TLSCertPath string `toml:"tls_cert_path"`
	TLSKeyPath  string `toml:"tls_key_path"`
	TLSRequired bool   `toml:"tls_required"`

	CarsDir         string `toml:"cars_dir"`
	TracksDir       string `toml:"tracks_dir"`
	ReplayOutputDir string `toml:"replay_output_dir"`

	LogLevel string `toml:"log_level"`

	MalformedMessageThreshold     int `toml:"malformed_message_threshold"`
	MalformedMessageWindowSeconds int `toml:"malformed_message_window_seconds"`
	ShutdownGraceSeconds          int `toml:"shutdown_grace_seconds"`
}

// Defaults mirrors §1.2's "defaults are set before decoding so a partial
// or absent file still produces a runnable config".
func Defaults() Config {
	return Config{
		TickRateHz:                 240,
		MaxPlayersPerSession:       16,
		CountdownSeconds:           5,
		HeartbeatIntervalMs:        1000,
		HeartbeatTimeoutMs:         10000,
		RaceTimeCeilingSeconds:     900,
		SessionCleanupGraceSeconds: 60,
		MaxLapLimit:                50,
		MaxSessionsSoftCap:         99,
		ReliableBindAddr:           ":7700",
		DatagramBindAddr:           ":7701",
		ProbeBindAddr:              ":7702",
		CarsDir:                    "./content/cars",
		TracksDir:                  "./content/tracks",
		ReplayOutputDir:            "./replays",
		LogLevel:                   "info",
		MalformedMessageThreshold:     10,
		MalformedMessageWindowSeconds: 60,
		ShutdownGraceSeconds:          5,
	}
}

// Load reads path (if it exists), decodes it over the defaults, applies
// environment variable overrides, then flag overrides, and validates the
// result. A missing file is not an error; an unreadable or malformed one
// is (§1.2, §7 Fatal).
func Load(path string, args []string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// absent file: defaults stand.
		default:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if args != nil {
		if err := applyFlagOverrides(&cfg, args); err != nil {
			return nil, fmt.Errorf("config: parsing flags: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants whose violation is Fatal (§7):
// tls_required demands both cert and key paths.
func (c *Config) Validate() error {
	if c.TLSRequired && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return fmt.Errorf("config: tls_required is set but tls_cert_path/tls_key_path are missing")
	}
	if c.TickRateHz <= 0 {
		return fmt.Errorf("config: tick_rate_hz must be positive, got %d", c.TickRateHz)
	}
	if c.MaxPlayersPerSession <= 0 {
		return fmt.Errorf("config: max_players_per_session must be positive, got %d", c.MaxPlayersPerSession)
	}
	return nil
}

// TickPeriodMs derives the fixed timestep from the configured tick rate.
func (c *Config) TickPeriodMs() float64 {
	return 1000.0 / float64(c.TickRateHz)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APEXSIM_TICK_RATE_HZ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickRateHz = n
		}
	}
	if v := os.Getenv("APEXSIM_MAX_PLAYERS_PER_SESSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPlayersPerSession = n
		}
	}
	if v := os.Getenv("APEXSIM_RELIABLE_BIND_ADDR"); v != "" {
		cfg.ReliableBindAddr = v
	}
	if v := os.Getenv("APEXSIM_DATAGRAM_BIND_ADDR"); v != "" {
		cfg.DatagramBindAddr = v
	}
	if v := os.Getenv("APEXSIM_PROBE_BIND_ADDR"); v != "" {
		cfg.ProbeBindAddr = v
	}
	if v := os.Getenv("APEXSIM_TLS_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TLSRequired = b
		}
	}
	if v := os.Getenv("APEXSIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("APEXSIM_CARS_DIR"); v != "" {
		cfg.CarsDir = v
	}
	if v := os.Getenv("APEXSIM_TRACKS_DIR"); v != "" {
		cfg.TracksDir = v
	}
	if v := os.Getenv("APEXSIM_REPLAY_OUTPUT_DIR"); v != "" {
		cfg.ReplayOutputDir = v
	}
}

// applyFlagOverrides parses a small subset of flags that win over both
// file and environment (§1.2's three-tier precedence). Only the options
// operators are most likely to override at the command line are exposed;
// the rest are file/env-only.
func applyFlagOverrides(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("apexsim-server", flag.ContinueOnError)
	tickRate := fs.Int("tick-rate-hz", cfg.TickRateHz, "simulation tick rate in Hz")
	reliableAddr := fs.String("reliable-bind-addr", cfg.ReliableBindAddr, "reliable channel bind address")
	datagramAddr := fs.String("datagram-bind-addr", cfg.DatagramBindAddr, "datagram channel bind address")
	probeAddr := fs.String("probe-bind-addr", cfg.ProbeBindAddr, "health/ready probe bind address")
	logLevel := fs.String("log-level", cfg.LogLevel, "zerolog level name")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.TickRateHz = *tickRate
	cfg.ReliableBindAddr = *reliableAddr
	cfg.DatagramBindAddr = *datagramAddr
	cfg.ProbeBindAddr = *probeAddr
	cfg.LogLevel = *logLevel
	return nil
}
