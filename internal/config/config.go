// Package config loads hdsfetch settings from defaults, an optional config
// file, HDSFETCH_* environment variables and bound command line flags.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"hdsfetch/internal/filesystem"
	"hdsfetch/internal/transport"

	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyLogLevel       = "log.level"
	KeyLogJSON        = "log.json"
	KeyUserAgent      = "http.user_agent"
	KeyTimeout        = "http.timeout"
	KeySOCKSProxy     = "http.socks_proxy"
	KeyTLSFingerprint = "http.tls_fingerprint"
	KeyPlayerID       = "hds.player_id"
	KeyPlayerKey      = "hds.player_key"
	KeyBaseURL        = "hds.base_url"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "hdsfetch"

// EnvKeyReplacer is a strings.Replacer used to normalize configuration keys into environment variable naming conventions.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Field is one configuration key with its default value.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable overriding the field.
func (f Field) Env() string {
	return strings.ToUpper(EnvPrefix + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Defaults lists every key.
var Defaults = []Field{
	{KeyLogLevel, "info", "Log level (error, warn, info, debug)"},
	{KeyLogJSON, false, "Write logs as JSON"},
	{KeyUserAgent, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "User-Agent header sent with every request"},
	{KeyTimeout, 30 * time.Second, "Connect and I/O timeout"},
	{KeySOCKSProxy, "", "SOCKS5 proxy as host:port"},
	{KeyTLSFingerprint, transport.FingerprintChrome, "TLS client hello fingerprint (chrome, go)"},
	{KeyPlayerID, "", "Player identifier for player verification"},
	{KeyPlayerKey, "", "Hex encoded HMAC key for player verification"},
	{KeyBaseURL, "", "Streaming host that media paths are resolved against"},
}

// Config holds the fully processed application configuration.
type Config struct {
	LogLevel string
	LogJSON  bool
	HTTP     transport.Config
	PlayerID string
	// PlayerKey is decoded from its hex form.
	PlayerKey []byte
	BaseURL   string
}

// Setup registers defaults and environment bindings on v and reads the
// config file at path. An empty path looks for hdsfetch.{toml,yaml,json}
// in the working directory and tolerates its absence.
func Setup(v *viper.Viper, path string) error {
	v.SetFs(filesystem.API())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.SetTypeByDefaultValue(true)
	for _, f := range Defaults {
		v.SetDefault(f.Key, f.Value)
		if err := v.BindEnv(f.Key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", f.Env(), err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(EnvPrefix)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// LoadConfig turns the raw values held by v into a Config. It performs the
// crucial step of decoding the player key into bytes.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel: v.GetString(KeyLogLevel),
		LogJSON:  v.GetBool(KeyLogJSON),
		HTTP: transport.Config{
			UserAgent:   v.GetString(KeyUserAgent),
			Timeout:     v.GetDuration(KeyTimeout),
			SOCKSProxy:  v.GetString(KeySOCKSProxy),
			Fingerprint: strings.ToLower(v.GetString(KeyTLSFingerprint)),
		},
		PlayerID: v.GetString(KeyPlayerID),
		BaseURL:  v.GetString(KeyBaseURL),
	}

	if cfg.HTTP.Timeout < 0 {
		return nil, fmt.Errorf("invalid %s: %s is negative", KeyTimeout, cfg.HTTP.Timeout)
	}
	switch cfg.HTTP.Fingerprint {
	case transport.FingerprintChrome, transport.FingerprintGo:
	default:
		return nil, fmt.Errorf("invalid %s: %q is neither %q nor %q", KeyTLSFingerprint, cfg.HTTP.Fingerprint, transport.FingerprintChrome, transport.FingerprintGo)
	}

	if keyHex := strings.TrimSpace(v.GetString(KeyPlayerKey)); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex %s: %w", KeyPlayerKey, err)
		}
		cfg.PlayerKey = key
	}

	return cfg, nil
}
