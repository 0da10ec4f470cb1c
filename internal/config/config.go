package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Duration is a time.Duration written as a string ("5m", "250ms") in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	LogLevel     string             `toml:"log_level"`
	Serial       SerialConfig       `toml:"serial"`
	TCP          TCPConfig          `toml:"tcp"`
	Translations TranslationsConfig `toml:"translations"`
	Status       StatusConfig       `toml:"status"`
	S3           S3Config           `toml:"s3"`
}

type SerialConfig struct {
	// Port is empty to auto-detect the first micro:bit
	Port        string   `toml:"port"`
	BaudRate    int      `toml:"baud_rate"`
	MountDir    string   `toml:"mount_dir"`
	ResumeDelay Duration `toml:"resume_delay"`
	Retry       Duration `toml:"retry"`
}

// TCPConfig selects a networked serial server instead of a local port
type TCPConfig struct {
	Addr        string   `toml:"addr"`
	DialTimeout Duration `toml:"dial_timeout"`
}

type TranslationsConfig struct {
	URL            string   `toml:"url"`
	File           string   `toml:"file"`
	PollInterval   Duration `toml:"poll_interval"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type StatusConfig struct {
	Addr string `toml:"addr"`
}

type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
	UseSSL          bool   `toml:"use_ssl"`
	SkipVerify      bool   `toml:"skip_verify"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Serial: SerialConfig{
			BaudRate: 115200,
			Retry:    Duration{5 * time.Second},
		},
		TCP: TCPConfig{
			DialTimeout: Duration{5 * time.Second},
		},
		Translations: TranslationsConfig{
			PollInterval:   Duration{5 * time.Minute},
			RequestTimeout: Duration{10 * time.Second},
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:9110",
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("key", key.String()).Str("file", path).Msg("Ignoring unknown config key")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.ResumeDelay.Duration < 0 || c.Serial.Retry.Duration < 0 {
		errs = append(errs, errors.New("serial durations must not be negative"))
	}
	if c.Translations.URL != "" && c.Translations.File != "" {
		errs = append(errs, errors.New("translations.url and translations.file are mutually exclusive"))
	}
	if c.Translations.URL != "" && c.Translations.PollInterval.Duration < time.Second {
		errs = append(errs, fmt.Errorf("translations.poll_interval must be at least 1s, got %s", c.Translations.PollInterval))
	}
	if c.Translations.RequestTimeout.Duration <= 0 {
		errs = append(errs, errors.New("translations.request_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// UseTCP reports whether the hub is reached over TCP rather than USB serial
func (c Config) UseTCP() bool {
	return c.TCP.Addr != ""
}

func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
