package config

import (
	"github.com/spf13/pflag"
)

// Flag names that override config file values
const (
	FlagLogLevel        = "log-level"
	FlagPort            = "port"
	FlagTCP             = "tcp"
	FlagTranslationsURL = "translations-url"
	FlagStatusAddr      = "status-addr"
)

// AddFlags registers the override flags on fs
func AddFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(FlagLogLevel, def.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.String(FlagPort, "", "Serial port of the micro:bit (default: auto-detect)")
	fs.String(FlagTCP, "", "Reach the hub through a TCP serial server at host:port")
	fs.String(FlagTranslationsURL, "", "URL of the translations document")
	fs.String(FlagStatusAddr, def.Status.Addr, "Listen address of the status server, empty to disable")
}

// ApplyFlags copies explicitly set flags over c
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	overrides := []struct {
		name string
		dst  *string
	}{
		{FlagLogLevel, &c.LogLevel},
		{FlagPort, &c.Serial.Port},
		{FlagTCP, &c.TCP.Addr},
		{FlagTranslationsURL, &c.Translations.URL},
		{FlagStatusAddr, &c.Status.Addr},
	}
	for _, o := range overrides {
		f := fs.Lookup(o.name)
		if f == nil || !f.Changed {
			continue
		}
		v, err := fs.GetString(o.name)
		if err != nil {
			return err
		}
		*o.dst = v
	}

	if fs.Changed(FlagTranslationsURL) {
		c.Translations.File = ""
	}
	return c.Validate()
}
