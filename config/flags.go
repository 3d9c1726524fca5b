package config

import (
	"github.com/spf13/pflag"
)

// ApplyFlags overlays the flags the operator set explicitly. Flags that are absent from the
// set or left at their default are ignored.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	strs := map[string]*string{
		"base-url":      &c.Catalog.BaseURL,
		"product":       &c.Catalog.ProductName,
		"cookie":        &c.Session.Cookie,
		"user-agent":    &c.Session.UserAgent,
		"state-backend": &c.State.Backend,
		"state-path":    &c.State.Path,
		"state-slot":    &c.State.Slot,
		"output":        &c.Output.Dir,
		"s3-endpoint":   &c.Output.S3.Endpoint,
		"s3-bucket":     &c.Output.S3.Bucket,
		"s3-prefix":     &c.Output.S3.Prefix,
		"log-level":     &c.Logging.Level,
		"log-format":    &c.Logging.Format,
		"metrics-addr":  &c.MetricsAddr,
	}
	for name, dst := range strs {
		if !changed(flags, name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	if changed(flags, "max-pages") {
		value, err := flags.GetInt("max-pages")
		if err != nil {
			return err
		}
		c.Catalog.MaxPagesPerYear = value
	}
	if changed(flags, "detail-delay") {
		value, err := flags.GetDuration("detail-delay")
		if err != nil {
			return err
		}
		c.Timing.DetailDelay = value
	}
	if changed(flags, "settle-delay") {
		value, err := flags.GetDuration("settle-delay")
		if err != nil {
			return err
		}
		c.Timing.SettleDelay = value
	}
	if changed(flags, "timeout") {
		value, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		c.Timing.Timeout = value
	}
	if changed(flags, "respect-robots") {
		value, err := flags.GetBool("respect-robots")
		if err != nil {
			return err
		}
		c.Session.RespectRobotsTxt = value
	}
	return nil
}

func changed(flags *pflag.FlagSet, name string) bool {
	return flags != nil && flags.Lookup(name) != nil && flags.Changed(name)
}
