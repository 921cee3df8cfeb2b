package config

import (
	"reflect"
	"strings"

	logx "rpcextractor/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (rpc/nats passwords) are reduced to
// set/unset booleans and never logged.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.RPC != newCfg.RPC {
		changed = append(changed, "rpc")
		attrs = append(attrs,
			logx.String("rpc.address", strings.TrimSpace(newCfg.RPC.Address)),
			logx.Bool("rpc.cookie_file_set", strings.TrimSpace(newCfg.RPC.CookieFile) != ""),
			logx.Bool("rpc.password_set", strings.TrimSpace(newCfg.RPC.Password) != ""),
			logx.String("rpc.timeout", strings.TrimSpace(newCfg.RPC.Timeout)),
		)
	}

	if oldCfg.Nats != newCfg.Nats {
		changed = append(changed, "nats")
		attrs = append(attrs,
			logx.String("nats.address", strings.TrimSpace(newCfg.Nats.Address)),
			logx.Bool("nats.username_set", strings.TrimSpace(newCfg.Nats.Username) != ""),
			logx.Bool("nats.password_set", strings.TrimSpace(newCfg.Nats.Password) != "" ||
				strings.TrimSpace(newCfg.Nats.PasswordFile) != ""),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.String("metrics.address", strings.TrimSpace(newCfg.Metrics.Address)))
	}

	if oldCfg.Extractor != newCfg.Extractor {
		changed = append(changed, "extractor")
		disabled := 0
		for _, off := range newCfg.Extractor.Disabled() {
			if off {
				disabled++
			}
		}
		attrs = append(attrs,
			logx.String("extractor.interval", strings.TrimSpace(newCfg.Extractor.Interval)),
			logx.Int("extractor.disabled_methods", disabled),
		)
	}

	return changed, attrs
}

// RequiresRestart reports whether the given changed sections cannot be
// applied to a running extractor. Only logging changes apply live; the
// method catalog, RPC client, NATS connection and metrics listener are
// fixed at startup.
func RequiresRestart(changed []string) bool {
	for _, c := range changed {
		if c != "logging" {
			return true
		}
	}
	return false
}
