// Package worldhost wires every subsystem (control-plane session
// server, TCP relay, UDP signalling, rate limiter, GeoIP, analytics)
// into a single running process, and owns the environment-driven
// Config that configures them.
//
// Grounded on R2Northstar-Atlas's pkg/atlas package for the
// env-reflection Config, the sdnotify-driven graceful Run loop, and
// the overall package shape; on original_source/src/cli/args.rs and
// src/server_state.rs for the specific settings and their defaults.
package worldhost

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds every environment-driven setting for a world host
// server. The env struct tag gives the environment variable name and
// its default (after `=`), or `?=` if the default may be explicitly
// overridden back to empty.
type Config struct {
	// Addr is the TCP control-plane listen address; UDP signalling
	// binds the same port number (spec.md §4.8).
	Addr string `env:"WORLDHOST_ADDR?=:9646"`

	// BaseAddr is the hostname external clients are told to use for
	// proxied connections (my-cid.BaseAddr). Empty disables the TCP
	// relay listener.
	BaseAddr string `env:"WORLDHOST_BASE_ADDR"`

	// InJavaPort is the TCP relay's own ingress listen port.
	InJavaPort int `env:"WORLDHOST_IN_JAVA_PORT=25565"`

	// ExJavaPort is the port advertised to clients for reaching this
	// server's relay, if different from InJavaPort (e.g. behind a
	// reverse proxy or port-forward).
	ExJavaPort int `env:"WORLDHOST_EX_JAVA_PORT=25565"`

	// AnalyticsTime is the interval between analytics.csv syncs. Zero
	// disables analytics entirely.
	AnalyticsTime time.Duration `env:"WORLDHOST_ANALYTICS_TIME=0s"`

	// ShutdownTime, if nonzero, automatically shuts the server down
	// after this long; useful for restart scripts.
	ShutdownTime time.Duration `env:"WORLDHOST_SHUTDOWN_TIME=0s"`

	// ExternalProxies is the path to a JSON file describing other
	// relay servers this one can direct clients to by proximity. See
	// ExternalProxy. Empty disables external-proxy selection.
	ExternalProxies string `env:"WORLDHOST_EXTERNAL_PROXIES=external_proxies.json"`

	// IP2Location is the path to a GeoIP database in the format
	// pkg/geoip.Load expects. Empty disables GeoIP lookups (and with
	// them, external-proxy selection and analytics-by-country).
	IP2Location string `env:"WORLDHOST_IP2LOCATION"`

	// LogLevel is the minimum log level (trace, debug, info, warn,
	// error, fatal).
	LogLevel zerolog.Level `env:"WORLDHOST_LOG_LEVEL=info"`

	// LogPretty switches between zerolog's human-readable console
	// writer and structured JSON output.
	LogPretty bool `env:"WORLDHOST_LOG_PRETTY"`

	// NotifySocket is systemd's $NOTIFY_SOCKET, used for sd_notify
	// READY=1/STOPPING=1/RELOADING=1 signals.
	NotifySocket string `env:"NOTIFY_SOCKET"`
}

// UnmarshalEnv unmarshals an array of "KEY=value" environment
// entries into c, applying the defaults named in each env tag. If
// incremental is true, a variable absent from es leaves the
// corresponding field untouched rather than being reset to its
// default.
func (c *Config) UnmarshalEnv(es []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range es {
		if k, v, ok := strings.Cut(e, "="); ok {
			em[k] = v
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}

		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		switch cvf := cv.FieldByName(ctf.Name); cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		default:
			return fmt.Errorf("unhandled config field type %T (%s)", cvf.Interface(), env)
		}
	}

	for key, val := range em {
		if val != "" && strings.HasPrefix(key, "WORLDHOST_") {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
