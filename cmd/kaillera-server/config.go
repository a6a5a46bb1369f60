package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	maxPlayers      int
	floodCap        int
	idleTimeout     time.Duration
	windowDepth     int
	readBufferSize  int
	gameTitle       string
	emuName         string
	serverKey       string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":27888", "UDP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	maxPlayers := flag.Int("max-players", 8, "Maximum players per room (spec caps this at 8)")
	floodCap := flag.Int("flood-cap", 256, "Per-player queued-frame safety bound before FloodControl drop")
	idleTimeout := flag.Duration("idle-timeout", 60*time.Second, "Per-player idle timeout before a forced drop")
	windowDepth := flag.Int("window-depth", 10, "Send window history depth (messages re-sent per datagram)")
	readBufferSize := flag.Int("read-buffer", 4096, "UDP read buffer size in bytes")
	gameTitle := flag.String("game-title", "Untitled", "Game title advertised for the default demo room")
	emuName := flag.String("emu-name", "Unknown", "Emulator name advertised for the default demo room")
	serverKey := flag.String("server-key", "", "Optional shared key new sessions must present (spec.md §1); empty disables the check")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxPlayers = *maxPlayers
	cfg.floodCap = *floodCap
	cfg.idleTimeout = *idleTimeout
	cfg.windowDepth = *windowDepth
	cfg.readBufferSize = *readBufferSize
	cfg.gameTitle = *gameTitle
	cfg.emuName = *emuName
	cfg.serverKey = *serverKey

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed
// configuration; it does not open sockets.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.maxPlayers <= 0 || c.maxPlayers > 8 {
		return fmt.Errorf("max-players must be in [1,8] (got %d)", c.maxPlayers)
	}
	if c.floodCap <= 0 {
		return fmt.Errorf("flood-cap must be > 0 (got %d)", c.floodCap)
	}
	if c.idleTimeout <= 0 {
		return fmt.Errorf("idle-timeout must be > 0")
	}
	if c.windowDepth <= 0 {
		return fmt.Errorf("window-depth must be > 0")
	}
	if c.readBufferSize <= 0 {
		return fmt.Errorf("read-buffer must be > 0")
	}
	return nil
}

// applyEnvOverrides maps KAILLERA_SERVER_* environment variables onto
// config fields unless the corresponding flag was explicitly set
// (flags win). Empty values, and numeric values that parse but are out
// of range, are ignored; the first unparsable numeric or duration value
// is returned as an error, mirroring the teacher's override pattern.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("KAILLERA_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("KAILLERA_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("KAILLERA_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("KAILLERA_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["max-players"]; !ok {
		if v, ok := get("KAILLERA_SERVER_MAX_PLAYERS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.maxPlayers = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid KAILLERA_SERVER_MAX_PLAYERS: %w", err)
			}
		}
	}
	if _, ok := set["flood-cap"]; !ok {
		if v, ok := get("KAILLERA_SERVER_FLOOD_CAP"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.floodCap = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid KAILLERA_SERVER_FLOOD_CAP: %w", err)
			}
		}
	}
	if _, ok := set["idle-timeout"]; !ok {
		if v, ok := get("KAILLERA_SERVER_IDLE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.idleTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid KAILLERA_SERVER_IDLE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["window-depth"]; !ok {
		if v, ok := get("KAILLERA_SERVER_WINDOW_DEPTH"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.windowDepth = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid KAILLERA_SERVER_WINDOW_DEPTH: %w", err)
			}
		}
	}
	if _, ok := set["server-key"]; !ok {
		if v, ok := get("KAILLERA_SERVER_KEY"); ok {
			c.serverKey = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("KAILLERA_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid KAILLERA_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
