package router

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rockerboo/lsp-proxy/internal/logger"
)

// UnhandledLevel controls how loudly dropped notifications (those that
// are neither forwarded, filtered into a special case, nor in the
// preserved set) are logged.
type UnhandledLevel string

const (
	UnhandledOff   UnhandledLevel = "off"
	UnhandledDebug UnhandledLevel = "debug"
	UnhandledInfo  UnhandledLevel = "info"
)

type unhandledConfig struct {
	level         UnhandledLevel
	window        time.Duration
	burstPerKey   int
	maxParamBytes int
}

type unhandledBucket struct {
	windowStart time.Time
	emitted     int
	suppressed  int
	suppressMsg bool
}

// UnhandledLogger rate-limits log lines for dropped notifications, keyed
// per direction+method+server, since this proxy can drop the same
// method independently from several servers.
type UnhandledLogger struct {
	once sync.Once
	cfg  unhandledConfig

	mu      sync.Mutex
	buckets map[string]*unhandledBucket
}

// NewUnhandledLogger builds a logger with defaults overridable by the
// LSP_PROXY_UNHANDLED_NOTIFICATIONS_* environment variables (see
// loadUnhandledConfig).
func NewUnhandledLogger() *UnhandledLogger {
	return &UnhandledLogger{buckets: map[string]*unhandledBucket{}}
}

func (u *UnhandledLogger) config() unhandledConfig {
	u.once.Do(func() {
		u.cfg = loadUnhandledConfig()
	})
	return u.cfg
}

func loadUnhandledConfig() unhandledConfig {
	cfg := unhandledConfig{
		level:         UnhandledDebug,
		window:        10 * time.Second,
		burstPerKey:   3,
		maxParamBytes: 4096,
	}

	if v := os.Getenv("LSP_PROXY_UNHANDLED_NOTIFICATIONS_LEVEL"); v != "" {
		switch UnhandledLevel(v) {
		case UnhandledOff, UnhandledDebug, UnhandledInfo:
			cfg.level = UnhandledLevel(v)
		}
	}
	if v := os.Getenv("LSP_PROXY_UNHANDLED_NOTIFICATIONS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.window = d
		}
	}
	if v := os.Getenv("LSP_PROXY_UNHANDLED_NOTIFICATIONS_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.burstPerKey = n
		}
	}
	if v := os.Getenv("LSP_PROXY_UNHANDLED_NOTIFICATIONS_MAX_PARAM_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.maxParamBytes = n
		}
	}
	return cfg
}

// Log records one dropped notification, subject to the per-key burst
// window.
func (u *UnhandledLogger) Log(direction, method, server string, rawParams *json.RawMessage) {
	cfg := u.config()
	if cfg.level == UnhandledOff {
		return
	}

	key := direction + "|" + method + "|" + server
	now := time.Now()

	u.mu.Lock()
	b := u.buckets[key]
	if b == nil {
		b = &unhandledBucket{windowStart: now}
		u.buckets[key] = b
	}

	if cfg.window > 0 && now.Sub(b.windowStart) >= cfg.window {
		if b.suppressed > 0 {
			msg := fmt.Sprintf("unhandled notification suppressed: direction=%s method=%s server=%s suppressed=%d window=%s", direction, method, server, b.suppressed, cfg.window)
			u.mu.Unlock()
			logByLevel(cfg.level, msg)
			u.mu.Lock()
		}
		b.windowStart = now
		b.emitted = 0
		b.suppressed = 0
		b.suppressMsg = false
	}

	if cfg.burstPerKey == 0 || b.emitted >= cfg.burstPerKey {
		b.suppressed++
		needSuppressMsg := !b.suppressMsg && cfg.burstPerKey > 0
		if needSuppressMsg {
			b.suppressMsg = true
		}
		u.mu.Unlock()
		if needSuppressMsg {
			logByLevel(cfg.level, fmt.Sprintf("unhandled notification flood detected: direction=%s method=%s server=%s burst=%d window=%s (suppressing further)", direction, method, server, cfg.burstPerKey, cfg.window))
		}
		return
	}

	b.emitted++
	u.mu.Unlock()

	msg := fmt.Sprintf("unhandled notification: direction=%s method=%s server=%s", direction, method, server)
	if rawParams != nil && len(*rawParams) > 0 && cfg.maxParamBytes != 0 {
		p := []byte(*rawParams)
		if cfg.maxParamBytes > 0 && len(p) > cfg.maxParamBytes {
			p = p[:cfg.maxParamBytes]
			msg = fmt.Sprintf("%s params=%s...(truncated)", msg, string(p))
		} else {
			msg = fmt.Sprintf("%s params=%s", msg, string(p))
		}
	}

	logByLevel(cfg.level, msg)
}

func logByLevel(level UnhandledLevel, msg string) {
	if level == UnhandledInfo {
		logger.Info(msg)
		return
	}
	logger.Debug(msg)
}
