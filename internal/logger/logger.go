// Package logger is the leveled logging façade used throughout lsp-proxy.
//
// The Dispatcher's event loop is single-threaded and has no per-request
// context to thread a logger through, so logging is a package-level
// facility rather than an injected dependency. Call Configure once at
// startup from the loaded GlobalConfig; Debug/Info/Warn/Error are safe
// to call before that (they fall back to stderr at Info level).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var (
	mu        sync.Mutex
	std       = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	level     atomic.Int32
	closeOnce sync.Once
	closer    io.Closer
)

func init() {
	level.Store(int32(LevelInfo))
}

// Configure points the logger at a file and sets the minimum level that
// gets emitted. An empty path keeps logging on stderr. When maxLogFiles is
// positive and the file already exists, it is first rotated: path.N
// becomes path.N+1 (up to path.<maxLogFiles>) and path becomes path.1.
// Rotation happens once per call, regardless of file size.
func Configure(path string, minLevel Level, maxLogFiles int) error {
	level.Store(int32(minLevel))

	if path == "" {
		return nil
	}

	rotated, err := rotate(path, maxLogFiles)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(rotated, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	std = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	closer = f
	mu.Unlock()
	return nil
}

// Close flushes the underlying log file, if any. Safe to call multiple times.
func Close() {
	closeOnce.Do(func() {
		mu.Lock()
		c := closer
		mu.Unlock()
		if c != nil {
			_ = c.Close()
		}
	})
}

func rotate(path string, maxLogFiles int) (string, error) {
	if maxLogFiles <= 0 {
		return path, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for i := maxLogFiles - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	_ = os.Rename(path, path+".1")
	return path, nil
}

func emit(l Level, msg string) {
	if l < Level(level.Load()) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	std.Printf("[%s] %s", l, msg)
}

func Debug(msg string) { emit(LevelDebug, msg) }
func Info(msg string)  { emit(LevelInfo, msg) }
func Warn(msg string)  { emit(LevelWarn, msg) }
func Error(msg string) { emit(LevelError, msg) }

// Debugf/Infof/Warnf/Errorf are convenience wrappers matching the
// fmt.Sprintf(...) call pattern used throughout the router and dispatcher.
func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }
