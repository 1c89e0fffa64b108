// Package config loads the JSON file describing which downstream
// servers to run and how, and turns it into the ServerState list the
// core consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// GlobalConfig holds proxy-wide settings not specific to any one server.
type GlobalConfig struct {
	LogFilePath string `json:"log_file_path"`
	LogLevel    string `json:"log_level"`
	MaxLogFiles int    `json:"max_log_files"`
}

// ServerConfig describes one downstream language server entry.
type ServerConfig struct {
	Name      string `json:"name"`
	Primary   bool   `json:"primary,omitempty"`
	Transport string `json:"transport"` // "stdio" | "tcp" | "websocket"

	// stdio
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// tcp / websocket
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	URL  string `json:"url,omitempty"` // websocket only, overrides host/port when set

	InitializationOptions map[string]any `json:"initialization_options,omitempty"`

	UseDiagnostics    bool `json:"use_diagnostics,omitempty"`
	UseFormatting     bool `json:"use_formatting,omitempty"`
	UseCompletion     bool `json:"use_completion,omitempty"`
	UseSignature      bool `json:"use_signature,omitempty"`
	UseExecuteCommand bool `json:"use_execute_command,omitempty"`
}

// Config is the top-level JSON document shape.
type Config struct {
	Global  GlobalConfig   `json:"global"`
	Servers []ServerConfig `json:"servers"`
}

// Load reads and parses path, applies ${VAR_NAME} environment
// expansion to every server's args, and resolves primary-server
// selection: the first entry is primary unless a later entry sets
// "primary": true explicitly.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("config: %s declares no servers", path)
	}

	for i := range cfg.Servers {
		cfg.Servers[i].Args = expandEnvVarsInArgs(cfg.Servers[i].Args)
	}

	resolvePrimary(&cfg)

	return &cfg, nil
}

// resolvePrimary implements "first-in-list is primary, unless an entry
// explicitly flags itself," so config authors aren't forced to reorder
// servers just to change which one is primary.
func resolvePrimary(cfg *Config) {
	for _, s := range cfg.Servers {
		if s.Primary {
			return
		}
	}
	cfg.Servers[0].Primary = true
}

// expandEnvVarsInArgs replaces ${VAR_NAME} placeholders with the
// environment variable's value, leaving the placeholder untouched if
// the variable isn't set. The bare $VAR_NAME form is expanded too; an
// unset variable written that way comes back as ${VAR_NAME}.
func expandEnvVarsInArgs(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = os.Expand(arg, func(key string) string {
			if val, ok := os.LookupEnv(key); ok {
				return val
			}
			return "${" + key + "}"
		})
	}
	return result
}
