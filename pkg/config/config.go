// Package config loads and validates cwproxy's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the recognized options for the proxy.
type Config struct {
	MaxSessionsPerCookie int    `json:"max_sessions_per_cookie"`
	AccountTaskInterval  int    `json:"account_task_interval"`
	PadtxtLength         int    `json:"padtxt_length"`
	PadTokens            string `json:"pad_tokens"`
	CustomPrompt         string `json:"custom_prompt"`
	ClaudeAPIBaseURL     string `json:"claude_api_baseurl"`
	ClaudeWebBaseURL     string `json:"claude_web_baseurl"`
	NoFilesystemMode     bool   `json:"no_filesystem_mode"`
	DataFolder           string `json:"data_folder"`

	LogLevel      string `json:"log_level"`
	LogFile       string `json:"log_file"`
	TelegramToken string `json:"telegram_token"`
	TelegramChat  int64  `json:"telegram_chat_id"`
}

const defaultPadTokens = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultConfig returns the configuration used when no file or override is present.
func DefaultConfig() *Config {
	return &Config{
		MaxSessionsPerCookie: 1,
		AccountTaskInterval:  300,
		PadtxtLength:         0,
		PadTokens:            defaultPadTokens,
		CustomPrompt:         "",
		ClaudeAPIBaseURL:     "https://api.anthropic.com",
		ClaudeWebBaseURL:     "https://claude.ai",
		NoFilesystemMode:     false,
		DataFolder:           ".cwproxy",
		LogLevel:             "INFO",
		LogFile:              "",
	}
}

// GetConfigPaths returns the paths searched for a configuration file, in priority order.
// An explicit cliPath always wins. Failing that, a project-local file is preferred
// over the user's home directory.
func GetConfigPaths(cliPath string) []string {
	var paths []string
	if cliPath != "" {
		paths = append(paths, cliPath)
	}
	paths = append(paths, filepath.Join(".cwproxy", "config.json"))
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cwproxy", "config.json"))
	}
	return paths
}

// allowedEnvVars whitelists the environment variables that may override config fields,
// mapping each to the struct field it feeds.
var allowedEnvVars = map[string]string{
	"CWPROXY_MAX_SESSIONS_PER_COOKIE": "MaxSessionsPerCookie",
	"CWPROXY_ACCOUNT_TASK_INTERVAL":   "AccountTaskInterval",
	"CWPROXY_PADTXT_LENGTH":           "PadtxtLength",
	"CWPROXY_PAD_TOKENS":              "PadTokens",
	"CWPROXY_CUSTOM_PROMPT":           "CustomPrompt",
	"CWPROXY_CLAUDE_API_BASEURL":      "ClaudeAPIBaseURL",
	"CWPROXY_CLAUDE_WEB_BASEURL":      "ClaudeWebBaseURL",
	"CWPROXY_NO_FILESYSTEM_MODE":      "NoFilesystemMode",
	"CWPROXY_DATA_FOLDER":             "DataFolder",
	"CWPROXY_LOG_LEVEL":               "LogLevel",
	"CWPROXY_LOG_FILE":                "LogFile",
	"CWPROXY_TELEGRAM_TOKEN":          "TelegramToken",
	"CWPROXY_TELEGRAM_CHAT_ID":        "TelegramChat",
}

// Load resolves configuration from the first existing path in GetConfigPaths, applies
// environment overrides, validates the result, and writes a default file if none existed.
// It returns the resolved config and the path it was loaded from (or would have been written to).
func Load(cliPath string) (*Config, string, error) {
	cfg := DefaultConfig()

	paths := GetConfigPaths(cliPath)
	var loadedFrom string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", fmt.Errorf("config: read %s: %w", p, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("config: parse %s: %w", p, err)
		}
		loadedFrom = p
		break
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	if loadedFrom == "" && len(paths) > 0 {
		target := paths[0]
		if err := cfg.Save(target); err != nil {
			return nil, "", fmt.Errorf("config: write default %s: %w", target, err)
		}
		loadedFrom = target
	}

	return cfg, loadedFrom, nil
}

func applyEnvOverrides(cfg *Config) {
	for env, field := range allowedEnvVars {
		val, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		switch field {
		case "MaxSessionsPerCookie":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.MaxSessionsPerCookie = n
			}
		case "AccountTaskInterval":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.AccountTaskInterval = n
			}
		case "PadtxtLength":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.PadtxtLength = n
			}
		case "PadTokens":
			cfg.PadTokens = val
		case "CustomPrompt":
			cfg.CustomPrompt = val
		case "ClaudeAPIBaseURL":
			cfg.ClaudeAPIBaseURL = val
		case "ClaudeWebBaseURL":
			cfg.ClaudeWebBaseURL = val
		case "NoFilesystemMode":
			cfg.NoFilesystemMode = strings.EqualFold(val, "true") || val == "1"
		case "DataFolder":
			cfg.DataFolder = val
		case "LogLevel":
			cfg.LogLevel = val
		case "LogFile":
			cfg.LogFile = val
		case "TelegramToken":
			cfg.TelegramToken = val
		case "TelegramChat":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				cfg.TelegramChat = n
			}
		}
	}
}

// Validate checks the recognized options for internally consistent values.
func (c *Config) Validate() error {
	if c.MaxSessionsPerCookie < 1 {
		return fmt.Errorf("config: max_sessions_per_cookie must be >= 1, got %d", c.MaxSessionsPerCookie)
	}
	if c.AccountTaskInterval < 1 {
		return fmt.Errorf("config: account_task_interval must be >= 1 second, got %d", c.AccountTaskInterval)
	}
	if c.PadtxtLength < 0 {
		return fmt.Errorf("config: padtxt_length must be >= 0, got %d", c.PadtxtLength)
	}
	if c.PadtxtLength > 0 && c.PadTokens == "" {
		return fmt.Errorf("config: pad_tokens must not be empty when padtxt_length > 0")
	}
	if c.ClaudeAPIBaseURL == "" {
		return fmt.Errorf("config: claude_api_baseurl must not be empty")
	}
	if c.ClaudeWebBaseURL == "" {
		return fmt.Errorf("config: claude_web_baseurl must not be empty")
	}
	if !c.NoFilesystemMode && c.DataFolder == "" {
		return fmt.Errorf("config: data_folder must not be empty unless no_filesystem_mode is set")
	}
	return nil
}

// Save writes the config as indented JSON to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AccountsFilePath returns the path to the persisted account pool, or "" in no-filesystem mode.
func (c *Config) AccountsFilePath() string {
	if c.NoFilesystemMode {
		return ""
	}
	return filepath.Join(c.DataFolder, "accounts.json")
}
