package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ServerConfig struct {
	URL       string `json:"url"`
	TimeoutMS int    `json:"timeout_ms"`
}

type SessionConfig struct {
	Agent    string `json:"agent"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// ReopenLast 为 true 时启动自动打开最近一次会话。
	// ReopenLast reopens the most recently used session on start.
	ReopenLast bool `json:"reopen_last"`
}

type UIConfig struct {
	// Plain 强制使用行式 REPL 而非全屏 TUI。
	// Plain forces the line REPL instead of the full-screen TUI.
	Plain    bool   `json:"plain"`
	Markdown bool   `json:"markdown"`
	Theme    string `json:"theme"`
}

type StorageConfig struct {
	BaseDir  string `json:"base_dir"`
	LogMaxMB int    `json:"log_max_mb"`
}

type Config struct {
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`
	UI      UIConfig      `json:"ui"`
	Storage StorageConfig `json:"storage"`
}

type fileSessionConfig struct {
	Agent      *string `json:"agent"`
	Provider   *string `json:"provider"`
	Model      *string `json:"model"`
	ReopenLast *bool   `json:"reopen_last"`
}

type fileUIConfig struct {
	Plain    *bool   `json:"plain"`
	Markdown *bool   `json:"markdown"`
	Theme    *string `json:"theme"`
}

type fileConfig struct {
	Server  *ServerConfig      `json:"server"`
	Session *fileSessionConfig `json:"session"`
	UI      *fileUIConfig      `json:"ui"`
	Storage *StorageConfig     `json:"storage"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:       DefaultServerURL,
			TimeoutMS: DefaultServerTimeoutMS,
		},
		Session: SessionConfig{
			ReopenLast: true,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    DefaultTheme,
		},
		Storage: StorageConfig{
			BaseDir:  DefaultStorageBaseDir,
			LogMaxMB: DefaultLogMaxMB,
		},
	}
}

// Load merges defaults <- ~/.agi/config.json <- project config <- env.
// Config files may carry // and /* */ comments.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("AGI_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".agi", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"agi.config.json",
		".agi/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Server != nil {
		if strings.TrimSpace(fc.Server.URL) != "" {
			cfg.Server.URL = fc.Server.URL
		}
		if fc.Server.TimeoutMS > 0 {
			cfg.Server.TimeoutMS = fc.Server.TimeoutMS
		}
	}
	if fc.Session != nil {
		if fc.Session.Agent != nil {
			cfg.Session.Agent = *fc.Session.Agent
		}
		if fc.Session.Provider != nil {
			cfg.Session.Provider = *fc.Session.Provider
		}
		if fc.Session.Model != nil {
			cfg.Session.Model = *fc.Session.Model
		}
		if fc.Session.ReopenLast != nil {
			cfg.Session.ReopenLast = *fc.Session.ReopenLast
		}
	}
	if fc.UI != nil {
		if fc.UI.Plain != nil {
			cfg.UI.Plain = *fc.UI.Plain
		}
		if fc.UI.Markdown != nil {
			cfg.UI.Markdown = *fc.UI.Markdown
		}
		if fc.UI.Theme != nil && strings.TrimSpace(*fc.UI.Theme) != "" {
			cfg.UI.Theme = *fc.UI.Theme
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = fc.Storage.BaseDir
		}
		if fc.Storage.LogMaxMB > 0 {
			cfg.Storage.LogMaxMB = fc.Storage.LogMaxMB
		}
	}
}

func normalize(cfg *Config) error {
	cfg.Server.URL = strings.TrimRight(strings.TrimSpace(cfg.Server.URL), "/")
	if cfg.Server.URL == "" {
		cfg.Server.URL = Default().Server.URL
	}
	if cfg.Server.TimeoutMS <= 0 {
		cfg.Server.TimeoutMS = Default().Server.TimeoutMS
	}

	cfg.Session.Agent = strings.TrimSpace(cfg.Session.Agent)
	cfg.Session.Provider = strings.TrimSpace(cfg.Session.Provider)
	cfg.Session.Model = strings.TrimSpace(cfg.Session.Model)

	if strings.TrimSpace(cfg.UI.Theme) == "" {
		cfg.UI.Theme = Default().UI.Theme
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	if storageDir == "" {
		storageDir, err = expandPath(Default().Storage.BaseDir)
		if err != nil {
			return err
		}
	}
	cfg.Storage.BaseDir = storageDir
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = Default().Storage.LogMaxMB
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("AGI_SERVER_URL")); v != "" {
		cfg.Server.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("AGI_AGENT")); v != "" {
		cfg.Session.Agent = v
	}
	if v := strings.TrimSpace(os.Getenv("AGI_PROVIDER")); v != "" {
		cfg.Session.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("AGI_MODEL")); v != "" {
		cfg.Session.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("AGI_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid AGI_TIMEOUT_MS: %q", v)
		}
		cfg.Server.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("AGI_STORAGE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}

	return cfg, normalize(&cfg)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
