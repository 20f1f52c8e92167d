package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold 在当前工作目录下初始化项目级配置模板（./.agi/config.json）。
// InitProjectConfigScaffold initializes a project-level config scaffold (./.agi/config.json) in the current working directory.
func InitProjectConfigScaffold() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get current working directory: %w", err)
	}

	dir := filepath.Join(cwd, ".agi")
	path := filepath.Join(dir, "config.json")

	// 若项目已经有 ./.agi/config.json，则尊重用户现有配置。
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("project config path is a directory: %s", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .agi: %w", err)
	}

	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}

	return nil
}

// WriteSessionDefaults 将默认 agent/provider/model 写入项目配置（./.agi/config.json）。
// WriteSessionDefaults writes default agent/provider/model to project config (./.agi/config.json).
func WriteSessionDefaults(projectDir, agent, provider, model string) error {
	dir := filepath.Join(strings.TrimSpace(projectDir), ".agi")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .agi: %w", err)
	}
	path := filepath.Join(dir, "config.json")
	var root map[string]any
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(stripJSONComments(data), &root); err != nil {
			root = nil
		}
	}
	if root == nil {
		root = make(map[string]any)
	}
	sessionMap, _ := root["session"].(map[string]any)
	if sessionMap == nil {
		sessionMap = make(map[string]any)
	}
	if v := strings.TrimSpace(agent); v != "" {
		sessionMap["agent"] = v
	}
	if v := strings.TrimSpace(provider); v != "" {
		sessionMap["provider"] = v
	}
	if v := strings.TrimSpace(model); v != "" {
		sessionMap["model"] = v
	}
	root["session"] = sessionMap
	data, err = json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
