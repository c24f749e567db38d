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
	"sync"
)

// ResourceConfig is the on-disk shape of one registered repository.
type ResourceConfig struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Branch       string `json:"branch"`
	SpecialNotes string `json:"specialNotes,omitempty"`
	SearchPath   string `json:"searchPath,omitempty"`
}

// AgentConfig selects the backend process and the (provider, model)
// injected into every session.
type AgentConfig struct {
	Command       string `json:"command"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	BootTimeoutMS int    `json:"boot_timeout_ms"`
}

// ServerConfig holds the backend port window and the HTTP wrapper addr.
type ServerConfig struct {
	BasePort   int    `json:"base_port"`
	PortWindow int    `json:"port_window"`
	HTTPAddr   string `json:"http_addr"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type Config struct {
	Resources []ResourceConfig `json:"resources"`
	Agent     AgentConfig      `json:"agent"`
	Server    ServerConfig     `json:"server"`
	Storage   StorageConfig    `json:"storage"`
}

type fileConfig struct {
	Resources *[]ResourceConfig `json:"resources"`
	Agent     *AgentConfig      `json:"agent"`
	Server    *ServerConfig     `json:"server"`
	Storage   *StorageConfig    `json:"storage"`
}

func Default() Config {
	return Config{
		Agent: AgentConfig{
			Command:       "opencode",
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-5",
			BootTimeoutMS: 20000,
		},
		Server: ServerConfig{
			BasePort:   3420,
			PortWindow: 30,
			HTTPAddr:   "127.0.0.1:8422",
		},
		Storage: StorageConfig{
			BaseDir: "~/.bctx",
		},
	}
}

// Load builds the effective config: defaults, then the global file,
// then the project file (or an explicit path), then env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("BCTX_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFilePath is the document the resource registry writes back to.
func (c Config) ConfigFilePath() string {
	return filepath.Join(c.Storage.BaseDir, "config.json")
}

// ReposDir is the central clone cache root.
func (c Config) ReposDir() string {
	return filepath.Join(c.Storage.BaseDir, "repos")
}

// WorkspacesDir is the composite worktree root.
func (c Config) WorkspacesDir() string {
	return filepath.Join(c.Storage.BaseDir, "workspaces")
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".bctx", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"bctx.config.json",
		".bctx/config.json",
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
	var fc fileConfig
	if err := json.Unmarshal(cleaned, &fc); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}

	if fc.Resources != nil {
		cfg.Resources = append([]ResourceConfig(nil), (*fc.Resources)...)
	}
	if fc.Agent != nil {
		cfg.Agent = mergeAgent(cfg.Agent, *fc.Agent)
	}
	if fc.Server != nil {
		cfg.Server = mergeServer(cfg.Server, *fc.Server)
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	return nil
}

func mergeAgent(base, override AgentConfig) AgentConfig {
	if strings.TrimSpace(override.Command) != "" {
		base.Command = override.Command
	}
	if strings.TrimSpace(override.Provider) != "" {
		base.Provider = override.Provider
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if override.BootTimeoutMS > 0 {
		base.BootTimeoutMS = override.BootTimeoutMS
	}
	return base
}

func mergeServer(base, override ServerConfig) ServerConfig {
	if override.BasePort > 0 {
		base.BasePort = override.BasePort
	}
	if override.PortWindow > 0 {
		base.PortWindow = override.PortWindow
	}
	if strings.TrimSpace(override.HTTPAddr) != "" {
		base.HTTPAddr = override.HTTPAddr
	}
	return base
}

func mergeStorage(base, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	return base
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("BCTX_HOME")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("BCTX_AGENT_COMMAND")); v != "" {
		cfg.Agent.Command = v
	}
	if v := strings.TrimSpace(os.Getenv("BCTX_PROVIDER")); v != "" {
		cfg.Agent.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("BCTX_MODEL")); v != "" {
		cfg.Agent.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("BCTX_BASE_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid BCTX_BASE_PORT: %q", v)
		}
		cfg.Server.BasePort = n
	}
	return nil
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Agent.Command) == "" {
		cfg.Agent.Command = def.Agent.Command
	}
	if cfg.Agent.BootTimeoutMS <= 0 {
		cfg.Agent.BootTimeoutMS = def.Agent.BootTimeoutMS
	}
	if cfg.Server.BasePort <= 0 || cfg.Server.BasePort > 65535 {
		cfg.Server.BasePort = def.Server.BasePort
	}
	if cfg.Server.PortWindow <= 0 {
		cfg.Server.PortWindow = def.Server.PortWindow
	}
	if strings.TrimSpace(cfg.Server.HTTPAddr) == "" {
		cfg.Server.HTTPAddr = def.Server.HTTPAddr
	}

	baseDir := strings.TrimSpace(cfg.Storage.BaseDir)
	if baseDir == "" {
		baseDir = def.Storage.BaseDir
	}
	expanded, err := expandPath(baseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = expanded

	for i := range cfg.Resources {
		cfg.Resources[i].Name = strings.ToLower(strings.TrimSpace(cfg.Resources[i].Name))
		if strings.TrimSpace(cfg.Resources[i].Branch) == "" {
			cfg.Resources[i].Branch = "main"
		}
	}
	return nil
}

// saveMu serialises all write-backs to the config document.
var saveMu sync.Mutex

// SaveResources rewrites the "resources" key of the config document at
// path, preserving every other key. Creates the file and its directory
// if absent.
func SaveResources(path string, resources []ResourceConfig) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is empty")
	}

	saveMu.Lock()
	defer saveMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	var root map[string]any
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(stripJSONComments(data), &root); err != nil {
			root = nil
		}
	}
	if root == nil {
		root = make(map[string]any)
	}

	list := make([]any, 0, len(resources))
	for _, r := range resources {
		entry := map[string]any{
			"name":   r.Name,
			"url":    r.URL,
			"branch": r.Branch,
		}
		if strings.TrimSpace(r.SpecialNotes) != "" {
			entry["specialNotes"] = r.SpecialNotes
		}
		if strings.TrimSpace(r.SearchPath) != "" {
			entry["searchPath"] = r.SearchPath
		}
		list = append(list, entry)
	}
	root["resources"] = list

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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
