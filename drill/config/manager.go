package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// extensions are tried in order when resolving a scenario name
var extensions = []string{".json", ".yaml", ".yml"}

// ConfigInfo summarizes a scenario file
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Rescuers    int    `json:"rescuers"`
}

// Manager handles drill scenario loading and caching
type Manager struct {
	configDir     string
	defaultConfig *DrillConfig
	configs       map[string]*DrillConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager. An empty configDir means
// only the built-in default is available.
func NewManager(configDir string) (*Manager, error) {
	if configDir != "" {
		if _, err := os.Stat(configDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("config directory does not exist: %s", configDir)
		}
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*DrillConfig),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// LoadConfig loads a scenario by name, with or without its extension
func (m *Manager) LoadConfig(name string) (*DrillConfig, error) {
	m.mu.RLock()
	if config, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return config.Clone(), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[name]; exists {
		return config.Clone(), nil
	}

	if m.configDir == "" {
		return nil, ErrConfigNotFound
	}

	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	config, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	m.configs[name] = config
	return config.Clone(), nil
}

// LoadFile reads a scenario file, filling unset fields from Default
func LoadFile(path string) (*DrillConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ListConfigs returns information about all valid scenarios in the directory
func (m *Manager) ListConfigs() ([]*ConfigInfo, error) {
	if m.configDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*ConfigInfo
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !isConfigExt(ext) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ext)
		config, err := m.LoadConfig(name)
		if err != nil {
			// Skip invalid configs
			continue
		}

		configs = append(configs, &ConfigInfo{
			Filename:    entry.Name(),
			ConfigID:    name,
			Name:        config.Name,
			Description: config.Description,
			Width:       config.Width,
			Height:      config.Height,
			Rescuers:    config.Rescuers,
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns a copy of the default configuration
func (m *Manager) GetDefault() *DrillConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig.Clone()
}

// SetDefault sets the default configuration by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// SaveConfig validates and writes a scenario to disk. The extension picks the format.
func (m *Manager) SaveConfig(name string, config *DrillConfig) error {
	if m.configDir == "" {
		return fmt.Errorf("no config directory configured")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	filename := name
	ext := filepath.Ext(name)
	if !isConfigExt(ext) {
		ext = ".json"
		filename = name + ext
	}

	var data []byte
	var err error
	if ext == ".json" {
		data, err = json.MarshalIndent(config, "", "  ")
	} else {
		data, err = yaml.Marshal(config)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[strings.TrimSuffix(filename, ext)] = config.Clone()
	m.mu.Unlock()

	return nil
}

// loadDefaultConfig prefers a "default" scenario file and falls back to the built-in one
func (m *Manager) loadDefaultConfig() error {
	if m.configDir != "" {
		if _, err := m.resolve("default"); err == nil {
			config, err := m.LoadConfig("default")
			if err != nil {
				return err
			}
			m.defaultConfig = config
			return nil
		}
	}

	m.defaultConfig = Default()
	return nil
}

// resolve finds the file backing a scenario name
func (m *Manager) resolve(name string) (string, error) {
	if isConfigExt(filepath.Ext(name)) {
		path := filepath.Join(m.configDir, name)
		if _, err := os.Stat(path); err != nil {
			return "", ErrConfigNotFound
		}
		return path, nil
	}
	for _, ext := range extensions {
		path := filepath.Join(m.configDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrConfigNotFound
}

func isConfigExt(ext string) bool {
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
