package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Setting source names accepted by --setting-sources.
const (
	SourceUser    = "user"
	SourceProject = "project"
	SourceLocal   = "local"
)

// configDirName is the per-user and per-project settings directory.
const configDirName = ".agentconsole"

// fileConfig is one settings layer. Pointer fields distinguish "unset"
// from zero values so later layers only override what they mention.
type fileConfig struct {
	Endpoint     *string           `yaml:"endpoint"`
	TimeoutMS    *int              `yaml:"timeout_ms"`
	Headers      map[string]string `yaml:"headers"`
	Fields       map[string]any    `yaml:"fields"`
	CustomFields []CustomField     `yaml:"custom_fields"`
	LogLevel     *string           `yaml:"log_level"`
	LogFile      *string           `yaml:"log_file"`
	Capture      *bool             `yaml:"capture"`
}

// SettingsSource is one resolved settings file.
type SettingsSource struct {
	// Source is user, project or local.
	Source string
	// Path is the settings file location.
	Path string
}

// Load merges user, project and local settings, then the --settings value,
// over the defaults and validates the result. Missing files are skipped.
func Load(cwd string, sources []string, extraSettings string) (*Config, error) {
	sourceSet := normalizeSources(sources)
	paths, err := SettingsPaths(cwd)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	for _, item := range paths {
		if len(sourceSet) > 0 && !sourceSet[item.Source] {
			continue
		}
		layer, err := loadSettingsFromFile(item.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		cfg.apply(layer)
		cfg.Sources = append(cfg.Sources, item.Path)
	}

	if extraSettings != "" {
		layer, err := loadSettingsFlag(extraSettings)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			cfg.apply(layer)
			cfg.Sources = append(cfg.Sources, "--settings")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SettingsPaths resolves user, project and local settings files.
func SettingsPaths(cwd string) ([]SettingsSource, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	projectRoot := findProjectRoot(cwd)

	return []SettingsSource{
		{Source: SourceUser, Path: filepath.Join(home, configDirName, "config.yaml")},
		{Source: SourceProject, Path: filepath.Join(projectRoot, configDirName, "config.yaml")},
		{Source: SourceLocal, Path: filepath.Join(cwd, configDirName, "config.yaml")},
	}, nil
}

// normalizeSources returns a set of allowed sources, or nil if unrestricted.
func normalizeSources(sources []string) map[string]bool {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[string]bool)
	for _, entry := range sources {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			set[strings.ToLower(part)] = true
		}
	}
	return set
}

// loadSettingsFromFile reads one settings layer from disk.
func loadSettingsFromFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layer, err := parseSettings(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layer, nil
}

// loadSettingsFlag resolves a settings override from a path or inline
// JSON/YAML.
func loadSettingsFlag(value string) (*fileConfig, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.Contains(trimmed, "\n") {
		return parseSettings([]byte(trimmed))
	}
	return loadSettingsFromFile(trimmed)
}

// parseSettings parses YAML settings; JSON is accepted as a YAML subset.
func parseSettings(raw []byte) (*fileConfig, error) {
	var layer fileConfig
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &layer, nil
}

// findProjectRoot locates the nearest parent directory containing .git.
func findProjectRoot(cwd string) string {
	current := filepath.Clean(cwd)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return cwd
		}
		current = parent
	}
}
