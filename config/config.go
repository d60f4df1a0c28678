// Package config holds the process-wide settings consulted by the shader
// program manager.
//
// Settings are read once at startup from a TOML file. A missing file yields
// [Default]; unknown keys are ignored.
//
//	use_shader_cache = true
//	separable_shader = true
//	cache_dir = "~/.cache/shadercache"
//	log_level = "info"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// DefaultCacheDir is the cache directory used when none is configured.
const DefaultCacheDir = "~/.cache/shadercache"

// Settings configures shader caching.
type Settings struct {
	// UseShaderCache enables the persistent program binary cache.
	// Only consulted when programs are linked monolithically.
	UseShaderCache bool `toml:"use_shader_cache"`

	// SeparableShader allows independently bindable stages when the driver
	// supports them. Disabling it forces monolithic linking.
	SeparableShader bool `toml:"separable_shader"`

	// CacheDir is the directory holding per-title cache files.
	// A leading ~ is expanded to the user's home directory.
	CacheDir string `toml:"cache_dir"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		UseShaderCache:  true,
		SeparableShader: true,
		CacheDir:        DefaultCacheDir,
		LogLevel:        "info",
	}
}

// Load reads settings from a TOML file. Keys absent from the file keep their
// default values. A missing file returns Default and no error.
func Load(path string) (Settings, error) {
	s := Default()
	p, err := homedir.Expand(path)
	if err != nil {
		return s, fmt.Errorf("config: expand %q: %w", path, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("config: read %s: %w", p, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", p, err)
	}
	return s, nil
}

// Save writes s to path as TOML, creating parent directories.
func (s Settings) Save(path string) error {
	p, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("config: expand %q: %w", path, err)
	}
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", p, err)
	}
	return nil
}

// CacheDirPath returns CacheDir with ~ expanded. An empty CacheDir falls
// back to DefaultCacheDir.
func (s Settings) CacheDirPath() (string, error) {
	dir := s.CacheDir
	if dir == "" {
		dir = DefaultCacheDir
	}
	p, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("config: expand cache dir %q: %w", dir, err)
	}
	return p, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
