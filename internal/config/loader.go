package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DOCFLOW_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// nestedSections lists second-level config blocks so that
// DOCFLOW_STORE_QDRANT_HOST maps to store.qdrant.host rather than
// store.qdrant_host.
var nestedSections = map[string]map[string]bool{
	"store":      {"sqlite": true, "qdrant": true, "chromem": true},
	"embeddings": {"fastembed": true, "tei": true, "openai": true},
}

// Load reads configuration from an optional file and the environment.
//
// Precedence (highest first):
//  1. DOCFLOW_* environment variables
//  2. The config file (YAML, or TOML when the path ends in .toml)
//  3. Built-in defaults
//
// An empty path loads ~/.config/docflow/config.yaml when it exists and
// otherwise uses the environment alone. An explicit path that does not
// exist is an error.
//
// Environment mapping splits on the first underscore after the prefix,
// plus one more level for the nested store and embeddings blocks:
//
//	DOCFLOW_TEMPORAL_HOST_PORT        -> temporal.host_port
//	DOCFLOW_STORE_BACKEND             -> store.backend
//	DOCFLOW_STORE_QDRANT_HOST         -> store.qdrant.host
//	DOCFLOW_EMBEDDINGS_TEI_BASE_URL   -> embeddings.tei.base_url
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps DOCFLOW_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	if sub, field, ok := strings.Cut(rest, "_"); ok && nestedSections[section][sub] {
		return section + "." + sub + "." + field
	}
	return section + "." + rest
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".config", "docflow", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	// Open once and stat the descriptor to avoid a TOCTOU window.
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFile(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parser = TOMLParser()
	}

	if err := k.Load(rawbytes.Provider(content), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// validateConfigFile rejects directories, oversized files and files other
// users can write to.
func validateConfigFile(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o022 != 0 {
		return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", info.Mode().Perm())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
