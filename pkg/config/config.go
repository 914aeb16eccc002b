/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
)

// Config represents the record vault configuration
type Config struct {
	DataDir   string         `yaml:"data_dir"`
	Port      int            `yaml:"port"`
	Bind      string         `yaml:"bind"`
	Security  Security       `yaml:"security"`
	Logging   Logging        `yaml:"logging"`
	Storage   Storage        `yaml:"storage"`
	Limits    policy.Limits  `yaml:"limits"`
	ProgramID string         `yaml:"program_id,omitempty"`
	Schemas   []SchemaConfig `yaml:"schemas"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Storage contains substrate options
type Storage struct {
	Sync bool `yaml:"sync"`
}

// SchemaConfig declares a record layout
type SchemaConfig struct {
	Name      string           `yaml:"name"`
	Fields    []FieldConfig    `yaml:"fields,omitempty"`
	Sequences []SequenceConfig `yaml:"sequences,omitempty"`
}

// FieldConfig declares one scalar field
type FieldConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Size     int      `yaml:"size,omitempty"`
	Variants []string `yaml:"variants,omitempty"`
}

// SequenceConfig declares one variable-length sequence
type SequenceConfig struct {
	Name      string `yaml:"name"`
	ElemWidth int    `yaml:"elem_width"`
}

// DefaultSchemas returns the built-in record layouts
func DefaultSchemas() []SchemaConfig {
	return []SchemaConfig{
		{
			Name:      "numbers",
			Sequences: []SequenceConfig{{Name: "values", ElemWidth: 4}},
		},
		{
			Name:      "ticket",
			Fields:    []FieldConfig{{Name: "buyer", Kind: "pubkey"}, {Name: "lottery", Kind: "pubkey"}},
			Sequences: []SequenceConfig{{Name: "numbers", ElemWidth: 4}},
		},
		{
			Name: "lottery",
			Fields: []FieldConfig{
				{Name: "authority", Kind: "pubkey"},
				{Name: "number", Kind: "u64"},
				{Name: "name", Kind: "text", Size: 32},
				{Name: "status", Kind: "enum", Variants: []string{"Active", "Completed", "Cancelled"}},
				{Name: "pot", Kind: "u128"},
				{Name: "open", Kind: "bool"},
			},
			Sequences: []SequenceConfig{{Name: "winners", ElemWidth: 4}},
		},
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Security: Security{
			APIKey: "auto",
		},
		Logging: Logging{
			Level: "info",
		},
		Storage: Storage{
			Sync: true,
		},
		Limits:  policy.DefaultLimits(),
		Schemas: DefaultSchemas(),
	}
}

// Build validates the declaration and produces a codec schema
func (s SchemaConfig) Build() (*codec.Schema, error) {
	schema := &codec.Schema{Name: s.Name}
	for _, f := range s.Fields {
		kind, err := codec.ParseKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("schema %s field %s: %w", s.Name, f.Name, err)
		}
		schema.Fields = append(schema.Fields, codec.FieldDef{
			Name:     f.Name,
			Kind:     kind,
			Size:     f.Size,
			Variants: f.Variants,
		})
	}
	for _, q := range s.Sequences {
		schema.Sequences = append(schema.Sequences, codec.SequenceDef{
			Name:      q.Name,
			ElemWidth: q.ElemWidth,
		})
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// BuildSchemas builds every declared schema
func (c *Config) BuildSchemas() ([]*codec.Schema, error) {
	out := make([]*codec.Schema, 0, len(c.Schemas))
	seen := make(map[string]struct{})
	for _, sc := range c.Schemas {
		if _, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate schema %q", sc.Name)
		}
		seen[sc.Name] = struct{}{}

		schema, err := sc.Build()
		if err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
		out = append(out, schema)
	}
	return out, nil
}

// Deriver returns the key deriver for the configured program ID
func (c *Config) Deriver() (*keys.Deriver, error) {
	if c.ProgramID == "" {
		return keys.NewDeriver(keys.DefaultProgramID), nil
	}
	programID, err := keys.ParseAddress(c.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program_id: %w", err)
	}
	return keys.NewDeriver(programID), nil
}

// Validate checks limits and schemas
func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	if _, err := c.BuildSchemas(); err != nil {
		return err
	}
	if _, err := c.Deriver(); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so omitted sections keep working values
	config := DefaultConfig()
	config.Schemas = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Schemas == nil {
		config.Schemas = DefaultSchemas()
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./vault.yaml"
	}

	// ~/.config/recordvault/config.yaml
	configDir := filepath.Join(homeDir, ".config", "recordvault")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
