package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are tried in order when no config path is given.
var DefaultConfigFiles = []string{"mlserver.yaml", "mlserver.yml", "config.yaml"}

// Config is the classifier layout declared by a project.
type Config struct {
	Path        string
	Multi       bool
	Classifiers []string
	Default     string
	// Versions holds the declared version of each classifier that has one.
	Versions     map[string]string
	Descriptions map[string]string
}

// Has reports whether the classifier is declared.
func (c *Config) Has(name string) bool {
	for _, n := range c.Classifiers {
		if n == name {
			return true
		}
	}
	return false
}

// DeclaredVersion returns the classifier's version from the configuration.
func (c *Config) DeclaredVersion(name string) (*domain.Version, bool, error) {
	raw, ok := c.Versions[name]
	if !ok || raw == "" {
		return nil, false, nil
	}
	v, err := domain.NewVersion(raw)
	if err != nil {
		return nil, false, fmt.Errorf("classifier %s declares invalid version %q: %w", name, raw, err)
	}
	return v, true, nil
}

// Resolve picks the classifier to act on. An empty request selects the default.
func (c *Config) Resolve(requested string) (string, error) {
	if requested == "" {
		if c.Default == "" {
			return "", fmt.Errorf("multiple classifiers configured (%v): specify one with --classifier", c.Classifiers)
		}
		return c.Default, nil
	}
	if !c.Has(requested) {
		return "", fmt.Errorf("classifier %q not found in %s: available %v", requested, c.Path, c.Classifiers)
	}
	return requested, nil
}

type classifierMeta struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type rawConfig struct {
	Classifier        *classifierMeta `yaml:"classifier"`
	DefaultClassifier string          `yaml:"default_classifier"`
	Classifiers       yaml.Node       `yaml:"classifiers"`
}

type rawEntry struct {
	Classifier classifierMeta `yaml:"classifier"`
}

// Loader reads project configuration files.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader over fs.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// FindConfig returns configPath when set, otherwise the first default
// config file present in projectPath.
func (l *Loader) FindConfig(projectPath, configPath string) (string, error) {
	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			if _, err := l.fs.Stat(configPath); err != nil {
				configPath = filepath.Join(projectPath, configPath)
			}
		}
		if _, err := l.fs.Stat(configPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", configPath, err)
		}
		return configPath, nil
	}
	for _, name := range DefaultConfigFiles {
		candidate := filepath.Join(projectPath, name)
		if _, err := l.fs.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no configuration file found in %s (tried %v)", projectPath, DefaultConfigFiles)
}

// Load finds and parses the project configuration.
func (l *Loader) Load(projectPath, configPath string) (*Config, error) {
	path, err := l.FindConfig(projectPath, configPath)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes a single or multi classifier configuration. Classifiers
// keep the order in which they are declared.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	cfg := &Config{Versions: map[string]string{}, Descriptions: map[string]string{}}
	if raw.Classifiers.Kind != 0 {
		if err := parseMulti(cfg, &raw); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if raw.Classifier == nil {
		return nil, fmt.Errorf("configuration declares neither classifier nor classifiers")
	}
	if err := domain.ValidateClassifierName(raw.Classifier.Name); err != nil {
		return nil, fmt.Errorf("classifier.name: %w", err)
	}
	cfg.add(raw.Classifier.Name, *raw.Classifier)
	cfg.Default = raw.Classifier.Name
	return cfg, nil
}

func parseMulti(cfg *Config, raw *rawConfig) error {
	if raw.Classifiers.Kind != yaml.MappingNode {
		return fmt.Errorf("classifiers must be a mapping (line %d)", raw.Classifiers.Line)
	}
	cfg.Multi = true
	nodes := raw.Classifiers.Content
	for i := 0; i+1 < len(nodes); i += 2 {
		key, value := nodes[i], nodes[i+1]
		name := key.Value
		if err := domain.ValidateClassifierName(name); err != nil {
			return fmt.Errorf("classifiers (line %d): %w", key.Line, err)
		}
		if cfg.Has(name) {
			return fmt.Errorf("classifier %s declared twice (line %d)", name, key.Line)
		}
		var entry rawEntry
		if err := value.Decode(&entry); err != nil {
			return fmt.Errorf("classifier %s: %w", name, err)
		}
		cfg.add(name, entry.Classifier)
	}
	if len(cfg.Classifiers) == 0 {
		return fmt.Errorf("classifiers mapping is empty")
	}
	if raw.DefaultClassifier != "" {
		if !cfg.Has(raw.DefaultClassifier) {
			return fmt.Errorf("default_classifier %q is not declared", raw.DefaultClassifier)
		}
		cfg.Default = raw.DefaultClassifier
	}
	return nil
}

func (c *Config) add(name string, meta classifierMeta) {
	c.Classifiers = append(c.Classifiers, name)
	if meta.Version != "" {
		c.Versions[name] = meta.Version
	}
	if meta.Description != "" {
		c.Descriptions[name] = meta.Description
	}
}
