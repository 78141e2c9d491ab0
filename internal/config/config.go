// Package config provides centralized configuration for retcon.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileName is the per-repository config file looked up in the work tree root.
const FileName = ".retcon.yaml"

// Config holds application-wide configuration.
type Config struct {
	// Limit is how many commits are loaded; 0 loads the whole history.
	Limit int `yaml:"limit"`
	// SyncAuthorToCommitter makes committer fields follow edited author fields.
	SyncAuthorToCommitter bool `yaml:"sync_author_to_committer"`
	// Branch overrides the checked out branch.
	Branch string `yaml:"branch"`
	// DataRoot is where the journal lives. Empty means <git-dir>/retcon.
	DataRoot   string `yaml:"data_root"`
	LogLevel   string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns the default configuration, reading from environment variables.
func DefaultConfig() *Config {
	c := &Config{
		Limit:                 50,
		SyncAuthorToCommitter: true,
		LogLevel:              "info",
		ListenAddr:            ":8080",
	}
	c.applyEnv()
	return c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RETCON_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Limit = n
		}
	}
	if v := os.Getenv("RETCON_SEPARATE_AUTHOR_COMMITTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SyncAuthorToCommitter = !b
		}
	}
	if v := os.Getenv("RETCON_BRANCH"); v != "" {
		c.Branch = v
	}
	if v := os.Getenv("RETCON_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("RETCON_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("RETCON_LISTEN"); v != "" {
		c.ListenAddr = v
	}
}

// Load reads a YAML file over the defaults, then re-applies the environment so
// variables win over the file. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	c.applyEnv()
	if c.Limit < 0 {
		return nil, errors.Errorf("config %s: limit must not be negative", path)
	}
	return c, nil
}

// JournalPath returns the journal location for a repository whose git
// directory is gitDir. It is empty when neither is known.
func (c *Config) JournalPath(gitDir, name string) string {
	root := c.DataRoot
	if root == "" {
		if gitDir == "" {
			return ""
		}
		root = filepath.Join(gitDir, "retcon")
	}
	return filepath.Join(root, name)
}

// Global is the application-wide configuration instance.
var Global = DefaultConfig()
