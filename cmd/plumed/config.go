package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file. Command-line flags take
// precedence over values set here.
type Config struct {
	Addr           string   `yaml:"addr"`
	Hostname       string   `yaml:"hostname"`
	TLSCert        string   `yaml:"tls_cert"`
	TLSKey         string   `yaml:"tls_key"`
	Maildir        string   `yaml:"maildir"`
	JournalDir     string   `yaml:"journal_dir"`
	Blocklists     []string `yaml:"blocklists"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	MaxConnections int      `yaml:"max_connections"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	LogLevel       string   `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Addr:     ":2525",
		Hostname: "localhost",
		Maildir:  "./mail",
		LogLevel: "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
