// Package config loads node configuration from YAML files.
//
// Configuration is the only startup input a node takes; a file that fails to
// load or validate is fatal to the process.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PeerInfo identifies one remote server of the cluster.
type PeerInfo struct {
	ID      uint32 `yaml:"id"`
	Address string `yaml:"address"`
}

// ElectionConfig holds the election and failure-detection timing set.
type ElectionConfig struct {
	HeartbeatIntervalSecs uint64 `yaml:"heartbeat_interval_secs"`
	ElectionTimeoutSecs   uint64 `yaml:"election_timeout_secs"`
	FailureTimeoutSecs    uint64 `yaml:"failure_timeout_secs"`
	MonitorIntervalSecs   uint64 `yaml:"monitor_interval_secs"`
}

// ExecutorConfig bounds the blocking transform pool.
type ExecutorConfig struct {
	MaxConcurrentTransforms int64 `yaml:"max_concurrent_transforms"`
}

// ServerConfig is the full configuration of one server process.
type ServerConfig struct {
	Server struct {
		ID      uint32 `yaml:"id"`
		Address string `yaml:"address"`
	} `yaml:"server"`
	Peers    []PeerInfo     `yaml:"peers"`
	Election ElectionConfig `yaml:"election"`
	Executor ExecutorConfig `yaml:"executor"`
	LogLevel string         `yaml:"log_level"`
}

// RequestConfig is the client's request-generation profile.
type RequestConfig struct {
	RatePerSecond   float64 `yaml:"rate_per_second"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	ParameterText   string  `yaml:"parameter_text"`
}

// FailoverConfig tunes the client's reassignment polling loop.
type FailoverConfig struct {
	PollIntervalSecs    uint64 `yaml:"poll_interval_secs"`
	SameServerPollLimit int    `yaml:"same_server_poll_limit"`
}

// ClientConfig is the full configuration of one client process.
type ClientConfig struct {
	Client struct {
		Name            string   `yaml:"name"`
		ServerAddresses []string `yaml:"server_addresses"`
	} `yaml:"client"`
	Requests RequestConfig  `yaml:"requests"`
	Failover FailoverConfig `yaml:"failover"`
	LogLevel string         `yaml:"log_level"`
}

// LoadServer reads and validates a server configuration file.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadClient reads and validates a client configuration file.
func LoadClient(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config %s: %w", path, err)
	}
	return &cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Election.HeartbeatIntervalSecs == 0 {
		c.Election.HeartbeatIntervalSecs = 1
	}
	if c.Election.ElectionTimeoutSecs == 0 {
		c.Election.ElectionTimeoutSecs = 2
	}
	if c.Election.FailureTimeoutSecs == 0 {
		c.Election.FailureTimeoutSecs = 3
	}
	if c.Election.MonitorIntervalSecs == 0 {
		c.Election.MonitorIntervalSecs = 1
	}
	if c.Executor.MaxConcurrentTransforms == 0 {
		c.Executor.MaxConcurrentTransforms = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *ServerConfig) validate() error {
	if c.Server.ID == 0 {
		return fmt.Errorf("server.id must be a positive integer")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	seen := map[uint32]bool{c.Server.ID: true}
	for _, p := range c.Peers {
		if p.ID == 0 {
			return fmt.Errorf("peer id must be a positive integer")
		}
		if p.Address == "" {
			return fmt.Errorf("peer %d: address is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate node id %d", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Requests.RatePerSecond == 0 {
		c.Requests.RatePerSecond = 1
	}
	if c.Failover.PollIntervalSecs == 0 {
		c.Failover.PollIntervalSecs = 2
	}
	if c.Failover.SameServerPollLimit == 0 {
		c.Failover.SameServerPollLimit = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *ClientConfig) validate() error {
	if c.Client.Name == "" {
		return fmt.Errorf("client.name is required")
	}
	if len(c.Client.ServerAddresses) == 0 {
		return fmt.Errorf("client.server_addresses must name at least one server")
	}
	if c.Requests.RatePerSecond < 0 || c.Requests.DurationSeconds < 0 {
		return fmt.Errorf("request profile must not be negative")
	}
	return nil
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (c *ElectionConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSecs) * time.Second
}

// ElectionTimeout returns the election wait window as a duration.
func (c *ElectionConfig) ElectionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutSecs) * time.Second
}

// FailureTimeout returns the heartbeat silence threshold as a duration.
func (c *ElectionConfig) FailureTimeout() time.Duration {
	return time.Duration(c.FailureTimeoutSecs) * time.Second
}

// MonitorInterval returns the failure-detector scan period as a duration.
func (c *ElectionConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSecs) * time.Second
}

// PollInterval returns the reassignment polling period as a duration.
func (c *FailoverConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}
