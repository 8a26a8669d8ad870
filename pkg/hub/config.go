package hub

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/interax-protocol/interax-go/pkg/acl"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/subscription"
)

// Config is the YAML configuration of a hub daemon.
type Config struct {
	// ListenAddress is the TCP address the daemon serves on.
	ListenAddress string `yaml:"listen_address"`

	// StatePath persists event sequence counters across restarts.
	StatePath string `yaml:"state_path,omitempty"`

	// ACLPolicyPath points to the YAML policy file. Empty denies
	// every operation.
	ACLPolicyPath string `yaml:"acl_policy,omitempty"`

	// ACLCheckTimeoutMs bounds a policy source lookup.
	ACLCheckTimeoutMs int `yaml:"acl_check_timeout_ms,omitempty"`

	// ACLCacheTTLSeconds bounds cached ACL decisions.
	ACLCacheTTLSeconds int `yaml:"acl_cache_ttl_seconds,omitempty"`

	// MaxSubscriptions bounds live subscriptions.
	MaxSubscriptions int `yaml:"max_subscriptions,omitempty"`

	// SubscriptionBuffer is the per-subscriber channel capacity.
	SubscriptionBuffer int `yaml:"subscription_buffer,omitempty"`
}

// DefaultListenAddress is used when the config names none.
const DefaultListenAddress = "127.0.0.1:7474"

// LoadConfig reads a daemon configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	return &cfg, nil
}

// Options materializes hub options from the config, loading the ACL
// policy file when one is named.
func (c *Config) Options(logger log.Logger) (Options, error) {
	opts := Options{
		Logger:    logger,
		StatePath: c.StatePath,
		ACLConfig: acl.Config{
			CheckTimeout: time.Duration(c.ACLCheckTimeoutMs) * time.Millisecond,
			CacheTTL:     time.Duration(c.ACLCacheTTLSeconds) * time.Second,
		},
		Subscriptions: subscription.Config{
			MaxSubscriptions: c.MaxSubscriptions,
			ChannelCapacity:  c.SubscriptionBuffer,
		},
	}

	if c.ACLPolicyPath != "" {
		entries, err := acl.LoadPolicy(c.ACLPolicyPath)
		if err != nil {
			return Options{}, err
		}
		opts.ACLSource = acl.NewStaticSource(entries)
	}
	return opts, nil
}
