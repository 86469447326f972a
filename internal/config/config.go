// Package config loads and validates the YAML configuration for the service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file leaves a field unset.
const (
	DefaultQueueSize        = 50_000
	DefaultFormat           = "json"
	DefaultOnFormatError    = "publish_empty"
	DefaultMetricsEndpoint  = "https://s1231159.eu-nbg-2.betterstackdata.com/metrics"
	DefaultMetricsInterval  = 10
	DefaultPubSubSystem     = "kafka"
	defaultMaxDecodingBytes = 64 * 1024 * 1024
)

// Config is the root of the YAML configuration file.
type Config struct {
	// Endpoint is the geyser gRPC address.
	Endpoint string `yaml:"endpoint"`
	// XToken authenticates against the endpoint. Optional.
	XToken string `yaml:"x_token"`
	// Insecure disables TLS towards the endpoint.
	Insecure               bool   `yaml:"insecure"`
	MaxDecodingMessageSize int    `yaml:"max_decoding_message_size"`
	// Commitment selects the confirmation tier of the subscription. An
	// unrecognized value degrades to processed rather than failing.
	Commitment string `yaml:"commitment"`
	// Format names the wire codec used to decode the feed. Only "json" ships
	// with the service.
	Format string `yaml:"format"`

	// Topic is the bus topic records are published to.
	Topic string `yaml:"topic_name"`
	// PubSubSystem selects the bus: "kafka", "nats", or "channel" (in-memory,
	// for tests and local runs).
	PubSubSystem  string   `yaml:"pubsub_system"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaClientID string   `yaml:"kafka_client_id"`
	NATSURL       string   `yaml:"nats_url"`

	// QueueSize bounds the dispatcher-to-publisher queue; a full queue
	// suspends the upstream read.
	QueueSize int `yaml:"queue_size"`
	// OnFormatError picks the policy for records that fail formatting:
	// "publish_empty" (an empty JSON object under the original key), "skip",
	// or "dead_letter" (into PoisonTopic).
	OnFormatError string `yaml:"on_format_error"`
	PoisonTopic   string `yaml:"poison_topic"`

	Filters Filters `yaml:"filters"`
	Metrics Metrics `yaml:"metrics"`
}

// Filters is the declarative filter block translated into the subscription
// request at startup.
type Filters struct {
	Accounts                  bool     `yaml:"accounts"`
	AccountsNonemptyTxnSig    *bool    `yaml:"accounts_nonempty_txn_signature"`
	AccountsAccount           []string `yaml:"accounts_account"`
	AccountsAccountPath       string   `yaml:"accounts_account_path"`
	AccountsOwner             []string `yaml:"accounts_owner"`
	AccountsMemcmp            []string `yaml:"accounts_memcmp"`
	AccountsDatasize          *uint64  `yaml:"accounts_datasize"`
	AccountsTokenAccountState bool     `yaml:"accounts_token_account_state"`
	AccountsLamports          []string `yaml:"accounts_lamports"`
	AccountsDataSlice         []string `yaml:"accounts_data_slice"`

	Slots                   bool  `yaml:"slots"`
	SlotsFilterByCommitment *bool `yaml:"slots_filter_by_commitment"`

	Transactions                bool     `yaml:"transactions"`
	TransactionsVote            *bool    `yaml:"transactions_vote"`
	TransactionsFailed          *bool    `yaml:"transactions_failed"`
	TransactionsSignature       *string  `yaml:"transactions_signature"`
	TransactionsAccountInclude  []string `yaml:"transactions_account_include"`
	TransactionsAccountExclude  []string `yaml:"transactions_account_exclude"`
	TransactionsAccountRequired []string `yaml:"transactions_account_required"`

	TransactionsStatus                bool     `yaml:"transactions_status"`
	TransactionsStatusVote            *bool    `yaml:"transactions_status_vote"`
	TransactionsStatusFailed          *bool    `yaml:"transactions_status_failed"`
	TransactionsStatusSignature       *string  `yaml:"transactions_status_signature"`
	TransactionsStatusAccountInclude  []string `yaml:"transactions_status_account_include"`
	TransactionsStatusAccountExclude  []string `yaml:"transactions_status_account_exclude"`
	TransactionsStatusAccountRequired []string `yaml:"transactions_status_account_required"`

	Entries bool `yaml:"entries"`

	Blocks                    bool     `yaml:"blocks"`
	BlocksAccountInclude      []string `yaml:"blocks_account_include"`
	BlocksIncludeTransactions *bool    `yaml:"blocks_include_transactions"`
	BlocksIncludeAccounts     *bool    `yaml:"blocks_include_accounts"`
	BlocksIncludeEntries      *bool    `yaml:"blocks_include_entries"`

	BlocksMeta bool `yaml:"blocks_meta"`

	Ping *int32 `yaml:"ping"`
}

// Metrics configures the counter push sink and the optional Prometheus
// listener.
type Metrics struct {
	Enabled  bool   `yaml:"enabled"`
	APIToken string `yaml:"api_token"`
	Endpoint string `yaml:"endpoint"`
	// IntervalSeconds is floor-clamped to 10 by the reporter.
	IntervalSeconds int `yaml:"interval"`
	// PrometheusPort exposes /metrics when positive.
	PrometheusPort int `yaml:"prometheus_port"`
}

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.OnFormatError == "" {
		c.OnFormatError = DefaultOnFormatError
	}
	if c.PubSubSystem == "" {
		c.PubSubSystem = DefaultPubSubSystem
	}
	if c.MaxDecodingMessageSize == 0 {
		c.MaxDecodingMessageSize = defaultMaxDecodingBytes
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = DefaultMetricsEndpoint
	}
	if c.Metrics.IntervalSeconds == 0 {
		c.Metrics.IntervalSeconds = DefaultMetricsInterval
	}
}

// Validate checks the configuration and returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("topic_name is required"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, errors.New("queue_size cannot be negative"))
	}
	if c.MaxDecodingMessageSize < 0 {
		errs = append(errs, errors.New("max_decoding_message_size cannot be negative"))
	}

	switch strings.ToLower(c.PubSubSystem) {
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka: brokers are required"))
		}
	case "nats":
		if c.NATSURL == "" {
			errs = append(errs, errors.New("nats: URL is required"))
		}
	case "channel":
	default:
		errs = append(errs, fmt.Errorf("unknown pubsub_system %q", c.PubSubSystem))
	}

	switch c.OnFormatError {
	case "publish_empty", "skip":
	case "dead_letter":
		if c.PoisonTopic == "" {
			errs = append(errs, errors.New("poison_topic is required with on_format_error: dead_letter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown on_format_error %q", c.OnFormatError))
	}

	if c.Metrics.Enabled {
		if c.Metrics.Endpoint == "" {
			errs = append(errs, errors.New("metrics: endpoint is required"))
		}
		if c.Metrics.IntervalSeconds < 0 {
			errs = append(errs, errors.New("metrics: interval cannot be negative"))
		}
	}
	if c.Metrics.PrometheusPort < 0 || c.Metrics.PrometheusPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid prometheus port %d", c.Metrics.PrometheusPort))
	}

	return errors.Join(errs...)
}

func (c Config) String() string {
	// Copy so the receiver keeps its secrets.
	copy := c
	if copy.XToken != "" {
		copy.XToken = "***REDACTED***"
	}
	if copy.Metrics.APIToken != "" {
		copy.Metrics.APIToken = "***REDACTED***"
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}
