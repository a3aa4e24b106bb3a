package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/helpers/retry"
)

//go:embed default_config.json
var defaultConfigJSON []byte

type Config struct {
	StoreURLs                       []string `json:"store_urls"`
	StoreMaxConcurrentRequests      int      `json:"store_max_concurrent_requests"`
	StoreConnectionTimeoutInSeconds int      `json:"store_connection_timeout_in_seconds"`
	LogLevelString                  string   `json:"log_level"`

	APIServerAddress  string `json:"api_server_address"`
	APIServerPort     int    `json:"api_server_port"`
	APIServerUsername string `json:"api_server_username"`
	APIServerPassword string `json:"api_server_password"`

	Retry RetryConfig `json:"retry"`

	AtomicCounterPromoteToLock             bool `json:"atomic_counter_promote_to_lock"`
	AtomicCounterLockTimeoutInMilliseconds int  `json:"atomic_counter_lock_timeout_in_milliseconds"`
	LeaderSelectorAutoRequeue              bool `json:"leader_selector_auto_requeue"`
	QueueMaxConcurrentConsumers            int  `json:"queue_max_concurrent_consumers"`

	LockPath           string `json:"lock_path"`
	ReadWriteLockPath  string `json:"read_write_lock_path"`
	LeaderLatchPath    string `json:"leader_latch_path"`
	LeaderSelectorPath string `json:"leader_selector_path"`
	LeaderAnnouncePath string `json:"leader_announce_path"`
	BarrierPath        string `json:"barrier_path"`
	DoubleBarrierPath  string `json:"double_barrier_path"`
	SharedCountPath    string `json:"shared_count_path"`
	AtomicCounterPath  string `json:"atomic_counter_path"`
	QueuePath          string `json:"queue_path"`
}

type RetryConfig struct {
	MaxAttempts             int     `json:"max_attempts"`
	BaseDelayInMilliseconds int     `json:"base_delay_in_milliseconds"`
	BackoffMultiplier       float64 `json:"backoff_multiplier"`
}

func DefaultConfig() (*Config, error) {
	return FromJSON(defaultConfigJSON)
}

func FromFile(path string) (*Config, error) {
	jsonBytes, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromJSON(jsonBytes)
}

// FromJSON layers the given JSON over the defaults, so a config file only
// needs to name what it changes.
func FromJSON(jsonBytes []byte) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal(defaultConfigJSON, config); err != nil {
		return nil, err
	}

	err := json.Unmarshal(jsonBytes, config)
	if err != nil {
		return nil, err
	}

	return config, config.validate()
}

func (conf *Config) validate() error {
	if len(conf.StoreURLs) == 0 {
		return fmt.Errorf("config: store_urls must name at least one server")
	}
	if conf.StoreMaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: store_max_concurrent_requests must be positive")
	}
	if conf.QueueMaxConcurrentConsumers <= 0 {
		return fmt.Errorf("config: queue_max_concurrent_consumers must be positive")
	}
	_, err := conf.LogLevel()
	return err
}

func (conf *Config) StoreConnectionTimeout() time.Duration {
	return time.Duration(conf.StoreConnectionTimeoutInSeconds) * time.Second
}

func (conf *Config) AtomicCounterLockTimeout() time.Duration {
	return time.Duration(conf.AtomicCounterLockTimeoutInMilliseconds) * time.Millisecond
}

func (conf *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       conf.Retry.MaxAttempts,
		BaseDelay:         time.Duration(conf.Retry.BaseDelayInMilliseconds) * time.Millisecond,
		BackoffMultiplier: conf.Retry.BackoffMultiplier,
	}
}

func (conf *Config) APIServerListenAddress() string {
	return fmt.Sprintf("%s:%d", conf.APIServerAddress, conf.APIServerPort)
}

func (conf *Config) LogLevel() (lager.LogLevel, error) {
	switch conf.LogLevelString {
	case "debug":
		return lager.DEBUG, nil
	case "info", "":
		return lager.INFO, nil
	case "error":
		return lager.ERROR, nil
	case "fatal":
		return lager.FATAL, nil
	default:
		return lager.INFO, fmt.Errorf("config: unknown log level %q", conf.LogLevelString)
	}
}
