// Package config provides configuration loading and validation for the
// Rivulet controller. Supports YAML files with environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a Rivulet controller instance.
type Config struct {
	Controller    ControllerConfig    `yaml:"controller"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Queue         QueueConfig         `yaml:"queue"`
	SegmentStore  SegmentStoreConfig  `yaml:"segmentStore"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ControllerConfig struct {
	// AuthToken is the delegation token presented to the storage tier
	// on seal calls.
	AuthToken string `yaml:"authToken" env:"RIVULET_AUTH_TOKEN"`
}

type MetadataConfig struct {
	OxiaEndpoint string `yaml:"oxiaEndpoint" env:"RIVULET_OXIA_ENDPOINT"`
	Namespace    string `yaml:"namespace" env:"RIVULET_OXIA_NAMESPACE"`
}

type QueueConfig struct {
	Brokers    string `yaml:"brokers" env:"RIVULET_QUEUE_BROKERS"`
	Topic      string `yaml:"topic" env:"RIVULET_QUEUE_TOPIC"`
	GroupID    string `yaml:"groupId" env:"RIVULET_QUEUE_GROUP_ID"`
	Partitions int    `yaml:"partitions" env:"RIVULET_QUEUE_PARTITIONS"`
}

type SegmentStoreConfig struct {
	URI              string `yaml:"uri" env:"RIVULET_SEGMENT_STORE_URI"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs" env:"RIVULET_SEGMENT_STORE_TIMEOUT_MS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"RIVULET_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"RIVULET_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"RIVULET_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Metadata: MetadataConfig{
			OxiaEndpoint: "localhost:6648",
			Namespace:    "rivulet",
		},
		Queue: QueueConfig{
			Brokers:    "localhost:9092",
			Topic:      "rivulet-controller-events",
			GroupID:    "rivulet-controller",
			Partitions: 16,
		},
		SegmentStore: SegmentStoreConfig{
			URI:              "http://localhost:12345",
			RequestTimeoutMs: 30000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the default configuration with environment overrides
// applied.
func Load() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides. Environment variables win over the file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the controller cannot
// start without.
func (c *Config) Validate() error {
	if c.Metadata.OxiaEndpoint == "" {
		return errors.New("config: metadata.oxiaEndpoint is required")
	}
	if c.Metadata.Namespace == "" {
		return errors.New("config: metadata.namespace is required")
	}
	if c.Queue.Brokers == "" {
		return errors.New("config: queue.brokers is required")
	}
	if c.Queue.Topic == "" {
		return errors.New("config: queue.topic is required")
	}
	if c.Queue.GroupID == "" {
		return errors.New("config: queue.groupId is required")
	}
	if c.Queue.Partitions <= 0 {
		return errors.New("config: queue.partitions must be positive")
	}
	if c.SegmentStore.URI == "" {
		return errors.New("config: segmentStore.uri is required")
	}
	return nil
}

// applyEnvOverrides walks the config struct and overwrites any field
// whose `env` tag names a set environment variable.
func applyEnvOverrides(cfg *Config) {
	applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

func applyEnvToStruct(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			applyEnvToStruct(field)
			continue
		}

		envName := t.Field(i).Tag.Get("env")
		if envName == "" {
			continue
		}
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int, reflect.Int64:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				field.SetInt(n)
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(b)
			}
		}
	}
}
