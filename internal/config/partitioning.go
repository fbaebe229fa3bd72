package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EntityPartitioning names the partition granularity for one entity type's
// event stream and state table.
type EntityPartitioning struct {
	Events string `mapstructure:"events"`
	States string `mapstructure:"states"`
}

// PartitioningConfig is the granularity-per-entity-type table.
type PartitioningConfig struct {
	Entities map[string]EntityPartitioning `mapstructure:"entities"`
}

func DefaultPartitioningConfig() PartitioningConfig {
	return PartitioningConfig{
		Entities: map[string]EntityPartitioning{
			"user":    {Events: "hourly", States: "daily"},
			"shop":    {Events: "hourly", States: "daily"},
			"order":   {Events: "hourly", States: "daily"},
			"payment": {Events: "hourly", States: "daily"},
		},
	}
}

// PartitioningHolder serves the current partitioning config and hot-reloads
// it when the underlying file changes. Granularity changes only affect
// partitions created after the reload; existing parents keep their method.
type PartitioningHolder struct {
	current atomic.Value // holds PartitioningConfig
}

func NewPartitioningHolder() (*PartitioningHolder, error) {
	v := viper.New()

	v.SetConfigName("partitioning")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/shoppulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHOPPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPartitioningConfig()
		v.SetDefault("partitioning.entities", defaults.Entities)
	}

	holder := &PartitioningHolder{}
	cfg, err := unmarshalPartitioning(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := unmarshalPartitioning(v)
		if err != nil {
			log.Printf("partitioning config reload failed: %v", err)
			return
		}
		holder.current.Store(next)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PartitioningHolder) Current() PartitioningConfig {
	return h.current.Load().(PartitioningConfig)
}

func unmarshalPartitioning(v *viper.Viper) (PartitioningConfig, error) {
	var cfg PartitioningConfig
	if err := v.UnmarshalKey("partitioning", &cfg); err != nil {
		return PartitioningConfig{}, err
	}
	if len(cfg.Entities) == 0 {
		cfg = DefaultPartitioningConfig()
	}
	return cfg, nil
}
