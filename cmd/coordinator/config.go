package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
)

// fileConfig is the viper-facing shape of the configuration file: a
// listen address and the shard topology, per spec.md §6's expanded
// configuration input. Kept distinct from shardconfig.ShardDescriptor
// because the wire/file representation (strings, snake_case) and the
// in-process representation (typed identity kinds, a backoff.BackOff
// policy slot) are deliberately different.
type fileConfig struct {
	Listen string       `mapstructure:"listen" json:"listen"`
	Shards []shardEntry `mapstructure:"shards" json:"shards"`
}

type shardEntry struct {
	Element        string      `mapstructure:"element" json:"element"`
	Op             string      `mapstructure:"op" json:"op"`
	HashRangeStart uint32      `mapstructure:"hash_range_start" json:"hash_range_start"`
	Description    string      `mapstructure:"description" json:"description"`
	Client         clientEntry `mapstructure:"client" json:"client"`
}

type clientEntry struct {
	BaseURL              string `mapstructure:"base_url" json:"base_url"`
	RetryCount           int    `mapstructure:"retry_count" json:"retry_count"`
	RetryIntervalSeconds int    `mapstructure:"retry_interval_seconds" json:"retry_interval_seconds"`
}

func parseElement(s string) (identity.DataElementKind, error) {
	switch s {
	case "user":
		return identity.ElementUser, nil
	case "group":
		return identity.ElementGroup, nil
	case "group_to_group_mapping":
		return identity.ElementGroupToGroupMapping, nil
	default:
		return 0, fmt.Errorf("unknown shard element %q", s)
	}
}

func parseOp(s string) (identity.OperationKind, error) {
	switch s {
	case "query":
		return identity.OpQuery, nil
	case "event":
		return identity.OpEvent, nil
	default:
		return 0, fmt.Errorf("unknown shard operation %q", s)
	}
}

func (e shardEntry) toDescriptor() (shardconfig.ShardDescriptor, error) {
	element, err := parseElement(e.Element)
	if err != nil {
		return shardconfig.ShardDescriptor{}, err
	}
	op, err := parseOp(e.Op)
	if err != nil {
		return shardconfig.ShardDescriptor{}, err
	}
	return shardconfig.ShardDescriptor{
		Element:        element,
		Op:             op,
		HashRangeStart: e.HashRangeStart,
		Description:    e.Description,
		ClientConfig: shardconfig.ClientConfig{
			BaseURL:              e.Client.BaseURL,
			RetryCount:           e.Client.RetryCount,
			RetryIntervalSeconds: e.Client.RetryIntervalSeconds,
		},
	}, nil
}

func toShardConfigurationSet(entries []shardEntry) (shardconfig.ShardConfigurationSet, error) {
	descriptors := make([]shardconfig.ShardDescriptor, 0, len(entries))
	for i, e := range entries {
		d, err := e.toDescriptor()
		if err != nil {
			return shardconfig.ShardConfigurationSet{}, fmt.Errorf("shard %d: %w", i, err)
		}
		descriptors = append(descriptors, d)
	}
	set := shardconfig.New(descriptors)
	if err := set.Validate(); err != nil {
		return shardconfig.ShardConfigurationSet{}, err
	}
	return set, nil
}

// loadConfig reads and validates the shard topology file at path,
// returning the listen address and the resulting configuration set.
func loadConfig(path string) (string, shardconfig.ShardConfigurationSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("listen", ":8080")
	if err := v.ReadInConfig(); err != nil {
		return "", shardconfig.ShardConfigurationSet{}, fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return "", shardconfig.ShardConfigurationSet{}, fmt.Errorf("parsing config: %w", err)
	}

	set, err := toShardConfigurationSet(fc.Shards)
	if err != nil {
		return "", shardconfig.ShardConfigurationSet{}, err
	}
	return fc.Listen, set, nil
}
