package entity

import (
	"testing"

	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFromDefaults(t *testing.T) {
	registry, err := NewRegistryFromConfig(config.DefaultPartitioningConfig())
	require.NoError(t, err)

	desc, err := registry.Lookup(TypeUser)
	require.NoError(t, err)
	assert.Equal(t, "user_events", desc.EventTable)
	assert.Equal(t, "user_states", desc.StateTable)
	assert.Equal(t, partition.GranularityHourly, desc.EventGranularity)
	assert.Equal(t, partition.GranularityDaily, desc.StateGranularity)

	assert.Len(t, registry.All(), 4)
	assert.Len(t, registry.Types(), 4)

	_, err = registry.Lookup(Type("invoice"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistryRejectsUnknownEntity(t *testing.T) {
	_, err := NewRegistryFromConfig(config.PartitioningConfig{
		Entities: map[string]config.EntityPartitioning{
			"invoice": {Events: "hourly", States: "daily"},
		},
	})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistryRejectsBadGranularity(t *testing.T) {
	_, err := NewRegistryFromConfig(config.PartitioningConfig{
		Entities: map[string]config.EntityPartitioning{
			"user": {Events: "weekly", States: "daily"},
		},
	})
	assert.ErrorIs(t, err, partition.ErrInvalidGranularity)
}

func TestParseType(t *testing.T) {
	parsed, err := ParseType(" Shop ")
	require.NoError(t, err)
	assert.Equal(t, TypeShop, parsed)

	_, err = ParseType("warehouse")
	assert.ErrorIs(t, err, ErrUnknownType)
}
