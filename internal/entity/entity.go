package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/partition"
)

// Type identifies a logical state table.
type Type string

const (
	TypeUser    Type = "user"
	TypeShop    Type = "shop"
	TypeOrder   Type = "order"
	TypePayment Type = "payment"
)

var ErrUnknownType = errors.New("unknown entity type")

func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeUser:
		return TypeUser, nil
	case TypeShop:
		return TypeShop, nil
	case TypeOrder:
		return TypeOrder, nil
	case TypePayment:
		return TypePayment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
}

// Descriptor binds an entity type to its physical tables and partition
// granularities. Provisioning and reconciliation receive these values
// explicitly; nothing reflects over model metadata.
type Descriptor struct {
	Type             Type
	EventTable       string
	StateTable       string
	EventGranularity partition.Granularity
	StateGranularity partition.Granularity
}

// Registry holds the descriptors built from the partitioning config.
type Registry struct {
	byType map[Type]Descriptor
}

func NewRegistry(holder *config.PartitioningHolder) (*Registry, error) {
	return buildRegistry(holder.Current())
}

// NewRegistryFromConfig builds a registry from a static config, bypassing
// the hot-reload holder.
func NewRegistryFromConfig(cfg config.PartitioningConfig) (*Registry, error) {
	return buildRegistry(cfg)
}

func buildRegistry(cfg config.PartitioningConfig) (*Registry, error) {
	byType := make(map[Type]Descriptor, len(cfg.Entities))
	for name, part := range cfg.Entities {
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		eventGran, err := partition.ParseGranularity(part.Events)
		if err != nil {
			return nil, fmt.Errorf("entity %s events: %w", name, err)
		}
		stateGran, err := partition.ParseGranularity(part.States)
		if err != nil {
			return nil, fmt.Errorf("entity %s states: %w", name, err)
		}

		desc := Descriptor{
			Type:             t,
			EventTable:       string(t) + "_events",
			StateTable:       string(t) + "_states",
			EventGranularity: eventGran,
			StateGranularity: stateGran,
		}
		if err := partition.ValidateIdentifier(desc.EventTable); err != nil {
			return nil, err
		}
		if err := partition.ValidateIdentifier(desc.StateTable); err != nil {
			return nil, err
		}
		byType[t] = desc
	}
	if len(byType) == 0 {
		return nil, errors.New("no entity types configured")
	}
	return &Registry{byType: byType}, nil
}

func (r *Registry) Lookup(t Type) (Descriptor, error) {
	desc, ok := r.byType[t]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return desc, nil
}

// All returns descriptors in stable type order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byType))
	for _, desc := range r.byType {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (r *Registry) Types() []Type {
	descs := r.All()
	out := make([]Type, 0, len(descs))
	for _, desc := range descs {
		out = append(out, desc.Type)
	}
	return out
}
