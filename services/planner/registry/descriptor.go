// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SkeletonMarker is the _status value of an auto-generated descriptor
// that still needs human review.
const SkeletonMarker = "skeleton"

// validate checks descriptor structs after YAML decoding.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Descriptor is the on-disk shape of one service registry document.
//
// Only Name is mandatory. Everything else is optional so that skeleton
// entries and hand-written partial documents both load.
type Descriptor struct {
	Name        string        `yaml:"name" validate:"required"`
	Description string        `yaml:"description"`
	VMID        int           `yaml:"vmid" validate:"gte=0"`
	Type        string        `yaml:"type"`
	Status      string        `yaml:"status"`
	Network     NetworkConfig `yaml:"network"`
	Deps        DependencySet `yaml:"dependencies"`
	Marker      string        `yaml:"_status"`
}

// NetworkConfig is the network block of a descriptor.
type NetworkConfig struct {
	IP    string `yaml:"ip"`
	Ports []int  `yaml:"ports"`
}

// DependencySet normalizes the two dependency formats the registry has
// accumulated over time:
//
//	dependencies: [postgresql, redis]            # legacy flat list
//	dependencies: {required: [...], optional: [...]}
//
// The flat list means "all required". Normalization happens here, at the
// parse boundary; nothing deeper in the planner ever sees the raw shape.
type DependencySet struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// UnmarshalYAML accepts both the legacy sequence form and the current
// mapping form.
func (d *DependencySet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var flat []string
		if err := value.Decode(&flat); err != nil {
			return fmt.Errorf("legacy dependency list: %w", err)
		}
		d.Required = flat
		d.Optional = nil
		return nil
	case yaml.MappingNode:
		// Alias type avoids recursing into this method.
		type structured DependencySet
		var s structured
		if err := value.Decode(&s); err != nil {
			return fmt.Errorf("structured dependencies: %w", err)
		}
		*d = DependencySet(s)
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			// "dependencies:" with no value; zero value is fine.
			return nil
		}
		return fmt.Errorf("dependencies must be a list or a required/optional mapping, got scalar %q", value.Value)
	default:
		return fmt.Errorf("dependencies must be a list or a required/optional mapping, got %v", value.Kind)
	}
}

// ParseDescriptor decodes and validates a single descriptor document.
//
// Returns ErrMalformedDescriptor for YAML that does not decode and
// ErrMissingName for documents without a name.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if err := validate.Struct(&d); err != nil {
		if d.Name == "" {
			return nil, ErrMissingName
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	return &d, nil
}

// IsSkeleton reports whether the descriptor is an auto-generated
// skeleton awaiting review.
func (d *Descriptor) IsSkeleton() bool {
	return d.Marker == SkeletonMarker
}

// Node converts the descriptor to its graph node, classifying the name
// with c.
func (d *Descriptor) Node(c InfraClassifier) ServiceNode {
	n := ServiceNode{
		Name:        d.Name,
		Description: d.Description,
		VMID:        d.VMID,
		IP:          d.Network.IP,
		Status:      NormalizeStatus(d.Status),
		Kind:        NormalizeKind(d.Type),
		Requires:    d.Deps.Required,
		Optional:    d.Deps.Optional,
	}
	if c != nil {
		n.Infrastructure = c(d.Name)
	}
	return n
}
