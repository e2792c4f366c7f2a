// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// skeletonDoc is the serialized shape of an auto-generated descriptor.
// Field order is fixed so generated files diff cleanly.
type skeletonDoc struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Type         string        `yaml:"type"`
	VMID         int           `yaml:"vmid"`
	Network      NetworkConfig `yaml:"network"`
	Dependencies DependencySet `yaml:"dependencies"`
	Created      string        `yaml:"created"`
	Updated      string        `yaml:"updated"`
	Marker       string        `yaml:"_status"`
}

// WriteSkeleton creates a descriptor skeleton for a newly discovered
// resource.
//
// The written file carries the skeleton marker so catalog tooling can
// flag it for review, and a header comment telling the operator the
// same thing. Refuses to overwrite an existing descriptor.
func WriteSkeleton(dir, name string, vmid int, ip, description string) (string, error) {
	path := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDescriptorExists, path)
	}

	if description == "" {
		description = fmt.Sprintf("Service %s (auto-generated skeleton)", name)
	}
	now := time.Now().Format(time.RFC3339)
	doc := skeletonDoc{
		Name:        name,
		Description: description,
		Type:        string(KindLXC),
		VMID:        vmid,
		Network: NetworkConfig{
			IP:    ip,
			Ports: []int{},
		},
		Dependencies: DependencySet{
			Required: []string{},
			Optional: []string{},
		},
		Created: now,
		Updated: now,
		Marker:  SkeletonMarker,
	}

	body, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("marshal skeleton for %s: %w", name, err)
	}

	header := fmt.Sprintf("# Service registry: %s\n# Auto-generated skeleton - please review and update\n\n", name)
	if err := os.WriteFile(path, append([]byte(header), body...), 0640); err != nil {
		return "", fmt.Errorf("write skeleton %s: %w", path, err)
	}
	return path, nil
}
