// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crosscheck

import (
	"encoding/json"
	"fmt"
	"os"
)

// liveFeedDoc is the wrapped form of the live resource snapshot.
type liveFeedDoc struct {
	Resources []LiveResource `json:"resources"`
}

// LoadLiveFeed reads the live resource snapshot from a JSON file.
//
// The feed is written by infrastructure scanners the planner does not
// control, so both a bare array and a {"resources": [...]} wrapper are
// accepted.
func LoadLiveFeed(path string) ([]LiveResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read live feed %s: %w", path, err)
	}

	var bare []LiveResource
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var doc liveFeedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse live feed %s: %w", path, err)
	}
	return doc.Resources, nil
}
