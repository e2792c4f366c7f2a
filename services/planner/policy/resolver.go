// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import "github.com/nhi-ops/nhi-core/services/planner/registry"

// Resolve computes the transitive dependency closure of name.
//
// Breadth-first from name, following required edges always and optional
// edges only when includeOptional is set. The result is in discovery
// order and always starts with name itself, even when name has no node
// in the graph: callers rely on "at minimum back up the thing I asked
// for".
//
// Termination on cyclic graphs is guaranteed by checking the resolved
// set before a node is expanded; every node is expanded at most once.
// Dangling edges resolve to bare names with nothing to expand.
func Resolve(g registry.Graph, name string, includeOptional bool) []string {
	resolved := make(map[string]bool)
	order := make([]string, 0, 8)
	queue := []string{name}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if resolved[current] {
			continue
		}
		resolved[current] = true
		order = append(order, current)

		node, ok := g[current]
		if !ok {
			continue
		}
		for _, dep := range node.Requires {
			if !resolved[dep] {
				queue = append(queue, dep)
			}
		}
		if includeOptional {
			for _, dep := range node.Optional {
				if !resolved[dep] {
					queue = append(queue, dep)
				}
			}
		}
	}
	return order
}
