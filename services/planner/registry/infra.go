// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import "strings"

// DefaultInfrastructureServices is the stock allow-list of service names
// treated as shared infrastructure by the core+infra backup policy.
var DefaultInfrastructureServices = []string{
	"postgresql",
	"postgres",
	"redis",
	"minio",
	"chromadb",
	"rabbitmq",
	"mongodb",
}

// InfraClassifier reports whether a service name denotes shared
// infrastructure.
//
// Classification is a pure function of the name. It is never persisted:
// builders and caches re-derive it so that allow-list changes are picked
// up on the next build or load, not on the next manual cache flush.
type InfraClassifier func(name string) bool

// NewInfraClassifier builds a classifier from an allow-list of names.
//
// Matching is case-insensitive on the whole name. A nil or empty list
// yields a classifier that matches nothing.
func NewInfraClassifier(names []string) InfraClassifier {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return func(name string) bool {
		return set[strings.ToLower(name)]
	}
}

// DefaultClassifier matches the stock infrastructure allow-list.
func DefaultClassifier() InfraClassifier {
	return NewInfraClassifier(DefaultInfrastructureServices)
}
