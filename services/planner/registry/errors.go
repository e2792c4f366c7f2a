// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import "errors"

var (
	// ErrMissingName indicates a descriptor without the mandatory name field.
	ErrMissingName = errors.New("descriptor has no name")

	// ErrMalformedDescriptor indicates a descriptor that failed to parse.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrDescriptorExists indicates a skeleton write would clobber an
	// existing descriptor.
	ErrDescriptorExists = errors.New("descriptor already exists")
)

// ScanError records a descriptor that was skipped during a build pass.
//
// Skipped documents are the normal failure mode of a build: the pass
// continues and the error is surfaced here and in the logs, never as a
// failed build.
type ScanError struct {
	// Path is the descriptor file, relative to the store root.
	Path string

	// Err is the reason the descriptor was skipped.
	Err error
}

// Error implements the error interface.
func (e ScanError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

// Unwrap exposes the underlying cause.
func (e ScanError) Unwrap() error {
	return e.Err
}
