// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEnvelope indicates the store holds no usable envelope.
	ErrNoEnvelope = errors.New("no cached envelope")

	// ErrCorruptEnvelope indicates the store holds an envelope that
	// does not decode. It wraps ErrNoEnvelope, so callers that only
	// care about hit-or-miss keep treating it as a plain miss; the
	// cache distinguishes the two in its miss metrics.
	ErrCorruptEnvelope = fmt.Errorf("envelope corrupt: %w", ErrNoEnvelope)

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("envelope store is closed")
)
