// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shake

import "errors"

// Sentinel errors for the shake service.
var (
	// ErrNilGraph indicates an engine was requested for a nil assembly.
	ErrNilGraph = errors.New("graph is nil")

	// ErrEngineUsed indicates Run was called twice on one engine.
	ErrEngineUsed = errors.New("engine already ran")

	// ErrRunNotFound indicates no journal entry exists for a run ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrJournalDisabled indicates the service was started without a journal.
	ErrJournalDisabled = errors.New("run journal disabled")

	// ErrInvalidRequest indicates a malformed run request.
	ErrInvalidRequest = errors.New("invalid request")
)
