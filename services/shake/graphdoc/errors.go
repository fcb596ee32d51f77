// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphdoc

import "errors"

// Sentinel errors for graph documents.
var (
	// ErrInvalidDocument indicates a document that failed validation.
	ErrInvalidDocument = errors.New("invalid graph document")

	// ErrUnsupportedFormat indicates a format version this package cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrMalformedRef indicates a reference string that does not parse.
	ErrMalformedRef = errors.New("malformed reference")

	// ErrUnknownOpcode indicates an instruction with an unknown opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrOperandMismatch indicates an operand of the wrong kind for its opcode.
	ErrOperandMismatch = errors.New("operand does not fit opcode")

	// ErrUnresolvedToken indicates a local token (branch target, variable,
	// accessor, entry point) that names nothing in the document.
	ErrUnresolvedToken = errors.New("unresolved token")

	// ErrDocumentTooLarge indicates a document above MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document too large")
)
