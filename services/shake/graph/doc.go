// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the symbol graph model of a compiled assembly.
//
// The graph package contains the node types for every program entity the
// tree-shaker reasons about: the assembly and its modules, types and their
// members, parameters, generic parameters and constraints, attribute
// instances, method bodies (instructions, locals, exception handlers) and
// debug scope/import records. It holds no traversal logic.
//
// # Symbols and References
//
// Every node implements the sealed Symbol interface. The set of variants is
// closed: code that needs to treat symbols differently dispatches with a
// single type switch over the concrete types declared here.
//
// Definitions (Type, Method, Field, ...) are owned by their containers.
// References (TypeReference, TypeSpec, MethodReference, ...) are non-owning,
// name-based pointers that may denote a definition in this assembly, a
// definition in another assembly, or a generic instantiation of either.
//
// # Ownership Model
//
// Containers own their children through slices (Module.Types, Type.Methods,
// Body.Instructions, ...). Back-references (Type.DeclaringType, Method.Body,
// Attribute.Owner, ...) are plain pointers used for identity and visibility
// propagation, never for ownership. Link fills every back-reference from the
// containment structure so hosts may build graphs top-down.
//
// # Thread Safety
//
// The model is NOT safe for concurrent mutation. A graph handed to the
// tree-shaker must not be modified by the host until the run completes.
package graph
