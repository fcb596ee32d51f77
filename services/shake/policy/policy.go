// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy decides which symbols are used a priori (roots) and which
// the user asked to keep regardless of use (protected).
//
// Root classification is an ordered table of predicate rules evaluated
// first-match-wins. Each rule yields one of three classes:
//
//	Root      independent root, seeded before walking
//	Anchored  root together with its container: walked whenever its
//	          declaring type is walked (virtual slots, constructors, public
//	          members of non-public types)
//	NotRoot   must earn reachability through a reference
//
// Protection is name based; see Exceptions.
package policy

import (
	"strings"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Class is the root classification of a symbol.
type Class int

const (
	// NotRoot symbols must be reached through a reference.
	NotRoot Class = iota

	// Root symbols are seeded by BuildRoots.
	Root

	// Anchored symbols are walked whenever their declaring type is.
	Anchored
)

// String returns the string representation of the Class.
func (c Class) String() string {
	switch c {
	case Root:
		return "root"
	case Anchored:
		return "anchored"
	default:
		return "not_root"
	}
}

// Rule names, in default priority order.
const (
	RuleAccessorDeferral  = "accessor_deferral"
	RuleImplicitUse       = "implicit_use"
	RuleEntryPoint        = "entry_point"
	RuleSyntheticName     = "synthetic_name"
	RulePublicSurface     = "public_surface"
	RuleNestedPublic      = "public_in_private_container"
	RuleVirtualDispatch   = "virtual_dispatch"
	RuleStaticConstructor = "static_constructor"
	RuleSoleConstructor   = "sole_constructor"
	RuleAccessorRoot      = "accessor_root"
	RuleAccessorAnchored  = "accessor_anchored"
)

// Rule is one entry of the classification table.
type Rule struct {
	// Name identifies the rule in explanations and logs.
	Name string

	// Class is the result when Match returns true.
	Class Class

	// Match reports whether the rule applies to s.
	Match func(p *Policy, s graph.Symbol) bool
}

// DefaultRules returns the classification table in priority order.
//
// Accessor methods are deferred to their property or event before any
// other rule applies; the property or event then inherits the class its
// accessors would have had.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleAccessorDeferral, Class: NotRoot, Match: (*Policy).isAccessor},
		{Name: RuleImplicitUse, Class: Root, Match: (*Policy).hasImplicitUse},
		{Name: RuleEntryPoint, Class: Root, Match: (*Policy).isEntryPoint},
		{Name: RuleSyntheticName, Class: Root, Match: (*Policy).isSynthetic},
		{Name: RulePublicSurface, Class: Root, Match: (*Policy).isPublicSurface},
		{Name: RuleNestedPublic, Class: Anchored, Match: (*Policy).isNestedPublic},
		{Name: RuleVirtualDispatch, Class: Anchored, Match: (*Policy).isVirtual},
		{Name: RuleStaticConstructor, Class: Anchored, Match: (*Policy).isStaticConstructor},
		{Name: RuleSoleConstructor, Class: Anchored, Match: (*Policy).isSoleConstructor},
		{Name: RuleAccessorRoot, Class: Root, Match: (*Policy).hasRootAccessor},
		{Name: RuleAccessorAnchored, Class: Anchored, Match: (*Policy).hasAnchoredAccessor},
	}
}

// Default marker attributes and synthetic names.
var (
	DefaultMarkers = []string{
		"System.Runtime.CompilerServices.CompilerGeneratedAttribute",
		"JetBrains.Annotations.MeansImplicitUseAttribute",
		"JetBrains.Annotations.UsedImplicitlyAttribute",
	}

	DefaultSyntheticNames = []string{
		"<Module>",
		"Program",
		"Program.Main",
		"Program.<Main>$",
		"System.Runtime.CompilerServices.IsExternalInit",
	}
)

// DefaultProcessedSuffix marks symbols injected by an earlier build step.
const DefaultProcessedSuffix = "ProcessedByFody"

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Policy.
type Options struct {
	// Markers are full names of implicit-use attribute classes.
	Markers []string

	// SyntheticNames are full or qualified names that are always roots.
	SyntheticNames []string

	// ProcessedSuffix roots any symbol whose qualified name ends with it.
	// Empty disables the rule.
	ProcessedSuffix string

	// Exceptions lists protected names.
	Exceptions *Exceptions

	// Rules overrides the classification table.
	Rules []Rule
}

// Option is a functional option for New.
type Option func(*Options)

// WithMarkers replaces the implicit-use marker list.
func WithMarkers(markers ...string) Option {
	return func(o *Options) { o.Markers = markers }
}

// WithSyntheticNames replaces the synthetic root names.
func WithSyntheticNames(names ...string) Option {
	return func(o *Options) { o.SyntheticNames = names }
}

// WithProcessedSuffix sets the processed-by-build-step suffix.
func WithProcessedSuffix(suffix string) Option {
	return func(o *Options) { o.ProcessedSuffix = suffix }
}

// WithExceptions sets the protected name list.
func WithExceptions(e *Exceptions) Option {
	return func(o *Options) { o.Exceptions = e }
}

// WithRules replaces the classification table.
func WithRules(rules []Rule) Option {
	return func(o *Options) { o.Rules = rules }
}

// =============================================================================
// POLICY
// =============================================================================

// Policy classifies the symbols of one assembly.
//
// Description:
//
//	A Policy is bound to one graph for one run. Results are memoized per
//	symbol, so the graph must not change between classification and the
//	end of the sweep.
//
// Thread Safety: NOT safe for concurrent use.
type Policy struct {
	asm        *graph.Assembly
	rules      []Rule
	markers    map[string]struct{}
	synthetic  map[string]struct{}
	suffix     string
	exceptions *Exceptions

	entryPoints map[*graph.Method]struct{}
	classes     map[graph.Symbol]Class
	protected   map[graph.Symbol]bool
}

// New creates a Policy for asm.
//
// Inputs:
//
//	asm - The linked assembly. May be nil, in which case nothing is a root.
//	opts - Functional options. Defaults: DefaultMarkers,
//	       DefaultSyntheticNames, DefaultProcessedSuffix, no exceptions.
//
// Outputs:
//
//	*Policy - Ready to use. Never nil.
func New(asm *graph.Assembly, opts ...Option) *Policy {
	o := Options{
		Markers:         DefaultMarkers,
		SyntheticNames:  DefaultSyntheticNames,
		ProcessedSuffix: DefaultProcessedSuffix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Rules == nil {
		o.Rules = DefaultRules()
	}

	p := &Policy{
		asm:         asm,
		rules:       o.Rules,
		markers:     toSet(o.Markers),
		synthetic:   toSet(o.SyntheticNames),
		suffix:      o.ProcessedSuffix,
		exceptions:  o.Exceptions,
		entryPoints: make(map[*graph.Method]struct{}),
		classes:     make(map[graph.Symbol]Class),
		protected:   make(map[graph.Symbol]bool),
	}
	if asm != nil {
		if asm.EntryPoint != nil {
			p.entryPoints[asm.EntryPoint] = struct{}{}
		}
		for _, mod := range asm.Modules {
			if mod != nil && mod.EntryPoint != nil {
				p.entryPoints[mod.EntryPoint] = struct{}{}
			}
		}
	}
	return p
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// Exceptions returns the protected name list. May be nil.
func (p *Policy) Exceptions() *Exceptions { return p.exceptions }

// Classify returns the root class of s.
//
// Only types, fields, methods, properties and events are classified; every
// other symbol is NotRoot.
func (p *Policy) Classify(s graph.Symbol) Class {
	if !classifiable(s) {
		return NotRoot
	}
	if c, ok := p.classes[s]; ok {
		return c
	}
	c, _ := p.evaluate(s, "")
	p.classes[s] = c
	return c
}

// Explain returns the class of s and the name of the rule that decided it.
// The rule name is empty when no rule matched.
func (p *Policy) Explain(s graph.Symbol) (Class, string) {
	if !classifiable(s) {
		return NotRoot, ""
	}
	return p.evaluate(s, "")
}

// IsRoot reports whether s is a Root or Anchored symbol.
func (p *Policy) IsRoot(s graph.Symbol) bool {
	return p.Classify(s) != NotRoot
}

// IsProtected reports whether s, or a type declaring it, matches an
// exception entry by full name, qualified name, simple name or namespace.
func (p *Policy) IsProtected(s graph.Symbol) bool {
	if p.exceptions.Len() == 0 || !classifiable(s) {
		return false
	}
	if v, ok := p.protected[s]; ok {
		return v
	}
	v := p.exceptions.Match(protectionNames(s)...)
	if !v {
		if t := graph.DeclaringType(s); t != nil {
			v = p.IsProtected(t)
		}
	}
	p.protected[s] = v
	return v
}

func protectionNames(s graph.Symbol) []string {
	return []string{
		graph.FullName(s),
		graph.QualifiedName(s),
		graph.SimpleName(s),
		graph.Namespace(s),
	}
}

func classifiable(s graph.Symbol) bool {
	if graph.IsNil(s) {
		return false
	}
	return s.Kind().IsMember()
}

// evaluate runs the rule table, skipping the rule named skip.
func (p *Policy) evaluate(s graph.Symbol, skip string) (Class, string) {
	for _, r := range p.rules {
		if r.Name == skip {
			continue
		}
		if r.Match(p, s) {
			return r.Class, r.Name
		}
	}
	return NotRoot, ""
}

// =============================================================================
// RULE PREDICATES
// =============================================================================

func (p *Policy) isAccessor(s graph.Symbol) bool {
	m, ok := s.(*graph.Method)
	return ok && m.IsAccessor()
}

// hasImplicitUse checks s, the property or event owning it, and every
// declaring type for a marker attribute.
func (p *Policy) hasImplicitUse(s graph.Symbol) bool {
	if len(p.markers) == 0 {
		return false
	}
	for x := s; x != nil; x = markerParent(x) {
		for _, a := range graph.Attributes(x) {
			if a == nil {
				continue
			}
			if _, ok := p.markers[graph.TypeName(graph.AttributeType(a))]; ok {
				return true
			}
		}
	}
	return false
}

func markerParent(s graph.Symbol) graph.Symbol {
	if m, ok := s.(*graph.Method); ok && !graph.IsNil(m.SemanticsOwner) {
		return m.SemanticsOwner
	}
	if t := graph.DeclaringType(s); t != nil {
		return t
	}
	return nil
}

func (p *Policy) isEntryPoint(s graph.Symbol) bool {
	m, ok := s.(*graph.Method)
	if !ok {
		return false
	}
	_, ok = p.entryPoints[m]
	return ok
}

func (p *Policy) isSynthetic(s graph.Symbol) bool {
	qualified := graph.QualifiedName(s)
	if _, ok := p.synthetic[graph.FullName(s)]; ok {
		return true
	}
	if _, ok := p.synthetic[qualified]; ok {
		return true
	}
	return p.suffix != "" && strings.HasSuffix(qualified, p.suffix)
}

func (p *Policy) isPublicSurface(s graph.Symbol) bool {
	return publicItself(s) && publicChain(graph.DeclaringType(s))
}

func (p *Policy) isNestedPublic(s graph.Symbol) bool {
	return publicItself(s) && !publicChain(graph.DeclaringType(s))
}

func (p *Policy) isVirtual(s graph.Symbol) bool {
	m, ok := s.(*graph.Method)
	if !ok {
		return false
	}
	return m.Flags.Has(graph.MethodVirtual) ||
		m.Flags.Has(graph.MethodAbstract) ||
		m.Flags.Has(graph.MethodNewSlot) ||
		len(m.Overrides) > 0
}

func (p *Policy) isStaticConstructor(s graph.Symbol) bool {
	m, ok := s.(*graph.Method)
	return ok && m.IsStaticConstructor()
}

func (p *Policy) isSoleConstructor(s graph.Symbol) bool {
	m, ok := s.(*graph.Method)
	if !ok || m.DeclaringType == nil || !m.IsConstructor() || m.IsStaticConstructor() {
		return false
	}
	return len(m.DeclaringType.Constructors()) == 1
}

func (p *Policy) hasRootAccessor(s graph.Symbol) bool {
	return p.accessorClass(s) == Root
}

func (p *Policy) hasAnchoredAccessor(s graph.Symbol) bool {
	return p.accessorClass(s) == Anchored
}

// accessorClass is the strongest class any accessor of the property or
// event s would have if it were not deferred.
func (p *Policy) accessorClass(s graph.Symbol) Class {
	var accessors []*graph.Method
	switch v := s.(type) {
	case *graph.Property:
		accessors = v.Accessors()
	case *graph.Event:
		accessors = v.Accessors()
	default:
		return NotRoot
	}
	best := NotRoot
	for _, m := range accessors {
		switch c, _ := p.evaluate(m, RuleAccessorDeferral); c {
		case Root:
			return Root
		case Anchored:
			best = Anchored
		}
	}
	return best
}

// publicItself reports whether s is declared public. A property or event is
// public when any accessor is.
func publicItself(s graph.Symbol) bool {
	switch v := s.(type) {
	case *graph.Type:
		return v.Visibility == graph.VisibilityPublic
	case *graph.Field:
		return v.Visibility == graph.VisibilityPublic
	case *graph.Method:
		return v.Visibility == graph.VisibilityPublic
	case *graph.Property:
		return anyPublic(v.Accessors())
	case *graph.Event:
		return anyPublic(v.Accessors())
	default:
		return false
	}
}

func anyPublic(methods []*graph.Method) bool {
	for _, m := range methods {
		if m.Visibility == graph.VisibilityPublic {
			return true
		}
	}
	return false
}

// publicChain reports whether t and every type declaring it are public. A
// nil chain is public.
func publicChain(t *graph.Type) bool {
	for ; t != nil; t = t.DeclaringType {
		if t.Visibility != graph.VisibilityPublic {
			return false
		}
	}
	return true
}
