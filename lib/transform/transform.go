// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package transform defines the closed set of document operations and
// their option contracts. Options arrive as untrusted JSON, are
// parsed and validated exactly once at this boundary, and flow onward
// as typed structs; nothing downstream re-validates.
//
// Every transformation is a pure function from (input documents,
// options) to output bytes or an error, which is what makes the set
// independently testable without storage or transport.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docmill/docmill/lib/pdfops"
)

// Kind names one transformation. The set is closed: unknown kinds are
// rejected before an operation record is ever created.
type Kind string

const (
	KindEncrypt        Kind = "encrypt"
	KindDecrypt        Kind = "decrypt"
	KindWatermark      Kind = "watermark"
	KindSetPermissions Kind = "set_permissions"
	KindSanitize       Kind = "sanitize"
	KindRedact         Kind = "redact"
	KindRotate         Kind = "rotate"
	KindDeletePages    Kind = "delete_pages"
	KindExtractPages   Kind = "extract_pages"
	KindMerge          Kind = "merge"
)

// OptionsError reports options rejected at the parse/validate
// boundary. It is the requester's mistake: no operation record is
// created for it.
type OptionsError struct {
	Kind Kind
	Err  error
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("transform: %s options: %v", e.Kind, e.Err)
}

func (e *OptionsError) Unwrap() error { return e.Err }

// Limits carries the configurable validation bounds.
type Limits struct {
	// MaxWatermarkTextLength bounds watermark text, in bytes.
	MaxWatermarkTextLength int
}

// Descriptor describes one transformation: its input arity and its
// implementation. Parsing lives on the Registry so limits apply.
type Descriptor struct {
	Kind Kind

	// MinSources and MaxSources bound the number of input documents.
	// All kinds except merge take exactly one.
	MinSources int
	MaxSources int

	parse func(r *Registry, raw json.RawMessage) (any, error)
	apply func(inputs [][]byte, options any) ([]byte, error)
}

// Registry is the closed kind table. Construct one per process with
// the configured limits.
type Registry struct {
	limits      Limits
	descriptors map[Kind]Descriptor
}

// NewRegistry builds the registry.
func NewRegistry(limits Limits) *Registry {
	r := &Registry{limits: limits, descriptors: make(map[Kind]Descriptor)}
	for _, d := range []Descriptor{
		{Kind: KindEncrypt, MinSources: 1, MaxSources: 1, parse: parseEncrypt, apply: applyEncrypt},
		{Kind: KindDecrypt, MinSources: 1, MaxSources: 1, parse: parseDecrypt, apply: applyDecrypt},
		{Kind: KindWatermark, MinSources: 1, MaxSources: 1, parse: parseWatermark, apply: applyWatermark},
		{Kind: KindSetPermissions, MinSources: 1, MaxSources: 1, parse: parseSetPermissions, apply: applySetPermissions},
		{Kind: KindSanitize, MinSources: 1, MaxSources: 1, parse: parseSanitize, apply: applySanitize},
		{Kind: KindRedact, MinSources: 1, MaxSources: 1, parse: parseRedact, apply: applyRedact},
		{Kind: KindRotate, MinSources: 1, MaxSources: 1, parse: parseRotate, apply: applyRotate},
		{Kind: KindDeletePages, MinSources: 1, MaxSources: 1, parse: parseDeletePages, apply: applyDeletePages},
		{Kind: KindExtractPages, MinSources: 1, MaxSources: 1, parse: parseExtractPages, apply: applyExtractPages},
		{Kind: KindMerge, MinSources: 2, MaxSources: 0, parse: parseMerge, apply: applyMerge},
	} {
		r.descriptors[d.Kind] = d
	}
	return r
}

// Lookup returns the descriptor for kind.
func (r *Registry) Lookup(kind Kind) (Descriptor, bool) {
	d, ok := r.descriptors[kind]
	return d, ok
}

// ParseOptions validates raw options for kind, returning the typed
// option struct. A nil/empty raw means "all defaults" and is valid
// only for kinds whose options have no required fields.
func (r *Registry) ParseOptions(kind Kind, raw json.RawMessage) (any, error) {
	d, ok := r.descriptors[kind]
	if !ok {
		return nil, &OptionsError{Kind: kind, Err: fmt.Errorf("unknown operation kind")}
	}
	options, err := d.parse(r, raw)
	if err != nil {
		var optionsErr *OptionsError
		if errors.As(err, &optionsErr) {
			return nil, err
		}
		return nil, &OptionsError{Kind: kind, Err: err}
	}
	return options, nil
}

// Apply runs the transformation. options must be the struct returned
// by ParseOptions for the same kind; inputs must satisfy the
// descriptor's arity.
func (r *Registry) Apply(kind Kind, inputs [][]byte, options any) ([]byte, error) {
	d, ok := r.descriptors[kind]
	if !ok {
		return nil, fmt.Errorf("transform: unknown operation kind %q", kind)
	}
	if len(inputs) < d.MinSources || (d.MaxSources > 0 && len(inputs) > d.MaxSources) {
		return nil, fmt.Errorf("transform: %s: got %d input documents", kind, len(inputs))
	}
	return d.apply(inputs, options)
}

// WrongPassword reports whether err is the distinct wrong-password
// failure, which callers record differently from generic processing
// errors.
func WrongPassword(err error) bool {
	return errors.Is(err, pdfops.ErrWrongPassword)
}

// decodeStrict unmarshals raw into v, rejecting unknown fields. A
// nil or empty raw decodes as the zero value.
func decodeStrict(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}
