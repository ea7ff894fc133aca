// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"encoding/json"
	"fmt"

	"github.com/docmill/docmill/lib/pdfops"
)

// Watermark defaults, applied when the field is absent from the
// request.
const (
	DefaultWatermarkOpacity  = 0.3
	DefaultWatermarkRotation = 45
	DefaultWatermarkFontSize = 36
	DefaultWatermarkColor    = "#000000"
)

// EncryptOptions protects a document with a password. The password
// serves as both user and owner password.
type EncryptOptions struct {
	Password      string `json:"password" cbor:"password"`
	AllowPrinting bool   `json:"allow_printing" cbor:"allow_printing"`
	AllowCopying  bool   `json:"allow_copying" cbor:"allow_copying"`
}

func parseEncrypt(r *Registry, raw json.RawMessage) (any, error) {
	var options EncryptOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if options.Password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	return options, nil
}

func applyEncrypt(inputs [][]byte, options any) ([]byte, error) {
	o := options.(EncryptOptions)
	return pdfops.Encrypt(inputs[0], o.Password, pdfops.Permissions{
		Print: o.AllowPrinting,
		Copy:  o.AllowCopying,
	})
}

// DecryptOptions removes password protection.
type DecryptOptions struct {
	Password string `json:"password" cbor:"password"`
}

func parseDecrypt(r *Registry, raw json.RawMessage) (any, error) {
	var options DecryptOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if options.Password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	return options, nil
}

func applyDecrypt(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.Decrypt(inputs[0], options.(DecryptOptions).Password)
}

// WatermarkOptions overlays text on every page. Zero-valued style
// fields have already been resolved to the defaults by parsing.
type WatermarkOptions struct {
	Text     string  `json:"text" cbor:"text"`
	Opacity  float64 `json:"opacity" cbor:"opacity"`
	Rotation int     `json:"rotation" cbor:"rotation"`
	FontSize int     `json:"font_size" cbor:"font_size"`
	Color    string  `json:"color" cbor:"color"`
}

// watermarkWire distinguishes absent fields from explicit zeros.
type watermarkWire struct {
	Text     string   `json:"text"`
	Opacity  *float64 `json:"opacity"`
	Rotation *int     `json:"rotation"`
	FontSize *int     `json:"font_size"`
	Color    *string  `json:"color"`
}

func parseWatermark(r *Registry, raw json.RawMessage) (any, error) {
	var wire watermarkWire
	if err := decodeStrict(raw, &wire); err != nil {
		return nil, err
	}

	options := WatermarkOptions{
		Text:     wire.Text,
		Opacity:  DefaultWatermarkOpacity,
		Rotation: DefaultWatermarkRotation,
		FontSize: DefaultWatermarkFontSize,
		Color:    DefaultWatermarkColor,
	}
	if wire.Opacity != nil {
		options.Opacity = *wire.Opacity
	}
	if wire.Rotation != nil {
		options.Rotation = *wire.Rotation
	}
	if wire.FontSize != nil {
		options.FontSize = *wire.FontSize
	}
	if wire.Color != nil {
		options.Color = *wire.Color
	}

	if options.Text == "" {
		return nil, fmt.Errorf("text must not be empty")
	}
	if max := r.limits.MaxWatermarkTextLength; max > 0 && len(options.Text) > max {
		return nil, fmt.Errorf("text exceeds %d bytes", max)
	}
	if options.Opacity <= 0 || options.Opacity > 1 {
		return nil, fmt.Errorf("opacity %v outside (0, 1]", options.Opacity)
	}
	if options.FontSize <= 0 {
		return nil, fmt.Errorf("font_size must be positive")
	}
	if !validHexColor(options.Color) {
		return nil, fmt.Errorf("color %q is not #RRGGBB", options.Color)
	}
	return options, nil
}

func applyWatermark(inputs [][]byte, options any) ([]byte, error) {
	o := options.(WatermarkOptions)
	return pdfops.Watermark(inputs[0], o.Text, pdfops.WatermarkStyle{
		Opacity:  o.Opacity,
		Rotation: o.Rotation,
		FontSize: o.FontSize,
		Color:    o.Color,
	})
}

// validHexColor matches "#RRGGBB".
func validHexColor(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		c := color[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// SetPermissionsOptions re-encrypts with an explicit permission set.
// Accessibility extraction is always preserved regardless of options.
type SetPermissionsOptions struct {
	Password         string `json:"password" cbor:"password"`
	AllowPrinting    bool   `json:"allow_printing" cbor:"allow_printing"`
	AllowCopying     bool   `json:"allow_copying" cbor:"allow_copying"`
	AllowModifying   bool   `json:"allow_modifying" cbor:"allow_modifying"`
	AllowAnnotations bool   `json:"allow_annotations" cbor:"allow_annotations"`
	AllowForms       bool   `json:"allow_forms" cbor:"allow_forms"`
}

func parseSetPermissions(r *Registry, raw json.RawMessage) (any, error) {
	var options SetPermissionsOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if options.Password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	return options, nil
}

func applySetPermissions(inputs [][]byte, options any) ([]byte, error) {
	o := options.(SetPermissionsOptions)
	return pdfops.SetPermissions(inputs[0], o.Password, pdfops.Permissions{
		Print:     o.AllowPrinting,
		Copy:      o.AllowCopying,
		Modify:    o.AllowModifying,
		Annotate:  o.AllowAnnotations,
		FillForms: o.AllowForms,
	})
}

// SanitizeOptions strips active content; metadata removal is on by
// default.
type SanitizeOptions struct {
	RemoveMetadata bool `json:"remove_metadata" cbor:"remove_metadata"`
}

type sanitizeWire struct {
	RemoveMetadata *bool `json:"remove_metadata"`
}

func parseSanitize(r *Registry, raw json.RawMessage) (any, error) {
	var wire sanitizeWire
	if err := decodeStrict(raw, &wire); err != nil {
		return nil, err
	}
	options := SanitizeOptions{RemoveMetadata: true}
	if wire.RemoveMetadata != nil {
		options.RemoveMetadata = *wire.RemoveMetadata
	}
	return options, nil
}

func applySanitize(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.Sanitize(inputs[0], options.(SanitizeOptions).RemoveMetadata)
}

// RedactOptions masks matching text on every page.
type RedactOptions struct {
	Text string `json:"text" cbor:"text"`
}

func parseRedact(r *Registry, raw json.RawMessage) (any, error) {
	var options RedactOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if options.Text == "" {
		return nil, fmt.Errorf("text must not be empty")
	}
	return options, nil
}

func applyRedact(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.Redact(inputs[0], options.(RedactOptions).Text)
}

// RotateOptions rotates the selected pages.
type RotateOptions struct {
	Pages []int `json:"pages" cbor:"pages"`
	Angle int   `json:"angle" cbor:"angle"`
}

func parseRotate(r *Registry, raw json.RawMessage) (any, error) {
	var options RotateOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if err := validatePageList(options.Pages); err != nil {
		return nil, err
	}
	if options.Angle == 0 || options.Angle%90 != 0 || options.Angle < -270 || options.Angle > 270 {
		return nil, fmt.Errorf("angle %d is not a non-zero multiple of 90 in [-270, 270]", options.Angle)
	}
	return options, nil
}

func applyRotate(inputs [][]byte, options any) ([]byte, error) {
	o := options.(RotateOptions)
	return pdfops.Rotate(inputs[0], o.Angle, o.Pages)
}

// DeletePagesOptions removes the selected pages.
type DeletePagesOptions struct {
	Pages []int `json:"pages" cbor:"pages"`
}

func parseDeletePages(r *Registry, raw json.RawMessage) (any, error) {
	var options DeletePagesOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if err := validatePageList(options.Pages); err != nil {
		return nil, err
	}
	return options, nil
}

func applyDeletePages(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.DeletePages(inputs[0], options.(DeletePagesOptions).Pages)
}

// ExtractPagesOptions keeps only the listed pages, in the order
// given. Indices may repeat.
type ExtractPagesOptions struct {
	Pages []int `json:"pages" cbor:"pages"`
}

func parseExtractPages(r *Registry, raw json.RawMessage) (any, error) {
	var options ExtractPagesOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if err := validatePageList(options.Pages); err != nil {
		return nil, err
	}
	return options, nil
}

func applyExtractPages(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.ExtractPages(inputs[0], options.(ExtractPagesOptions).Pages)
}

// MergeOptions concatenates documents in the listed order. FileIDs
// also drives which source artifacts the coordinator fetches.
type MergeOptions struct {
	FileIDs []string `json:"file_ids" cbor:"file_ids"`
}

func parseMerge(r *Registry, raw json.RawMessage) (any, error) {
	var options MergeOptions
	if err := decodeStrict(raw, &options); err != nil {
		return nil, err
	}
	if len(options.FileIDs) < 2 {
		return nil, fmt.Errorf("merge requires at least 2 file ids, got %d", len(options.FileIDs))
	}
	for i, id := range options.FileIDs {
		if id == "" {
			return nil, fmt.Errorf("file id %d is empty", i)
		}
	}
	return options, nil
}

func applyMerge(inputs [][]byte, options any) ([]byte, error) {
	return pdfops.Merge(inputs)
}

// validatePageList checks a page selection for the properties every
// page-addressed operation shares. Upper bounds are checked against
// the live document later.
func validatePageList(pages []int) error {
	if len(pages) == 0 {
		return fmt.Errorf("pages must not be empty")
	}
	for i, page := range pages {
		if page < 1 {
			return fmt.Errorf("page index %d at position %d is not 1-based", page, i)
		}
	}
	return nil
}
