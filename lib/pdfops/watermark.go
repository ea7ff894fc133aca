// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// WatermarkStyle controls the rendered overlay. Callers validate the
// fields before reaching this package; defaults live with the option
// parsing, not here.
type WatermarkStyle struct {
	// Opacity in (0, 1].
	Opacity float64

	// Rotation in degrees, counterclockwise.
	Rotation int

	// FontSize in points.
	FontSize int

	// Color as "#RRGGBB".
	Color string
}

// Watermark overlays the text on every page, on top of the page
// content.
func Watermark(doc []byte, text string, style WatermarkStyle) ([]byte, error) {
	description := fmt.Sprintf(
		"fontname:Helvetica, points:%d, rotation:%d, opacity:%.2f, fillcolor:%s",
		style.FontSize, style.Rotation, style.Opacity, style.Color)

	wm, err := api.TextWatermark(text, description, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("pdfops: watermark definition: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, nil, wm, conf()); err != nil {
		return nil, fmt.Errorf("pdfops: watermark: %w", err)
	}
	return out.Bytes(), nil
}
