// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Redact masks every occurrence of text in the document's content
// streams, replacing the matched characters with spaces. The glyphs
// disappear from rendered output; underlying object structure and
// layout stay intact.
//
// This is textual masking, not geometric removal: matches split
// across kerning arrays are missed, and sophisticated extraction of
// the original layout may still reveal where text was removed. For
// documents needing certified redaction, rasterize instead.
func Redact(doc []byte, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("pdfops: redact: empty text")
	}

	ctx, err := readValidated(doc, "")
	if err != nil {
		return nil, fmt.Errorf("pdfops: redact: %w", err)
	}

	for objNr, entry := range ctx.XRefTable.Table {
		if entry == nil || entry.Free || entry.Object == nil {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || !isTextBearingStream(sd) {
			continue
		}

		if err := sd.Decode(); err != nil {
			// Unsupported filter chain; leave the stream as is.
			continue
		}

		masked, count := MaskText(sd.Content, text)
		if count == 0 {
			continue
		}

		sd.Content = masked
		sd.Raw = nil
		if err := sd.Encode(); err != nil {
			return nil, fmt.Errorf("pdfops: redact: re-encoding object %d: %w", objNr, err)
		}
		sd.Dict["Length"] = types.Integer(len(sd.Raw))
		entry.Object = sd
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("pdfops: redact: write: %w", err)
	}
	return out.Bytes(), nil
}

// isTextBearingStream reports whether a stream can carry page text
// operators: page content streams (no Subtype) and form XObjects.
// Images, fonts, and metadata streams are excluded.
func isTextBearingStream(sd types.StreamDict) bool {
	if _, hasType := sd.Dict["Type"]; hasType {
		if name, ok := sd.Dict["Type"].(types.Name); !ok || name != "XObject" {
			return false
		}
	}
	subtype, ok := sd.Dict["Subtype"].(types.Name)
	if !ok {
		// No subtype: a bare content stream.
		return sd.Dict["Subtype"] == nil
	}
	return subtype == "Form"
}
