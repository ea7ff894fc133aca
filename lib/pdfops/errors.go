// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWrongPassword reports that a supplied document password did not
// unlock the document. Callers treat this differently from generic
// processing failures (it is the requester's mistake, never retried).
var ErrWrongPassword = errors.New("pdfops: wrong password")

// ErrPageOutOfRange reports a page index outside [1, page count].
var ErrPageOutOfRange = errors.New("pdfops: page out of range")

// ErrAllPagesRemoved reports a delete selection that would leave an
// empty document.
var ErrAllPagesRemoved = errors.New("pdfops: operation would remove every page")

// isPasswordError reports whether an engine failure is an
// authentication failure. The library exports no sentinel for these,
// so the match is on message text.
func isPasswordError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "password")
}

// classifyAuth maps authentication failures to ErrWrongPassword. Only
// call sites that supplied a password use it: a password complaint
// from an operation that never took one just means the document is
// protected, which is an ordinary processing failure.
func classifyAuth(err error) error {
	if isPasswordError(err) {
		return fmt.Errorf("%w: %v", ErrWrongPassword, err)
	}
	return err
}

// pageRangeError wraps ErrPageOutOfRange with the offending index.
func pageRangeError(page, pageCount int) error {
	return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, pageCount)
}
