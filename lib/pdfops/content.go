// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"strings"
)

// MaskText blanks every occurrence of needle inside literal strings
// of a decoded content stream, replacing matched text with spaces of
// the same length so glyph positioning after the match is preserved.
// Returns the rewritten stream and the number of occurrences masked.
//
// Matching operates on whole string operands: text split across
// kerning arrays or encoded in hex strings is not matched. This is a
// best-effort mask over the common single-operand Tj/TJ case.
func MaskText(content []byte, needle string) ([]byte, int) {
	if needle == "" {
		return content, 0
	}
	mask := strings.Repeat(" ", len(needle))

	var out bytes.Buffer
	out.Grow(len(content))
	masked := 0

	for i := 0; i < len(content); {
		if content[i] != '(' {
			out.WriteByte(content[i])
			i++
			continue
		}

		decoded, end, ok := decodeLiteral(content, i)
		if !ok {
			// Unterminated string; pass the rest through untouched.
			out.Write(content[i:])
			break
		}

		if n := strings.Count(decoded, needle); n > 0 {
			masked += n
			out.WriteByte('(')
			out.Write(encodeLiteral(strings.ReplaceAll(decoded, needle, mask)))
			out.WriteByte(')')
		} else {
			out.Write(content[i:end])
		}
		i = end
	}

	return out.Bytes(), masked
}

// decodeLiteral decodes the literal string starting at the '(' at
// content[start]. Returns the decoded text and the index just past
// the closing ')'. ok is false when the string never terminates.
func decodeLiteral(content []byte, start int) (decoded string, end int, ok bool) {
	var text bytes.Buffer
	depth := 1

	i := start + 1
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return "", 0, false
			}
			next := content[i+1]
			switch next {
			case 'n':
				text.WriteByte('\n')
			case 'r':
				text.WriteByte('\r')
			case 't':
				text.WriteByte('\t')
			case 'b':
				text.WriteByte('\b')
			case 'f':
				text.WriteByte('\f')
			case '(', ')', '\\':
				text.WriteByte(next)
			case '\n':
				// Line continuation: contributes nothing.
			case '\r':
				if i+2 < len(content) && content[i+2] == '\n' {
					i++
				}
			default:
				if next >= '0' && next <= '7' {
					value, consumed := decodeOctal(content[i+1:])
					text.WriteByte(value)
					i += consumed - 1
				} else {
					text.WriteByte(next)
				}
			}
			i += 2
		case '(':
			depth++
			text.WriteByte(c)
			i++
		case ')':
			depth--
			if depth == 0 {
				return text.String(), i + 1, true
			}
			text.WriteByte(c)
			i++
		default:
			text.WriteByte(c)
			i++
		}
	}
	return "", 0, false
}

// decodeOctal reads a 1-3 digit octal escape from the front of b.
func decodeOctal(b []byte) (value byte, consumed int) {
	var v int
	for consumed < 3 && consumed < len(b) && b[consumed] >= '0' && b[consumed] <= '7' {
		v = v*8 + int(b[consumed]-'0')
		consumed++
	}
	return byte(v), consumed
}

// encodeLiteral escapes text for use as a literal string body.
func encodeLiteral(text string) []byte {
	var out bytes.Buffer
	out.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '(', ')', '\\':
			out.WriteByte('\\')
			out.WriteByte(c)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}
