// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Permissions is the viewer permission set granted to holders of the
// user password. Accessibility extraction is always granted and not
// represented here.
type Permissions struct {
	Print     bool
	Copy      bool
	Modify    bool
	Annotate  bool
	FillForms bool
}

// Viewer permission bits per the PDF encryption dictionary /P entry.
// The base value has the reserved must-be-one bits set and every
// grantable bit clear.
const (
	permBase           uint16 = 0xF0C3
	permPrint          uint16 = 1 << 2
	permModify         uint16 = 1 << 3
	permCopy           uint16 = 1 << 4
	permAnnotate       uint16 = 1 << 5
	permFillForms      uint16 = 1 << 8
	permAccessibility  uint16 = 1 << 9
	permPrintHiQuality uint16 = 1 << 11
)

// flags renders the permission set as the engine's flag word.
func (p Permissions) flags() model.PermissionFlags {
	bits := permBase | permAccessibility
	if p.Print {
		bits |= permPrint | permPrintHiQuality
	}
	if p.Copy {
		bits |= permCopy
	}
	if p.Modify {
		bits |= permModify
	}
	if p.Annotate {
		bits |= permAnnotate
	}
	if p.FillForms {
		bits |= permFillForms
	}
	return model.PermissionFlags(bits)
}

// aesConf builds an AES-256 encryption configuration.
func aesConf(userPassword, ownerPassword string) *model.Configuration {
	c := model.NewAESConfiguration(userPassword, ownerPassword, 256)
	// Keep the same relaxed validation as the default configuration.
	c.ValidationMode = model.ValidationRelaxed
	return c
}

// Encrypt produces a password-protected copy of the document. The
// password serves as both user and owner password, with the given
// viewer permissions.
func Encrypt(doc []byte, password string, perms Permissions) ([]byte, error) {
	c := aesConf(password, password)
	c.Permissions = perms.flags()

	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(doc), &out, c); err != nil {
		return nil, fmt.Errorf("pdfops: encrypt: %w", classifyAuth(err))
	}
	return out.Bytes(), nil
}

// Decrypt produces an unencrypted copy of the document. A wrong
// password surfaces as ErrWrongPassword.
func Decrypt(doc []byte, password string) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(doc), &out, aesConf(password, password)); err != nil {
		return nil, fmt.Errorf("pdfops: decrypt: %w", classifyAuth(err))
	}
	return out.Bytes(), nil
}

// SetPermissions re-encrypts the document with an explicit permission
// set. The password must be the document's owner password (or the
// password for a document being freshly protected).
func SetPermissions(doc []byte, password string, perms Permissions) ([]byte, error) {
	// An unencrypted document cannot carry permissions; protect it
	// first. An encrypted one gets its permission flags rewritten in
	// place.
	info, err := Info(doc)
	if err != nil {
		return nil, err
	}
	if !info.Encrypted {
		return Encrypt(doc, password, perms)
	}

	c := aesConf(password, password)
	c.Permissions = perms.flags()

	var out bytes.Buffer
	if err := api.SetPermissions(bytes.NewReader(doc), &out, c); err != nil {
		return nil, fmt.Errorf("pdfops: set permissions: %w", classifyAuth(err))
	}
	return out.Bytes(), nil
}
