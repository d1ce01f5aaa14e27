// SPDX-License-Identifier: MPL-2.0

package validate

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

const (
	// MinPackageBytes is the smallest plausible plugin package (1 KiB).
	MinPackageBytes = 1 << 10
	// MaxPackageBytes is the largest plausible plugin package (100 MiB).
	MaxPackageBytes = 100 << 20
)

// ErrInvalidPackage is the sentinel error wrapped by every rejection.
var ErrInvalidPackage = errors.New("invalid package")

type (
	// Validator runs the ordered acceptance checks on downloaded
	// packages. The zero value is not usable; construct with New.
	Validator struct {
		trusted TrustedSigners
		// RequireSignature flips the unsigned-package policy from
		// accept-with-warning to reject.
		RequireSignature bool
		logger           *log.Logger
	}

	// ValidatorOption configures a Validator during construction.
	ValidatorOption func(*Validator)

	// RejectionError describes why a package was rejected. It wraps
	// ErrInvalidPackage for errors.Is() compatibility; Cause carries the
	// underlying classification (ErrTampered, ErrUntrustedSigner, ...)
	// when one applies.
	RejectionError struct {
		Path   string
		Reason string
		Cause  error
	}
)

// Error implements the error interface for RejectionError.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("package %s rejected: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying cause chained onto ErrInvalidPackage.
func (e *RejectionError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrInvalidPackage
}

// Is reports true for ErrInvalidPackage so errors.Is classifies every
// rejection regardless of its specific cause.
func (e *RejectionError) Is(target error) bool { return target == ErrInvalidPackage }

// WithTrustedSigners sets the allow-listed signing identities.
func WithTrustedSigners(t TrustedSigners) ValidatorOption {
	return func(v *Validator) {
		v.trusted = t
	}
}

// WithRequireSignature makes unsigned packages a rejection instead of a
// logged warning.
func WithRequireSignature(require bool) ValidatorOption {
	return func(v *Validator) {
		v.RequireSignature = require
	}
}

// WithLogger overrides the default package logger.
func WithLogger(l *log.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = l
	}
}

// New creates a Validator. Without WithTrustedSigners every signed
// package is rejected as untrusted, so production callers are expected
// to supply the allow-list.
func New(opts ...ValidatorOption) *Validator {
	v := &Validator{
		trusted: TrustedSigners{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the acceptance checks on the package at path, in order,
// short-circuiting on the first failure:
//
//  1. the file exists and is non-empty
//  2. its size falls within the plausible window
//  3. it is a well-formed zip with a readable plugin.toml
//  4. the manifest carries the plugin marker for this host platform
//  5. a signed package has every content entry signed by an
//     allow-listed identity; partial signing is tampering
//  6. an unsigned package is accepted with a logged warning unless
//     RequireSignature is set
//
// Any structural parse error is a hard rejection, never a retry
// condition. A nil return means the package may be installed.
func (v *Validator) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &RejectionError{Path: path, Reason: "file does not exist"}
	}
	if info.IsDir() || info.Size() == 0 {
		return &RejectionError{Path: path, Reason: "file is empty"}
	}

	if info.Size() < MinPackageBytes {
		return &RejectionError{Path: path, Reason: fmt.Sprintf("implausibly small (%d bytes)", info.Size())}
	}
	if info.Size() > MaxPackageBytes {
		return &RejectionError{Path: path, Reason: fmt.Sprintf("implausibly large (%d bytes)", info.Size())}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return &RejectionError{Path: path, Reason: fmt.Sprintf("not a readable archive: %v", err)}
	}
	defer func() { _ = zr.Close() }() // read-only archive handle

	m, err := readManifestFromZip(&zr.Reader)
	if err != nil {
		return &RejectionError{Path: path, Reason: err.Error(), Cause: ErrNoManifest}
	}
	if m.ID == "" || m.Platform != PlatformMarker {
		return &RejectionError{Path: path, Reason: fmt.Sprintf("manifest does not identify a %s plugin", PlatformMarker)}
	}

	sm, err := readSignature(&zr.Reader)
	if err != nil {
		return &RejectionError{Path: path, Reason: err.Error(), Cause: ErrTampered}
	}

	if sm == nil {
		if v.RequireSignature {
			return &RejectionError{Path: path, Reason: "package is not signed and signatures are required"}
		}
		// Backward-compatibility policy: unsigned packages pass with a
		// warning until RequireSignature becomes the default.
		v.logger.Warn("package is not signed", "path", path, "plugin", m.ID)
		return nil
	}

	if err := verifySignature(&zr.Reader, sm, v.trusted); err != nil {
		return &RejectionError{Path: path, Reason: err.Error(), Cause: err}
	}

	v.logger.Debug("package signature verified", "path", path, "signer", sm.Signer)
	return nil
}
