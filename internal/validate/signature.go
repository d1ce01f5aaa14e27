// SPDX-License-Identifier: MPL-2.0

package validate

import (
	"archive/zip"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrUntrustedSigner indicates the signature verified cryptographically
	// but the signing identity is not allow-listed.
	ErrUntrustedSigner = errors.New("untrusted signer")

	// ErrTampered indicates signature coverage or digest mismatches that
	// point at a modified archive: an unsigned content entry in a signed
	// package, a digest that does not match the entry, or a signature that
	// fails verification.
	ErrTampered = errors.New("package tampered")
)

type (
	// SignatureManifest is the decoded META-INF/signature.toml: the signer
	// identity, an Ed25519 signature (hex) over the canonical digest
	// table, and one SHA-256 digest (hex) per signed entry name.
	SignatureManifest struct {
		Signer    string            `toml:"signer"`
		Signature string            `toml:"signature"`
		Digests   map[string]string `toml:"digests"`
	}

	// TrustedSigners maps allow-listed signer identities to their Ed25519
	// public keys.
	TrustedSigners map[string]ed25519.PublicKey
)

// readSignature decodes the signature manifest from the archive, or
// returns (nil, nil) when the package is unsigned.
func readSignature(zr *zip.Reader) (*SignatureManifest, error) {
	for _, f := range zr.File {
		if f.Name != SignatureEntry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", SignatureEntry, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxManifestBytes))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", SignatureEntry, err)
		}

		var sm SignatureManifest
		if err := toml.Unmarshal(data, &sm); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", SignatureEntry, err)
		}
		return &sm, nil
	}

	return nil, nil
}

// verifySignature checks a signed package end to end: every non-metadata
// entry must appear in the digest table with a matching SHA-256 digest
// (an unlisted entry means partial signing, which is rejected as
// tampering), and the signature over the canonical digest table must
// verify against the allow-listed key for the claimed signer.
func verifySignature(zr *zip.Reader, sm *SignatureManifest, trusted TrustedSigners) error {
	key, ok := trusted[sm.Signer]
	if !ok {
		return fmt.Errorf("%w: %q is not allow-listed", ErrUntrustedSigner, sm.Signer)
	}

	sig, err := hex.DecodeString(sm.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrTampered)
	}

	if !ed25519.Verify(key, SigningPayload(sm.Digests), sig) {
		return fmt.Errorf("%w: signature does not verify for signer %q", ErrTampered, sm.Signer)
	}

	for _, f := range zr.File {
		if isMetaEntry(f.Name) || strings.HasSuffix(f.Name, "/") {
			continue
		}

		want, listed := sm.Digests[f.Name]
		if !listed {
			return fmt.Errorf("%w: entry %q is not signed", ErrTampered, f.Name)
		}

		got, err := entryDigest(f)
		if err != nil {
			return err
		}
		if !strings.EqualFold(got, want) {
			return fmt.Errorf("%w: digest mismatch for entry %q", ErrTampered, f.Name)
		}
	}

	return nil
}

// entryDigest streams one archive entry through SHA-256.
func entryDigest(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening entry %q: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }() // read-only entry handle

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hashing entry %q: %w", f.Name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SigningPayload renders the digest table in its canonical signed form:
// "name=digest" lines sorted by entry name. Signers and verifiers must
// agree on this byte-exact layout.
func SigningPayload(digests map[string]string) []byte {
	names := make([]string, 0, len(digests))
	for name := range digests {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(digests[name]))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
