package provider

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/glorpus-work/hoard/pkg/errors"
)

// TrustAnchor is the hex encoded ed25519 public key that signs the providers
// shipped with hoard.
const TrustAnchor = "4b8e8a3f135f0d61124810e56cc39648f01706d69d0cf1b16018639a9bb0ba76"

const payloadHeader = "hoard-provider-v1\n"

// SignedPayload returns the bytes covered by a package signature: a fixed
// header, the manifest length, the manifest and the script.
func SignedPayload(manifest, script []byte) []byte {
	buf := make([]byte, 0, len(payloadHeader)+8+len(manifest)+len(script))
	buf = append(buf, payloadHeader...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(manifest)))
	buf = append(buf, manifest...)
	return append(buf, script...)
}

// Sign returns the hex encoded detached signature of a package.
func Sign(key ed25519.PrivateKey, manifest, script []byte) string {
	return hex.EncodeToString(ed25519.Sign(key, SignedPayload(manifest, script)))
}

// VerifySignature checks sig against every anchor and succeeds if any accepts it.
func VerifySignature(anchors []ed25519.PublicKey, manifest, script []byte, sig string) error {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return fmt.Errorf("%w: no signature", errors.ErrSignatureInvalid)
	}
	raw, err := hex.DecodeString(sig)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", errors.ErrSignatureInvalid)
	}
	payload := SignedPayload(manifest, script)
	for _, key := range anchors {
		if ed25519.Verify(key, payload, raw) {
			return nil
		}
	}
	return fmt.Errorf("%w: not signed by a trusted key", errors.ErrSignatureInvalid)
}

// ParsePublicKey decodes a hex encoded ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// ParsePrivateKey decodes a hex encoded ed25519 seed or full private key.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// GenerateKey creates a new signing key pair, hex encoded. The private key is
// returned as its seed.
func GenerateKey() (publicKey, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv.Seed()), nil
}
