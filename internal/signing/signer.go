// Package signing provides asymmetric sign, verify, and hash primitives
// over canonically serialized payloads.
//
// Signatures are RSA-PSS over the SHA-256 digest of the canonical bytes,
// with MGF1/SHA-256 and maximum salt length. A signature verifies iff
// the payload bytes are unchanged and the signer held the private key.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Algorithm is the signature algorithm identifier written to audit
// events.
const Algorithm = "RS256"

// Sentinel errors.
var (
	// ErrInvalidKey indicates a key that could not be loaded or parsed.
	ErrInvalidKey = errors.New("invalid key")
	// ErrSigningFailed indicates a signing operation failure.
	ErrSigningFailed = errors.New("signing failed")
)

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Service signs, verifies, and hashes canonical payloads.
//
// One of the keys may be nil: a verify-only Service needs no private key
// and a sign-only Service needs no public key.
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	logger     *zap.Logger
}

// Config holds key material locations. Each value is either a PEM block
// or a path to a PEM file.
type Config struct {
	// PrivateKey is the signing key (PEM or file path).
	PrivateKey string `koanf:"private_key"`
	// PublicKey is the verification key (PEM or file path).
	PublicKey string `koanf:"public_key"`
}

// NewService creates a Service from PEM-encoded key material.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrivateKey == "" && cfg.PublicKey == "" {
		return nil, fmt.Errorf("%w: at least one key is required", ErrInvalidKey)
	}

	s := &Service{logger: logger}

	if cfg.PrivateKey != "" {
		key, err := loadPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("loading private key: %w", err)
		}
		s.privateKey = key
		s.publicKey = &key.PublicKey
	}

	if cfg.PublicKey != "" {
		key, err := loadPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("loading public key: %w", err)
		}
		s.publicKey = key
	}

	return s, nil
}

// Sign canonicalizes the payload and returns a base64-encoded RSA-PSS
// signature over its SHA-256 digest.
func (s *Service) Sign(payload any) (string, error) {
	if s.privateKey == nil {
		return "", fmt.Errorf("%w: no private key configured", ErrSigningFailed)
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	digest := sha256.Sum256(canonical)
	signature, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify reports whether the base64-encoded signature matches the
// payload. Verification failure is a boolean outcome, never an error:
// malformed signatures, wrong keys, and mismatched payloads all return
// false.
func (s *Service) Verify(payload any, signatureB64 string) bool {
	if s.publicKey == nil {
		return false
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		s.logger.Debug("verify: canonicalization failed", zap.Error(err))
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		s.logger.Debug("verify: malformed signature encoding", zap.Error(err))
		return false
	}

	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPSS(s.publicKey, crypto.SHA256, digest[:], signature, pssOptions); err != nil {
		return false
	}
	return true
}

// Hash returns the SHA-256 hex digest of the canonical payload bytes.
func (s *Service) Hash(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
