package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// keyMaterial resolves a key source to PEM bytes. A value is treated as
// a file path when it looks like one (absolute path or .pem suffix),
// otherwise as an inline PEM block.
func keyMaterial(source string) ([]byte, error) {
	if strings.HasPrefix(source, "/") || strings.HasSuffix(source, ".pem") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		return data, nil
	}
	return []byte(source), nil
}

// loadPrivateKey parses an RSA private key from PEM (PKCS#1 or PKCS#8).
func loadPrivateKey(source string) (*rsa.PrivateKey, error) {
	data, err := keyMaterial(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", ErrInvalidKey)
	}
	return key, nil
}

// loadPublicKey parses an RSA public key from PEM (PKIX or PKCS#1).
func loadPublicKey(source string) (*rsa.PublicKey, error) {
	data, err := keyMaterial(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", ErrInvalidKey)
	}
	return key, nil
}

// GenerateKeyPair creates a new RSA key pair and returns the private and
// public keys as PEM blocks (PKCS#8 and PKIX respectively).
func GenerateKeyPair(bits int) (privatePEM, publicPEM string, err error) {
	if bits < 2048 {
		bits = 2048
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("generating key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("encoding private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("encoding public key: %w", err)
	}

	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}
