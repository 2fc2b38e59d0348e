package signing

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testPrivPEM string
	testPubPEM  string
)

// testKeys generates one RSA key pair shared across the package tests.
func testKeys(t *testing.T) (string, string) {
	t.Helper()
	testKeyOnce.Do(func() {
		priv, pub, err := GenerateKeyPair(2048)
		if err != nil {
			t.Fatalf("generating test keys: %v", err)
		}
		testPrivPEM = priv
		testPubPEM = pub
	})
	return testPrivPEM, testPubPEM
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	priv, pub := testKeys(t)
	svc, err := NewService(Config{PrivateKey: priv, PublicKey: pub}, nil)
	require.NoError(t, err)
	return svc
}

func TestSignVerify_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	payload := map[string]any{
		"action":    "document:ingest",
		"tenant_id": "acme",
		"count":     3,
	}

	sig, err := svc.Sign(payload)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	assert.True(t, svc.Verify(payload, sig))
}

func TestVerify_TamperedPayload(t *testing.T) {
	svc := newTestService(t)

	sig, err := svc.Sign("original payload")
	require.NoError(t, err)

	assert.False(t, svc.Verify("tampered payload", sig))
}

func TestVerify_MalformedSignature(t *testing.T) {
	svc := newTestService(t)

	assert.False(t, svc.Verify("payload", "not-base64!!!"))
	assert.False(t, svc.Verify("payload", ""))
	assert.False(t, svc.Verify("payload", "aGVsbG8="))
}

func TestVerify_FieldOrderIrrelevant(t *testing.T) {
	svc := newTestService(t)

	type variantA struct {
		B string `json:"b"`
		A string `json:"a"`
	}
	type variantB struct {
		A string `json:"a"`
		B string `json:"b"`
	}

	sig, err := svc.Sign(variantA{A: "1", B: "2"})
	require.NoError(t, err)

	// Canonical form sorts keys, so a different field order verifies.
	assert.True(t, svc.Verify(variantB{A: "1", B: "2"}, sig))
}

func TestSign_NoPrivateKey(t *testing.T) {
	_, pub := testKeys(t)
	svc, err := NewService(Config{PublicKey: pub}, nil)
	require.NoError(t, err)

	_, err = svc.Sign("payload")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestNewService_NoKeys(t *testing.T) {
	_, err := NewService(Config{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewService_BadPEM(t *testing.T) {
	_, err := NewService(Config{PrivateKey: "not a pem block"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestHash_Deterministic(t *testing.T) {
	svc := newTestService(t)

	payload := map[string]any{"x": 1, "y": "two"}

	first, err := svc.Hash(payload)
	require.NoError(t, err)
	second, err := svc.Hash(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestCanonicalize_SortsKeys(t *testing.T) {
	got, err := Canonicalize(map[string]any{"zebra": 1, "apple": 2, "mango": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"mango":3,"zebra":1}`, string(got))
}

func TestCanonicalize_RawBytesAndStrings(t *testing.T) {
	fromBytes, err := Canonicalize([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), fromBytes)

	fromString, err := Canonicalize("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), fromString)
}

func TestCanonicalize_NumbersStayLiteral(t *testing.T) {
	// Large integers must not pick up float formatting on the round trip.
	got, err := Canonicalize(map[string]any{"n": int64(9007199254740993)})
	require.NoError(t, err)
	assert.Equal(t, `{"n":9007199254740993}`, string(got))
}

func TestGenerateKeyPair_MinimumBits(t *testing.T) {
	priv, pub, err := GenerateKeyPair(1024) // below floor, raised to 2048
	require.NoError(t, err)
	assert.True(t, strings.Contains(priv, "PRIVATE KEY"))
	assert.True(t, strings.Contains(pub, "PUBLIC KEY"))

	svc, err := NewService(Config{PrivateKey: priv, PublicKey: pub}, nil)
	require.NoError(t, err)

	sig, err := svc.Sign("check")
	require.NoError(t, err)
	assert.True(t, svc.Verify("check", sig))
}
