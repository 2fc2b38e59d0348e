package signing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes a payload to its canonical byte form.
//
// Raw byte and string payloads are used as-is. Structured payloads are
// encoded as compact JSON with map keys sorted lexicographically, which
// is the exact input to hashing and signing. Sign and verify must see
// bit-identical bytes, so the encoding round-trips through a generic
// value with json.Number to keep numeric literals stable.
func Canonicalize(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("nil payload")
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalizing payload: %w", err)
	}

	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	return canonical, nil
}
