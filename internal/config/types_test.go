package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
}

func TestSecret_Empty(t *testing.T) {
	var s Secret
	assert.Equal(t, "", s.String())
	assert.False(t, s.IsSet())
}

func TestSecret_JSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(Secret("hunter2"))
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(out))

	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"raw-value"`), &s))
	assert.Equal(t, "raw-value", s.Value())
}

func TestSecret_Text(t *testing.T) {
	out, err := Secret("hunter2").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(out))

	var s Secret
	require.NoError(t, s.UnmarshalText([]byte("raw-value")))
	assert.Equal(t, "raw-value", s.Value())
}
