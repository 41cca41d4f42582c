package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestSealOpen(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("APP_USR-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "APP_USR-123")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-123", plain)
}

func TestBoxKeepsEmptyAndLegacyValues(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)

	legacy, err := box.Open("TG-plain")
	require.NoError(t, err)
	assert.Equal(t, "TG-plain", legacy)
}

func TestFromKey(t *testing.T) {
	s, err := FromKey("")
	require.NoError(t, err)
	assert.IsType(t, Plain{}, s)

	_, err = FromKey("not-base64!")
	require.Error(t, err)

	_, err = FromKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}

func TestPlainRefusesSealedValues(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	_, err = Plain{}.Open(sealed)
	require.Error(t, err)
}
