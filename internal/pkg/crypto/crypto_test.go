package crypto

import (
	"encoding/base64"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/domain"
)

func newTestCipher(t *testing.T) *IDCipher {
	t.Helper()
	c, err := NewIDCipherFromSecret("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return c
}

func TestIDCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	ids := []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 1288834974657 << 22}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		ids = append(ids, r.Int63())
	}

	for _, id := range ids {
		token := c.Obfuscate(id)
		got, err := c.Reveal(token)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestIDCipher_Deterministic(t *testing.T) {
	c := newTestCipher(t)
	a := c.Obfuscate(123456789)
	assert.Equal(t, a, c.Obfuscate(123456789))
	assert.NotEqual(t, a, c.Obfuscate(123456790))

	raw, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestIDCipher_RevealErrors(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewIDCipherFromSecret("a passphrase")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"not base64", "!!!not-base64!!!"},
		{"short", base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"two blocks of zeros", base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{"wrong key", other.Obfuscate(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Reveal(tt.token)
			require.ErrorIs(t, err, domain.ErrDecode)
			assert.Equal(t, domain.KindDecode, domain.KindOf(err))
		})
	}
}

func TestIDCipher_List(t *testing.T) {
	c := newTestCipher(t)
	joined := c.ObfuscateList([]int64{3, 1, 2})
	assert.Equal(t, 2, strings.Count(joined, domain.CompositeSeparator))

	ids, err := c.RevealList(joined + domain.CompositeSeparator)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, err = c.RevealList("")
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestNewIDCipher_KeySize(t *testing.T) {
	_, err := NewIDCipher([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewIDCipherFromSecret("")
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey([]byte("secret"), idCipherInfo)
	require.NoError(t, err)
	b, err := DeriveKey([]byte("secret"), idCipherInfo)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, KeySize)

	other, err := DeriveKey([]byte("secret"), []byte("other use"))
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	raw, err := ParseHexKey(k)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)

	_, err = ParseHexKey("zz")
	require.ErrorIs(t, err, ErrInvalidHexKey)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fp, size, err := FingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", fp)
	assert.Equal(t, int64(5), size)
	assert.True(t, ValidateFingerprint(fp))
	assert.False(t, ValidateFingerprint("xyz"))
}
