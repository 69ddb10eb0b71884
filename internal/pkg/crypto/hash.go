package crypto

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"regexp"
)

// HashReader wraps an io.Reader and computes the content fingerprint while reading.
// The fingerprint is the hex MD5 digest, the same value upload clients send as identifier.
type HashReader struct {
	reader   io.Reader
	md5      hash.Hash
	size     int64
	finished bool
}

// NewHashReader creates a new HashReader.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		md5:    md5.New(),
	}
}

// Read implements io.Reader and updates the digest.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.md5.Write(p[:n])
		h.size += int64(n)
	}
	if err == io.EOF {
		h.finished = true
	}
	return n, err
}

// Fingerprint returns the hex-encoded MD5 digest.
// Should only be called after reading is complete.
func (h *HashReader) Fingerprint() string {
	return hex.EncodeToString(h.md5.Sum(nil))
}

// Size returns the number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// IsFinished returns true once the underlying reader hit EOF.
func (h *HashReader) IsFinished() bool {
	return h.finished
}

// FingerprintFile computes the fingerprint and size of the file at path.
func FingerprintFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hr := NewHashReader(f)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hr.Fingerprint(), hr.Size(), nil
}

var fingerprintPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

// ValidateFingerprint checks that s looks like a hex MD5 digest.
func ValidateFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}
