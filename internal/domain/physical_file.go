package domain

import (
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// CompositeSeparator packs two values into one string field.
// It appears in chunk file names and in joined id token lists.
const CompositeSeparator = "__,__"

// PhysicalFile represents stored content addressed by its fingerprint.
// Any number of logical file nodes may reference one PhysicalFile.
type PhysicalFile struct {
	// ID is the snowflake id of the record.
	ID int64 `json:"id"`

	// Filename is the name the content was first uploaded with.
	Filename string `json:"filename"`

	// Identifier is the client-supplied content fingerprint (dedup key).
	Identifier string `json:"identifier"`

	// RealPath is the backend-specific location of the bytes.
	// Immutable once set.
	RealPath string `json:"real_path"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// SizeDesc is Size in human-readable form.
	SizeDesc string `json:"size_desc"`

	// Suffix is the file extension including the dot, or empty.
	Suffix string `json:"suffix"`

	// ContentType is the preview content type derived from Suffix.
	ContentType string `json:"content_type"`

	// CreatorID is the user who first stored the content.
	CreatorID int64 `json:"creator_id"`

	// CreatedAt is when the content was stored.
	CreatedAt time.Time `json:"created_at"`
}

// NewPhysicalFile creates a PhysicalFile record for content stored at realPath.
func NewPhysicalFile(id int64, filename, identifier, realPath string, size, creatorID int64) *PhysicalFile {
	suffix := FileSuffix(filename)
	return &PhysicalFile{
		ID:          id,
		Filename:    filename,
		Identifier:  identifier,
		RealPath:    realPath,
		Size:        size,
		SizeDesc:    humanize.Bytes(uint64(max(size, 0))),
		Suffix:      suffix,
		ContentType: ContentTypeFor(suffix),
		CreatorID:   creatorID,
		CreatedAt:   time.Now().UTC(),
	}
}

// FileSuffix returns the extension of filename including the dot, lower-cased.
func FileSuffix(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// ContentTypeFor returns the preview content type for suffix.
func ContentTypeFor(suffix string) string {
	if suffix == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(suffix); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
