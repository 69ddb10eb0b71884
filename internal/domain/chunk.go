package domain

import (
	"cmp"
	"slices"
	"time"
)

// FileChunk represents one uploaded slice of a larger file.
// Chunks of one upload share Identifier and CreatorID and are told apart by ChunkNumber.
type FileChunk struct {
	// ID is the snowflake id of the record.
	ID int64 `json:"id"`

	// Identifier is the fingerprint of the whole file the chunk belongs to.
	Identifier string `json:"identifier"`

	// ChunkNumber is the 1-based position of the chunk.
	ChunkNumber int `json:"chunk_number"`

	// RealPath is the backend-specific location of the chunk bytes.
	RealPath string `json:"real_path"`

	// ExpiresAt is when the chunk stops counting towards completion.
	ExpiresAt time.Time `json:"expires_at"`

	// CreatorID is the uploading user.
	CreatorID int64 `json:"creator_id"`

	// CreatedAt is when the chunk was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// NewFileChunk creates a FileChunk that expires ttl from now.
func NewFileChunk(id int64, identifier string, chunkNumber int, realPath string, creatorID int64, ttl time.Duration) *FileChunk {
	now := time.Now().UTC()
	return &FileChunk{
		ID:          id,
		Identifier:  identifier,
		ChunkNumber: chunkNumber,
		RealPath:    realPath,
		ExpiresAt:   now.Add(ttl),
		CreatorID:   creatorID,
		CreatedAt:   now,
	}
}

// IsExpired returns true if the chunk expired at or before now.
func (c *FileChunk) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SortChunks orders chunks ascending by chunk number in place.
func SortChunks(chunks []*FileChunk) {
	slices.SortFunc(chunks, func(a, b *FileChunk) int {
		return cmp.Compare(a.ChunkNumber, b.ChunkNumber)
	})
}

// ChunkPaths returns the real paths of chunks in their current order.
func ChunkPaths(chunks []*FileChunk) []string {
	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = c.RealPath
	}
	return paths
}

// ChunkIDs returns the record ids of chunks.
func ChunkIDs(chunks []*FileChunk) []int64 {
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
