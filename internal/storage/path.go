package storage

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/pan-storage/internal/domain"
)

// JoinFunc joins path elements. filepath.Join for disks, path.Join for object keys.
type JoinFunc func(elem ...string) string

// PathLayout generates backend locations for whole files and chunks.
//
// Layouts, with month and day not zero padded:
//
//	file:  {FileRoot}/{year}/{month}/{day}/{uuid}{suffix}
//	chunk: {ChunkRoot}/{year}/{month}/{day}/{identifier}/{uuid}__,__{chunkNumber}
type PathLayout struct {
	// FileRoot is the base for whole and merged files.
	FileRoot string

	// ChunkRoot is the base for chunks.
	ChunkRoot string

	join  JoinFunc
	now   func() time.Time
	newID func() string
}

// NewLocalLayout returns a layout using the OS path separator.
func NewLocalLayout(fileRoot, chunkRoot string) *PathLayout {
	return &PathLayout{
		FileRoot:  fileRoot,
		ChunkRoot: chunkRoot,
		join:      filepath.Join,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewObjectLayout returns a layout for slash-separated object keys.
func NewObjectLayout(filePrefix, chunkPrefix string) *PathLayout {
	return &PathLayout{
		FileRoot:  filePrefix,
		ChunkRoot: chunkPrefix,
		join:      path.Join,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock returns a copy of the layout that reads the date from now.
func (l *PathLayout) WithClock(now func() time.Time) *PathLayout {
	c := *l
	c.now = now
	return &c
}

// FilePath returns a new location for a whole file named filename.
func (l *PathLayout) FilePath(filename string) string {
	t := l.now()
	return l.join(l.FileRoot, dateDir(t, l.join), l.newID()+domain.FileSuffix(filename))
}

// ChunkPath returns a new location for chunk chunkNumber of identifier.
func (l *PathLayout) ChunkPath(identifier string, chunkNumber int) string {
	t := l.now()
	name := l.newID() + domain.CompositeSeparator + strconv.Itoa(chunkNumber)
	return l.join(l.ChunkRoot, dateDir(t, l.join), identifier, name)
}

func dateDir(t time.Time, join JoinFunc) string {
	return join(strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
}

// ChunkNumberFromPath extracts the chunk number encoded in a chunk location.
func ChunkNumberFromPath(realPath string) (int, bool) {
	i := strings.LastIndex(realPath, domain.CompositeSeparator)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(realPath[i+len(domain.CompositeSeparator):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
