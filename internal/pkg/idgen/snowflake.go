// Package idgen generates time-ordered 64-bit snowflake ids.
//
// Layout, most significant bit first:
//
//	1 bit unused | 41 bits ms since Epoch | 5 bits datacenter | 5 bits worker | 12 bits sequence
package idgen

import (
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"time"

	"github.com/prn-tf/pan-storage/internal/domain"
)

const (
	// Epoch is the custom epoch in Unix milliseconds (2010-11-04T01:42:54.657Z).
	Epoch int64 = 1288834974657

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	// MaxWorkerID is the largest worker id that fits the layout.
	MaxWorkerID int64 = -1 ^ (-1 << workerIDBits)

	// MaxDatacenterID is the largest datacenter id that fits the layout.
	MaxDatacenterID int64 = -1 ^ (-1 << datacenterIDBits)

	sequenceMask int64 = -1 ^ (-1 << sequenceBits)

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits
)

// Clock returns the current time in Unix milliseconds.
type Clock func() int64

func systemClock() int64 {
	return time.Now().UnixMilli()
}

// Generator mints snowflake ids. It is safe for concurrent use.
type Generator struct {
	mu            sync.Mutex
	workerID      int64
	datacenterID  int64
	sequence      int64
	lastTimestamp int64
	clock         Clock
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkerID overrides the derived worker id. Values are masked to 5 bits.
func WithWorkerID(id int64) Option {
	return func(g *Generator) {
		g.workerID = id & MaxWorkerID
	}
}

// WithDatacenterID overrides the derived datacenter id. Values are masked to 5 bits.
func WithDatacenterID(id int64) Option {
	return func(g *Generator) {
		g.datacenterID = id & MaxDatacenterID
	}
}

// WithClock replaces the millisecond clock.
func WithClock(c Clock) Option {
	return func(g *Generator) {
		g.clock = c
	}
}

// New creates a Generator whose worker and datacenter ids are derived
// from the local network interfaces unless overridden.
func New(opts ...Option) *Generator {
	datacenterID, workerID := machineIDs()
	g := &Generator{
		workerID:      workerID,
		datacenterID:  datacenterID,
		lastTimestamp: -1,
		clock:         systemClock,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WorkerID returns the worker id embedded in every generated id.
func (g *Generator) WorkerID() int64 { return g.workerID }

// DatacenterID returns the datacenter id embedded in every generated id.
func (g *Generator) DatacenterID() int64 { return g.datacenterID }

// Generate returns the next id.
// It fails with domain.ErrClockRegression if the clock moved backwards
// since the previous call.
func (g *Generator) Generate() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if now < g.lastTimestamp {
		return 0, fmt.Errorf("%w: refusing to generate id for %d ms", domain.ErrClockRegression, g.lastTimestamp-now)
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			now = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	return ((now - Epoch) << timestampShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

// MustGenerate is like Generate but panics on error.
func (g *Generator) MustGenerate() int64 {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

func (g *Generator) waitNextMillis(last int64) int64 {
	now := g.clock()
	for now <= last {
		now = g.clock()
	}
	return now
}

// Parts is a decoded id.
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Decompose splits id into its fields.
func Decompose(id int64) Parts {
	return Parts{
		Time:         time.UnixMilli((id >> timestampShift) + Epoch).UTC(),
		DatacenterID: (id >> datacenterIDShift) & MaxDatacenterID,
		WorkerID:     (id >> workerIDShift) & MaxWorkerID,
		Sequence:     id & sequenceMask,
	}
}

// machineIDs hashes the names and hardware addresses of the local
// interfaces. Hosts without readable interfaces get zero ids.
func machineIDs() (datacenterID, workerID int64) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, 0
	}

	h := fnv.New64a()
	for _, iface := range ifaces {
		h.Write([]byte(iface.Name))
		h.Write(iface.HardwareAddr)
	}
	sum := int64(h.Sum64() & 0x7fffffffffffffff)

	return (sum >> workerIDBits) & MaxDatacenterID, sum & MaxWorkerID
}
