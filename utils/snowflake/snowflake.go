// Package snowflake generates time-ordered 63-bit message IDs.
//
// Layout: 41 bits of milliseconds since Epoch, WorkerBits of worker ID and
// SequenceBits of per-millisecond sequence. IDs from one generator are
// strictly increasing, so ordering by ID is ordering by commit.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC)
	Epoch int64 = 1704067200000 // milliseconds

	WorkerBits   uint8 = 10
	SequenceBits uint8 = 12

	MaxWorkerID = -1 ^ (-1 << WorkerBits)

	workerShift    = SequenceBits
	timestampShift = SequenceBits + WorkerBits
	sequenceMask   = -1 ^ (-1 << SequenceBits)

	// maxBackwardDrift small NTP corrections are absorbed by waiting
	maxBackwardDrift = 5 * time.Millisecond
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID out of range")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Generator is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	workerID int64
	now      func() time.Time

	sequence      int64
	lastTimestamp int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(workerID int64, opts ...Option) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	g := &Generator{workerID: workerID, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NextID generates the next unique ID
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := g.millis()

	if timestamp < g.lastTimestamp {
		if time.Duration(g.lastTimestamp-timestamp)*time.Millisecond > maxBackwardDrift {
			return 0, ErrClockMovedBackwards
		}
		timestamp = g.waitUntil(g.lastTimestamp)
	}

	if timestamp == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		// Sequence overflow - wait for next millisecond
		if g.sequence == 0 {
			timestamp = g.waitUntil(g.lastTimestamp + 1)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = timestamp

	return ((timestamp - Epoch) << timestampShift) |
		(g.workerID << workerShift) |
		g.sequence, nil
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

// waitUntil spins until the clock reaches target milliseconds.
func (g *Generator) waitUntil(target int64) int64 {
	timestamp := g.millis()
	for timestamp < target {
		time.Sleep(100 * time.Microsecond)
		timestamp = g.millis()
	}
	return timestamp
}

// Time returns the creation time encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timestampShift) + Epoch).UTC()
}

// Parse extracts the components from an ID.
func Parse(id int64) (timestamp, workerID, sequence int64) {
	sequence = id & sequenceMask
	workerID = (id >> workerShift) & MaxWorkerID
	timestamp = (id >> timestampShift) + Epoch
	return
}
