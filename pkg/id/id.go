package id

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// Size is the encoded length of an ID.
const Size = 16

// ID is a sortable identifier: [8 bytes ms_timestamp][8 bytes sequence].
type ID [Size]byte

// Zero is the zero ID; it sorts before every generated ID.
var Zero ID

// Bytes returns a copy of the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, Size); copy(b, i[:]); return b }

// String returns the lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Millis returns the embedded millisecond timestamp.
func (i ID) Millis() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Time returns the embedded timestamp.
func (i ID) Time() time.Time { return time.UnixMilli(i.Millis()) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < Size; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// MarshalText encodes the ID as hex so it round-trips through JSON and YAML.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText decodes the hex form produced by MarshalText.
func (i *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Parse decodes a 32-character hex string.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != Size*2 {
		return out, fmt.Errorf("id: want %d hex chars, got %d", Size*2, len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("id: %w", err)
	}
	return out, nil
}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != Size {
		return out, fmt.Errorf("id: want %d bytes, got %d", Size, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Seed makes later IDs sort after last. Seeding with an older ID is a no-op.
func (g *Generator) Seed(last ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := last.Millis()
	seq := binary.BigEndian.Uint64(last[8:16])
	if ms > g.lastMs || (ms == g.lastMs && seq > g.sequence) {
		g.lastMs = ms
		g.sequence = seq
	}
}

// Next returns a new ID. If the clock goes backwards it reuses lastMs and
// increments the sequence; on sequence overflow it waits for the next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}
