// Package ulid provides the 128-bit identifiers used for weave nodes and
// documents, a monotonic generator, and hashers for identifier-keyed maps.
package ulid

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Size is the encoded size of an ID in bytes.
const Size = 16

// ID is a ULID: a 48-bit millisecond timestamp followed by 80 random bits.
// The zero value is the nil ID and is never produced by a Generator.
type ID [Size]byte

// Nil is the zero ID.
var Nil = ID{}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != Size {
		return Nil, fmt.Errorf("id must be %d bytes, got %d", Size, len(b))
	}
	return ID(b), nil
}

// Parse decodes the canonical 26-character text form.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return Nil, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on error. Intended for tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) Bytes() []byte { return id[:] }

func (id ID) IsNil() bool { return id == Nil }

// Time returns the millisecond timestamp encoded in the ID.
func (id ID) Time() time.Time {
	return ulid.Time(ulid.ULID(id).Time())
}

func (id ID) String() string {
	return ulid.ULID(id).String()
}

// Compare orders IDs bytewise, which is also creation order for IDs from
// one monotonic generator.
func (id ID) Compare(other ID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}

func (id ID) MarshalText() ([]byte, error) {
	return ulid.ULID(id).MarshalText()
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalJSON is provided so that IDs used as values encode as strings even
// through interfaces that bypass TextMarshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id must be a string: %w", err)
	}
	return id.UnmarshalText([]byte(s))
}

// Generator produces IDs that are strictly increasing within a process,
// including several IDs minted in the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	lastMS  uint64
}

// NewGenerator returns a generator seeded from r. A nil reader seeds from
// crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{
		entropy: ulid.Monotonic(r, 0),
		now:     time.Now,
	}
}

// NewGeneratorWithClock is NewGenerator with an injectable clock.
func NewGeneratorWithClock(r io.Reader, now func() time.Time) *Generator {
	g := NewGenerator(r)
	g.now = now
	return g
}

// New returns the next ID.
func (g *Generator) New() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := ulid.Timestamp(g.now())
	if ms < g.lastMS {
		// Clock moved backwards; keep issuing from the last timestamp.
		ms = g.lastMS
	}
	u, err := ulid.New(ms, g.entropy)
	if err != nil {
		// Entropy for this millisecond is exhausted.
		ms++
		u = ulid.MustNew(ms, g.entropy)
	}
	g.lastMS = ms
	return ID(u)
}

var (
	defaultMu  sync.RWMutex
	defaultGen = NewGenerator(nil)
)

// SetDefault replaces the process generator. Hosts call this once at startup.
func SetDefault(g *Generator) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGen = g
}

// Default returns the process generator.
func Default() *Generator {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultGen
}

// Make returns a new ID from the process generator.
func Make() ID {
	return Default().New()
}
