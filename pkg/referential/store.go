package referential

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf16"

	lzstring "github.com/daku10/go-lz-string"
)

// Store errors.
var (
	ErrNotLoaded = errors.New("referential not loaded")
	ErrEmptyBlob = errors.New("empty referential blob")
)

// Pair is one dictionary entry as delivered by the vendor.
type Pair struct {
	Index json.Number `json:"index"`
	Value string      `json:"value"`
}

// Store holds the symbolic-to-numeric key bijection.
// Safe for concurrent use; lookups race with the periodic reload.
type Store struct {
	mu sync.RWMutex

	// byName maps symbolic names to numeric keys.
	byName map[string]string

	// byNumber maps numeric keys to symbolic names.
	byNumber map[string]string

	loadedAt time.Time
}

// NewStore creates an empty store. Lookups use the fallback table until
// LoadBlob succeeds.
func NewStore() *Store {
	return &Store{
		byName:   make(map[string]string),
		byNumber: make(map[string]string),
	}
}

// LoadBlob decompresses and parses a vendor referential payload,
// replacing the current dictionary on success. The previous dictionary
// is kept untouched on any error.
func (s *Store) LoadBlob(blob string) error {
	if blob == "" {
		return ErrEmptyBlob
	}

	raw, err := lzstring.DecompressFromUTF16(utf16.Encode([]rune(blob)))
	if err != nil {
		return fmt.Errorf("decompress referential: %w", err)
	}

	var pairs []Pair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return fmt.Errorf("parse referential: %w", err)
	}

	s.ApplyPairs(pairs)
	return nil
}

// ApplyPairs replaces the dictionary with the given entries.
func (s *Store) ApplyPairs(pairs []Pair) {
	byName := make(map[string]string, len(pairs))
	byNumber := make(map[string]string, len(pairs))
	for _, p := range pairs {
		num := p.Index.String()
		if num == "" || p.Value == "" {
			continue
		}
		byName[p.Value] = num
		byNumber[num] = p.Value
	}

	s.mu.Lock()
	s.byName = byName
	s.byNumber = byNumber
	s.loadedAt = time.Now()
	s.mu.Unlock()
}

// NumberFor resolves a symbolic name to its numeric wire key. Falls back
// to the static table when the dictionary has not loaded or omits the
// name. Returns "" for names with no known key.
func (s *Store) NumberFor(name string) string {
	s.mu.RLock()
	num, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		return num
	}
	return FallbackNumber(name)
}

// NameFor resolves a numeric wire key to its symbolic name. Falls back
// to the static table's reverse mapping before loading. Returns "" for
// unknown keys.
func (s *Store) NameFor(number string) string {
	s.mu.RLock()
	name, ok := s.byNumber[number]
	s.mu.RUnlock()
	if ok {
		return name
	}
	for n, num := range fallbackNumbers {
		if num == number {
			return n
		}
	}
	return ""
}

// Loaded reports whether a vendor dictionary has been applied.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loadedAt.IsZero()
}

// LoadedAt returns when the dictionary was last applied (zero if never).
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Size returns the number of dictionary entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
