// Package geo maintains a zip-code index used for pharmacy proximity
// lookups. The index is loaded from a CSV of zip, city, state rows and
// queried by exact zip.
package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Location is one zip code entry.
type Location struct {
	Zip   string
	City  string
	State string
}

// Index is a read-mostly zip lookup table. Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	byZp map[string]Location
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byZp: make(map[string]Location)}
}

// Load replaces the index contents from CSV rows of zip,city,state. A
// header row is detected by a non-numeric first field and skipped.
// Malformed rows abort the load and leave the index unchanged.
func (i *Index) Load(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	next := make(map[string]Location)
	row := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read zip csv: %w", err)
		}
		row++
		zip := strings.TrimSpace(rec[0])
		if row == 1 && !isDigits(zip) {
			continue
		}
		if !isDigits(zip) || len(zip) != 5 {
			return 0, fmt.Errorf("row %d: %q is not a 5-digit zip", row, zip)
		}
		next[zip] = Location{
			Zip:   zip,
			City:  strings.TrimSpace(rec[1]),
			State: strings.TrimSpace(rec[2]),
		}
	}

	i.mu.Lock()
	i.byZp = next
	i.mu.Unlock()
	return len(next), nil
}

// Lookup returns the location for a zip code.
func (i *Index) Lookup(zip string) (Location, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	loc, ok := i.byZp[zip]
	return loc, ok
}

// Len reports the number of indexed zips.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byZp)
}

// Clear empties the index.
func (i *Index) Clear() {
	i.mu.Lock()
	i.byZp = make(map[string]Location)
	i.mu.Unlock()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
