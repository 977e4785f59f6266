// internal/domain/favorite/entity.go
package favorite

import (
	"errors"
	"strings"
	"time"

	"solare/internal/domain/product"
)

var (
	ErrInvalidEntry = errors.New("favorite: invalid entry")
)

// Entry is a saved product with display fields captured at favorite-time.
// A product id appears at most once in a favorites set.
type Entry struct {
	ProductID string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Image     string    `json:"image,omitempty"`
	Category  string    `json:"category,omitempty"`
	AddedAt   time.Time `json:"addedAt,omitempty"`
}

func NewEntry(p product.Product, now time.Time) (Entry, error) {
	pid := strings.TrimSpace(p.ID)
	if pid == "" {
		return Entry{}, ErrInvalidEntry
	}
	return Entry{
		ProductID: pid,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Category:  p.Category,
		AddedAt:   now,
	}, nil
}

// Merge unions local and remote favorites.
//   - remote entries win on conflicting product ids (their fields are kept)
//   - merged order: remote order first, then local-only entries in local order
//   - localOnly lists the entries that the remote store does not have yet
//
// Duplicates inside either input are collapsed to their first occurrence.
func Merge(local, remote []Entry) (merged []Entry, localOnly []Entry) {
	seen := make(map[string]struct{}, len(local)+len(remote))
	merged = make([]Entry, 0, len(local)+len(remote))
	localOnly = []Entry{}

	for _, e := range remote {
		pid := strings.TrimSpace(e.ProductID)
		if pid == "" {
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		merged = append(merged, e)
	}

	for _, e := range local {
		pid := strings.TrimSpace(e.ProductID)
		if pid == "" {
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		merged = append(merged, e)
		localOnly = append(localOnly, e)
	}

	return merged, localOnly
}

// IndexOf returns the index of productID in entries, or -1.
func IndexOf(entries []Entry, productID string) int {
	pid := strings.TrimSpace(productID)
	for i := range entries {
		if entries[i].ProductID == pid {
			return i
		}
	}
	return -1
}

// Dedupe keeps the first occurrence of every product id and drops blank ids.
func Dedupe(entries []Entry) []Entry {
	out, _ := Merge(nil, entries)
	return out
}

func Clone(src []Entry) []Entry {
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}
