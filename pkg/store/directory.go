package store

import (
	"sort"
	"sync"

	"github.com/ssargent/recordvault/pkg/alloc"
	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
)

// entry is one initialized record
type entry struct {
	codec *codec.RecordCodec
	alloc *alloc.Allocation
}

// directory maps record keys to their allocations
type directory struct {
	entries map[keys.Address]*entry
	mutex   sync.RWMutex
}

func newDirectory() *directory {
	return &directory{
		entries: make(map[keys.Address]*entry),
	}
}

// Put adds or replaces the entry for a key
func (d *directory) Put(key keys.Address, e *entry) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.entries[key] = e
}

// Get retrieves the entry for a key
func (d *directory) Get(key keys.Address) (*entry, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	e, exists := d.entries[key]
	return e, exists
}

// Has reports whether the key is initialized
func (d *directory) Has(key keys.Address) bool {
	_, exists := d.Get(key)
	return exists
}

// Size returns the number of records
func (d *directory) Size() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.entries)
}

// Keys returns all keys sorted by their base58 form
func (d *directory) Keys() []keys.Address {
	d.mutex.RLock()
	out := make([]keys.Address, 0, len(d.entries))
	for key := range d.entries {
		out = append(out, key)
	}
	d.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
