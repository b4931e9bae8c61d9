package macro

import (
	"errors"
	"sort"
	"strings"
)

const (
	numBuckets = 64
	bucketMask = numBuckets - 1
)

// ErrProtected is returned when a directive tries to replace a protected
// macro.
var ErrProtected = errors.New("protected macro")

// Slot is the result of FindSlot: where name lives or would be inserted.
type Slot struct {
	bucket int
	index  int
	// Exact is true when the definition at the slot is named name.
	Exact bool
}

// Table maps names to definitions. Names hash into a fixed number of
// buckets; each bucket is kept sorted by name so one pass finds either the
// definition or its insertion point.
type Table struct {
	buckets [numBuckets][]*Definition
	count   int

	// Strict hides Extension macros from Lookup.
	Strict bool
	// MaxMacros is the soft ceiling; LimitExceeded runs once when the count
	// first goes past it.
	MaxMacros     int
	LimitExceeded func(count, limit int)
	warned        bool
}

// NewTable returns an empty table with a soft ceiling of maxMacros
// (0 disables the ceiling).
func NewTable(maxMacros int) *Table {
	return &Table{MaxMacros: maxMacros}
}

func bucketOf(name string) int {
	sum := len(name)
	for i := 0; i < len(name); i++ {
		sum += int(name[i])
	}
	return sum & bucketMask
}

// FindSlot locates name. The walk stops at the first entry not sorting
// before name.
func (t *Table) FindSlot(name string) Slot {
	b := bucketOf(name)
	list := t.buckets[b]
	i := sort.Search(len(list), func(i int) bool {
		return strings.Compare(list[i].Name, name) >= 0
	})
	return Slot{bucket: b, index: i, Exact: i < len(list) && list[i].Name == name}
}

// At returns the definition at an exact slot, or nil.
func (t *Table) At(s Slot) *Definition {
	if !s.Exact {
		return nil
	}
	return t.buckets[s.bucket][s.index]
}

// Lookup returns the visible definition of name, or nil.
func (t *Table) Lookup(name string) *Definition {
	d := t.At(t.FindSlot(name))
	if d == nil || !t.visible(d) {
		return nil
	}
	return d
}

// Defined reports whether name has a visible definition.
func (t *Table) Defined(name string) bool {
	return t.Lookup(name) != nil
}

func (t *Table) visible(d *Definition) bool {
	return !(t.Strict && d.Kind == Extension)
}

// Install stores def at slot, which must come from FindSlot(def.Name) with
// no mutation in between. An exact slot is replaced in place unless the
// current occupant is protected.
func (t *Table) Install(def *Definition, slot Slot) (*Definition, error) {
	if slot.Exact {
		cur := t.buckets[slot.bucket][slot.index]
		if cur.Kind == Protected {
			return nil, ErrProtected
		}
		t.buckets[slot.bucket][slot.index] = def
		return def, nil
	}
	list := t.buckets[slot.bucket]
	list = append(list, nil)
	copy(list[slot.index+1:], list[slot.index:])
	list[slot.index] = def
	t.buckets[slot.bucket] = list
	t.count++
	if t.MaxMacros > 0 && t.count > t.MaxMacros && !t.warned {
		t.warned = true
		if t.LimitExceeded != nil {
			t.LimitExceeded(t.count, t.MaxMacros)
		}
	}
	return def, nil
}

// Undefine removes name. It returns false when there is nothing visible to
// remove or the macro is protected.
func (t *Table) Undefine(name string) bool {
	slot := t.FindSlot(name)
	d := t.At(slot)
	if d == nil || d.Kind == Protected || !t.visible(d) {
		return false
	}
	t.remove(slot)
	return true
}

// DefinePrivileged installs def even over a protected macro.
func (t *Table) DefinePrivileged(def *Definition) *Definition {
	slot := t.FindSlot(def.Name)
	if slot.Exact {
		t.buckets[slot.bucket][slot.index] = def
		return def
	}
	d, _ := t.Install(def, slot)
	return d
}

// UndefinePrivileged removes name whatever its kind.
func (t *Table) UndefinePrivileged(name string) bool {
	slot := t.FindSlot(name)
	if !slot.Exact {
		return false
	}
	t.remove(slot)
	return true
}

func (t *Table) remove(s Slot) {
	list := t.buckets[s.bucket]
	copy(list[s.index:], list[s.index+1:])
	list[len(list)-1] = nil
	t.buckets[s.bucket] = list[:len(list)-1]
	t.count--
}

// Len returns the number of installed definitions, hidden ones included.
func (t *Table) Len() int { return t.count }

// Clear releases every definition.
func (t *Table) Clear() {
	for i := range t.buckets {
		t.buckets[i] = nil
	}
	t.count = 0
	t.warned = false
}

// All returns the visible definitions sorted by name.
func (t *Table) All() []*Definition {
	all := make([]*Definition, 0, t.count)
	for _, list := range t.buckets {
		for _, d := range list {
			if t.visible(d) {
				all = append(all, d)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}
