package vm

// ---------------------------------------------------------------------------
// HashTable: open addressing with linear probing
// ---------------------------------------------------------------------------

const (
	tableMaxLoad = 0.85714286
	tableMinCap  = 8
)

// PropKind distinguishes plain properties from getter functions that are
// invoked when the property is read.
type PropKind uint8

const (
	PropValue PropKind = iota
	PropGetter
)

// Property is the value side of a table entry.
type Property struct {
	Value Value
	Kind  PropKind
}

// Entry is one table slot. A never-used slot has an Empty key and an Empty
// value; a tombstone has an Empty key and the value Bool(true).
type Entry struct {
	Key   Value
	Value Property
}

func (e *Entry) isTombstone() bool {
	return e.Key.IsEmpty() && e.Value.Value.IsBool() && e.Value.Value.AsBool()
}

// HashTable maps Values to Properties. The zero value is an empty table.
type HashTable struct {
	entries []Entry
	count   int // live entries plus tombstones
	live    int
}

// Len returns the number of live entries.
func (t *HashTable) Len() int { return t.live }

// Cap returns the slot count.
func (t *HashTable) Cap() int { return len(t.entries) }

func findEntry(entries []Entry, key Value) *Entry {
	mask := uint32(len(entries) - 1)
	idx := key.Hash() & mask
	var tomb *Entry
	for {
		e := &entries[idx]
		if e.Key.IsEmpty() {
			if !e.isTombstone() {
				if tomb != nil {
					return tomb
				}
				return e
			}
			if tomb == nil {
				tomb = e
			}
		} else if Equal(e.Key, key) {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (t *HashTable) grow() {
	capacity := len(t.entries) * 2
	if capacity < tableMinCap {
		capacity = tableMinCap
	}
	old := t.entries
	t.entries = make([]Entry, capacity)
	t.count = 0
	t.live = 0
	for i := range old {
		e := &old[i]
		if e.Key.IsEmpty() {
			continue
		}
		dst := findEntry(t.entries, e.Key)
		*dst = *e
		t.count++
		t.live++
	}
}

// Get returns the property stored under key.
func (t *HashTable) Get(key Value) (Property, bool) {
	if t.live == 0 {
		return Property{}, false
	}
	e := findEntry(t.entries, key)
	if e.Key.IsEmpty() {
		return Property{}, false
	}
	return e.Value, true
}

// GetValue returns the plain value stored under key.
func (t *HashTable) GetValue(key Value) (Value, bool) {
	p, ok := t.Get(key)
	return p.Value, ok
}

// GetByStr looks up a string key by content, without boxing a Value.
func (t *HashTable) GetByStr(name string) (Property, bool) {
	if t.live == 0 {
		return Property{}, false
	}
	h := hashString(name)
	mask := uint32(len(t.entries) - 1)
	idx := h & mask
	for {
		e := &t.entries[idx]
		if e.Key.IsEmpty() {
			if !e.isTombstone() {
				return Property{}, false
			}
		} else if ks, ok := e.Key.obj.(*String); ok && e.Key.IsObject() && ks.hash == h && ks.Chars == name {
			return e.Value, true
		}
		idx = (idx + 1) & mask
	}
}

// FindString is the interning probe: it returns the String whose contents
// equal chars, or nil.
func (t *HashTable) FindString(chars string, hash uint32) *String {
	if t.live == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.Key.IsEmpty() {
			if !e.isTombstone() {
				return nil
			}
		} else if ks, ok := e.Key.obj.(*String); ok && ks.hash == hash && ks.Chars == chars {
			return ks
		}
		idx = (idx + 1) & mask
	}
}

// SetType stores value under key with the given property kind and reports
// whether the key is new.
func (t *HashTable) SetType(key, value Value, kind PropKind) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := findEntry(t.entries, key)
	isNew := e.Key.IsEmpty()
	if isNew {
		t.live++
		if !e.isTombstone() {
			t.count++
		}
	}
	e.Key = key
	e.Value = Property{Value: value, Kind: kind}
	return isNew
}

// Set stores a plain value under key and reports whether the key is new.
func (t *HashTable) Set(key, value Value) bool {
	return t.SetType(key, value, PropValue)
}

// Remove deletes key, leaving a tombstone so later probes keep walking.
func (t *HashTable) Remove(key Value) bool {
	if t.live == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.Key.IsEmpty() {
		return false
	}
	e.Key = Empty()
	e.Value = Property{Value: Bool(true)}
	t.live--
	return true
}

// CopyTo adds every live entry of t into dst, overwriting duplicates.
func (t *HashTable) CopyTo(dst *HashTable) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Key.IsEmpty() {
			dst.SetType(e.Key, e.Value.Value, e.Value.Kind)
		}
	}
}

// Each calls fn for every live entry in slot order until fn returns false.
func (t *HashTable) Each(fn func(key Value, p Property) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Key.IsEmpty() && !fn(e.Key, e.Value) {
			return
		}
	}
}

// Clear drops every entry and releases the slots.
func (t *HashTable) Clear() {
	t.entries = nil
	t.count = 0
	t.live = 0
}

// removeWhite deletes entries whose key object did not survive marking.
// Used for weak tables such as the string intern cache.
func (t *HashTable) removeWhite(currentMark bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key.IsObject() && e.Key.obj.header().mark != currentMark {
			e.Key = Empty()
			e.Value = Property{Value: Bool(true)}
			t.live--
		}
	}
}
