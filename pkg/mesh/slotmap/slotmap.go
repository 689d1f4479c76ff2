// Package slotmap gives the mesh runtime a single-owner alternative to the
// teacher source's shared_ptr/captured-this ownership model (spec.md §9).
//
// A Session owns a Map[T] outright. Every other component that needs to
// refer to an entry - a scheduled task, a callback closure, a routing
// table row - holds an ID{slot, generation} instead of a pointer. Once an
// entry is removed its slot is recycled for a future Insert, but the old
// ID's generation no longer matches, so any stale reference silently
// resolves to "not found" rather than dereferencing freed or repurposed
// memory. This is what lets Connection <-> Session be a one-way ownership
// edge instead of a reference-counted cycle.
package slotmap

// ID identifies one entry in a Map. The zero ID never resolves to a live
// entry; Map.Insert never hands out slot 0 with generation 0 together.
type ID struct {
	Slot uint32
	Gen  uint32
}

// Valid reports whether the ID is anything other than the zero value.
func (id ID) Valid() bool {
	return id.Slot != 0 || id.Gen != 0
}

type entry[T any] struct {
	gen   uint32
	alive bool
	value T
}

// Map is a generational slot table. The zero value is not usable; use New.
type Map[T any] struct {
	entries []entry[T]
	free    []uint32
}

// New creates an empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{
		// slot 0 is never issued, so a zero ID can never collide with a
		// live entry.
		entries: make([]entry[T], 1),
	}
}

// Insert stores value and returns the ID to reach it by.
func (m *Map[T]) Insert(value T) ID {
	if n := len(m.free); n > 0 {
		slot := m.free[n-1]
		m.free = m.free[:n-1]
		e := &m.entries[slot]
		e.alive = true
		e.value = value
		return ID{Slot: slot, Gen: e.gen}
	}

	slot := uint32(len(m.entries))
	m.entries = append(m.entries, entry[T]{gen: 1, alive: true, value: value})
	return ID{Slot: slot, Gen: 1}
}

// Get returns the value stored under id and whether it is still live.
func (m *Map[T]) Get(id ID) (T, bool) {
	var zero T
	if !m.inRange(id) {
		return zero, false
	}
	e := &m.entries[id.Slot]
	if !e.alive || e.gen != id.Gen {
		return zero, false
	}
	return e.value, true
}

// Set replaces the value stored under id, if it is still live. Returns
// false if the ID is stale.
func (m *Map[T]) Set(id ID, value T) bool {
	if !m.inRange(id) {
		return false
	}
	e := &m.entries[id.Slot]
	if !e.alive || e.gen != id.Gen {
		return false
	}
	e.value = value
	return true
}

// Remove frees the slot behind id, bumping its generation so any ID still
// held elsewhere stops resolving. Returns false if id was already stale.
func (m *Map[T]) Remove(id ID) bool {
	if !m.inRange(id) {
		return false
	}
	e := &m.entries[id.Slot]
	if !e.alive || e.gen != id.Gen {
		return false
	}
	var zero T
	e.alive = false
	e.value = zero
	e.gen++
	m.free = append(m.free, id.Slot)
	return true
}

// Len returns the number of live entries.
func (m *Map[T]) Len() int {
	n := 0
	for i := 1; i < len(m.entries); i++ {
		if m.entries[i].alive {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry, in slot order. fn may not mutate the
// map; collect IDs first if you need to remove while iterating.
func (m *Map[T]) Each(fn func(ID, T)) {
	for i := 1; i < len(m.entries); i++ {
		e := &m.entries[i]
		if e.alive {
			fn(ID{Slot: uint32(i), Gen: e.gen}, e.value)
		}
	}
}

// IDs returns the IDs of every live entry, in slot order.
func (m *Map[T]) IDs() []ID {
	ids := make([]ID, 0, m.Len())
	m.Each(func(id ID, _ T) { ids = append(ids, id) })
	return ids
}

func (m *Map[T]) inRange(id ID) bool {
	return id.Slot != 0 && int(id.Slot) < len(m.entries)
}
