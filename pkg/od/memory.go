package od

import "sync"

// objectKey identifies one cell across all instances.
type objectKey struct {
	instance int
	index    uint16
	subIndex uint8
}

type cell struct {
	data []byte
	attr Attr
}

// Memory is the C12 in-memory reference backend: a map-backed Dictionary
// with fixed-size byte payloads and per-cell attributes. It exists so C4
// (the SDN gate), the SNMT request builders, and cmd/scmctl have a real
// Dictionary to read and write against in tests and demonstrations; it
// makes no claim about how a production SOD should be structured or
// persisted.
//
// Writes take a single mutex: the C5 contract requires the backend itself
// to serialize access so the core never observes a torn value mid-update.
type Memory struct {
	mu    sync.Mutex
	cells map[objectKey]*cell
}

// NewMemory returns an empty in-memory dictionary.
func NewMemory() *Memory {
	return &Memory{cells: make(map[objectKey]*cell)}
}

// Define seeds one cell with an initial value and attribute set. Intended
// for bootstrap (config.Load -> scm.New), not runtime use.
func (m *Memory) Define(instance int, ref Ref, initial []byte, attr Attr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(initial))
	copy(buf, initial)
	m.cells[objectKey{instance, ref.Index, ref.SubIndex}] = &cell{data: buf, attr: attr}
}

func (m *Memory) lookup(instance int, ref Ref) (*cell, *Result) {
	c, ok := m.cells[objectKey{instance, ref.Index, ref.SubIndex}]
	if !ok {
		return nil, &Result{ErrCode: 0, AbortCode: AbortNoSuchObject}
	}
	return c, nil
}

// AttrGet implements AttrGetter.
func (m *Memory) AttrGet(instance int, ref Ref) (Attr, *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, errRes := m.lookup(instance, ref)
	if errRes != nil {
		return 0, errRes
	}
	return c.attr, nil
}

// Read implements Reader. It returns the segment [SegOffset, SegOffset+SegSize)
// of the cell's payload, or the whole payload if SegSize is zero.
func (m *Memory) Read(instance int, ref Ref) ([]byte, *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, errRes := m.lookup(instance, ref)
	if errRes != nil {
		return nil, errRes
	}
	if ref.SegSize == 0 {
		out := make([]byte, len(c.data))
		copy(out, c.data)
		return out, nil
	}
	start := int(ref.SegOffset)
	end := start + int(ref.SegSize)
	if start < 0 || end > len(c.data) {
		return nil, &Result{ErrCode: 0, AbortCode: AbortLengthMismatch}
	}
	out := make([]byte, ref.SegSize)
	copy(out, c.data[start:end])
	return out, nil
}

// Write implements Writer. Writes to a cell lacking AttrOverridable are
// rejected unless mode is WriteOverride, matching the SDN gate's
// "writes through to SOD with override semantics" requirement.
func (m *Memory) Write(instance int, ref Ref, value []byte, mode WriteMode) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, errRes := m.lookup(instance, ref)
	if errRes != nil {
		return errRes
	}
	if !c.attr.Has(AttrOverridable) && mode != WriteOverride {
		return &Result{ErrCode: 0, AbortCode: AbortWriteNotAllowed}
	}
	if ref.SegSize == 0 {
		if len(value) != len(c.data) {
			return &Result{ErrCode: 0, AbortCode: AbortLengthMismatch}
		}
		copy(c.data, value)
		return nil
	}
	start := int(ref.SegOffset)
	end := start + int(ref.SegSize)
	if start < 0 || end > len(c.data) || len(value) != int(ref.SegSize) {
		return &Result{ErrCode: 0, AbortCode: AbortLengthMismatch}
	}
	copy(c.data[start:end], value)
	return nil
}

var _ Dictionary = (*Memory)(nil)
