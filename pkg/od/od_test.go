package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdnRef() Ref { return Ref{Index: 0x1200, SubIndex: 0x01} }

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewMemory()
	m.Define(0, sdnRef(), []byte{0x01, 0x00}, AttrOverridable)

	got, errRes := m.Read(0, sdnRef())
	require.Nil(t, errRes)
	assert.Equal(t, []byte{0x01, 0x00}, got)

	errRes = m.Write(0, sdnRef(), []byte{0x2A, 0x00}, WriteNormal)
	require.Nil(t, errRes)

	got, errRes = m.Read(0, sdnRef())
	require.Nil(t, errRes)
	assert.Equal(t, []byte{0x2A, 0x00}, got)
}

func TestMemoryWriteRejectedWithoutOverridable(t *testing.T) {
	m := NewMemory()
	m.Define(0, sdnRef(), []byte{0x01, 0x00}, AttrReadableBeforeHook)

	errRes := m.Write(0, sdnRef(), []byte{0x02, 0x00}, WriteNormal)
	require.NotNil(t, errRes)
	assert.Equal(t, AbortWriteNotAllowed, errRes.AbortCode)

	errRes = m.Write(0, sdnRef(), []byte{0x02, 0x00}, WriteOverride)
	assert.Nil(t, errRes)
}

func TestMemoryMissingObject(t *testing.T) {
	m := NewMemory()
	_, errRes := m.Read(0, Ref{Index: 0xFFFF})
	require.NotNil(t, errRes)
	assert.Equal(t, AbortNoSuchObject, errRes.AbortCode)
}

func TestMemorySegmentedAccess(t *testing.T) {
	m := NewMemory()
	ref := Ref{Index: 0x1020, SubIndex: 0x01}
	m.Define(0, ref, []byte{0, 0, 0, 0, 0, 0}, AttrOverridable)

	seg := Ref{Index: 0x1020, SubIndex: 0x01, SegOffset: 2, SegSize: 2}
	errRes := m.Write(0, seg, []byte{0xAA, 0xBB}, WriteNormal)
	require.Nil(t, errRes)

	full, errRes := m.Read(0, ref)
	require.Nil(t, errRes)
	assert.Equal(t, []byte{0, 0, 0xAA, 0xBB, 0, 0}, full)
}

func TestMemoryPerInstanceIsolation(t *testing.T) {
	m := NewMemory()
	ref := sdnRef()
	m.Define(0, ref, []byte{0x01, 0x00}, AttrOverridable)
	m.Define(1, ref, []byte{0x02, 0x00}, AttrOverridable)

	got0, _ := m.Read(0, ref)
	got1, _ := m.Read(1, ref)
	assert.Equal(t, []byte{0x01, 0x00}, got0)
	assert.Equal(t, []byte{0x02, 0x00}, got1)
}
