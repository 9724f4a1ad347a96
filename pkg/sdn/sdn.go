// Package sdn implements the Safety Domain Number gate (C4): per-instance
// read-through access to SOD object 0x1200/0x01, used by the frame codec and the SNMT
// master to filter addresses to the domain this instance belongs to.
package sdn

import (
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

// Ref is the fixed object reference for the own-SDN cell.
var Ref = od.Ref{Index: 0x1200, SubIndex: 0x01}

// Gate gives access to each instance's own Safety Domain Number. It holds
// no copy of the value: every Get reads the SOD cell and Set writes it.
type Gate struct {
	dict od.Dictionary
}

// New builds a Gate over dict. It performs no SOD access itself; call Init
// once per instance before Get/Set.
func New(dict od.Dictionary) *Gate {
	return &Gate{dict: dict}
}

// Init reads the before-read-hook attribute on the own-SDN object and
// rejects it outright: that attribute is reserved and illegal on this
// object. On success it returns the current value read through Get.
func (g *Gate) Init(instance int) (uint16, *stats.Error) {
	attr, errRes := g.dict.AttrGet(instance, Ref)
	if errRes != nil {
		e := stats.ErrSDNAttrInvalid
		return 0, &e
	}
	if attr.Has(od.AttrReadableBeforeHook) {
		e := stats.ErrSDNAttrInvalid
		return 0, &e
	}
	return g.Get(instance)
}

// Get performs an O(1) read-through from the SOD. The gate does not keep a
// separate in-process cache beyond what the SOD backend itself caches,
// since the SOD contract already requires its own internal consistency;
// callers that need a hot-path value should snapshot the return value
// themselves for the duration of one frame.
func (g *Gate) Get(instance int) (uint16, *stats.Error) {
	raw, errRes := g.dict.Read(instance, Ref)
	if errRes != nil || len(raw) != 2 {
		e := stats.ErrSDNAttrInvalid
		return 0, &e
	}
	return uint16(raw[0]) | uint16(raw[1])<<8, nil
}

// Set writes value through to the SOD with override semantics, bypassing
// the overridable-attribute check.
func (g *Gate) Set(instance int, value uint16) *stats.Error {
	buf := []byte{byte(value), byte(value >> 8)}
	if errRes := g.dict.Write(instance, Ref, buf, od.WriteOverride); errRes != nil {
		e := stats.ErrSDNAttrInvalid
		return &e
	}
	return nil
}
