// Package frame implements the openSAFETY frame codec (C6): serialization
// and deserialization of the dual-redundant-sub-frame, dual-CRC wire
// format, including the SCM-UDID obfuscation XOR and the optional
// extended-CT XOR for SPDO data-only frames.
package frame

import (
	"github.com/hasiflo/openSafety-mqtt-sub003/internal/crc"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

// Wire layout constants, grounded on SFSint.h/SFS.h.
const (
	hdrLenSF1       = 4
	hdrLenSF2       = 5
	crcLenShort     = 1
	crcLenLong      = 2
	maxDataLenShort = 8
	maxDataLen      = 254

	frameIDMask    = 0x38
	snmtFrameID    = 0x28
	serviceReqFast = 0x3A // slim SSDO frame IDs: id & 0x3A == 0x3A
	dataOnlyID     = 0x30
	connValidBit   = 0x01

	minSADR = 1
	maxSADR = 0x03FF
	minSDN  = 1
	maxSDN  = 0x03FF
	maxTADR = 0x03FF
	maxTR   = 0x3F
)

// ScmUDIDRef is the SOD object carrying the 6-byte UDID of the SCM, used to
// obfuscate sub-frame TWO of every non-SNMT frame.
var ScmUDIDRef = od.Ref{Index: 0x1200, SubIndex: 0x04}

// legalIDs is the lookup table of the openSAFETY frame IDs a codec may
// transmit or accept, grounded on SFSser.c's ao_LookUpFrmId table: SNMT
// 0x28..0x2D and 0x2F, SPDO 0x30..0x35, SSDO 0x38..0x3B.
var legalIDs = buildLegalIDs()

func buildLegalIDs() map[uint8]bool {
	m := make(map[uint8]bool)
	for id := uint8(0x28); id <= 0x2D; id++ {
		m[id] = true
	}
	m[0x2F] = true
	for id := uint8(0x30); id <= 0x35; id++ {
		m[id] = true
	}
	for id := uint8(0x38); id <= 0x3B; id++ {
		m[id] = true
	}
	return m
}

// Header carries the fields of one openSAFETY frame header (FRM_HDR).
type Header struct {
	ADR   uint16
	ID    uint8
	SDN   uint16
	LE    uint8
	CT    uint16
	TADR  uint16
	TR    uint8
	ExtCT uint32 // low 24 bits used; only meaningful for data-only frame IDs
}

// Codec ties the frame wire format to one instance's SOD-resolved SCM UDID
// and its SDN gate, needed to undo the obfuscation XORs on receive.
type Codec struct {
	dict od.Dictionary
	gate *sdn.Gate
}

// New builds a Codec over dict, using gate to resolve the instance's own
// SDN when deserializing.
func New(dict od.Dictionary, gate *sdn.Gate) *Codec {
	return &Codec{dict: dict, gate: gate}
}

func isSlim(id uint8) bool      { return id&serviceReqFast == serviceReqFast }
func isSNMT(id uint8) bool      { return id&frameIDMask == snmtFrameID }
func isDataOnly(id uint8) bool  { return id&^connValidBit == dataOnlyID }
func crcPoly16(slim bool) crc.Poly16 {
	if slim {
		return crc.Poly16AC9A
	}
	return crc.Poly16BAAD
}

func validateHeader(hdr Header) *stats.Error {
	if hdr.ADR < minSADR || hdr.ADR > maxSADR {
		e := stats.ErrTxSADRInv
		return &e
	}
	if !legalIDs[hdr.ID] {
		e := stats.ErrTxFrmIDInv
		return &e
	}
	if hdr.SDN < minSDN || hdr.SDN > maxSDN {
		e := stats.ErrTxSDNInv
		return &e
	}
	if hdr.LE > maxDataLen {
		e := stats.ErrTxLEInv
		return &e
	}
	if hdr.TADR > maxTADR {
		e := stats.ErrTxTADRInv
		return &e
	}
	if hdr.TR > maxTR {
		e := stats.ErrTxTRInv
		return &e
	}
	return nil
}

// FrameLen returns the total wire length of a frame with the given ID and
// payload length, before the caller allocates a buffer via acquire_tx.
func FrameLen(id uint8, le int) int {
	wide := le > maxDataLenShort
	crcLen := crcLenShort
	if wide {
		crcLen = crcLenLong
	}
	if isSlim(id) {
		return hdrLenSF2 + crcLen + hdrLenSF1 + le + crcLen
	}
	return hdrLenSF2 + le + crcLen + hdrLenSF1 + le + crcLen
}

// AcquireTx is a stand-in for the HNF's acquire_tx service (an external
// collaborator this core never implements): it allocates a buffer sized
// for exactly one serialized frame of the given ID and payload length.
func AcquireTx(id uint8, le int) []byte {
	return make([]byte, FrameLen(id, le))
}

// Serialize lays hdr and payload out into dst (as returned by AcquireTx),
// returning the slice of dst actually used. dst
// shorter than the frame's wire length is an internal contract violation
// (the caller was supposed to size it via FrameLen/AcquireTx), reported as
// a fatal error rather than a wire-format one.
func (c *Codec) Serialize(instance int, hdr Header, payload []byte, dst []byte) ([]byte, *stats.Error) {
	if errStat := validateHeader(hdr); errStat != nil {
		return nil, errStat
	}
	if int(hdr.LE) != len(payload) {
		e := stats.ErrTxLEInv
		return nil, &e
	}

	slim := isSlim(hdr.ID)
	le := int(hdr.LE)
	wide := le > maxDataLenShort
	crcLen := crcLenShort
	if wide {
		crcLen = crcLenLong
	}

	sf2Len := hdrLenSF2
	if !slim {
		sf2Len += le
	}
	sf1Offset := sf2Len + crcLen
	sf1Len := hdrLenSF1 + le
	total := sf1Offset + sf1Len + crcLen

	if len(dst) < total {
		e := stats.ErrNoMemFromHNF
		return nil, &e
	}
	buf := dst[:total]

	adrLow := byte(hdr.ADR)
	adrHigh2 := byte((hdr.ADR >> 8) & 0x03)
	sub1ID := (hdr.ID << 2) | adrHigh2
	sdnLow := byte(hdr.SDN)
	sdnHigh2 := byte((hdr.SDN >> 8) & 0x03)
	sub2ID := sub1ID ^ sdnHigh2
	tadrLow := byte(hdr.TADR)
	tadrHigh2 := byte((hdr.TADR >> 8) & 0x03)
	sub2TR := (hdr.TR << 2) | tadrHigh2

	// sub-frame TWO header.
	buf[0] = adrLow ^ sdnLow
	buf[1] = sub2ID
	buf[2] = byte(hdr.CT >> 8)
	buf[3] = tadrLow
	buf[4] = sub2TR
	if !slim {
		copy(buf[hdrLenSF2:hdrLenSF2+le], payload)
	}

	// sub-frame ONE header + payload.
	buf[sf1Offset+0] = adrLow
	buf[sf1Offset+1] = sub1ID
	buf[sf1Offset+2] = hdr.LE
	buf[sf1Offset+3] = byte(hdr.CT)
	copy(buf[sf1Offset+4:sf1Offset+4+le], payload)

	// CRCs, computed over the wire bytes exactly as laid out above.
	if wide {
		poly := crcPoly16(slim)
		c1 := crc.CRC16(0).UpdateTable(poly, buf[sf1Offset:sf1Offset+sf1Len])
		c2 := crc.CRC16(0).UpdateTable(poly, buf[0:sf2Len])
		buf[sf1Offset+sf1Len] = byte(c1)
		buf[sf1Offset+sf1Len+1] = byte(c1 >> 8)
		buf[sf2Len] = byte(c2)
		buf[sf2Len+1] = byte(c2 >> 8)
	} else {
		c1 := crc.CRC8(0).UpdateTable(buf[sf1Offset : sf1Offset+sf1Len])
		c2 := crc.CRC8(0).UpdateTable(buf[0:sf2Len])
		buf[sf1Offset+sf1Len] = byte(c1)
		buf[sf2Len] = byte(c2)
	}

	// SCM-UDID obfuscation: fixed 6-byte window at the start of sub-frame
	// TWO, skipped for SNMT frames.
	if !isSNMT(hdr.ID) {
		udid, errRes := c.dict.Read(instance, ScmUDIDRef)
		if errRes != nil || len(udid) != 6 {
			e := stats.ErrRxDataInv
			return nil, &e
		}
		for i := 0; i < 6; i++ {
			buf[i] ^= udid[i]
		}
	}

	// Extended CT, only for SPDO data-only frames.
	if isDataOnly(hdr.ID) {
		buf[0] ^= byte(hdr.ExtCT)
		buf[1] ^= byte(hdr.ExtCT >> 8)
		buf[3] ^= byte(hdr.ExtCT >> 16)
	}

	return buf, nil
}

// layout is one hypothesis about how a received buffer of a given total
// length decomposes into sub-frames. The wire format does not let a
// receiver compute this deterministically without first reading the frame
// ID, and the frame ID itself lives at an offset this layout determines -
// so deserialize tries every arithmetically consistent layout and keeps
// the one whose self-contained redundancy checks (ID match across
// sub-frames, both CRCs) actually pass.
type layout struct {
	slim      bool
	crcLen    int
	le        int
	sf2Len    int
	sf1Offset int
}

func candidateLayouts(total int) []layout {
	var out []layout
	for _, crcLen := range [2]int{crcLenShort, crcLenLong} {
		// non-slim: total = (hdrLenSF2+le) + crcLen + (hdrLenSF1+le) + crcLen
		if rem := total - hdrLenSF2 - hdrLenSF1 - 2*crcLen; rem >= 0 && rem%2 == 0 {
			le := rem / 2
			if leInRange(le, crcLen) {
				out = append(out, layout{slim: false, crcLen: crcLen, le: le, sf2Len: hdrLenSF2 + le, sf1Offset: hdrLenSF2 + le + crcLen})
			}
		}
		// slim: total = hdrLenSF2 + crcLen + (hdrLenSF1+le) + crcLen
		if le := total - hdrLenSF2 - hdrLenSF1 - 2*crcLen; le >= 0 && leInRange(le, crcLen) {
			out = append(out, layout{slim: true, crcLen: crcLen, le: le, sf2Len: hdrLenSF2, sf1Offset: hdrLenSF2 + crcLen})
		}
	}
	return out
}

func leInRange(le, crcLen int) bool {
	if crcLen == crcLenShort {
		return le >= 0 && le <= maxDataLenShort
	}
	return le > maxDataLenShort && le <= maxDataLen
}

// Deserialize is the strict inverse of Serialize plus the validation a
// wire frame must pass: both CRCs must check out, and sub-frame
// ONE and sub-frame TWO must agree on the frame ID (and, for non-slim
// frames, the payload) once the SDN XOR is undone. expectedExtCT supplies
// the tracked extended-CT value for SPDO data-only frames (0 when the
// caller does not use 40-bit CT).
func (c *Codec) Deserialize(instance int, buf []byte, expectedExtCT uint32) (Header, []byte, *stats.Error) {
	total := len(buf)
	if total < hdrLenSF1+hdrLenSF2+2*crcLenShort {
		e := stats.ErrRxFrmDatalenInv
		return Header{}, nil, &e
	}
	// Only a slim frame, whose payload is carried once, can have an even
	// total length; an even length with no slim layout is rejected here.
	candidates := candidateLayouts(total)
	if total%2 == 0 && len(candidates) == 0 {
		e := stats.ErrRxFrmLenEven
		return Header{}, nil, &e
	}

	ownSDN, errStat := c.gate.Get(instance)
	if errStat != nil {
		return Header{}, nil, errStat
	}

	var lastErr stats.Error = stats.ErrRxFrmDatalenInv
	for _, cand := range candidates {
		hdr, payload, errStat := c.tryLayout(instance, buf, cand, ownSDN, expectedExtCT)
		if errStat == nil {
			return hdr, payload, nil
		}
		lastErr = *errStat
	}
	return Header{}, nil, &lastErr
}

func (c *Codec) tryLayout(instance int, buf []byte, cand layout, ownSDN uint16, expectedExtCT uint32) (Header, []byte, *stats.Error) {
	sf1Offset := cand.sf1Offset
	le := cand.le
	sf1Len := hdrLenSF1 + le

	if sf1Offset+sf1Len+cand.crcLen != len(buf) {
		e := stats.ErrRxFrmDatalenInv
		return Header{}, nil, &e
	}

	// Sub-frame ONE is never obfuscated: read it straight off the wire.
	adrLow := buf[sf1Offset+0]
	subFrm1ID := buf[sf1Offset+1]
	leField := buf[sf1Offset+2]
	ctLow := buf[sf1Offset+3]
	sub1Payload := buf[sf1Offset+4 : sf1Offset+4+le]

	if int(leField) != le {
		e := stats.ErrRxFrmDatalenInv
		return Header{}, nil, &e
	}
	id := subFrm1ID >> 2
	if !legalIDs[id] {
		e := stats.ErrRxFrmIDInv
		return Header{}, nil, &e
	}
	if isSlim(id) != cand.slim {
		e := stats.ErrRxFrmIDInv
		return Header{}, nil, &e
	}
	adrHigh2 := subFrm1ID & 0x03

	// Verify sub-frame ONE's CRC before trusting any of the above further.
	if cand.crcLen == crcLenLong {
		poly := crcPoly16(cand.slim)
		want := crc.CRC16(0).UpdateTable(poly, buf[sf1Offset:sf1Offset+sf1Len])
		got := uint16(buf[sf1Offset+sf1Len]) | uint16(buf[sf1Offset+sf1Len+1])<<8
		if uint16(want) != got {
			e := stats.ErrSF1RxCRC2Inv
			return Header{}, nil, &e
		}
	} else {
		want := crc.CRC8(0).UpdateTable(buf[sf1Offset : sf1Offset+sf1Len])
		if byte(want) != buf[sf1Offset+sf1Len] {
			e := stats.ErrSF1RxCRC1Inv
			return Header{}, nil, &e
		}
	}

	// Verify sub-frame TWO's CRC over the wire bytes as transmitted
	// (obfuscation included - the CRC protects wire integrity, not meaning).
	if cand.crcLen == crcLenLong {
		poly := crcPoly16(cand.slim)
		want := crc.CRC16(0).UpdateTable(poly, buf[0:cand.sf2Len])
		got := uint16(buf[cand.sf2Len]) | uint16(buf[cand.sf2Len+1])<<8
		if uint16(want) != got {
			e := stats.ErrSF2RxCRC2Inv
			return Header{}, nil, &e
		}
	} else {
		want := crc.CRC8(0).UpdateTable(buf[0:cand.sf2Len])
		if byte(want) != buf[cand.sf2Len] {
			e := stats.ErrSF2RxCRC1Inv
			return Header{}, nil, &e
		}
	}

	// Undo sub-frame TWO's obfuscation: a fixed 6-byte window, SCM-UDID XOR
	// unless this is an SNMT frame, then extended-CT XOR for data-only
	// frames.
	scratch := make([]byte, 6)
	copy(scratch, buf[0:6])
	if !isSNMT(id) {
		udid, errRes := c.dict.Read(instance, ScmUDIDRef)
		if errRes != nil || len(udid) != 6 {
			e := stats.ErrRxDataInv
			return Header{}, nil, &e
		}
		for i := 0; i < 6; i++ {
			scratch[i] ^= udid[i]
		}
	}
	if isDataOnly(id) {
		scratch[0] ^= byte(expectedExtCT)
		scratch[1] ^= byte(expectedExtCT >> 8)
		scratch[3] ^= byte(expectedExtCT >> 16)
	}

	sdnLow := byte(ownSDN)
	sdnHigh2 := byte((ownSDN >> 8) & 0x03)
	adrLowDerived := scratch[0] ^ sdnLow
	subFrm1IDDerived := scratch[1] ^ sdnHigh2
	if adrLowDerived != adrLow || subFrm1IDDerived != subFrm1ID {
		e := stats.ErrRxDataInv
		return Header{}, nil, &e
	}

	tadrLow := scratch[3]
	sub2TR := scratch[4]
	ctHigh := scratch[2]
	tadrHigh2 := sub2TR & 0x03
	tr := sub2TR >> 2

	if !cand.slim && le > 0 {
		sub2Payload := make([]byte, le)
		sub2Payload[0] = scratch[5]
		copy(sub2Payload[1:], buf[6:hdrLenSF2+le])
		for i := 0; i < le; i++ {
			if sub2Payload[i] != sub1Payload[i] {
				e := stats.ErrRxDataInv
				return Header{}, nil, &e
			}
		}
	}

	hdr := Header{
		ADR:  uint16(adrHigh2)<<8 | uint16(adrLow),
		ID:   id,
		SDN:  ownSDN,
		LE:   uint8(le),
		CT:   uint16(ctHigh)<<8 | uint16(ctLow),
		TADR: uint16(tadrHigh2)<<8 | uint16(tadrLow),
		TR:   tr,
	}
	if isDataOnly(id) {
		hdr.ExtCT = expectedExtCT
	}

	out := make([]byte, le)
	copy(out, sub1Payload)
	return hdr, out, nil
}
