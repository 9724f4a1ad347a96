package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
)

func newTestCodec(t *testing.T, ownSDN uint16, udid [6]byte) (*Codec, int) {
	t.Helper()
	dict := od.NewMemory()
	dict.Define(0, sdn.Ref, []byte{byte(ownSDN), byte(ownSDN >> 8)}, od.AttrOverridable)
	dict.Define(0, ScmUDIDRef, udid[:], od.AttrOverridable)
	gate := sdn.New(dict)
	_, errStat := gate.Init(0)
	require.Nil(t, errStat)
	return New(dict, gate), 0
}

func TestSerializeDeserializeRoundTripShortSNMT(t *testing.T) {
	codec, inst := newTestCodec(t, 5, [6]byte{1, 2, 3, 4, 5, 6})
	hdr := Header{ADR: 10, ID: 0x2A, SDN: 5, LE: 4, CT: 0x1234, TADR: 7, TR: 3}
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	dst := AcquireTx(hdr.ID, len(payload))
	wire, errStat := codec.Serialize(inst, hdr, payload, dst)
	require.Nil(t, errStat)
	assert.Equal(t, FrameLen(hdr.ID, len(payload)), len(wire))
	assert.True(t, len(wire)%2 == 1)

	gotHdr, gotPayload, errStat := codec.Deserialize(inst, wire, 0)
	require.Nil(t, errStat)
	assert.Equal(t, hdr.ADR, gotHdr.ADR)
	assert.Equal(t, hdr.ID, gotHdr.ID)
	assert.Equal(t, hdr.LE, gotHdr.LE)
	assert.Equal(t, hdr.CT, gotHdr.CT)
	assert.Equal(t, hdr.TADR, gotHdr.TADR)
	assert.Equal(t, hdr.TR, gotHdr.TR)
	assert.Equal(t, payload, gotPayload)
}

func TestSerializeDeserializeRoundTripLongSSDO(t *testing.T) {
	codec, inst := newTestCodec(t, 9, [6]byte{9, 8, 7, 6, 5, 4})
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	hdr := Header{ADR: 100, ID: 0x38, SDN: 9, LE: uint8(len(payload)), CT: 0xBEEF, TADR: 200, TR: 10}

	dst := AcquireTx(hdr.ID, len(payload))
	wire, errStat := codec.Serialize(inst, hdr, payload, dst)
	require.Nil(t, errStat)

	gotHdr, gotPayload, errStat := codec.Deserialize(inst, wire, 0)
	require.Nil(t, errStat)
	assert.Equal(t, hdr.ADR, gotHdr.ADR)
	assert.Equal(t, payload, gotPayload)
}

func TestSerializeDeserializeSlimFrame(t *testing.T) {
	codec, inst := newTestCodec(t, 3, [6]byte{1, 1, 1, 1, 1, 1})
	payload := []byte{1, 2, 3}
	hdr := Header{ADR: 4, ID: 0x3A, SDN: 3, LE: uint8(len(payload)), CT: 0, TADR: 0, TR: 0}

	dst := AcquireTx(hdr.ID, len(payload))
	wire, errStat := codec.Serialize(inst, hdr, payload, dst)
	require.Nil(t, errStat)
	assert.Equal(t, 9+len(payload)+2, len(wire))

	gotHdr, gotPayload, errStat := codec.Deserialize(inst, wire, 0)
	require.Nil(t, errStat)
	assert.Equal(t, hdr.ID, gotHdr.ID)
	assert.Equal(t, payload, gotPayload)
}

func TestDeserializeRejectsCorruptedCRC(t *testing.T) {
	codec, inst := newTestCodec(t, 5, [6]byte{1, 2, 3, 4, 5, 6})
	hdr := Header{ADR: 10, ID: 0x2A, SDN: 5, LE: 2, CT: 1, TADR: 1, TR: 0}
	dst := AcquireTx(hdr.ID, 2)
	wire, errStat := codec.Serialize(inst, hdr, []byte{1, 2}, dst)
	require.Nil(t, errStat)

	wire[len(wire)-1] ^= 0xFF
	_, _, errStat = codec.Deserialize(inst, wire, 0)
	require.NotNil(t, errStat)
}

func TestDeserializeRejectsEvenLength(t *testing.T) {
	codec, inst := newTestCodec(t, 5, [6]byte{1, 2, 3, 4, 5, 6})
	_, _, errStat := codec.Deserialize(inst, make([]byte, 12), 0)
	require.NotNil(t, errStat)
}

func TestSerializeRejectsInvalidHeader(t *testing.T) {
	codec, inst := newTestCodec(t, 5, [6]byte{1, 2, 3, 4, 5, 6})
	hdr := Header{ADR: 0, ID: 0x2A, SDN: 5, LE: 0}
	dst := AcquireTx(hdr.ID, 0)
	_, errStat := codec.Serialize(inst, hdr, nil, dst)
	require.NotNil(t, errStat)
}

func TestSerializeRejectsShortDestination(t *testing.T) {
	codec, inst := newTestCodec(t, 5, [6]byte{1, 2, 3, 4, 5, 6})
	hdr := Header{ADR: 1, ID: 0x2A, SDN: 5, LE: 2}
	_, errStat := codec.Serialize(inst, hdr, []byte{1, 2}, make([]byte, 1))
	require.NotNil(t, errStat)
}

func TestFrameLenMatchesSpecFormulas(t *testing.T) {
	// short frame: 11 + 2*payload
	assert.Equal(t, 11, FrameLen(0x28, 0))
	assert.Equal(t, 11+2*5, FrameLen(0x28, 5))
	// long frame: 13 + 2*payload
	assert.Equal(t, 13+2*9, FrameLen(0x28, 9))
	// slim frame: 9 + payload + 2*crc_width
	assert.Equal(t, 9+3+2, FrameLen(0x3A, 3))
	assert.Equal(t, 9+20+4, FrameLen(0x3A, 20))
}
