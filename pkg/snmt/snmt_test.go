package snmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/frame"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

const testInstance = 0

// harness wires a Dispatcher over an in-memory SOD and a fake wire: sent
// frames are captured rather than actually transmitted, and completions are
// recorded for assertion.
type harness struct {
	t              *testing.T
	dict           *od.Memory
	gate           *sdn.Gate
	codec          *frame.Codec
	pool           *Pool
	disp           *Dispatcher
	sent           []sentFrame
	resetGuardSeen int
	completions    []completion
}

type sentFrame struct {
	hdr     frame.Header
	payload []byte
}

type completion struct {
	regNum   uint16
	tadr     uint16
	sdn      uint16
	payload  []byte
	timedOut bool
}

func newHarness(t *testing.T, ownSADR uint16, timeout uint32, retries uint8) *harness {
	t.Helper()
	dict := od.NewMemory()
	dict.Define(testInstance, sdn.Ref, []byte{1, 0}, od.AttrOverridable)
	dict.Define(testInstance, frame.ScmUDIDRef, []byte{1, 2, 3, 4, 5, 6}, od.AttrOverridable)
	dict.Define(testInstance, OwnSADRRef, []byte{byte(ownSADR), byte(ownSADR >> 8)}, od.AttrOverridable)
	dict.Define(testInstance, TimeoutRef, []byte{byte(timeout), byte(timeout >> 8), byte(timeout >> 16), byte(timeout >> 24)}, od.AttrOverridable)
	dict.Define(testInstance, RetryBudgetRef, []byte{retries}, od.AttrOverridable)

	gate := sdn.New(dict)
	_, errStat := gate.Init(testInstance)
	require.Nil(t, errStat)
	codec := frame.New(dict, gate)

	h := &harness{t: t, dict: dict, gate: gate, codec: codec}

	resolve := func(instance int) (uint32, uint8, *stats.Error) {
		raw, errRes := dict.Read(instance, TimeoutRef)
		if errRes != nil || len(raw) != 4 {
			e := stats.ErrInvalidOwnAddr
			return 0, 0, &e
		}
		to := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		rawRetries, errRes := dict.Read(instance, RetryBudgetRef)
		if errRes != nil || len(rawRetries) != 1 {
			e := stats.ErrInvalidOwnAddr
			return 0, 0, &e
		}
		return to, rawRetries[0], nil
	}
	transmit := func(hdr frame.Header, payload []byte) *stats.Error {
		h.sent = append(h.sent, sentFrame{hdr: hdr, payload: append([]byte(nil), payload...)})
		return nil
	}
	onComplete := func(regNum uint16, tadr, domain uint16, payload []byte, timedOut bool) {
		h.completions = append(h.completions, completion{regNum, tadr, domain, payload, timedOut})
	}

	eng := stats.NewEngine(4, 0, nil, nil)
	h.pool = NewPool(4, eng, resolve, transmit, onComplete)
	h.disp = New(dict, codec, gate, h.pool, eng, func() { h.resetGuardSeen++ })
	return h
}

// responseFrame builds the header/payload a SN's reply would carry: ADR is
// the SCM's own SADR (destination), TADR echoes the target SN address, the
// frame ID has its low bit set (response selector).
func (h *harness) responseFrame(reqID uint8, targetSADR, ownSADR, domain uint16, payload []byte) (frame.Header, []byte) {
	hdr := frame.Header{ADR: ownSADR, ID: reqID | 0x01, SDN: domain, TADR: targetSADR, LE: uint8(len(payload))}
	return hdr, payload
}

func TestReqUdidSuccessfulRoundTrip(t *testing.T) {
	h := newHarness(t, 1, 1000, 2)
	errStat := h.disp.ReqUdid(testInstance, 0, 7, 5)
	require.Nil(t, errStat)
	require.Len(t, h.sent, 1)
	assert.Equal(t, uint8(idUDIDReq), h.sent[0].hdr.ID)
	assert.Equal(t, uint16(5), h.sent[0].hdr.ADR)
	assert.Equal(t, uint16(1), h.sent[0].hdr.TADR)

	respHdr, respPayload := h.responseFrame(idUDIDReq, 5, 1, 1, []byte{1, 2, 3, 4, 5, 6})
	errStat = h.disp.HandleFrame(testInstance, respHdr, respPayload)
	require.Nil(t, errStat)
	require.Len(t, h.completions, 1)
	assert.Equal(t, uint16(7), h.completions[0].regNum)
	assert.False(t, h.completions[0].timedOut)
	assert.True(t, h.pool.CheckAvailable())
}

func TestReqAssgnSadrMatchesByUdidIdentity(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	udid := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	errStat := h.disp.ReqAssgnSadr(testInstance, 0, 42, 5, udid)
	require.Nil(t, errStat)

	respHdr, respPayload := h.responseFrame(idAssSADR, 5, 1, 1, udid)
	errStat = h.disp.HandleFrame(testInstance, respHdr, respPayload)
	require.Nil(t, errStat)
	require.Len(t, h.completions, 1)
	assert.Equal(t, uint16(42), h.completions[0].regNum)
}

func TestReqAssgnSadrRejectsWrongUdid(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	udid := []byte{1, 1, 1, 1, 1, 1}
	errStat := h.disp.ReqAssgnSadr(testInstance, 0, 1, 5, udid)
	require.Nil(t, errStat)

	wrongUdid := []byte{2, 2, 2, 2, 2, 2}
	respHdr, respPayload := h.responseFrame(idAssSADR, 5, 1, 1, wrongUdid)
	errStat = h.disp.HandleFrame(testInstance, respHdr, respPayload)
	require.NotNil(t, errStat)
	assert.Empty(t, h.completions)
}

func TestRetryThenSuccess(t *testing.T) {
	h := newHarness(t, 1, 100, 2)
	errStat := h.disp.ReqGuarding(testInstance, 0, 3, 9)
	require.Nil(t, errStat)
	require.Len(t, h.sent, 1)

	freeFrames := 10
	errStat = h.disp.Sweep(testInstance, 50, &freeFrames)
	require.Nil(t, errStat)
	assert.Len(t, h.sent, 1, "deadline has not elapsed yet")

	errStat = h.disp.Sweep(testInstance, 150, &freeFrames)
	require.Nil(t, errStat)
	require.Len(t, h.sent, 2, "one retransmission expected")
	assert.Equal(t, 9, freeFrames)

	// A guard reply reports the SN's current state, not an echo of the
	// guard command byte: status_OP (column 1) is a legal reply to
	// SCM_guard_SN per the compatibility matrix.
	respHdr, respPayload := h.responseFrame(idExtServReq, 9, 1, 1, []byte{respStatusOp})
	errStat = h.disp.HandleFrame(testInstance, respHdr, respPayload)
	require.Nil(t, errStat)
	require.Len(t, h.completions, 1)
	assert.False(t, h.completions[0].timedOut)
}

func TestTimeoutAfterRetriesExhausted(t *testing.T) {
	h := newHarness(t, 1, 100, 1)
	errStat := h.disp.ReqGuarding(testInstance, 0, 11, 9)
	require.Nil(t, errStat)

	freeFrames := 10
	require.Nil(t, h.disp.Sweep(testInstance, 150, &freeFrames)) // first retry
	require.Len(t, h.sent, 2)
	require.Nil(t, h.disp.Sweep(testInstance, 300, &freeFrames)) // retries exhausted -> timeout
	require.Len(t, h.sent, 2, "no further retransmission once the budget is spent")

	require.Len(t, h.completions, 1)
	assert.True(t, h.completions[0].timedOut)
	assert.Equal(t, uint16(11), h.completions[0].regNum)
	assert.True(t, h.pool.CheckAvailable())
}

func TestPoolSaturationRefusesFifthRequest(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	for i := 0; i < 4; i++ {
		errStat := h.disp.ReqGuarding(testInstance, 0, uint16(i+1), uint16(10+i))
		require.Nil(t, errStat)
	}
	errStat := h.disp.ReqGuarding(testInstance, 0, 5, 20)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrNoFsmAvailReqGuard, *errStat)
}

func TestHandleFrameRejectsWrongDestination(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	errStat := h.disp.ReqUdid(testInstance, 0, 1, 5)
	require.Nil(t, errStat)

	respHdr, respPayload := h.responseFrame(idUDIDReq, 5, 1, 1, []byte{1, 2, 3, 4, 5, 6})
	respHdr.ADR = 99 // not this SCM's own SADR
	errStat = h.disp.HandleFrame(testInstance, respHdr, respPayload)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrRespRejWrongDSADR, *errStat)
	assert.Empty(t, h.completions)
}

func TestHandleFrameResetGuardBroadcast(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	hdr := frame.Header{ADR: 1, ID: idResetGuard, SDN: 1, TADR: 0, LE: 0}
	errStat := h.disp.HandleFrame(testInstance, hdr, nil)
	require.Nil(t, errStat)
	assert.Equal(t, 1, h.resetGuardSeen)
}

func TestReqUdidRejectsTargetEqualToOwnAddress(t *testing.T) {
	h := newHarness(t, 5, 1000, 1)
	errStat := h.disp.ReqUdid(testInstance, 0, 1, 5)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrInvalidOwnAddr, *errStat)
	assert.Empty(t, h.sent)
}

func TestReqUdidRejectsWhenOwnAddressUninitialized(t *testing.T) {
	h := newHarness(t, 0, 1000, 1)
	errStat := h.disp.ReqUdid(testInstance, 0, 1, 5)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrInvalidOwnAddr, *errStat)
}

func TestReqAssgnAddSadrValidatesRanges(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	errStat := h.disp.ReqAssgnAddSadr(testInstance, 0, 1, 5, 0, 2)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrAddSADRInv, *errStat)

	errStat = h.disp.ReqAssgnAddSadr(testInstance, 0, 1, 5, 10, 1)
	require.NotNil(t, errStat)
	assert.Equal(t, stats.ErrSPDONumInv, *errStat)

	errStat = h.disp.ReqAssgnAddSadr(testInstance, 0, 1, 5, 10, 3)
	require.Nil(t, errStat)
}

func TestSnErrorAckBypassesPool(t *testing.T) {
	h := newHarness(t, 1, 1000, 1)
	errStat := h.disp.SnErrorAck(testInstance, 5, 2, 9)
	require.Nil(t, errStat)
	// SnErrorAck still puts a frame on the wire via the pool's
	// Transmitter, but never consumes a slot: every slot stays free.
	require.Len(t, h.sent, 1)
	assert.Equal(t, []byte{cmdSNAck, 2, 9}, h.sent[0].payload)
	assert.True(t, h.pool.CheckAvailable())
}

func TestCheckCmdByteMatchesCompatibilityMatrix(t *testing.T) {
	assert.True(t, checkCmdByte(cmdSNSetToPreOp, respStatusPreOp))
	assert.True(t, checkCmdByte(cmdSNSetToPreOp, respSNFail))
	assert.False(t, checkCmdByte(cmdSNSetToPreOp, respStatusOp))

	assert.True(t, checkCmdByte(cmdSNSetToOp, respStatusOp))
	assert.True(t, checkCmdByte(cmdSNSetToOp, respSNBusy))
	assert.False(t, checkCmdByte(cmdSNSetToOp, respAssignAddSADR))

	assert.True(t, checkCmdByte(cmdAssgnUDIDSCM, respAssignedUDIDSCM))
	assert.False(t, checkCmdByte(cmdAssgnUDIDSCM, respAssignedInitCT))

	assert.True(t, checkCmdByte(cmdInitExtCT, respAssignedInitCT))
	assert.False(t, checkCmdByte(cmdInitExtCT, respAssignedUDIDSCM))
}
