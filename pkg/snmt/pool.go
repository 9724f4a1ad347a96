package snmt

import (
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/frame"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

// InvalidSlot is returned by FindFree when every slot is busy, matching
// k_INVALID_FSM_NUM in the original.
const InvalidSlot = -1

type slotState uint8

const (
	stateWaitForRequest slotState = iota
	stateWaitForResponse
)

// slot mirrors t_FSM from the original SNMTMfsm.c: one outstanding
// request's header, payload, registration number and retry bookkeeping.
type slot struct {
	state       slotState
	deadline    uint32
	retryCount  uint8
	retryBudget uint8
	regNum      uint16
	reqHdr      frame.Header
	reqPayload  []byte
}

func (s *slot) reset() {
	s.state = stateWaitForRequest
	s.deadline = 0
	s.retryCount = 0
	s.retryBudget = 0
	s.regNum = invalidRegNum
	s.reqHdr = frame.Header{}
	s.reqPayload = s.reqPayload[:0]
}

// Transmitter serializes a request frame and hands it to the host network
// function, mirroring transmitRequest's SFS_FrmSerialize/SHNF_SendFrame
// pair. Returning a non-nil error leaves the slot in WaitForRequest (the
// original never advances o_wfRequest to FALSE on a failed transmission).
type Transmitter func(hdr frame.Header, payload []byte) *stats.Error

// TimeoutResolver re-reads SOD objects 0x1202/0x01 and 0x1202/0x02,
// matching transmitRequest's choice to resolve the response timeout and
// retry budget fresh on every (re)transmission rather than once at slot
// acquisition.
type TimeoutResolver func(instance int) (timeoutTicks uint32, retryBudget uint8, errStat *stats.Error)

// ResponseCallback is invoked exactly once per slot that completes, either
// by a matched response or by retry exhaustion, mirroring
// SCM_SNMTM_RespClbk. payload is nil when timedOut is true.
type ResponseCallback func(regNum uint16, tadr, sdn uint16, payload []byte, timedOut bool)

// Pool owns a fixed number of request/response tracking slots (C7): the
// two-state FSM array, wrap-tolerant timeout arithmetic and the hooks
// needed to actually put a frame on the wire.
type Pool struct {
	slots      []slot
	stats      *stats.Engine
	resolve    TimeoutResolver
	transmit   Transmitter
	onComplete ResponseCallback
}

// NewPool builds a Pool of size slots. resolve and transmit must be
// non-nil; onComplete may be nil if the caller has no interest in
// completions (unusual, but not a contract violation).
func NewPool(size int, eng *stats.Engine, resolve TimeoutResolver, transmit Transmitter, onComplete ResponseCallback) *Pool {
	slots := make([]slot, size)
	for i := range slots {
		slots[i].reset()
	}
	return &Pool{slots: slots, stats: eng, resolve: resolve, transmit: transmit, onComplete: onComplete}
}

// Len reports the pool's fixed slot capacity.
func (p *Pool) Len() int { return len(p.slots) }

// Transmit hands hdr/payload straight to the configured Transmitter
// without consuming a slot, for services like SnErrorAck that never
// expect a response and so never enter the FSM pool at all.
func (p *Pool) Transmit(hdr frame.Header, payload []byte) *stats.Error {
	return p.transmit(hdr, payload)
}

// FindFree returns the index of the first slot in WaitForRequest, or
// InvalidSlot if every slot is busy, matching SNMTM_GetFsmFree's linear
// scan order exactly (lowest index wins).
func (p *Pool) FindFree() int {
	for i := range p.slots {
		if p.slots[i].state == stateWaitForRequest {
			return i
		}
	}
	return InvalidSlot
}

// CheckAvailable reports whether at least one slot is free, matching
// SNMTM_CheckFsmAvailable.
func (p *Pool) CheckAvailable() bool {
	return p.FindFree() != InvalidSlot
}

// SendRequest stores hdr/payload/regNum into the slot at slotIdx, resolves
// the current timeout/retry budget from the SOD and transmits. The slot
// only transitions to WaitForResponse once both the SOD reads and the
// transmission succeed, matching sendRequest's early-return-on-failure
// behavior (a failed send leaves the slot free to retry on the next call).
func (p *Pool) SendRequest(instance int, now uint32, slotIdx int, regNum uint16, hdr frame.Header, payload []byte) *stats.Error {
	s := &p.slots[slotIdx]
	s.reqHdr = hdr
	s.reqPayload = append(s.reqPayload[:0], payload...)
	s.regNum = regNum

	timeout, retries, errStat := p.resolve(instance)
	if errStat != nil {
		return errStat
	}
	if errStat := p.transmit(hdr, payload); errStat != nil {
		return errStat
	}
	s.deadline = now + timeout
	s.retryBudget = retries
	s.retryCount = 0
	s.state = stateWaitForResponse
	return nil
}

// elapsed implements EPLS_TIMEOUT: unsigned subtraction plus a half-range
// sign test, tolerant of dw_ct wrapping past 2^32.
func elapsed(now, deadline uint32) bool {
	return now-deadline < 1<<31
}

// CheckTimeout drives one slot's timeout/retry logic, matching
// processTimeoutChk. It reports retried=true when it actually retransmitted
// (so the caller's free-frame budget should be charged one frame), and is a
// no-op for slots in WaitForRequest or whose deadline has not elapsed.
func (p *Pool) CheckTimeout(instance int, slotIdx int, now uint32) (retried bool, errStat *stats.Error) {
	s := &p.slots[slotIdx]
	if s.state != stateWaitForResponse {
		return false, nil
	}
	if !elapsed(now, s.deadline) {
		return false, nil
	}
	if s.retryCount >= s.retryBudget {
		p.stats.IncAcyclic(slotIdx, stats.AcycTimeout)
		p.stats.IncCommon(stats.CommonSNMTTimeout)
		p.stats.SetError(stats.ErrNoRespReceived, uint32(s.reqHdr.ADR))
		regNum, tadr, sdn := s.regNum, s.reqHdr.ADR, s.reqHdr.SDN
		p.reset(slotIdx)
		if p.onComplete != nil {
			p.onComplete(regNum, tadr, sdn, nil, true)
		}
		return false, nil
	}

	timeout, retries, errStat := p.resolve(instance)
	if errStat != nil {
		return false, errStat
	}
	if errStat := p.transmit(s.reqHdr, s.reqPayload); errStat != nil {
		return false, errStat
	}
	s.deadline = now + timeout
	s.retryBudget = retries
	s.retryCount++
	p.stats.IncAcyclic(slotIdx, stats.AcycRetry)
	p.stats.IncCommon(stats.CommonAcyclicRetry)
	return true, nil
}

// MatchResponse linear-scans the slots in WaitForResponse for one whose
// stored request matches the received response, mirroring
// SNMTM_AssignResponse's three service-specific identity checks. respID is
// the response frame's ID with the request/response bit already cleared by
// the caller. It returns InvalidSlot if nothing matches.
func (p *Pool) MatchResponse(respID uint8, respCmd []byte, tadr, sdn uint16) int {
	for i := range p.slots {
		s := &p.slots[i]
		if s.state != stateWaitForResponse {
			continue
		}
		if s.reqHdr.ID != respID {
			continue
		}
		switch respID & 0x07 {
		case selExtServReq:
			if len(s.reqPayload) == 0 || len(respCmd) == 0 {
				continue
			}
			if !checkCmdByte(s.reqPayload[ofsServCmd], respCmd[ofsServCmd]) {
				continue
			}
			if s.reqHdr.ADR == tadr && s.reqHdr.SDN == sdn {
				return i
			}
		case selUDIDReq:
			if s.reqHdr.ADR == tadr {
				return i
			}
		case selAssSADR:
			if len(s.reqPayload) == lenUDID && len(respCmd) >= lenUDID && udidEqual(s.reqPayload, respCmd[:lenUDID]) {
				return i
			}
		}
	}
	return InvalidSlot
}

func udidEqual(a, b []byte) bool {
	for i := 0; i < lenUDID; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HandleResponse completes the slot at slotIdx with a successfully matched
// response, invoking the completion callback and returning the slot to
// WaitForRequest, matching the k_EVT_RESP_RECEIVED branch of
// SNMTM_ProcessFsm.
func (p *Pool) HandleResponse(slotIdx int, tadr, sdn uint16, payload []byte) {
	s := &p.slots[slotIdx]
	regNum := s.regNum
	p.reset(slotIdx)
	if p.onComplete != nil {
		p.onComplete(regNum, tadr, sdn, payload, false)
	}
}

func (p *Pool) reset(slotIdx int) {
	p.slots[slotIdx].reset()
}
