package snmt

import (
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/frame"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

// reqRespTable is the 9x9 service compatibility matrix, ported verbatim
// from SNMTMfsm.c's ao_ReqRespTable: reqRespTable[reqCmd>>1][respCmd>>1].
// Row/column 3 (SN_FAIL) is TRUE in every row: any request accepts a
// generic failure reply. Column 4 (SN_BUSY) is only valid as a reply to
// "set SN to OP". Columns 5/6 are reserved and never valid.
var reqRespTable = [9][9]bool{
	// SN_set_to_PRE_OP
	{true, false, false, true, false, false, false, false, false},
	// SN_set_to_OP
	{false, true, false, true, true, false, false, false, false},
	// SCM_set_to_STOP (configuration-tool local command, unused here)
	{false, false, false, true, false, false, false, false, false},
	// SCM_set_to_OP (configuration-tool local command, unused here)
	{false, false, false, true, false, false, false, false, false},
	// SCM_guard_SN
	{true, true, false, true, false, false, false, false, false},
	// assign_additional_SADR
	{false, false, true, true, false, false, false, false, false},
	// SN_ACK (no response is ever assigned to this service)
	{false, false, false, true, false, false, false, false, false},
	// assign_UDID_SCM
	{false, false, false, true, false, false, false, true, false},
	// assign_Init_CT
	{false, false, false, true, false, false, false, false, true},
}

// checkCmdByte reports whether respCmd is an acceptable reply to reqCmd,
// matching checkCmdByte in the original.
func checkCmdByte(reqCmd, respCmd uint8) bool {
	reqRow := reqCmd >> 1
	respCol := respCmd >> 1
	if int(reqRow) >= len(reqRespTable) || int(respCol) >= len(reqRespTable[0]) {
		return false
	}
	return reqRespTable[reqRow][respCol]
}

// Dispatcher is the SNMT master's service layer (C8): the seven request
// builders plus SnErrorAck, response routing and the periodic timeout sweep, built over a
// Pool. It owns no wire I/O itself beyond what it hands to the Pool's
// Transmitter and the codec passed to New.
type Dispatcher struct {
	dict         od.Dictionary
	codec        *frame.Codec
	gate         *sdn.Gate
	pool         *Pool
	stats        *stats.Engine
	onResetGuard func()
}

// New builds a Dispatcher over an already-constructed Pool. onResetGuard,
// if non-nil, is invoked whenever a Reset-Guard broadcast arrives; it is
// never passed a slot index since the service consumes no slot.
func New(dict od.Dictionary, codec *frame.Codec, gate *sdn.Gate, pool *Pool, eng *stats.Engine, onResetGuard func()) *Dispatcher {
	return &Dispatcher{dict: dict, codec: codec, gate: gate, pool: pool, stats: eng, onResetGuard: onResetGuard}
}

func (d *Dispatcher) ownSADR(instance int) (uint16, *stats.Error) {
	raw, errRes := d.dict.Read(instance, OwnSADRRef)
	if errRes != nil || len(raw) != 2 {
		e := stats.ErrInvalidOwnAddr
		return 0, &e
	}
	return uint16(raw[0]) | uint16(raw[1])<<8, nil
}

// checkOwnAddr enforces SPEC_FULL's supplement on top of the original's
// builders: the SCM's own SADR must be initialized and must differ from
// the request's target, or the request is refused before a slot is ever
// consumed.
func (d *Dispatcher) checkOwnAddr(instance int, targetSADR uint16) (uint16, *stats.Error) {
	own, errStat := d.ownSADR(instance)
	if errStat != nil {
		return 0, errStat
	}
	if own == 0 || targetSADR == own {
		e := stats.ErrInvalidOwnAddr
		d.stats.SetError(e, uint32(targetSADR))
		return 0, &e
	}
	return own, nil
}

func (d *Dispatcher) noFsm(err stats.Error, targetSADR uint16) *stats.Error {
	d.stats.SetError(err, uint32(targetSADR))
	return &err
}

// header builds the common request envelope: ADR is the addressed SN,
// TADR is the SCM's own SADR (so the SN knows where to reply), CT/TR are
// fixed at zero (EPLS_k_CT_NOT_USED/EPLS_k_TR_NOT_USED).
func (d *Dispatcher) header(targetSADR, ownSADR, ownSDN uint16, id uint8, le int) frame.Header {
	return frame.Header{ADR: targetSADR, ID: id, SDN: ownSDN, TADR: ownSADR, LE: uint8(le)}
}

// ReqUdid issues the "request UDID" service, asking the SN at targetSADR to
// report its physical address. Grounded on SNMTM_ReqUdid.
func (d *Dispatcher) ReqUdid(instance int, now uint32, regNum uint16, targetSADR uint16) *stats.Error {
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailReqUDID, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	hdr := d.header(targetSADR, own, ownSDN, idUDIDReq, 0)
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, nil)
}

// ReqAssgnSadr issues the "assign SADR" service, giving the SN identified
// by udid the logical address targetSADR. Grounded on SNMTM_ReqAssgnSadr.
func (d *Dispatcher) ReqAssgnSadr(instance int, now uint32, regNum uint16, targetSADR uint16, udid []byte) *stats.Error {
	if len(udid) != lenUDID {
		e := stats.ErrRefReqDataAssSADRInv
		d.stats.SetError(e, uint32(targetSADR))
		return &e
	}
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailAssSADR, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	hdr := d.header(targetSADR, own, ownSDN, idAssSADR, lenUDID)
	payload := make([]byte, lenUDID)
	copy(payload, udid)
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// ReqAssgnScmUdid issues the "assign UDID of SCM" service, telling the SN
// at targetSADR which SCM now owns it. Grounded on SNMTM_ReqAssgnScmUdid.
func (d *Dispatcher) ReqAssgnScmUdid(instance int, now uint32, regNum uint16, targetSADR uint16, scmUDID []byte) *stats.Error {
	if len(scmUDID) != lenUDID {
		e := stats.ErrRefReqDataAssSADRInv
		d.stats.SetError(e, uint32(targetSADR))
		return &e
	}
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailReqSCMUDID, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	le := lenServCmd + lenUDID
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, le)
	payload := make([]byte, le)
	payload[ofsServCmd] = cmdAssgnUDIDSCM
	copy(payload[lenServCmd:], scmUDID)
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// ReqInitializeCtSn issues the "initialize extended CT" service, seeding
// the SN's 40-bit consecutive-time counter. Grounded on
// SNMTM_ReqInitializeCtSn.
func (d *Dispatcher) ReqInitializeCtSn(instance int, now uint32, regNum uint16, targetSADR uint16, extCT uint64) *stats.Error {
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailInitCT, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	le := lenServCmd + lenExtCT
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, le)
	payload := make([]byte, le)
	payload[ofsServCmd] = cmdInitExtCT
	for i := 0; i < lenExtCT; i++ {
		payload[lenServCmd+i] = byte(extCT >> (8 * i))
	}
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// ReqAssgnAddSadr issues the "assign additional SADR" service, binding a
// second logical address and TxSPDO number to the SN at targetSADR.
// Grounded on SNMTM_ReqAssgnAddSadr.
func (d *Dispatcher) ReqAssgnAddSadr(instance int, now uint32, regNum uint16, targetSADR, addSADR, spdoNum uint16) *stats.Error {
	if addSADR < minAddSADR || addSADR > maxAddSADR {
		e := stats.ErrAddSADRInv
		d.stats.SetError(e, uint32(addSADR))
		return &e
	}
	if spdoNum < minSPDONum || spdoNum > maxSPDONum {
		e := stats.ErrSPDONumInv
		d.stats.SetError(e, uint32(spdoNum))
		return &e
	}
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailAssAddSADR, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	le := lenServCmd + lenSADR + lenTxSPDO
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, le)
	payload := make([]byte, le)
	payload[ofsServCmd] = cmdAssgnAddSADR
	payload[lenServCmd] = byte(addSADR)
	payload[lenServCmd+1] = byte(addSADR >> 8)
	payload[lenServCmd+lenSADR] = byte(spdoNum)
	payload[lenServCmd+lenSADR+1] = byte(spdoNum >> 8)
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// ReqGuarding issues the "guard SN" service, the SCM's periodic liveness
// check on an already-configured SN. Grounded on SNMTM_ReqGuarding.
func (d *Dispatcher) ReqGuarding(instance int, now uint32, regNum uint16, targetSADR uint16) *stats.Error {
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailReqGuard, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, lenServCmd)
	payload := []byte{cmdSCMGuardSN}
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// ReqSnTrans issues an SN state transition (PRE-OPERATIONAL <-> OPERATIONAL).
// Grounded on SNMTM_ReqSnTrans.
func (d *Dispatcher) ReqSnTrans(instance int, now uint32, regNum uint16, targetSADR uint16, trans Transition, paramTimestamp uint32) *stats.Error {
	if trans != TransPreOpToOp && trans != TransOpToPreOp {
		e := stats.ErrSNTransInv
		d.stats.SetError(e, uint32(trans))
		return &e
	}
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	slotIdx := d.pool.FindFree()
	if slotIdx == InvalidSlot {
		return d.noFsm(stats.ErrNoFsmAvailSNTrans, targetSADR)
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}

	var payload []byte
	if trans == TransPreOpToOp {
		le := lenServCmd + lenTstmp
		payload = make([]byte, le)
		payload[ofsServCmd] = cmdSNSetToOp
		payload[lenServCmd] = byte(paramTimestamp)
		payload[lenServCmd+1] = byte(paramTimestamp >> 8)
		payload[lenServCmd+2] = byte(paramTimestamp >> 16)
		payload[lenServCmd+3] = byte(paramTimestamp >> 24)
	} else {
		payload = []byte{cmdSNSetToPreOp}
	}
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, len(payload))
	return d.pool.SendRequest(instance, now, slotIdx, regNum, hdr, payload)
}

// SnErrorAck acknowledges an error previously reported by the SN at
// targetSADR, echoing back its error group/code. No response is ever
// assigned to this service (see reqRespTable's SN_ACK row), so it never
// acquires a slot, but it still goes out over the wire via the Pool's
// Transmitter, matching SNMTM_SnErrorAck's fire-and-forget shape.
func (d *Dispatcher) SnErrorAck(instance int, targetSADR uint16, errGroup, errCode uint8) *stats.Error {
	own, errStat := d.checkOwnAddr(instance, targetSADR)
	if errStat != nil {
		return errStat
	}
	ownSDN, errStat := d.gate.Get(instance)
	if errStat != nil {
		return errStat
	}
	le := lenServCmd + lenErrGroup + lenErrCode
	hdr := d.header(targetSADR, own, ownSDN, idExtServReq, le)
	payload := []byte{cmdSNAck, errGroup, errCode}
	return d.pool.Transmit(hdr, payload)
}

// HandleFrame processes one received SNMT response, matching
// SNMTM_ProcessResponse: reserved-field leniency, the Reset-Guard
// broadcast short-circuit, the own-SADR destination check and finally
// response routing into the matching slot.
func (d *Dispatcher) HandleFrame(instance int, hdr frame.Header, payload []byte) *stats.Error {
	if hdr.TR != 0 {
		d.stats.SetError(stats.ErrRespTRFieldNotUnused, uint32(hdr.TR))
	}
	if hdr.CT != 0 {
		d.stats.SetError(stats.ErrRespCTFieldNotUnused, uint32(hdr.CT))
	}

	if hdr.ID&0x07 == selResetGuard {
		if d.onResetGuard != nil {
			d.onResetGuard()
		}
		return nil
	}

	own, errStat := d.ownSADR(instance)
	if errStat != nil {
		return errStat
	}
	if hdr.ADR != own {
		e := stats.ErrRespRejWrongDSADR
		d.stats.SetError(e, uint32(hdr.ADR))
		return &e
	}

	respID := hdr.ID &^ 0x01 // clear the request/response bit before matching
	slotIdx := d.pool.MatchResponse(respID, payload, hdr.TADR, hdr.SDN)
	if slotIdx == InvalidSlot {
		e := stats.ErrRespNotAssigned
		d.stats.SetError(e, uint32(hdr.ID))
		return &e
	}
	d.pool.HandleResponse(slotIdx, hdr.TADR, hdr.SDN, payload)
	return nil
}

// Sweep drives every busy slot's timeout check once, stopping early when
// freeFrames is exhausted, matching SNMTM_ProcessFsm's k_EVT_CHK_TIMEOUT
// handling under SCM_ProcessSCM's free-frame budget. freeFrames is
// decremented once per retransmission actually sent.
func (d *Dispatcher) Sweep(instance int, now uint32, freeFrames *int) *stats.Error {
	for i := 0; i < d.pool.Len(); i++ {
		if *freeFrames <= 0 {
			return nil
		}
		retried, errStat := d.pool.CheckTimeout(instance, i, now)
		if errStat != nil {
			e := stats.ErrRefFreeFrms
			d.stats.SetError(e, uint32(i))
			return &e
		}
		if retried {
			*freeFrames--
		}
	}
	return nil
}
