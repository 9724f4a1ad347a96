// Package snmt implements the SNMT master side of the core: a fixed
// capacity pool of request/response tracking slots (C7) and the
// service-level dispatcher built on top of it (C8). Together they let the
// SCM drive SN state transitions, address/UDID assignment and guarding
// without blocking on the wire.
package snmt

import "github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"

// Frame-ID constants, grounded on SNMT.h: a SNMT frame ID is the common
// SNMT frame-type base ORed with a 3-bit service selector recoverable via
// id&0x07 (SFS_GET_MIN_FRM_ID in the original).
const (
	frmTypeSNMT uint8 = 0x28

	selUDIDReq    uint8 = 0x00
	selAssSADR    uint8 = 0x02
	selExtServReq uint8 = 0x04
	selResetGuard uint8 = 0x07

	idUDIDReq       = frmTypeSNMT | selUDIDReq
	idAssSADR       = frmTypeSNMT | selAssSADR
	idExtServReq    = frmTypeSNMT | selExtServReq
	idResetGuard    = frmTypeSNMT | selResetGuard
)

// Extended-service command bytes (the first payload byte of an
// idExtServReq frame), grounded on SNMT.h's SNMT_t_EXT_SERV_REQ enum.
// cmdSCMSetToStop/cmdSCMSetToOp are configuration-tool-to-SCM local
// commands, not services this master issues, and are only present so the
// compatibility matrix keeps the original's full 9x9 shape.
const (
	cmdSNSetToPreOp  uint8 = 0
	cmdSNSetToOp     uint8 = 2
	cmdSCMSetToStop  uint8 = 4
	cmdSCMSetToOp    uint8 = 6
	cmdSCMGuardSN    uint8 = 8
	cmdAssgnAddSADR  uint8 = 10
	cmdSNAck         uint8 = 12
	cmdAssgnUDIDSCM  uint8 = 14
	cmdInitExtCT     uint8 = 16
)

// Response-side command bytes. The pack's retrieved original_source does
// not include the response-frame command-byte enum (no SNMTMint.h/response
// header analogue was retrieved), so these values are an original
// resolution: they follow the compatibility matrix's own documented column
// order (status_PRE_OP, status_OP, assign_additional_SADR, SN_FAIL,
// SN_BUSY, two reserved columns, assigned_UDID_SCM, assigned_Init_CT) using
// the same "even command byte, cmd>>1 is the column index" convention the
// request side uses, rather than inventing an unrelated numbering.
const (
	respStatusPreOp     uint8 = 0
	respStatusOp        uint8 = 2
	respAssignAddSADR   uint8 = 4
	respSNFail          uint8 = 6
	respSNBusy          uint8 = 8
	respReserved5       uint8 = 10
	respReserved6       uint8 = 12
	respAssignedUDIDSCM uint8 = 14
	respAssignedInitCT  uint8 = 16
)

// Payload field lengths/offsets, grounded on SNMT.h.
const (
	lenServCmd  = 1
	lenTstmp    = 4
	lenSADR     = 2
	lenTxSPDO   = 2
	lenErrGroup = 1
	lenErrCode  = 1
	lenUDID     = 6
	lenExtCT    = 5

	ofsServCmd = 0
)

// Validation ranges, grounded on EPLStypes.h.
const (
	minAddSADR = 0x0001
	maxAddSADR = 0x03FF
	minSPDONum = 0x0002
	maxSPDONum = 0x03FF
)

// SN state-transition requests a caller may ask for, grounded on
// SNMTM_t_SN_TRANS in the original SCM headers.
type Transition uint8

const (
	TransPreOpToOp Transition = iota
	TransOpToPreOp
)

const invalidRegNum uint16 = 0xFFFF

// OwnSADRRef is the SOD object carrying the SCM's own main SADR, read by
// every request builder to fill the request's TADR field (the address the
// addressed SN should reply to) and to reject requests issued before the
// SCM has an address of its own.
var OwnSADRRef = od.Ref{Index: 0x1200, SubIndex: 0x02}

// TimeoutRef and RetryBudgetRef are the SOD objects governing every SNMT
// master slot's response deadline and retry budget, re-read on every
// (re)transmission rather than cached once per slot.
var (
	TimeoutRef     = od.Ref{Index: 0x1202, SubIndex: 0x01}
	RetryBudgetRef = od.Ref{Index: 0x1202, SubIndex: 0x02}
)
