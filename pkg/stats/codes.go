package stats

// Frame codec (SFS) error sub-codes. Grounded on
// openSAFETY/src/eplssrc/SN/SFSerr.h, preserving each documented symbol's
// name and fatal/minor classification.
var (
	ErrRxFrmCRC8DatalenIncons   = Minor(UnitSFS, 1)
	ErrRxFrmCRC16DatalenIncons  = Minor(UnitSFS, 2)
	ErrRxFrmDatalenInv          = Minor(UnitSFS, 3)
	ErrRxFrmIDInv               = Minor(UnitSFS, 4)
	ErrDatalenInv               = Fatal(UnitSFS, 5)
	ErrRxDataInv                = Minor(UnitSFS, 6)
	ErrSF1RxCRC1Inv             = Minor(UnitSFS, 7)
	ErrSF1RxCRC2Inv             = Minor(UnitSFS, 8)
	ErrSF2RxCRC1Inv             = Minor(UnitSFS, 9)
	ErrSF2RxCRC2Inv             = Minor(UnitSFS, 10)
	ErrDatatypeNotDef           = Fatal(UnitSFS, 11)
	ErrRxTelLenInv              = Minor(UnitSFS, 12)
	ErrRxSADRInv                = Minor(UnitSFS, 13)
	ErrRxSDNInv                 = Minor(UnitSFS, 14)
	ErrTxSADRInv                = Fatal(UnitSFS, 15)
	ErrTxFrmIDInv               = Fatal(UnitSFS, 16)
	ErrTxSDNInv                 = Fatal(UnitSFS, 17)
	ErrTxLEInv                  = Fatal(UnitSFS, 18)
	ErrTxTADRInv                = Fatal(UnitSFS, 19)
	ErrTxTRInv                  = Fatal(UnitSFS, 20)
	ErrRxFrmLenEven             = Minor(UnitSFS, 21)
	ErrNoMemFromHNF             = Fatal(UnitSFS, 22)
	ErrHNFCannotMarkMemBlk      = Fatal(UnitSFS, 23)
	ErrRxTADRInv                = Minor(UnitSFS, 24)
	ErrBroadcastCallback        = Fatal(UnitSFS, 25)
)

// SDN gate error sub-codes. Grounded on
// openSAFETY/src/eplssrc/SN/SDNerr.h.
var (
	ErrSDNAttrInvalid = Fatal(UnitSDN, 1)
)

// SNMT master FSM/dispatcher error sub-codes. Grounded on
// openSAFETY/src/eplssrc/SCM/SNMTMerr.h, preserving each documented
// symbol's name and fatal/minor/info classification.
var (
	ErrEventWfResInv           = Fatal(UnitSNMTM, 1)
	ErrSNTransInv              = Fatal(UnitSNMTM, 2)
	ErrRefReqDataAssSADRInv    = Fatal(UnitSNMTM, 3)
	ErrAddSADRInv              = Fatal(UnitSNMTM, 4)
	ErrSPDONumInv              = Fatal(UnitSNMTM, 5)
	ErrNoFsmAvailReqUDID       = Fatal(UnitSNMTM, 6)
	ErrNoFsmAvailAssSADR       = Fatal(UnitSNMTM, 7)
	ErrNoFsmAvailAssAddSADR    = Fatal(UnitSNMTM, 8)
	ErrNoFsmAvailReqGuard      = Fatal(UnitSNMTM, 9)
	ErrNoFsmAvailSNTrans       = Fatal(UnitSNMTM, 10)
	ErrNoRespReceived          = Info(UnitSNMTM, 11)
	ErrRespNotAssigned         = Minor(UnitSNMTM, 12)
	ErrRxFrmIDInvSNMT          = Fatal(UnitSNMTM, 13)
	ErrRespRejWrongDSADR       = Info(UnitSNMTM, 14)
	ErrRespTRFieldNotUnused    = Info(UnitSNMTM, 15)
	ErrRespCTFieldNotUnused    = Info(UnitSNMTM, 16)
	ErrEvtInv                  = Fatal(UnitSNMTM, 17)
	ErrNoFsmAvailReqSCMUDID    = Fatal(UnitSNMTM, 18)
	ErrRefFreeFrms             = Fatal(UnitSNMTM, 19)
	ErrNoFsmAvailInitCT        = Fatal(UnitSNMTM, 20)
	ErrInvalidOwnAddr          = Fatal(UnitSNMTM, 21)
	ErrTimeoutRefInv           = Fatal(UnitSNMTM, 22)
)

// renderers maps every error constant declared above to a short
// human-readable diagnostic string, keyed by its packed code so the
// renderer works even when only a raw code (as crossed the host callback
// boundary) is available.
var renderers = buildRenderers()

func buildRenderers() map[uint16]string {
	m := map[uint16]string{
		ErrRxFrmCRC8DatalenIncons.Pack():  "SFS: CRC-8 length inconsistent with frame data length",
		ErrRxFrmCRC16DatalenIncons.Pack(): "SFS: CRC-16 length inconsistent with frame data length",
		ErrRxFrmDatalenInv.Pack():         "SFS: received frame data length invalid",
		ErrRxFrmIDInv.Pack():              "SFS: received frame ID invalid",
		ErrDatalenInv.Pack():              "SFS: payload length out of range",
		ErrRxDataInv.Pack():               "SFS: sub-frame payload mismatch",
		ErrSF1RxCRC1Inv.Pack():            "SFS: sub-frame ONE CRC invalid",
		ErrSF1RxCRC2Inv.Pack():            "SFS: sub-frame ONE CRC (long) invalid",
		ErrSF2RxCRC1Inv.Pack():            "SFS: sub-frame TWO CRC invalid",
		ErrSF2RxCRC2Inv.Pack():            "SFS: sub-frame TWO CRC (long) invalid",
		ErrDatatypeNotDef.Pack():          "SFS: copy kernel type not defined",
		ErrRxTelLenInv.Pack():             "SFS: received telegram length invalid (not odd)",
		ErrRxSADRInv.Pack():               "SFS: received source address out of range",
		ErrRxSDNInv.Pack():                "SFS: received domain number out of range",
		ErrTxSADRInv.Pack():               "SFS: outgoing source address out of range",
		ErrTxFrmIDInv.Pack():              "SFS: outgoing frame ID not one of the 17 legal encodings",
		ErrTxSDNInv.Pack():                "SFS: outgoing domain number out of range",
		ErrTxLEInv.Pack():                 "SFS: outgoing payload length out of range",
		ErrTxTADRInv.Pack():               "SFS: outgoing target address out of range",
		ErrTxTRInv.Pack():                 "SFS: outgoing time-request number out of range",
		ErrRxFrmLenEven.Pack():            "SFS: received frame length is even and fits no slim frame layout",
		ErrNoMemFromHNF.Pack():            "SFS: HNF failed to provide a transmit buffer",
		ErrHNFCannotMarkMemBlk.Pack():     "SFS: HNF failed to mark buffer ready to send",
		ErrRxTADRInv.Pack():               "SFS: received target address out of range",
		ErrBroadcastCallback.Pack():       "SFS: broadcast reception callback invocation failed",
		ErrSDNAttrInvalid.Pack():          "SDN: before-read-hook attribute set on own-SDN object",
		ErrEventWfResInv.Pack():           "SNMTM: invalid event in WaitForResponse",
		ErrSNTransInv.Pack():              "SNMTM: invalid SN state transition requested",
		ErrRefReqDataAssSADRInv.Pack():    "SNMTM: NULL reference to assign-SADR request data",
		ErrAddSADRInv.Pack():              "SNMTM: additional SADR out of range",
		ErrSPDONumInv.Pack():              "SNMTM: TxSPDO number out of range",
		ErrNoFsmAvailReqUDID.Pack():       "SNMTM: no FSM available for request-UDID service",
		ErrNoFsmAvailAssSADR.Pack():       "SNMTM: no FSM available for assign-SADR service",
		ErrNoFsmAvailAssAddSADR.Pack():    "SNMTM: no FSM available for assign-additional-SADR service",
		ErrNoFsmAvailReqGuard.Pack():      "SNMTM: no FSM available for node-guarding service",
		ErrNoFsmAvailSNTrans.Pack():       "SNMTM: no FSM available for SN state-transition service",
		ErrNoRespReceived.Pack():          "SNMTM: no response received before deadline, retries exhausted",
		ErrRespNotAssigned.Pack():         "SNMTM: response did not match any waiting slot",
		ErrRxFrmIDInvSNMT.Pack():          "SNMTM: received frame ID invalid for SNMT",
		ErrRespRejWrongDSADR.Pack():       "SNMTM: response destination address is not the SCM's own SADR",
		ErrRespTRFieldNotUnused.Pack():    "SNMTM: reserved TR field non-zero in response",
		ErrRespCTFieldNotUnused.Pack():    "SNMTM: reserved CT field non-zero in response",
		ErrEvtInv.Pack():                  "SNMTM: invalid FSM event in WaitForRequest",
		ErrNoFsmAvailReqSCMUDID.Pack():    "SNMTM: no FSM available for assign-SCM-UDID service",
		ErrRefFreeFrms.Pack():             "SNMTM: free-frame budget reference invalid",
		ErrNoFsmAvailInitCT.Pack():        "SNMTM: no FSM available for initialize-extended-CT service",
		ErrInvalidOwnAddr.Pack():          "SNMTM: own SADR not initialized or equals target SADR",
		ErrTimeoutRefInv.Pack():           "SNMTM: response-timeout or retry-budget SOD object unreadable",
	}
	return m
}

// Render returns a short human-readable diagnostic string for err, or a
// generic fallback if err is not one of the documented codes (e.g. it was
// constructed ad hoc rather than from one of this package's table
// entries).
func Render(err Error) string {
	if s, ok := renderers[err.Pack()]; ok {
		return s
	}
	return err.String()
}
