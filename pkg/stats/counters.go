package stats

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// CommonEvent enumerates the per-instance common event counters. Grounded
// on SERR_aadwCommonEvtCtr in the original SERRmain.c.
type CommonEvent uint8

const (
	CommonCyclicError CommonEvent = iota
	CommonAcyclicRetry
	CommonSNMTTimeout
	CommonRxFrameRejected
	numCommonEvents
)

// AcycEvent enumerates the per-SN (per-FSM-slot) acyclic event counters.
// Grounded on aadw_AcycEvtCtr in the original SERRmain.c.
type AcycEvent uint8

const (
	AcycRetry AcycEvent = iota
	AcycTimeout
	numAcycEvents
)

// SPDOEvent enumerates the per-SPDO event counters. SPDO itself is a peer
// component this core does not implement, but the counter cohort is part
// of the error/statistics engine's contract and is exercised here so a
// future SPDO implementation has somewhere to report into.
type SPDOEvent uint8

const (
	SPDOCrcError SPDOEvent = iota
	SPDOTimeout
	numSPDOEvents
)

// Engine is the owning aggregate for one instance's error/statistics
// state: the packed-error signal path, the last-additional-info register,
// and the three counter cohorts. Counter writes use atomic adds so readers
// never observe a torn update, only a possibly-stale one, without taking
// a lock.
type Engine struct {
	logger  *log.Entry
	onError func(Error, uint32)

	lastAdditionalInfo atomic.Uint32

	common  [numCommonEvents]atomic.Uint64
	acyclic []acyclicSlot
	spdo    []spdoSlot
}

type acyclicSlot struct {
	counters [numAcycEvents]atomic.Uint64
}

type spdoSlot struct {
	counters [numSPDOEvents]atomic.Uint64
}

// NewEngine builds an Engine sized for numAcyclicSlots FSM slots and
// numSPDOs process-data channels. onError, if non-nil, is the host's
// signal_error_callback; logger, if nil, discards log output.
func NewEngine(numAcyclicSlots, numSPDOs int, onError func(Error, uint32), logger *log.Entry) *Engine {
	if logger == nil {
		discard := log.New()
		discard.SetOutput(noopWriter{})
		logger = log.NewEntry(discard)
	}
	return &Engine{
		logger:  logger,
		onError: onError,
		acyclic: make([]acyclicSlot, numAcyclicSlots),
		spdo:    make([]spdoSlot, numSPDOs),
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// SetError stores additionalInfo in the last-additional-info register and
// invokes the host callback, mirroring SERR_SetError/SAPL_SERR_SignalErrorClbk
// in the original stack. It always logs at a level matching err's class.
func (e *Engine) SetError(err Error, additionalInfo uint32) {
	e.lastAdditionalInfo.Store(additionalInfo)
	switch err.Class {
	case ClassFatal:
		e.logger.WithField("code", err.Pack()).Errorf("%s (info=%#x)", Render(err), additionalInfo)
	case ClassMinor:
		e.logger.WithField("code", err.Pack()).Warnf("%s (info=%#x)", Render(err), additionalInfo)
	default:
		e.logger.WithField("code", err.Pack()).Debugf("%s (info=%#x)", Render(err), additionalInfo)
	}
	if e.onError != nil {
		e.onError(err, additionalInfo)
	}
}

// LastAdditionalInfo returns the most recent additional_info value passed
// to SetError, for post-mortem inspection.
func (e *Engine) LastAdditionalInfo() uint32 {
	return e.lastAdditionalInfo.Load()
}

// IncCommon increments a common per-instance counter.
func (e *Engine) IncCommon(evt CommonEvent) {
	e.common[evt].Add(1)
}

// CommonCount reads a common per-instance counter.
func (e *Engine) CommonCount(evt CommonEvent) uint64 {
	return e.common[evt].Load()
}

// IncAcyclic increments an acyclic counter for the FSM slot at index slot.
func (e *Engine) IncAcyclic(slot int, evt AcycEvent) {
	if slot < 0 || slot >= len(e.acyclic) {
		return
	}
	e.acyclic[slot].counters[evt].Add(1)
}

// AcyclicCount reads an acyclic counter for the FSM slot at index slot.
func (e *Engine) AcyclicCount(slot int, evt AcycEvent) uint64 {
	if slot < 0 || slot >= len(e.acyclic) {
		return 0
	}
	return e.acyclic[slot].counters[evt].Load()
}

// IncSPDO increments a per-SPDO counter for the channel at index num.
func (e *Engine) IncSPDO(num int, evt SPDOEvent) {
	if num < 0 || num >= len(e.spdo) {
		return
	}
	e.spdo[num].counters[evt].Add(1)
}

// SPDOCount reads a per-SPDO counter for the channel at index num.
func (e *Engine) SPDOCount(num int, evt SPDOEvent) uint64 {
	if num < 0 || num >= len(e.spdo) {
		return 0
	}
	return e.spdo[num].counters[evt].Load()
}
