// Package scm implements the SCM control surface (C9): the thin
// orchestration aggregate that ties the SDN gate (C4), the frame codec
// (C6) and the SNMT master pool/dispatcher (C7/C8) together over one
// instance's object dictionary and one configured list of SNs. Core only
// ever orchestrates across the SN list; everything here is a deliberately
// thin wrapper, in the same spirit as a network manager that owns a bus
// handle and a node map without adding protocol logic of its own.
package scm

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/config"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/frame"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/snmt"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

// Instance is the fixed instance number this single-SCM-process core
// runs as. The instance parameter is threaded through every layer below
// so a future multi-SCM host has somewhere to plug in additional
// instances without touching pkg/snmt, pkg/frame or pkg/sdn.
const Instance = 0

// Send is the host network function's frame transmission hook: given an
// already-serialized wire frame, put it on the black channel. This is an
// external collaborator Core never implements; Core only ever calls it
// with bytes frame.Codec has already produced.
type Send func(wire []byte) error

// OnComplete is invoked once per finished SNMT request, successful or
// timed out, so the host can correlate completions with the
// registration numbers it handed to a request builder.
type OnComplete func(regNum uint16, targetSADR, sdnNum uint16, payload []byte, timedOut bool)

// OnResetGuard is invoked whenever a Reset-Guard broadcast arrives.
type OnResetGuard func()

// Core is the SCM's owning aggregate. cmd/scmctl (and any other host)
// talks only to Core; it never reaches into pkg/snmt or pkg/frame
// directly.
type Core struct {
	dict  od.Dictionary
	gate  *sdn.Gate
	codec *frame.Codec
	pool  *snmt.Pool
	disp  *snmt.Dispatcher
	stats *stats.Engine
	log   *log.Entry

	sns     map[string]config.SNEntry
	nextReg uint16
}

// New wires one instance's SCM core over dict (already seeded, typically
// via config.Config.Seed): the SDN gate is initialized, the codec built
// over it, the SNMT pool sized to cfg.FSMSlots, and the dispatcher built
// over the pool. send is wrapped into the pool's Transmitter by
// serializing every request frame through codec first, matching
// transmitRequest's SFS_FrmSerialize/SHNF_SendFrame pair. logger may be
// nil (discarded).
func New(cfg *config.Config, dict od.Dictionary, send Send, onComplete OnComplete, onResetGuard OnResetGuard, logger *log.Entry) (*Core, *stats.Error) {
	if logger == nil {
		discard := log.New()
		discard.SetOutput(io.Discard)
		logger = log.NewEntry(discard)
	}

	gate := sdn.New(dict)
	if _, errStat := gate.Init(Instance); errStat != nil {
		return nil, errStat
	}
	codec := frame.New(dict, gate)
	eng := stats.NewEngine(cfg.FSMSlots, 0, nil, logger)

	resolve := func(instance int) (uint32, uint8, *stats.Error) {
		timeoutRaw, errRes := dict.Read(instance, snmt.TimeoutRef)
		if errRes != nil || len(timeoutRaw) != 4 {
			e := stats.ErrTimeoutRefInv
			return 0, 0, &e
		}
		retryRaw, errRes := dict.Read(instance, snmt.RetryBudgetRef)
		if errRes != nil || len(retryRaw) != 1 {
			e := stats.ErrTimeoutRefInv
			return 0, 0, &e
		}
		timeout := uint32(timeoutRaw[0]) | uint32(timeoutRaw[1])<<8 |
			uint32(timeoutRaw[2])<<16 | uint32(timeoutRaw[3])<<24
		return timeout, retryRaw[0], nil
	}

	transmit := func(hdr frame.Header, payload []byte) *stats.Error {
		dst := frame.AcquireTx(hdr.ID, len(payload))
		wire, errStat := codec.Serialize(Instance, hdr, payload, dst)
		if errStat != nil {
			return errStat
		}
		if err := send(wire); err != nil {
			logger.WithError(err).Warn("scm: send failed")
			e := stats.ErrNoMemFromHNF
			return &e
		}
		return nil
	}

	var hostComplete snmt.ResponseCallback
	if onComplete != nil {
		hostComplete = func(regNum uint16, tadr, sdnNum uint16, payload []byte, timedOut bool) {
			onComplete(regNum, tadr, sdnNum, payload, timedOut)
		}
	}

	pool := snmt.NewPool(cfg.FSMSlots, eng, resolve, transmit, hostComplete)

	var guardHook func()
	if onResetGuard != nil {
		guardHook = func() { onResetGuard() }
	}
	disp := snmt.New(dict, codec, gate, pool, eng, guardHook)

	sns := make(map[string]config.SNEntry, len(cfg.SNs))
	for _, sn := range cfg.SNs {
		sns[sn.Name] = sn
	}

	return &Core{
		dict:  dict,
		gate:  gate,
		codec: codec,
		pool:  pool,
		disp:  disp,
		stats: eng,
		log:   logger,
		sns:   sns,
	}, nil
}

// Stats exposes the instance's error/statistics engine for hosts that
// want to surface counters.
func (c *Core) Stats() *stats.Engine { return c.stats }

// Lookup resolves a configured SN by the name given to its "sn.<name>"
// section, returning its configured entry (target SADR, optional UDID and
// additional SADR). Hosts that already track the SADR themselves may skip
// this and call the request methods (RequestUDID, Guard, ...) directly.
func (c *Core) Lookup(name string) (config.SNEntry, error) {
	sn, ok := c.sns[name]
	if !ok {
		return config.SNEntry{}, fmt.Errorf("scm: no configured SN named %q", name)
	}
	return sn, nil
}

// nextRegNum hands out a free-running registration number for
// correlating a request with its eventual completion, mirroring the
// original stack's caller-supplied dwCtToAck/registration handles.
func (c *Core) nextRegNum() uint16 {
	c.nextReg++
	return c.nextReg
}

// RequestUDID asks the SN at targetSADR to report its physical UDID.
func (c *Core) RequestUDID(now uint32, targetSADR uint16) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqUdid(Instance, now, reg, targetSADR)
}

// AssignSADR gives the SN identified by udid the logical address
// targetSADR.
func (c *Core) AssignSADR(now uint32, targetSADR uint16, udid []byte) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqAssgnSadr(Instance, now, reg, targetSADR, udid)
}

// AssignSCMUDID tells the SN at targetSADR which SCM now owns it.
func (c *Core) AssignSCMUDID(now uint32, targetSADR uint16, scmUDID []byte) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqAssgnScmUdid(Instance, now, reg, targetSADR, scmUDID)
}

// InitializeCT seeds the SN's 40-bit extended consecutive-time counter.
func (c *Core) InitializeCT(now uint32, targetSADR uint16, extCT uint64) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqInitializeCtSn(Instance, now, reg, targetSADR, extCT)
}

// AssignAdditionalSADR binds a second logical address and TxSPDO number
// to the SN at targetSADR.
func (c *Core) AssignAdditionalSADR(now uint32, targetSADR, addSADR, spdoNum uint16) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqAssgnAddSadr(Instance, now, reg, targetSADR, addSADR, spdoNum)
}

// Guard issues the periodic liveness check on an already-configured SN.
func (c *Core) Guard(now uint32, targetSADR uint16) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqGuarding(Instance, now, reg, targetSADR)
}

// Transition requests an SN state change (PRE-OPERATIONAL <-> OPERATIONAL).
func (c *Core) Transition(now uint32, targetSADR uint16, trans snmt.Transition, paramTimestamp uint32) (uint16, *stats.Error) {
	reg := c.nextRegNum()
	return reg, c.disp.ReqSnTrans(Instance, now, reg, targetSADR, trans, paramTimestamp)
}

// ErrorAck acknowledges an error previously reported by the SN at
// targetSADR.
func (c *Core) ErrorAck(targetSADR uint16, errGroup, errCode uint8) *stats.Error {
	return c.disp.SnErrorAck(Instance, targetSADR, errGroup, errCode)
}

// Receive hands one already-deserialized frame to the dispatcher's
// response-routing path.
func (c *Core) Receive(hdr frame.Header, payload []byte) *stats.Error {
	return c.disp.HandleFrame(Instance, hdr, payload)
}

// ReceiveWire deserializes buf through the codec before routing it,
// convenient for hosts (like cmd/scmctl's loopback stub) that only have
// raw wire bytes.
func (c *Core) ReceiveWire(buf []byte) *stats.Error {
	hdr, payload, errStat := c.codec.Deserialize(Instance, buf, 0)
	if errStat != nil {
		return errStat
	}
	return c.disp.HandleFrame(Instance, hdr, payload)
}

// Tick drives one pass of the timeout sweep over every outstanding
// request, budgeted by freeFrames exactly as SCM_ProcessSCM limits
// SNMTM_ProcessFsm's retransmissions per cyclic call.
func (c *Core) Tick(now uint32, freeFrames int) *stats.Error {
	budget := freeFrames
	return c.disp.Sweep(Instance, now, &budget)
}
