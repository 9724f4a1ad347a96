// Command scmctl is a demonstration CLI front-end for the SCM core (C13):
// it loads a bootstrap config (C11), seeds an in-memory SOD (C12), wires
// C4/C6/C7/C8/C9 together over a loopback host network function, and
// issues one SNMT service against a configured SN. This core never
// implements a real HNF (an actual black-channel transport) - the
// loopback here only exists so the full codec/dispatcher path is
// exercised end to end without a real SN on the wire.
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/config"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/scm"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/snmt"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/stats"
)

var (
	configPath = pflag.StringP("config", "c", "scm.ini", "path to the SCM bootstrap config (INI)")
	targetName = pflag.StringP("target", "t", "", "name of the configured SN (\"sn.<name>\" section) to address")
	service    = pflag.StringP("service", "s", "guard", "service to issue: udid|guard|preop|op")
	tickMs     = pflag.IntP("tick-ms", "p", 50, "loopback/timeout-sweep tick period in milliseconds")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scmctl --config scm.ini --target sn1 --service guard\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	log.SetLevel(log.InfoLevel)
	logger := log.NewEntry(log.StandardLogger())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("scmctl: failed to load config")
	}

	if *targetName == "" {
		fmt.Fprintln(os.Stderr, "scmctl: --target is required")
		pflag.Usage()
		os.Exit(2)
	}
	sn, found := findSN(cfg, *targetName)
	if !found {
		logger.Fatalf("scmctl: no SN named %q in %s", *targetName, *configPath)
	}

	mem := od.NewMemory()
	cfg.Seed(mem, scm.Instance)

	loop := newLoopback(logger)

	core, errStat := scm.New(cfg, mem, loop.send, loop.onComplete, loop.onResetGuard, logger)
	if errStat != nil {
		logger.Fatalf("scmctl: failed to build core: %s", errStat)
	}

	now := uint32(0)
	if errStat := issue(core, *service, now, sn.SADR); errStat != nil {
		logger.Fatalf("scmctl: %s request failed: %s", *service, errStat)
	}

	ticker := time.NewTicker(time.Duration(*tickMs) * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(time.Duration(*tickMs) * time.Millisecond * 40)
	for {
		select {
		case <-ticker.C:
			now++
			loop.drain(core)
			if errStat := core.Tick(now, 4); errStat != nil {
				logger.Warnf("scmctl: tick: %s", errStat)
			}
			if loop.done {
				return
			}
		case <-deadline:
			logger.Warn("scmctl: exiting without a completion (no real SN is listening)")
			return
		}
	}
}

func findSN(cfg *config.Config, name string) (config.SNEntry, bool) {
	for _, sn := range cfg.SNs {
		if sn.Name == name {
			return sn, true
		}
	}
	return config.SNEntry{}, false
}

func issue(core *scm.Core, service string, now uint32, targetSADR uint16) *stats.Error {
	var errStat *stats.Error
	switch service {
	case "udid":
		_, errStat = core.RequestUDID(now, targetSADR)
	case "guard":
		_, errStat = core.Guard(now, targetSADR)
	case "preop":
		_, errStat = core.Transition(now, targetSADR, snmt.TransOpToPreOp, 0)
	case "op":
		_, errStat = core.Transition(now, targetSADR, snmt.TransPreOpToOp, 0)
	default:
		fmt.Fprintf(os.Stderr, "scmctl: unknown --service %q (want udid|guard|preop|op)\n", service)
		os.Exit(2)
	}
	return errStat
}

// loopback stands in for the host network function: frames the core
// serializes for transmission are queued and handed straight back to
// the core's deserialize/dispatch path on the next drain, since there is
// no real SN on the other end of a genuine black channel here.
type loopback struct {
	logger *log.Entry
	queue  [][]byte
	done   bool
}

func newLoopback(logger *log.Entry) *loopback {
	return &loopback{logger: logger}
}

func (l *loopback) send(wire []byte) error {
	l.logger.Debugf("scmctl: queuing %d byte frame for loopback delivery", len(wire))
	l.queue = append(l.queue, append([]byte(nil), wire...))
	return nil
}

func (l *loopback) drain(core *scm.Core) {
	pending := l.queue
	l.queue = nil
	for _, wire := range pending {
		if errStat := core.ReceiveWire(wire); errStat != nil {
			l.logger.Debugf("scmctl: loopback frame rejected: %s", errStat)
		}
	}
}

func (l *loopback) onComplete(regNum uint16, targetSADR, sdnNum uint16, payload []byte, timedOut bool) {
	if timedOut {
		l.logger.Warnf("scmctl: request #%d to SADR %#x timed out", regNum, targetSADR)
	} else {
		l.logger.Infof("scmctl: request #%d to SADR %#x completed, payload=% x", regNum, targetSADR, payload)
	}
	l.done = true
}

func (l *loopback) onResetGuard() {
	l.logger.Info("scmctl: received Reset-Guard broadcast")
}
