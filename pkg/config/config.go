// Package config implements the bootstrap configuration loader (C11): an
// INI file naming one SCM and the SNs it is to manage, parsed with
// gopkg.in/ini.v1 the same way an EDS file is parsed into a CANopen
// object dictionary. Loading is a one-shot startup concern; pkg/snmt never
// imports this package and consumes only the od.Dictionary it seeds, while
// pkg/scm takes the parsed Config for its FSM slot count and SN list.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/frame"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/od"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/sdn"
	"github.com/hasiflo/openSafety-mqtt-sub003/pkg/snmt"
)

const (
	minSDN  = 1
	maxSDN  = 0x03FF
	minSADR = 1
	maxSADR = 0x03FF
)

// matchSNSection recognizes "sn.<name>" sections, one per managed SN,
// the same section-per-entity convention an EDS parser uses to match
// index/sub-index sections.
var matchSNSection = regexp.MustCompile(`^sn\.(.+)$`)

// SNEntry describes one SN this SCM manages, as declared by a "sn.<name>"
// section.
type SNEntry struct {
	Name       string
	SADR       uint16
	UDID       [6]byte
	HasUDID    bool
	AddSADR    uint16
	SPDONum    uint16
	HasAddSADR bool
}

// Config is the parsed bootstrap file: the SCM's own identity plus the
// static list of SNs it is configured to drive. It says nothing about
// runtime state (connection status, assigned FSM slots) - that lives in
// pkg/snmt and pkg/scm once the process is running.
type Config struct {
	SDN              uint16
	SADR             uint16
	UDID             [6]byte
	SNMTTimeoutTicks uint32
	SNMTRetries      uint8
	FSMSlots         int
	SNs              []SNEntry
}

// Load reads path as an INI file with one mandatory "[scm]" section and
// zero or more "[sn.<name>]" sections, one section per entity the same
// way an EDS file lays out one section per object. A malformed or
// out-of-range own-SDN or own-SADR is fatal: the process cannot safely
// start without them.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	scmSection, err := file.GetSection("scm")
	if err != nil {
		return nil, fmt.Errorf("config: missing [scm] section: %w", err)
	}

	cfg := &Config{FSMSlots: 4, SNMTTimeoutTicks: 2000, SNMTRetries: 3}

	cfg.SDN, err = parseUint16(scmSection, "SDN", true)
	if err != nil {
		return nil, err
	}
	if cfg.SDN < minSDN || cfg.SDN > maxSDN {
		return nil, fmt.Errorf("config: [scm] SDN %#x out of range [%#x,%#x]", cfg.SDN, minSDN, maxSDN)
	}

	cfg.SADR, err = parseUint16(scmSection, "SADR", true)
	if err != nil {
		return nil, err
	}
	if cfg.SADR < minSADR || cfg.SADR > maxSADR {
		return nil, fmt.Errorf("config: [scm] SADR %#x out of range [%#x,%#x]", cfg.SADR, minSADR, maxSADR)
	}

	if key, err := scmSection.GetKey("UDID"); err == nil {
		udid, err := parseUDID(key.String())
		if err != nil {
			return nil, fmt.Errorf("config: [scm] UDID: %w", err)
		}
		cfg.UDID = udid
	} else {
		return nil, fmt.Errorf("config: [scm] missing UDID: %w", err)
	}

	if key, err := scmSection.GetKey("TimeoutTicks"); err == nil {
		v, err := strconv.ParseUint(key.String(), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("config: [scm] TimeoutTicks: %w", err)
		}
		cfg.SNMTTimeoutTicks = uint32(v)
	}
	if key, err := scmSection.GetKey("Retries"); err == nil {
		v, err := strconv.ParseUint(key.String(), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("config: [scm] Retries: %w", err)
		}
		cfg.SNMTRetries = uint8(v)
	}
	if key, err := scmSection.GetKey("FSMSlots"); err == nil {
		v, err := strconv.ParseUint(key.String(), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("config: [scm] FSMSlots: %w", err)
		}
		cfg.FSMSlots = int(v)
	}

	for _, section := range file.Sections() {
		m := matchSNSection.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		entry, err := parseSNEntry(m[1], section)
		if err != nil {
			return nil, err
		}
		cfg.SNs = append(cfg.SNs, entry)
	}

	return cfg, nil
}

func parseSNEntry(name string, section *ini.Section) (SNEntry, error) {
	entry := SNEntry{Name: name}

	sadr, err := parseUint16(section, "SADR", true)
	if err != nil {
		return entry, fmt.Errorf("config: [sn.%s]: %w", name, err)
	}
	if sadr < minSADR || sadr > maxSADR {
		return entry, fmt.Errorf("config: [sn.%s] SADR %#x out of range", name, sadr)
	}
	entry.SADR = sadr

	if key, err := section.GetKey("UDID"); err == nil {
		udid, err := parseUDID(key.String())
		if err != nil {
			return entry, fmt.Errorf("config: [sn.%s] UDID: %w", name, err)
		}
		entry.UDID = udid
		entry.HasUDID = true
	}

	addKey, addErr := section.GetKey("AdditionalSADR")
	spdoKey, spdoErr := section.GetKey("TxSPDONum")
	if addErr == nil && spdoErr == nil {
		add, err := strconv.ParseUint(addKey.String(), 0, 16)
		if err != nil {
			return entry, fmt.Errorf("config: [sn.%s] AdditionalSADR: %w", name, err)
		}
		spdo, err := strconv.ParseUint(spdoKey.String(), 0, 16)
		if err != nil {
			return entry, fmt.Errorf("config: [sn.%s] TxSPDONum: %w", name, err)
		}
		entry.AddSADR = uint16(add)
		entry.SPDONum = uint16(spdo)
		entry.HasAddSADR = true
	}

	return entry, nil
}

func parseUint16(section *ini.Section, keyName string, required bool) (uint16, error) {
	key, err := section.GetKey(keyName)
	if err != nil {
		if required {
			return 0, fmt.Errorf("[%s] missing %s: %w", section.Name(), keyName, err)
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(key.String(), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("[%s] %s: %w", section.Name(), keyName, err)
	}
	return uint16(v), nil
}

func parseUDID(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("expected 6 colon-separated hex bytes, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("byte %d: %w", i, err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Seed populates dict with the cells the SCM side of the core reads at
// startup: own SDN (sdn.Ref), own UDID (frame.ScmUDIDRef), own SADR
// (snmt.OwnSADRRef) and the default timeout/retry budget
// (snmt.TimeoutRef/RetryBudgetRef). Seeding is the external collaborator's
// job (see pkg/od's package doc); the core itself only ever reads and
// writes these cells through the Dictionary contract.
func (c *Config) Seed(mem *od.Memory, instance int) {
	mem.Define(instance, sdn.Ref, []byte{byte(c.SDN), byte(c.SDN >> 8)}, od.AttrOverridable)
	mem.Define(instance, frame.ScmUDIDRef, c.UDID[:], od.AttrOverridable)
	mem.Define(instance, snmt.OwnSADRRef, []byte{byte(c.SADR), byte(c.SADR >> 8)}, od.AttrOverridable)
	mem.Define(instance, snmt.TimeoutRef, []byte{
		byte(c.SNMTTimeoutTicks), byte(c.SNMTTimeoutTicks >> 8),
		byte(c.SNMTTimeoutTicks >> 16), byte(c.SNMTTimeoutTicks >> 24),
	}, od.AttrOverridable)
	mem.Define(instance, snmt.RetryBudgetRef, []byte{c.SNMTRetries}, od.AttrOverridable)
}
