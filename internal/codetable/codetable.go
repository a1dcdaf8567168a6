// Package codetable holds the per-gateway mapping between raw protocol codes
// and semantic run status / mode values.
//
// One Set is loaded at startup and shared by the status decoder and the
// command encoder. Lookups are always gateway-scoped: a gateway without a
// table is an error, never a fallback to some default table.
package codetable

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/hvac-link-core/internal/device"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
)

var (
	// ErrUnknownGateway is returned when no table is registered for a gateway.
	ErrUnknownGateway = errors.New("codetable: unknown gateway")

	// ErrUnknownCode is returned when a code or value is missing from a gateway's table.
	ErrUnknownCode = errors.New("codetable: unknown code")

	// ErrInvalidTable is returned when a table fails validation.
	ErrInvalidTable = errors.New("codetable: invalid table")
)

// Table is one gateway's code mapping in both directions.
type Table struct {
	status        map[string]device.RunStatus
	mode          map[string]device.Mode
	statusInverse map[device.RunStatus]int
	modeInverse   map[device.Mode]int
}

// NewTable validates and indexes a gateway table. Codes must be integers
// and each semantic value may appear at most once per dimension, so that
// encoding is unambiguous.
func NewTable(status map[string]string, mode map[string]string) (*Table, error) {
	t := &Table{
		status:        make(map[string]device.RunStatus, len(status)),
		mode:          make(map[string]device.Mode, len(mode)),
		statusInverse: make(map[device.RunStatus]int, len(status)),
		modeInverse:   make(map[device.Mode]int, len(mode)),
	}

	for code, name := range status {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("%w: status code %q is not an integer", ErrInvalidTable, code)
		}
		st, err := device.ParseRunStatus(name)
		if err != nil {
			return nil, fmt.Errorf("%w: status %q: %v", ErrInvalidTable, code, err)
		}
		if prev, dup := t.statusInverse[st]; dup {
			return nil, fmt.Errorf("%w: status %s mapped by codes %d and %d", ErrInvalidTable, st, prev, n)
		}
		t.status[strconv.Itoa(n)] = st
		t.statusInverse[st] = n
	}

	for code, name := range mode {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("%w: mode code %q is not an integer", ErrInvalidTable, code)
		}
		m, err := device.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("%w: mode %q: %v", ErrInvalidTable, code, err)
		}
		if prev, dup := t.modeInverse[m]; dup {
			return nil, fmt.Errorf("%w: mode %s mapped by codes %d and %d", ErrInvalidTable, m, prev, n)
		}
		t.mode[strconv.Itoa(n)] = m
		t.modeInverse[m] = n
	}

	return t, nil
}

// Standard returns the table observed on every known gateway:
// status {1: running, 0: stopped}, mode {0: auto, 1: cooling, 2: heating,
// 3: fan, 4: dehumidify}.
func Standard() *Table {
	t, err := NewTable(
		map[string]string{"1": "running", "0": "stopped"},
		map[string]string{"0": "auto", "1": "cooling", "2": "heating", "3": "fan", "4": "dehumidify"},
	)
	if err != nil {
		panic(err) // literal table
	}
	return t
}

// normalizeCode accepts "01" or " 1" for code 1.
func normalizeCode(code string) string {
	if n, err := strconv.Atoi(code); err == nil {
		return strconv.Itoa(n)
	}
	return code
}

// Set is the gateway-keyed collection of tables. Safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{tables: make(map[string]*Table)}
}

// Put registers or replaces the table for a gateway.
func (s *Set) Put(gatewayID string, t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[gatewayID] = t
}

// Gateways returns the gateway IDs with a table, sorted.
func (s *Set) Gateways() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasGateway reports whether a table is registered for the gateway.
func (s *Set) HasGateway(gatewayID string) bool {
	_, err := s.table(gatewayID)
	return err == nil
}

func (s *Set) table(gatewayID string) (*Table, error) {
	s.mu.RLock()
	t, ok := s.tables[gatewayID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayID)
	}
	return t, nil
}

// DecodeStatus maps a raw status code for a gateway.
func (s *Set) DecodeStatus(gatewayID, code string) (device.RunStatus, error) {
	t, err := s.table(gatewayID)
	if err != nil {
		return "", err
	}
	st, ok := t.status[normalizeCode(code)]
	if !ok {
		return "", fmt.Errorf("%w: status %q for gateway %s", ErrUnknownCode, code, gatewayID)
	}
	return st, nil
}

// DecodeMode maps a raw mode code for a gateway.
func (s *Set) DecodeMode(gatewayID, code string) (device.Mode, error) {
	t, err := s.table(gatewayID)
	if err != nil {
		return "", err
	}
	m, ok := t.mode[normalizeCode(code)]
	if !ok {
		return "", fmt.Errorf("%w: mode %q for gateway %s", ErrUnknownCode, code, gatewayID)
	}
	return m, nil
}

// EncodeStatus returns the wire code for a run status.
func (s *Set) EncodeStatus(gatewayID string, st device.RunStatus) (int, error) {
	t, err := s.table(gatewayID)
	if err != nil {
		return 0, err
	}
	n, ok := t.statusInverse[st]
	if !ok {
		return 0, fmt.Errorf("%w: status %s for gateway %s", ErrUnknownCode, st, gatewayID)
	}
	return n, nil
}

// EncodePower returns the on/off wire code: running for on, stopped for off.
func (s *Set) EncodePower(gatewayID string, on bool) (int, error) {
	if on {
		return s.EncodeStatus(gatewayID, device.StatusRunning)
	}
	return s.EncodeStatus(gatewayID, device.StatusStopped)
}

// EncodeMode returns the wire code for a mode.
func (s *Set) EncodeMode(gatewayID string, m device.Mode) (int, error) {
	t, err := s.table(gatewayID)
	if err != nil {
		return 0, err
	}
	n, ok := t.modeInverse[m]
	if !ok {
		return 0, fmt.Errorf("%w: mode %s for gateway %s", ErrUnknownCode, m, gatewayID)
	}
	return n, nil
}

// fileFormat is the layout of a standalone code-table file:
//
//	tables:
//	  fa000001...:
//	    status: {"1": running, "0": stopped}
//	    mode: {"0": auto, "1": cooling}
type fileFormat struct {
	Tables map[string]config.CodeTableConfig `yaml:"tables"`
}

// Load builds a Set from cfg. Precedence, lowest first: the stock table for
// gateways in cfg.Standard, tables from cfg.File, inline cfg.Tables.
func Load(cfg config.CodeTablesConfig) (*Set, error) {
	set := NewSet()
	for _, gw := range cfg.Standard {
		set.Put(gw, Standard())
	}

	merged := make(map[string]config.CodeTableConfig)

	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("reading code table file: %w", err)
		}
		var ff fileFormat
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("parsing code table file: %w", err)
		}
		for gw, tc := range ff.Tables {
			merged[gw] = tc
		}
	}
	for gw, tc := range cfg.Tables {
		merged[gw] = tc
	}

	for gw, tc := range merged {
		t, err := NewTable(tc.Status, tc.Mode)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", gw, err)
		}
		set.Put(gw, t)
	}
	return set, nil
}
