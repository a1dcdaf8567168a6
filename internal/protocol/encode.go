package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// ControlWrite is an outbound control_write. Nil fields are omitted so the
// gateway leaves those settings alone.
type ControlWrite struct {
	Serial    int64
	GatewayID string
	Addrs     []string

	OnOff    *int     // status code from the gateway's code table
	TempSet  *float64 // passed through as a number
	WorkMode *int     // mode code from the gateway's code table
	FanSpeed *int     // fan speed wire value
}

type envelopeOut struct {
	Serial  int64  `json:"sn"`
	Command string `json:"cmd"`
	UUID    string `json:"uuid"`
	Body    any    `json:"body"`
}

type controlBody struct {
	Addrs    []string `json:"addrs"`
	OnOff    *int     `json:"onOff,omitempty"`
	TempSet  *float64 `json:"tempSet,omitempty"`
	WorkMode *int     `json:"workMode,omitempty"`
	FanSpeed *int     `json:"fanSpeed,omitempty"`
}

type queryBody struct {
	Cmd   string   `json:"cmd"`
	Addrs []string `json:"addrs,omitempty"`
}

// Marshal renders the control_write envelope.
func (c ControlWrite) Marshal() ([]byte, error) {
	if err := checkTarget(c.GatewayID, c.Addrs); err != nil {
		return nil, err
	}
	if c.OnOff == nil && c.TempSet == nil && c.WorkMode == nil && c.FanSpeed == nil {
		return nil, fmt.Errorf("%w: control_write without any setting", ErrInvalidPayload)
	}
	if c.TempSet != nil && (math.IsNaN(*c.TempSet) || math.IsInf(*c.TempSet, 0)) {
		return nil, fmt.Errorf("%w: tempSet is not finite", ErrInvalidPayload)
	}

	return json.Marshal(envelopeOut{
		Serial:  c.Serial,
		Command: string(CmdControlWrite),
		UUID:    c.GatewayID,
		Body: controlBody{
			Addrs:    c.Addrs,
			OnOff:    c.OnOff,
			TempSet:  c.TempSet,
			WorkMode: c.WorkMode,
			FanSpeed: c.FanSpeed,
		},
	})
}

// StatusQuery is an outbound status_read for specific addresses.
type StatusQuery struct {
	Serial    int64
	GatewayID string
	Addrs     []string
}

// Marshal renders the status_read envelope.
func (q StatusQuery) Marshal() ([]byte, error) {
	if err := checkTarget(q.GatewayID, q.Addrs); err != nil {
		return nil, err
	}
	return json.Marshal(envelopeOut{
		Serial:  q.Serial,
		Command: string(CmdStatusRead),
		UUID:    q.GatewayID,
		Body:    queryBody{Cmd: ScopeAddrs, Addrs: q.Addrs},
	})
}

// StatusQueryAll renders a status_read asking the gateway for every unit.
func StatusQueryAll(serial int64, gatewayID string) ([]byte, error) {
	if strings.TrimSpace(gatewayID) == "" {
		return nil, fmt.Errorf("%w: gateway id is required", ErrInvalidPayload)
	}
	return json.Marshal(envelopeOut{
		Serial:  serial,
		Command: string(CmdStatusRead),
		UUID:    gatewayID,
		Body:    queryBody{Cmd: ScopeAll},
	})
}

func checkTarget(gatewayID string, addrs []string) error {
	if strings.TrimSpace(gatewayID) == "" {
		return fmt.Errorf("%w: gateway id is required", ErrInvalidPayload)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: at least one address is required", ErrInvalidPayload)
	}
	for _, a := range addrs {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: empty address", ErrInvalidPayload)
		}
	}
	return nil
}

// Sequence hands out envelope serial numbers. It starts at a random offset
// so serials from consecutive process runs do not collide.
type Sequence struct {
	n atomic.Int64
}

// NewSequence creates a Sequence with a random 30-bit starting point.
func NewSequence() *Sequence {
	id := uuid.New()
	s := &Sequence{}
	s.n.Store(int64(binary.BigEndian.Uint32(id[:4]) & 0x3fffffff))
	return s
}

// Next returns the next serial.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}
