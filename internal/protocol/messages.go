package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrDecode is returned when a payload is not a well-formed envelope.
	ErrDecode = errors.New("protocol: decode failed")

	// ErrMissingField is returned when a required envelope or unit field is absent.
	ErrMissingField = errors.New("protocol: missing required field")

	// ErrInvalidPayload is returned when an outbound payload cannot be built.
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)

// Command is the envelope "cmd" tag.
type Command string

// Known commands.
const (
	CmdStatusRead   Command = "status_read"
	CmdStatusReport Command = "status_report"
	CmdOnline       Command = "online"
	CmdOffline      Command = "offline"
	CmdControlWrite Command = "control_write"
)

// Status-read scopes ("body.cmd").
const (
	ScopeAll   = "all"
	ScopeAddrs = "addrs"
)

// Header carries the envelope fields common to every message.
type Header struct {
	Serial    int64
	Command   Command
	GatewayID string
}

// Message is one of StatusMessage, PresenceMessage, ControlAck or UnknownMessage.
type Message interface {
	Envelope() Header
	isMessage()
}

// StatusMessage is a status_read reply or an unsolicited status_report.
type StatusMessage struct {
	Header
	Scope string
	Addrs []string
	Units []UnitReport
}

// PresenceMessage is an explicit online or offline event for a gateway.
type PresenceMessage struct {
	Header
	Online bool
}

// ControlAck is the gateway's confirmation of a control_write. It is a
// delivery receipt, not new sensor data.
type ControlAck struct {
	Header
	Addrs []string
}

// UnknownMessage carries a cmd this version does not understand.
type UnknownMessage struct {
	Header
}

// Envelope returns the message header.
func (h Header) Envelope() Header { return h }

func (StatusMessage) isMessage()   {}
func (PresenceMessage) isMessage() {}
func (ControlAck) isMessage()      {}
func (UnknownMessage) isMessage()  {}

// UnitReport is one entry of body.inUnitMessages. Nil fields were absent.
type UnitReport struct {
	Address     string   // "a"
	OnOff       *string  // "o", raw status code
	SetTemp     *float64 // "ts"
	Mode        *string  // "w", raw mode code
	FanSpeed    *int     // "fs"
	CurrentTemp *float64 // "rt"
	Presence    *string  // "acs"
}

type rawEnvelope struct {
	Serial *number          `json:"sn"`
	Cmd    string           `json:"cmd"`
	UUID   string           `json:"uuid"`
	Body   *json.RawMessage `json:"body"`
}

type rawBody struct {
	Cmd            string    `json:"cmd"`
	Addrs          []code    `json:"addrs"`
	InUnitMessages []rawUnit `json:"inUnitMessages"`
}

type rawUnit struct {
	A   *code   `json:"a"`
	O   *code   `json:"o"`
	TS  *number `json:"ts"`
	W   *code   `json:"w"`
	FS  *number `json:"fs"`
	RT  *number `json:"rt"`
	ACS *code   `json:"acs"`
}

// Parse decodes one inbound payload.
func Parse(payload []byte) (Message, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var env rawEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	h := Header{
		Command:   Command(strings.TrimSpace(env.Cmd)),
		GatewayID: strings.TrimSpace(env.UUID),
	}
	if h.Command == "" {
		return nil, fmt.Errorf("%w: cmd", ErrMissingField)
	}
	if h.GatewayID == "" {
		return nil, fmt.Errorf("%w: uuid", ErrMissingField)
	}
	if env.Serial != nil {
		h.Serial = int64(*env.Serial)
	}

	switch h.Command {
	case CmdStatusRead, CmdStatusReport:
		return parseStatus(h, env.Body)
	case CmdOnline:
		return PresenceMessage{Header: h, Online: true}, nil
	case CmdOffline:
		return PresenceMessage{Header: h, Online: false}, nil
	case CmdControlWrite:
		body, err := decodeBody(env.Body)
		if err != nil {
			return nil, err
		}
		return ControlAck{Header: h, Addrs: codesToStrings(body.Addrs)}, nil
	default:
		return UnknownMessage{Header: h}, nil
	}
}

func decodeBody(raw *json.RawMessage) (rawBody, error) {
	var body rawBody
	if raw == nil || string(*raw) == "null" {
		return body, nil
	}
	if err := json.Unmarshal(*raw, &body); err != nil {
		return body, fmt.Errorf("%w: body: %v", ErrDecode, err)
	}
	return body, nil
}

func parseStatus(h Header, raw *json.RawMessage) (Message, error) {
	body, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}

	msg := StatusMessage{
		Header: h,
		Scope:  body.Cmd,
		Addrs:  codesToStrings(body.Addrs),
		Units:  make([]UnitReport, 0, len(body.InUnitMessages)),
	}

	for i, u := range body.InUnitMessages {
		if u.A == nil || strings.TrimSpace(string(*u.A)) == "" {
			return nil, fmt.Errorf("%w: inUnitMessages[%d].a", ErrMissingField, i)
		}
		r := UnitReport{
			Address:     strings.TrimSpace(string(*u.A)),
			OnOff:       u.O.ptr(),
			Mode:        u.W.ptr(),
			Presence:    u.ACS.ptr(),
			SetTemp:     u.TS.floatPtr(),
			CurrentTemp: u.RT.floatPtr(),
		}
		if u.FS != nil {
			fs := float64(*u.FS)
			if fs != float64(int(fs)) {
				return nil, fmt.Errorf("%w: inUnitMessages[%d].fs %v is not an integer", ErrDecode, i, fs)
			}
			n := int(fs)
			r.FanSpeed = &n
		}
		msg.Units = append(msg.Units, r)
	}
	return msg, nil
}

// code is a scalar that may arrive as a JSON string or number.
type code string

func (c *code) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*c = code(n.String())
	return nil
}

func (c *code) ptr() *string {
	if c == nil {
		return nil
	}
	s := strings.TrimSpace(string(*c))
	return &s
}

// number is a float that may arrive as a JSON number or numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("expected number, got %s", data)
	}
	*n = number(f)
	return nil
}

func (n *number) floatPtr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

func codesToStrings(cs []code) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
