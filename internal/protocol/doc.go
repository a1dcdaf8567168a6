// Package protocol implements the JSON wire format spoken by the HVAC
// gateways.
//
// Every message is an envelope:
//
//	{"sn": 17, "cmd": "status_report", "uuid": "<gateway-id>", "body": {...}}
//
// Parse turns an inbound payload into exactly one of the tagged variants
// StatusMessage, PresenceMessage, ControlAck or UnknownMessage. Parsing fails
// closed: a payload that is not JSON, or lacks cmd, uuid or a unit address,
// is rejected with ErrDecode or ErrMissingField rather than half-decoded.
//
// Gateways are inconsistent about scalar types, so codes and numbers are
// accepted either as JSON numbers or as numeric strings.
//
// Outbound payloads are built with ControlWrite and StatusQuery.
package protocol
