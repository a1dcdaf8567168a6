// Package ingest is the receive-loop side of the core: it turns one inbound
// gateway payload into directory and device updates.
//
// The Processor is installed as the MQTT supervisor's message handler.
// Every payload is parsed strictly into one of the protocol message
// variants, the gateway is looked up in the directory, and then:
//
//   - status_read / status_report: each unit is reconciled (created on first
//     sight) and its decoded fields applied
//   - online / offline: the gateway flag is set and, when configured,
//     cascaded to its devices
//   - control_write: logged as a delivery receipt, no state change
//   - anything else: logged and ignored
//
// A malformed payload or an unregistered gateway drops the message with an
// error that the supervisor logs; nothing here can stop the receive loop.
package ingest
