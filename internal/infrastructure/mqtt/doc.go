// Package mqtt owns the broker session of the HVAC link core.
//
// The Supervisor is the single connection of the process:
//   - Start connects and subscribes every gateway topic from the directory
//     that the session is not already subscribed to
//   - Publish waits for the broker acknowledgement and retries under a
//     bounded RetryPolicy, reconnecting between attempts
//   - inbound messages are handed to one MessageHandler on the receive
//     loop, with panics and errors contained per message
//
// # Session model
//
// The session is persistent (clean session off) and paho's automatic
// reconnect is disabled. Losing the connection only clears the connected
// flag; the session comes back on the next Publish, or when Start or
// Resubscribe is called. On reconnect the CONNACK session-present flag
// decides whether the tracked subscription set is still valid: if the
// broker kept the session, only topics added since are subscribed.
//
// Short-lived publish-only processes set Options.Ephemeral: they connect
// with a clean session under a unique client ID and publish no presence
// status, leaving the resident session untouched.
//
//	Gateways ↔ MQTT Broker ↔ Supervisor → ingest.Processor
//	                              ↑
//	                      command.Dispatcher
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	sup, err := mqtt.NewSupervisor(mqtt.Options{
//	    Config:  cfg.MQTT,
//	    Topics:  directory,
//	    Handler: processor.HandleMessage,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sup.Stop()
//
//	if err := sup.Start(ctx); err != nil {
//	    log.Warn("broker unavailable, will retry on first publish", "error", err)
//	}
//
//	err = sup.Publish(ctx, "hvac/GW1/down", payload, 1, false)
package mqtt
