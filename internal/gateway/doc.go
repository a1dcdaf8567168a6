// Package gateway is the Topic/Gateway Directory: the registry of known IoT
// gateways, their subscribe/publish topic pairs and their online state.
//
// The Directory answers the two questions the rest of the core asks of it:
// which topics must the broker session subscribe to, and which topic does a
// command for a given gateway go out on. A gateway that is not registered is
// always an error; the directory never invents one.
//
// A gateway's updated_at column records when it was last heard from. The
// Sweeper periodically marks gateways that have gone quiet for longer than
// the configured threshold offline and cascades that to their devices.
//
// # Usage
//
//	dir := gateway.NewDirectory(gateway.NewSQLiteRepository(db.DB))
//	dir.SetLogger(log)
//
//	_, _, err := dir.Upsert(ctx, gateway.Gateway{
//	    GatewayID:      "GW1",
//	    SubscribeTopic: "hvac/GW1/up",
//	    PublishTopic:   "hvac/GW1/down",
//	})
//	topics, err := dir.AllSubscribeTopics(ctx)
//	topic, err := dir.PublishTopicFor(ctx, "GW1")
package gateway
