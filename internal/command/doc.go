// Package command turns control intents into gateway control_write
// messages and delivers them.
//
// A dispatch resolves each target device, groups the targets by owning
// gateway and sends one wire message per group. Groups run concurrently
// and fail independently: an unknown gateway, a missing code-table entry
// or an exhausted publish retry marks only that group's devices failed.
//
// After a control write is confirmed sent, the dispatcher waits
// QueryDelay and then publishes a status_read for the same addresses so
// the device records converge through the normal ingest path. The query
// is never sent before the control write.
//
//	res, err := d.DispatchControl(ctx, []string{"dev-1", "dev-2"}, command.Intent{Power: &on})
//	if err != nil {
//	    // invalid intent, nothing was published
//	}
//	for _, id := range res.Failed {
//	    log.Println(id, res.Details[id])
//	}
package command
