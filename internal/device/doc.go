// Package device holds the HVAC device registry: the Device model, its
// SQLite repository, status history and the Reconciler that applies inbound
// gateway reports.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Device Registry                           │
//	│                                                                   │
//	│  ┌──────────────────┐    ┌──────────────────┐   ┌──────────────┐  │
//	│  │    Reconciler    │    │    Repository    │   │   History    │  │
//	│  │ (reconciler.go)  │───▶│  (repository.go) │──▶│ (history.go) │  │
//	│  │                  │    │                  │   │              │  │
//	│  │ • get-or-create  │    │ • SQLite queries │   │ • snapshots  │  │
//	│  │ • code decoding  │    │ • merge in tx    │   │ • newest     │  │
//	│  │ • enrichment     │    │ • cascades       │   │   first      │  │
//	│  └──────────────────┘    └──────────────────┘   └──────────────┘  │
//	└──────────────────────────────────────────────────────────────────┘
//
// A device is identified globally by a UUID and locally by the pair
// (gateway ID, address), which is unique. Devices first seen in a gateway
// report are created "provisional" with a placeholder name; an operator
// moves them to "active" with Reconciler.Enrich.
//
// Status reports are partial: only fields present in a report are written,
// and a field whose raw code is unknown to the gateway's code table is
// skipped without failing the rest of the update. Every update that changes
// an observable field appends an immutable history row in the same
// transaction.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	rec := device.NewReconciler(repo, codes)
//	rec.SetLogger(log)
//
//	dev, created, err := rec.ReconcileDevice(ctx, "GW1", "1-1")
//	dev, changed, err := rec.ApplyStatus(ctx, "GW1", "1-1", raw)
package device
