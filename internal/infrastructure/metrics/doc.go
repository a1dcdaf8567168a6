// Package metrics exposes Prometheus metrics for the HVAC link core.
//
// A Registry owns its own prometheus.Registry (plus the Go and process
// collectors) and implements the small observer interfaces declared by the
// mqtt, ingest, command and gateway packages, so those packages never
// import Prometheus themselves.
//
//	reg := metrics.NewRegistry("hvaclink")
//	sup.SetMetrics(reg)
//	processor.SetMetrics(reg)
//
//	srv := metrics.NewServer("127.0.0.1:9102", reg, sup.HealthCheck)
//	go srv.ListenAndServe()
//	defer srv.Shutdown(ctx)
package metrics
