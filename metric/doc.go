// Package metric provides Prometheus-based metrics collection and an
// HTTP server for monitoring the LwM2M tooling.
//
// # Overview
//
// A MetricsRegistry wraps a private Prometheus registry. Core metrics
// (service status, message counts, NATS health) are registered
// automatically; components register their own collectors under a
// service name so duplicates surface at registration time rather than
// at scrape time.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//
//	sent := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: "emqxlwm2m",
//	    Subsystem: "engine",
//	    Name:      "requests_sent_total",
//	    Help:      "Commands published to devices",
//	})
//	err := registry.RegisterCounter("engine", "requests_sent_total", sent)
//
// Expose everything over HTTP:
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server: %v", err)
//	    }
//	}()
//
// # Conventions
//
// All collectors use the "emqxlwm2m" namespace with a per-component
// subsystem (engine, gateway, kv). Unregistering a service removes its
// collectors, which the tests rely on for isolation.
package metric
