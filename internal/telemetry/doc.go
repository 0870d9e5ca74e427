// Package telemetry exports dispatcher metrics to Prometheus and serves
// them over HTTP.
//
//	c := telemetry.NewCollector(d.Metrics(), telemetry.WithNamespace("quickflux"))
//	srv := telemetry.NewServer(":9090", c, logger)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// Metrics exported:
//   - quickflux_cycles_total
//   - quickflux_queued_total
//   - quickflux_listener_calls_total
//   - quickflux_listener_errors_total
//   - quickflux_listener_panics_total
//   - quickflux_cycle_warnings_total
//   - quickflux_max_queue_depth
//   - quickflux_action_cycles_total{type}
//   - quickflux_action_errors_total{type}
//   - quickflux_action_duration_seconds_total{type}
//   - quickflux_scripts_loaded
//   - quickflux_script_reloads_total{result}
package telemetry
