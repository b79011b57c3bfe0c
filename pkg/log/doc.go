/*
Package log provides structured logging using zerolog.

The package wraps zerolog behind a global logger initialized once via
log.Init, with child-logger constructors for the identities that recur
across the codebase: WithComponent, WithTenantID, WithCorrelationID,
WithEventID. Production runs JSON output for machine ingestion; local
runs use the console writer.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithTenantID("acme")
	logger.Info().Str("stack_id", "storefront").Msg("tenant declared")

Log level is global; debug logging is a deployment decision, not a
per-call one.
*/
package log
