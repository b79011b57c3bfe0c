/*
Package api exposes the reconciliation core over HTTP.

Three audiences share the surface. Provider adapters push inbound events.
Operators inspect tenants and drift, acknowledge escalations, and run
on-demand passes. Deployment tooling declares and archives tenant stacks
with the same YAML manifests the CLI applies.

# Endpoints

	POST   /v1/events                                   ingest a provider event
	POST   /v1/tenants                                  declare a tenant stack (YAML manifest body)
	GET    /v1/tenants                                  list tenant stacks
	GET    /v1/tenants/{tenant}/stacks/{stack}          full tenant state
	GET    /v1/tenants/{tenant}/stacks/{stack}/drift    open drift with heal eligibility
	POST   /v1/tenants/{tenant}/stacks/{stack}/ack      acknowledge error state
	POST   /v1/tenants/{tenant}/stacks/{stack}/reconcile  on-demand pass
	DELETE /v1/tenants/{tenant}/stacks/{stack}          archive (offboard)
	GET    /healthz                                     liveness
	GET    /metrics                                     Prometheus scrape

The drift endpoint evaluates each open item against the tenant's policy
at request time, so auto_heal_eligible reflects the current attempt
budget and backoff clock, not the state at detection.

Event ingestion is idempotent end to end; replaying a delivery returns
202 again without side effects. Handlers are thin: validation and JSON
shaping here, semantics in the packages underneath.
*/
package api
