/*
Package config loads the server configuration and tenant stack manifests.

Both are YAML. The server config tunes the daemon (listen address, data
directory, scheduler cadence, Redis and Raft toggles); tenant manifests
declare one stack each, in the kind/metadata/spec shape deployment
tooling expects:

	apiVersion: stackwarden/v1
	kind: TenantStack
	metadata:
	  tenant: acme
	  stack: storefront
	spec:
	  providers:
	    cms: contentful
	    ecommerce: shopify
	  resources:
	    site:
	      handle: netlify:site:12345
	      probe: http
	      endpoint: https://acme.example.com/healthz
	  integrations:
	    cms-webhook:
	      target: build-hook
	      secret_ref: cms-hook-secret
	  policy:
	    auto_heal: true
	    max_heal_attempts: 3
	    backoff: exponential
	    base_delay: 30s
	    require_approval: [integration]

Manifests are validated at admission: unknown probe types, probes without
endpoints, and malformed policies (non-positive attempt budgets with
auto_heal on, unknown backoff strategies, unknown drift types in
require_approval) are rejected with ErrInvalidPolicy before anything is
stored. Rejecting at the door beats failing mid-reconciliation.
*/
package config
