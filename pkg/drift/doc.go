/*
Package drift compares a declared composition against synthesized
observed state and classifies every deviation.

Compare is a pure function: no I/O, no clock reads beyond the timestamp
it is handed, same inputs produce the same report. All the messy work of
deciding what "observed" means happens upstream in the reconciler.

# Classification

	provider drift      declared slot missing or filled by the wrong
	                    provider               -> critical
	resource drift      declared resource probing unhealthy
	                                           -> high
	integration drift   integration config differing from the declared
	                    structure              -> medium

Severity ranks critical > high > medium > low. Report items are sorted by
severity descending, then by component name, so two passes over the same
state produce byte-identical reports and the reconciler always heals the
most severe item first.

# Silence Rules

Not every absence is drift. A resource declared without a probe is
skipped; there is nothing to observe. An integration whose config never
appeared in the event window is skipped too: no evidence is not
counter-evidence, and flagging it would page operators every time a
provider goes quiet for a few minutes. A declared provider slot with no
observation, by contrast, IS drift; the slot is the tenant's contract.

Each drift item carries a fingerprint, "type:component", which is the
identity used for heal attempt accounting across passes.
*/
package drift
