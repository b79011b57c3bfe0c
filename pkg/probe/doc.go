/*
Package probe provides health checking for declared tenant resources.

A resource declares how it can be observed: an HTTP endpoint expected to
answer 2xx, a TCP address expected to accept a connection, or nothing at
all. LiveProber dispatches on the declared probe type; resources declared
with no probe are reported healthy, since there is nothing to contradict
the declaration.

Probe failures feed the drift detector as high-severity resource drift.
Checks are bounded by short timeouts so a hung endpoint cannot stall a
reconciliation pass.
*/
package probe
