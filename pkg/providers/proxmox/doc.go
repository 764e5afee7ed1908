// Package proxmox implements the engine contract against a Proxmox VE
// compute provider. It authenticates with a short-lived ticket plus a CSRF
// prevention token, normalizes provider-native units into the canonical
// units used by blueprint specs, and drives create/update/delete through
// the provider's asynchronous task API.
//
// All outbound provider calls run behind a per-engine circuit breaker.
// Read-only calls additionally retry with exponential backoff; mutating
// calls are not retried because the provider's POSTs are not idempotent.
package proxmox
