package platform

import "errors"

// Error taxonomy for platform interactions. Callers classify failures with
// errors.Is; the concrete cause stays wrapped underneath.
var (
	// ErrAuth indicates the platform rejected the credential or webhook
	// secret. Fatal to the current ingestion session; requires
	// reconfiguration and is never retried automatically.
	ErrAuth = errors.New("platform: authentication rejected")

	// ErrDelivery indicates an outbound send was rejected by the platform.
	// Reported to the caller; not retried by this package.
	ErrDelivery = errors.New("platform: delivery rejected")

	// ErrNetwork indicates a transient fetch/poll failure. The polling
	// supervisor retries these per its state machine.
	ErrNetwork = errors.New("platform: network failure")
)
