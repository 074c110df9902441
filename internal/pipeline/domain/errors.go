package domain

import "errors"

// Pipeline error taxonomy. Callers match with errors.Is.
var (
	// ErrAuth: credential refresh rejected. Fatal for the connection;
	// the connection is deactivated and not retried until re-authorized.
	ErrAuth = errors.New("mail connection authorization failed")

	// ErrSyncExpired: the incremental watermark is no longer recognized
	// by the provider. Recoverable via full-sync fallback.
	ErrSyncExpired = errors.New("sync watermark expired")

	// ErrSyncTransport: any other sync failure. Fatal for the current
	// run; the watermark is left unadvanced and the next scheduled
	// invocation retries.
	ErrSyncTransport = errors.New("sync transport failure")

	// ErrDecode: malformed message. The message is skipped and logged;
	// the rest of the batch proceeds.
	ErrDecode = errors.New("message decode failed")

	// ErrAgentLoopExceeded: round-trip cap or timeout hit. The message
	// is left unprocessed and retried next run.
	ErrAgentLoopExceeded = errors.New("agent round-trip cap exceeded")

	// ErrAgentContract: terminal done call missing required fields.
	// Treated identically to ErrAgentLoopExceeded.
	ErrAgentContract = errors.New("agent terminal call violated contract")

	// ErrActionPersist: database write failed while applying a decision.
	ErrActionPersist = errors.New("action persistence failed")
)
