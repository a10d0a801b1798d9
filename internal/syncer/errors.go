package syncer

import "fmt"

// ConfigError means required credentials or keys are missing. No run is
// attempted.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Missing)
}

// PersistenceError means the gestionale ingestion endpoint rejected a
// submission or was unreachable. Fatal to that submission only; in-memory
// results are still reported.
type PersistenceError struct {
	Endpoint string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("submission to %s failed: %v", e.Endpoint, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// EnvironmentError means the host cannot run a browser engine. The run is
// short-circuited with a delegate-to-external-runner advisory, not treated
// as a hard failure.
type EnvironmentError struct {
	Reason string
}

func (e *EnvironmentError) Error() string { return e.Reason }
