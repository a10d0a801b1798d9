package portal

import "fmt"

// AutomationError is fatal to the current run: a required selector, a
// navigation or the browser launch failed. Diagnostic carries whatever page
// state could be captured (URL, title, control inventory) for operability.
type AutomationError struct {
	Step       string
	Diagnostic string
	Err        error
}

func (e *AutomationError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Step, e.Err, e.Diagnostic)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// ExtractionError marks a single metric or table row that failed to parse.
// It is recovered where it happens and never aborts the rest of a day.
type ExtractionError struct {
	What string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction of %s failed: %v", e.What, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
