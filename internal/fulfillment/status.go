package fulfillment

import "fmt"

// Status is the purchase lifecycle state. Values are persisted verbatim.
type Status string

// Purchase statuses.
const (
	StatusProcessing       Status = "processing"
	StatusPendingScrape    Status = "pending_scrape"
	StatusScrapeComplete   Status = "scrape_complete"
	StatusCompleted        Status = "completed"
	StatusScrapeFailed     Status = "scrape_failed"
	StatusGenerationFailed Status = "generation_failed"
	StatusFailed           Status = "failed"
)

// Event drives a status transition.
type Event string

// Pipeline events.
const (
	EventScrapeStarted   Event = "scrape_started"
	EventScrapeSucceeded Event = "scrape_succeeded"
	EventScrapeFailed    Event = "scrape_failed"
	EventReportsStored   Event = "reports_stored"
	EventNoReports       Event = "no_reports"
	EventUnexpectedError Event = "unexpected_error"
)

var transitions = map[Status]map[Event]Status{
	StatusProcessing: {
		EventScrapeStarted: StatusPendingScrape,
	},
	StatusPendingScrape: {
		EventScrapeSucceeded: StatusScrapeComplete,
		EventScrapeFailed:    StatusScrapeFailed,
	},
	StatusScrapeComplete: {
		EventReportsStored: StatusCompleted,
		EventNoReports:     StatusGenerationFailed,
	},
}

// Transition returns the status reached from current on event. Terminal states
// accept no events; any non-terminal state moves to failed on EventUnexpectedError.
func Transition(current Status, event Event) (Status, error) {
	if current.Terminal() {
		return current, fmt.Errorf("%w: %s is terminal (event %s)", ErrInvalidTransition, current, event)
	}
	if event == EventUnexpectedError {
		return StatusFailed, nil
	}
	next, ok := transitions[current][event]
	if !ok {
		return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, current)
	}
	return next, nil
}

// Terminal reports whether no further automatic transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusScrapeFailed, StatusGenerationFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusPendingScrape, StatusScrapeComplete,
		StatusCompleted, StatusScrapeFailed, StatusGenerationFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// Explanation is the customer-facing text for a status. The three failure
// states map to distinct explanations.
func (s Status) Explanation() string {
	switch s {
	case StatusProcessing:
		return "Your order has been received and is being prepared."
	case StatusPendingScrape:
		return "We are reading your website."
	case StatusScrapeComplete:
		return "Your website has been analyzed. Reports are being generated."
	case StatusCompleted:
		return "Your reports are ready to download."
	case StatusScrapeFailed:
		return "Website analysis failed: we could not read content from the URL you provided. " +
			"Please check that the site is publicly reachable and contact support."
	case StatusGenerationFailed:
		return "Report generation failed: your website was read successfully but we could not " +
			"produce your reports. Our team has been notified."
	case StatusFailed:
		return "Unexpected order failure: something went wrong while processing your order. " +
			"Please contact support with your order reference."
	default:
		return "Unknown order status."
	}
}
