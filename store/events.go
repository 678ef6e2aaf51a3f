package store

import "github.com/tailored-agentic-units/tierstore/observability"

// Store event types emitted on the observer channel.
const (
	// Probing
	EventProbeDone observability.EventType = "store.probe.done"
	EventReprobe   observability.EventType = "store.reprobe"

	// Degradation
	EventTierDemoted     observability.EventType = "store.tier.demoted"
	EventWriteDegraded   observability.EventType = "store.write.degraded"
	EventFailureRecorded observability.EventType = "store.failure.recorded"

	// Whole-store operations
	EventCleared    observability.EventType = "store.cleared"
	EventExportDone observability.EventType = "store.export.done"

	// Import progress
	EventImportStart     observability.EventType = "store.import.start"
	EventImportDone      observability.EventType = "store.import.done"
	EventImportCancelled observability.EventType = "store.import.cancelled"
)
