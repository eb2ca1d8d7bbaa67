package core

import "context"

// Notifier surfaces user-visible failures, e.g. to a chat channel.
type Notifier interface {
	ReportFailure(ctx context.Context, message string, fields map[string]string) error
}

// AvailabilityQueue receives robots whose mission queue must be re-evaluated.
type AvailabilityQueue interface {
	Enqueue(robotID string)
}
