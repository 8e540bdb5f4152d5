package types

// Technical debt priority values
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Technical debt status values
const (
	DebtStatusOpen     = "open"
	DebtStatusInReview = "in-review"
	DebtStatusClosed   = "closed"
)

// Deprecation progress values
const (
	ProgressNotStarted = "NOT_STARTED"
	ProgressInProgress = "IN_PROGRESS"
	ProgressCompleted  = "COMPLETED"
)

// Valid values for validation
var ValidPriorities = []string{
	PriorityLow, PriorityMedium, PriorityHigh,
}

var ValidDebtStatuses = []string{
	DebtStatusOpen, DebtStatusInReview, DebtStatusClosed,
}

var ValidProgressStatuses = []string{
	ProgressNotStarted, ProgressInProgress, ProgressCompleted,
}

// Helper functions for validation
func IsValidPriority(priority string) bool {
	return contains(ValidPriorities, priority)
}

func IsValidDebtStatus(status string) bool {
	return contains(ValidDebtStatuses, status)
}

func IsValidProgressStatus(status string) bool {
	return contains(ValidProgressStatuses, status)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
