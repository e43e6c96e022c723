package app

import (
	"math"

	"caseflow/api/internal/store"
)

// Document statuses form a closed set. The transition table below is the
// single authority on which moves are legal; approved is terminal.
const (
	StatusMissing  = "missing"
	StatusPending  = "pending"
	StatusReceived = "received"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var documentTransitions = map[string][]string{
	StatusMissing:  {StatusPending, StatusReceived},
	StatusPending:  {StatusReceived, StatusRejected, StatusMissing},
	StatusReceived: {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {StatusPending, StatusReceived},
}

func isDocumentStatus(status string) bool {
	_, ok := documentTransitions[status]
	return ok
}

// transitionSources returns every status from which newStatus may be entered.
func transitionSources(newStatus string) []string {
	sources := make([]string, 0, len(documentTransitions))
	for from, targets := range documentTransitions {
		for _, target := range targets {
			if target == newStatus {
				sources = append(sources, from)
				break
			}
		}
	}
	return sources
}

var allowedRelationships = map[string]struct{}{
	"persecuted_person": {},
	"spouse":            {},
	"child":             {},
	"parent":            {},
	"sibling":           {},
	"grandparent":       {},
	"grandchild":        {},
	"nephew":            {},
	"niece":             {},
	"cousin":            {},
	"uncle":             {},
	"aunt":              {},
	"in_law":            {},
	"other":             {},
}

var allowedTaskPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"urgent": {},
}

var allowedTaskStatuses = map[string]struct{}{
	"pending":     {},
	"in_progress": {},
	"completed":   {},
	"cancelled":   {},
}

// CompletionStats is the single source of truth for "how complete is this
// contact's documentation". Every presentation site goes through it.
type CompletionStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

func completionStats(documents []store.RequiredDocument) CompletionStats {
	stats := CompletionStats{Total: len(documents)}
	for _, doc := range documents {
		if doc.Status == StatusApproved || doc.Status == StatusReceived {
			stats.Completed++
		}
	}
	if stats.Total > 0 {
		stats.Percentage = int(math.Round(100 * float64(stats.Completed) / float64(stats.Total)))
	}
	return stats
}

// completionStatsFromCounts covers read paths where the store already
// aggregated the counts.
func completionStatsFromCounts(total, completed int) CompletionStats {
	stats := CompletionStats{Total: total, Completed: completed}
	if total > 0 {
		stats.Percentage = int(math.Round(100 * float64(completed) / float64(total)))
	}
	return stats
}
