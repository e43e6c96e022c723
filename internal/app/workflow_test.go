package app

import (
	"testing"

	"caseflow/api/internal/store"
)

func TestApprovedIsTerminal(t *testing.T) {
	if targets := documentTransitions[StatusApproved]; len(targets) != 0 {
		t.Fatalf("approved must have no outgoing transitions, got %v", targets)
	}
}

func TestEveryTransitionTargetIsAKnownStatus(t *testing.T) {
	for from, targets := range documentTransitions {
		for _, target := range targets {
			if !isDocumentStatus(target) {
				t.Fatalf("transition %s -> %s targets unknown status", from, target)
			}
			if target == from {
				t.Fatalf("self-transition %s -> %s is pointless", from, target)
			}
		}
	}
}

func TestTransitionSources(t *testing.T) {
	cases := []struct {
		status string
		want   map[string]bool
	}{
		{StatusApproved, map[string]bool{StatusReceived: true}},
		{StatusPending, map[string]bool{StatusMissing: true, StatusRejected: true}},
		{StatusReceived, map[string]bool{StatusMissing: true, StatusPending: true, StatusRejected: true}},
	}
	for _, tc := range cases {
		sources := transitionSources(tc.status)
		if len(sources) != len(tc.want) {
			t.Fatalf("%s: expected %d sources, got %v", tc.status, len(tc.want), sources)
		}
		for _, source := range sources {
			if !tc.want[source] {
				t.Fatalf("%s: unexpected source %s", tc.status, source)
			}
		}
	}
}

func TestCompletionStats(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     CompletionStats
	}{
		{"empty", nil, CompletionStats{Total: 0, Completed: 0, Percentage: 0}},
		{"all missing", []string{StatusMissing, StatusMissing}, CompletionStats{Total: 2, Completed: 0, Percentage: 0}},
		{"received counts as complete", []string{StatusReceived, StatusMissing}, CompletionStats{Total: 2, Completed: 1, Percentage: 50}},
		{"approved counts as complete", []string{StatusApproved}, CompletionStats{Total: 1, Completed: 1, Percentage: 100}},
		{"rounds to nearest", []string{StatusApproved, StatusMissing, StatusMissing}, CompletionStats{Total: 3, Completed: 1, Percentage: 33}},
		{"rounds up", []string{StatusApproved, StatusApproved, StatusMissing}, CompletionStats{Total: 3, Completed: 2, Percentage: 67}},
		{"rejected is incomplete", []string{StatusRejected, StatusApproved}, CompletionStats{Total: 2, Completed: 1, Percentage: 50}},
	}

	for _, tc := range cases {
		documents := make([]store.RequiredDocument, 0, len(tc.statuses))
		for _, status := range tc.statuses {
			documents = append(documents, store.RequiredDocument{Status: status})
		}
		got := completionStats(documents)
		if got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestCompletionStatsFromCountsMatchesDocumentPath(t *testing.T) {
	documents := []store.RequiredDocument{
		{Status: StatusApproved},
		{Status: StatusReceived},
		{Status: StatusPending},
	}
	fromDocs := completionStats(documents)
	fromCounts := completionStatsFromCounts(3, 2)
	if fromDocs != fromCounts {
		t.Fatalf("count-based stats diverge: %+v vs %+v", fromDocs, fromCounts)
	}
}
