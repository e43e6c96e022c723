package store

import (
	"strings"
	"testing"
)

func TestHistoryImmutabilityMigrationUsesBlockingTriggers(t *testing.T) {
	sqlBytes, err := migrationFiles.ReadFile("migrations/0003_history_immutability_trigger.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"document_status_history_immutable_guard",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_document_status_history_block_update",
		"CREATE TRIGGER trg_document_status_history_block_delete",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail immutability guard, found silent DO INSTEAD NOTHING rule")
	}
}
