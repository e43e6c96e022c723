package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"caseflow/api/internal/util"
)

// getTestDatabaseURL returns the database URL for integration tests.
// It checks TEST_DATABASE_URL first, then the standard Postgres environment
// variables used in CI.
func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := getenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "caseflow")
	pass := getenv("POSTGRES_PASSWORD", "caseflow")
	dbname := getenv("POSTGRES_DB", "caseflow_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// openTestStore connects to the test database, applies migrations, and wipes
// domain tables so each test starts from a clean slate.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	// TRUNCATE bypasses the row-level immutability triggers, which is the only
	// sanctioned way to clear the ledger between tests.
	for _, stmt := range []string{
		`TRUNCATE leads CASCADE`,
		`TRUNCATE document_status_history`,
		`ALTER SEQUENCE lead_number_seq RESTART WITH 1`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("reset test data (%s): %v", stmt, err)
		}
	}

	return NewPostgresStore(db)
}

func insertTestLead(t *testing.T, s *PostgresStore) Lead {
	t.Helper()
	lead, err := s.InsertLead(context.Background(), Lead{
		ID:     util.NewID("lead"),
		Name:   "Ruth Stern",
		Email:  "ruth@example.com",
		Stage:  "created",
		Status: "new",
		Source: "webhook",
	})
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	return lead
}

func insertTestContactWithDocument(t *testing.T, s *PostgresStore, leadID string) (Contact, RequiredDocument) {
	t.Helper()
	contact := Contact{
		ID:              util.NewID("contact"),
		LeadID:          leadID,
		Name:            "David Stern",
		Relationship:    RelationshipPersecuted,
		IsMainApplicant: true,
		IsPersecuted:    true,
	}
	contactID := contact.ID
	doc := RequiredDocument{
		ID:           util.NewID("doc"),
		LeadID:       leadID,
		ContactID:    &contactID,
		DocumentName: "Passport Copy",
		DocumentType: "identity",
		Status:       "missing",
		IsRequired:   true,
		RequestedBy:  "system",
	}
	if err := s.InsertContactWithDocuments(context.Background(), contact, []RequiredDocument{doc}); err != nil {
		t.Fatalf("insert contact with documents: %v", err)
	}
	return contact, doc
}

func TestLeadNumbersAreSequenceBacked(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := insertTestLead(t, s)
	if first.LeadNumber != "L1" {
		t.Fatalf("first lead number must be L1, got %s", first.LeadNumber)
	}
	second := insertTestLead(t, s)
	if second.LeadNumber != "L2" {
		t.Fatalf("second lead number must be L2, got %s", second.LeadNumber)
	}

	// Numbering continues from wherever the sequence stands, never from a
	// client-side max+1.
	if _, err := s.DB().ExecContext(ctx, `SELECT setval('lead_number_seq', 42, false)`); err != nil {
		t.Fatalf("advance sequence: %v", err)
	}
	if lead := insertTestLead(t, s); lead.LeadNumber != "L42" {
		t.Fatalf("expected L42 after setval, got %s", lead.LeadNumber)
	}
	if lead := insertTestLead(t, s); lead.LeadNumber != "L43" {
		t.Fatalf("expected L43 next, got %s", lead.LeadNumber)
	}
}

func TestUpdateDocumentStatusWithHistoryAppendsAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lead := insertTestLead(t, s)
	_, doc := insertTestContactWithDocument(t, s, lead.ID)

	entry, err := s.UpdateDocumentStatusWithHistory(ctx, doc.ID, "received", "Anna Handler", "courier delivery", "", []string{"missing", "pending"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if entry.OldStatus != "missing" || entry.NewStatus != "received" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ContactName != "David Stern" {
		t.Fatalf("entry must snapshot the contact name, got %q", entry.ContactName)
	}
	if entry.ID == 0 || entry.CreatedAt.IsZero() {
		t.Fatalf("entry missing database-assigned fields: %+v", entry)
	}

	updated, err := s.GetRequiredDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	if updated.Status != "received" {
		t.Fatalf("status not written, got %s", updated.Status)
	}

	history, err := s.ListHistoryForLead(ctx, lead.ID, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(history))
	}
}

func TestRejectedTransitionWritesNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lead := insertTestLead(t, s)
	_, doc := insertTestContactWithDocument(t, s, lead.ID)

	// "missing" is not an allowed source here, so the transaction must roll
	// back: no status change, no ledger row.
	entry, err := s.UpdateDocumentStatusWithHistory(ctx, doc.ID, "approved", "Anna Handler", "", "", []string{"received"})
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
	if entry.OldStatus != "missing" {
		t.Fatalf("rejection must report the current status, got %q", entry.OldStatus)
	}

	unchanged, err := s.GetRequiredDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	if unchanged.Status != "missing" {
		t.Fatalf("rejected transition must not change status, got %s", unchanged.Status)
	}

	history, err := s.ListHistoryForLead(ctx, lead.ID, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("rejected transition must not append history, got %d rows", len(history))
	}
}

func TestDeleteContactCascadesDocumentsButKeepsHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lead := insertTestLead(t, s)
	contact, doc := insertTestContactWithDocument(t, s, lead.ID)

	if _, err := s.UpdateDocumentStatusWithHistory(ctx, doc.ID, "received", "Anna Handler", "", "", []string{"missing"}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if err := s.DeleteContact(ctx, contact.ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}

	if _, err := s.GetRequiredDocument(ctx, doc.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("document must be removed with its contact, got %v", err)
	}

	history, err := s.ListHistoryForLead(ctx, lead.ID, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("ledger must survive the delete, got %d rows", len(history))
	}
	if history[0].DocumentName != "Passport Copy" || history[0].ContactName != "David Stern" {
		t.Fatalf("ledger row must keep its snapshots: %+v", history[0])
	}
}

func TestStatusHistoryBlocksUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lead := insertTestLead(t, s)
	_, doc := insertTestContactWithDocument(t, s, lead.ID)
	entry, err := s.UpdateDocumentStatusWithHistory(ctx, doc.ID, "received", "Anna Handler", "", "", []string{"missing"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}

	_, err = s.DB().ExecContext(ctx, `UPDATE document_status_history SET new_status='approved' WHERE id=$1`, entry.ID)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "document_status_history is immutable; UPDATE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}
}

func TestStatusHistoryBlocksDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lead := insertTestLead(t, s)
	_, doc := insertTestContactWithDocument(t, s, lead.ID)
	entry, err := s.UpdateDocumentStatusWithHistory(ctx, doc.ID, "received", "Anna Handler", "", "", []string{"missing"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}

	_, err = s.DB().ExecContext(ctx, `DELETE FROM document_status_history WHERE id=$1`, entry.ID)
	if err == nil {
		t.Fatal("expected DELETE to be blocked, but it succeeded")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "document_status_history is immutable; DELETE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}
}
