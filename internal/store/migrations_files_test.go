package store

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	pattern := regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.up\.sql$`)
	versions := make([]int, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			t.Fatalf("unexpected directory %s in migrations", entry.Name())
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("migration %s does not follow NNNN_name.up.sql", name)
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			t.Fatalf("migration %s version: %v", name, err)
		}
		versions = append(versions, version)

		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			t.Fatalf("migration %s is empty", name)
		}
	}

	sort.Ints(versions)
	for i, version := range versions {
		if version != i+1 {
			t.Fatalf("migration versions must be sequential from 0001, got %v", versions)
		}
	}
}

func TestInitialMigrationCreatesCoreTables(t *testing.T) {
	contents, err := migrationFiles.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	schema := string(contents)

	for _, table := range []string{
		"leads",
		"contacts",
		"required_documents",
		"document_status_history",
		"document_templates",
		"handler_tasks",
		"push_subscriptions",
	} {
		if !strings.Contains(schema, "CREATE TABLE "+table) {
			t.Errorf("initial migration missing table %s", table)
		}
	}
	if !strings.Contains(schema, "lead_number_seq") {
		t.Error("initial migration must define the lead number sequence")
	}
}
