package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across leads, contacts, and
// required_documents using plainto_tsquery and ts_rank, with ts_headline for
// snippets. The 'simple' configuration matches the generated fts columns;
// case names are mostly proper nouns, so stemming would hurt more than help.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Leads sub-query
	if q.FilterType == "" || q.FilterType == ResultLead {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'lead'::text AS type, l.id, l.name AS title,
				ts_headline('simple', coalesce(l.topic, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				l.id AS lead_id, l.lead_number,
				ts_rank(l.fts, %s) AS rank
			FROM leads l
			WHERE l.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	// Contacts sub-query
	if q.FilterType == "" || q.FilterType == ResultContact {
		contactWhere := "c.fts @@ " + tsQuery
		if q.FilterLeadID != "" {
			contactWhere += fmt.Sprintf(" AND c.lead_id = $%d", argN)
			args = append(args, q.FilterLeadID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'contact'::text AS type, c.id, c.name AS title,
				c.relationship AS snippet,
				c.lead_id, l.lead_number,
				ts_rank(c.fts, %s) AS rank
			FROM contacts c
			JOIN leads l ON l.id = c.lead_id
			WHERE %s`, tsQuery, contactWhere))
	}

	// Required documents sub-query
	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "rd.fts @@ " + tsQuery
		if q.FilterLeadID != "" {
			docWhere += fmt.Sprintf(" AND rd.lead_id = $%d", argN)
			args = append(args, q.FilterLeadID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, rd.id, rd.document_name AS title,
				rd.status AS snippet,
				rd.lead_id, l.lead_number,
				ts_rank(rd.fts, %s) AS rank
			FROM required_documents rd
			JOIN leads l ON l.id = rd.lead_id
			WHERE %s`, tsQuery, docWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, lead_id, lead_number
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.LeadID, &r.LeadNumber); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]LeadRecord, []ContactRecord, []DocumentRecord, error) {
	leadRows, err := p.db.QueryContext(ctx, `
		SELECT id, lead_number, name, email, topic, stage
		FROM leads
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load leads: %w", err)
	}
	defer leadRows.Close()

	leads := make([]LeadRecord, 0)
	for leadRows.Next() {
		var l LeadRecord
		if err := leadRows.Scan(&l.ID, &l.LeadNumber, &l.Name, &l.Email, &l.Topic, &l.Stage); err != nil {
			return nil, nil, nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := leadRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate leads: %w", err)
	}

	contactRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.lead_id, l.lead_number, c.name, c.relationship
		FROM contacts c
		JOIN leads l ON l.id = c.lead_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load contacts: %w", err)
	}
	defer contactRows.Close()

	contacts := make([]ContactRecord, 0)
	for contactRows.Next() {
		var c ContactRecord
		if err := contactRows.Scan(&c.ID, &c.LeadID, &c.LeadNumber, &c.Name, &c.Relationship); err != nil {
			return nil, nil, nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := contactRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate contacts: %w", err)
	}

	docRows, err := p.db.QueryContext(ctx, `
		SELECT rd.id, rd.lead_id, l.lead_number, rd.document_name, rd.document_type, rd.status
		FROM required_documents rd
		JOIN leads l ON l.id = rd.lead_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.LeadID, &d.LeadNumber, &d.DocumentName, &d.DocumentType, &d.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	return leads, contacts, documents, nil
}
