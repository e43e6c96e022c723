package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTransitionNotAllowed is returned when a document status change is
// rejected by the workflow table passed into UpdateDocumentStatusWithHistory.
var ErrTransitionNotAllowed = errors.New("status transition not allowed")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Leads

const leadColumns = `
	id, lead_number, name, email, phone, mobile, stage, handler_stage, status,
	category, topic, source, language, balance, onedrive_folder_link,
	COALESCE(facts_json::text, '{}'), handler_name, expert_name, closer_name,
	manager_name, scheduler_name, created_at, updated_at
`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var item Lead
	err := row.Scan(
		&item.ID,
		&item.LeadNumber,
		&item.Name,
		&item.Email,
		&item.Phone,
		&item.Mobile,
		&item.Stage,
		&item.HandlerStage,
		&item.Status,
		&item.Category,
		&item.Topic,
		&item.Source,
		&item.Language,
		&item.Balance,
		&item.OneDriveFolderURL,
		&item.Facts,
		&item.Handler,
		&item.Expert,
		&item.Closer,
		&item.Manager,
		&item.Scheduler,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// InsertLead writes a new lead. The case number is taken from lead_number_seq
// inside the INSERT itself, so concurrent intakes can never mint duplicates.
func (s *PostgresStore) InsertLead(ctx context.Context, item Lead) (Lead, error) {
	facts := item.Facts
	if facts == "" {
		facts = "{}"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO leads (id, lead_number, name, email, phone, mobile, stage, handler_stage, status, category, topic, source, language, facts_json)
		VALUES ($1, 'L' || nextval('lead_number_seq'), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
		RETURNING `+leadColumns, item.ID, item.Name, item.Email, item.Phone, item.Mobile, item.Stage, item.HandlerStage, item.Status, item.Category, item.Topic, item.Source, item.Language, facts)
	created, err := scanLead(row)
	if err != nil {
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=$1`, leadID)
	return scanLead(row)
}

func (s *PostgresStore) GetLeadByNumber(ctx context.Context, leadNumber string) (Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE lead_number=$1`, leadNumber)
	return scanLead(row)
}

func (s *PostgresStore) ListLeads(ctx context.Context, stage string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE ($1='' OR stage=$1)
		ORDER BY created_at DESC
		LIMIT $2
	`, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateLeadStage(ctx context.Context, leadID, stage, handlerStage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET stage=$2, handler_stage=COALESCE(NULLIF($3, ''), handler_stage), updated_at=NOW()
		WHERE id=$1
	`, leadID, stage, handlerStage)
	if err != nil {
		return fmt.Errorf("update lead stage: %w", err)
	}
	return nil
}

func (s *PostgresStore) AssignLeadRoles(ctx context.Context, leadID, handler, expert, closer, manager, scheduler string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET handler_name=$2, expert_name=$3, closer_name=$4, manager_name=$5, scheduler_name=$6, updated_at=NOW()
		WHERE id=$1
	`, leadID, handler, expert, closer, manager, scheduler)
	if err != nil {
		return fmt.Errorf("assign lead roles: %w", err)
	}
	return nil
}

// SetLeadFolderLink memoizes the resolved OneDrive folder URL on the lead.
func (s *PostgresStore) SetLeadFolderLink(ctx context.Context, leadID, link string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads SET onedrive_folder_link=$2, updated_at=NOW() WHERE id=$1
	`, leadID, link)
	if err != nil {
		return fmt.Errorf("set lead folder link: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Contacts

const contactColumns = `
	c.id, c.lead_id, c.name, c.relationship, c.is_main_applicant, c.is_persecuted,
	c.birth_date, c.death_date, c.citizenship, c.id_number, c.passport_number,
	c.email, c.phone, c.notes, c.created_at, c.updated_at,
	COALESCE(d.total, 0), COALESCE(d.completed, 0)
`

const contactDocJoin = `
	LEFT JOIN (
		SELECT contact_id,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status IN ('approved', 'received')) AS completed
		FROM required_documents
		WHERE contact_id IS NOT NULL
		GROUP BY contact_id
	) d ON d.contact_id = c.id
`

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var item Contact
	err := row.Scan(
		&item.ID,
		&item.LeadID,
		&item.Name,
		&item.Relationship,
		&item.IsMainApplicant,
		&item.IsPersecuted,
		&item.BirthDate,
		&item.DeathDate,
		&item.Citizenship,
		&item.IDNumber,
		&item.PassportNumber,
		&item.Email,
		&item.Phone,
		&item.Notes,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DocumentCount,
		&item.CompletedDocuments,
	)
	return item, err
}

// InsertContactWithDocuments creates the contact and its seeded default
// documents in one transaction, so a contact never appears without its
// relationship-appropriate requirements.
func (s *PostgresStore) InsertContactWithDocuments(ctx context.Context, contact Contact, documents []RequiredDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert contact tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contacts (id, lead_id, name, relationship, is_main_applicant, is_persecuted, birth_date, death_date, citizenship, id_number, passport_number, email, phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, contact.ID, contact.LeadID, contact.Name, contact.Relationship, contact.IsMainApplicant, contact.IsPersecuted, contact.BirthDate, contact.DeathDate, contact.Citizenship, contact.IDNumber, contact.PassportNumber, contact.Email, contact.Phone, contact.Notes); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert contact: %w", err)
	}

	for _, doc := range documents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO required_documents (id, lead_id, contact_id, document_name, document_type, status, due_date, notes, is_required, requested_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, doc.ID, doc.LeadID, doc.ContactID, doc.DocumentName, doc.DocumentType, doc.Status, doc.DueDate, doc.Notes, doc.IsRequired, doc.RequestedBy); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("seed contact document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert contact tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, contactID string) (Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		`+contactDocJoin+`
		WHERE c.id=$1
	`, contactID)
	return scanContact(row)
}

func (s *PostgresStore) ListContacts(ctx context.Context, leadID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		`+contactDocJoin+`
		WHERE c.lead_id=$1
		ORDER BY c.is_main_applicant DESC, c.created_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		item, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, contact Contact) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET name=$2, relationship=$3, is_main_applicant=$4, is_persecuted=$5,
			birth_date=$6, death_date=$7, citizenship=$8, id_number=$9,
			passport_number=$10, email=$11, phone=$12, notes=$13, updated_at=NOW()
		WHERE id=$1
	`, contact.ID, contact.Name, contact.Relationship, contact.IsMainApplicant, contact.IsPersecuted, contact.BirthDate, contact.DeathDate, contact.Citizenship, contact.IDNumber, contact.PassportNumber, contact.Email, contact.Phone, contact.Notes)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteContact removes the contact. Its required documents go with it via
// ON DELETE CASCADE; status history rows stay behind as snapshots.
func (s *PostgresStore) DeleteContact(ctx context.Context, contactID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1`, contactID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contact rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Required documents

const documentColumns = `
	id, lead_id, contact_id, document_name, document_type, status, due_date,
	notes, is_required, requested_by, created_at, updated_at
`

func scanRequiredDocument(row interface{ Scan(...any) error }) (RequiredDocument, error) {
	var item RequiredDocument
	err := row.Scan(
		&item.ID,
		&item.LeadID,
		&item.ContactID,
		&item.DocumentName,
		&item.DocumentType,
		&item.Status,
		&item.DueDate,
		&item.Notes,
		&item.IsRequired,
		&item.RequestedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertRequiredDocument(ctx context.Context, doc RequiredDocument) error {
	status := doc.Status
	if status == "" {
		status = "missing"
	}
	docType := doc.DocumentType
	if docType == "" {
		docType = "other"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO required_documents (id, lead_id, contact_id, document_name, document_type, status, due_date, notes, is_required, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, doc.ID, doc.LeadID, doc.ContactID, doc.DocumentName, docType, status, doc.DueDate, doc.Notes, doc.IsRequired, doc.RequestedBy)
	if err != nil {
		return fmt.Errorf("insert required document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequiredDocument(ctx context.Context, documentID string) (RequiredDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM required_documents WHERE id=$1`, documentID)
	return scanRequiredDocument(row)
}

func (s *PostgresStore) ListDocumentsForLead(ctx context.Context, leadID string) ([]RequiredDocument, error) {
	return s.listDocuments(ctx, `lead_id=$1`, leadID)
}

func (s *PostgresStore) ListDocumentsForContact(ctx context.Context, contactID string) ([]RequiredDocument, error) {
	return s.listDocuments(ctx, `contact_id=$1`, contactID)
}

func (s *PostgresStore) listDocuments(ctx context.Context, where string, arg any) ([]RequiredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM required_documents
		WHERE `+where+`
		ORDER BY created_at ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list required documents: %w", err)
	}
	defer rows.Close()

	items := make([]RequiredDocument, 0)
	for rows.Next() {
		item, err := scanRequiredDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan required document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate required documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteRequiredDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM required_documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete required document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete required document rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateDocumentStatusWithHistory performs the status write and the ledger
// append as one transaction: the current row is locked, the transition is
// checked against allowedFrom, the status is written, and the history row is
// inserted. A caller can never observe one side without the other.
func (s *PostgresStore) UpdateDocumentStatusWithHistory(ctx context.Context, documentID, newStatus, changedBy, reason, notes string, allowedFrom []string) (StatusHistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StatusHistoryEntry{}, fmt.Errorf("begin status tx: %w", err)
	}

	var entry StatusHistoryEntry
	err = tx.QueryRowContext(ctx, `
		SELECT rd.id, rd.lead_id, rd.document_name, rd.status, COALESCE(c.name, '')
		FROM required_documents rd
		LEFT JOIN contacts c ON c.id = rd.contact_id
		WHERE rd.id=$1
		FOR UPDATE OF rd
	`, documentID).Scan(&entry.DocumentID, &entry.LeadID, &entry.DocumentName, &entry.OldStatus, &entry.ContactName)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return StatusHistoryEntry{}, sql.ErrNoRows
		}
		return StatusHistoryEntry{}, fmt.Errorf("lock required document: %w", err)
	}

	allowed := false
	for _, from := range allowedFrom {
		if from == entry.OldStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		_ = tx.Rollback()
		return entry, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, entry.OldStatus, newStatus)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE required_documents SET status=$2, updated_at=NOW() WHERE id=$1
	`, documentID, newStatus); err != nil {
		_ = tx.Rollback()
		return StatusHistoryEntry{}, fmt.Errorf("update document status: %w", err)
	}

	entry.NewStatus = newStatus
	entry.ChangedByName = changedBy
	entry.ChangeReason = reason
	entry.Notes = notes
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO document_status_history (document_id, lead_id, document_name, contact_name, old_status, new_status, changed_by_name, change_reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, entry.DocumentID, entry.LeadID, entry.DocumentName, entry.ContactName, entry.OldStatus, entry.NewStatus, entry.ChangedByName, entry.ChangeReason, entry.Notes).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		_ = tx.Rollback()
		return StatusHistoryEntry{}, fmt.Errorf("append status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return StatusHistoryEntry{}, fmt.Errorf("commit status tx: %w", err)
	}
	return entry, nil
}

// ---------------------------------------------------------------------------
// Status history

// ListHistoryForLead returns the whole ledger for a case in one query,
// including rows whose documents have since been deleted.
func (s *PostgresStore) ListHistoryForLead(ctx context.Context, leadID string, limit int) ([]StatusHistoryEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, lead_id, document_name, contact_name, old_status, new_status, changed_by_name, change_reason, notes, created_at
		FROM document_status_history
		WHERE lead_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	items := make([]StatusHistoryEntry, 0)
	for rows.Next() {
		var item StatusHistoryEntry
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.LeadID,
			&item.DocumentName,
			&item.ContactName,
			&item.OldStatus,
			&item.NewStatus,
			&item.ChangedByName,
			&item.ChangeReason,
			&item.Notes,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Document templates

func (s *PostgresStore) ListTemplates(ctx context.Context, activeOnly bool) ([]DocumentTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, typical_due_days, instructions, is_active
		FROM document_templates
		WHERE (NOT $1::boolean OR is_active)
		ORDER BY category ASC, name ASC
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentTemplate, 0)
	for rows.Next() {
		var item DocumentTemplate
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.TypicalDueDays, &item.Instructions, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (DocumentTemplate, error) {
	var item DocumentTemplate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, typical_due_days, instructions, is_active
		FROM document_templates
		WHERE id=$1
	`, templateID).Scan(&item.ID, &item.Name, &item.Category, &item.TypicalDueDays, &item.Instructions, &item.IsActive)
	if err != nil {
		return DocumentTemplate{}, err
	}
	return item, nil
}

// ---------------------------------------------------------------------------
// Handler tasks

const taskColumns = `
	id, lead_id, title, description, priority, status, assigned_to, created_by,
	due_date, completed_at, estimated_hours, actual_hours,
	COALESCE(tags_json::text, '[]'), created_at, updated_at
`

func scanHandlerTask(row interface{ Scan(...any) error }) (HandlerTask, error) {
	var item HandlerTask
	var tagsRaw string
	err := row.Scan(
		&item.ID,
		&item.LeadID,
		&item.Title,
		&item.Description,
		&item.Priority,
		&item.Status,
		&item.AssignedTo,
		&item.CreatedBy,
		&item.DueDate,
		&item.CompletedAt,
		&item.EstimatedHours,
		&item.ActualHours,
		&tagsRaw,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return HandlerTask{}, err
	}
	_ = json.Unmarshal([]byte(tagsRaw), &item.Tags)
	return item, nil
}

func (s *PostgresStore) InsertHandlerTask(ctx context.Context, task HandlerTask) error {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal task tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO handler_tasks (id, lead_id, title, description, priority, status, assigned_to, created_by, due_date, estimated_hours, tags_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
	`, task.ID, task.LeadID, task.Title, task.Description, task.Priority, task.Status, task.AssignedTo, task.CreatedBy, task.DueDate, task.EstimatedHours, string(encodedTags))
	if err != nil {
		return fmt.Errorf("insert handler task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHandlerTask(ctx context.Context, taskID string) (HandlerTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM handler_tasks WHERE id=$1`, taskID)
	return scanHandlerTask(row)
}

func (s *PostgresStore) ListTasksForLead(ctx context.Context, leadID string) ([]HandlerTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM handler_tasks
		WHERE lead_id=$1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list handler tasks: %w", err)
	}
	defer rows.Close()

	items := make([]HandlerTask, 0)
	for rows.Next() {
		item, err := scanHandlerTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan handler task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handler tasks: %w", err)
	}
	return items, nil
}

// UpdateHandlerTask writes mutable task fields. completed_at is stamped by the
// caller when the status moves to completed and cleared when it leaves it.
func (s *PostgresStore) UpdateHandlerTask(ctx context.Context, task HandlerTask) error {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal task tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE handler_tasks
		SET title=$2, description=$3, priority=$4, status=$5, assigned_to=$6,
			due_date=$7, completed_at=$8, estimated_hours=$9, actual_hours=$10,
			tags_json=$11::jsonb, updated_at=NOW()
		WHERE id=$1
	`, task.ID, task.Title, task.Description, task.Priority, task.Status, task.AssignedTo, task.DueDate, task.CompletedAt, task.EstimatedHours, task.ActualHours, string(encodedTags))
	if err != nil {
		return fmt.Errorf("update handler task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update handler task rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteHandlerTask(ctx context.Context, taskID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM handler_tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete handler task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete handler task rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Push subscriptions

func (s *PostgresStore) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE SET user_id=EXCLUDED.user_id, p256dh=EXCLUDED.p256dh, auth=EXCLUDED.auth
	`, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id=$1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	items := make([]PushSubscription, 0)
	for rows.Next() {
		var item PushSubscription
		if err := rows.Scan(&item.ID, &item.UserID, &item.Endpoint, &item.P256dh, &item.Auth, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push subscriptions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint=$1`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// SummaryCounts backs the dashboard header: total cases, cases in handler
// work, and documents still outstanding across all cases.
func (s *PostgresStore) SummaryCounts(ctx context.Context) (allLeads int, inHandling int, outstandingDocs int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&allLeads); err != nil {
		err = fmt.Errorf("count all leads: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE handler_stage <> ''`).Scan(&inHandling); err != nil {
		err = fmt.Errorf("count handled leads: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM required_documents WHERE status NOT IN ('approved', 'received')`).Scan(&outstandingDocs); err != nil {
		err = fmt.Errorf("count outstanding documents: %w", err)
		return
	}
	return
}
