package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"caseflow/api/internal/config"
	"caseflow/api/internal/docpolicy"
	"caseflow/api/internal/drive"
	"caseflow/api/internal/push"
	"caseflow/api/internal/search"
	"caseflow/api/internal/store"
	"caseflow/api/internal/util"
)

type IntakeInput struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	Mobile   string          `json:"mobile"`
	Topic    string          `json:"topic"`
	Category string          `json:"category"`
	Source   string          `json:"source"`
	Language string          `json:"language"`
	Facts    json.RawMessage `json:"facts"`
}

type ContactInput struct {
	Name            string     `json:"name"`
	Relationship    string     `json:"relationship"`
	IsMainApplicant bool       `json:"isMainApplicant"`
	IsPersecuted    bool       `json:"isPersecuted"`
	BirthDate       *time.Time `json:"birthDate"`
	DeathDate       *time.Time `json:"deathDate"`
	Citizenship     string     `json:"citizenship"`
	IDNumber        string     `json:"idNumber"`
	PassportNumber  string     `json:"passportNumber"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Notes           string     `json:"notes"`
}

type DocumentInput struct {
	LeadID       string     `json:"leadId"`
	ContactID    *string    `json:"contactId"`
	DocumentName string     `json:"documentName"`
	DocumentType string     `json:"documentType"`
	Status       string     `json:"status"`
	DueDate      *time.Time `json:"dueDate"`
	Notes        string     `json:"notes"`
	IsRequired   bool       `json:"isRequired"`
	RequestedBy  string     `json:"requestedBy"`
}

type StatusUpdateInput struct {
	NewStatus string `json:"newStatus"`
	ChangedBy string `json:"changedBy"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

type TaskInput struct {
	LeadID         string     `json:"leadId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	AssignedTo     string     `json:"assignedTo"`
	CreatedBy      string     `json:"createdBy"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	Tags           []string   `json:"tags"`
}

type RoleAssignmentInput struct {
	Handler   string `json:"handler"`
	Expert    string `json:"expert"`
	Closer    string `json:"closer"`
	Manager   string `json:"manager"`
	Scheduler string `json:"scheduler"`
}

type dataStore interface {
	InsertLead(context.Context, store.Lead) (store.Lead, error)
	GetLead(context.Context, string) (store.Lead, error)
	GetLeadByNumber(context.Context, string) (store.Lead, error)
	ListLeads(context.Context, string, int) ([]store.Lead, error)
	UpdateLeadStage(context.Context, string, string, string) error
	AssignLeadRoles(context.Context, string, string, string, string, string, string) error
	SetLeadFolderLink(context.Context, string, string) error
	InsertContactWithDocuments(context.Context, store.Contact, []store.RequiredDocument) error
	GetContact(context.Context, string) (store.Contact, error)
	ListContacts(context.Context, string) ([]store.Contact, error)
	UpdateContact(context.Context, store.Contact) error
	DeleteContact(context.Context, string) error
	InsertRequiredDocument(context.Context, store.RequiredDocument) error
	GetRequiredDocument(context.Context, string) (store.RequiredDocument, error)
	ListDocumentsForLead(context.Context, string) ([]store.RequiredDocument, error)
	ListDocumentsForContact(context.Context, string) ([]store.RequiredDocument, error)
	DeleteRequiredDocument(context.Context, string) error
	UpdateDocumentStatusWithHistory(context.Context, string, string, string, string, string, []string) (store.StatusHistoryEntry, error)
	ListHistoryForLead(context.Context, string, int) ([]store.StatusHistoryEntry, error)
	ListTemplates(context.Context, bool) ([]store.DocumentTemplate, error)
	GetTemplate(context.Context, string) (store.DocumentTemplate, error)
	InsertHandlerTask(context.Context, store.HandlerTask) error
	GetHandlerTask(context.Context, string) (store.HandlerTask, error)
	ListTasksForLead(context.Context, string) ([]store.HandlerTask, error)
	UpdateHandlerTask(context.Context, store.HandlerTask) error
	DeleteHandlerTask(context.Context, string) error
	SavePushSubscription(context.Context, store.PushSubscription) error
	ListPushSubscriptions(context.Context, string) ([]store.PushSubscription, error)
	DeletePushSubscription(context.Context, string) error
	SummaryCounts(context.Context) (int, int, int, error)
	Ping(ctx context.Context) error
}

type driveService interface {
	EnsureLeadFolder(ctx context.Context, caseNumber string) (drive.Item, error)
	UploadFile(ctx context.Context, caseNumber, filename string, content []byte) (drive.Item, error)
	UploadEmailAttachment(ctx context.Context, filename string, content []byte) (drive.Item, error)
	CreateShareLink(ctx context.Context, itemID string) (string, error)
	ListFiles(ctx context.Context, folderID string) ([]drive.Item, error)
}

type pushService interface {
	Enabled() bool
	Broadcast(ctx context.Context, notification push.Notification, subs []push.Subscription) []push.Result
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexLead(l search.LeadRecord)
	IndexContact(c search.ContactRecord)
	IndexDocument(d search.DocumentRecord)
	DeleteContact(id string)
	DeleteDocument(id string)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	drive  driveService
	push   pushService
	search searchService
	policy *docpolicy.Policy
	now    func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, driveClient *drive.Client, pushSvc *push.Service, searchSvc *search.Service, policy *docpolicy.Policy) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		policy: policy,
		now:    time.Now,
	}
	if driveClient != nil {
		s.drive = driveClient
	}
	if pushSvc != nil {
		s.push = pushSvc
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Lead intake and reads

// IntakeLead converts an inbound webhook form into a new case. The case
// number comes from a database sequence inside the insert, so concurrent
// deliveries cannot produce duplicates.
func (s *Service) IntakeLead(ctx context.Context, input IntakeInput) (store.Lead, error) {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(input.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(input.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return store.Lead{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": missing})
	}

	topic := input.Topic
	if topic == "" {
		topic = input.Category
	}
	facts := "{}"
	if len(input.Facts) > 0 {
		facts = string(input.Facts)
	}

	lead := store.Lead{
		ID:           util.NewID("lead"),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.TrimSpace(input.Email),
		Phone:        input.Phone,
		Mobile:       input.Mobile,
		Stage:        "created",
		HandlerStage: "",
		Status:       "new",
		Category:     input.Category,
		Topic:        topic,
		Source:       defaultString(input.Source, "webhook"),
		Language:     defaultString(input.Language, "en"),
		Facts:        facts,
	}

	created, err := s.store.InsertLead(ctx, lead)
	if err != nil {
		return store.Lead{}, err
	}
	if s.search != nil {
		s.search.IndexLead(leadRecord(created))
	}
	return created, nil
}

func (s *Service) GetLeadByNumber(ctx context.Context, leadNumber string) (store.Lead, error) {
	return s.store.GetLeadByNumber(ctx, leadNumber)
}

func (s *Service) ListLeads(ctx context.Context, stage string, limit int) ([]store.Lead, error) {
	return s.store.ListLeads(ctx, stage, limit)
}

func (s *Service) UpdateLeadStage(ctx context.Context, leadNumber, stage, handlerStage string) (store.Lead, error) {
	if strings.TrimSpace(stage) == "" {
		return store.Lead{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"stage"}})
	}
	lead, err := s.store.GetLeadByNumber(ctx, leadNumber)
	if err != nil {
		return store.Lead{}, err
	}
	if err := s.store.UpdateLeadStage(ctx, lead.ID, stage, handlerStage); err != nil {
		return store.Lead{}, err
	}
	updated, err := s.store.GetLead(ctx, lead.ID)
	if err != nil {
		return store.Lead{}, err
	}
	if s.search != nil {
		s.search.IndexLead(leadRecord(updated))
	}
	return updated, nil
}

func (s *Service) AssignLeadRoles(ctx context.Context, leadNumber string, input RoleAssignmentInput) (store.Lead, error) {
	lead, err := s.store.GetLeadByNumber(ctx, leadNumber)
	if err != nil {
		return store.Lead{}, err
	}
	if err := s.store.AssignLeadRoles(ctx, lead.ID, input.Handler, input.Expert, input.Closer, input.Manager, input.Scheduler); err != nil {
		return store.Lead{}, err
	}
	return s.store.GetLead(ctx, lead.ID)
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	allLeads, inHandling, outstandingDocs, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"leads":                allLeads,
		"inHandling":           inHandling,
		"outstandingDocuments": outstandingDocs,
	}, nil
}

// ---------------------------------------------------------------------------
// Remote files

// LeadFiles resolves the case folder, refreshes the memoized folder link on
// the lead, and lists the folder's files. Share-link failure is non-fatal;
// the folder's own webUrl is used instead.
func (s *Service) LeadFiles(ctx context.Context, leadNumber string) (map[string]any, error) {
	if s.drive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REMOTE_STORE_UNAVAILABLE", "Remote file store not configured", nil)
	}
	lead, err := s.store.GetLeadByNumber(ctx, leadNumber)
	if err != nil {
		return nil, err
	}

	folder, err := s.drive.EnsureLeadFolder(ctx, lead.LeadNumber)
	if err != nil {
		return nil, err
	}

	folderURL := s.shareLinkOrWebURL(ctx, folder)
	if folderURL != lead.OneDriveFolderURL {
		if err := s.store.SetLeadFolderLink(ctx, lead.ID, folderURL); err != nil {
			return nil, err
		}
	}

	files, err := s.drive.ListFiles(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	fileItems := make([]map[string]any, 0, len(files))
	for _, item := range files {
		fileItems = append(fileItems, map[string]any{
			"id":                   item.ID,
			"name":                 item.Name,
			"webUrl":               item.WebURL,
			"downloadUrl":          item.DownloadURL,
			"lastModifiedDateTime": item.LastModified,
			"size":                 item.Size,
			"file":                 map[string]any{"mimeType": mimeType(item)},
		})
	}

	return map[string]any{
		"success":   true,
		"folderId":  folder.ID,
		"folderUrl": folderURL,
		"count":     len(fileItems),
		"files":     fileItems,
	}, nil
}

// UploadLeadFile puts a file into the case folder and returns the folder
// link for the UI to open.
func (s *Service) UploadLeadFile(ctx context.Context, leadNumber, filename string, content []byte) (map[string]any, error) {
	if s.drive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REMOTE_STORE_UNAVAILABLE", "Remote file store not configured", nil)
	}
	if strings.TrimSpace(filename) == "" || len(content) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing file content", nil)
	}
	lead, err := s.store.GetLeadByNumber(ctx, leadNumber)
	if err != nil {
		return nil, err
	}

	if _, err := s.drive.UploadFile(ctx, lead.LeadNumber, filename, content); err != nil {
		return nil, err
	}

	folder, err := s.drive.EnsureLeadFolder(ctx, lead.LeadNumber)
	if err != nil {
		return nil, err
	}
	folderURL := s.shareLinkOrWebURL(ctx, folder)
	if err := s.store.SetLeadFolderLink(ctx, lead.ID, folderURL); err != nil {
		return nil, err
	}

	return map[string]any{"success": true, "folderUrl": folderURL}, nil
}

// UploadEmailAttachment stores an unassigned attachment in the dated triage
// folder.
func (s *Service) UploadEmailAttachment(ctx context.Context, filename string, content []byte) (map[string]any, error) {
	if s.drive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REMOTE_STORE_UNAVAILABLE", "Remote file store not configured", nil)
	}
	if strings.TrimSpace(filename) == "" || len(content) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing file content", nil)
	}
	item, err := s.drive.UploadEmailAttachment(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "attachmentId": item.ID}, nil
}

func (s *Service) shareLinkOrWebURL(ctx context.Context, folder drive.Item) string {
	link, err := s.drive.CreateShareLink(ctx, folder.ID)
	if err != nil || link == "" {
		return folder.WebURL
	}
	return link
}

func mimeType(item drive.Item) string {
	if item.File == nil {
		return ""
	}
	return item.File.MimeType
}

// ---------------------------------------------------------------------------
// Contacts

// AddContact creates the family member and seeds their default document set
// in one transaction. The persecuted person is always the main applicant.
func (s *Service) AddContact(ctx context.Context, leadID string, input ContactInput) (store.Contact, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Contact{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"name"}})
	}
	if _, ok := allowedRelationships[input.Relationship]; !ok {
		return store.Contact{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown relationship", map[string]any{"relationship": input.Relationship})
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return store.Contact{}, err
	}

	contact := store.Contact{
		ID:              util.NewID("contact"),
		LeadID:          lead.ID,
		Name:            strings.TrimSpace(input.Name),
		Relationship:    input.Relationship,
		IsMainApplicant: input.Relationship == store.RelationshipPersecuted,
		IsPersecuted:    input.IsPersecuted || input.Relationship == store.RelationshipPersecuted,
		BirthDate:       input.BirthDate,
		DeathDate:       input.DeathDate,
		Citizenship:     input.Citizenship,
		IDNumber:        input.IDNumber,
		PassportNumber:  input.PassportNumber,
		Email:           input.Email,
		Phone:           input.Phone,
		Notes:           input.Notes,
	}

	documents := s.defaultDocuments(lead.ID, contact.ID, input.Relationship)
	if err := s.store.InsertContactWithDocuments(ctx, contact, documents); err != nil {
		return store.Contact{}, err
	}

	if s.search != nil {
		s.search.IndexContact(contactRecord(contact, lead.LeadNumber))
		for _, doc := range documents {
			s.search.IndexDocument(documentRecord(doc, lead.LeadNumber))
		}
	}

	return s.store.GetContact(ctx, contact.ID)
}

// defaultDocuments stamps the policy's defaults into concrete rows for a new
// contact. Deterministic for a given relationship.
func (s *Service) defaultDocuments(leadID, contactID, relationship string) []store.RequiredDocument {
	defaults := s.policy.DefaultsFor(relationship)
	documents := make([]store.RequiredDocument, 0, len(defaults))
	for _, def := range defaults {
		contactRef := contactID
		due := s.now().Add(time.Duration(def.DueDays) * 24 * time.Hour)
		documents = append(documents, store.RequiredDocument{
			ID:           util.NewID("doc"),
			LeadID:       leadID,
			ContactID:    &contactRef,
			DocumentName: def.Name,
			DocumentType: def.Type,
			Status:       StatusMissing,
			DueDate:      &due,
			IsRequired:   def.IsRequired,
			RequestedBy:  "system",
		})
	}
	return documents
}

func (s *Service) ListContacts(ctx context.Context, leadID string) ([]map[string]any, error) {
	contacts, err := s.store.ListContacts(ctx, leadID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(contacts))
	for _, contact := range contacts {
		items = append(items, contactJSON(contact))
	}
	return items, nil
}

func (s *Service) GetContact(ctx context.Context, contactID string) (map[string]any, error) {
	contact, err := s.store.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return contactJSON(contact), nil
}

func (s *Service) UpdateContact(ctx context.Context, contactID string, input ContactInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"name"}})
	}
	if _, ok := allowedRelationships[input.Relationship]; !ok {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown relationship", map[string]any{"relationship": input.Relationship})
	}
	existing, err := s.store.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Relationship = input.Relationship
	existing.IsMainApplicant = input.Relationship == store.RelationshipPersecuted
	existing.IsPersecuted = input.IsPersecuted || input.Relationship == store.RelationshipPersecuted
	existing.BirthDate = input.BirthDate
	existing.DeathDate = input.DeathDate
	existing.Citizenship = input.Citizenship
	existing.IDNumber = input.IDNumber
	existing.PassportNumber = input.PassportNumber
	existing.Email = input.Email
	existing.Phone = input.Phone
	existing.Notes = input.Notes

	if err := s.store.UpdateContact(ctx, existing); err != nil {
		return nil, err
	}
	if s.search != nil {
		if lead, err := s.store.GetLead(ctx, existing.LeadID); err == nil {
			s.search.IndexContact(contactRecord(existing, lead.LeadNumber))
		}
	}
	return s.GetContact(ctx, contactID)
}

// DeleteContact removes the contact and, via the storage layer, all of their
// required documents. History rows survive as snapshots.
func (s *Service) DeleteContact(ctx context.Context, contactID string) error {
	documents, err := s.store.ListDocumentsForContact(ctx, contactID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteContact(ctx, contactID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteContact(contactID)
		for _, doc := range documents {
			s.search.DeleteDocument(doc.ID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Required documents

func (s *Service) AddRequiredDocument(ctx context.Context, input DocumentInput) (store.RequiredDocument, error) {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(input.DocumentName) == "" {
		missing = append(missing, "documentName")
	}
	if strings.TrimSpace(input.LeadID) == "" {
		missing = append(missing, "leadId")
	}
	if len(missing) > 0 {
		return store.RequiredDocument{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": missing})
	}
	status := defaultString(input.Status, StatusMissing)
	if !isDocumentStatus(status) {
		return store.RequiredDocument{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown document status", map[string]any{"status": status})
	}
	lead, err := s.store.GetLead(ctx, input.LeadID)
	if err != nil {
		return store.RequiredDocument{}, err
	}
	if input.ContactID != nil {
		if _, err := s.store.GetContact(ctx, *input.ContactID); err != nil {
			return store.RequiredDocument{}, err
		}
	}

	doc := store.RequiredDocument{
		ID:           util.NewID("doc"),
		LeadID:       lead.ID,
		ContactID:    input.ContactID,
		DocumentName: strings.TrimSpace(input.DocumentName),
		DocumentType: defaultString(input.DocumentType, "other"),
		Status:       status,
		DueDate:      input.DueDate,
		Notes:        input.Notes,
		IsRequired:   input.IsRequired,
		RequestedBy:  input.RequestedBy,
	}
	if err := s.store.InsertRequiredDocument(ctx, doc); err != nil {
		return store.RequiredDocument{}, err
	}
	if s.search != nil {
		s.search.IndexDocument(documentRecord(doc, lead.LeadNumber))
	}
	return s.store.GetRequiredDocument(ctx, doc.ID)
}

// AddTemplateDocument stamps one RequiredDocument out of a catalog template:
// due date is now + typical_due_days, instructions become the notes.
func (s *Service) AddTemplateDocument(ctx context.Context, leadID, templateID string, contactID *string, requestedBy string) (store.RequiredDocument, error) {
	template, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return store.RequiredDocument{}, err
	}
	due := s.now().Add(time.Duration(template.TypicalDueDays) * 24 * time.Hour)
	return s.AddRequiredDocument(ctx, DocumentInput{
		LeadID:       leadID,
		ContactID:    contactID,
		DocumentName: template.Name,
		DocumentType: template.Category,
		DueDate:      &due,
		Notes:        template.Instructions,
		IsRequired:   true,
		RequestedBy:  requestedBy,
	})
}

// UpdateDocumentStatus performs the transition-checked status write plus the
// ledger append as one storage transaction.
func (s *Service) UpdateDocumentStatus(ctx context.Context, documentID string, input StatusUpdateInput) (store.StatusHistoryEntry, error) {
	if !isDocumentStatus(input.NewStatus) {
		return store.StatusHistoryEntry{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown document status", map[string]any{"status": input.NewStatus})
	}
	if strings.TrimSpace(input.ChangedBy) == "" {
		return store.StatusHistoryEntry{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"changedBy"}})
	}

	entry, err := s.store.UpdateDocumentStatusWithHistory(ctx, documentID, input.NewStatus, input.ChangedBy, input.Reason, input.Notes, transitionSources(input.NewStatus))
	if err != nil {
		if errors.Is(err, store.ErrTransitionNotAllowed) {
			return store.StatusHistoryEntry{}, domainError(http.StatusConflict, "TRANSITION_NOT_ALLOWED",
				fmt.Sprintf("Cannot move document from %s to %s", entry.OldStatus, input.NewStatus),
				map[string]any{"from": entry.OldStatus, "to": input.NewStatus})
		}
		return store.StatusHistoryEntry{}, err
	}

	if s.search != nil {
		if doc, err := s.store.GetRequiredDocument(ctx, documentID); err == nil {
			if lead, err := s.store.GetLead(ctx, doc.LeadID); err == nil {
				s.search.IndexDocument(documentRecord(doc, lead.LeadNumber))
			}
		}
	}
	return entry, nil
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteRequiredDocument(ctx, documentID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}
	return nil
}

func (s *Service) ListDocumentsForLead(ctx context.Context, leadID string) (map[string]any, error) {
	documents, err := s.store.ListDocumentsForLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documents": documentListJSON(documents),
		"stats":     completionStats(documents),
	}, nil
}

func (s *Service) ListDocumentsForContact(ctx context.Context, contactID string) (map[string]any, error) {
	documents, err := s.store.ListDocumentsForContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documents": documentListJSON(documents),
		"stats":     completionStats(documents),
	}, nil
}

// ---------------------------------------------------------------------------
// Status history

func (s *Service) HistoryForLead(ctx context.Context, leadNumber string, limit int) ([]store.StatusHistoryEntry, error) {
	lead, err := s.store.GetLeadByNumber(ctx, leadNumber)
	if err != nil {
		return nil, err
	}
	return s.store.ListHistoryForLead(ctx, lead.ID, limit)
}

// ---------------------------------------------------------------------------
// Templates

func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]store.DocumentTemplate, error) {
	return s.store.ListTemplates(ctx, activeOnly)
}

// ---------------------------------------------------------------------------
// Handler tasks

func (s *Service) AddTask(ctx context.Context, input TaskInput) (store.HandlerTask, error) {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(input.LeadID) == "" {
		missing = append(missing, "leadId")
	}
	if len(missing) > 0 {
		return store.HandlerTask{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": missing})
	}
	priority := defaultString(input.Priority, "medium")
	if _, ok := allowedTaskPriorities[priority]; !ok {
		return store.HandlerTask{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown task priority", map[string]any{"priority": priority})
	}
	if _, err := s.store.GetLead(ctx, input.LeadID); err != nil {
		return store.HandlerTask{}, err
	}

	task := store.HandlerTask{
		ID:             util.NewID("task"),
		LeadID:         input.LeadID,
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Priority:       priority,
		Status:         "pending",
		AssignedTo:     input.AssignedTo,
		CreatedBy:      input.CreatedBy,
		DueDate:        input.DueDate,
		EstimatedHours: input.EstimatedHours,
		Tags:           input.Tags,
	}
	if err := s.store.InsertHandlerTask(ctx, task); err != nil {
		return store.HandlerTask{}, err
	}
	return s.store.GetHandlerTask(ctx, task.ID)
}

func (s *Service) ListTasks(ctx context.Context, leadID string) ([]store.HandlerTask, error) {
	return s.store.ListTasksForLead(ctx, leadID)
}

// UpdateTask writes mutable fields and stamps completed_at when a task moves
// into completed, clearing it when the task leaves that state.
func (s *Service) UpdateTask(ctx context.Context, taskID string, input TaskInput) (store.HandlerTask, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.HandlerTask{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"title"}})
	}
	status := defaultString(input.Status, "pending")
	if _, ok := allowedTaskStatuses[status]; !ok {
		return store.HandlerTask{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown task status", map[string]any{"status": status})
	}
	priority := defaultString(input.Priority, "medium")
	if _, ok := allowedTaskPriorities[priority]; !ok {
		return store.HandlerTask{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown task priority", map[string]any{"priority": priority})
	}

	task, err := s.store.GetHandlerTask(ctx, taskID)
	if err != nil {
		return store.HandlerTask{}, err
	}

	task.Title = strings.TrimSpace(input.Title)
	task.Description = input.Description
	task.Priority = priority
	task.AssignedTo = input.AssignedTo
	task.DueDate = input.DueDate
	task.EstimatedHours = input.EstimatedHours
	task.ActualHours = input.ActualHours
	task.Tags = input.Tags

	if status == "completed" && task.Status != "completed" {
		completedAt := s.now()
		task.CompletedAt = &completedAt
	}
	if status != "completed" {
		task.CompletedAt = nil
	}
	task.Status = status

	if err := s.store.UpdateHandlerTask(ctx, task); err != nil {
		return store.HandlerTask{}, err
	}
	return s.store.GetHandlerTask(ctx, taskID)
}

func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.store.DeleteHandlerTask(ctx, taskID)
}

// ---------------------------------------------------------------------------
// Push notifications

func (s *Service) SavePushSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(endpoint) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"userId", "endpoint"}})
	}
	return s.store.SavePushSubscription(ctx, store.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
	})
}

func (s *Service) RemovePushSubscription(ctx context.Context, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"endpoint"}})
	}
	return s.store.DeletePushSubscription(ctx, endpoint)
}

// SendPush fans the notification out to every stored subscription for the
// user. Zero subscriptions short-circuits without touching the provider.
// Gone endpoints (404/410) are pruned; one failure never blocks the rest.
func (s *Service) SendPush(ctx context.Context, userID string, notification push.Notification) (map[string]any, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": []string{"userId"}})
	}
	if s.push == nil || !s.push.Enabled() {
		return nil, domainError(http.StatusServiceUnavailable, "PUSH_UNAVAILABLE", "Push notifications not configured", nil)
	}

	subscriptions, err := s.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return map[string]any{"success": true, "sent": 0, "total": 0, "results": []map[string]any{}}, nil
	}

	subs := make([]push.Subscription, 0, len(subscriptions))
	for _, sub := range subscriptions {
		subs = append(subs, push.Subscription{Endpoint: sub.Endpoint, P256dh: sub.P256dh, Auth: sub.Auth})
	}

	results := s.push.Broadcast(ctx, notification, subs)

	sent := 0
	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		item := map[string]any{"endpoint": result.Endpoint, "success": result.Err == nil}
		if result.Err == nil {
			sent++
		} else {
			item["error"] = result.Err.Error()
		}
		if result.Gone {
			if err := s.store.DeletePushSubscription(ctx, result.Endpoint); err == nil {
				item["removed"] = true
			}
		}
		items = append(items, item)
	}

	return map[string]any{
		"success": true,
		"sent":    sent,
		"total":   len(results),
		"results": items,
	}, nil
}

// ---------------------------------------------------------------------------
// Search

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// ---------------------------------------------------------------------------
// JSON shaping

func leadJSON(lead store.Lead) map[string]any {
	return map[string]any{
		"id":                   lead.ID,
		"lead_number":          lead.LeadNumber,
		"name":                 lead.Name,
		"email":                lead.Email,
		"phone":                lead.Phone,
		"mobile":               lead.Mobile,
		"stage":                lead.Stage,
		"handler_stage":        lead.HandlerStage,
		"status":               lead.Status,
		"category":             lead.Category,
		"topic":                lead.Topic,
		"source":               lead.Source,
		"language":             lead.Language,
		"balance":              lead.Balance,
		"onedrive_folder_link": lead.OneDriveFolderURL,
		"facts":                json.RawMessage(lead.Facts),
		"handler":              lead.Handler,
		"expert":               lead.Expert,
		"closer":               lead.Closer,
		"manager":              lead.Manager,
		"scheduler":            lead.Scheduler,
		"created_at":           lead.CreatedAt,
		"updated_at":           lead.UpdatedAt,
	}
}

func contactJSON(contact store.Contact) map[string]any {
	stats := completionStatsFromCounts(contact.DocumentCount, contact.CompletedDocuments)
	return map[string]any{
		"id":                    contact.ID,
		"lead_id":               contact.LeadID,
		"name":                  contact.Name,
		"relationship":          contact.Relationship,
		"is_main_applicant":     contact.IsMainApplicant,
		"is_persecuted":         contact.IsPersecuted,
		"birth_date":            contact.BirthDate,
		"death_date":            contact.DeathDate,
		"citizenship":           contact.Citizenship,
		"id_number":             contact.IDNumber,
		"passport_number":       contact.PassportNumber,
		"email":                 contact.Email,
		"phone":                 contact.Phone,
		"notes":                 contact.Notes,
		"document_count":        stats.Total,
		"completed_documents":   stats.Completed,
		"completion_percentage": stats.Percentage,
		"created_at":            contact.CreatedAt,
		"updated_at":            contact.UpdatedAt,
	}
}

func documentJSON(doc store.RequiredDocument) map[string]any {
	return map[string]any{
		"id":            doc.ID,
		"lead_id":       doc.LeadID,
		"contact_id":    doc.ContactID,
		"document_name": doc.DocumentName,
		"document_type": doc.DocumentType,
		"status":        doc.Status,
		"due_date":      doc.DueDate,
		"notes":         doc.Notes,
		"is_required":   doc.IsRequired,
		"requested_by":  doc.RequestedBy,
		"created_at":    doc.CreatedAt,
		"updated_at":    doc.UpdatedAt,
	}
}

func documentListJSON(documents []store.RequiredDocument) []map[string]any {
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, documentJSON(doc))
	}
	return items
}

func historyJSON(entry store.StatusHistoryEntry) map[string]any {
	return map[string]any{
		"id":              entry.ID,
		"document_id":     entry.DocumentID,
		"lead_id":         entry.LeadID,
		"document_name":   entry.DocumentName,
		"contact_name":    entry.ContactName,
		"old_status":      entry.OldStatus,
		"new_status":      entry.NewStatus,
		"changed_by_name": entry.ChangedByName,
		"change_reason":   entry.ChangeReason,
		"notes":           entry.Notes,
		"created_at":      entry.CreatedAt,
	}
}

func taskJSON(task store.HandlerTask) map[string]any {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":              task.ID,
		"lead_id":         task.LeadID,
		"title":           task.Title,
		"description":     task.Description,
		"priority":        task.Priority,
		"status":          task.Status,
		"assigned_to":     task.AssignedTo,
		"created_by":      task.CreatedBy,
		"due_date":        task.DueDate,
		"completed_at":    task.CompletedAt,
		"estimated_hours": task.EstimatedHours,
		"actual_hours":    task.ActualHours,
		"tags":            tags,
		"created_at":      task.CreatedAt,
		"updated_at":      task.UpdatedAt,
	}
}

func leadRecord(lead store.Lead) search.LeadRecord {
	return search.LeadRecord{
		ID:         lead.ID,
		LeadNumber: lead.LeadNumber,
		Name:       lead.Name,
		Email:      lead.Email,
		Topic:      lead.Topic,
		Stage:      lead.Stage,
	}
}

func contactRecord(contact store.Contact, leadNumber string) search.ContactRecord {
	return search.ContactRecord{
		ID:           contact.ID,
		LeadID:       contact.LeadID,
		LeadNumber:   leadNumber,
		Name:         contact.Name,
		Relationship: contact.Relationship,
	}
}

func documentRecord(doc store.RequiredDocument, leadNumber string) search.DocumentRecord {
	return search.DocumentRecord{
		ID:           doc.ID,
		LeadID:       doc.LeadID,
		LeadNumber:   leadNumber,
		DocumentName: doc.DocumentName,
		DocumentType: doc.DocumentType,
		Status:       doc.Status,
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
