package store

import "time"

type Lead struct {
	ID                string
	LeadNumber        string
	Name              string
	Email             string
	Phone             string
	Mobile            string
	Stage             string
	HandlerStage      string
	Status            string
	Category          string
	Topic             string
	Source            string
	Language          string
	Balance           float64
	OneDriveFolderURL string
	Facts             string
	Handler           string
	Expert            string
	Closer            string
	Manager           string
	Scheduler         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RelationshipPersecuted marks the persecuted person, who is always the main
// applicant of the case; everyone else is a family member.
const RelationshipPersecuted = "persecuted_person"

type Contact struct {
	ID              string
	LeadID          string
	Name            string
	Relationship    string
	IsMainApplicant bool
	IsPersecuted    bool
	BirthDate       *time.Time
	DeathDate       *time.Time
	Citizenship     string
	IDNumber        string
	PassportNumber  string
	Email           string
	Phone           string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// Read-time aggregates over this contact's required documents.
	DocumentCount        int
	CompletedDocuments   int
	CompletionPercentage int
}

type RequiredDocument struct {
	ID           string
	LeadID       string
	ContactID    *string
	DocumentName string
	DocumentType string
	Status       string
	DueDate      *time.Time
	Notes        string
	IsRequired   bool
	RequestedBy  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DocumentTemplate struct {
	ID             string
	Name           string
	Category       string
	TypicalDueDays int
	Instructions   string
	IsActive       bool
}

// StatusHistoryEntry is an append-only row. Document and contact names are
// snapshots so the audit trail survives hard deletes of the rows they name.
type StatusHistoryEntry struct {
	ID            int64
	DocumentID    string
	LeadID        string
	DocumentName  string
	ContactName   string
	OldStatus     string
	NewStatus     string
	ChangedByName string
	ChangeReason  string
	Notes         string
	CreatedAt     time.Time
}

type HandlerTask struct {
	ID             string
	LeadID         string
	Title          string
	Description    string
	Priority       string
	Status         string
	AssignedTo     string
	CreatedBy      string
	DueDate        *time.Time
	CompletedAt    *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PushSubscription struct {
	ID        int64
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}
