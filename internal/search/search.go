package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultLead     ResultType = "lead"
	ResultContact  ResultType = "contact"
	ResultDocument ResultType = "document"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	LeadID     string     `json:"leadId"`
	LeadNumber string     `json:"leadNumber"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterLeadID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexLead(l LeadRecord) error
	IndexContact(c ContactRecord) error
	IndexDocument(d DocumentRecord) error
	DeleteContact(id string) error
	DeleteDocument(id string) error
}

// LeadRecord is the data we index for a case.
type LeadRecord struct {
	ID         string `json:"id"`
	LeadNumber string `json:"leadNumber"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Topic      string `json:"topic"`
	Stage      string `json:"stage"`
}

// ContactRecord is the data we index for a family member.
type ContactRecord struct {
	ID           string `json:"id"`
	LeadID       string `json:"leadId"`
	LeadNumber   string `json:"leadNumber"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}

// DocumentRecord is the data we index for a required document.
type DocumentRecord struct {
	ID           string `json:"id"`
	LeadID       string `json:"leadId"`
	LeadNumber   string `json:"leadNumber"`
	DocumentName string `json:"documentName"`
	DocumentType string `json:"documentType"`
	Status       string `json:"status"`
}
