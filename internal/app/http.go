package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caseflow/api/internal/drive"
	"caseflow/api/internal/push"
	"caseflow/api/internal/search"
	"caseflow/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	apiToken   string
}

func NewHTTPServer(service *Service, corsOrigin, apiToken string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, apiToken: apiToken}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Webhook routes: no token required, the form provider cannot send one.
	if r.Method == http.MethodGet && r.URL.Path == "/api/hook/health" {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "OK",
			"message":   "Lead intake webhook is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/hook/catch" {
		s.handleIntake(w, r)
		return
	}

	// Everything else is internal and requires the shared API token.
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "summary":
		if r.Method == http.MethodGet && len(parts) == 2 {
			summary, err := s.service.Summary(r.Context())
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}
	case "leads":
		s.handleLeads(w, r, parts[2:])
		return
	case "contacts":
		s.handleContacts(w, r, parts[2:])
		return
	case "documents":
		s.handleDocuments(w, r, parts[2:])
		return
	case "templates":
		if r.Method == http.MethodGet && len(parts) == 2 {
			activeOnly := r.URL.Query().Get("active") != "false"
			templates, err := s.service.ListTemplates(r.Context(), activeOnly)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
			return
		}
	case "tasks":
		s.handleTasks(w, r, parts[2:])
		return
	case "push":
		s.handlePush(w, r, parts[2:])
		return
	case "files":
		s.handleFiles(w, r, parts[2:])
		return
	case "search":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.handleSearch(w, r)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	token := bearerToken(r)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) == 1
}

// handleIntake is the public webhook endpoint. A database failure is reported
// with the 500 shape the form provider expects.
func (s *HTTPServer) handleIntake(w http.ResponseWriter, r *http.Request) {
	var input IntakeInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	lead, err := s.service.IntakeLead(r.Context(), input)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to create lead",
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"lead_number": lead.LeadNumber,
		"id":          lead.ID,
		"name":        lead.Name,
		"email":       lead.Email,
		"created_at":  lead.CreatedAt,
	})
}

func (s *HTTPServer) handleLeads(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		if r.Method == http.MethodGet {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			leads, err := s.service.ListLeads(r.Context(), r.URL.Query().Get("stage"), limit)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			items := make([]map[string]any, 0, len(leads))
			for _, lead := range leads {
				items = append(items, leadJSON(lead))
			}
			writeJSON(w, http.StatusOK, map[string]any{"leads": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	leadNumber := parts[0]

	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			lead, err := s.service.GetLeadByNumber(r.Context(), leadNumber)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, leadJSON(lead))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch parts[1] {
	case "stage":
		if r.Method == http.MethodPut && len(parts) == 2 {
			var body struct {
				Stage        string `json:"stage"`
				HandlerStage string `json:"handlerStage"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			lead, err := s.service.UpdateLeadStage(r.Context(), leadNumber, body.Stage, body.HandlerStage)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, leadJSON(lead))
			return
		}
	case "roles":
		if r.Method == http.MethodPut && len(parts) == 2 {
			var body RoleAssignmentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			lead, err := s.service.AssignLeadRoles(r.Context(), leadNumber, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, leadJSON(lead))
			return
		}
	case "files":
		if len(parts) == 2 {
			s.handleLeadFiles(w, r, leadNumber)
			return
		}
	case "history":
		if r.Method == http.MethodGet && len(parts) == 2 {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			entries, err := s.service.HistoryForLead(r.Context(), leadNumber, limit)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			items := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				items = append(items, historyJSON(entry))
			}
			writeJSON(w, http.StatusOK, map[string]any{"history": items})
			return
		}
	case "contacts":
		if len(parts) == 2 {
			s.handleLeadContacts(w, r, leadNumber)
			return
		}
	case "documents":
		s.handleLeadDocuments(w, r, leadNumber, parts[2:])
		return
	case "tasks":
		if len(parts) == 2 {
			s.handleLeadTasks(w, r, leadNumber)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLeadFiles(w http.ResponseWriter, r *http.Request, leadNumber string) {
	switch r.Method {
	case http.MethodGet:
		result, err := s.service.LeadFiles(r.Context(), leadNumber)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		filename, content, err := readMultipartFile(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.UploadLeadFile(r.Context(), leadNumber, filename, content)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleLeadContacts(w http.ResponseWriter, r *http.Request, leadNumber string) {
	lead, err := s.service.GetLeadByNumber(r.Context(), leadNumber)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		contacts, err := s.service.ListContacts(r.Context(), lead.ID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
	case http.MethodPost:
		var input ContactInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		contact, err := s.service.AddContact(r.Context(), lead.ID, input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, contactJSON(contact))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleLeadDocuments(w http.ResponseWriter, r *http.Request, leadNumber string, parts []string) {
	lead, err := s.service.GetLeadByNumber(r.Context(), leadNumber)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			result, err := s.service.ListDocumentsForLead(r.Context(), lead.ID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodPost:
			var input DocumentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			input.LeadID = lead.ID
			doc, err := s.service.AddRequiredDocument(r.Context(), input)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, documentJSON(doc))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 1 && parts[0] == "from-template" && r.Method == http.MethodPost {
		var body struct {
			TemplateID  string  `json:"templateId"`
			ContactID   *string `json:"contactId"`
			RequestedBy string  `json:"requestedBy"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.AddTemplateDocument(r.Context(), lead.ID, body.TemplateID, body.ContactID, body.RequestedBy)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentJSON(doc))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLeadTasks(w http.ResponseWriter, r *http.Request, leadNumber string) {
	lead, err := s.service.GetLeadByNumber(r.Context(), leadNumber)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tasks, err := s.service.ListTasks(r.Context(), lead.ID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(tasks))
		for _, task := range tasks {
			items = append(items, taskJSON(task))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
	case http.MethodPost:
		var input TaskInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		input.LeadID = lead.ID
		task, err := s.service.AddTask(r.Context(), input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, taskJSON(task))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleContacts(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	contactID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			contact, err := s.service.GetContact(r.Context(), contactID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, contact)
		case http.MethodPut:
			var input ContactInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			contact, err := s.service.UpdateContact(r.Context(), contactID, input)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, contact)
		case http.MethodDelete:
			if err := s.service.DeleteContact(r.Context(), contactID); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "documents" && r.Method == http.MethodGet {
		result, err := s.service.ListDocumentsForContact(r.Context(), contactID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	documentID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}

	if len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut {
		var input StatusUpdateInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entry, err := s.service.UpdateDocumentStatus(r.Context(), documentID, input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyJSON(entry))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	taskID := parts[0]

	switch r.Method {
	case http.MethodPut:
		var input TaskInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.UpdateTask(r.Context(), taskID, input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskJSON(task))
	case http.MethodDelete:
		if err := s.service.DeleteTask(r.Context(), taskID); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handlePush(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "subscriptions":
		switch r.Method {
		case http.MethodPost:
			var body struct {
				UserID   string `json:"userId"`
				Endpoint string `json:"endpoint"`
				Keys     struct {
					P256dh string `json:"p256dh"`
					Auth   string `json:"auth"`
				} `json:"keys"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SavePushSubscription(r.Context(), body.UserID, body.Endpoint, body.Keys.P256dh, body.Keys.Auth); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"success": true})
			return
		case http.MethodDelete:
			var body struct {
				Endpoint string `json:"endpoint"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.RemovePushSubscription(r.Context(), body.Endpoint); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	case "send":
		if r.Method == http.MethodPost {
			var body struct {
				UserID  string            `json:"userId"`
				Payload push.Notification `json:"payload"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SendPush(r.Context(), body.UserID, body.Payload)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleFiles is the generic upload endpoint: a multipart form with `file`
// plus either `leadNumber` or `isEmailAttachment=true`.
func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 || parts[0] != "upload" || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	filename, content, err := readMultipartFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if r.FormValue("isEmailAttachment") == "true" {
		result, err := s.service.UploadEmailAttachment(r.Context(), filename, content)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	leadNumber := r.FormValue("leadNumber")
	if leadNumber == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing leadNumber", nil)
		return
	}
	result, err := s.service.UploadLeadFile(r.Context(), leadNumber, filename, content)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response := s.service.Search(search.Query{
		Text:         query.Get("q"),
		FilterType:   search.ResultType(query.Get("type")),
		FilterLeadID: query.Get("leadId"),
		Limit:        limit,
		Offset:       offset,
	})
	writeJSON(w, http.StatusOK, response)
}

func readMultipartFile(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, fmt.Errorf("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("missing file field")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	return header.Filename, content, nil
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrTransitionNotAllowed) {
		return http.StatusConflict, "TRANSITION_NOT_ALLOWED", err.Error(), nil
	}
	var remoteErr *drive.RemoteError
	if errors.As(err, &remoteErr) {
		return http.StatusBadGateway, "REMOTE_STORE_ERROR", remoteErr.Message, map[string]any{"providerCode": remoteErr.Code, "providerStatus": remoteErr.Status}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
