package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGraph is a minimal in-memory Graph drive: items addressable by path,
// with counters for the calls the tests care about.
type fakeGraph struct {
	mu          sync.Mutex
	items       map[string]Item // root-relative path -> item
	children    map[string][]Item
	tokenCalls  int
	createCalls int
	server      *httptest.Server
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	g := &fakeGraph{
		items:    map[string]Item{},
		children: map[string][]Item{},
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGraph) addFolder(path string) Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	item := Item{
		ID:     "id:" + path,
		Name:   path[strings.LastIndex(path, "/")+1:],
		WebURL: "https://drive.example" + path,
		Folder: &struct{}{},
	}
	g.items[path] = item
	return item
}

func (g *fakeGraph) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := r.URL.Path

	// Token endpoint
	if strings.HasSuffix(path, "/oauth2/v2.0/token") {
		g.tokenCalls++
		writeGraphJSON(w, http.StatusOK, map[string]any{"access_token": "tok-" + fmt.Sprint(g.tokenCalls), "expires_in": 3600})
		return
	}

	if r.Header.Get("Authorization") == "" {
		writeGraphError(w, http.StatusUnauthorized, "InvalidAuthenticationToken", "missing token")
		return
	}

	const prefix = "/drives/test-drive"
	if !strings.HasPrefix(path, prefix) {
		writeGraphError(w, http.StatusNotFound, "itemNotFound", "unknown drive")
		return
	}
	rest := strings.TrimPrefix(path, prefix)

	switch {
	case rest == "/root":
		writeGraphJSON(w, http.StatusOK, Item{ID: "root", Name: "root", Folder: &struct{}{}})
	case strings.HasPrefix(rest, "/root:"):
		itemPath := strings.TrimPrefix(rest, "/root:")
		item, ok := g.items[itemPath]
		if !ok {
			writeGraphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
			return
		}
		writeGraphJSON(w, http.StatusOK, item)
	case strings.HasSuffix(rest, "/children") && r.Method == http.MethodPost:
		g.createCalls++
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		parentID := strings.TrimSuffix(strings.TrimPrefix(rest, "/items/"), "/children")
		parentPath := strings.TrimPrefix(parentID, "id:")
		if parentID == "root" {
			parentPath = ""
		}
		childPath := parentPath + "/" + body.Name
		if _, exists := g.items[childPath]; exists {
			writeGraphError(w, http.StatusConflict, "nameAlreadyExists", "An item with the same name already exists.")
			return
		}
		item := Item{ID: "id:" + childPath, Name: body.Name, WebURL: "https://drive.example" + childPath, Folder: &struct{}{}}
		g.items[childPath] = item
		writeGraphJSON(w, http.StatusCreated, item)
	case strings.HasSuffix(rest, "/children") && r.Method == http.MethodGet:
		folderID := strings.TrimSuffix(strings.TrimPrefix(rest, "/items/"), "/children")
		writeGraphJSON(w, http.StatusOK, map[string]any{"value": g.children[folderID]})
	case strings.HasSuffix(rest, "/createLink"):
		writeGraphJSON(w, http.StatusCreated, map[string]any{"link": map[string]any{"webUrl": "https://share.example/link"}})
	case strings.HasSuffix(rest, ":/content") && r.Method == http.MethodPut:
		trimmed := strings.TrimSuffix(rest, ":/content")
		name := trimmed[strings.LastIndex(trimmed, ":/")+2:]
		writeGraphJSON(w, http.StatusCreated, Item{ID: "file:" + name, Name: name, File: &ItemFile{MimeType: "application/octet-stream"}})
	default:
		writeGraphError(w, http.StatusNotFound, "itemNotFound", "unhandled path "+rest)
	}
}

func writeGraphJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeGraphError(w http.ResponseWriter, status int, code, message string) {
	writeGraphJSON(w, status, map[string]any{"error": map[string]any{"code": code, "message": message}})
}

func newTestClient(g *fakeGraph) *Client {
	tokens := NewTokenSource(g.server.URL, "test-tenant", "client-id", "client-secret", nil)
	return NewClient(g.server.URL, "test-drive", tokens, NoopLocker{})
}

func TestEnsureLeadFolderReturnsCanonicalFolder(t *testing.T) {
	g := newFakeGraph(t)
	want := g.addFolder("/Leads/Lead_L100")

	client := newTestClient(g)
	got, err := client.EnsureLeadFolder(context.Background(), "L100")
	if err != nil {
		t.Fatalf("ensure folder: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("expected %s, got %s", want.ID, got.ID)
	}
	if g.createCalls != 0 {
		t.Fatalf("no folder should be created, got %d creates", g.createCalls)
	}
}

func TestEnsureLeadFolderFallsBackToPrefixSwap(t *testing.T) {
	g := newFakeGraph(t)
	want := g.addFolder("/Leads/Lead_C100")

	client := newTestClient(g)
	got, err := client.EnsureLeadFolder(context.Background(), "L100")
	if err != nil {
		t.Fatalf("ensure folder: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("expected renamed folder %s, got %s", want.ID, got.ID)
	}
	if g.createCalls != 0 {
		t.Fatalf("no folder should be created, got %d creates", g.createCalls)
	}
}

func TestEnsureLeadFolderFallsBackToLegacyPath(t *testing.T) {
	g := newFakeGraph(t)
	want := g.addFolder("/Documents/Leads/Lead_L100")

	client := newTestClient(g)
	got, err := client.EnsureLeadFolder(context.Background(), "L100")
	if err != nil {
		t.Fatalf("ensure folder: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("expected legacy folder %s, got %s", want.ID, got.ID)
	}
	if g.createCalls != 0 {
		t.Fatalf("legacy hit must not create a duplicate, got %d creates", g.createCalls)
	}
	if _, exists := g.items["/Leads/Lead_L100"]; exists {
		t.Fatal("canonical folder must not be created when the legacy one exists")
	}
}

func TestEnsureLeadFolderCreatesWhenAllLookupsMiss(t *testing.T) {
	g := newFakeGraph(t)

	client := newTestClient(g)
	got, err := client.EnsureLeadFolder(context.Background(), "L200")
	if err != nil {
		t.Fatalf("ensure folder: %v", err)
	}
	if got.Name != "Lead_L200" {
		t.Fatalf("expected created folder Lead_L200, got %s", got.Name)
	}
	if _, exists := g.items["/Leads/Lead_L200"]; !exists {
		t.Fatal("folder must exist after creation")
	}
	// /Leads plus /Leads/Lead_L200
	if g.createCalls != 2 {
		t.Fatalf("expected 2 create calls, got %d", g.createCalls)
	}
}

func TestEnsureLeadFolderToleratesExistingParent(t *testing.T) {
	g := newFakeGraph(t)
	g.addFolder("/Leads")

	client := newTestClient(g)
	if _, err := client.EnsureLeadFolder(context.Background(), "L300"); err != nil {
		t.Fatalf("ensure folder: %v", err)
	}
	if g.createCalls != 1 {
		t.Fatalf("only the lead folder should be created, got %d creates", g.createCalls)
	}
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	g := newFakeGraph(t)
	g.addFolder("/Leads/Lead_L1")

	client := newTestClient(g)
	for i := 0; i < 3; i++ {
		if _, err := client.EnsureLeadFolder(context.Background(), "L1"); err != nil {
			t.Fatalf("ensure folder: %v", err)
		}
	}
	if g.tokenCalls != 1 {
		t.Fatalf("expected a single token round trip, got %d", g.tokenCalls)
	}
}

func TestListFilesFiltersFolders(t *testing.T) {
	g := newFakeGraph(t)
	folder := g.addFolder("/Leads/Lead_L1")
	g.children[folder.ID] = []Item{
		{ID: "f1", Name: "passport.pdf", File: &ItemFile{MimeType: "application/pdf"}, DownloadURL: "https://dl/f1"},
		{ID: "sub", Name: "Archive", Folder: &struct{}{}},
		{ID: "f2", Name: "birth.jpg", File: &ItemFile{MimeType: "image/jpeg"}},
	}

	client := newTestClient(g)
	files, err := client.ListFiles(context.Background(), folder.ID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected sub-folders filtered out, got %d items", len(files))
	}
	if files[0].DownloadURL != "https://dl/f1" {
		t.Fatalf("download url not mapped: %+v", files[0])
	}
}

func TestUploadEmailAttachmentUsesDatedFolder(t *testing.T) {
	g := newFakeGraph(t)

	client := newTestClient(g)
	client.now = func() time.Time { return time.Date(2025, 4, 2, 15, 0, 0, 0, time.UTC) }

	item, err := client.UploadEmailAttachment(context.Background(), "scan.pdf", []byte("content"))
	if err != nil {
		t.Fatalf("upload attachment: %v", err)
	}
	if item.Name != "scan.pdf" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if _, exists := g.items["/EmailAttachments/2025-04-02"]; !exists {
		t.Fatal("dated attachment folder must be provisioned")
	}
}

func TestCreateShareLink(t *testing.T) {
	g := newFakeGraph(t)
	folder := g.addFolder("/Leads/Lead_L1")

	client := newTestClient(g)
	link, err := client.CreateShareLink(context.Background(), folder.ID)
	if err != nil {
		t.Fatalf("create share link: %v", err)
	}
	if link != "https://share.example/link" {
		t.Fatalf("unexpected link %q", link)
	}
}
