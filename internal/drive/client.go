// Package drive adapts OneDrive (Microsoft Graph) as "one folder per case,
// with shareable org-scoped links".
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"caseflow/api/internal/util"
	"github.com/go-resty/resty/v2"
)

// RemoteError is any Graph API failure, carrying the provider's own code and
// message through to the caller.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote store error (%d %s): %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the remote store.
func IsNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Status == 404
}

func isConflict(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Status == 409
}

// Item is a normalized drive item. DownloadURL carries Graph's
// @microsoft.graph.downloadUrl; Folder is non-nil for folder items.
type Item struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	WebURL       string       `json:"webUrl"`
	Size         int64        `json:"size"`
	LastModified time.Time    `json:"lastModifiedDateTime"`
	File         *ItemFile    `json:"file,omitempty"`
	Folder       *struct{}    `json:"folder,omitempty"`
	DownloadURL  string       `json:"@microsoft.graph.downloadUrl,omitempty"`
}

type ItemFile struct {
	MimeType string `json:"mimeType"`
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type childrenResponse struct {
	Value []Item `json:"value"`
}

type shareLinkResponse struct {
	Link struct {
		WebURL string `json:"webUrl"`
	} `json:"link"`
}

// Client talks to one drive. All folder creation for a case is serialized
// through the Locker.
type Client struct {
	http    *resty.Client
	tokens  *TokenSource
	driveID string
	locker  Locker
	now     func() time.Time
}

func NewClient(baseURL, driveID string, tokens *TokenSource, locker Locker) *Client {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(60 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		tokens:  tokens,
		driveID: driveID,
		locker:  locker,
		now:     time.Now,
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

func remoteErrorFrom(resp *resty.Response, parsed *graphError) error {
	return &RemoteError{
		Status:  resp.StatusCode(),
		Code:    parsed.Error.Code,
		Message: parsed.Error.Message,
	}
}

// itemByPath fetches a drive item by its root-relative path, e.g.
// "/Leads/Lead_L100".
func (c *Client) itemByPath(ctx context.Context, path string) (Item, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Item{}, err
	}
	var item Item
	var graphErr graphError
	resp, err := req.
		SetResult(&item).
		SetError(&graphErr).
		Get("/drives/" + c.driveID + "/root:" + escapePath(path))
	if err != nil {
		return Item{}, fmt.Errorf("get item by path: %w", err)
	}
	if resp.IsError() {
		return Item{}, remoteErrorFrom(resp, &graphErr)
	}
	return item, nil
}

// createChildFolder creates a folder under parentID with conflict behavior
// "fail", so a concurrent create surfaces as 409 instead of a silent rename.
func (c *Client) createChildFolder(ctx context.Context, parentID, name string) (Item, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Item{}, err
	}
	var item Item
	var graphErr graphError
	resp, err := req.
		SetBody(map[string]any{
			"name":                              name,
			"folder":                            map[string]any{},
			"@microsoft.graph.conflictBehavior": "fail",
		}).
		SetResult(&item).
		SetError(&graphErr).
		Post("/drives/" + c.driveID + "/items/" + parentID + "/children")
	if err != nil {
		return Item{}, fmt.Errorf("create folder %s: %w", name, err)
	}
	if resp.IsError() {
		return Item{}, remoteErrorFrom(resp, &graphErr)
	}
	return item, nil
}

// root returns the drive root item.
func (c *Client) root(ctx context.Context) (Item, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Item{}, err
	}
	var item Item
	var graphErr graphError
	resp, err := req.
		SetResult(&item).
		SetError(&graphErr).
		Get("/drives/" + c.driveID + "/root")
	if err != nil {
		return Item{}, fmt.Errorf("get drive root: %w", err)
	}
	if resp.IsError() {
		return Item{}, remoteErrorFrom(resp, &graphErr)
	}
	return item, nil
}

// ensureFolderPath walks path segments from the root, creating each missing
// folder. A 409 from a racing creator is resolved by re-fetching the path.
func (c *Client) ensureFolderPath(ctx context.Context, segments ...string) (Item, error) {
	parent, err := c.root(ctx)
	if err != nil {
		return Item{}, err
	}
	walked := ""
	for _, segment := range segments {
		walked += "/" + segment
		item, err := c.itemByPath(ctx, walked)
		if err == nil {
			parent = item
			continue
		}
		if !IsNotFound(err) {
			return Item{}, err
		}
		created, err := c.createChildFolder(ctx, parent.ID, segment)
		if err != nil {
			if !isConflict(err) {
				return Item{}, err
			}
			created, err = c.itemByPath(ctx, walked)
			if err != nil {
				return Item{}, err
			}
		}
		parent = created
	}
	return parent, nil
}

// EnsureLeadFolder resolves the canonical folder for a case number. Lookup
// order handles the historical L/C renaming and the legacy /Documents root:
//
//  1. /Leads/Lead_<number>
//  2. /Leads/Lead_<swapped>
//  3. /Documents/Leads/Lead_<number>
//  4. /Documents/Leads/Lead_<swapped>
//
// Only when every lookup misses does it create /Leads/Lead_<number>, holding
// the provisioning lock so one canonical folder exists per case.
func (c *Client) EnsureLeadFolder(ctx context.Context, caseNumber string) (Item, error) {
	paths := []string{"/Leads/Lead_" + caseNumber}
	if alt := util.AlternateCaseNumber(caseNumber); alt != "" {
		paths = append(paths, "/Leads/Lead_"+alt)
	}
	paths = append(paths, "/Documents/Leads/Lead_"+caseNumber)
	if alt := util.AlternateCaseNumber(caseNumber); alt != "" {
		paths = append(paths, "/Documents/Leads/Lead_"+alt)
	}

	for _, path := range paths {
		item, err := c.itemByPath(ctx, path)
		if err == nil {
			return item, nil
		}
		if !IsNotFound(err) {
			return Item{}, err
		}
	}

	release, err := c.locker.Acquire(ctx, caseNumber)
	if err != nil {
		return Item{}, err
	}
	defer release()

	// Re-check the canonical path: the previous lock holder may have
	// provisioned it while we waited.
	if item, err := c.itemByPath(ctx, paths[0]); err == nil {
		return item, nil
	} else if !IsNotFound(err) {
		return Item{}, err
	}

	return c.ensureFolderPath(ctx, "Leads", "Lead_"+caseNumber)
}

// UploadFile puts file content into the case folder. Same-named files are
// overwritten, matching the remote store's default PUT-to-path behavior.
func (c *Client) UploadFile(ctx context.Context, caseNumber, filename string, content []byte) (Item, error) {
	folder, err := c.EnsureLeadFolder(ctx, caseNumber)
	if err != nil {
		return Item{}, err
	}
	return c.putContent(ctx, folder.ID, filename, content)
}

// UploadEmailAttachment stores an inbound attachment under a dated folder
// outside any case, for triage before a case is known.
func (c *Client) UploadEmailAttachment(ctx context.Context, filename string, content []byte) (Item, error) {
	day := c.now().UTC().Format("2006-01-02")
	folder, err := c.ensureFolderPath(ctx, "EmailAttachments", day)
	if err != nil {
		return Item{}, err
	}
	return c.putContent(ctx, folder.ID, filename, content)
}

func (c *Client) putContent(ctx context.Context, folderID, filename string, content []byte) (Item, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Item{}, err
	}
	var item Item
	var graphErr graphError
	resp, err := req.
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(content).
		SetResult(&item).
		SetError(&graphErr).
		Put("/drives/" + c.driveID + "/items/" + folderID + ":/" + url.PathEscape(util.SanitizeFileName(filename)) + ":/content")
	if err != nil {
		return Item{}, fmt.Errorf("upload file %s: %w", filename, err)
	}
	if resp.IsError() {
		return Item{}, remoteErrorFrom(resp, &graphErr)
	}
	return item, nil
}

// CreateShareLink requests an organization-scoped view link for an item.
// Callers treat failure as non-fatal and fall back to the item's webUrl.
func (c *Client) CreateShareLink(ctx context.Context, itemID string) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var parsed shareLinkResponse
	var graphErr graphError
	resp, err := req.
		SetBody(map[string]string{"type": "view", "scope": "organization"}).
		SetResult(&parsed).
		SetError(&graphErr).
		Post("/drives/" + c.driveID + "/items/" + itemID + "/createLink")
	if err != nil {
		return "", fmt.Errorf("create share link: %w", err)
	}
	if resp.IsError() {
		return "", remoteErrorFrom(resp, &graphErr)
	}
	return parsed.Link.WebURL, nil
}

// ListFiles enumerates a folder's children, keeping file items only.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]Item, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var parsed childrenResponse
	var graphErr graphError
	resp, err := req.
		SetQueryParam("$top", "200").
		SetResult(&parsed).
		SetError(&graphErr).
		Get("/drives/" + c.driveID + "/items/" + folderID + "/children")
	if err != nil {
		return nil, fmt.Errorf("list folder children: %w", err)
	}
	if resp.IsError() {
		return nil, remoteErrorFrom(resp, &graphErr)
	}

	files := make([]Item, 0, len(parsed.Value))
	for _, item := range parsed.Value {
		if item.Folder != nil || item.File == nil {
			continue
		}
		files = append(files, item)
	}
	return files, nil
}

func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return "/" + strings.Join(segments, "/")
}
