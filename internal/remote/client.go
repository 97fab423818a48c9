// Package remote talks to the storage REST API that mirrors the watched
// tree. Every method is one HTTP round trip; ordering and retries are the
// caller's concern.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"filemirror/internal/logger"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxErrorBody = 512

type Options struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	TokenCache   string
	Timeout      time.Duration
}

type Client struct {
	base   string
	http   *http.Client
	tokens *cachedTokenSource
}

// New builds a client. When ClientID is empty requests are sent without
// authorization, which is what local test servers expect.
func New(ctx context.Context, opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", opts.BaseURL)
	}

	c := &Client{
		base: strings.TrimRight(u.String(), "/") + "/",
		http: &http.Client{Timeout: opts.Timeout},
	}

	if opts.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       opts.Scopes,
		}
		// cc.Token fetches on every call; caching is the cached source's job
		fetch := tokenFunc(func() (*oauth2.Token, error) { return cc.Token(ctx) })
		c.tokens = newCachedTokenSource(opts.TokenCache, credentialsKey(opts.ClientID, opts.TokenURL), fetch)

		// no ReuseTokenSource in between, so Invalidate takes effect
		c.http.Transport = &oauth2.Transport{Source: c.tokens, Base: http.DefaultTransport}
	}

	return c, nil
}

// FileEntry is one row of a file lookup.
type FileEntry struct {
	ID       ID     `json:"id"`
	FileName string `json:"file_name"`
}

type listResponse struct {
	Count   int         `json:"count"`
	Results []FileEntry `json:"results"`
}

type idResponse struct {
	ID ID `json:"id"`
}

// FindFolder looks up a folder by its tenant-relative path.
func (c *Client) FindFolder(ctx context.Context, folderPath string) (ID, bool, error) {
	q := url.Values{"path": {folderPath}}

	var res listResponse
	if err := c.doJSON(ctx, http.MethodGet, "storages/folder/", q, nil, &res); err != nil {
		return "", false, err
	}

	if len(res.Results) == 0 {
		return "", false, nil
	}

	return res.Results[0].ID, true, nil
}

func (c *Client) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	_, ok, err := c.FindFolder(ctx, folderPath)
	return ok, err
}

func (c *Client) CreateFolder(ctx context.Context, name string, parent ID, tenant Tenant) (ID, error) {
	body := map[string]any{
		"name":   name,
		"budget": tenant.Budget,
		"parent": parent,
		"email":  tenant.Email,
	}

	var res idResponse
	if err := c.doJSON(ctx, http.MethodPost, "storages/folder/create_folder_with_email/", nil, body, &res); err != nil {
		return "", err
	}

	return res.ID, nil
}

func (c *Client) RenameFolder(ctx context.Context, id ID, name string) error {
	return c.doJSON(ctx, http.MethodPatch, "storages/folder/"+url.PathEscape(id.String())+"/", nil,
		map[string]any{"name": name}, nil)
}

// ReparentFolder moves a folder under parent. The zero ID detaches it to
// the top level.
func (c *Client) ReparentFolder(ctx context.Context, id, parent ID) error {
	return c.doJSON(ctx, http.MethodPatch, "storages/folder/"+url.PathEscape(id.String())+"/", nil,
		map[string]any{"parent": parent}, nil)
}

func (c *Client) DeleteFolder(ctx context.Context, id ID) error {
	return c.doJSON(ctx, http.MethodDelete, "storages/folder/"+url.PathEscape(id.String())+"/", nil, nil, nil)
}

// FindFile resolves the containing folder of filePath first and then the
// file inside it. See MatchFile for how the stem-filtered results are
// narrowed down.
func (c *Client) FindFile(ctx context.Context, filePath string) (ID, bool, error) {
	folderID, ok, err := c.FindFolder(ctx, path.Dir(filePath))
	if err != nil || !ok {
		return "", false, err
	}

	name := path.Base(filePath)
	q := url.Values{
		"folder":    {folderID.String()},
		"file_name": {strings.TrimSuffix(name, path.Ext(name))},
	}

	var res listResponse
	if err := c.doJSON(ctx, http.MethodGet, "storages/file/", q, nil, &res); err != nil {
		return "", false, err
	}

	id, ok := MatchFile(name, res.Results)
	return id, ok, nil
}

// MatchFile picks name out of the results of a file lookup. The API filters
// on the name without its extension, so only an entry carrying the exact
// name counts; report.pdf never stands in for report.txt. Entries without
// any file_name fall back to the stem match.
func MatchFile(name string, entries []FileEntry) (ID, bool) {
	named := false
	for _, e := range entries {
		if e.FileName == name {
			return e.ID, true
		}
		if e.FileName != "" {
			named = true
		}
	}

	if named || len(entries) == 0 {
		return "", false
	}

	return entries[0].ID, true
}

// UploadFile streams localPath as a multipart form into folder.
func (c *Client) UploadFile(ctx context.Context, localPath string, folder ID) (ID, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, f, filepath.Base(localPath), folder))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "storages/file/", nil, pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res idResponse
	if err := c.send(req, &res); err != nil {
		return "", err
	}

	return res.ID, nil
}

func writeUpload(mw *multipart.Writer, r io.Reader, name string, folder ID) error {
	if err := mw.WriteField("folder", folder.String()); err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": name,
	}))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, r); err != nil {
		return err
	}

	return mw.Close()
}

func (c *Client) RenameFile(ctx context.Context, id ID, name string) error {
	return c.doJSON(ctx, http.MethodPatch, "storages/file/"+url.PathEscape(id.String())+"/update_file_name/", nil,
		map[string]any{"file_name": name}, nil)
}

func (c *Client) DeleteFile(ctx context.Context, id ID) error {
	return c.doJSON(ctx, http.MethodDelete, "storages/file/"+url.PathEscape(id.String())+"/", nil, nil, nil)
}

// Ping checks the API answers a folder lookup for root.
func (c *Client) Ping(ctx context.Context, root string) error {
	if _, err := c.FolderExists(ctx, root); err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.base, err)
	}

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, rel string, q url.Values, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, rel, q, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, rel string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.base + strings.TrimLeft(rel, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, req.Method, req.URL.Redacted(), err)
	}
	defer func(b io.ReadCloser) {
		_ = b.Close()
	}(resp.Body)

	logger.Log.Debug("remote call",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		logger.Log.Warn("bearer token rejected, dropping it",
			zap.String("url", req.URL.Redacted()))
		c.tokens.Invalidate()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: req.Method,
			URL:    req.URL.Redacted(),
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(b)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: failed to decode %s response: %w", ErrUnavailable, req.URL.Path, err)
	}

	return nil
}
