package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call

	upload struct {
		folder      string
		filename    string
		contentType string
		content     string
	}
}

func (f *fakeAPI) record(c echo.Context) {
	var body map[string]any
	if c.Request().Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(c.Request().Body).Decode(&body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{
		Method: c.Request().Method,
		Path:   c.Request().URL.Path,
		Query:  c.Request().URL.RawQuery,
		Body:   body,
	})
}

func newFakeServer(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()

	api := &fakeAPI{}
	e := echo.New()
	g := e.Group("/api/v1/storages")

	g.GET("/folder/", func(c echo.Context) error {
		api.record(c)
		if c.QueryParam("path") == "mofreitas/clientes/bob/b1" {
			return c.JSON(http.StatusOK, map[string]any{"count": 1, "results": []any{map[string]any{"id": 42}}})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	})
	g.POST("/folder/create_folder_with_email/", func(c echo.Context) error {
		api.record(c)
		return c.JSON(http.StatusCreated, map[string]any{"id": "7c9e6679"})
	})
	g.PATCH("/folder/:id/", func(c echo.Context) error {
		api.record(c)
		return c.JSON(http.StatusOK, map[string]any{})
	})
	g.DELETE("/folder/:id/", func(c echo.Context) error {
		api.record(c)
		if c.Param("id") == "500" {
			return c.String(http.StatusInternalServerError, "boom")
		}
		return c.NoContent(http.StatusNoContent)
	})
	g.GET("/file/", func(c echo.Context) error {
		api.record(c)
		// the API filters on the name without its extension
		switch c.QueryParam("file_name") {
		case "report":
			return c.JSON(http.StatusOK, map[string]any{"count": 2, "results": []any{
				map[string]any{"id": 1, "file_name": "report.docx"},
				map[string]any{"id": 2, "file_name": "report.pdf"},
			}})
		case "legacy":
			return c.JSON(http.StatusOK, map[string]any{"count": 1, "results": []any{
				map[string]any{"id": 5},
			}})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	})
	g.POST("/file/", func(c echo.Context) error {
		api.record(c)
		fh, err := c.FormFile("file")
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		src, err := fh.Open()
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		b, _ := io.ReadAll(src)

		api.mu.Lock()
		api.upload.folder = c.FormValue("folder")
		api.upload.filename = fh.Filename
		api.upload.contentType = fh.Header.Get("Content-Type")
		api.upload.content = string(b)
		api.mu.Unlock()

		return c.JSON(http.StatusCreated, map[string]any{"id": 99})
	})
	g.DELETE("/file/:id/", func(c echo.Context) error {
		api.record(c)
		return c.NoContent(http.StatusNoContent)
	})
	g.PATCH("/file/:id/update_file_name/", func(c echo.Context) error {
		api.record(c)
		return c.JSON(http.StatusOK, map[string]any{})
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Options{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second})
	require.NoError(t, err)

	return api, client
}

func TestFindFolder(t *testing.T) {
	api, client := newFakeServer(t)
	ctx := context.Background()

	id, ok, err := client.FindFolder(ctx, "mofreitas/clientes/bob/b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ID("42"), id)

	_, ok, err = client.FindFolder(ctx, "mofreitas/clientes/bob/b2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, api.calls, 2)
	assert.Equal(t, "/api/v1/storages/folder/", api.calls[0].Path)
	assert.Equal(t, "path=mofreitas%2Fclientes%2Fbob%2Fb1", api.calls[0].Query)
}

func TestCreateFolderSendsNullParent(t *testing.T) {
	api, client := newFakeServer(t)

	id, err := client.CreateFolder(context.Background(), "b1", "", Tenant{Email: "bob", Budget: "b1"})
	require.NoError(t, err)
	assert.Equal(t, ID("7c9e6679"), id)

	require.Len(t, api.calls, 1)
	body := api.calls[0].Body
	assert.Equal(t, "b1", body["name"])
	assert.Equal(t, "bob", body["email"])
	assert.Equal(t, "b1", body["budget"])
	assert.Contains(t, body, "parent")
	assert.Nil(t, body["parent"])
}

func TestFolderMutations(t *testing.T) {
	api, client := newFakeServer(t)
	ctx := context.Background()

	require.NoError(t, client.RenameFolder(ctx, "5", "Docs"))
	require.NoError(t, client.ReparentFolder(ctx, "5", "42"))
	require.NoError(t, client.DeleteFolder(ctx, "5"))

	require.Len(t, api.calls, 3)
	assert.Equal(t, http.MethodPatch, api.calls[0].Method)
	assert.Equal(t, "/api/v1/storages/folder/5/", api.calls[0].Path)
	assert.Equal(t, map[string]any{"name": "Docs"}, api.calls[0].Body)
	assert.Equal(t, map[string]any{"parent": "42"}, api.calls[1].Body)
	assert.Equal(t, http.MethodDelete, api.calls[2].Method)
}

func TestNonSuccessStatusIsUnavailable(t *testing.T) {
	_, client := newFakeServer(t)

	err := client.DeleteFolder(context.Background(), "500")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	statusErr, ok := errors.AsType[*StatusError](err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	client, err := New(context.Background(), Options{BaseURL: "http://127.0.0.1:1/api", Timeout: time.Second})
	require.NoError(t, err)

	_, _, err = client.FindFolder(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindFilePrefersExactName(t *testing.T) {
	api, client := newFakeServer(t)

	id, ok, err := client.FindFile(context.Background(), "mofreitas/clientes/bob/b1/report.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ID("2"), id)

	require.Len(t, api.calls, 2)
	assert.Equal(t, "/api/v1/storages/file/", api.calls[1].Path)
	assert.Equal(t, "file_name=report&folder=42", api.calls[1].Query)
}

func TestFindFileSameStemOtherExtension(t *testing.T) {
	_, client := newFakeServer(t)

	_, ok, err := client.FindFile(context.Background(), "mofreitas/clientes/bob/b1/report.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindFileWithoutNamesUsesStemMatch(t *testing.T) {
	_, client := newFakeServer(t)

	id, ok, err := client.FindFile(context.Background(), "mofreitas/clientes/bob/b1/legacy.bin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ID("5"), id)
}

func TestMatchFile(t *testing.T) {
	tests := []struct {
		name    string
		entries []FileEntry
		want    ID
		found   bool
	}{
		{"exact among siblings", []FileEntry{{ID: "1", FileName: "a.docx"}, {ID: "2", FileName: "a.pdf"}}, "2", true},
		{"only other extension", []FileEntry{{ID: "7", FileName: "a.txt"}}, "", false},
		{"names omitted", []FileEntry{{ID: "3"}, {ID: "4"}}, "3", true},
		{"no results", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := MatchFile("a.pdf", tt.entries)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestFindFileMissingFolder(t *testing.T) {
	api, client := newFakeServer(t)

	_, ok, err := client.FindFile(context.Background(), "mofreitas/clientes/bob/b9/report.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, api.calls, 1)
}

func TestUploadFile(t *testing.T) {
	api, client := newFakeServer(t)

	local := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0644))

	id, err := client.UploadFile(context.Background(), local, "42")
	require.NoError(t, err)
	assert.Equal(t, ID("99"), id)

	assert.Equal(t, "42", api.upload.folder)
	assert.Equal(t, "notes.txt", api.upload.filename)
	assert.Contains(t, api.upload.contentType, "text/plain")
	assert.Equal(t, "hello", api.upload.content)
}

func TestRenameAndDeleteFile(t *testing.T) {
	api, client := newFakeServer(t)
	ctx := context.Background()

	require.NoError(t, client.RenameFile(ctx, "9", "final.pdf"))
	require.NoError(t, client.DeleteFile(ctx, "9"))

	require.Len(t, api.calls, 2)
	assert.Equal(t, "/api/v1/storages/file/9/update_file_name/", api.calls[0].Path)
	assert.Equal(t, map[string]any{"file_name": "final.pdf"}, api.calls[0].Body)
	assert.Equal(t, "/api/v1/storages/file/9/", api.calls[1].Path)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), Options{BaseURL: "not a url"})
	assert.Error(t, err)
}
