package daemon

import (
	"context"
	"filemirror/internal/model"
	"filemirror/internal/pathcodec"
	"filemirror/internal/pipeline"
	"filemirror/internal/reconcile"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codec = pathcodec.New("mofreitas", "clientes")

func tenantDir(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "mofreitas", "clientes", "bob", "budgetX")
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestDispatchFolderAndFileCreate(t *testing.T) {
	r := newMemRemote()
	d := NewDispatcher(codec, r, 1)
	ctx := context.Background()

	dir := tenantDir(t)
	docs := filepath.Join(dir, "Docs")
	require.NoError(t, os.Mkdir(docs, 0755))
	file := filepath.Join(docs, "report.pdf")
	require.NoError(t, os.WriteFile(file, []byte("pdf"), 0644))

	res := d.Handle(ctx, model.NewEvent(model.EventCreated, docs, true))
	require.NoError(t, res.Err)
	assert.Equal(t, model.ActionCreateFolder, res.Action)
	assert.Equal(t, "mofreitas/clientes/bob/budgetX/Docs", res.Path)
	assert.True(t, r.hasFolder("mofreitas/clientes/bob/budgetX/Docs"))

	res = d.Handle(ctx, model.NewEvent(model.EventModified, file, false))
	require.NoError(t, res.Err)
	assert.Equal(t, model.ActionCreateFile, res.Action)
	assert.True(t, r.hasFile("mofreitas/clientes/bob/budgetX/Docs/report.pdf"))

	// a repeated notification is settled without a second upload
	res = d.Handle(ctx, model.NewEvent(model.EventModified, file, false))
	require.NoError(t, res.Err)
	assert.Equal(t, model.ActionSkip, res.Action)
	assert.Equal(t, 1, r.uploadCount())
}

func TestDispatchMoves(t *testing.T) {
	r := newMemRemote()
	d := NewDispatcher(codec, r, 1)
	ctx := context.Background()
	dir := tenantDir(t)

	require.NoError(t, d.Handle(ctx, model.NewEvent(model.EventCreated, filepath.Join(dir, "A", "B"), true)).Err)

	res := d.Handle(ctx, model.NewMoveEvent(filepath.Join(dir, "A", "B"), filepath.Join(dir, "C"), true))
	require.NoError(t, res.Err)
	assert.Equal(t, model.ActionUpdateFolder, res.Action)
	assert.True(t, r.hasFolder("mofreitas/clientes/bob/budgetX/C"))
	assert.False(t, r.hasFolder("mofreitas/clientes/bob/budgetX/A/B"))

	res = d.Handle(ctx, model.NewMoveEvent(filepath.Join(dir, "x.txt"), filepath.Join(dir, "y.txt"), false))
	assert.Equal(t, model.ActionUpdateFile, res.Action)
	assert.ErrorIs(t, res.Err, reconcile.ErrNotFound)
}

func TestDispatchToleratesMissingOnDelete(t *testing.T) {
	d := NewDispatcher(codec, newMemRemote(), 1)
	ctx := context.Background()
	dir := tenantDir(t)

	res := d.Handle(ctx, model.NewEvent(model.EventDeleted, filepath.Join(dir, "gone"), true))
	assert.NoError(t, res.Err)
	assert.Equal(t, model.ActionSkip, res.Action)

	res = d.Handle(ctx, model.NewEvent(model.EventDeleted, filepath.Join(dir, "gone.txt"), false))
	assert.NoError(t, res.Err)
	assert.Equal(t, model.ActionSkip, res.Action)
}

func TestDispatchRejectsUndecodablePath(t *testing.T) {
	d := NewDispatcher(codec, newMemRemote(), 1)

	res := d.Handle(context.Background(), model.NewEvent(model.EventCreated, "/tmp/elsewhere", true))
	assert.ErrorIs(t, res.Err, pathcodec.ErrPathOutsideRoot)
}

func TestDispatcherRunDrainsQueue(t *testing.T) {
	r := newMemRemote()
	d := NewDispatcher(codec, r, 3)
	dir := tenantDir(t)

	queue := pipeline.NewQueue[model.WatchEvent]()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		queue.Push(model.NewEvent(model.EventCreated, filepath.Join(dir, name), true))
	}
	queue.Close()

	results := make(chan model.SyncResult, 5)
	require.NoError(t, d.Run(context.Background(), queue, results))
	close(results)

	var n int
	for res := range results {
		assert.NoError(t, res.Err)
		n++
	}
	assert.Equal(t, 5, n)
	assert.True(t, r.hasFolder("mofreitas/clientes/bob/budgetX/e"))
}
