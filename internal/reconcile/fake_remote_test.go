package reconcile

import (
	"context"
	"filemirror/internal/pathcodec"
	"filemirror/internal/remote"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var codec = pathcodec.New("mofreitas", "clientes")

type fakeFolder struct {
	name   string
	parent remote.ID
	email  string
}

type fakeFile struct {
	name   string
	folder remote.ID
}

// fakeRemote is an in-memory storage tree addressed the same way as the
// real API: folders by their full tenant-relative path.
type fakeRemote struct {
	mu      sync.Mutex
	next    int
	folders map[remote.ID]*fakeFolder
	files   map[remote.ID]*fakeFile
	calls   []string
	fail    map[string]error

	afterReparent func(r *fakeRemote)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		folders: make(map[remote.ID]*fakeFolder),
		files:   make(map[remote.ID]*fakeFile),
		fail:    make(map[string]error),
	}
}

func (r *fakeRemote) newID() remote.ID {
	r.next++
	return remote.ID(strconv.Itoa(r.next))
}

func (r *fakeRemote) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *fakeRemote) pathOf(id remote.ID) string {
	f, ok := r.folders[id]
	if !ok {
		// parent was deleted; the subtree is unreachable
		return "<orphan>"
	}
	if f.parent.IsZero() {
		return "mofreitas/clientes/" + f.email + "/" + f.name
	}

	return r.pathOf(f.parent) + "/" + f.name
}

func (r *fakeRemote) lookup(p string) (remote.ID, bool) {
	for id := range r.folders {
		if r.pathOf(id) == p {
			return id, true
		}
	}

	return "", false
}

// mutations drops lookups from the call log.
func (r *fakeRemote) mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, c := range r.calls {
		if !strings.HasPrefix(c, "Find") {
			out = append(out, c)
		}
	}

	return out
}

func (r *fakeRemote) idOf(t *testing.T, p string) remote.ID {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.lookup(p)
	require.True(t, ok, "no folder at %s", p)
	return id
}

func (r *fakeRemote) has(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.lookup(p)
	return ok
}

// seed creates every folder of p without recording calls.
func (r *fakeRemote) seed(p pathcodec.TenantPath) remote.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var parent remote.ID
	for depth := p.TenantRootDepth() + 1; depth <= p.Depth(); depth++ {
		sub := p.Prefix(depth)
		id, ok := r.lookup(sub.String())
		if !ok {
			id = r.newID()
			r.folders[id] = &fakeFolder{name: sub.Name(), parent: parent, email: p.Email}
		}
		parent = id
	}

	return parent
}

func (r *fakeRemote) seedFile(p pathcodec.TenantPath) remote.ID {
	folder := r.seed(p.Parent())

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	r.files[id] = &fakeFile{name: p.Name(), folder: folder}
	return id
}

func (r *fakeRemote) FindFolder(_ context.Context, p string) (remote.ID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("FindFolder %s", p)
	if err := r.fail["FindFolder"]; err != nil {
		return "", false, err
	}

	id, ok := r.lookup(p)
	return id, ok, nil
}

func (r *fakeRemote) CreateFolder(_ context.Context, name string, parent remote.ID, tenant remote.Tenant) (remote.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("CreateFolder %s parent=%s", name, parent)
	if err := r.fail["CreateFolder "+name]; err != nil {
		return "", err
	}

	id := r.newID()
	r.folders[id] = &fakeFolder{name: name, parent: parent, email: tenant.Email}
	return id, nil
}

func (r *fakeRemote) RenameFolder(_ context.Context, id remote.ID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("RenameFolder %s name=%s", id, name)
	r.folders[id].name = name
	return nil
}

func (r *fakeRemote) ReparentFolder(_ context.Context, id, parent remote.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("ReparentFolder %s parent=%s", id, parent)
	r.folders[id].parent = parent
	if r.afterReparent != nil {
		r.afterReparent(r)
	}
	return nil
}

func (r *fakeRemote) DeleteFolder(_ context.Context, id remote.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("DeleteFolder %s", id)
	delete(r.folders, id)
	return nil
}

func (r *fakeRemote) FindFile(_ context.Context, p string) (remote.ID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("FindFile %s", p)

	folder, ok := r.lookup(path.Dir(p))
	if !ok {
		return "", false, nil
	}

	// the API filters on the name without its extension
	name := path.Base(p)
	stem := strings.TrimSuffix(name, path.Ext(name))

	var entries []remote.FileEntry
	for id, f := range r.files {
		if f.folder == folder && strings.TrimSuffix(f.name, path.Ext(f.name)) == stem {
			entries = append(entries, remote.FileEntry{ID: id, FileName: f.name})
		}
	}

	id, ok := remote.MatchFile(name, entries)
	return id, ok, nil
}

func (r *fakeRemote) UploadFile(_ context.Context, localPath string, folder remote.ID) (remote.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := filepath.Base(localPath)
	r.record("UploadFile %s folder=%s", name, folder)

	id := r.newID()
	r.files[id] = &fakeFile{name: name, folder: folder}
	return id, nil
}

func (r *fakeRemote) RenameFile(_ context.Context, id remote.ID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("RenameFile %s name=%s", id, name)
	r.files[id].name = name
	return nil
}

func (r *fakeRemote) DeleteFile(_ context.Context, id remote.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("DeleteFile %s", id)
	delete(r.files, id)
	return nil
}

func decode(t *testing.T, abs string) pathcodec.TenantPath {
	t.Helper()

	p, err := codec.Decode(abs)
	require.NoError(t, err)
	return p
}
