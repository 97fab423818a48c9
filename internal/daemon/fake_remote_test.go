package daemon

import (
	"context"
	"filemirror/internal/remote"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// memRemote keeps folders and files keyed by their remote path.
type memRemote struct {
	mu      sync.Mutex
	next    int
	folders map[string]remote.ID
	files   map[string]remote.ID
	uploads []string
}

func newMemRemote() *memRemote {
	return &memRemote{
		folders: make(map[string]remote.ID),
		files:   make(map[string]remote.ID),
	}
}

func (m *memRemote) id() remote.ID {
	m.next++
	return remote.ID(strconv.Itoa(m.next))
}

func (m *memRemote) pathOf(id remote.ID) string {
	for p, fid := range m.folders {
		if fid == id {
			return p
		}
	}
	return ""
}

func (m *memRemote) hasFolder(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.folders[p]
	return ok
}

func (m *memRemote) hasFile(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.files[p]
	return ok
}

func (m *memRemote) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.uploads)
}

func (m *memRemote) FindFolder(_ context.Context, p string) (remote.ID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.folders[p]
	return id, ok, nil
}

func (m *memRemote) CreateFolder(_ context.Context, name string, parent remote.ID, tenant remote.Tenant) (remote.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := "mofreitas/clientes/" + tenant.Email
	if !parent.IsZero() {
		base = m.pathOf(parent)
	}

	id := m.id()
	m.folders[base+"/"+name] = id
	return id, nil
}

func (m *memRemote) move(from, to string) {
	for p, id := range m.folders {
		if p == from || strings.HasPrefix(p, from+"/") {
			delete(m.folders, p)
			m.folders[to+strings.TrimPrefix(p, from)] = id
		}
	}
	for p, id := range m.files {
		if strings.HasPrefix(p, from+"/") {
			delete(m.files, p)
			m.files[to+strings.TrimPrefix(p, from)] = id
		}
	}
}

func (m *memRemote) RenameFolder(_ context.Context, id remote.ID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.pathOf(id)
	m.move(from, path.Join(path.Dir(from), name))
	return nil
}

func (m *memRemote) ReparentFolder(_ context.Context, id, parent remote.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.pathOf(id)
	m.move(from, m.pathOf(parent)+"/"+path.Base(from))
	return nil
}

func (m *memRemote) DeleteFolder(_ context.Context, id remote.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.folders, m.pathOf(id))
	return nil
}

func (m *memRemote) FindFile(_ context.Context, p string) (remote.ID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// the API filters on the name without its extension
	stem := func(p string) string { return strings.TrimSuffix(p, path.Ext(p)) }

	var entries []remote.FileEntry
	for fp, id := range m.files {
		if path.Dir(fp) == path.Dir(p) && stem(path.Base(fp)) == stem(path.Base(p)) {
			entries = append(entries, remote.FileEntry{ID: id, FileName: path.Base(fp)})
		}
	}

	id, ok := remote.MatchFile(path.Base(p), entries)
	return id, ok, nil
}

func (m *memRemote) UploadFile(_ context.Context, localPath string, folder remote.ID) (remote.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.id()
	m.files[m.pathOf(folder)+"/"+filepath.Base(localPath)] = id
	m.uploads = append(m.uploads, filepath.Base(localPath))
	return id, nil
}

func (m *memRemote) RenameFile(_ context.Context, id remote.ID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, fid := range m.files {
		if fid == id {
			delete(m.files, p)
			m.files[path.Join(path.Dir(p), name)] = id
		}
	}
	return nil
}

func (m *memRemote) DeleteFile(_ context.Context, id remote.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, fid := range m.files {
		if fid == id {
			delete(m.files, p)
		}
	}
	return nil
}
