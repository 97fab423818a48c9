package reconcile

import (
	"context"
	"filemirror/internal/remote"
)

// Remote is the subset of the storage API the reconcilers drive.
// *remote.Client implements it.
type Remote interface {
	FindFolder(ctx context.Context, path string) (remote.ID, bool, error)
	CreateFolder(ctx context.Context, name string, parent remote.ID, tenant remote.Tenant) (remote.ID, error)
	RenameFolder(ctx context.Context, id remote.ID, name string) error
	ReparentFolder(ctx context.Context, id, parent remote.ID) error
	DeleteFolder(ctx context.Context, id remote.ID) error

	FindFile(ctx context.Context, path string) (remote.ID, bool, error)
	UploadFile(ctx context.Context, localPath string, folder remote.ID) (remote.ID, error)
	RenameFile(ctx context.Context, id remote.ID, name string) error
	DeleteFile(ctx context.Context, id remote.ID) error
}

var _ Remote = (*remote.Client)(nil)
