package reconcile

import (
	"context"
	"errors"
	"filemirror/internal/logger"
	"filemirror/internal/pathcodec"
	"filemirror/internal/util"
	"fmt"

	"go.uber.org/zap"
)

// ErrAlreadyMirrored is returned by Files.Create when the remote copy
// exists and no upload was made.
var ErrAlreadyMirrored = errors.New("already mirrored")

type Files struct {
	remote  Remote
	folders *Folders
}

func NewFiles(r Remote, folders *Folders) *Files {
	return &Files{remote: r, folders: folders}
}

// Create uploads the local file behind p into its remote folder. A missing
// folder is created once through the folder reconciler; if that fails the
// upload is abandoned.
func (f *Files) Create(ctx context.Context, p pathcodec.TenantPath) error {
	parent := p.Parent()
	if parent.IsTenantRoot() {
		return fmt.Errorf("%w: file %s sits above the top level folder", ErrNotFolderTarget, p)
	}

	if !util.IsRegularFile(p.Local) {
		return fmt.Errorf("%w: %s is not a regular file locally", ErrNotFound, p.Local)
	}

	folderID, ok, err := f.remote.FindFolder(ctx, parent.String())
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", parent, err)
	}

	if !ok {
		logger.Log.Info("file folder is not mirrored yet, creating it",
			zap.String("path", parent.String()))

		folderID, err = f.folders.Create(ctx, parent)
		if err != nil {
			return fmt.Errorf("failed to create folder for %s: %w", p, err)
		}
	} else {
		_, exists, err := f.remote.FindFile(ctx, p.String())
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", p, err)
		}
		if exists {
			return ErrAlreadyMirrored
		}
	}

	id, err := f.remote.UploadFile(ctx, p.Local, folderID)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}

	logger.Log.Info("uploaded file",
		zap.String("path", p.String()),
		zap.String("id", id.String()))

	return nil
}

// Update renames the remote file found at oldPath. Only the name is
// patched; a file whose folder changed keeps its remote folder.
func (f *Files) Update(ctx context.Context, oldPath, newPath pathcodec.TenantPath) error {
	id, ok, err := f.remote.FindFile(ctx, oldPath.String())
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", oldPath, err)
	}
	if !ok {
		return fmt.Errorf("%w: file %s", ErrNotFound, oldPath)
	}

	if !oldPath.Parent().Equal(newPath.Parent()) {
		logger.Log.Warn("file changed folder, only the name is mirrored",
			zap.String("from", oldPath.String()),
			zap.String("to", newPath.String()))
	}

	if oldPath.Name() == newPath.Name() {
		return nil
	}

	if err := f.remote.RenameFile(ctx, id, newPath.Name()); err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldPath, err)
	}

	logger.Log.Info("renamed file",
		zap.String("from", oldPath.String()),
		zap.String("to", newPath.Name()))

	return nil
}

// Delete removes the remote file at p. A missing file yields ErrNotFound.
func (f *Files) Delete(ctx context.Context, p pathcodec.TenantPath) error {
	id, ok, err := f.remote.FindFile(ctx, p.String())
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", p, err)
	}
	if !ok {
		return fmt.Errorf("%w: file %s", ErrNotFound, p)
	}

	if err := f.remote.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}

	logger.Log.Info("deleted file", zap.String("path", p.String()))
	return nil
}
