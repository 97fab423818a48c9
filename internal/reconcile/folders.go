// Package reconcile turns decoded local paths into remote folder and file
// mutations. Nothing is cached between calls: every operation re-resolves
// the remote tree by path, so events may be replayed or reordered freely.
package reconcile

import (
	"context"
	"errors"
	"filemirror/internal/logger"
	"filemirror/internal/pathcodec"
	"filemirror/internal/remote"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Ancestor is the deepest folder above a target that already exists remotely.
type Ancestor struct {
	Path pathcodec.TenantPath
	ID   remote.ID
}

type Folders struct {
	remote Remote
	group  singleflight.Group
}

func NewFolders(r Remote) *Folders {
	return &Folders{remote: r}
}

// ResolveAncestor walks from p's parent toward the tenant root and returns
// the first folder that resolves. The tenant root itself is never looked up;
// reaching it means nothing above p is mirrored yet.
func (f *Folders) ResolveAncestor(ctx context.Context, p pathcodec.TenantPath) (Ancestor, bool, error) {
	for depth := p.Depth() - 1; depth > p.TenantRootDepth(); depth-- {
		candidate := p.Prefix(depth)

		id, ok, err := f.remote.FindFolder(ctx, candidate.String())
		if err != nil {
			return Ancestor{}, false, fmt.Errorf("failed to look up %s: %w", candidate, err)
		}
		if ok {
			return Ancestor{Path: candidate, ID: id}, true, nil
		}
	}

	return Ancestor{}, false, nil
}

// Create mirrors p and every missing folder above it, top-down, and returns
// the remote id of p. Existing folders are reused, so a second call for the
// same path performs lookups only. Concurrent calls for one path share a
// single execution.
func (f *Folders) Create(ctx context.Context, p pathcodec.TenantPath) (remote.ID, error) {
	if p.IsTenantRoot() {
		return "", fmt.Errorf("%w: %s", ErrNotFolderTarget, p)
	}

	v, err, _ := f.group.Do(p.String(), func() (any, error) {
		return f.create(ctx, p)
	})
	if err != nil {
		return "", err
	}

	return v.(remote.ID), nil
}

func (f *Folders) create(ctx context.Context, p pathcodec.TenantPath) (remote.ID, error) {
	tenant := remote.Tenant{Email: p.Email, Budget: p.Budget}

	var created []string
	cascade := func(failed pathcodec.TenantPath, err error) error {
		return &CascadeError{Target: p.String(), Failed: failed.String(), Created: created, Err: err}
	}

	// one pass to create the top level folder, one to fill in the rest
	for attempt := range 2 {
		anc, ok, err := f.ResolveAncestor(ctx, p)
		if err != nil {
			return "", cascade(p, err)
		}

		if !ok {
			if attempt > 0 {
				break
			}

			top := p.TopLevel()
			id, made, err := f.ensureTopLevel(ctx, top, tenant)
			if err != nil {
				return "", cascade(top, err)
			}
			if made {
				created = append(created, top.String())
			}

			if p.IsTopLevel() {
				return id, nil
			}
			continue
		}

		parent := anc.ID
		for depth := anc.Path.Depth() + 1; depth <= p.Depth(); depth++ {
			current := p.Prefix(depth)

			id, exists, err := f.remote.FindFolder(ctx, current.String())
			if err != nil {
				return "", cascade(current, err)
			}

			if !exists {
				id, err = f.remote.CreateFolder(ctx, current.Name(), parent, tenant)
				if err != nil {
					return "", cascade(current, err)
				}
				created = append(created, current.String())

				logger.Log.Info("created folder",
					zap.String("path", current.String()),
					zap.String("id", id.String()))
			}

			parent = id
		}

		return parent, nil
	}

	return "", fmt.Errorf("%w: %s", ErrDepthExceeded, p)
}

type topLevel struct {
	id   remote.ID
	made bool
}

// ensureTopLevel looks up and, if needed, creates the parentless folder
// right below the tenant email. Siblings created concurrently share it.
func (f *Folders) ensureTopLevel(ctx context.Context, top pathcodec.TenantPath, tenant remote.Tenant) (remote.ID, bool, error) {
	v, err, _ := f.group.Do("top:"+top.String(), func() (any, error) {
		id, exists, err := f.remote.FindFolder(ctx, top.String())
		if err != nil {
			return nil, err
		}
		if exists {
			return topLevel{id: id}, nil
		}

		logger.Log.Info("no mirrored ancestor, creating top level folder",
			zap.String("path", top.String()))

		id, err = f.remote.CreateFolder(ctx, top.Name(), "", tenant)
		if err != nil {
			return nil, err
		}
		return topLevel{id: id, made: true}, nil
	})
	if err != nil {
		return "", false, err
	}

	t := v.(topLevel)
	return t.id, t.made, nil
}

// Update mirrors a local folder rename or move from oldPath to newPath.
// Missing folders on either side are created first and the step retried;
// each retry strictly shrinks the set of missing folders, and the loop is
// bounded by the combined path depth.
func (f *Folders) Update(ctx context.Context, oldPath, newPath pathcodec.TenantPath) error {
	if oldPath.Equal(newPath) {
		return nil
	}

	if !oldPath.SameTenant(newPath) {
		logger.Log.Info("folder moved across tenants, recreating",
			zap.String("from", oldPath.String()),
			zap.String("to", newPath.String()))

		if err := f.Delete(ctx, oldPath); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		_, err := f.Create(ctx, newPath)
		return err
	}

	if oldPath.IsTenantRoot() || newPath.IsTenantRoot() {
		return fmt.Errorf("%w: %s -> %s", ErrNotFolderTarget, oldPath, newPath)
	}

	for range oldPath.Depth() + newPath.Depth() {
		folderID, ok, err := f.remote.FindFolder(ctx, oldPath.String())
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", oldPath, err)
		}
		if !ok {
			logger.Log.Info("moved folder is not mirrored yet, creating it first",
				zap.String("path", oldPath.String()))

			if _, err := f.Create(ctx, oldPath); err != nil {
				return err
			}
			continue
		}

		var parentID remote.ID
		if !newPath.IsTopLevel() {
			newParent := newPath.Parent()

			parentID, ok, err = f.remote.FindFolder(ctx, newParent.String())
			if err != nil {
				return fmt.Errorf("failed to look up %s: %w", newParent, err)
			}
			if !ok {
				if _, err := f.Create(ctx, newParent); err != nil {
					return err
				}
				continue
			}
		}

		common := pathcodec.CommonPrefix(oldPath, newPath)
		if oldPath.Depth() == newPath.Depth() && common == newPath.Depth()-1 {
			return f.rename(ctx, folderID, oldPath, newPath)
		}

		return f.move(ctx, folderID, parentID, oldPath, newPath, common)
	}

	return fmt.Errorf("%w: %s -> %s", ErrDepthExceeded, oldPath, newPath)
}

func (f *Folders) rename(ctx context.Context, id remote.ID, oldPath, newPath pathcodec.TenantPath) error {
	if err := f.remote.RenameFolder(ctx, id, newPath.Name()); err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldPath, err)
	}

	logger.Log.Info("renamed folder",
		zap.String("from", oldPath.String()),
		zap.String("to", newPath.Name()))

	return nil
}

func (f *Folders) move(ctx context.Context, id, parentID remote.ID, oldPath, newPath pathcodec.TenantPath, common int) error {
	logger.Log.Info("moving folder",
		zap.String("from", oldPath.String()),
		zap.String("to", newPath.String()),
		zap.String("diverges_at", oldPath.Prefix(common).String()))

	if err := f.remote.ReparentFolder(ctx, id, parentID); err != nil {
		return fmt.Errorf("failed to reparent %s: %w", oldPath, err)
	}

	if oldPath.Name() != newPath.Name() {
		if err := f.remote.RenameFolder(ctx, id, newPath.Name()); err != nil {
			return fmt.Errorf("failed to rename %s after move: %w", oldPath, err)
		}
	}

	// A top level folder has no remote parent chain, so a second node can
	// survive at the old path after the move. Drop it.
	if oldPath.IsTopLevel() {
		staleID, ok, err := f.remote.FindFolder(ctx, oldPath.String())
		if err != nil {
			return fmt.Errorf("failed to look up %s after move: %w", oldPath, err)
		}
		if ok && staleID != id {
			logger.Log.Warn("deleting stale folder left at old path",
				zap.String("path", oldPath.String()),
				zap.String("id", staleID.String()))

			if err := f.remote.DeleteFolder(ctx, staleID); err != nil {
				return fmt.Errorf("failed to delete stale %s: %w", oldPath, err)
			}
		}
	}

	return nil
}

// Delete removes the folder at p. A folder that is already gone yields
// ErrNotFound and no delete call.
func (f *Folders) Delete(ctx context.Context, p pathcodec.TenantPath) error {
	id, ok, err := f.remote.FindFolder(ctx, p.String())
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", p, err)
	}
	if !ok {
		return fmt.Errorf("%w: folder %s", ErrNotFound, p)
	}

	if err := f.remote.DeleteFolder(ctx, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}

	logger.Log.Info("deleted folder", zap.String("path", p.String()))
	return nil
}
