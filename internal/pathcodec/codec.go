// Package pathcodec turns local filesystem paths into tenant-relative paths
// understood by the remote storage API.
//
// A local path such as
//
//	/home/app/media/public/mofreitas/clientes/bob@example.com/budget-7/Docs
//
// decodes, with anchor "mofreitas" and tenant keyword "clientes", into the
// remote path "mofreitas/clientes/bob@example.com/budget-7/Docs" owned by
// tenant (bob@example.com, budget-7).
package pathcodec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathOutsideRoot = errors.New("path outside watched root")
	ErrTenantMissing   = fmt.Errorf("%w: tenant email or budget missing", ErrPathOutsideRoot)
)

type Codec struct {
	Anchor        string
	TenantKeyword string
}

func New(anchor, tenantKeyword string) Codec {
	return Codec{Anchor: anchor, TenantKeyword: tenantKeyword}
}

// Decode locates the anchor and tenant keyword in abs and returns the
// tenant-relative path. The tenant keyword must appear after the anchor,
// followed by at least the email and budget segments.
func (c Codec) Decode(abs string) (TenantPath, error) {
	parts := split(abs)

	anchorIdx := indexOf(parts, c.Anchor, 0)
	if anchorIdx < 0 {
		return TenantPath{}, fmt.Errorf("%w: %q has no %q segment", ErrPathOutsideRoot, abs, c.Anchor)
	}

	tenantIdx := indexOf(parts, c.TenantKeyword, anchorIdx)
	if tenantIdx < 0 {
		return TenantPath{}, fmt.Errorf("%w: %q has no %q segment", ErrPathOutsideRoot, abs, c.TenantKeyword)
	}

	if tenantIdx+2 >= len(parts) {
		return TenantPath{}, fmt.Errorf("%w: %q", ErrTenantMissing, abs)
	}

	segments := make([]string, len(parts)-anchorIdx)
	copy(segments, parts[anchorIdx:])

	return TenantPath{
		Local:     abs,
		Email:     parts[tenantIdx+1],
		Budget:    parts[tenantIdx+2],
		Segments:  segments,
		emailSlot: tenantIdx + 1 - anchorIdx,
	}, nil
}

// Valid reports whether abs decodes.
func (c Codec) Valid(abs string) bool {
	_, err := c.Decode(abs)
	return err == nil
}

func split(p string) []string {
	p = filepath.ToSlash(filepath.Clean(p))

	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}

	return parts
}

func indexOf(parts []string, want string, from int) int {
	for i := from; i < len(parts); i++ {
		if parts[i] == want {
			return i
		}
	}

	return -1
}
