package pathcodec

import (
	"path/filepath"
	"strings"
)

// TenantPath is a decoded path. Segments starts at the anchor keyword and
// Local is the absolute local path the segments were decoded from.
type TenantPath struct {
	Local    string
	Email    string
	Budget   string
	Segments []string

	// index of the email segment inside Segments
	emailSlot int
}

func (p TenantPath) String() string {
	return strings.Join(p.Segments, "/")
}

func (p TenantPath) Name() string {
	if len(p.Segments) == 0 {
		return ""
	}

	return p.Segments[len(p.Segments)-1]
}

func (p TenantPath) Depth() int {
	return len(p.Segments)
}

// TenantRootDepth is the depth of referenceRoot/email.
func (p TenantPath) TenantRootDepth() int {
	return p.emailSlot + 1
}

func (p TenantPath) IsTenantRoot() bool {
	return p.Depth() <= p.TenantRootDepth()
}

// IsTopLevel reports whether p is the folder right below the tenant email,
// the one created remotely with no parent.
func (p TenantPath) IsTopLevel() bool {
	return p.Depth() == p.TenantRootDepth()+1
}

func (p TenantPath) Parent() TenantPath {
	return p.Prefix(p.Depth() - 1)
}

// Prefix returns the ancestor made of the first n segments.
func (p TenantPath) Prefix(n int) TenantPath {
	if n >= p.Depth() {
		return p
	}
	if n < 0 {
		n = 0
	}

	local := p.Local
	for i := p.Depth(); i > n; i-- {
		local = filepath.Dir(local)
	}

	segments := make([]string, n)
	copy(segments, p.Segments[:n])

	return TenantPath{
		Local:     local,
		Email:     p.Email,
		Budget:    p.Budget,
		Segments:  segments,
		emailSlot: p.emailSlot,
	}
}

func (p TenantPath) TenantRoot() TenantPath {
	return p.Prefix(p.TenantRootDepth())
}

func (p TenantPath) TopLevel() TenantPath {
	return p.Prefix(p.TenantRootDepth() + 1)
}

func (p TenantPath) Child(name string) TenantPath {
	segments := make([]string, len(p.Segments), len(p.Segments)+1)
	copy(segments, p.Segments)

	return TenantPath{
		Local:     filepath.Join(p.Local, name),
		Email:     p.Email,
		Budget:    p.Budget,
		Segments:  append(segments, name),
		emailSlot: p.emailSlot,
	}
}

func (p TenantPath) Equal(o TenantPath) bool {
	return CommonPrefix(p, o) == p.Depth() && p.Depth() == o.Depth()
}

// SameTenant reports whether both paths belong to one tenant email. The
// budget is a property of the top level folder and may differ.
func (p TenantPath) SameTenant(o TenantPath) bool {
	return p.Email == o.Email
}

// IsAncestorOf reports whether p is a strict ancestor of o.
func (p TenantPath) IsAncestorOf(o TenantPath) bool {
	return p.Depth() < o.Depth() && CommonPrefix(p, o) == p.Depth()
}

// CommonPrefix counts the leading segments a and b share. Segments are
// compared whole, so "docs" and "docs-old" never match.
func CommonPrefix(a, b TenantPath) int {
	n := min(a.Depth(), b.Depth())
	for i := 0; i < n; i++ {
		if a.Segments[i] != b.Segments[i] {
			return i
		}
	}

	return n
}
