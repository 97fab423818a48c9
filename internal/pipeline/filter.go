package pipeline

import (
	"errors"
	"filemirror/internal/pathcodec"
	"fmt"
	"path/filepath"
	"strings"
)

var errIgnored = errors.New("ignored name")

// Filter decides which local paths may reach the reconcilers.
type Filter struct {
	codec          pathcodec.Codec
	tempSuffixes   []string
	ignorePrefixes []string
}

func NewFilter(codec pathcodec.Codec, tempSuffixes, ignorePrefixes []string) Filter {
	return Filter{
		codec:          codec,
		tempSuffixes:   tempSuffixes,
		ignorePrefixes: ignorePrefixes,
	}
}

// Ignored reports whether the name of path marks it as scratch data:
// a file with a temp suffix, or anything a sync tool stages under one of
// the ignore prefixes.
func (f Filter) Ignored(path string, isDir bool) bool {
	name := filepath.Base(path)

	if !isDir {
		for _, suffix := range f.tempSuffixes {
			if suffix != "" && strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}

	for _, prefix := range f.ignorePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}

// Check returns nil when path is neither ignored nor outside the mirrored
// tree.
func (f Filter) Check(path string, isDir bool) error {
	if f.Ignored(path, isDir) {
		return fmt.Errorf("%w: %s", errIgnored, filepath.Base(path))
	}

	if _, err := f.codec.Decode(path); err != nil {
		return err
	}

	return nil
}
