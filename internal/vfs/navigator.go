package vfs

import (
	"context"

	"github.com/Ning0612/Gitbox/internal/handle"
)

// walk descends from root through segments one directory handle at a time.
// With create set, missing directories are created along the way.
func walk(ctx context.Context, root handle.Directory, segments []string, create bool) (handle.Directory, error) {
	dir := root
	for _, name := range segments {
		next, err := dir.GetDirectory(ctx, name, create)
		if err != nil {
			return nil, err
		}
		dir = next
	}
	return dir, nil
}

// leafTarget is the parent directory and entry name an operation acts on
type leafTarget struct {
	parent handle.Directory
	leaf   string
}

// resolveLeaf walks to the parent of the last segment.
// The root has no leaf; callers handle len(segments) == 0 themselves.
func resolveLeaf(ctx context.Context, root handle.Directory, segments []string, create bool) (leafTarget, error) {
	if len(segments) == 0 {
		return leafTarget{}, errRootLeaf
	}
	parent, err := walk(ctx, root, segments[:len(segments)-1], create)
	if err != nil {
		return leafTarget{}, err
	}
	return leafTarget{parent: parent, leaf: segments[len(segments)-1]}, nil
}

// ensureDir makes sure every directory in segments exists
func ensureDir(ctx context.Context, root handle.Directory, segments []string) error {
	_, err := walk(ctx, root, segments, true)
	return err
}
