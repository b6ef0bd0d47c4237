package service

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/google/uuid"

	"github.com/Ning0612/Gitbox/internal/core/changes"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// Files returns a snapshot of the last built file tree
func (e *Engine) Files() []domain.FileItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CloneTree(e.tree)
}

// ReadFile reads a working-copy file
func (e *Engine) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := checkWorkingPath("open", p); err != nil {
		return nil, err
	}
	return e.fs.ReadFile(ctx, p)
}

// WriteFile writes a working-copy file, marks pending changes and rebuilds the tree
func (e *Engine) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := checkWorkingPath("write", p); err != nil {
		return err
	}
	if err := e.fs.WriteFile(ctx, p, data); err != nil {
		return err
	}
	e.touched(ctx)
	return nil
}

// DeleteFile removes a working-copy file or directory
func (e *Engine) DeleteFile(ctx context.Context, p string) error {
	if err := checkWorkingPath("unlink", p); err != nil {
		return err
	}
	st, err := e.fs.Stat(ctx, p)
	if err != nil {
		return err
	}
	if st.IsDir() {
		err = e.fs.Rmdir(ctx, p)
	} else {
		err = e.fs.Unlink(ctx, p)
	}
	if err != nil {
		return err
	}
	e.touched(ctx)
	return nil
}

func (e *Engine) touched(ctx context.Context) {
	if e.session.Config() != nil {
		e.update(func(s *domain.SyncStatus) { s.HasChanges = true })
	}
	e.rebuildTree(ctx)
}

// the metadata directory is not part of the working copy
func checkWorkingPath(op, p string) error {
	clean, err := vfs.Normalize(p)
	if err != nil {
		return err
	}
	if clean == "/" || changes.IsMetadata(clean) {
		return &vfs.Error{Code: vfs.EINVAL, Op: op, Path: p, Err: fmt.Errorf("not a working-copy file")}
	}
	return nil
}

// rebuildTree walks the storage and replaces the tree wholesale
func (e *Engine) rebuildTree(ctx context.Context) {
	tree, err := buildTree(ctx, e.fs)
	if err != nil {
		e.log.Warn("failed to build file tree", "error", err)
		return
	}
	e.setTree(tree)
}

func (e *Engine) setTree(tree []domain.FileItem) {
	e.mu.Lock()
	e.tree = tree
	e.mu.Unlock()
	e.obs.notifyFiles(tree)
}

type treeNode struct {
	item     domain.FileItem
	children []*treeNode
}

func buildTree(ctx context.Context, fsys *vfs.FS) ([]domain.FileItem, error) {
	root := &treeNode{}
	dirs := map[string]*treeNode{"/": root}

	err := fsys.Walk(ctx, "/", func(p string, st vfs.Stats) error {
		if changes.IsMetadata(p) {
			if st.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		parent, ok := dirs[path.Dir(p)]
		if !ok {
			return nil
		}
		node := &treeNode{item: domain.FileItem{
			ID:   uuid.NewString(),
			Name: st.Name,
			Path: p,
			Kind: domain.KindFile,
		}}
		if st.IsDir() {
			node.item.Kind = domain.KindFolder
			dirs[p] = node
		}
		parent.children = append(parent.children, node)
		return nil
	})
	if vfs.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(root.children), nil
}

// flatten converts nodes to items, folders first then by name
func flatten(nodes []*treeNode) []domain.FileItem {
	if len(nodes) == 0 {
		return nil
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].item, nodes[j].item
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		return a.Name < b.Name
	})

	items := make([]domain.FileItem, len(nodes))
	for i, n := range nodes {
		items[i] = n.item
		if n.item.IsFolder() {
			items[i].Children = flatten(n.children)
			if items[i].Children == nil {
				items[i].Children = []domain.FileItem{}
			}
		}
	}
	return items
}
