package domain

// ItemKind represents the type of a node in the file tree
type ItemKind string

const (
	KindFile   ItemKind = "file"
	KindFolder ItemKind = "folder"
)

// FileItem is a node of the working-copy tree handed to file-tree subscribers
type FileItem struct {
	// ID is unique per rebuild; callers must not keep it across rebuilds
	ID string

	// Name is the last path segment
	Name string

	// Path is rooted at "/" and never points inside the .git directory
	Path string

	Kind ItemKind

	// Children is nil for files
	Children []FileItem
}

// IsFolder returns true if this node is a folder
func (f FileItem) IsFolder() bool {
	return f.Kind == KindFolder
}

// CloneTree returns a deep copy of the given tree
func CloneTree(items []FileItem) []FileItem {
	if items == nil {
		return nil
	}
	out := make([]FileItem, len(items))
	for i, item := range items {
		out[i] = item
		out[i].Children = CloneTree(item.Children)
	}
	return out
}

// ChangeType classifies a working-copy path against HEAD and the index
type ChangeType string

const (
	ChangeUntracked ChangeType = "untracked"
	ChangeAdded     ChangeType = "added"
	ChangeModified  ChangeType = "modified"
	ChangeDeleted   ChangeType = "deleted"
)

// FileChange is one pending change; recomputed on demand, never stored
type FileChange struct {
	Path string
	Type ChangeType
}
