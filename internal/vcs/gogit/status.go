package gogit

import (
	"sort"

	"github.com/go-git/go-git/v5"

	"github.com/Ning0612/Gitbox/internal/vcs"
)

// statusRows converts go-git's two-column status into status matrix rows.
// Clean paths are absent from a go-git status and so from the rows.
func statusRows(status git.Status) []vcs.StatusRow {
	rows := make([]vcs.StatusRow, 0, len(status))
	for path, fs := range status {
		rows = append(rows, statusRow(path, fs))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows
}

func statusRow(path string, fs *git.FileStatus) vcs.StatusRow {
	row := vcs.StatusRow{
		Path:     path,
		Head:     vcs.StateUnchanged,
		Unstaged: fs.Worktree != git.Unmodified,
	}

	if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
		row.Head = vcs.StateAbsent
		row.Stage = vcs.StateAbsent
		row.Workdir = vcs.StateChanged
		return row
	}

	switch fs.Staging {
	case git.Added:
		row.Head = vcs.StateAbsent
		row.Stage = vcs.StateChanged
	case git.Deleted:
		row.Stage = vcs.StateAbsent
	case git.Unmodified:
		row.Stage = vcs.StateUnchanged
	default:
		row.Stage = vcs.StateChanged
	}

	switch fs.Worktree {
	case git.Deleted:
		row.Workdir = vcs.StateAbsent
	case git.Unmodified:
		// matches the index
		row.Workdir = row.Stage
	default:
		row.Workdir = vcs.StateChanged
	}
	return row
}
