package changes

import (
	"sort"
	"strings"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/vcs"
)

// Classify interprets one status row.
// The second result is false for unchanged paths.
func Classify(row vcs.StatusRow) (domain.ChangeType, bool) {
	headPresent := row.Head != vcs.StateAbsent
	workdirPresent := row.Workdir != vcs.StateAbsent
	stagePresent := row.Stage != vcs.StateAbsent

	switch {
	case !headPresent && !stagePresent && workdirPresent:
		return domain.ChangeUntracked, true
	case !headPresent && stagePresent:
		return domain.ChangeAdded, true
	case headPresent && (!workdirPresent || !stagePresent):
		return domain.ChangeDeleted, true
	case headPresent && (row.Workdir == vcs.StateChanged || row.Stage == vcs.StateChanged):
		return domain.ChangeModified, true
	}
	return "", false
}

// FromMatrix returns the pending changes in path order, skipping metadata
func FromMatrix(rows []vcs.StatusRow) []domain.FileChange {
	var out []domain.FileChange
	for _, row := range rows {
		if IsMetadata(row.Path) {
			continue
		}
		if t, ok := Classify(row); ok {
			out = append(out, domain.FileChange{Path: row.Path, Type: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// NeedsStaging reports whether the working copy differs from the index for row
func NeedsStaging(row vcs.StatusRow) bool {
	if IsMetadata(row.Path) {
		return false
	}
	if row.Unstaged {
		return true
	}
	// absent on one side only
	return (row.Workdir == vcs.StateAbsent) != (row.Stage == vcs.StateAbsent)
}

// HasLocalChanges reports whether any row is a pending change
func HasLocalChanges(rows []vcs.StatusRow) bool {
	for _, row := range rows {
		if IsMetadata(row.Path) {
			continue
		}
		if _, ok := Classify(row); ok {
			return true
		}
	}
	return false
}

// IsMetadata reports whether path lies in the repository metadata directory
func IsMetadata(path string) bool {
	p := strings.TrimPrefix(path, "/")
	return p == vcs.MetadataDir || strings.HasPrefix(p, vcs.MetadataDir+"/")
}
