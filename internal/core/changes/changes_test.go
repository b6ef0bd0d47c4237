package changes

import (
	"testing"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/vcs"
)

const (
	absent    = vcs.StateAbsent
	unchanged = vcs.StateUnchanged
	changed   = vcs.StateChanged
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		row    vcs.StatusRow
		want   domain.ChangeType
		wantOK bool
	}{
		{"untracked", vcs.StatusRow{Head: absent, Workdir: changed, Stage: absent, Unstaged: true}, domain.ChangeUntracked, true},
		{"added", vcs.StatusRow{Head: absent, Workdir: changed, Stage: changed}, domain.ChangeAdded, true},
		{"added then edited", vcs.StatusRow{Head: absent, Workdir: changed, Stage: changed, Unstaged: true}, domain.ChangeAdded, true},
		{"modified unstaged", vcs.StatusRow{Head: unchanged, Workdir: changed, Stage: unchanged, Unstaged: true}, domain.ChangeModified, true},
		{"modified staged", vcs.StatusRow{Head: unchanged, Workdir: changed, Stage: changed}, domain.ChangeModified, true},
		{"deleted in workdir", vcs.StatusRow{Head: unchanged, Workdir: absent, Stage: unchanged, Unstaged: true}, domain.ChangeDeleted, true},
		{"deleted staged", vcs.StatusRow{Head: unchanged, Workdir: absent, Stage: absent}, domain.ChangeDeleted, true},
		{"unchanged", vcs.StatusRow{Head: unchanged, Workdir: unchanged, Stage: unchanged}, "", false},
		{"nowhere", vcs.StatusRow{Head: absent, Workdir: absent, Stage: absent}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.row)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Classify() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromMatrix_SkipsMetadataAndSorts(t *testing.T) {
	rows := []vcs.StatusRow{
		{Path: "z.txt", Head: absent, Workdir: changed, Stage: absent},
		{Path: ".git/config", Head: absent, Workdir: changed, Stage: absent},
		{Path: "a.txt", Head: unchanged, Workdir: changed, Stage: unchanged},
		{Path: "same.txt", Head: unchanged, Workdir: unchanged, Stage: unchanged},
	}

	got := FromMatrix(rows)
	if len(got) != 2 {
		t.Fatalf("FromMatrix() = %v, want 2 changes", got)
	}
	if got[0].Path != "a.txt" || got[0].Type != domain.ChangeModified {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Path != "z.txt" || got[1].Type != domain.ChangeUntracked {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestNeedsStaging(t *testing.T) {
	tests := []struct {
		name string
		row  vcs.StatusRow
		want bool
	}{
		{"clean", vcs.StatusRow{Path: "a", Head: unchanged, Workdir: unchanged, Stage: unchanged}, false},
		{"edited", vcs.StatusRow{Path: "a", Head: unchanged, Workdir: changed, Stage: unchanged, Unstaged: true}, true},
		{"staged already", vcs.StatusRow{Path: "a", Head: unchanged, Workdir: changed, Stage: changed}, false},
		{"removed from disk", vcs.StatusRow{Path: "a", Head: unchanged, Workdir: absent, Stage: unchanged}, true},
		{"removal staged", vcs.StatusRow{Path: "a", Head: unchanged, Workdir: absent, Stage: absent}, false},
		{"metadata", vcs.StatusRow{Path: ".git/index", Head: absent, Workdir: changed, Stage: absent, Unstaged: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsStaging(tt.row); got != tt.want {
				t.Errorf("NeedsStaging() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMetadata(t *testing.T) {
	for _, p := range []string{".git", "/.git", ".git/HEAD", "/.git/objects/ab"} {
		if !IsMetadata(p) {
			t.Errorf("IsMetadata(%q) = false", p)
		}
	}
	for _, p := range []string{".gitignore", "src/.git-notes", "a/.git"} {
		if IsMetadata(p) {
			t.Errorf("IsMetadata(%q) = true", p)
		}
	}
}
