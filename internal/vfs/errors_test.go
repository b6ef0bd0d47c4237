package vfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/Ning0612/Gitbox/internal/handle"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name  string
		input error
		want  string
	}{
		{"not found", handle.ErrNotFound, ENOENT},
		{"wrapped not found", fmt.Errorf("drive: %w", handle.ErrNotFound), ENOENT},
		{"type mismatch", handle.ErrTypeMismatch, ENOTDIR},
		{"not empty", handle.ErrNotEmpty, ENOTEMPTY},
		{"generic", errors.New("disk on fire"), EIO},
		{"cancelled", context.Canceled, EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.input, "open", "/x")
			if Code(got) != tt.want {
				t.Errorf("translate() code = %q, want %q", Code(got), tt.want)
			}
			if !errors.Is(got, tt.input) {
				t.Error("translated error should wrap its cause")
			}
		})
	}
}

func TestTranslate_Nil(t *testing.T) {
	if err := translate(nil, "open", "/x"); err != nil {
		t.Errorf("translate(nil) = %v", err)
	}
}

func TestTranslate_PassThrough(t *testing.T) {
	orig := &Error{Code: ENOTSUP, Op: "symlink", Path: "/l"}
	got := translate(orig, "open", "/other")
	if got != error(orig) {
		t.Errorf("translate() should return coded errors unchanged, got %v", got)
	}

	wrapped := fmt.Errorf("context: %w", orig)
	if got := translate(wrapped, "open", "/other"); got != wrapped {
		t.Errorf("translate() should return wrapped coded errors unchanged, got %v", got)
	}
}

func TestError_Message(t *testing.T) {
	err := translate(handle.ErrNotFound, "open", "/main.tex")
	msg := err.Error()
	if !strings.HasPrefix(msg, "ENOENT") || !strings.Contains(msg, "/main.tex") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestError_UnwrapSentinels(t *testing.T) {
	if !errors.Is(&Error{Code: ENOENT}, fs.ErrNotExist) {
		t.Error("ENOENT should match fs.ErrNotExist")
	}
	if !errors.Is(&Error{Code: ENOTSUP}, errors.ErrUnsupported) {
		t.Error("ENOTSUP should match errors.ErrUnsupported")
	}
	if errors.Is(&Error{Code: ENOTDIR}, fs.ErrNotExist) {
		t.Error("ENOTDIR should not match fs.ErrNotExist")
	}
}
