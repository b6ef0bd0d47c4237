package gdrive

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/Ning0612/Gitbox/internal/handle"
)

// TestMapError tests error mapping from Google API errors to substrate errors
func TestMapError(t *testing.T) {
	generic := errors.New("generic error")
	serverErr := &googleapi.Error{Code: 500, Message: "server error"}

	tests := []struct {
		name     string
		input    error
		wantIs   error
		contains string
	}{
		{name: "404 not found", input: &googleapi.Error{Code: 404}, wantIs: handle.ErrNotFound},
		{name: "notFound message", input: errors.New("file notFound in drive"), wantIs: handle.ErrNotFound},
		{name: "429 rate limit", input: &googleapi.Error{Code: 429}, contains: "rate limit exceeded"},
		{name: "500 passthrough", input: serverErr, wantIs: serverErr},
		{name: "generic passthrough", input: generic, wantIs: generic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.input)
			if got == nil {
				t.Fatal("mapError() returned nil")
			}
			if tt.wantIs != nil && !errors.Is(got, tt.wantIs) {
				t.Errorf("mapError() = %v, want errors.Is %v", got, tt.wantIs)
			}
			if tt.contains != "" && !strings.Contains(got.Error(), tt.contains) {
				t.Errorf("mapError() = %v, want it to contain %q", got, tt.contains)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestMapError_RateLimitWrapsOriginal(t *testing.T) {
	orig := &googleapi.Error{Code: 429}
	if got := mapError(orig); !errors.Is(got, orig) {
		t.Errorf("rate limit error should wrap the original, got %v", got)
	}
}
