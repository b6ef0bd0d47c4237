package testutil

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Gitbox/internal/adapter/local"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// NewMemoryFS returns a filesystem over an empty in-memory handle tree
func NewMemoryFS() *vfs.FS {
	return vfs.New(local.NewMemory())
}

// WriteFiles writes every path/content pair into fsys
func WriteFiles(t *testing.T, fsys *vfs.FS, files map[string]string) {
	t.Helper()

	for path, content := range files {
		if err := fsys.WriteFile(context.Background(), path, []byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

// ReadFile reads path from fsys as a string
func ReadFile(t *testing.T, fsys *vfs.FS, path string) string {
	t.Helper()

	data, err := fsys.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// FakeClock is a manually advanced clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}

// RandomBytes returns n pseudo-random bytes, useful for binary round trips
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
