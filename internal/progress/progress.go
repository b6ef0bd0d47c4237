// Package progress turns git sideband output ("Receiving objects:  45% (9/20)")
// into structured updates and renders them as a terminal progress bar.
package progress

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Update is one parsed progress line
type Update struct {
	// Stage is the phase name, e.g. "Receiving objects"; for unparsed lines it is the whole line
	Stage   string
	Current int64
	Total   int64
	Done    bool
}

// Percent returns completion in [0, 100], or -1 when the total is unknown
func (u Update) Percent() float64 {
	if u.Total <= 0 {
		return -1
	}
	return float64(u.Current) / float64(u.Total) * 100
}

// Callback receives parsed updates
type Callback func(update Update)

var (
	counted = regexp.MustCompile(`^(?:remote: )?([^:]+):\s+\d+% \((\d+)/(\d+)\)`)
	simple  = regexp.MustCompile(`^(?:remote: )?([^:]+):\s+(\d+)(?:,|$)`)
)

// Parse interprets one sideband line
func Parse(line string) Update {
	line = strings.TrimSpace(line)
	done := strings.HasSuffix(line, "done.") || strings.HasSuffix(line, ", done")

	if m := counted.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[2], 10, 64)
		total, _ := strconv.ParseInt(m[3], 10, 64)
		return Update{Stage: m[1], Current: cur, Total: total, Done: done}
	}
	if m := simple.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.ParseInt(m[2], 10, 64)
		return Update{Stage: m[1], Current: cur, Done: done}
	}
	return Update{Stage: strings.TrimPrefix(line, "remote: "), Done: done}
}

// Writer is an io.Writer for git's Progress option. Lines end at '\r' or
// '\n'; a partial line is held until its terminator arrives.
type Writer struct {
	mu       sync.Mutex
	callback Callback
	pending  []byte
}

// NewWriter creates a Writer delivering updates to callback
func NewWriter(callback Callback) *Writer {
	return &Writer{callback: callback}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.pending = append(w.pending, p...)
	var lines []string
	for {
		i := strings.IndexAny(string(w.pending), "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.pending[:i])); line != "" {
			lines = append(lines, line)
		}
		w.pending = w.pending[i+1:]
	}
	w.mu.Unlock()

	// callback runs outside the lock so it may write back into w
	for _, line := range lines {
		w.callback(Parse(line))
	}
	return len(p), nil
}

// Renderer draws updates onto a terminal line
type Renderer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	stage string
}

// NewRenderer renders to out with a bar of width cells
func NewRenderer(out io.Writer, width int) *Renderer {
	if width <= 0 {
		width = 30
	}
	return &Renderer{out: out, width: width}
}

// Render prints u, rewriting the current line while a stage is in progress
func (r *Renderer) Render(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage != "" && r.stage != u.Stage {
		fmt.Fprintln(r.out)
	}
	r.stage = u.Stage

	switch {
	case u.Total > 0:
		fmt.Fprintf(r.out, "\r%-20s %s", u.Stage, FormatProgress(u.Current, u.Total, r.width))
	case u.Current > 0:
		fmt.Fprintf(r.out, "\r%-20s %d", u.Stage, u.Current)
	default:
		fmt.Fprintf(r.out, "\r%s", u.Stage)
	}

	if u.Done {
		fmt.Fprintln(r.out)
		r.stage = ""
	}
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total <= 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := []byte(strings.Repeat(" ", width))
	for i := 0; i < filled; i++ {
		bar[i] = '='
	}
	if filled < width {
		bar[filled] = '>'
	}
	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
