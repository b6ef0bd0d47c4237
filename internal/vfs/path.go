package vfs

import "strings"

// Segments splits p into non-empty path segments with "." removed.
// "", "/" and "." all resolve to the root (no segments).
// ".." is rejected: handle trees have no parent links.
func Segments(p string) ([]string, error) {
	parts := strings.Split(p, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return nil, &Error{Code: EINVAL, Op: "resolve", Path: p, Err: errParentSegment}
		}
		segments = append(segments, part)
	}
	return segments, nil
}

// Clean renders segments as a rooted path ("/" for the root)
func Clean(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// Normalize resolves p and renders it back; Normalize(Normalize(p)) == Normalize(p)
func Normalize(p string) (string, error) {
	segments, err := Segments(p)
	if err != nil {
		return "", err
	}
	return Clean(segments), nil
}

// Join joins path elements with "/" and normalizes the result
func Join(elem ...string) string {
	joined, err := Normalize(strings.Join(elem, "/"))
	if err != nil {
		return "/" + strings.Trim(strings.Join(elem, "/"), "/")
	}
	return joined
}
