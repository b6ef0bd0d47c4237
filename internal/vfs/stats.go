package vfs

import (
	"io/fs"
	"time"
)

// Fixed modes; the storage has no permission model
const (
	FileMode fs.FileMode = 0644
	DirMode  fs.FileMode = fs.ModeDir | 0755
)

// Stats describes one entry. Built per call, never cached.
type Stats struct {
	Name    string
	Dir     bool
	Size    int64
	ModTime time.Time
}

// Mode returns the fixed mode for the entry kind
func (s Stats) Mode() fs.FileMode {
	if s.Dir {
		return DirMode
	}
	return FileMode
}

// IsDir returns true for directories
func (s Stats) IsDir() bool {
	return s.Dir
}

// IsFile returns true for regular files
func (s Stats) IsFile() bool {
	return !s.Dir
}

// FileInfo adapts Stats to fs.FileInfo
func (s Stats) FileInfo() fs.FileInfo {
	return fileInfo{s}
}

type fileInfo struct {
	s Stats
}

func (fi fileInfo) Name() string       { return fi.s.Name }
func (fi fileInfo) Size() int64        { return fi.s.Size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.s.Mode() }
func (fi fileInfo) ModTime() time.Time { return fi.s.ModTime }
func (fi fileInfo) IsDir() bool        { return fi.s.Dir }
func (fi fileInfo) Sys() any           { return nil }
