// Package gdrive implements the handle tree on Google Drive folders, so a
// working copy can live in a Drive folder instead of on local disk.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Ning0612/Gitbox/internal/handle"
)

const (
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// PageSize is the number of files to fetch per request
	PageSize = 100
	// RootID addresses "My Drive"
	RootID = "root"

	entryFields = "id, name, mimeType, size, modifiedTime"
)

// Service is a Drive client shared by every handle of one tree
type Service struct {
	files *drive.FilesService
	cache *idCache
}

// idCache caches child lookups (parent ID + name -> entry) with thread-safe access
type idCache struct {
	mu      sync.RWMutex
	entries map[string]*drive.File
}

func newIDCache() *idCache {
	return &idCache{
		entries: make(map[string]*drive.File),
	}
}

func cacheKey(parentID, name string) string {
	return parentID + "/" + name
}

func (c *idCache) get(parentID, name string) (*drive.File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[cacheKey(parentID, name)]
	return f, ok
}

func (c *idCache) set(parentID string, f *drive.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(parentID, f.Name)] = f
}

func (c *idCache) delete(parentID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(parentID, name))
}

// New opens the tree rooted at rootFolder using the stored OAuth token
func New(ctx context.Context, clientID, clientSecret, tokenPath, rootFolder string) (*Directory, error) {
	auth := NewAuthenticator(clientID, clientSecret, tokenPath)

	token, err := auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, auth.TokenSource(ctx, token))
	return NewWithOptions(ctx, rootFolder, option.WithHTTPClient(client))
}

// NewWithOptions opens the tree with explicit client options
func NewWithOptions(ctx context.Context, rootFolder string, opts ...option.ClientOption) (*Directory, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	if rootFolder == "" {
		rootFolder = RootID
	}
	svc := &Service{files: service.Files, cache: newIDCache()}
	return &Directory{svc: svc, id: rootFolder}, nil
}

// Directory is a Drive folder
type Directory struct {
	svc  *Service
	id   string
	name string
}

// File is a Drive file
type File struct {
	svc  *Service
	id   string
	name string
}

// Name returns the folder name; empty for the tree root
func (d *Directory) Name() string {
	return d.name
}

// ID returns the Drive folder ID
func (d *Directory) ID() string {
	return d.id
}

// GetDirectory returns a child folder, optionally creating it
func (d *Directory) GetDirectory(ctx context.Context, name string, create bool) (handle.Directory, error) {
	entry, err := d.lookup(ctx, name)
	if errors.Is(err, handle.ErrNotFound) && create {
		entry, err = d.svc.files.Create(&drive.File{
			Name:     name,
			MimeType: MimeTypeFolder,
			Parents:  []string{d.id},
		}).Fields(entryFields).Context(ctx).Do()
		if err != nil {
			return nil, mapError(err)
		}
		d.svc.cache.set(d.id, entry)
	}
	if err != nil {
		return nil, err
	}
	if entry.MimeType != MimeTypeFolder {
		return nil, handle.ErrTypeMismatch
	}
	return &Directory{svc: d.svc, id: entry.Id, name: entry.Name}, nil
}

// GetFile returns a child file, optionally creating it empty
func (d *Directory) GetFile(ctx context.Context, name string, create bool) (handle.File, error) {
	entry, err := d.lookup(ctx, name)
	if errors.Is(err, handle.ErrNotFound) && create {
		entry, err = d.svc.files.Create(&drive.File{
			Name:    name,
			Parents: []string{d.id},
		}).Media(bytes.NewReader(nil)).Fields(entryFields).Context(ctx).Do()
		if err != nil {
			return nil, mapError(err)
		}
		d.svc.cache.set(d.id, entry)
	}
	if err != nil {
		return nil, err
	}
	if entry.MimeType == MimeTypeFolder {
		return nil, handle.ErrTypeMismatch
	}
	return &File{svc: d.svc, id: entry.Id, name: entry.Name}, nil
}

// RemoveEntry deletes a child. Drive deletes folder contents with the folder,
// so the non-recursive form checks for children first.
func (d *Directory) RemoveEntry(ctx context.Context, name string, recursive bool) error {
	entry, err := d.lookup(ctx, name)
	if err != nil {
		return err
	}

	if entry.MimeType == MimeTypeFolder && !recursive {
		children, err := d.svc.files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryString(entry.Id))).
			PageSize(1).
			Fields("files(id)").
			Context(ctx).Do()
		if err != nil {
			return mapError(err)
		}
		if len(children.Files) > 0 {
			return handle.ErrNotEmpty
		}
	}

	if err := d.svc.files.Delete(entry.Id).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	d.svc.cache.delete(d.id, name)
	return nil
}

// Entries lists the folder
func (d *Directory) Entries(ctx context.Context) ([]handle.Entry, error) {
	var result []handle.Entry
	pageToken := ""

	for {
		call := d.svc.files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryString(d.id))).
			PageSize(PageSize).
			Fields("nextPageToken, files(" + entryFields + ")")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Context(ctx).Do()
		if err != nil {
			return nil, mapError(err)
		}

		for _, f := range fileList.Files {
			d.svc.cache.set(d.id, f)
			kind := handle.KindFile
			if f.MimeType == MimeTypeFolder {
				kind = handle.KindDirectory
			}
			result = append(result, handle.Entry{Name: f.Name, Kind: kind})
		}

		pageToken = fileList.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

// lookup finds the child called name
func (d *Directory) lookup(ctx context.Context, name string) (*drive.File, error) {
	if f, ok := d.svc.cache.get(d.id, name); ok {
		return f, nil
	}

	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQueryString(name), escapeQueryString(d.id))
	fileList, err := d.svc.files.List().
		Q(query).
		PageSize(1).
		Fields("files(" + entryFields + ")").
		Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	if len(fileList.Files) == 0 {
		return nil, handle.ErrNotFound
	}

	f := fileList.Files[0]
	d.svc.cache.set(d.id, f)
	return f, nil
}

// Name returns the file name
func (f *File) Name() string {
	return f.name
}

// Read downloads the file contents
func (f *File) Read(ctx context.Context) ([]byte, error) {
	resp, err := f.svc.files.Get(f.id).Context(ctx).Download()
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", f.name, err)
	}
	return data, nil
}

// Write uploads data as the new contents
func (f *File) Write(ctx context.Context, data []byte) error {
	_, err := f.svc.files.Update(f.id, &drive.File{}).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	return mapError(err)
}

// Stat fetches size and modification time
func (f *File) Stat(ctx context.Context) (handle.FileInfo, error) {
	file, err := f.svc.files.Get(f.id).
		Fields("size, modifiedTime").
		Context(ctx).Do()
	if err != nil {
		return handle.FileInfo{}, mapError(err)
	}

	var modTime time.Time
	if file.ModifiedTime != "" {
		modTime, _ = time.Parse(time.RFC3339, file.ModifiedTime)
	}
	return handle.FileInfo{Size: file.Size, ModTime: modTime}, nil
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	// Escape backslash first, then single quote
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// mapError converts Google API errors to substrate errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return fmt.Errorf("%w: %v", handle.ErrNotFound, err)
		case 429:
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
		return err
	}

	if strings.Contains(err.Error(), "notFound") {
		return fmt.Errorf("%w: %v", handle.ErrNotFound, err)
	}
	return err
}

var (
	_ handle.Directory = (*Directory)(nil)
	_ handle.File      = (*File)(nil)
)
