// Package gogit implements vcs.Client with go-git, storing the repository
// and its working tree in a vfs.FS.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/Ning0612/Gitbox/internal/vcs"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// Client runs git operations against one working copy
type Client struct {
	fs *vfs.FS

	// Progress receives remote sideband output; nil discards it
	Progress io.Writer
}

// New creates a client whose repository lives in fsys
func New(fsys *vfs.FS) *Client {
	return &Client{fs: fsys}
}

// storage opens a fresh storer and worktree view. Storers cache objects,
// so one is built per operation to never outlive a re-clone.
func (c *Client) storage(ctx context.Context) (*filesystem.Storage, *billyFS, error) {
	root := newBillyFS(ctx, c.fs).(*billyFS)
	dotgit, err := root.Chroot(vcs.MetadataDir)
	if err != nil {
		return nil, nil, err
	}
	return filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault()), root, nil
}

func (c *Client) open(ctx context.Context) (*git.Repository, error) {
	st, wt, err := c.storage(ctx)
	if err != nil {
		return nil, err
	}
	repo, err := git.Open(st, wt)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

func (c *Client) worktree(ctx context.Context) (*git.Repository, *git.Worktree, error) {
	repo, err := c.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return repo, wt, nil
}

// Clone clones into the filesystem, which must not hold a repository
func (c *Client) Clone(ctx context.Context, opts vcs.CloneOptions) error {
	st, wt, err := c.storage(ctx)
	if err != nil {
		return err
	}

	_, err = git.CloneContext(ctx, st, wt, &git.CloneOptions{
		URL:           opts.URL,
		RemoteName:    vcs.DefaultRemote,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  opts.SingleBranch,
		Depth:         opts.Depth,
		Auth:          authMethod(opts.Auth),
		Progress:      c.Progress,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", mapError(err))
	}
	return nil
}

func (c *Client) Fetch(ctx context.Context, opts vcs.FetchOptions) error {
	repo, err := c.open(ctx)
	if err != nil {
		return err
	}

	fetch := &git.FetchOptions{
		RemoteName: vcs.DefaultRemote,
		Depth:      opts.Depth,
		Auth:       authMethod(opts.Auth),
		Progress:   c.Progress,
	}
	if opts.SingleBranch {
		fetch.RefSpecs = []config.RefSpec{trackingSpec(opts.Branch)}
	}

	err = repo.FetchContext(ctx, fetch)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return mapError(err)
	}
	return nil
}

// Pull fast-forwards the checked-out branch; go-git never merges
func (c *Client) Pull(ctx context.Context, opts vcs.PullOptions) error {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return err
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    vcs.DefaultRemote,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  opts.SingleBranch,
		Auth:          authMethod(opts.Auth),
		Progress:      c.Progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return mapError(err)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, opts vcs.PushOptions) error {
	repo, err := c.open(ctx)
	if err != nil {
		return err
	}

	ref := plumbing.NewBranchReferenceName(opts.Branch)
	spec := config.RefSpec(ref.String() + ":" + ref.String())
	if opts.Force {
		spec = "+" + spec
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: vcs.DefaultRemote,
		RefSpecs:   []config.RefSpec{spec},
		Force:      opts.Force,
		Auth:       authMethod(opts.Auth),
		Progress:   c.Progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return mapError(err)
	}

	// keep the tracking ref in step so the next comparison sees the push
	head, err := repo.Reference(ref, true)
	if err != nil {
		return mapError(err)
	}
	tracking := plumbing.NewRemoteReferenceName(vcs.DefaultRemote, opts.Branch)
	return repo.Storer.SetReference(plumbing.NewHashReference(tracking, head.Hash()))
}

func (c *Client) Add(ctx context.Context, path string) error {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return err
	}
	if _, err := wt.Add(strings.TrimPrefix(path, "/")); err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	return nil
}

func (c *Client) Remove(ctx context.Context, path string) error {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return err
	}
	if _, err := wt.Remove(strings.TrimPrefix(path, "/")); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (c *Client) Commit(ctx context.Context, message string, author vcs.Author) (string, error) {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return "", err
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  author.When,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return hash.String(), nil
}

func (c *Client) StatusMatrix(ctx context.Context) ([]vcs.StatusRow, error) {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return statusRows(status), nil
}

// CreateBranch creates a local branch at HEAD
func (c *Client) CreateBranch(ctx context.Context, name string) error {
	repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return mapError(err)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// Checkout switches the worktree to a local branch
func (c *Client) Checkout(ctx context.Context, ref string) error {
	_, wt, err := c.worktree(ctx)
	if err != nil {
		return err
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(strings.TrimPrefix(ref, "refs/heads/")),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) ResolveRef(ctx context.Context, ref string) (string, error) {
	repo, err := c.open(ctx)
	if err != nil {
		return "", err
	}

	if ref == "HEAD" {
		head, err := repo.Head()
		if err != nil {
			return "", mapError(err)
		}
		return head.Hash().String(), nil
	}

	name := plumbing.ReferenceName(ref)
	if !strings.HasPrefix(ref, "refs/") {
		name = plumbing.NewBranchReferenceName(ref)
	}
	resolved, err := repo.Reference(name, true)
	if err != nil {
		return "", mapError(err)
	}
	return resolved.Hash().String(), nil
}

func (c *Client) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	repo, err := c.open(ctx)
	if err != nil {
		return false, err
	}

	want := plumbing.NewHash(ancestor)
	seen := make(map[plumbing.Hash]bool)
	queue := []plumbing.Hash{plumbing.NewHash(descendant)}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == want {
			return true, nil
		}
		if seen[h] {
			continue
		}
		seen[h] = true

		commit, err := repo.CommitObject(h)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			// shallow boundary
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to read commit %s: %w", h, err)
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

func trackingSpec(branch string) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, vcs.DefaultRemote, branch))
}

func authMethod(a vcs.Auth) transport.AuthMethod {
	if a.Empty() {
		return nil
	}
	return &githttp.BasicAuth{Username: a.Username, Password: a.Password}
}

// mapError converts go-git failures to the vcs sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return &vcs.HTTPError{StatusCode: 404, Err: fmt.Errorf("%w: %v", vcs.ErrRepositoryNotFound, err)}
	case errors.Is(err, plumbing.ErrReferenceNotFound),
		strings.Contains(err.Error(), "couldn't find remote ref"):
		return fmt.Errorf("%w: %v", vcs.ErrRefNotFound, err)
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		strings.Contains(err.Error(), "non-fast-forward"):
		return fmt.Errorf("%w: %v", vcs.ErrNotFastForward, err)
	}
	return err
}

var _ vcs.Client = (*Client)(nil)
