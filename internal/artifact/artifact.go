// Package artifact stores files produced by runs under a run's artifact URI.
// Only local roots (file:// URIs or plain absolute paths) are supported; the
// Repository interface leaves room for remote stores.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedScheme is returned by Open for URIs it cannot serve.
	ErrUnsupportedScheme = errors.New("artifact: unsupported uri scheme")
	// ErrInvalidPath is returned for artifact paths that leave the run's root.
	ErrInvalidPath = errors.New("artifact: invalid path")
)

// FileInfo describes one entry of an artifact listing.
type FileInfo struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"file_size,omitempty"`
}

// Repository persists artifacts for a single run.
type Repository interface {
	// LogFile copies a local file into artifactDir ("" for the root).
	LogFile(ctx context.Context, localPath, artifactDir string) error
	// LogDir copies the contents of a local directory into artifactDir.
	LogDir(ctx context.Context, localDir, artifactDir string) error
	// Put writes the contents of r to artifactPath.
	Put(ctx context.Context, artifactPath string, r io.Reader) error
	// List returns the direct children of dir ("" for the root).
	List(ctx context.Context, dir string) ([]FileInfo, error)
}

// Open returns the repository serving the given artifact URI.
func Open(uri string) (Repository, error) {
	root, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	return NewLocal(root), nil
}

// LocalPath converts a file:// URI (or a bare absolute path) into a
// filesystem path.
func LocalPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid artifact uri %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: file uri %q must not name a remote host", ErrUnsupportedScheme, uri)
		}
		return filepath.FromSlash(u.Path), nil
	case "":
		if !filepath.IsAbs(uri) {
			return "", fmt.Errorf("artifact path %q must be absolute", uri)
		}
		return uri, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Local is a Repository rooted at a directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a repository rooted at root. The directory is created
// lazily on the first write.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Root returns the repository's root directory.
func (l *Local) Root() string {
	return l.root
}

// resolve maps a slash-separated artifact path to a location inside the root.
func (l *Local) resolve(artifactPath string) (string, error) {
	slashed := filepath.ToSlash(artifactPath)
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the repository root", ErrInvalidPath, artifactPath)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// LogFile implements Repository.
func (l *Local) LogFile(ctx context.Context, localPath, artifactDir string) error {
	dstDir, err := l.resolve(artifactDir)
	if err != nil {
		return err
	}
	return copyFile(localPath, filepath.Join(dstDir, filepath.Base(localPath)))
}

// LogDir implements Repository.
func (l *Local) LogDir(ctx context.Context, localDir, artifactDir string) error {
	dstDir, err := l.resolve(artifactDir)
	if err != nil {
		return err
	}
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

// Put implements Repository.
func (l *Local) Put(ctx context.Context, artifactPath string, r io.Reader) error {
	if artifactPath == "" {
		return errors.New("artifact path must not be empty")
	}
	dst, err := l.resolve(artifactPath)
	if err != nil {
		return err
	}
	return writeFile(dst, r)
}

// List implements Repository.
func (l *Local) List(ctx context.Context, dir string) ([]FileInfo, error) {
	base, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info := FileInfo{Path: path.Join(filepath.ToSlash(dir), e.Name()), IsDir: e.IsDir()}
		if !e.IsDir() {
			if fi, err := e.Info(); err == nil {
				info.Size = fi.Size()
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact source '%s': %w", src, err)
	}
	defer in.Close()
	return writeFile(dst, in)
}

func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create artifact '%s': %w", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write artifact '%s': %w", dst, err)
	}
	return out.Close()
}
