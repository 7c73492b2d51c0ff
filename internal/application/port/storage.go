package port

import "context"

// FileStorage stores generated report files under a base directory. Paths
// are relative to that directory.
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	// List returns the files directly inside dir, sorted by name
	List(ctx context.Context, dir string) ([]string, error)
	GetFullPath(relativePath string) string
}
