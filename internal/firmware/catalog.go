package firmware

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Catalog stores uploads and records them.
type Catalog struct {
	store *LocalStore
	repo  Repository
	now   func() time.Time
}

// NewCatalog creates a catalog over store and repo.
func NewCatalog(store *LocalStore, repo Repository) *Catalog {
	return &Catalog{store: store, repo: repo, now: time.Now}
}

// Upload saves r as filename and records it under version. An empty
// version is recorded as UnknownVersion. The stored file is removed if the
// record cannot be written.
func (c *Catalog) Upload(ctx context.Context, filename, version, uploadedBy string, r io.Reader) (*Firmware, error) {
	art, err := c.store.Save(filename, r)
	if err != nil {
		return nil, err
	}

	version = strings.TrimSpace(version)
	if version == "" {
		version = UnknownVersion
	}

	fw := &Firmware{
		ID:         uuid.NewString(),
		Version:    version,
		Filename:   art.Filename,
		URL:        art.URL,
		SizeBytes:  art.SizeBytes,
		SHA256:     art.SHA256,
		UploadedBy: uploadedBy,
		CreatedAt:  c.now().UTC(),
	}

	if err := c.repo.Create(ctx, fw); err != nil {
		_ = os.Remove(filepath.Join(c.store.Dir(), art.StoredName))
		return nil, fmt.Errorf("recording upload: %w", err)
	}
	return fw, nil
}

// List returns all catalogued firmware, newest first.
func (c *Catalog) List(ctx context.Context) ([]Firmware, error) {
	return c.repo.List(ctx)
}

// Get returns one firmware record.
func (c *Catalog) Get(ctx context.Context, id string) (*Firmware, error) {
	return c.repo.GetByID(ctx, id)
}

// ArtifactDir is the directory served at /uploads.
func (c *Catalog) ArtifactDir() string {
	return c.store.Dir()
}
