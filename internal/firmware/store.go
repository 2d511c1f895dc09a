package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxArtifactSize caps a single upload at 64MB.
const MaxArtifactSize int64 = 64 << 20

// Artifact describes bytes written by a LocalStore.
type Artifact struct {
	Filename   string
	StoredName string
	URL        string
	SizeBytes  int64
	SHA256     string
}

// LocalStore writes artifacts to a directory published under baseURL.
type LocalStore struct {
	dir     string
	baseURL string
	maxSize int64
	now     func() time.Time
	newID   func() string
}

// NewLocalStore creates a store rooted at dir. Files become reachable at
// baseURL + "/" + stored name.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: MaxArtifactSize,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Dir returns the directory artifacts are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save copies r into a new file named "<unix millis>-<uuid>-<base name>" and
// returns its public URL and digest. Partial files are removed on error.
func (s *LocalStore) Save(filename string, r io.Reader) (*Artifact, error) {
	base, err := cleanFilename(filename)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating artifacts directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(r, s.maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	switch {
	case err != nil:
		return nil, fmt.Errorf("writing artifact: %w", err)
	case n == 0:
		return nil, ErrEmptyFile
	case n > s.maxSize:
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxSize)
	}

	stored := strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + s.newID() + "-" + base
	if err := os.Rename(tmpName, filepath.Join(s.dir, stored)); err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}
	keep = true

	return &Artifact{
		Filename:   base,
		StoredName: stored,
		URL:        s.baseURL + "/" + url.PathEscape(stored),
		SizeBytes:  n,
		SHA256:     hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// cleanFilename strips any directory part and rejects names that cannot be
// stored safely.
func cleanFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}
