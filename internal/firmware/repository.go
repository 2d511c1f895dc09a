package firmware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timestampLayout is fixed-width so created_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository persists firmware records.
type Repository interface {
	Create(ctx context.Context, fw *Firmware) error
	GetByID(ctx context.Context, id string) (*Firmware, error)
	List(ctx context.Context) ([]Firmware, error)
}

// SQLiteRepository implements Repository on the firmwares table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const firmwareColumns = `id, version, filename, url, size_bytes, sha256, uploaded_by, created_at`

// Create inserts a new record.
func (r *SQLiteRepository) Create(ctx context.Context, fw *Firmware) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO firmwares (`+firmwareColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fw.ID,
		fw.Version,
		fw.Filename,
		fw.URL,
		fw.SizeBytes,
		fw.SHA256,
		fw.UploadedBy,
		fw.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting firmware %s: %w", fw.ID, err)
	}
	return nil
}

// GetByID returns one record or ErrNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Firmware, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+firmwareColumns+` FROM firmwares WHERE id = ?`, id)

	fw, err := scanFirmware(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting firmware %s: %w", id, err)
	}
	return fw, nil
}

// List returns all records, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Firmware, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+firmwareColumns+` FROM firmwares ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying firmwares: %w", err)
	}
	defer rows.Close()

	out := []Firmware{}
	for rows.Next() {
		fw, err := scanFirmware(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning firmware: %w", err)
		}
		out = append(out, *fw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating firmwares: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFirmware(s rowScanner) (*Firmware, error) {
	var fw Firmware
	var createdAt string
	if err := s.Scan(
		&fw.ID,
		&fw.Version,
		&fw.Filename,
		&fw.URL,
		&fw.SizeBytes,
		&fw.SHA256,
		&fw.UploadedBy,
		&createdAt,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	fw.CreatedAt = t
	return &fw, nil
}
