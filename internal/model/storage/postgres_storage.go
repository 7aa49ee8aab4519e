package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	// postgres driver
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"max.ks1230/currency-rates/internal/model/customerr"
)

const dsnTemplate = "user=%s password=%s host=%s port=%d dbname=%s sslmode=disable"

const blobsTable = "blobs"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type config interface {
	Host() string
	Port() int
	Username() string
	Password() string
	Database() string
}

type PostgresStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStorage(config config) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", fmt.Sprintf(dsnTemplate,
		config.Username(),
		config.Password(),
		config.Host(),
		config.Port(),
		config.Database()))
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	return NewPostgresStorageWithDB(db), nil
}

func NewPostgresStorageWithDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db, now: time.Now}
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) Load(ctx context.Context, key string) ([]byte, error) {
	query := psql.Select("payload").
		From(blobsTable).
		Where(sq.Eq{"name": key})

	var data []byte
	err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customerr.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load blob")
	}
	return data, nil
}

// Save upserts the whole payload in one statement.
func (s *PostgresStorage) Save(ctx context.Context, key string, data []byte) error {
	query := psql.Insert(blobsTable).
		Columns("name", "payload", "updated_at").
		Values(key, data, s.now().UTC()).
		Suffix("ON CONFLICT(name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at")

	_, err := query.RunWith(s.db).ExecContext(ctx)
	return errors.Wrap(err, "save blob")
}
