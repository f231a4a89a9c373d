package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

const dealsTable = "deals"

const migrationsTable = "deal_scanner_migrations"

//go:embed migrations/*.sql
var migrations embed.FS

var dealColumns = []string{
	"id", "dedup_key", "title", "url", "description", "image_url", "merchant", "category",
	"published_at", "source", "external_id", "coupon_code", "price", "expires_at",
	"status", "quality_score", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists deals into Postgres through database/sql.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.DealStore = (*PostgresRepository)(nil)

// Open connects with either the "postgres" (lib/pq) or "pgx" driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema applies the embedded migrations that are not applied yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return domain.ErrStoreUnavailable
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	// the driver owns conn; closing the migrator must not close the pool.
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate deals schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return domain.ErrStoreUnavailable
	}
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByDedupKey returns nil, nil when no row has the key.
func (r *PostgresRepository) FindByDedupKey(ctx context.Context, key string) (*domain.DealRecord, error) {
	if r.db == nil {
		return nil, domain.ErrStoreUnavailable
	}

	query, args, err := findQuery(key)
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("find deal", err)
	}
	return &rec, nil
}

// Create inserts a pending deal; a taken dedup key yields domain.ErrDuplicateKey.
func (r *PostgresRepository) Create(ctx context.Context, key string, deal domain.NormalizedDeal, qualityScore float64) (domain.DealRecord, error) {
	if r.db == nil {
		return domain.DealRecord{}, domain.ErrStoreUnavailable
	}

	query, args, err := insertQuery(key, deal, qualityScore)
	if err != nil {
		return domain.DealRecord{}, fmt.Errorf("build insert: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.DealRecord{}, domain.ErrDuplicateKey
		}
		return domain.DealRecord{}, storeError("insert deal", err)
	}
	return rec, nil
}

// Update writes the changed material fields. Status is never part of the statement.
func (r *PostgresRepository) Update(ctx context.Context, id int64, update domain.DealUpdate) (domain.DealRecord, error) {
	if r.db == nil {
		return domain.DealRecord{}, domain.ErrStoreUnavailable
	}

	query, args, err := updateQuery(id, update)
	if err != nil {
		return domain.DealRecord{}, fmt.Errorf("build update: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DealRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DealRecord{}, storeError("update deal", err)
	}
	return rec, nil
}

func findQuery(key string) (string, []any, error) {
	return psql.Select(dealColumns...).
		From(dealsTable).
		Where(sq.Eq{"dedup_key": key}).
		ToSql()
}

func insertQuery(key string, deal domain.NormalizedDeal, qualityScore float64) (string, []any, error) {
	return psql.Insert(dealsTable).
		Columns(
			"dedup_key", "title", "url", "description", "image_url", "merchant", "category",
			"published_at", "source", "external_id", "coupon_code", "price", "expires_at",
			"status", "quality_score",
		).
		Values(
			key, deal.Title, deal.URL, deal.Description, deal.ImageURL, deal.Merchant, deal.Category,
			nullTime(deal.PublishedAt), deal.Source, deal.ExternalID, deal.CouponCode, nullFloat(deal.Price), nullTime(deal.ExpiresAt),
			string(domain.StatusPending), qualityScore,
		).
		Suffix("RETURNING " + strings.Join(dealColumns, ", ")).
		ToSql()
}

func updateQuery(id int64, update domain.DealUpdate) (string, []any, error) {
	if update.Empty() {
		return "", nil, errors.New("empty update")
	}

	b := psql.Update(dealsTable)
	if update.Title != nil {
		b = b.Set("title", *update.Title)
	}
	if update.Price != nil {
		b = b.Set("price", *update.Price)
	}
	if update.CouponCode != nil {
		b = b.Set("coupon_code", *update.CouponCode)
	}
	if update.ExpiresAt != nil {
		b = b.Set("expires_at", update.ExpiresAt.UTC())
	}

	return b.Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(dealColumns, ", ")).
		ToSql()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.DealRecord, error) {
	var (
		rec       domain.DealRecord
		status    string
		published sql.NullTime
		expires   sql.NullTime
		price     sql.NullFloat64
	)

	err := row.Scan(
		&rec.ID, &rec.DedupKey, &rec.Deal.Title, &rec.Deal.URL, &rec.Deal.Description, &rec.Deal.ImageURL,
		&rec.Deal.Merchant, &rec.Deal.Category, &published, &rec.Deal.Source, &rec.Deal.ExternalID,
		&rec.Deal.CouponCode, &price, &expires, &status, &rec.QualityScore, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.DealRecord{}, err
	}

	rec.Status = domain.DealStatus(status)
	if published.Valid {
		t := published.Time.UTC()
		rec.Deal.PublishedAt = &t
	}
	if expires.Valid {
		t := expires.Time.UTC()
		rec.Deal.ExpiresAt = &t
	}
	if price.Valid {
		p := price.Float64
		rec.Deal.Price = &p
	}
	return rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// storeError wraps connection-class failures with domain.ErrStoreUnavailable.
func storeError(op string, err error) error {
	if connectionFailure(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func connectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return connectionClass(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return connectionClass(pgErr.Code)
	}
	return false
}

// connectionClass matches SQLSTATE class 08 (connection exception) and 57P (operator intervention).
func connectionClass(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
}
