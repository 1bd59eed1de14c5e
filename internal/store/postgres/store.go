package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"moledger/internal/models"
)

const uniqueViolation = "23505"

// Store is the Postgres-backed catalog and MO ledger. It exposes the same
// methods as the sqlite store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool. Migrations are not applied.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetProduct(ctx context.Context, partNo string) (models.CatalogEntry, error) {
	const query = `SELECT part_no, name, customer_part_no, material, stations, model FROM products WHERE part_no = $1`
	var e models.CatalogEntry
	var stations []byte
	err := s.pool.QueryRow(ctx, query, partNo).Scan(&e.PartNo, &e.Name, &e.CustomerPartNo, &e.Material, &stations, &e.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CatalogEntry{}, fmt.Errorf("part %s: %w", partNo, models.ErrNotFound)
	}
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf("get product: %w", err)
	}
	if e.Stations, err = decodeStations(stations); err != nil {
		return models.CatalogEntry{}, fmt.Errorf("product %s stations: %w", partNo, err)
	}
	return e, nil
}

func (s *Store) UpsertProduct(ctx context.Context, e models.CatalogEntry) error {
	const query = `
INSERT INTO products (part_no, name, customer_part_no, material, stations, model, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (part_no) DO UPDATE SET
	name = EXCLUDED.name,
	customer_part_no = EXCLUDED.customer_part_no,
	material = EXCLUDED.material,
	stations = EXCLUDED.stations,
	model = EXCLUDED.model,
	updated_at = NOW()`
	stations, err := json.Marshal(e.Stations.Defined())
	if err != nil {
		return fmt.Errorf("encode stations: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, e.PartNo, e.Name, e.CustomerPartNo, e.Material, stations, e.Model); err != nil {
		return fmt.Errorf("upsert product %s: %w", e.PartNo, err)
	}
	return nil
}

func (s *Store) AppendRecord(ctx context.Context, rec models.MORecord) error {
	const query = `
INSERT INTO mo_records (mo_id, created_at, part_no, order_no, name, customer_part_no, material, quantity, stations, model)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	stations, err := json.Marshal(rec.Stations.Defined())
	if err != nil {
		return fmt.Errorf("encode stations: %w", err)
	}
	_, err = s.pool.Exec(ctx, query, rec.MOID, rec.CreatedAt, rec.PartNo, rec.OrderNo, rec.Name,
		rec.CustomerPartNo, rec.Material, rec.Quantity, stations, rec.Model)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("append %s: %w", rec.MOID, models.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.MOID, err)
	}
	return nil
}

func (s *Store) LastIDWithPrefix(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT mo_id FROM mo_records WHERE starts_with(mo_id, $1) ORDER BY seq DESC LIMIT 1`
	var id string
	err := s.pool.QueryRow(ctx, query, prefix).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last id for %s: %w", prefix, err)
	}
	return id, nil
}

const recordColumns = `mo_id, created_at, part_no, order_no, name, customer_part_no, material, quantity, stations, model`

func (s *Store) Scan(ctx context.Context) ([]models.MORecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM mo_records ORDER BY seq`)
}

func (s *Store) FindByOrder(ctx context.Context, orderNo string) ([]models.MORecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM mo_records WHERE order_no = $1 ORDER BY seq`, orderNo)
}

func (s *Store) GetRecord(ctx context.Context, moID string) (models.MORecord, error) {
	recs, err := s.queryRecords(ctx, `SELECT `+recordColumns+` FROM mo_records WHERE mo_id = $1 ORDER BY seq LIMIT 1`, moID)
	if err != nil {
		return models.MORecord{}, err
	}
	if len(recs) == 0 {
		return models.MORecord{}, fmt.Errorf("mo %s: %w", moID, models.ErrNotFound)
	}
	return recs[0], nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]models.MORecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []models.MORecord
	for rows.Next() {
		var rec models.MORecord
		var createdAt time.Time
		var stations []byte
		if err := rows.Scan(&rec.MOID, &createdAt, &rec.PartNo, &rec.OrderNo, &rec.Name, &rec.CustomerPartNo,
			&rec.Material, &rec.Quantity, &stations, &rec.Model); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.CreatedAt = createdAt
		if rec.Stations, err = decodeStations(stations); err != nil {
			return nil, fmt.Errorf("record %s stations: %w", rec.MOID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) RecordAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_log (username, action, module, record_id, summary) VALUES ($1, $2, $3, $4, $5)`,
		e.Username, e.Action, e.Module, e.RecordID, e.Summary)
	return err
}

func (s *Store) RecordEmail(ctx context.Context, e models.EmailLogEntry) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO email_log (to_address, subject, event_type, status, error) VALUES ($1, $2, $3, $4, $5)`,
		e.To, e.Subject, e.EventType, e.Status, e.Error)
	return err
}

func (s *Store) ListEmailLog(ctx context.Context, limit int) ([]models.EmailLogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, to_address, subject, event_type, status, error, sent_at FROM email_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list email log: %w", err)
	}
	defer rows.Close()

	var out []models.EmailLogEntry
	for rows.Next() {
		var e models.EmailLogEntry
		var id int64
		var sentAt time.Time
		if err := rows.Scan(&id, &e.To, &e.Subject, &e.EventType, &e.Status, &e.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		e.ID = int(id)
		e.SentAt = sentAt.UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	return out, rows.Err()
}

func decodeStations(raw []byte) (models.Stations, error) {
	if len(raw) == 0 {
		return models.Stations{}, nil
	}
	var list []models.StationSpec
	if err := json.Unmarshal(raw, &list); err != nil {
		return models.Stations{}, err
	}
	return models.StationsFrom(list), nil
}
