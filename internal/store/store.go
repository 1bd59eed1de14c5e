package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"moledger/internal/models"
)

const timeLayout = time.RFC3339

// Store is the sqlite-backed catalog and MO ledger. The ledger is append-only;
// the seq column preserves append order.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and applies migrations.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite can handle 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and applies migrations.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS products (
			part_no TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			customer_part_no TEXT NOT NULL DEFAULT '',
			material TEXT NOT NULL DEFAULT '',
			stations TEXT NOT NULL DEFAULT '[]',
			model TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mo_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			mo_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			part_no TEXT NOT NULL,
			order_no TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			customer_part_no TEXT NOT NULL DEFAULT '',
			material TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL CHECK(quantity > 0),
			stations TEXT NOT NULL DEFAULT '[]',
			model TEXT NOT NULL DEFAULT ''
		)`,
		`DROP INDEX IF EXISTS idx_mo_records_mo_id`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_mo_records_mo_id_unique ON mo_records(mo_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mo_records_order_no ON mo_records(order_no)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS email_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			to_address TEXT NOT NULL,
			subject TEXT NOT NULL,
			event_type TEXT DEFAULT '',
			status TEXT NOT NULL,
			error TEXT DEFAULT '',
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// GetProduct looks up a catalog entry by exact part number.
func (s *Store) GetProduct(ctx context.Context, partNo string) (models.CatalogEntry, error) {
	var e models.CatalogEntry
	var stations string
	err := s.db.QueryRowContext(ctx,
		"SELECT part_no,name,customer_part_no,material,stations,model FROM products WHERE part_no=?", partNo).
		Scan(&e.PartNo, &e.Name, &e.CustomerPartNo, &e.Material, &stations, &e.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CatalogEntry{}, fmt.Errorf("part %s: %w", partNo, models.ErrNotFound)
	}
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf("get product %s: %w", partNo, err)
	}
	if e.Stations, err = decodeStations(stations); err != nil {
		return models.CatalogEntry{}, fmt.Errorf("product %s stations: %w", partNo, err)
	}
	return e, nil
}

// UpsertProduct inserts or replaces a catalog entry.
func (s *Store) UpsertProduct(ctx context.Context, e models.CatalogEntry) error {
	stations, err := encodeStations(e.Stations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO products (part_no,name,customer_part_no,material,stations,model,updated_at)
		VALUES (?,?,?,?,?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(part_no) DO UPDATE SET name=excluded.name, customer_part_no=excluded.customer_part_no,
			material=excluded.material, stations=excluded.stations, model=excluded.model, updated_at=CURRENT_TIMESTAMP`,
		e.PartNo, e.Name, e.CustomerPartNo, e.Material, stations, e.Model)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", e.PartNo, err)
	}
	return nil
}

// AppendRecord appends an MO record to the ledger.
func (s *Store) AppendRecord(ctx context.Context, rec models.MORecord) error {
	stations, err := encodeStations(rec.Stations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO mo_records
		(mo_id,created_at,part_no,order_no,name,customer_part_no,material,quantity,stations,model)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.MOID, rec.CreatedAt.Format(timeLayout), rec.PartNo, rec.OrderNo, rec.Name, rec.CustomerPartNo,
		rec.Material, rec.Quantity, stations, rec.Model)
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("append %s: %w", rec.MOID, models.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.MOID, err)
	}
	return nil
}

// LastIDWithPrefix returns the most recently appended MO id starting with
// prefix, or "" when the period has no records.
func (s *Store) LastIDWithPrefix(ctx context.Context, prefix string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT mo_id FROM mo_records WHERE substr(mo_id,1,?)=? ORDER BY seq DESC LIMIT 1", len(prefix), prefix).
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last id for %s: %w", prefix, err)
	}
	return id, nil
}

const recordColumns = "mo_id,created_at,part_no,order_no,name,customer_part_no,material,quantity,stations,model"

// Scan returns every ledger record in append order.
func (s *Store) Scan(ctx context.Context) ([]models.MORecord, error) {
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM mo_records ORDER BY seq")
}

// FindByOrder returns the records whose order number equals orderNo exactly,
// in append order.
func (s *Store) FindByOrder(ctx context.Context, orderNo string) ([]models.MORecord, error) {
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM mo_records WHERE order_no=? ORDER BY seq", orderNo)
}

// GetRecord returns the first record appended under moID.
func (s *Store) GetRecord(ctx context.Context, moID string) (models.MORecord, error) {
	recs, err := s.queryRecords(ctx, "SELECT "+recordColumns+" FROM mo_records WHERE mo_id=? ORDER BY seq LIMIT 1", moID)
	if err != nil {
		return models.MORecord{}, err
	}
	if len(recs) == 0 {
		return models.MORecord{}, fmt.Errorf("mo %s: %w", moID, models.ErrNotFound)
	}
	return recs[0], nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...interface{}) ([]models.MORecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out []models.MORecord
	for rows.Next() {
		var rec models.MORecord
		var createdAt, stations string
		if err := rows.Scan(&rec.MOID, &createdAt, &rec.PartNo, &rec.OrderNo, &rec.Name, &rec.CustomerPartNo,
			&rec.Material, &rec.Quantity, &stations, &rec.Model); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("record %s created_at: %w", rec.MOID, err)
		}
		if rec.Stations, err = decodeStations(stations); err != nil {
			return nil, fmt.Errorf("record %s stations: %w", rec.MOID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordAudit writes one audit_log row.
func (s *Store) RecordAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		e.Username, e.Action, e.Module, e.RecordID, e.Summary)
	return err
}

// RecordEmail writes one email_log row.
func (s *Store) RecordEmail(ctx context.Context, e models.EmailLogEntry) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO email_log (to_address, subject, event_type, status, error, sent_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.To, e.Subject, e.EventType, e.Status, e.Error, time.Now().Format("2006-01-02 15:04:05"))
	return err
}

// ListEmailLog returns the most recent notifier attempts.
func (s *Store) ListEmailLog(ctx context.Context, limit int) ([]models.EmailLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, to_address, subject, COALESCE(event_type,''), status, COALESCE(error,''), sent_at FROM email_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.EmailLogEntry
	for rows.Next() {
		var e models.EmailLogEntry
		if err := rows.Scan(&e.ID, &e.To, &e.Subject, &e.EventType, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// ListAudit returns the most recent audit rows for a module.
func (s *Store) ListAudit(ctx context.Context, module string, limit int) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, COALESCE(username,''), action, module, record_id, COALESCE(summary,''), created_at FROM audit_log WHERE module=? ORDER BY id DESC LIMIT ?", module, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func encodeStations(s models.Stations) (string, error) {
	b, err := json.Marshal(s.Defined())
	if err != nil {
		return "", fmt.Errorf("encode stations: %w", err)
	}
	return string(b), nil
}

func decodeStations(raw string) (models.Stations, error) {
	if strings.TrimSpace(raw) == "" {
		return models.Stations{}, nil
	}
	var list []models.StationSpec
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return models.Stations{}, err
	}
	return models.StationsFrom(list), nil
}
