package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyProcessed is returned when the message id is already in the ledger.
	ErrAlreadyProcessed = errors.New("message already processed")
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is the record store, the dedup ledger and the sent mail log.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to the database and applies the schema. driver is "postgres"
// (served by pgx) or "sqlite" (a file path or ":memory:").
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db     *sqlx.DB
		err    error
		schema string
	)

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "pgx", "postgresql":
		driver = DriverPostgres
		schema = postgresSchema
		db, err = sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	case DriverSQLite, "sqlite3", "":
		driver = DriverSQLite
		schema = sqliteSchema
		if dsn == "" {
			dsn = "bpmatch.db"
		}
		if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = sqlx.ConnectContext(ctx, "sqlite", withTimeFormat(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("record store ready", zap.String("driver", driver))

	return &Store{db: db, driver: driver, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Driver() string {
	return s.driver
}

// Seen returns the subset of ids already present in the ledger using one query.
func (s *Store) Seen(ctx context.Context, ids []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if len(ids) == 0 {
		return seen, nil
	}

	var (
		query string
		args  []any
	)

	if s.driver == DriverPostgres {
		query = `SELECT id FROM harvest_ledger WHERE id = ANY($1)`
		args = []any{pq.Array(ids)}
	} else {
		q, a, err := sqlx.In(`SELECT id FROM harvest_ledger WHERE id IN (?)`, ids)
		if err != nil {
			return nil, fmt.Errorf("build ledger query: %w", err)
		}
		query, args = s.db.Rebind(q), a
	}

	var found []string
	if err := s.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	for _, id := range found {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// MarkSeen adds a ledger entry on its own. Harvesting uses Save, which writes
// the entry together with the record.
func (s *Store) MarkSeen(ctx context.Context, id string, receivedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO harvest_ledger (id, received_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`),
		id, utcPtr(receivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Save persists rec and its ledger entry in one transaction. If the id is
// already ledgered nothing is written and ErrAlreadyProcessed is returned.
func (s *Store) Save(ctx context.Context, kind Kind, rec Record) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id is required")
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.Skills == nil {
		rec.Skills = SkillList{}
	}
	rec.ReceivedAt = utcPtr(rec.ReceivedAt)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO harvest_ledger (id, received_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`),
		rec.ID, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyProcessed
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, title, address, body, received_at, remark, country, skills, price, created_at)
		VALUES (:id, :title, :address, :body, :received_at, :remark, :country, :skills, :price, :created_at)
		ON CONFLICT (id) DO NOTHING`, table)

	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("insert %s record: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s record: %w", kind, err)
	}
	return nil
}

func (s *Store) SaveProject(ctx context.Context, rec Record) error {
	return s.Save(ctx, KindProject, rec)
}

func (s *Store) SaveTechnician(ctx context.Context, rec Record) error {
	return s.Save(ctx, KindTechnician, rec)
}

const recordColumns = `id, title, address, body, received_at, remark, country, skills, price, created_at`

// orderClause is the store iteration order used everywhere records are listed.
const orderClause = ` ORDER BY received_at DESC NULLS LAST, id ASC`

func (s *Store) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	table, err := kind.table()
	if err != nil {
		return Record{}, err
	}

	var rec Record
	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, table))
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (Record, error) {
	return s.Get(ctx, KindProject, id)
}

func (s *Store) GetTechnician(ctx context.Context, id string) (Record, error) {
	return s.Get(ctx, KindTechnician, id)
}

// List returns one page of records and the total number of matches.
func (s *Store) List(ctx context.Context, kind Kind, f Filter) ([]Record, int, error) {
	table, err := kind.table()
	if err != nil {
		return nil, 0, err
	}

	where, args := buildWhere(f)
	page, size := NormalizePage(f.Page, f.PageSize)

	var total int
	countQuery := s.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, table, where))
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count %s records: %w", kind, err)
	}

	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s%s%s LIMIT ? OFFSET ?`, recordColumns, table, where, orderClause))
	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, query, append(args, size, (page-1)*size)...); err != nil {
		return nil, 0, fmt.Errorf("list %s records: %w", kind, err)
	}

	return records, total, nil
}

func (s *Store) ListProjects(ctx context.Context, f Filter) ([]Record, int, error) {
	return s.List(ctx, KindProject, f)
}

func (s *Store) ListTechnicians(ctx context.Context, f Filter) ([]Record, int, error) {
	return s.List(ctx, KindTechnician, f)
}

// Technicians returns every technician record with the given country code in
// store iteration order.
func (s *Store) Technicians(ctx context.Context, country int) ([]Record, error) {
	return s.all(ctx, KindTechnician, country)
}

// Projects returns every project record with the given country code in store iteration order.
func (s *Store) Projects(ctx context.Context, country int) ([]Record, error) {
	return s.all(ctx, KindProject, country)
}

func (s *Store) all(ctx context.Context, kind Kind, country int) ([]Record, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE country = ?%s`, recordColumns, table, orderClause))
	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, query, country); err != nil {
		return nil, fmt.Errorf("select %s records: %w", kind, err)
	}
	return records, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Country != nil {
		conds = append(conds, "country = ?")
		args = append(args, *f.Country)
	}
	if skill := strings.ToLower(strings.TrimSpace(f.Skill)); skill != "" {
		conds = append(conds, "(',' || skills || ',') LIKE ?")
		args = append(args, "%,"+skill+",%")
	}
	if !f.Since.IsZero() {
		conds = append(conds, "received_at >= ?")
		args = append(args, f.Since.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// LogSent upserts an outgoing mail log entry.
func (s *Store) LogSent(ctx context.Context, m SentMail) error {
	if strings.TrimSpace(m.MessageID) == "" {
		return errors.New("sent mail message id is required")
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	m.SentAt = m.SentAt.UTC()
	if m.Attachments == nil {
		m.Attachments = NameList{}
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO sent_email_logs
		(message_id, thread_id, sent_at, to_addrs, cc_addrs, subject, body, attachments, mail_type)
		VALUES (:message_id, :thread_id, :sent_at, :to_addrs, :cc_addrs, :subject, :body, :attachments, :mail_type)
		ON CONFLICT (message_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			sent_at = EXCLUDED.sent_at,
			to_addrs = EXCLUDED.to_addrs,
			cc_addrs = EXCLUDED.cc_addrs,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			attachments = EXCLUDED.attachments,
			mail_type = EXCLUDED.mail_type`, m)
	if err != nil {
		return fmt.Errorf("log sent mail: %w", err)
	}
	return nil
}

// ListSent returns the sent mail log newest first.
func (s *Store) ListSent(ctx context.Context, page, size int) ([]SentMail, int, error) {
	page, size = NormalizePage(page, size)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sent_email_logs`); err != nil {
		return nil, 0, fmt.Errorf("count sent mail: %w", err)
	}

	items := []SentMail{}
	query := s.db.Rebind(`SELECT message_id, thread_id, sent_at, to_addrs, cc_addrs, subject, body, attachments, mail_type
		FROM sent_email_logs ORDER BY sent_at DESC, message_id ASC LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &items, query, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list sent mail: %w", err)
	}
	return items, total, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// withTimeFormat makes the sqlite driver store times in a sortable layout it can parse back.
func withTimeFormat(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_time_format=sqlite"
	}
	return dsn + "?_time_format=sqlite"
}
