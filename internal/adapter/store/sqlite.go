package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dealdesk/internal/domain"
)

// SQLiteStore implements domain.CacheStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS deals (
			id          INTEGER PRIMARY KEY,
			title       TEXT NOT NULL,
			value       REAL NOT NULL DEFAULT 0,
			currency    TEXT NOT NULL DEFAULT 'EUR',
			status      TEXT NOT NULL DEFAULT 'open',
			stage       TEXT NOT NULL DEFAULT '',
			person_id   INTEGER NOT NULL DEFAULT 0,
			org_id      INTEGER NOT NULL DEFAULT 0,
			owner_name  TEXT NOT NULL DEFAULT '',
			add_time    TEXT NOT NULL,
			update_time TEXT NOT NULL,
			close_time  TEXT
		);
		CREATE TABLE IF NOT EXISTS persons (
			id          INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			org_id      INTEGER NOT NULL DEFAULT 0,
			org_name    TEXT NOT NULL DEFAULT '',
			update_time TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS organizations (
			id          INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			address     TEXT NOT NULL DEFAULT '',
			open_deals  INTEGER NOT NULL DEFAULT 0,
			update_time TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS activities (
			id       INTEGER PRIMARY KEY,
			type     TEXT NOT NULL,
			subject  TEXT NOT NULL,
			deal_id  INTEGER NOT NULL DEFAULT 0,
			done     INTEGER NOT NULL DEFAULT 0,
			due_time TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS bonuses (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			employee   TEXT NOT NULL,
			amount     REAL NOT NULL,
			currency   TEXT NOT NULL DEFAULT 'EUR',
			reason     TEXT NOT NULL DEFAULT '',
			deal_id    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS documents (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			deal_id    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS emails (
			id          TEXT PRIMARY KEY,
			subject     TEXT NOT NULL DEFAULT '',
			sender      TEXT NOT NULL DEFAULT '',
			recipient   TEXT NOT NULL DEFAULT '',
			preview     TEXT NOT NULL DEFAULT '',
			received_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *SQLiteStore) UpsertDeals(ctx context.Context, deals []domain.Deal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range deals {
		var closeTime any
		if d.CloseTime != nil {
			closeTime = fmtTime(*d.CloseTime)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deals (id, title, value, currency, status, stage, person_id, org_id, owner_name, add_time, update_time, close_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, value = excluded.value, currency = excluded.currency,
				status = excluded.status, stage = excluded.stage, person_id = excluded.person_id,
				org_id = excluded.org_id, owner_name = excluded.owner_name,
				update_time = excluded.update_time, close_time = excluded.close_time`,
			d.ID, d.Title, d.Value, d.Currency, d.Status, d.Stage, d.PersonID, d.OrgID,
			d.OwnerName, fmtTime(d.AddTime), fmtTime(d.UpdateTime), closeTime,
		)
		if err != nil {
			return fmt.Errorf("upsert deal %d: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) QueryDeals(ctx context.Context, f domain.DealFilter) ([]domain.Deal, error) {
	query := "SELECT id, title, value, currency, status, stage, person_id, org_id, owner_name, add_time, update_time, close_time FROM deals"
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Stage != "" {
		conds = append(conds, "stage = ?")
		args = append(args, f.Stage)
	}
	if f.OrgID != 0 {
		conds = append(conds, "org_id = ?")
		args = append(args, f.OrgID)
	}
	if f.MinValue > 0 {
		conds = append(conds, "value >= ?")
		args = append(args, f.MinValue)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY value DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		var d domain.Deal
		var addStr, updStr string
		var closeStr sql.NullString
		if err := rows.Scan(&d.ID, &d.Title, &d.Value, &d.Currency, &d.Status, &d.Stage,
			&d.PersonID, &d.OrgID, &d.OwnerName, &addStr, &updStr, &closeStr); err != nil {
			return nil, err
		}
		d.AddTime = parseTime(addStr)
		d.UpdateTime = parseTime(updStr)
		if closeStr.Valid {
			ct := parseTime(closeStr.String)
			d.CloseTime = &ct
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (s *SQLiteStore) UpsertPersons(ctx context.Context, persons []domain.Person) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range persons {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO persons (id, name, email, phone, org_id, org_name, update_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, email = excluded.email, phone = excluded.phone,
				org_id = excluded.org_id, org_name = excluded.org_name,
				update_time = excluded.update_time`,
			p.ID, p.Name, p.Email, p.Phone, p.OrgID, p.OrgName, fmtTime(p.UpdateTime),
		)
		if err != nil {
			return fmt.Errorf("upsert person %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) QueryPersons(ctx context.Context, query string, limit int) ([]domain.Person, error) {
	sqlQuery := "SELECT id, name, email, phone, org_id, org_name, update_time FROM persons"
	var args []any
	if query != "" {
		sqlQuery += " WHERE name LIKE ? OR email LIKE ? OR org_name LIKE ?"
		like := "%" + query + "%"
		args = append(args, like, like, like)
	}
	sqlQuery += " ORDER BY name"
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []domain.Person
	for rows.Next() {
		var p domain.Person
		var updStr string
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.OrgID, &p.OrgName, &updStr); err != nil {
			return nil, err
		}
		p.UpdateTime = parseTime(updStr)
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (s *SQLiteStore) UpsertOrganizations(ctx context.Context, orgs []domain.Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, o := range orgs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organizations (id, name, address, open_deals, update_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, address = excluded.address,
				open_deals = excluded.open_deals, update_time = excluded.update_time`,
			o.ID, o.Name, o.Address, o.OpenDeals, fmtTime(o.UpdateTime),
		)
		if err != nil {
			return fmt.Errorf("upsert organization %d: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertActivities(ctx context.Context, activities []domain.Activity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range activities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activities (id, type, subject, deal_id, done, due_time)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type = excluded.type, subject = excluded.subject, deal_id = excluded.deal_id,
				done = excluded.done, due_time = excluded.due_time`,
			a.ID, a.Type, a.Subject, a.DealID, a.Done, fmtTime(a.DueTime),
		)
		if err != nil {
			return fmt.Errorf("upsert activity %d: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) QueryActivities(ctx context.Context, dealID int64, limit int) ([]domain.Activity, error) {
	query := "SELECT id, type, subject, deal_id, done, due_time FROM activities"
	var args []any
	if dealID != 0 {
		query += " WHERE deal_id = ?"
		args = append(args, dealID)
	}
	query += " ORDER BY due_time"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var dueStr string
		if err := rows.Scan(&a.ID, &a.Type, &a.Subject, &a.DealID, &a.Done, &dueStr); err != nil {
			return nil, err
		}
		a.DueTime = parseTime(dueStr)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *SQLiteStore) InsertBonus(ctx context.Context, b *domain.Bonus) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bonuses (employee, amount, currency, reason, deal_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.Employee, b.Amount, b.Currency, b.Reason, b.DealID, fmtTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert bonus: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListBonuses(ctx context.Context, limit int) ([]domain.Bonus, error) {
	query := "SELECT id, employee, amount, currency, reason, deal_id, created_at FROM bonuses ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bonuses []domain.Bonus
	for rows.Next() {
		var b domain.Bonus
		var createdStr string
		if err := rows.Scan(&b.ID, &b.Employee, &b.Amount, &b.Currency, &b.Reason, &b.DealID, &createdStr); err != nil {
			return nil, err
		}
		b.CreatedAt = parseTime(createdStr)
		bonuses = append(bonuses, b)
	}
	return bonuses, rows.Err()
}

func (s *SQLiteStore) InsertDocument(ctx context.Context, d *domain.Document) error {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (title, body, deal_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Title, d.Body, d.DealID, fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, dealID int64, limit int) ([]domain.Document, error) {
	query := "SELECT id, title, body, deal_id, created_at, updated_at FROM documents"
	var args []any
	if dealID != 0 {
		query += " WHERE deal_id = ?"
		args = append(args, dealID)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		var createdStr, updatedStr string
		if err := rows.Scan(&d.ID, &d.Title, &d.Body, &d.DealID, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTime(createdStr)
		d.UpdatedAt = parseTime(updatedStr)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) UpsertEmails(ctx context.Context, emails []domain.EmailMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range emails {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO emails (id, subject, sender, recipient, preview, received_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				subject = excluded.subject, sender = excluded.sender, recipient = excluded.recipient,
				preview = excluded.preview, received_at = excluded.received_at`,
			m.ID, m.Subject, m.From, m.To, m.Preview, fmtTime(m.ReceivedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert email %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SearchEmails(ctx context.Context, query string, limit int) ([]domain.EmailMessage, error) {
	sqlQuery := `SELECT id, subject, sender, recipient, preview, received_at FROM emails
		WHERE subject LIKE ? OR sender LIKE ? OR preview LIKE ?
		ORDER BY received_at DESC`
	like := "%" + query + "%"
	args := []any{like, like, like}
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []domain.EmailMessage
	for rows.Next() {
		var m domain.EmailMessage
		var recvStr string
		if err := rows.Scan(&m.ID, &m.Subject, &m.From, &m.To, &m.Preview, &recvStr); err != nil {
			return nil, err
		}
		m.ReceivedAt = parseTime(recvStr)
		emails = append(emails, m)
	}
	return emails, rows.Err()
}

func (s *SQLiteStore) Summary(ctx context.Context) (*domain.DashboardSummary, error) {
	var sum domain.DashboardSummary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'open' THEN 1 END),
			COUNT(CASE WHEN status = 'won' THEN 1 END),
			COUNT(CASE WHEN status = 'lost' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'open' THEN value END), 0),
			COALESCE(SUM(CASE WHEN status = 'won' THEN value END), 0)
		FROM deals`)
	if err := row.Scan(&sum.OpenDeals, &sum.WonDeals, &sum.LostDeals, &sum.PipelineValue, &sum.WonValue); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons").Scan(&sum.Contacts); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&sum.Activities); err != nil {
		return nil, err
	}
	return &sum, nil
}

var _ domain.CacheStore = (*SQLiteStore)(nil)
