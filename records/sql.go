package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/maxmusicschool/schoolauth/records/migrations"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
}

func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "pgx"
}

const studentColumns = `id, name, contact, email, batch_name, password_hash, class_days,
	time_from, time_till, subject, course, mode, start_date, end_date, days, classes,
	status, teacher, paid_amount, upcoming_amount, upcoming_days, upcoming_classes,
	rep, attendance_percentage`

const teacherColumns = `id, name, contact, email, password_hash, subject, status, admin`

const logColumns = `id, ts, action, user_id, details, extra, status`

// SQLStore is a Store over database/sql. Queries are written with $N
// placeholders and rebound to ?N for sqlite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database. It performs no I/O.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Open opens and pings a database of the given dialect. SQLite handles
// are limited to one connection so ":memory:" databases stay shared.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dbError(err)
	}
	return NewSQLStore(db, dialect), nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return fmt.Errorf("migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (Student, error) {
	var st Student
	err := row.Scan(&st.ID, &st.Name, &st.Contact, &st.Email, &st.BatchName, &st.PasswordHash,
		&st.ClassDays, &st.TimeFrom, &st.TimeTill, &st.Subject, &st.Course, &st.Mode,
		&st.StartDate, &st.EndDate, &st.Days, &st.Classes, &st.Status, &st.Teacher,
		&st.PaidAmount, &st.UpcomingAmount, &st.UpcomingDays, &st.UpcomingClasses,
		&st.Rep, &st.AttendancePercentage)
	return st, err
}

func studentArgs(st Student) []any {
	return []any{st.ID, st.Name, st.Contact, st.Email, st.BatchName, st.PasswordHash,
		st.ClassDays, st.TimeFrom, st.TimeTill, st.Subject, st.Course, string(st.Mode),
		st.StartDate, st.EndDate, st.Days, st.Classes, string(st.Status), st.Teacher,
		st.PaidAmount, st.UpcomingAmount, st.UpcomingDays, st.UpcomingClasses,
		st.Rep, st.AttendancePercentage}
}

func scanTeacher(row scanner) (Teacher, error) {
	var t Teacher
	err := row.Scan(&t.ID, &t.Name, &t.Contact, &t.Email, &t.PasswordHash, &t.Subject, &t.Status, &t.Admin)
	return t, err
}

func (s *SQLStore) studentWhere(ctx context.Context, db DBTX, where string, arg any) (Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE ` + where
	st, err := scanStudent(db.QueryRowContext(ctx, s.q(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, dbError(err)
	}
	return st, nil
}

func (s *SQLStore) StudentByID(ctx context.Context, id string) (Student, error) {
	return s.studentWhere(ctx, s.db, `id = $1`, id)
}

func (s *SQLStore) StudentByEmail(ctx context.Context, email string) (Student, error) {
	return s.studentWhere(ctx, s.db, `email = $1`, NormalizeEmail(email))
}

func (s *SQLStore) Students(ctx context.Context) ([]Student, error) {
	return s.students(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
}

func (s *SQLStore) StudentsByBatch(ctx context.Context, batchName string) ([]Student, error) {
	return s.students(ctx, `SELECT `+studentColumns+` FROM students WHERE batch_name = $1 ORDER BY id`, batchName)
}

func (s *SQLStore) students(ctx context.Context, query string, args ...any) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := []Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (s *SQLStore) CreateStudent(ctx context.Context, st Student) (Student, error) {
	st.Email = NormalizeEmail(st.Email)
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if err := st.Validate(); err != nil {
		return Student{}, err
	}

	query := `INSERT INTO students (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24)`
	if _, err := s.db.ExecContext(ctx, s.q(query), studentArgs(st)...); err != nil {
		return Student{}, writeError(err)
	}
	return st, nil
}

func (s *SQLStore) UpdateStudent(ctx context.Context, id string, fn func(*Student) error) (Student, Student, error) {
	var before, after Student
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		where := `id = $1`
		if s.dialect == DialectPostgres {
			where += ` FOR UPDATE`
		}
		current, err := s.studentWhere(ctx, tx, where, id)
		if err != nil {
			return err
		}
		before, after = current, current
		if err := fn(&after); err != nil {
			return err
		}
		after.ID = before.ID
		after.Email = NormalizeEmail(after.Email)
		if err := after.Validate(); err != nil {
			return err
		}

		query := `UPDATE students SET name = $2, contact = $3, email = $4, batch_name = $5,
			password_hash = $6, class_days = $7, time_from = $8, time_till = $9, subject = $10,
			course = $11, mode = $12, start_date = $13, end_date = $14, days = $15, classes = $16,
			status = $17, teacher = $18, paid_amount = $19, upcoming_amount = $20,
			upcoming_days = $21, upcoming_classes = $22, rep = $23, attendance_percentage = $24
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, s.q(query), studentArgs(after)...); err != nil {
			return writeError(err)
		}
		return nil
	})
	if err != nil {
		return Student{}, Student{}, err
	}
	return before, after, nil
}

func (s *SQLStore) teacherWhere(ctx context.Context, db DBTX, where string, arg any) (Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE ` + where
	t, err := scanTeacher(db.QueryRowContext(ctx, s.q(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Teacher{}, ErrNotFound
		}
		return Teacher{}, dbError(err)
	}
	return t, nil
}

func (s *SQLStore) TeacherByID(ctx context.Context, id string) (Teacher, error) {
	return s.teacherWhere(ctx, s.db, `id = $1`, id)
}

func (s *SQLStore) TeacherByEmail(ctx context.Context, email string) (Teacher, error) {
	return s.teacherWhere(ctx, s.db, `email = $1`, NormalizeEmail(email))
}

func (s *SQLStore) Teachers(ctx context.Context) ([]Teacher, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teacherColumns+` FROM teachers ORDER BY id`)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := []Teacher{}
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (s *SQLStore) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	t.Email = NormalizeEmail(t.Email)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return Teacher{}, err
	}

	query := `INSERT INTO teachers (` + teacherColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, s.q(query),
		t.ID, t.Name, t.Contact, t.Email, t.PasswordHash, t.Subject, string(t.Status), t.Admin)
	if err != nil {
		return Teacher{}, writeError(err)
	}
	return t, nil
}

func (s *SQLStore) UpdateTeacher(ctx context.Context, id string, fn func(*Teacher) error) (Teacher, Teacher, error) {
	var before, after Teacher
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		where := `id = $1`
		if s.dialect == DialectPostgres {
			where += ` FOR UPDATE`
		}
		current, err := s.teacherWhere(ctx, tx, where, id)
		if err != nil {
			return err
		}
		before, after = current, current
		if err := fn(&after); err != nil {
			return err
		}
		after.ID = before.ID
		after.Email = NormalizeEmail(after.Email)
		if err := after.Validate(); err != nil {
			return err
		}

		query := `UPDATE teachers SET name = $2, contact = $3, email = $4, password_hash = $5,
			subject = $6, status = $7, admin = $8 WHERE id = $1`
		_, err = tx.ExecContext(ctx, s.q(query), after.ID, after.Name, after.Contact, after.Email,
			after.PasswordHash, after.Subject, string(after.Status), after.Admin)
		if err != nil {
			return writeError(err)
		}
		return nil
	})
	if err != nil {
		return Teacher{}, Teacher{}, err
	}
	return before, after, nil
}

func (s *SQLStore) AppendLog(ctx context.Context, e LogEntry) (LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
	if err := e.Validate(); err != nil {
		return LogEntry{}, err
	}
	extra, err := encodeExtra(e.Extra)
	if err != nil {
		return LogEntry{}, err
	}

	query := `INSERT INTO activity_logs (` + logColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.ExecContext(ctx, s.q(query),
		e.ID, e.Timestamp.UnixMilli(), string(e.Action), e.UserID, e.Details, extra, string(e.Status))
	if err != nil {
		return LogEntry{}, writeError(err)
	}
	return e, nil
}

func (s *SQLStore) Logs(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("ts >= ?", f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		add("ts < ?", f.Until.UnixMilli())
	}

	query := `SELECT ` + logColumns + ` FROM activity_logs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY ts, id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := []LogEntry{}
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		if f.ExtraKey != "" && e.Extra[f.ExtraKey] != f.ExtraValue {
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (s *SQLStore) UpdateLog(ctx context.Context, id string, fn func(*LogEntry) error) (LogEntry, error) {
	var next LogEntry
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		query := `SELECT ` + logColumns + ` FROM activity_logs WHERE id = $1`
		if s.dialect == DialectPostgres {
			query += ` FOR UPDATE`
		}
		current, err := scanLog(tx.QueryRowContext(ctx, s.q(query), id))
		if err != nil {
			return err
		}
		next = current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = id
		if err := next.Validate(); err != nil {
			return err
		}
		extra, err := encodeExtra(next.Extra)
		if err != nil {
			return err
		}

		update := `UPDATE activity_logs SET action = $2, user_id = $3, details = $4, extra = $5, status = $6 WHERE id = $1`
		_, err = tx.ExecContext(ctx, s.q(update), id, string(next.Action), next.UserID, next.Details, extra, string(next.Status))
		if err != nil {
			return writeError(err)
		}
		return nil
	})
	if err != nil {
		return LogEntry{}, err
	}
	return next, nil
}

func scanLog(row scanner) (LogEntry, error) {
	var (
		e     LogEntry
		ts    int64
		extra string
	)
	if err := row.Scan(&e.ID, &ts, &e.Action, &e.UserID, &e.Details, &extra, &e.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LogEntry{}, ErrNotFound
		}
		return LogEntry{}, dbError(err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &e.Extra); err != nil {
			return LogEntry{}, fmt.Errorf("%w: log %s has malformed extra: %v", ErrInvalidRecord, e.ID, err)
		}
	}
	return e, nil
}

func encodeExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("%w: extra: %v", ErrInvalidRecord, err)
	}
	return string(b), nil
}

func dbError(err error) error {
	return fmt.Errorf("%w: db error: %v", ErrUnavailable, err)
}

// writeError maps unique-constraint violations to ErrDuplicate.
func writeError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicate
		}
	}
	return dbError(err)
}
