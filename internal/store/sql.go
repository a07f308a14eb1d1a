package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	date           TEXT NOT NULL,
	role           TEXT NOT NULL,
	city           TEXT NOT NULL,
	duration_hours DOUBLE PRECISION NOT NULL,
	status         TEXT NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	seq            INTEGER NOT NULL
)`

const taskColumns = `id, title, description, date, role, city, duration_hours, status, notes`

// SQLStore is a tasks.Store on SQLite or PostgreSQL.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// IsPostgresDSN reports whether dsn names a PostgreSQL database rather than a SQLite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenSQL opens dsn with the matching driver and creates the schema.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	driver := "sqlite"
	if IsPostgresDSN(dsn) {
		driver = "postgres"
	} else if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLStore{db: db, postgres: driver == "postgres"}
	if _, err := db.ExecContext(ctx, createTasksTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (tasks.Task, error) {
	var t tasks.Task
	var role, status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Date, &role, &t.City, &t.DurationHours, &status, &t.Notes)
	t.Role = tasks.Role(role)
	t.Status = tasks.Status(status)
	return t, err
}

func (s *SQLStore) List(ctx context.Context) ([]tasks.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id string) (tasks.Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tasks.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return tasks.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) Add(ctx context.Context, t tasks.Task) error {
	if _, err := s.Get(ctx, t.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrConflict, t.ID)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tasks (`+taskColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))`),
		t.ID, t.Title, t.Description, t.Date, string(t.Role), t.City, t.DurationHours, string(t.Status), t.Notes,
	)
	if err != nil {
		return fmt.Errorf("add task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, t tasks.Task) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tasks
		SET title = ?, description = ?, date = ?, role = ?, city = ?, duration_hours = ?, status = ?, notes = ?
		WHERE id = ?`),
		t.Title, t.Description, t.Date, string(t.Role), t.City, t.DurationHours, string(t.Status), t.Notes, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	return nil
}
