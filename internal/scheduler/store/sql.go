package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// SQL stores entities as JSON documents next to the columns queries filter on.
// It runs on sqlite and postgres.
type SQL struct {
	db       *sql.DB
	postgres bool
}

var _ Store = (*SQL)(nil)

// OpenSQL connects to the configured database and applies migrations.
func OpenSQL(ctx context.Context, opts *options.DatabaseOptions) (*SQL, error) {
	driver := "sqlite"
	if opts.Driver == options.DriverPostgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	if driver == "sqlite" {
		// SQLite prefers a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s, err := NewSQL(ctx, db, driver == "pgx")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database and applies migrations.
func NewSQL(ctx context.Context, db *sql.DB, postgres bool) (*SQL, error) {
	s := &SQL{db: db, postgres: postgres}
	if !postgres {
		_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQL) Robots() core.RobotRepository                  { return sqlRobots{s} }
func (s *SQL) MissionRuns() core.MissionRunRepository        { return sqlRuns{s} }
func (s *SQL) Definitions() core.MissionDefinitionRepository { return sqlDefinitions{s} }
func (s *SQL) Areas() core.AreaRepository                    { return sqlAreas{s} }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQL) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (s *SQL) execOne(ctx context.Context, kind, id, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	return affectedOne(kind, id, res, err)
}

func affectedOne(kind, id string, res sql.Result, err error) error {
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", kind, id, ErrAlreadyExists)
		}
		return fmt.Errorf("%s %q: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NewNotFound(kind, id)
	}
	return nil
}

// maxModifyAttempts bounds the compare-and-swap retries of Modify.
const maxModifyAttempts = 8

// modifyRow reads the document and its version, applies mutate and writes the
// result only if the version is unchanged, retrying on a lost race.
func modifyRow[T any](ctx context.Context, s *SQL, kind, table, id string, mutate func(*T) error, save func(v *T, version int64) (sql.Result, error)) (*T, error) {
	for range maxModifyAttempts {
		var (
			doc     string
			version int64
		)
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT doc, version FROM `+table+` WHERE id = ?`), id).Scan(&doc, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFound(kind, id)
		}
		if err != nil {
			return nil, fmt.Errorf("query %s %q: %w", kind, id, err)
		}

		v, err := decode[T]([]byte(doc))
		if err != nil {
			return nil, err
		}
		if err := mutate(v); err != nil {
			if errors.Is(err, core.ErrUnchanged) {
				return v, nil
			}
			return nil, err
		}

		res, err := save(v, version)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%s %q: %w", kind, id, ErrAlreadyExists)
			}
			return nil, fmt.Errorf("update %s %q: %w", kind, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", kind, id, ErrConflict)
}

// insert runs an INSERT, reporting a taken key as ErrAlreadyExists.
func (s *SQL) insert(ctx context.Context, kind, id, query string, args ...any) error {
	if id == "" {
		return fmt.Errorf("%s id must not be empty", kind)
	}
	if _, err := s.exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", kind, id, ErrAlreadyExists)
		}
		return fmt.Errorf("insert %s %q: %w", kind, id, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func queryOne[T any](ctx context.Context, s *SQL, kind, key, query string, args ...any) (*T, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFound(kind, key)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s %q: %w", kind, key, err)
	}
	return decode[T]([]byte(doc))
}

func queryAll[T any](ctx context.Context, s *SQL, query string, args ...any) ([]*T, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		v, err := decode[T]([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// where joins conditions with AND.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

type sqlRobots struct{ s *SQL }

func (r sqlRobots) Create(ctx context.Context, robot *model.Robot) error {
	doc, err := encode(robot)
	if err != nil {
		return err
	}
	return r.s.insert(ctx, "robot", robot.ID,
		`INSERT INTO robots (id, executor_id, name, status, enabled, area_id, doc) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		robot.ID, nullString(robot.ExecutorID), robot.Name, string(robot.Status), boolInt(robot.Enabled), areaOf(robot), string(doc))
}

func (r sqlRobots) Update(ctx context.Context, robot *model.Robot) error {
	res, err := r.write(ctx, robot, nil)
	return affectedOne("robot", robot.ID, res, err)
}

func (r sqlRobots) Modify(ctx context.Context, id string, mutate func(*model.Robot) error) (*model.Robot, error) {
	return modifyRow(ctx, r.s, "robot", "robots", id, mutate, func(robot *model.Robot, version int64) (sql.Result, error) {
		return r.write(ctx, robot, &version)
	})
}

// write updates the robot row, guarded by version when it is non-nil.
func (r sqlRobots) write(ctx context.Context, robot *model.Robot, version *int64) (sql.Result, error) {
	doc, err := encode(robot)
	if err != nil {
		return nil, err
	}
	query := `UPDATE robots SET executor_id = ?, name = ?, status = ?, enabled = ?, area_id = ?, doc = ?, version = version + 1 WHERE id = ?`
	args := []any{nullString(robot.ExecutorID), robot.Name, string(robot.Status), boolInt(robot.Enabled), areaOf(robot), string(doc), robot.ID}
	if version != nil {
		query += ` AND version = ?`
		args = append(args, *version)
	}
	return r.s.exec(ctx, query, args...)
}

func areaOf(robot *model.Robot) sql.NullString {
	if robot.CurrentAreaID == nil {
		return sql.NullString{}
	}
	return nullString(*robot.CurrentAreaID)
}

func (r sqlRobots) Get(ctx context.Context, id string) (*model.Robot, error) {
	return queryOne[model.Robot](ctx, r.s, "robot", id, `SELECT doc FROM robots WHERE id = ?`, id)
}

func (r sqlRobots) GetByExecutorID(ctx context.Context, executorID string) (*model.Robot, error) {
	return queryOne[model.Robot](ctx, r.s, "robot with executor id", executorID, `SELECT doc FROM robots WHERE executor_id = ?`, executorID)
}

func (r sqlRobots) GetByName(ctx context.Context, name string) (*model.Robot, error) {
	return queryOne[model.Robot](ctx, r.s, "robot with name", name, `SELECT doc FROM robots WHERE name = ?`, name)
}

func (r sqlRobots) List(ctx context.Context, filter core.RobotFilter) ([]*model.Robot, error) {
	var w where
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.AreaID != "" {
		w.add("area_id = ?", filter.AreaID)
	}
	if filter.Enabled != nil {
		w.add("enabled = ?", boolInt(*filter.Enabled))
	}
	return queryAll[model.Robot](ctx, r.s, `SELECT doc FROM robots`+w.String()+` ORDER BY name`, w.args...)
}

func (r sqlRobots) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, "robot", id, `DELETE FROM robots WHERE id = ?`, id)
}

type sqlRuns struct{ s *SQL }

func runColumns(run *model.MissionRun) (latestFinding int64, doc string, err error) {
	if t, ok := run.LatestFinding(); ok {
		latestFinding = t.UnixNano()
	}
	b, err := encode(run)
	return latestFinding, string(b), err
}

func (r sqlRuns) Create(ctx context.Context, run *model.MissionRun) error {
	latest, doc, err := runColumns(run)
	if err != nil {
		return err
	}
	return r.s.insert(ctx, "mission run", run.ID,
		`INSERT INTO mission_runs (id, executor_mission_id, robot_id, definition_id, status, desired_start, latest_finding, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullString(run.ExecutorMissionID), run.RobotID, nullString(run.MissionDefinitionID),
		string(run.Status), unixNano(run.DesiredStartTime), latest, doc)
}

func (r sqlRuns) Update(ctx context.Context, run *model.MissionRun) error {
	res, err := r.write(ctx, run, nil)
	return affectedOne("mission run", run.ID, res, err)
}

func (r sqlRuns) Modify(ctx context.Context, id string, mutate func(*model.MissionRun) error) (*model.MissionRun, error) {
	return modifyRow(ctx, r.s, "mission run", "mission_runs", id, mutate, func(run *model.MissionRun, version int64) (sql.Result, error) {
		return r.write(ctx, run, &version)
	})
}

// write updates the run row, guarded by version when it is non-nil.
func (r sqlRuns) write(ctx context.Context, run *model.MissionRun, version *int64) (sql.Result, error) {
	latest, doc, err := runColumns(run)
	if err != nil {
		return nil, err
	}
	query := `UPDATE mission_runs SET executor_mission_id = ?, robot_id = ?, definition_id = ?, status = ?,
		 desired_start = ?, latest_finding = ?, doc = ?, version = version + 1 WHERE id = ?`
	args := []any{nullString(run.ExecutorMissionID), run.RobotID, nullString(run.MissionDefinitionID), string(run.Status),
		unixNano(run.DesiredStartTime), latest, doc, run.ID}
	if version != nil {
		query += ` AND version = ?`
		args = append(args, *version)
	}
	return r.s.exec(ctx, query, args...)
}

func (r sqlRuns) Get(ctx context.Context, id string) (*model.MissionRun, error) {
	return queryOne[model.MissionRun](ctx, r.s, "mission run", id, `SELECT doc FROM mission_runs WHERE id = ?`, id)
}

func (r sqlRuns) GetByExecutorMissionID(ctx context.Context, executorMissionID string) (*model.MissionRun, error) {
	return queryOne[model.MissionRun](ctx, r.s, "mission run with executor id", executorMissionID,
		`SELECT doc FROM mission_runs WHERE executor_mission_id = ? ORDER BY desired_start DESC LIMIT 1`, executorMissionID)
}

func (r sqlRuns) List(ctx context.Context, filter core.MissionRunFilter) ([]*model.MissionRun, error) {
	var w where
	if filter.RobotID != "" {
		w.add("robot_id = ?", filter.RobotID)
	}
	if len(filter.Statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Statuses)), ", ")
		args := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args[i] = string(st)
		}
		w.add("status IN ("+marks+")", args...)
	}
	if filter.DefinitionID != "" {
		w.add("definition_id = ?", filter.DefinitionID)
	}
	return queryAll[model.MissionRun](ctx, r.s, `SELECT doc FROM mission_runs`+w.String()+` ORDER BY desired_start, id`, w.args...)
}

func (r sqlRuns) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, "mission run", id, `DELETE FROM mission_runs WHERE id = ?`, id)
}

func (r sqlRuns) FindingsSince(ctx context.Context, since time.Time) ([]core.Finding, error) {
	runs, err := queryAll[model.MissionRun](ctx, r.s,
		`SELECT doc FROM mission_runs WHERE latest_finding >= ? ORDER BY desired_start, id`, unixNano(since))
	if err != nil {
		return nil, err
	}
	var findings []core.Finding
	for _, run := range runs {
		findings = append(findings, findingsOf(run, since)...)
	}
	sortFindings(findings)
	return findings, nil
}

type sqlDefinitions struct{ s *SQL }

func (r sqlDefinitions) Create(ctx context.Context, def *model.MissionDefinition) error {
	doc, err := encode(def)
	if err != nil {
		return err
	}
	return r.s.insert(ctx, "mission definition", def.ID,
		`INSERT INTO mission_definitions (id, has_frequency, deprecated, doc) VALUES (?, ?, ?, ?)`,
		def.ID, boolInt(def.HasFrequency()), boolInt(def.IsDeprecated), string(doc))
}

func (r sqlDefinitions) Update(ctx context.Context, def *model.MissionDefinition) error {
	doc, err := encode(def)
	if err != nil {
		return err
	}
	return r.s.execOne(ctx, "mission definition", def.ID,
		`UPDATE mission_definitions SET has_frequency = ?, deprecated = ?, doc = ? WHERE id = ?`,
		boolInt(def.HasFrequency()), boolInt(def.IsDeprecated), string(doc), def.ID)
}

func (r sqlDefinitions) Get(ctx context.Context, id string) (*model.MissionDefinition, error) {
	return queryOne[model.MissionDefinition](ctx, r.s, "mission definition", id, `SELECT doc FROM mission_definitions WHERE id = ?`, id)
}

func (r sqlDefinitions) List(ctx context.Context, filter core.DefinitionFilter) ([]*model.MissionDefinition, error) {
	var w where
	if filter.WithFrequency {
		w.add("has_frequency = 1")
	}
	if !filter.IncludeDeprecated {
		w.add("deprecated = 0")
	}
	return queryAll[model.MissionDefinition](ctx, r.s, `SELECT doc FROM mission_definitions`+w.String()+` ORDER BY id`, w.args...)
}

func (r sqlDefinitions) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, "mission definition", id, `DELETE FROM mission_definitions WHERE id = ?`, id)
}

type sqlAreas struct{ s *SQL }

func (r sqlAreas) Create(ctx context.Context, area *model.Area) error {
	doc, err := encode(area)
	if err != nil {
		return err
	}
	return r.s.insert(ctx, "area", area.ID, `INSERT INTO areas (id, doc) VALUES (?, ?)`, area.ID, string(doc))
}

func (r sqlAreas) Update(ctx context.Context, area *model.Area) error {
	doc, err := encode(area)
	if err != nil {
		return err
	}
	return r.s.execOne(ctx, "area", area.ID, `UPDATE areas SET doc = ? WHERE id = ?`, string(doc), area.ID)
}

func (r sqlAreas) Get(ctx context.Context, id string) (*model.Area, error) {
	return queryOne[model.Area](ctx, r.s, "area", id, `SELECT doc FROM areas WHERE id = ?`, id)
}

func (r sqlAreas) List(ctx context.Context) ([]*model.Area, error) {
	return queryAll[model.Area](ctx, r.s, `SELECT doc FROM areas ORDER BY id`)
}

func (r sqlAreas) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, "area", id, `DELETE FROM areas WHERE id = ?`, id)
}
