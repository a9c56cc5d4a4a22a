package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/skillpulse/internal/domain/model"
)

// schemaV1 defines the initial database schema. Timestamps are unix nanos.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS assessments (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL,
	skill_id    TEXT NOT NULL,
	source      TEXT NOT NULL,
	value       INTEGER NOT NULL,
	at          INTEGER NOT NULL,
	assessor_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_assessments_key ON assessments(student_id, skill_id, at);
CREATE INDEX IF NOT EXISTS idx_assessments_source ON assessments(student_id, skill_id, source, at);

CREATE TABLE IF NOT EXISTS results (
	student_id   TEXT NOT NULL,
	skill_id     TEXT NOT NULL,
	at           INTEGER NOT NULL,
	observation  REAL,
	self         REAL,
	peer         REAL,
	peer_count   INTEGER NOT NULL DEFAULT 0,
	w_obs        REAL NOT NULL,
	w_self       REAL NOT NULL,
	w_peer       REAL NOT NULL,
	value        REAL NOT NULL,
	level        INTEGER NOT NULL,
	PRIMARY KEY (student_id, skill_id, at)
);
`

const assessmentColumns = `id, student_id, skill_id, source, value, at, assessor_id`

// SQLiteStore persists records and results in a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
}

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, maxHistory: newOptions(opts).maxHistory}, nil
}

// Append implements Store.Append.
func (s *SQLiteStore) Append(ctx context.Context, a model.Assessment) (err error) {
	defer observe("append", time.Now(), &err)

	const q = `INSERT INTO assessments (` + assessmentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		a.ID, a.StudentID, a.SkillID, string(a.Source), a.Value, a.At.UnixNano(), a.AssessorID)
	if err != nil {
		return fmt.Errorf("append assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append assessment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, a.ID)
	}
	return nil
}

// Records implements Store.Records.
func (s *SQLiteStore) Records(ctx context.Context, studentID, skillID string) (out []model.Assessment, err error) {
	defer observe("records", time.Now(), &err)

	const q = `SELECT ` + assessmentColumns + ` FROM assessments
WHERE student_id = ? AND skill_id = ?
ORDER BY at ASC, id ASC`
	return s.queryAssessments(ctx, q, studentID, skillID)
}

// Latest implements Store.Latest.
func (s *SQLiteStore) Latest(ctx context.Context, studentID, skillID string, source model.Source) (out model.Assessment, err error) {
	defer observe("latest", time.Now(), &err)

	const q = `SELECT ` + assessmentColumns + ` FROM assessments
WHERE student_id = ? AND skill_id = ? AND source = ?
ORDER BY at DESC, id DESC
LIMIT 1`
	recs, err := s.queryAssessments(ctx, q, studentID, skillID, string(source))
	if err != nil {
		return model.Assessment{}, err
	}
	if len(recs) == 0 {
		return model.Assessment{}, ErrNotFound
	}
	return recs[0], nil
}

// RecentPeers implements Store.RecentPeers.
func (s *SQLiteStore) RecentPeers(ctx context.Context, studentID, skillID string, n int) (out []model.Assessment, err error) {
	if n <= 0 {
		return nil, nil
	}
	defer observe("recent_peers", time.Now(), &err)

	const q = `SELECT ` + assessmentColumns + ` FROM assessments
WHERE student_id = ? AND skill_id = ? AND source = ?
ORDER BY at DESC, id DESC
LIMIT ?`
	return s.queryAssessments(ctx, q, studentID, skillID, string(model.SourcePeer), n)
}

func (s *SQLiteStore) queryAssessments(ctx context.Context, q string, args ...any) ([]model.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		var (
			a      model.Assessment
			source string
			at     int64
		)
		if err := rows.Scan(&a.ID, &a.StudentID, &a.SkillID, &source, &a.Value, &at, &a.AssessorID); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		a.Source = model.Source(source)
		a.At = time.Unix(0, at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveResult implements Store.SaveResult.
func (s *SQLiteStore) SaveResult(ctx context.Context, r model.ConsolidatedResult) (err error) {
	defer observe("save_result", time.Now(), &err)

	const q = `INSERT INTO results (student_id, skill_id, at, observation, self, peer, peer_count, w_obs, w_self, w_peer, value, level)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(student_id, skill_id, at) DO UPDATE SET
	observation = excluded.observation,
	self        = excluded.self,
	peer        = excluded.peer,
	peer_count  = excluded.peer_count,
	w_obs       = excluded.w_obs,
	w_self      = excluded.w_self,
	w_peer      = excluded.w_peer,
	value       = excluded.value,
	level       = excluded.level`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, q,
		r.StudentID, r.SkillID, r.At.UnixNano(),
		nullable(r.ObservationValue), nullable(r.SelfAssessmentValue), nullable(r.PeerConsolidatedValue),
		r.PeerEvaluationCount,
		r.Weights.Observation, r.Weights.Self, r.Weights.Peer,
		r.ConsolidatedValue, int(r.Level),
	); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if s.maxHistory > 0 {
		const prune = `DELETE FROM results
WHERE student_id = ? AND skill_id = ? AND at < (
	SELECT MIN(at) FROM (
		SELECT at FROM results WHERE student_id = ? AND skill_id = ?
		ORDER BY at DESC LIMIT ?
	)
)`
		if _, err = tx.ExecContext(ctx, prune, r.StudentID, r.SkillID, r.StudentID, r.SkillID, s.maxHistory); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// History implements Store.History.
func (s *SQLiteStore) History(ctx context.Context, studentID, skillID string, limit int) (out []model.ConsolidatedResult, err error) {
	defer observe("history", time.Now(), &err)

	if limit <= 0 {
		limit = -1
	}
	const q = `SELECT student_id, skill_id, at, observation, self, peer, peer_count, w_obs, w_self, w_peer, value, level
FROM results
WHERE student_id = ? AND skill_id = ?
ORDER BY at DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, studentID, skillID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r               model.ConsolidatedResult
			at              int64
			level           int
			obs, self, peer sql.NullFloat64
		)
		if err := rows.Scan(&r.StudentID, &r.SkillID, &at, &obs, &self, &peer, &r.PeerEvaluationCount,
			&r.Weights.Observation, &r.Weights.Self, &r.Weights.Peer, &r.ConsolidatedValue, &level); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.At = time.Unix(0, at).UTC()
		r.Level = model.Level(level)
		r.ObservationValue = fromNullable(obs)
		r.SelfAssessmentValue = fromNullable(self)
		r.PeerConsolidatedValue = fromNullable(peer)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	// Newest first from the query; callers want oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Skills implements Store.Skills.
func (s *SQLiteStore) Skills(ctx context.Context, studentID string) ([]string, error) {
	const q = `SELECT DISTINCT skill_id FROM assessments WHERE student_id = ? ORDER BY skill_id`
	rows, err := s.db.QueryContext(ctx, q, studentID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Students implements Store.Students. Query failures count as zero.
func (s *SQLiteStore) Students(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT student_id) FROM assessments`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

var _ Store = (*SQLiteStore)(nil)
