package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"grading-assistant-core/internal/model"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Repository is the server side of the remote record store. Records are
// partitioned by owner, the caller identity key.
type Repository interface {
	// CreateBatch inserts records at most once per idempotency key. A
	// repeated key inserts nothing and reports created as 0 with replayed
	// set. Records whose id already exists are skipped.
	CreateBatch(ctx context.Context, owner, idempotencyKey string, records []model.RecordInput) (created int, replayed bool, err error)
	List(ctx context.Context, owner string, query model.RecordQuery) ([]model.GradingRecord, int, error)
	DeleteByFilter(ctx context.Context, owner string, filter model.QuestionFilter) (int, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateBatch(ctx context.Context, owner, idempotencyKey string, records []model.RecordInput) (int, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	// A concurrent call holding the same key blocks here until it commits.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (owner, idem_key, created_count) VALUES (?, ?, 0)`,
		owner, idempotencyKey)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	query := `INSERT IGNORE INTO grading_records
		(owner, id, question_key, question_no, student_name, score, max_score, comment, breakdown, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	created := 0
	for _, rec := range records {
		breakdown, err := encodeBreakdown(rec.Breakdown)
		if err != nil {
			return 0, false, err
		}
		res, err := tx.ExecContext(ctx, query, owner, rec.ID, rec.QuestionKey, rec.QuestionNo,
			rec.StudentName, rec.Score, rec.MaxScore, rec.Comment, breakdown, rec.Timestamp)
		if err != nil {
			return 0, false, fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, false, err
		}
		created += int(n)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE idempotency_keys SET created_count = ? WHERE owner = ? AND idem_key = ?`,
		created, owner, idempotencyKey)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record idempotency key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return created, false, nil
}

func (r *repository) List(ctx context.Context, owner string, query model.RecordQuery) ([]model.GradingRecord, int, error) {
	where, args := filterClause(owner, model.QuestionFilter{QuestionKey: query.QuestionKey, QuestionNo: query.QuestionNo})

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grading_records WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := NormalizePage(query)
	listQuery := `SELECT id, question_key, question_no, student_name, score, max_score, comment, breakdown, ts
		FROM grading_records WHERE ` + where + ` ORDER BY ts, id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, listQuery, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []model.GradingRecord{}
	for rows.Next() {
		var (
			rec       model.GradingRecord
			comment   sql.NullString
			breakdown sql.NullString
		)
		err := rows.Scan(&rec.ID, &rec.QuestionKey, &rec.QuestionNo, &rec.StudentName,
			&rec.Score, &rec.MaxScore, &comment, &breakdown, &rec.Timestamp)
		if err != nil {
			return nil, 0, err
		}
		rec.Comment = comment.String
		if breakdown.Valid && breakdown.String != "" {
			if err := json.Unmarshal([]byte(breakdown.String), &rec.Breakdown); err != nil {
				return nil, 0, fmt.Errorf("failed to decode breakdown of %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

func (r *repository) DeleteByFilter(ctx context.Context, owner string, filter model.QuestionFilter) (int, error) {
	where, args := filterClause(owner, filter)
	res, err := r.db.ExecContext(ctx, `DELETE FROM grading_records WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// filterClause matches records of a question by key or by number.
func filterClause(owner string, filter model.QuestionFilter) (string, []interface{}) {
	args := []interface{}{owner}
	var or []string
	if filter.QuestionKey != "" {
		or = append(or, "question_key = ?")
		args = append(args, filter.QuestionKey)
	}
	if filter.QuestionNo != "" {
		or = append(or, "question_no = ?")
		args = append(args, filter.QuestionNo)
	}

	where := "owner = ?"
	if len(or) > 0 {
		where += " AND (" + strings.Join(or, " OR ") + ")"
	}
	return where, args
}

// NormalizePage applies the default and maximum page size.
func NormalizePage(q model.RecordQuery) (page, limit int) {
	page, limit = q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return page, limit
}

func encodeBreakdown(items []model.BreakdownItem) (sql.NullString, error) {
	if len(items) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode breakdown: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
