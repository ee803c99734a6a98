// Package evopostgres stores evolution history in Postgres
package evopostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

const selectColumns = `uid, prompt, source_url, job_id, status, stage, outputs, result_url, err_msg, created_at, updated_at, published_at`

func (p PostgresRepo) Create(ctx context.Context, e *model.Evolution) error {
	query := `INSERT INTO evolutions (uid, prompt, source_url, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	return p.DB.QueryRowContext(ctx, query, e.UID, e.Prompt, e.SourceURL, string(e.Status), e.CreatedAt, e.CreatedAt).Err()
}

func (p PostgresRepo) Get(ctx context.Context, id string) (*model.Evolution, error) {
	query := `SELECT ` + selectColumns + `
	FROM evolutions
	WHERE uid = $1`

	evo, err := scanEvolution(p.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrEvolutionNotFound
		default:
			return nil, err // 500
		}
	}
	return evo, nil
}

func (p PostgresRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
	// sort/order приходят уже провалидированными из сервиса
	query := fmt.Sprintf(`SELECT %s
	FROM evolutions
	ORDER BY %s %s
	LIMIT $1
	OFFSET $2`, selectColumns, req.Sort, req.Order)

	offset := (req.Page - 1) * req.Limit

	rows, err := p.DB.QueryContext(ctx, query, req.Limit, offset)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	evolutions := make([]model.Evolution, 0, req.Limit)
	for rows.Next() {
		evo, err := scanEvolution(rows)
		if err != nil {
			return nil, err
		}
		evolutions = append(evolutions, *evo)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return evolutions, nil
}

// UpdateProgress moves evolution to the given stage; empty jobID keeps the stored one
func (p PostgresRepo) UpdateProgress(ctx context.Context, id string, status model.RunStatus, stage model.Stage, jobID string) error {
	query := `UPDATE evolutions
	SET status = $1, stage = $2, job_id = COALESCE(NULLIF($3, ''), job_id), updated_at = now()
	WHERE uid = $4`

	res, err := p.DB.Master.ExecContext(ctx, query, string(status), string(stage), jobID, id)
	return affected(res, err)
}

func (p PostgresRepo) SaveResult(ctx context.Context, e *model.Evolution) error {
	query := `UPDATE evolutions
	SET status = $1, stage = $2, job_id = $3, outputs = $4, result_url = $5, err_msg = $6, updated_at = $7, published_at = $8
	WHERE uid = $9`

	res, err := p.DB.Master.ExecContext(ctx, query,
		string(e.Status),
		string(e.Stage),
		e.JobID,
		e.Outputs,
		e.ResultURL,
		e.ErrMsg,
		e.UpdatedAt,
		e.PublishedAt,
		e.UID)
	return affected(res, err)
}

// FetchOrphans returns evolutions stuck in queued/running for longer than age.
// Their updated_at is touched so that the next pass doesn't pick them again right away.
func (p PostgresRepo) FetchOrphans(ctx context.Context, age time.Duration, limit int) ([]string, error) {
	query := `UPDATE evolutions
	SET updated_at = now()
	WHERE uid IN (
		SELECT uid
		FROM evolutions
		WHERE status IN ($1, $2)
		AND updated_at < now() - make_interval(secs => $3)
		ORDER BY updated_at
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	)
	RETURNING uid`

	rows, err := p.DB.QueryContext(ctx, query, string(model.RunQueued), string(model.RunRunning), age.Seconds(), limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	orphans := make([]string, 0, limit)
	for rows.Next() {
		uid := ""
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		orphans = append(orphans, uid)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return orphans, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvolution(row scanner) (*model.Evolution, error) {
	var evo model.Evolution
	var createdAt, updatedAt time.Time
	var publishedAt sql.NullTime

	if err := row.Scan(&evo.UID,
		&evo.Prompt,
		&evo.SourceURL,
		&evo.JobID,
		&evo.Status,
		&evo.Stage,
		&evo.Outputs,
		&evo.ResultURL,
		&evo.ErrMsg,
		&createdAt,
		&updatedAt,
		&publishedAt); err != nil {
		return nil, err
	}

	evo.CreatedAt = &createdAt
	evo.UpdatedAt = &updatedAt
	if publishedAt.Valid {
		evo.PublishedAt = &publishedAt.Time
	}
	return &evo, nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err // 500
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrEvolutionNotFound // 404
	}
	return nil
}
