// Package repository provides methods to work with DB
package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"path/filepath"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/repository/evopostgres"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/wb-go/wbf/dbpg"
)

type EvolutionRepo interface {
	Create(ctx context.Context, e *model.Evolution) error
	Get(ctx context.Context, id string) (*model.Evolution, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error)
	UpdateProgress(ctx context.Context, id string, status model.RunStatus, stage model.Stage, jobID string) error
	SaveResult(ctx context.Context, e *model.Evolution) error
	FetchOrphans(ctx context.Context, age time.Duration, limit int) ([]string, error)
}

func NewPostgresEvolutionRepo(dbconn *dbpg.DB) EvolutionRepo {
	return evopostgres.PostgresRepo{DB: dbconn}
}

// ConnectWithRetries opens DB pool; gives up after retryCount tries or when ctx is done.
func ConnectWithRetries(ctx context.Context, dsn string, retryCount int, idleTime time.Duration) (*dbpg.DB, error) {
	dbOptions := dbpg.Options{
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: 10 * time.Minute,
	}
	var dbConn *dbpg.DB
	var err error

	for i := range max(retryCount, 1) {
		dbConn, err = dbpg.New(dsn, nil, &dbOptions)
		if err == nil {
			if err = dbConn.Master.PingContext(ctx); err == nil {
				return dbConn, nil
			}
			_ = dbConn.Master.Close()
		}
		log.Printf("Failed to connect to PGDB (try #%d): %s\nWaiting %v before next retry...", i+1, err, idleTime)
		if wErr := wait(ctx, idleTime); wErr != nil {
			return nil, errors.Join(wErr, err)
		}
	}

	return nil, err
}

func MigrateWithRetries(ctx context.Context, db *sql.DB, migrationsPath string, retries int, idle time.Duration) error {
	var err error
	for i := range max(retries, 1) {
		log.Printf("Migration try #%d...", i+1)
		if err = runMigrate(db, migrationsPath); err == nil {
			return nil
		}
		log.Printf("Migration try #%d was unsuccessful: %v. Waiting %v before next try...", i+1, err, idle)
		if wErr := wait(ctx, idle); wErr != nil {
			return errors.Join(wErr, err)
		}
	}
	return err
}

func runMigrate(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	sourceURL := "file://" + absPath
	log.Println("Running migrations from:", sourceURL)

	m, err := migrate.NewWithDatabaseInstance(
		sourceURL,
		"postgres",
		driver,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	log.Println("Database migrations applied successfully")
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
