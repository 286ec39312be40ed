package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/database"
	"facetalk-backend/internal/models"
)

// DatabaseClient is the Postgres-backed credits.Repository.
type DatabaseClient struct {
	db *sql.DB
}

var _ credits.Repository = (*DatabaseClient)(nil)

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &DatabaseClient{db: db}, nil
}

func (d *DatabaseClient) DB() *sql.DB {
	return d.db
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.UserPlan, error) {
	var p models.UserPlan
	if err := row.Scan(&p.UserID, &p.Plan, &p.PointsLeft, &p.StartDate, &p.IsAnonymous, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DatabaseClient) GetPlan(ctx context.Context, userID string) (*models.UserPlan, error) {
	plan, err := scanPlan(d.db.QueryRowContext(ctx, database.SelectPlan, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credits.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

func (d *DatabaseClient) CreatePlan(ctx context.Context, plan *models.UserPlan) (*models.UserPlan, error) {
	created, err := scanPlan(d.db.QueryRowContext(ctx, database.InsertPlan,
		plan.UserID, plan.Plan, plan.PointsLeft, plan.StartDate, plan.IsAnonymous))
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return created, nil
}

func (d *DatabaseClient) ResetPlan(ctx context.Context, userID, plan string, points int, startDate time.Time) (*models.UserPlan, error) {
	updated, err := scanPlan(d.db.QueryRowContext(ctx, database.ResetPlan, userID, plan, points, startDate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credits.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset plan: %w", err)
	}
	return updated, nil
}

// DeductPoints decrements only when the balance covers cost. A miss is
// disambiguated into ErrNotFound or ErrInsufficientCredits.
func (d *DatabaseClient) DeductPoints(ctx context.Context, userID string, cost int) (int, error) {
	var left int
	err := d.db.QueryRowContext(ctx, database.DeductPoints, userID, cost).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to deduct points: %w", err)
	}

	err = d.db.QueryRowContext(ctx, database.SelectPoints, userID).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, credits.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read points: %w", err)
	}
	return left, credits.ErrInsufficientCredits
}

func (d *DatabaseClient) AddPoints(ctx context.Context, userID string, points int) (int, error) {
	var left int
	err := d.db.QueryRowContext(ctx, database.AddPoints, userID, points).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, credits.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return left, nil
}

func (d *DatabaseClient) GetDevice(ctx context.Context, deviceID string) (*models.DeviceCredit, error) {
	var dc models.DeviceCredit
	err := d.db.QueryRowContext(ctx, database.SelectDevice, deviceID).Scan(
		&dc.DeviceID, &dc.HasUsedFreeCredits, &dc.UserID, &dc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credits.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &dc, nil
}

func (d *DatabaseClient) MarkDeviceUsed(ctx context.Context, deviceID, userID string) error {
	if _, err := d.db.ExecContext(ctx, database.MarkDeviceUsed, deviceID, userID); err != nil {
		return fmt.Errorf("failed to mark device: %w", err)
	}
	return nil
}

// ApplyPayment records the transaction and activates the plan atomically.
// The unique reference makes a replayed payment a no-op.
func (d *DatabaseClient) ApplyPayment(ctx context.Context, txn *models.Transaction, startDate time.Time) (*models.UserPlan, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, database.InsertTransaction,
		txn.ID, txn.UserID, txn.Plan, txn.Points, txn.Reference, txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if n == 0 {
		return nil, credits.ErrDuplicatePayment
	}

	plan, err := scanPlan(tx.QueryRowContext(ctx, database.UpsertPaidPlan,
		txn.UserID, txn.Plan, txn.Points, startDate))
	if err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return plan, nil
}

func (d *DatabaseClient) InsertGeneration(ctx context.Context, record *models.GenerationRecord) error {
	_, err := d.db.ExecContext(ctx, database.InsertGeneration,
		record.ID, record.UserID, record.TaskID, string(record.Kind), record.Output, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

func (d *DatabaseClient) ListGenerations(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error) {
	rows, err := d.db.QueryContext(ctx, database.SelectGenerations, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var r models.GenerationRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.UserID, &r.TaskID, &kind, &r.Output, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		r.Kind = models.GenerationKind(kind)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	return records, nil
}

// TransferAccount re-keys a plan, its history and its device claims from one
// user id to another in a single transaction.
func (d *DatabaseClient) TransferAccount(ctx context.Context, fromUserID, toUserID string) (*models.UserPlan, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, database.LockPlan, toUserID).Scan(&locked)
	if err == nil {
		return nil, credits.ErrAlreadyHasPlan
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check target plan: %w", err)
	}

	plan, err := scanPlan(tx.QueryRowContext(ctx, database.MovePlan, fromUserID, toUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credits.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move plan: %w", err)
	}
	if _, err := tx.ExecContext(ctx, database.MoveGenerations, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("failed to move generations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, database.MoveDevices, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("failed to move device claims: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	return plan, nil
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
