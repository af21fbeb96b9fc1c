package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontracts "concretesync/contracts/db"
	"concretesync/internal/model"
	"concretesync/pkg/metrics"
)

const table = "notification_records"

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the notification_records table when missing.
func (r *NotificationRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notification_records (
            id         UUID PRIMARY KEY,
            title      TEXT NOT NULL,
            body       TEXT NOT NULL DEFAULT '',
            category   TEXT NOT NULL,
            tag        TEXT NOT NULL DEFAULT '',
            data       JSONB,
            is_read    BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_notification_records_created_at
            ON notification_records (created_at DESC);
    `)
	if err != nil {
		return fmt.Errorf("ensure notification_records schema: %w", err)
	}
	return nil
}

func (r *NotificationRepository) Insert(ctx context.Context, rec model.Record) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", table, time.Since(start)) }()

	var data *string
	if rec.Data != nil {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		s := string(raw)
		data = &s
	}

	// 多个实例会写入同一条记录（id 确定性生成），冲突时忽略
	query := `
        INSERT INTO notification_records (id, title, body, category, tag, data, is_read, created_at)
        VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7, $8)
        ON CONFLICT (id) DO NOTHING
    `
	_, err := r.db.Exec(ctx, query,
		rec.ID.String(), rec.Title, rec.Body, string(rec.Category), rec.Tag, data, rec.IsRead, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert notification record",
			zap.String("id", rec.ID.String()),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("Notification record inserted",
		zap.String("id", rec.ID.String()),
		zap.String("category", string(rec.Category)),
	)
	return nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", table, time.Since(start)) }()

	query := `UPDATE notification_records SET is_read = TRUE WHERE id = $1::uuid`
	_, err := r.db.Exec(ctx, query, id.String())
	return err
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", table, time.Since(start)) }()

	query := `UPDATE notification_records SET is_read = TRUE WHERE is_read = FALSE`
	_, err := r.db.Exec(ctx, query)
	return err
}

// ListRecent returns up to limit records, newest first.
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]model.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", table, time.Since(start)) }()

	query := `
        SELECT id::text, title, body, category, tag, COALESCE(data::text, ''), is_read, created_at
        FROM notification_records
        ORDER BY created_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var row dbcontracts.NotificationRecord
		var data string
		if err := rows.Scan(
			&row.ID,
			&row.Title,
			&row.Body,
			&row.Category,
			&row.Tag,
			&data,
			&row.IsRead,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.Data = []byte(data)

		rec, err := toRecord(row)
		if err != nil {
			r.logger.Warn("Skipping unreadable notification record",
				zap.String("id", row.ID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func toRecord(row dbcontracts.NotificationRecord) (model.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{
		ID:        id,
		Title:     row.Title,
		Body:      row.Body,
		Category:  model.Category(row.Category),
		Tag:       row.Tag,
		CreatedAt: row.CreatedAt,
		IsRead:    row.IsRead,
	}
	if !rec.Category.Valid() {
		rec.Category = model.CategorySystem
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &rec.Data); err != nil {
			return model.Record{}, fmt.Errorf("decode data: %w", err)
		}
	}
	return rec, nil
}
