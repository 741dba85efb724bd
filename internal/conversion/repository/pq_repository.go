package repository

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/jmoiron/sqlx"
)

type conversionRepo struct {
	db *sqlx.DB
}

func NewConversionRepo(db *sqlx.DB) conversion.Repository {
	return &conversionRepo{
		db: db,
	}
}

func (r *conversionRepo) SaveRecord(ctx context.Context, record *models.ConversionRecord) error {
	if _, err := r.db.ExecContext(
		ctx,
		saveRecordQuery,
		record.JobID,
		record.MediaID,
		record.Kind,
		record.State,
		record.OutputPath,
		record.Label,
		record.Message,
		record.StartedAt,
		record.FinishedAt,
	); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (r *conversionRepo) GetRecords(ctx context.Context, pq *utils.Pagination) (*models.ConversionList, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, getTotalRecordsQuery); err != nil {
		return nil, fmt.Errorf("failed to get total records count: %w", err)
	}
	if totalCount == 0 {
		return emptyList(pq), nil
	}

	var records = make([]*models.ConversionRecord, 0, pq.GetSize())
	if err := r.db.SelectContext(ctx, &records, getRecordsQuery, pq.GetOffset(), pq.GetLimit()); err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return newList(records, totalCount, pq), nil
}

func (r *conversionRepo) GetRecordsByMedia(ctx context.Context, mediaID string, pq *utils.Pagination) (*models.ConversionList, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, getTotalRecordsByMediaQuery, mediaID); err != nil {
		return nil, fmt.Errorf("failed to get total records by media: %w", err)
	}
	if totalCount == 0 {
		return emptyList(pq), nil
	}

	rows, err := r.db.QueryxContext(ctx, getRecordsByMediaQuery, mediaID, pq.GetOffset(), pq.GetLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to get records by media: %w", err)
	}
	defer rows.Close()

	var records = make([]*models.ConversionRecord, 0, pq.GetSize())
	for rows.Next() {
		var record models.ConversionRecord
		if err = rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, &record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return newList(records, totalCount, pq), nil
}

func emptyList(pq *utils.Pagination) *models.ConversionList {
	return &models.ConversionList{
		Records:  make([]*models.ConversionRecord, 0),
		Page:     pq.GetPage(),
		PageSize: pq.GetSize(),
	}
}

func newList(records []*models.ConversionRecord, totalCount int, pq *utils.Pagination) *models.ConversionList {
	return &models.ConversionList{
		Records:    records,
		TotalCount: totalCount,
		TotalPages: utils.GetTotalPages(totalCount, pq.GetSize()),
		Page:       pq.GetPage(),
		PageSize:   pq.GetSize(),
		HasMore:    utils.GetHasMore(pq.GetPage(), totalCount, pq.GetSize()),
	}
}
