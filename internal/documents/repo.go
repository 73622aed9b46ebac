package documents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Repository persists documents and their audit trail.
type Repository struct {
	repo.Base
}

// NewRepository binds the documents repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository scoped to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, doc *models.Document) error {
	return r.DB(ctx).Create(doc).Error
}

// FindByID returns nil when the document does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.DB(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// UpdateIfStatus applies fields only while the document is still in status.
// It reports whether the row was updated.
func (r *Repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, status enums.DocumentStatus, fields map[string]any) (bool, error) {
	fields["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ?", id, status).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

// ClaimPending moves a pending, unassigned document to in_progress for staffID.
// Only leased claims count as processing attempts; a manual staff claim
// leaves the extension's failure budget alone.
func (r *Repository) ClaimPending(ctx context.Context, id, staffID uuid.UUID, now time.Time, leaseUntil *time.Time) (bool, error) {
	fields := map[string]any{
		"status":            enums.DocumentStatusInProgress,
		"assigned_staff_id": staffID,
		"assigned_at":       now,
		"lease_expires_at":  leaseUntil,
		"updated_at":        now,
	}
	if leaseUntil != nil {
		fields["processing_attempts"] = gorm.Expr("processing_attempts + 1")
	}
	res := r.DB(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ? AND assigned_staff_id IS NULL", id, enums.DocumentStatusPending).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

// NextPendingIDs returns the oldest claimable documents. On Postgres the rows
// are locked and already-locked rows skipped so concurrent claimers spread out.
func (r *Repository) NextPendingIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := r.DB(ctx).Model(&models.Document{}).
		Where("status = ? AND assigned_staff_id IS NULL", enums.DocumentStatusPending).
		Order("created_at ASC").
		Limit(limit)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var ids []uuid.UUID
	err := q.Pluck("id", &ids).Error
	return ids, err
}

// RenewLeases extends every lease held by staffID.
func (r *Repository) RenewLeases(ctx context.Context, staffID uuid.UUID, until time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Document{}).
		Where("status = ? AND assigned_staff_id = ? AND lease_expires_at IS NOT NULL", enums.DocumentStatusInProgress, staffID).
		Updates(map[string]any{"lease_expires_at": until, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ExpiredLeases lists in-progress documents whose lease ran out.
func (r *Repository) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.DB(ctx).
		Where("status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?", enums.DocumentStatusInProgress, now).
		Order("lease_expires_at ASC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// ReleaseLease returns a leased document to the queue if the lease is still the one observed.
func (r *Repository) ReleaseLease(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?", id, enums.DocumentStatusInProgress, now).
		Updates(map[string]any{
			"status":            enums.DocumentStatusPending,
			"assigned_staff_id": nil,
			"assigned_at":       nil,
			"lease_expires_at":  nil,
			"updated_at":        now,
		})
	return res.RowsAffected > 0, res.Error
}

// Delete removes the row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Delete(&models.Document{}, "id = ?", id).Error
}

func (r *Repository) InsertDeletedLog(ctx context.Context, entry *models.DeletedDocumentLog) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *Repository) InsertActivity(ctx context.Context, entry *models.DocumentActivityLog) error {
	return r.DB(ctx).Create(entry).Error
}

// ListActivity returns the audit trail of one document, oldest first.
func (r *Repository) ListActivity(ctx context.Context, documentID uuid.UUID) ([]models.DocumentActivityLog, error) {
	var rows []models.DocumentActivityLog
	err := r.DB(ctx).Where("document_id = ?", documentID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// ListParams filters document listings.
type ListParams struct {
	UserID     *uuid.UUID
	AssignedTo *uuid.UUID
	Statuses   []enums.DocumentStatus
	ScanType   enums.ScanType
	Search     string
	Limit      int
	Cursor     *pagination.Cursor
}

// List returns one page of documents, newest first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.Document, error) {
	q := r.DB(ctx).Model(&models.Document{})
	if params.UserID != nil {
		q = q.Where("user_id = ?", *params.UserID)
	}
	if params.AssignedTo != nil {
		q = q.Where("assigned_staff_id = ?", *params.AssignedTo)
	}
	if len(params.Statuses) > 0 {
		q = q.Where("status IN ?", params.Statuses)
	}
	if params.ScanType != "" {
		q = q.Where("scan_type = ?", params.ScanType)
	}
	if term := strings.TrimSpace(params.Search); term != "" {
		q = q.Where("LOWER(file_name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var rows []models.Document
	err := repo.Keyset(q, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

// FindOpenByNormalizedName returns pending and in-progress documents sharing a normalized name.
func (r *Repository) FindOpenByNormalizedName(ctx context.Context, normalized string) ([]models.Document, error) {
	var rows []models.Document
	err := r.DB(ctx).
		Where("normalized_name = ? AND status IN ?", normalized, []enums.DocumentStatus{enums.DocumentStatusPending, enums.DocumentStatusInProgress}).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// CountByStatus returns the queue size per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[enums.DocumentStatus]int64, error) {
	type row struct {
		Status enums.DocumentStatus
		Count  int64
	}
	var rows []row
	if err := r.DB(ctx).Model(&models.Document{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enums.DocumentStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
