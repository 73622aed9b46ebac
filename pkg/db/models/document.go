package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Document is a customer or guest upload moving through the scan queue.
type Document struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID               *uuid.UUID           `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	MagicLinkID          *uuid.UUID           `gorm:"column:magic_link_id;type:uuid;index" json:"magic_link_id"`
	GuestEmail           *string              `gorm:"column:guest_email;type:text" json:"guest_email"`
	FileName             string               `gorm:"column:file_name;type:text;not null" json:"file_name"`
	NormalizedName       string               `gorm:"column:normalized_name;type:text;not null;index" json:"normalized_name"`
	FilePath             string               `gorm:"column:file_path;type:text;not null" json:"file_path"`
	FileSize             int64                `gorm:"column:file_size;not null;default:0" json:"file_size"`
	ScanType             enums.ScanType       `gorm:"column:scan_type;type:text;not null;default:full" json:"scan_type"`
	Status               enums.DocumentStatus `gorm:"column:status;type:text;not null;default:pending;index" json:"status"`
	AssignedStaffID      *uuid.UUID           `gorm:"column:assigned_staff_id;type:uuid" json:"assigned_staff_id"`
	AssignedAt           *time.Time           `gorm:"column:assigned_at" json:"assigned_at"`
	LeaseExpiresAt       *time.Time           `gorm:"column:lease_expires_at" json:"lease_expires_at"`
	CompletedAt          *time.Time           `gorm:"column:completed_at" json:"completed_at"`
	SimilarityReportPath *string              `gorm:"column:similarity_report_path;type:text" json:"similarity_report_path"`
	AIReportPath         *string              `gorm:"column:ai_report_path;type:text" json:"ai_report_path"`
	SimilarityPercentage *float64             `gorm:"column:similarity_percentage" json:"similarity_percentage"`
	AIPercentage         *float64             `gorm:"column:ai_percentage" json:"ai_percentage"`
	ProcessingAttempts   int                  `gorm:"column:processing_attempts;not null;default:0" json:"processing_attempts"`
	ErrorMessage         *string              `gorm:"column:error_message;type:text" json:"error_message"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// HasSimilarityReport reports whether a similarity report is attached.
func (d Document) HasSimilarityReport() bool {
	return d.SimilarityReportPath != nil && *d.SimilarityReportPath != ""
}

// HasAIReport reports whether an AI-detection report is attached.
func (d Document) HasAIReport() bool {
	return d.AIReportPath != nil && *d.AIReportPath != ""
}

// DeletedDocumentLog keeps a snapshot of a removed document.
type DeletedDocumentLog struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID  `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	UserID     *uuid.UUID `gorm:"column:user_id;type:uuid" json:"user_id"`
	FileName   string     `gorm:"column:file_name;type:text;not null" json:"file_name"`
	FilePath   string     `gorm:"column:file_path;type:text;not null" json:"file_path"`
	Status     string     `gorm:"column:status;type:text;not null" json:"status"`
	Snapshot   []byte     `gorm:"column:snapshot;type:jsonb" json:"snapshot"`
	DeletedBy  uuid.UUID  `gorm:"column:deleted_by;type:uuid;not null" json:"deleted_by"`
	DeletedAt  time.Time  `gorm:"column:deleted_at;autoCreateTime" json:"deleted_at"`
}

func (DeletedDocumentLog) TableName() string { return "deleted_documents_log" }

func (d *DeletedDocumentLog) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// DocumentActivityLog is an audit entry describing one change to a document.
type DocumentActivityLog struct {
	ID          uuid.UUID   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID   `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	ActorID     *uuid.UUID  `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	ActorRole   *enums.Role `gorm:"column:actor_role;type:text" json:"actor_role"`
	Action      string      `gorm:"column:action;type:text;not null" json:"action"`
	Description string      `gorm:"column:description;type:text;not null" json:"description"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (a *DocumentActivityLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
