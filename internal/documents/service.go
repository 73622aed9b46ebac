package documents

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/storage"
)

// Completion sources reported on document_completed events.
const (
	SourceManual    = "manual"
	SourceExtension = "extension"
	SourceBulk      = "bulk_match"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditLedger interface {
	Consume(ctx context.Context, tx *gorm.DB, m credits.Movement) (*models.CreditTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (*credits.Balances, error)
}

type linkConsumer interface {
	Resolve(ctx context.Context, token string) (*models.MagicUploadLink, error)
	Consume(ctx context.Context, tx *gorm.DB, token string) (*models.MagicUploadLink, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type completionRecorder interface {
	DocumentCompleted(source string)
}

// Actor is the authenticated caller acting on documents.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a Actor) processes() bool { return a.Role.CanProcessDocuments() }
func (a Actor) isAdmin() bool   { return a.Role == enums.RoleAdmin }

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Options tunes limits and lease behaviour.
type Options struct {
	MaxUploadBytes int64
	DownloadURLTTL time.Duration
	LeaseDuration  time.Duration
	MaxAttempts    int
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo    *Repository
	Tx      txRunner
	Credits creditLedger
	Links   linkConsumer
	Store   storage.ObjectStore
	Outbox  outboxEmitter
	Metrics completionRecorder
	Logger  *logger.Logger
	Options Options
	Now     func() time.Time
}

// UploadInput is a customer upload.
type UploadInput struct {
	ScanType enums.ScanType
	File     FileInput
}

// GuestUploadInput is an upload through a magic link.
type GuestUploadInput struct {
	Token string
	Email string
	File  FileInput
}

// ListQuery filters document listings.
type ListQuery struct {
	Status   string
	ScanType string
	Search   string
	Mine     bool
	Limit    int
	Cursor   string
}

// StatusChange is a requested workflow transition.
type StatusChange struct {
	Status               enums.DocumentStatus `json:"status" validate:"required,oneof=pending in_progress completed error"`
	ErrorMessage         *string              `json:"error_message" validate:"omitempty,max=2000"`
	SimilarityPercentage *float64             `json:"similarity_percentage" validate:"omitempty,gte=0,lte=100"`
	AIPercentage         *float64             `json:"ai_percentage" validate:"omitempty,gte=0,lte=100"`
}

// ReportInput attaches reports and optionally completes the document.
type ReportInput struct {
	Similarity           *FileInput
	AI                   *FileInput
	SimilarityPercentage *float64
	AIPercentage         *float64
	Complete             bool
	Source               string
}

// FileKind selects which stored file a download refers to.
type FileKind string

const (
	FileOriginal   FileKind = "original"
	FileSimilarity FileKind = "similarity"
	FileAI         FileKind = "ai"
)

// Service drives the document workflow.
type Service interface {
	Upload(ctx context.Context, actor Actor, input UploadInput) (*models.Document, error)
	GuestUpload(ctx context.Context, input GuestUploadInput) (*models.Document, error)
	List(ctx context.Context, actor Actor, query ListQuery) (*pagination.Page[models.Document], error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, error)
	Activity(ctx context.Context, actor Actor, id uuid.UUID) ([]models.DocumentActivityLog, error)
	DownloadURL(ctx context.Context, actor Actor, id uuid.UUID, kind FileKind) (string, error)
	OpenLeased(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, io.ReadCloser, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, change StatusChange) (*models.Document, error)
	Claim(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, error)
	AttachReports(ctx context.Context, actor Actor, id uuid.UUID, input ReportInput) (*models.Document, error)
	ClaimNext(ctx context.Context, actor Actor) (*models.Document, error)
	RenewLeases(ctx context.Context, actor Actor) (int64, error)
	ReportFailure(ctx context.Context, actor Actor, id uuid.UUID, message string) (*models.Document, error)
	ReleaseExpiredLeases(ctx context.Context) (int, error)
	Stats(ctx context.Context) (map[enums.DocumentStatus]int64, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	credits creditLedger
	links   linkConsumer
	store   storage.ObjectStore
	outbox  outboxEmitter
	metrics completionRecorder
	logg    *logger.Logger
	opts    Options
	now     func() time.Time
}

// NewService wires the documents service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "documents repository required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credit ledger required")
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "object store required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	opts := params.Options
	if opts.DownloadURLTTL <= 0 {
		opts.DownloadURLTTL = time.Hour
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = 15 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		credits: params.Credits,
		links:   params.Links,
		store:   params.Store,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		opts:    opts,
		now:     now,
	}, nil
}

func (s *service) Upload(ctx context.Context, actor Actor, input UploadInput) (*models.Document, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	scanType := input.ScanType
	if scanType == "" {
		scanType = enums.ScanTypeFull
	}
	if !scanType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid scan type")
	}
	if err := validateDocument(input.File, s.opts.MaxUploadBytes); err != nil {
		return nil, err
	}

	balances, err := s.credits.Balance(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	creditType := scanType.CreditType()
	available := balances.Full
	if creditType == enums.CreditTypeSimilarity {
		available = balances.Similarity
	}
	if available < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient "+creditType.String()+" credits")
	}

	doc := s.newDocument(input.File, scanType, actor.UserID.String())
	doc.UserID = &actor.UserID
	if err := s.putObject(ctx, doc.FilePath, input.File); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.credits.Consume(ctx, tx, credits.Movement{
			UserID:        actor.UserID,
			CreditType:    creditType,
			Amount:        1,
			ReferenceType: "document",
			ReferenceID:   doc.ID.String(),
			Description:   "scan: " + doc.FileName,
			ActorID:       &actor.UserID,
		}); err != nil {
			return err
		}
		return s.insertDocument(ctx, tx, actor, doc, "uploaded")
	})
	if err != nil {
		s.removeObject(ctx, doc.FilePath)
		return nil, err
	}
	return doc, nil
}

func (s *service) GuestUpload(ctx context.Context, input GuestUploadInput) (*models.Document, error) {
	if s.links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "guest uploads are not configured")
	}
	link, err := s.links.Resolve(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(input.File, s.opts.MaxUploadBytes); err != nil {
		return nil, err
	}

	doc := s.newDocument(input.File, link.ScanType, "")
	doc.MagicLinkID = &link.ID
	if email := strings.ToLower(strings.TrimSpace(input.Email)); email != "" {
		doc.GuestEmail = &email
	}
	if err := s.putObject(ctx, doc.FilePath, input.File); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.links.Consume(ctx, tx, input.Token); err != nil {
			return err
		}
		return s.insertDocument(ctx, tx, Actor{}, doc, "uploaded via magic link "+link.ID.String())
	})
	if err != nil {
		s.removeObject(ctx, doc.FilePath)
		return nil, err
	}
	return doc, nil
}

func (s *service) newDocument(file FileInput, scanType enums.ScanType, owner string) *models.Document {
	id := uuid.New()
	name := storage.SafeFileName(file.Name)
	return &models.Document{
		ID:             id,
		FileName:       name,
		NormalizedName: NormalizeFileName(file.Name),
		FilePath:       storage.DocumentKey(owner, id, name),
		FileSize:       file.Size,
		ScanType:       scanType,
		Status:         enums.DocumentStatusPending,
	}
}

func (s *service) insertDocument(ctx context.Context, tx *gorm.DB, actor Actor, doc *models.Document, description string) error {
	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, doc); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create document")
	}
	if err := repo.InsertActivity(ctx, s.activity(actor, doc.ID, "upload", description)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDocumentUploaded,
		AggregateType: enums.AggregateDocument,
		AggregateID:   doc.ID,
		Actor:         actor.ref(),
		Data: payloads.DocumentUploadedEvent{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			FileName:   doc.FileName,
			ScanType:   doc.ScanType,
			Guest:      doc.UserID == nil,
		},
	})
}

func (s *service) putObject(ctx context.Context, key string, file FileInput) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, key, file.Body, file.Size, contentType); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store file")
	}
	return nil
}

func (s *service) removeObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "object_key", key), "documents.object_cleanup_failed", err)
	}
}

func (s *service) List(ctx context.Context, actor Actor, query ListQuery) (*pagination.Page[models.Document], error) {
	params := ListParams{Search: query.Search, Limit: query.Limit}
	if !actor.processes() {
		params.UserID = &actor.UserID
	} else if query.Mine {
		params.AssignedTo = &actor.UserID
	}
	for _, raw := range strings.Split(query.Status, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status, err := enums.ParseDocumentStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Statuses = append(params.Statuses, status)
	}
	if query.ScanType != "" {
		scanType, err := enums.ParseScanType(query.ScanType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scan type filter")
		}
		params.ScanType = scanType
	}
	if query.Cursor != "" {
		cursor, err := pagination.ParseCursor(query.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}
	page := pagination.Trim(rows, query.Limit, func(d models.Document) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return &page, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, error) {
	doc, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.processes() && (doc.UserID == nil || *doc.UserID != actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (s *service) Activity(ctx context.Context, actor Actor, id uuid.UUID) ([]models.DocumentActivityLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActivity(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	return rows, nil
}

func (s *service) DownloadURL(ctx context.Context, actor Actor, id uuid.UUID, kind FileKind) (string, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	var key string
	switch kind {
	case "", FileOriginal:
		key = doc.FilePath
	case FileSimilarity:
		if doc.HasSimilarityReport() {
			key = *doc.SimilarityReportPath
		}
	case FileAI:
		if doc.HasAIReport() {
			key = *doc.AIReportPath
		}
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown file kind")
	}
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "report not available")
	}
	url, err := s.store.PresignGet(ctx, key, s.opts.DownloadURLTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}
	return url, nil
}

func (s *service) OpenLeased(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, io.ReadCloser, error) {
	doc, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkHolder(actor, doc); err != nil {
		return nil, nil, err
	}
	body, err := s.store.Get(ctx, doc.FilePath)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "document file missing")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read document file")
	}
	return doc, body, nil
}

// checkHolder allows the staff member holding the document, or any admin.
func (s *service) checkHolder(actor Actor, doc *models.Document) error {
	if !actor.processes() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	if actor.isAdmin() {
		return nil
	}
	if doc.Status != enums.DocumentStatusInProgress || doc.AssignedStaffID == nil || *doc.AssignedStaffID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "document is not assigned to you")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.isAdmin() {
		if actor.Role == enums.RoleStaff {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only admins can delete queued documents")
		}
		if doc.Status == enums.DocumentStatusInProgress {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document is being processed")
		}
	}
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot document")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertDeletedLog(ctx, &models.DeletedDocumentLog{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			FileName:   doc.FileName,
			FilePath:   doc.FilePath,
			Status:     string(doc.Status),
			Snapshot:   snapshot,
			DeletedBy:  actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive document")
		}
		if err := repo.Delete(ctx, doc.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete document")
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range []*string{&doc.FilePath, doc.SimilarityReportPath, doc.AIReportPath} {
		if key != nil && *key != "" {
			s.removeObject(ctx, *key)
		}
	}
	return nil
}

func (s *service) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, change StatusChange) (*models.Document, error) {
	if !actor.processes() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	if !change.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	m := mutation{fields: map[string]any{}, target: change.Status, source: SourceManual, action: "status_change", assigneeOnly: true}
	if change.SimilarityPercentage != nil {
		m.fields["similarity_percentage"] = *change.SimilarityPercentage
	}
	if change.AIPercentage != nil {
		m.fields["ai_percentage"] = *change.AIPercentage
	}
	if change.ErrorMessage != nil {
		m.errorMessage = strings.TrimSpace(*change.ErrorMessage)
	}
	return s.mutate(ctx, actor, id, m)
}

func (s *service) Claim(ctx context.Context, actor Actor, id uuid.UUID) (*models.Document, error) {
	if !actor.processes() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	return s.claim(ctx, actor, id, nil, "claimed")
}

func (s *service) claim(ctx context.Context, actor Actor, id uuid.UUID, leaseUntil *time.Time, note string) (*models.Document, error) {
	var claimed *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		ok, err := repo.ClaimPending(ctx, id, actor.UserID, s.now(), leaseUntil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim document")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document is no longer available")
		}
		after, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := repo.InsertActivity(ctx, s.activity(actor, id, "claim", describeChange(*before, *after, []string{note}))); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}
		claimed = after
		return nil
	})
	return claimed, err
}

func (s *service) AttachReports(ctx context.Context, actor Actor, id uuid.UUID, input ReportInput) (*models.Document, error) {
	if !actor.processes() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	if input.Similarity == nil && input.AI == nil && input.SimilarityPercentage == nil && input.AIPercentage == nil && !input.Complete {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to attach")
	}
	for _, pct := range []*float64{input.SimilarityPercentage, input.AIPercentage} {
		if pct != nil && (*pct < 0 || *pct > 100) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentages must be between 0 and 100")
		}
	}
	for _, file := range []*FileInput{input.Similarity, input.AI} {
		if file == nil {
			continue
		}
		if err := validateReport(*file, s.opts.MaxUploadBytes); err != nil {
			return nil, err
		}
	}

	doc, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.isAdmin() && doc.Status == enums.DocumentStatusInProgress && doc.AssignedStaffID != nil && *doc.AssignedStaffID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "document is assigned to another staff member")
	}

	m := mutation{fields: map[string]any{}, source: input.Source, action: "reports"}
	if m.source == "" {
		m.source = SourceManual
	}
	var stored []string
	put := func(kind storage.ReportKind, file *FileInput, column string) error {
		if file == nil {
			return nil
		}
		key := storage.ReportKey(doc.ID, kind, uuid.NewString()[:8]+"-"+file.Name)
		if err := s.putObject(ctx, key, *file); err != nil {
			return err
		}
		stored = append(stored, key)
		m.fields[column] = key
		return nil
	}
	if err := put(storage.ReportSimilarity, input.Similarity, "similarity_report_path"); err != nil {
		return nil, err
	}
	if err := put(storage.ReportAI, input.AI, "ai_report_path"); err != nil {
		for _, key := range stored {
			s.removeObject(ctx, key)
		}
		return nil, err
	}
	if input.SimilarityPercentage != nil {
		m.fields["similarity_percentage"] = *input.SimilarityPercentage
	}
	if input.AIPercentage != nil {
		m.fields["ai_percentage"] = *input.AIPercentage
	}
	if input.Complete {
		m.target = enums.DocumentStatusCompleted
	}

	updated, err := s.mutate(ctx, actor, id, m)
	if err != nil {
		for _, key := range stored {
			s.removeObject(ctx, key)
		}
		return nil, err
	}
	for _, prior := range []*string{doc.SimilarityReportPath, doc.AIReportPath} {
		if prior != nil && *prior != "" && *prior != deref(updated.SimilarityReportPath) && *prior != deref(updated.AIReportPath) {
			s.removeObject(ctx, *prior)
		}
	}
	return updated, nil
}

func (s *service) ClaimNext(ctx context.Context, actor Actor) (*models.Document, error) {
	if !actor.processes() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	for attempt := 0; attempt < 3; attempt++ {
		ids, err := s.repo.NextPendingIDs(ctx, 5)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load queue")
		}
		if len(ids) == 0 {
			return nil, nil
		}
		for _, id := range ids {
			lease := s.now().Add(s.opts.LeaseDuration)
			doc, err := s.claim(ctx, actor, id, &lease, "leased until "+lease.Format(time.RFC3339))
			if err == nil {
				return doc, nil
			}
			if te := pkgerrors.As(err); te == nil || (te.Code() != pkgerrors.CodeStateConflict && te.Code() != pkgerrors.CodeNotFound) {
				return nil, err
			}
		}
	}
	return nil, nil
}

func (s *service) RenewLeases(ctx context.Context, actor Actor) (int64, error) {
	if !actor.processes() {
		return 0, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	n, err := s.repo.RenewLeases(ctx, actor.UserID, s.now().Add(s.opts.LeaseDuration))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew leases")
	}
	return n, nil
}

func (s *service) ReportFailure(ctx context.Context, actor Actor, id uuid.UUID, message string) (*models.Document, error) {
	doc, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkHolder(actor, doc); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	m := mutation{
		fields:       map[string]any{},
		target:       enums.DocumentStatusPending,
		errorMessage: message,
		source:       SourceExtension,
		action:       "failure",
	}
	if doc.ProcessingAttempts >= s.opts.MaxAttempts {
		m.target = enums.DocumentStatusError
	}
	return s.mutate(ctx, actor, id, m)
}

func (s *service) ReleaseExpiredLeases(ctx context.Context) (int, error) {
	now := s.now()
	docs, err := s.repo.ExpiredLeases(ctx, now, 200)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expired leases")
	}
	released := 0
	for _, doc := range docs {
		before := doc
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.ReleaseLease(ctx, doc.ID, now)
			if err != nil || !ok {
				return err
			}
			after, err := s.load(ctx, repo, doc.ID)
			if err != nil {
				return err
			}
			released++
			return repo.InsertActivity(ctx, s.activity(Actor{}, doc.ID, "lease_expired", describeChange(before, *after, []string{"lease expired"})))
		})
		if err != nil {
			return released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release lease")
		}
	}
	return released, nil
}

func (s *service) Stats(ctx context.Context) (map[enums.DocumentStatus]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count documents")
	}
	return counts, nil
}

func (s *service) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Document, error) {
	doc, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
	if doc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (s *service) activity(actor Actor, documentID uuid.UUID, action, description string) *models.DocumentActivityLog {
	entry := &models.DocumentActivityLog{DocumentID: documentID, Action: action, Description: description}
	if actor.UserID != uuid.Nil {
		id, role := actor.UserID, actor.Role
		entry.ActorID = &id
		entry.ActorRole = &role
	}
	return entry
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
