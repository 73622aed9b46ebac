// Package bulkmatch attaches similarity reports to waiting documents by file name.
package bulkmatch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Unmatched reasons.
const (
	ReasonNoMatch       = "no matching document"
	ReasonHasReport     = "already has report"
	ReasonAmbiguous     = "ambiguous"
	ReasonNoPercentage  = "percentage not found"
	ReasonUnreadable    = "unreadable pdf"
	ReasonAttachFailed  = "attach failed"
	defaultMaxReportLen = 50 << 20
)

type candidateFinder interface {
	FindOpenByNormalizedName(ctx context.Context, normalized string) ([]models.Document, error)
}

type reportAttacher interface {
	AttachReports(ctx context.Context, actor documents.Actor, id uuid.UUID, input documents.ReportInput) (*models.Document, error)
}

type pageExtractor interface {
	Pages(ctx context.Context, pdf []byte) ([]string, error)
}

// ReportFile is one uploaded similarity report.
type ReportFile struct {
	Name string
	Body io.Reader
}

// Outcome is the verdict for one file.
type Outcome struct {
	FileName             string             `json:"file_name"`
	NormalizedName       string             `json:"normalized_name"`
	Outcome              enums.MatchOutcome `json:"outcome"`
	Reason               string             `json:"reason,omitempty"`
	DocumentID           *uuid.UUID         `json:"document_id,omitempty"`
	SimilarityPercentage *float64           `json:"similarity_percentage,omitempty"`
}

// Summary totals a batch.
type Summary struct {
	Matched   int       `json:"matched"`
	Unmatched int       `json:"unmatched"`
	Results   []Outcome `json:"results"`
}

// ServiceParams wires the matcher.
type ServiceParams struct {
	Repo           *Repository
	Candidates     candidateFinder
	Documents      reportAttacher
	Extractor      pageExtractor
	Logger         *logger.Logger
	MaxReportBytes int64
}

// Service matches report PDFs to pending documents.
type Service interface {
	MatchReport(ctx context.Context, actor documents.Actor, file ReportFile) (*Outcome, error)
	MatchBatch(ctx context.Context, actor documents.Actor, files []ReportFile) (*Summary, error)
	ListLogs(ctx context.Context, outcome string, limit int, cursor string) (*pagination.Page[models.BulkMatchLog], error)
}

type service struct {
	repo       *Repository
	candidates candidateFinder
	documents  reportAttacher
	extractor  pageExtractor
	logg       *logger.Logger
	maxBytes   int64
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bulk match repository required")
	}
	if params.Candidates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "document finder required")
	}
	if params.Documents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "documents service required")
	}
	if params.Extractor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pdf text extractor required")
	}
	if params.MaxReportBytes <= 0 {
		params.MaxReportBytes = defaultMaxReportLen
	}
	return &service{
		repo:       params.Repo,
		candidates: params.Candidates,
		documents:  params.Documents,
		extractor:  params.Extractor,
		logg:       params.Logger,
		maxBytes:   params.MaxReportBytes,
	}, nil
}

// MatchReport applies the decision policy to one file. Unmatched files are a
// normal result, not an error; errors are reserved for infrastructure failures.
func (s *service) MatchReport(ctx context.Context, actor documents.Actor, file ReportFile) (*Outcome, error) {
	if actor.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	out := &Outcome{FileName: file.Name, NormalizedName: documents.NormalizeFileName(file.Name)}
	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "report_file", file.Name)
	}

	candidates, err := s.candidates.FindOpenByNormalizedName(ctx, out.NormalizedName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find candidate documents")
	}
	target, reason := decide(candidates)
	if target == nil {
		return s.finish(ctx, actor, out.unmatched(reason))
	}

	data, err := io.ReadAll(io.LimitReader(file.Body, s.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read report")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s exceeds the upload limit", file.Name))
	}
	pages, err := s.extractor.Pages(ctx, data)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "bulkmatch.extract_failed: "+err.Error())
		}
		return s.finish(ctx, actor, out.unmatched(ReasonUnreadable))
	}
	pct, ok := ExtractSimilarityPercentage(pages)
	if !ok {
		return s.finish(ctx, actor, out.unmatched(ReasonNoPercentage))
	}

	_, err = s.documents.AttachReports(ctx, actor, target.ID, documents.ReportInput{
		Similarity: &documents.FileInput{
			Name:        file.Name,
			ContentType: "application/pdf",
			Size:        int64(len(data)),
			Body:        bytes.NewReader(data),
		},
		SimilarityPercentage: &pct,
		Complete:             true,
		Source:               documents.SourceBulk,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "bulkmatch.attach_failed", err)
		}
		out.DocumentID = &target.ID
		return s.finish(ctx, actor, out.unmatched(ReasonAttachFailed+": "+pkgerrors.As(err).Message()))
	}
	out.Outcome = enums.MatchMatched
	out.DocumentID = &target.ID
	out.SimilarityPercentage = &pct
	return s.finish(ctx, actor, out)
}

// decide picks the single open document without a similarity report.
func decide(candidates []models.Document) (*models.Document, string) {
	if len(candidates) == 0 {
		return nil, ReasonNoMatch
	}
	var open []models.Document
	for _, doc := range candidates {
		if !doc.HasSimilarityReport() {
			open = append(open, doc)
		}
	}
	switch len(open) {
	case 0:
		return nil, ReasonHasReport
	case 1:
		return &open[0], ""
	default:
		return nil, ReasonAmbiguous
	}
}

func (o *Outcome) unmatched(reason string) *Outcome {
	o.Outcome = enums.MatchUnmatched
	o.Reason = reason
	return o
}

func (s *service) finish(ctx context.Context, actor documents.Actor, out *Outcome) (*Outcome, error) {
	entry := &models.BulkMatchLog{
		FileName:             out.FileName,
		NormalizedName:       out.NormalizedName,
		Outcome:              out.Outcome,
		DocumentID:           out.DocumentID,
		SimilarityPercentage: out.SimilarityPercentage,
		ActorID:              &actor.UserID,
	}
	if out.Reason != "" {
		reason := out.Reason
		entry.Reason = &reason
	}
	if err := s.repo.Insert(ctx, entry); err != nil && s.logg != nil {
		s.logg.Error(ctx, "bulkmatch.log_failed", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"outcome": out.Outcome, "reason": out.Reason}), "bulkmatch.processed")
	}
	return out, nil
}

// MatchBatch processes files independently; one failing file does not stop the rest.
func (s *service) MatchBatch(ctx context.Context, actor documents.Actor, files []ReportFile) (*Summary, error) {
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no files provided")
	}
	summary := &Summary{Results: make([]Outcome, 0, len(files))}
	for _, file := range files {
		out, err := s.MatchReport(ctx, actor, file)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
				return nil, err
			}
			out = &Outcome{FileName: file.Name, NormalizedName: documents.NormalizeFileName(file.Name)}
			out.unmatched(pkgerrors.As(err).Message())
			if out.Reason == "" {
				out.Reason = err.Error()
			}
		}
		if out.Outcome == enums.MatchMatched {
			summary.Matched++
		} else {
			summary.Unmatched++
		}
		summary.Results = append(summary.Results, *out)
	}
	return summary, nil
}

func (s *service) ListLogs(ctx context.Context, outcome string, limit int, cursor string) (*pagination.Page[models.BulkMatchLog], error) {
	var filter enums.MatchOutcome
	if outcome != "" {
		parsed, err := enums.ParseMatchOutcome(outcome)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome filter")
		}
		filter = parsed
	}
	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, limit, parsed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list match logs")
	}
	page := pagination.Trim(rows, limit, func(l models.BulkMatchLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return &page, nil
}
