package bulkmatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

type fakeFinder struct {
	byName map[string][]models.Document
}

func (f fakeFinder) FindOpenByNormalizedName(_ context.Context, name string) ([]models.Document, error) {
	return f.byName[name], nil
}

type fakeAttacher struct {
	attached map[uuid.UUID]documents.ReportInput
	err      error
}

func (f *fakeAttacher) AttachReports(_ context.Context, actor documents.Actor, id uuid.UUID, input documents.ReportInput) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.attached[id] = input
	return &models.Document{ID: id}, nil
}

type fakeExtractor struct {
	pages []string
	err   error
}

func (f fakeExtractor) Pages(context.Context, []byte) ([]string, error) {
	return f.pages, f.err
}

type matchHarness struct {
	svc      Service
	attacher *fakeAttacher
	repo     *Repository
}

func newMatchHarness(t *testing.T, docs map[string][]models.Document, pages []string) *matchHarness {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	attacher := &fakeAttacher{attached: map[uuid.UUID]documents.ReportInput{}}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Candidates: fakeFinder{byName: docs},
		Documents:  attacher,
		Extractor:  fakeExtractor{pages: pages},
	})
	require.NoError(t, err)
	return &matchHarness{svc: svc, attacher: attacher, repo: repo}
}

var admin = documents.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

func report(name string) ReportFile {
	return ReportFile{Name: name, Body: strings.NewReader("%PDF-1.4 report")}
}

func withReport() *string {
	p := "reports/x/similarity.pdf"
	return &p
}

func TestMatchSingleCandidate(t *testing.T) {
	doc := models.Document{ID: uuid.New(), NormalizedName: "thesis final"}
	h := newMatchHarness(t, map[string][]models.Document{"thesis final": {doc}}, []string{"cover", "18% overall similarity"})

	out, err := h.svc.MatchReport(context.Background(), admin, report("Thesis  Final (1) (2).pdf"))
	require.NoError(t, err)
	require.Equal(t, enums.MatchMatched, out.Outcome)
	require.Equal(t, doc.ID, *out.DocumentID)
	require.Equal(t, 18.0, *out.SimilarityPercentage)

	input := h.attacher.attached[doc.ID]
	require.True(t, input.Complete)
	require.Equal(t, documents.SourceBulk, input.Source)
	require.Equal(t, 18.0, *input.SimilarityPercentage)
}

func TestDecisionPolicy(t *testing.T) {
	docs := map[string][]models.Document{
		"done":  {{ID: uuid.New(), SimilarityReportPath: withReport()}},
		"twins": {{ID: uuid.New()}, {ID: uuid.New()}},
		"mixed": {{ID: uuid.New(), SimilarityReportPath: withReport()}, {ID: uuid.New()}},
	}
	h := newMatchHarness(t, docs, []string{"cover", "no numbers here"})
	ctx := context.Background()

	cases := map[string]string{
		"missing.pdf": ReasonNoMatch,
		"done.pdf":    ReasonHasReport,
		"twins.pdf":   ReasonAmbiguous,
		"mixed.pdf":   ReasonNoPercentage,
	}
	for name, reason := range cases {
		out, err := h.svc.MatchReport(ctx, admin, report(name))
		require.NoError(t, err)
		require.Equal(t, enums.MatchUnmatched, out.Outcome, name)
		require.Equal(t, reason, out.Reason, name)
	}
	require.Empty(t, h.attacher.attached)

	page, err := h.svc.ListLogs(ctx, "unmatched", 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
}

func TestMatchBatchSummarises(t *testing.T) {
	doc := models.Document{ID: uuid.New()}
	h := newMatchHarness(t, map[string][]models.Document{"essay": {doc}}, []string{"cover", "Similarity Index 9%"})

	summary, err := h.svc.MatchBatch(context.Background(), admin, []ReportFile{report("essay.pdf"), report("other.pdf")})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Matched)
	require.Equal(t, 1, summary.Unmatched)
	require.Len(t, summary.Results, 2)
}

func TestAttachFailureIsUnmatched(t *testing.T) {
	doc := models.Document{ID: uuid.New()}
	h := newMatchHarness(t, map[string][]models.Document{"essay": {doc}}, []string{"cover", "9% overall similarity"})
	h.attacher.err = pkgerrors.New(pkgerrors.CodeStateConflict, "document changed")

	out, err := h.svc.MatchReport(context.Background(), admin, report("essay.pdf"))
	require.NoError(t, err)
	require.Equal(t, enums.MatchUnmatched, out.Outcome)
	require.Contains(t, out.Reason, "document changed")
}

func TestUnreadablePDF(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Candidates: fakeFinder{byName: map[string][]models.Document{"essay": {{ID: uuid.New()}}}},
		Documents:  &fakeAttacher{attached: map[uuid.UUID]documents.ReportInput{}},
		Extractor:  fakeExtractor{err: errors.New("syntax error")},
	})
	require.NoError(t, err)

	out, err := svc.MatchReport(context.Background(), admin, report("essay.pdf"))
	require.NoError(t, err)
	require.Equal(t, ReasonUnreadable, out.Reason)
}

func TestStaffCannotBulkMatch(t *testing.T) {
	h := newMatchHarness(t, nil, nil)
	_, err := h.svc.MatchBatch(context.Background(), documents.Actor{UserID: uuid.New(), Role: enums.RoleStaff}, []ReportFile{report("a.pdf")})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}
