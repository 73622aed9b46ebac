package documents

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
)

func TestDescribeChange(t *testing.T) {
	staff := uuid.New()
	oldPath, newPath := "reports/a/similarity-1.pdf", "reports/a/similarity-2.pdf"
	oldAI, newAI := 12.0, 15.5

	before := models.Document{Status: enums.DocumentStatusPending, SimilarityReportPath: &oldPath, AIPercentage: &oldAI}
	after := models.Document{Status: enums.DocumentStatusInProgress, AssignedStaffID: &staff, SimilarityReportPath: &newPath, AIPercentage: &newAI}

	got := describeChange(before, after, []string{"claimed", " "})
	require.Equal(t, "status: pending → in_progress; assigned to "+staff.String()+"; similarity report replaced; ai %: 12.00 → 15.50; claimed", got)
}

func TestDescribeChangeNoop(t *testing.T) {
	doc := models.Document{Status: enums.DocumentStatusCompleted}
	require.Equal(t, "no changes", describeChange(doc, doc, nil))
}

func TestDescribeChangeNewPercentage(t *testing.T) {
	value := 40.0
	path := "reports/x/ai-r.pdf"
	got := describeChange(models.Document{}, models.Document{SimilarityPercentage: &value, AIReportPath: &path}, nil)
	require.Equal(t, "ai report attached; similarity %: none → 40.00", got)
}
