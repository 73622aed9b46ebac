package documents

import (
	"fmt"
	"strings"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
)

// describeChange renders the audit line for a document mutation, for example
// "status: pending → in_progress; similarity report replaced; ai %: 12.00 → 15.50".
func describeChange(before, after models.Document, notes []string) string {
	var parts []string
	if before.Status != after.Status {
		parts = append(parts, fmt.Sprintf("status: %s → %s", before.Status, after.Status))
	}
	switch {
	case before.AssignedStaffID == nil && after.AssignedStaffID != nil:
		parts = append(parts, "assigned to "+after.AssignedStaffID.String())
	case before.AssignedStaffID != nil && after.AssignedStaffID == nil:
		parts = append(parts, "unassigned")
	case before.AssignedStaffID != nil && after.AssignedStaffID != nil && *before.AssignedStaffID != *after.AssignedStaffID:
		parts = append(parts, "reassigned to "+after.AssignedStaffID.String())
	}
	if part := reportChange("similarity report", before.SimilarityReportPath, after.SimilarityReportPath); part != "" {
		parts = append(parts, part)
	}
	if part := reportChange("ai report", before.AIReportPath, after.AIReportPath); part != "" {
		parts = append(parts, part)
	}
	if part := percentChange("similarity %", before.SimilarityPercentage, after.SimilarityPercentage); part != "" {
		parts = append(parts, part)
	}
	if part := percentChange("ai %", before.AIPercentage, after.AIPercentage); part != "" {
		parts = append(parts, part)
	}
	for _, note := range notes {
		if note = strings.TrimSpace(note); note != "" {
			parts = append(parts, note)
		}
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, "; ")
}

func reportChange(label string, before, after *string) string {
	had := before != nil && *before != ""
	has := after != nil && *after != ""
	switch {
	case !had && has:
		return label + " attached"
	case had && !has:
		return label + " removed"
	case had && has && *before != *after:
		return label + " replaced"
	}
	return ""
}

func percentChange(label string, before, after *float64) string {
	if before == nil && after == nil {
		return ""
	}
	if before != nil && after != nil && *before == *after {
		return ""
	}
	return fmt.Sprintf("%s: %s → %s", label, formatPercent(before), formatPercent(after))
}

func formatPercent(value *float64) string {
	if value == nil {
		return "none"
	}
	return fmt.Sprintf("%.2f", *value)
}
