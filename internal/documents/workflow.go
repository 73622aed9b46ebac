package documents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
)

type mutation struct {
	fields       map[string]any
	target       enums.DocumentStatus
	errorMessage string
	source       string
	action       string
	notes        []string
	// assigneeOnly limits staff to unassigned documents and their own.
	assigneeOnly bool
}

// checkTransition enforces pending → in_progress → completed, with error
// reachable from anywhere and pending reachable as a release or reset.
// Admins may complete a pending document directly.
func checkTransition(from, to enums.DocumentStatus, role enums.Role) error {
	if from == to {
		return nil
	}
	allowed := false
	switch to {
	case enums.DocumentStatusError, enums.DocumentStatusPending:
		allowed = true
	case enums.DocumentStatusInProgress:
		allowed = from == enums.DocumentStatusPending
	case enums.DocumentStatusCompleted:
		allowed = from == enums.DocumentStatusInProgress ||
			(from == enums.DocumentStatusPending && role == enums.RoleAdmin)
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move document from "+string(from)+" to "+string(to))
	}
	return nil
}

// checkAssignee rejects staff acting on a document another staff member holds.
func checkAssignee(actor Actor, doc *models.Document) error {
	if actor.isAdmin() || doc.AssignedStaffID == nil || *doc.AssignedStaffID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "document is assigned to another staff member")
}

// reportsComplete reports whether doc carries every report its scan type needs.
func reportsComplete(doc models.Document) bool {
	if !doc.HasSimilarityReport() {
		return false
	}
	return !doc.ScanType.RequiresAIReport() || doc.HasAIReport()
}

func (s *service) statusFields(actor Actor, before *models.Document, m *mutation) {
	now := s.now()
	switch m.target {
	case enums.DocumentStatusInProgress:
		if before.AssignedStaffID == nil {
			m.fields["assigned_staff_id"] = actor.UserID
		}
		m.fields["assigned_at"] = now
		m.fields["error_message"] = nil
	case enums.DocumentStatusCompleted:
		m.fields["completed_at"] = now
		m.fields["lease_expires_at"] = nil
		m.fields["error_message"] = nil
		if before.AssignedStaffID == nil && actor.UserID != uuid.Nil {
			m.fields["assigned_staff_id"] = actor.UserID
			m.fields["assigned_at"] = now
		}
	case enums.DocumentStatusPending:
		m.fields["assigned_staff_id"] = nil
		m.fields["assigned_at"] = nil
		m.fields["lease_expires_at"] = nil
		m.fields["completed_at"] = nil
	case enums.DocumentStatusError:
		m.fields["lease_expires_at"] = nil
	}
	if m.errorMessage != "" {
		m.fields["error_message"] = m.errorMessage
		m.notes = append(m.notes, "error: "+m.errorMessage)
	}
	if m.target != "" {
		m.fields["status"] = m.target
	}
}

// mutate applies m to the document inside one transaction, guarded by the
// status observed at load time, and writes the activity entry and events.
func (s *service) mutate(ctx context.Context, actor Actor, id uuid.UUID, m mutation) (*models.Document, error) {
	var updated *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if m.assigneeOnly {
			if err := checkAssignee(actor, before); err != nil {
				return err
			}
		}
		if m.target != "" {
			if err := checkTransition(before.Status, m.target, actor.Role); err != nil {
				return err
			}
			if m.target != before.Status || m.errorMessage != "" {
				s.statusFields(actor, before, &m)
			}
		}
		if len(m.fields) == 0 {
			updated = before
			return nil
		}

		ok, err := repo.UpdateIfStatus(ctx, id, before.Status, m.fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update document")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document changed concurrently")
		}
		after, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if after.Status == enums.DocumentStatusCompleted && before.Status != enums.DocumentStatusCompleted &&
			!actor.isAdmin() && !reportsComplete(*after) {
			if after.ScanType.RequiresAIReport() {
				return pkgerrors.New(pkgerrors.CodeValidation, "similarity and AI reports are required before completion")
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "a similarity report is required before completion")
		}

		action := m.action
		if action == "" {
			action = "update"
		}
		if err := repo.InsertActivity(ctx, s.activity(actor, id, action, describeChange(*before, *after, m.notes))); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}
		if err := s.emitTransition(ctx, tx, actor, before, after, m.source); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, actor Actor, before, after *models.Document, source string) error {
	if before.Status == after.Status {
		return nil
	}
	switch after.Status {
	case enums.DocumentStatusCompleted:
		completedAt := s.now()
		if after.CompletedAt != nil {
			completedAt = *after.CompletedAt
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentCompleted,
			AggregateType: enums.AggregateDocument,
			AggregateID:   after.ID,
			Actor:         actor.ref(),
			Data: payloads.DocumentCompletedEvent{
				DocumentID:           after.ID,
				UserID:               after.UserID,
				GuestEmail:           after.GuestEmail,
				FileName:             after.FileName,
				SimilarityPercentage: after.SimilarityPercentage,
				AIPercentage:         after.AIPercentage,
				CompletedAt:          completedAt,
				Source:               source,
			},
		}); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.DocumentCompleted(source)
		}
	case enums.DocumentStatusError:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentFailed,
			AggregateType: enums.AggregateDocument,
			AggregateID:   after.ID,
			Actor:         actor.ref(),
			Data: payloads.DocumentFailedEvent{
				DocumentID: after.ID,
				UserID:     after.UserID,
				FileName:   after.FileName,
				Message:    deref(after.ErrorMessage),
			},
		})
	}
	return nil
}
