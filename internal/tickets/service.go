package tickets

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

const previewRunes = 140

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the caller of a ticket operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a Actor) isAdmin() bool { return a.Role == enums.RoleAdmin }

type CreateInput struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=10000"`
}

type ListQuery struct {
	Status string
	Limit  int
	Cursor string
}

// Thread is a ticket with its messages, oldest first.
type Thread struct {
	Ticket   models.SupportTicket   `json:"ticket"`
	Messages []models.TicketMessage `json:"messages"`
}

type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*Thread, error)
	List(ctx context.Context, actor Actor, query ListQuery) (*pagination.Page[models.SupportTicket], error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*Thread, error)
	Reply(ctx context.Context, actor Actor, id uuid.UUID, body string) (*Thread, error)
	SetStatus(ctx context.Context, actor Actor, id uuid.UUID, status enums.TicketStatus) (*models.SupportTicket, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxEmitter
	now    func() time.Time
}

func NewService(repo *Repository, tx txRunner, emitter outboxEmitter, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tickets repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, tx: tx, outbox: emitter, now: now}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*Thread, error) {
	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Message)
	if subject == "" || body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject and message are required")
	}
	ticket := &models.SupportTicket{UserID: actor.UserID, Subject: subject, Status: enums.TicketOpen}
	msg := &models.TicketMessage{AuthorID: actor.UserID, Body: body}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTicket(ctx, ticket); err != nil {
			return err
		}
		msg.TicketID = ticket.ID
		return repo.AddMessage(ctx, msg)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ticket")
	}
	return &Thread{Ticket: *ticket, Messages: []models.TicketMessage{*msg}}, nil
}

// List returns the caller's tickets, or every ticket for admins.
func (s *service) List(ctx context.Context, actor Actor, query ListQuery) (*pagination.Page[models.SupportTicket], error) {
	params := listParams{Limit: query.Limit}
	if !actor.isAdmin() {
		params.UserID = &actor.UserID
	}
	if query.Status != "" {
		status := enums.TicketStatus(query.Status)
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket status")
		}
		params.Status = &status
	}
	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	page := pagination.Trim(rows, query.Limit, func(t models.SupportTicket) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &page, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Thread, error) {
	ticket, err := s.load(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	return s.thread(ctx, s.repo, ticket)
}

// Reply appends a message. A customer reply reopens a resolved or closed
// ticket. An admin reply moves an open ticket to in_progress and notifies
// the customer.
func (s *service) Reply(ctx context.Context, actor Actor, id uuid.UUID, body string) (*Thread, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}
	var thread *Thread
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ticket, err := s.load(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		staffReply := actor.isAdmin() && actor.UserID != ticket.UserID
		if err := repo.AddMessage(ctx, &models.TicketMessage{
			TicketID: ticket.ID,
			AuthorID: actor.UserID,
			IsStaff:  staffReply,
			Body:     body,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add ticket message")
		}

		next := ticket.Status
		switch {
		case staffReply && ticket.Status == enums.TicketOpen:
			next = enums.TicketInProgress
		case !staffReply && ticket.Status.IsTerminal():
			next = enums.TicketOpen
		}
		if err := repo.SetStatus(ctx, ticket.ID, next, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ticket status")
		}
		ticket.Status = next

		if staffReply {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventTicketReplied,
				AggregateType: enums.AggregateTicket,
				AggregateID:   ticket.ID,
				Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
				Data: payloads.TicketRepliedEvent{
					TicketID: ticket.ID,
					UserID:   ticket.UserID,
					Subject:  ticket.Subject,
					Preview:  preview(body),
				},
			}); err != nil {
				return err
			}
		}
		thread, err = s.thread(ctx, repo, ticket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *service) SetStatus(ctx context.Context, actor Actor, id uuid.UUID, status enums.TicketStatus) (*models.SupportTicket, error) {
	if !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket status")
	}
	ticket, err := s.load(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, id, status, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ticket status")
	}
	ticket.Status = status
	return ticket, nil
}

func (s *service) load(ctx context.Context, repo *Repository, actor Actor, id uuid.UUID) (*models.SupportTicket, error) {
	ticket, err := repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if ticket == nil || (!actor.isAdmin() && ticket.UserID != actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	return ticket, nil
}

func (s *service) thread(ctx context.Context, repo *Repository, ticket *models.SupportTicket) (*Thread, error) {
	msgs, err := repo.Messages(ctx, ticket.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket messages")
	}
	return &Thread{Ticket: *ticket, Messages: msgs}, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	return string([]rune(body)[:previewRunes]) + "…"
}
