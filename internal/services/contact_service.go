package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

// EventContactSubmitted is published after a contact message is stored.
const EventContactSubmitted = "contact.submitted"

const (
	maxContactNameLength    = 120
	maxContactSubjectLength = 200
	maxContactPhoneLength   = 40
	maxContactMessageLength = 5000

	msgContactNameRequired    = "Nome é obrigatório."
	msgContactMessageRequired = "Mensagem é obrigatória."
	msgContactMessageTooLong  = "A mensagem deve ter no máximo 5000 caracteres."
)

var (
	// ErrContactInvalidInput indicates the form failed validation.
	ErrContactInvalidInput = errors.New("contact: invalid input")
	// ErrContactUnavailable indicates the message could not be stored.
	ErrContactUnavailable = errors.New("contact: unavailable")
)

// ContactCommand is a raw contact form submission.
type ContactCommand struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
}

// ContactServiceDeps wires the contact service.
type ContactServiceDeps struct {
	Messages    repositories.ContactMessageRepository
	Events      EventPublisher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type contactService struct {
	messages repositories.ContactMessageRepository
	events   EventPublisher
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	newID    func() string
}

var _ ContactService = (*contactService)(nil)

// NewContactService constructs a ContactService.
func NewContactService(deps ContactServiceDeps) (ContactService, error) {
	if deps.Messages == nil {
		return nil, errors.New("contact service: message repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &contactService{
		messages: deps.Messages,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		newID:  idGen,
	}, nil
}

func (s *contactService) Submit(ctx context.Context, cmd ContactCommand) (ContactMessage, error) {
	name := truncateRunes(sanitizePlain(cmd.Name), maxContactNameLength)
	if name == "" {
		return ContactMessage{}, publicError(ErrContactInvalidInput, "name", msgContactNameRequired)
	}
	email, err := validateEmail(cmd.Email, msgEmailRequired, ErrContactInvalidInput)
	if err != nil {
		return ContactMessage{}, err
	}
	message := sanitizePlain(cmd.Message)
	if message == "" {
		return ContactMessage{}, publicError(ErrContactInvalidInput, "message", msgContactMessageRequired)
	}
	if utf8.RuneCountInString(message) > maxContactMessageLength {
		return ContactMessage{}, publicError(ErrContactInvalidInput, "message", msgContactMessageTooLong)
	}

	msg := ContactMessage{
		ID:        s.newID(),
		Name:      name,
		Email:     email,
		Phone:     truncateRunes(sanitizePlain(cmd.Phone), maxContactPhoneLength),
		Subject:   truncateRunes(sanitizePlain(cmd.Subject), maxContactSubjectLength),
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return ContactMessage{}, fmt.Errorf("%w: %v", ErrContactUnavailable, err)
	}
	s.logger(ctx, "contact.submitted", map[string]any{"messageId": msg.ID})

	if s.events != nil {
		payload := map[string]any{
			"id":      msg.ID,
			"name":    msg.Name,
			"email":   msg.Email,
			"phone":   msg.Phone,
			"subject": msg.Subject,
			"message": msg.Message,
		}
		if _, err := s.events.Publish(ctx, EventContactSubmitted, msg.ID, payload); err != nil {
			s.logger(ctx, "contact.event_failed", map[string]any{"messageId": msg.ID, "error": err.Error()})
		}
	}
	return msg, nil
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	return strings.TrimSpace(string([]rune(value)[:limit]))
}
