package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

type stubContactRepository struct {
	inserted []domain.ContactMessage
	err      error
}

func (s *stubContactRepository) Insert(_ context.Context, msg domain.ContactMessage) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, msg)
	return nil
}

func newTestContactService(t *testing.T, repo *stubContactRepository, events *stubPublisher) ContactService {
	t.Helper()
	deps := ContactServiceDeps{
		Messages:    repo,
		Clock:       func() time.Time { return time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "msg-1" },
	}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewContactService(deps)
	if err != nil {
		t.Fatalf("new contact service: %v", err)
	}
	return svc
}

func TestContactSubmitSanitisesAndPublishes(t *testing.T) {
	repo := &stubContactRepository{}
	events := &stubPublisher{}
	svc := newTestContactService(t, repo, events)

	msg, err := svc.Submit(context.Background(), ContactCommand{
		Name:    " <b>Maria</b> ",
		Email:   "Maria@Example.com",
		Phone:   "(11) 99999-0000",
		Subject: "Anel sob medida",
		Message: "Olá! <script>alert(1)</script>Vocês fazem aro 14?",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg.Name != "Maria" || msg.Email != "maria@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if strings.Contains(msg.Message, "<script>") || !strings.Contains(msg.Message, "aro 14?") {
		t.Fatalf("expected sanitised message, got %q", msg.Message)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].ID != "msg-1" {
		t.Fatalf("expected one stored message, got %+v", repo.inserted)
	}
	if len(events.events) != 1 || events.events[0].eventType != EventContactSubmitted || events.events[0].key != "msg-1" {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestContactSubmitValidation(t *testing.T) {
	svc := newTestContactService(t, &stubContactRepository{}, nil)
	cases := []struct {
		cmd     ContactCommand
		message string
	}{
		{ContactCommand{Email: "a@b.co", Message: "oi"}, "Nome é obrigatório."},
		{ContactCommand{Name: "Ana", Message: "oi"}, "E-mail é obrigatório."},
		{ContactCommand{Name: "Ana", Email: "ana", Message: "oi"}, "E-mail inválido."},
		{ContactCommand{Name: "Ana", Email: "a@b.co", Message: "  "}, "Mensagem é obrigatória."},
		{ContactCommand{Name: "Ana", Email: "a@b.co", Message: strings.Repeat("a", 5001)}, "A mensagem deve ter no máximo 5000 caracteres."},
	}
	for _, tc := range cases {
		_, err := svc.Submit(context.Background(), tc.cmd)
		requirePublicError(t, err, ErrContactInvalidInput, tc.message)
	}
}

func TestContactSubmitStoreFailure(t *testing.T) {
	svc := newTestContactService(t, &stubContactRepository{err: errors.New("deadline exceeded")}, nil)
	_, err := svc.Submit(context.Background(), ContactCommand{Name: "Ana", Email: "a@b.co", Message: "oi"})
	if !errors.Is(err, ErrContactUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
