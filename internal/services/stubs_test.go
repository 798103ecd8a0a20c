package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	return "repository error"
}

func (e stubRepoError) IsNotFound() bool {
	return e.notFound
}

func (e stubRepoError) IsConflict() bool {
	return e.conflict
}

func (e stubRepoError) IsUnavailable() bool {
	return e.unavailable
}

type stubProductRepository struct {
	listFunc   func(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error)
	findFunc   func(ctx context.Context, productID string) (domain.Product, error)
	insertFunc func(ctx context.Context, product domain.Product) error
	updateFunc func(ctx context.Context, product domain.Product) error
	deleteFunc func(ctx context.Context, productID string) error
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, nil
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, productID)
	}
	return domain.Product{}, stubRepoError{notFound: true}
}

func (s *stubProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, product)
	}
	return nil
}

func (s *stubProductRepository) Update(ctx context.Context, product domain.Product) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, product)
	}
	return nil
}

func (s *stubProductRepository) Delete(ctx context.Context, productID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, productID)
	}
	return nil
}

// catalogueOf returns a product finder over products keyed by id.
func catalogueOf(products ...domain.Product) *stubProductRepository {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &stubProductRepository{
		findFunc: func(_ context.Context, productID string) (domain.Product, error) {
			p, ok := byID[productID]
			if !ok {
				return domain.Product{}, stubRepoError{notFound: true}
			}
			return p, nil
		},
		listFunc: func(context.Context, repositories.ProductListFilter) ([]domain.Product, error) {
			return products, nil
		},
	}
}

type recordedRowOp struct {
	op        string
	productID string
	quantity  int
}

type stubCartRowRepository struct {
	mu         sync.Mutex
	ops        []recordedRowOp
	rows       []domain.CartRow
	listCalls  int
	upsertFunc func(ctx context.Context, row domain.CartRow) error
	listFunc   func(ctx context.Context, userID string) ([]domain.CartRow, error)
}

func (s *stubCartRowRepository) Upsert(ctx context.Context, row domain.CartRow) error {
	if s.upsertFunc != nil {
		if err := s.upsertFunc(ctx, row); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, recordedRowOp{op: "upsert", productID: row.ProductID, quantity: row.Quantity})
	return nil
}

func (s *stubCartRowRepository) Delete(_ context.Context, _ string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, recordedRowOp{op: "delete", productID: productID})
	return nil
}

func (s *stubCartRowRepository) DeleteAll(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, recordedRowOp{op: "delete_all"})
	return nil
}

func (s *stubCartRowRepository) List(ctx context.Context, userID string) ([]domain.CartRow, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	if s.listFunc != nil {
		return s.listFunc(ctx, userID)
	}
	return s.rows, nil
}

func (s *stubCartRowRepository) recorded() []recordedRowOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRowOp(nil), s.ops...)
}

type stubOrderRepository struct {
	placeFunc      func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error)
	findFunc       func(ctx context.Context, orderID string) (domain.Order, error)
	listFunc       func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	transitionFunc func(ctx context.Context, change repositories.StatusTransition) (domain.Order, error)
	pendingFunc    func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)

	paymentSessions map[string]string
}

func (s *stubOrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if s.placeFunc != nil {
		return s.placeFunc(ctx, req)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, orderID)
	}
	return domain.Order{}, stubRepoError{notFound: true}
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) TransitionStatus(ctx context.Context, change repositories.StatusTransition) (domain.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, change)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) SetPaymentSession(_ context.Context, orderID, sessionID string, _ time.Time) error {
	if s.paymentSessions == nil {
		s.paymentSessions = map[string]string{}
	}
	s.paymentSessions[orderID] = sessionID
	return nil
}

func (s *stubOrderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if s.pendingFunc != nil {
		return s.pendingFunc(ctx, cutoff, limit)
	}
	return nil, nil
}

type publishedEvent struct {
	eventType string
	key       string
	payload   any
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, eventType, key string, payload any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.events = append(s.events, publishedEvent{eventType: eventType, key: key, payload: payload})
	return "msg-1", nil
}

type loggedEvent struct {
	event  string
	fields map[string]any
}

type recordingLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{event: event, fields: fields})
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.event == event {
			return true
		}
	}
	return false
}
