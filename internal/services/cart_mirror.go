package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

// errMirrorBacklog is returned when a user's mirror queue is full.
var errMirrorBacklog = errors.New("cart mirror: queue full")

type mirrorOp int

const (
	mirrorUpsert mirrorOp = iota + 1
	mirrorDelete
	mirrorDeleteAll
)

func (op mirrorOp) String() string {
	switch op {
	case mirrorUpsert:
		return "upsert"
	case mirrorDelete:
		return "delete"
	case mirrorDeleteAll:
		return "delete_all"
	default:
		return "unknown"
	}
}

type mirrorWrite struct {
	ctx       context.Context
	op        mirrorOp
	userID    string
	productID string
	row       domain.CartRow
	done      chan error
}

// mirrorLane is the FIFO of one user. A single goroutine drains it while work is pending;
// idle is closed once the lane is empty.
type mirrorLane struct {
	pending []mirrorWrite
	idle    chan struct{}
}

// cartMirror serialises remote cart writes per user so that writes issued back to back
// land in issue order. Lanes exist only while they have work.
type cartMirror struct {
	rows      repositories.CartItemRepository
	queueSize int
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)
	failures  metric.Int64Counter

	mu    sync.Mutex
	lanes map[string]*mirrorLane
}

func newCartMirror(rows repositories.CartItemRepository, queueSize int, timeout time.Duration, logger func(context.Context, string, map[string]any), failures metric.Int64Counter) *cartMirror {
	return &cartMirror{
		rows:      rows,
		queueSize: queueSize,
		timeout:   timeout,
		logger:    logger,
		failures:  failures,
		lanes:     make(map[string]*mirrorLane),
	}
}

// enqueue appends w to the lane of w.userID and starts a drainer when none runs.
func (m *cartMirror) enqueue(w mirrorWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane, ok := m.lanes[w.userID]
	if !ok {
		lane = &mirrorLane{idle: make(chan struct{})}
		m.lanes[w.userID] = lane
		go m.drain(w.userID, lane)
	}
	if m.queueSize > 0 && len(lane.pending) >= m.queueSize {
		return errMirrorBacklog
	}
	lane.pending = append(lane.pending, w)
	return nil
}

func (m *cartMirror) drain(userID string, lane *mirrorLane) {
	for {
		m.mu.Lock()
		if len(lane.pending) == 0 {
			delete(m.lanes, userID)
			close(lane.idle)
			m.mu.Unlock()
			return
		}
		w := lane.pending[0]
		lane.pending[0] = mirrorWrite{}
		lane.pending = lane.pending[1:]
		m.mu.Unlock()

		err := m.apply(w)
		if err != nil {
			m.reportFailure(w.ctx, w, err)
		}
		if w.done != nil {
			w.done <- err
		}
	}
}

func (m *cartMirror) apply(w mirrorWrite) error {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	switch w.op {
	case mirrorUpsert:
		return m.rows.Upsert(ctx, w.row)
	case mirrorDelete:
		return m.rows.Delete(ctx, w.userID, w.productID)
	case mirrorDeleteAll:
		return m.rows.DeleteAll(ctx, w.userID)
	default:
		return nil
	}
}

func (m *cartMirror) reportFailure(ctx context.Context, w mirrorWrite, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.logger(ctx, "cart.mirror_failed", map[string]any{
		"userId":    w.userID,
		"productId": w.productID,
		"op":        w.op.String(),
		"error":     err.Error(),
	})
	if m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", w.op.String())))
	}
}

// flushUser blocks until the lane of userID is empty or ctx is done.
func (m *cartMirror) flushUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	lane, ok := m.lanes[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-lane.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flushAll blocks until every lane present at call time is empty or ctx is done.
func (m *cartMirror) flushAll(ctx context.Context) error {
	m.mu.Lock()
	idle := make([]chan struct{}, 0, len(m.lanes))
	for _, lane := range m.lanes {
		idle = append(idle, lane.idle)
	}
	m.mu.Unlock()

	for _, ch := range idle {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
