package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// SettlementFacade exposes the subset of application functionality required by the sweeper.
type SettlementFacade interface {
	PendingPayments(ctx context.Context, limit int) ([]model.Order, error)
	OverduePayments(ctx context.Context, limit int) ([]model.Order, error)
	CheckPayment(ctx context.Context, orderID int64) (*model.PaymentState, error)
	ExpirePayment(ctx context.Context, orderID int64) (*model.PaymentState, error)
}

type job struct {
	order  model.Order
	expire bool
}

// Sweeper periodically reconciles outstanding payment attempts against the
// oracle and expires attempts that outlived the payment window. It goes
// through the same verification path the client-facing status check uses.
type Sweeper struct {
	facade    SettlementFacade
	interval  time.Duration
	batchSize int
	workers   int
	logger    *slog.Logger

	jobs   chan job
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewSweeper constructs the reconciliation sweep worker pool.
func NewSweeper(facade SettlementFacade, interval time.Duration, batchSize, workers int, logger *slog.Logger) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Sweeper{
		facade:    facade,
		interval:  interval,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
		jobs:      make(chan job, batchSize*workers),
	}
}

// Start launches background sweeping.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}

	s.wg.Add(1)
	go s.dispatch(runCtx)
}

// Stop waits for all workers to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sweeper) dispatch(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.jobs)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetchAndDispatch(ctx)
		}
	}
}

func (s *Sweeper) fetchAndDispatch(ctx context.Context) {
	pending, err := s.facade.PendingPayments(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("fetch pending payments failed", slog.String("error", err.Error()))
	} else {
		s.enqueue(ctx, pending, false)
	}

	overdue, err := s.facade.OverduePayments(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("fetch overdue payments failed", slog.String("error", err.Error()))
		return
	}
	s.enqueue(ctx, overdue, true)
}

func (s *Sweeper) enqueue(ctx context.Context, orders []model.Order, expire bool) {
	for _, order := range orders {
		select {
		case <-ctx.Done():
			return
		case s.jobs <- job{order: order, expire: expire}:
		}
	}
}

func (s *Sweeper) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			s.handle(ctx, j)
		}
	}
}

func (s *Sweeper) handle(ctx context.Context, j job) {
	var (
		state *model.PaymentState
		err   error
	)
	if j.expire {
		state, err = s.facade.ExpirePayment(ctx, j.order.ID)
	} else {
		state, err = s.facade.CheckPayment(ctx, j.order.ID)
	}
	if err != nil {
		// Transient oracle failures resolve themselves on the next cycle;
		// anything else is worth a louder log line.
		switch {
		case errors.Is(err, domainErrors.ErrOracleUnavailable):
			s.logger.Warn("oracle unavailable, will retry",
				slog.Int64("order", j.order.ID))
		case errors.Is(err, domainErrors.ErrOracleUnauthorized):
			s.logger.Error("oracle rejected credentials",
				slog.Int64("order", j.order.ID))
		default:
			s.logger.Error("payment reconciliation failed",
				slog.Int64("order", j.order.ID),
				slog.String("error", err.Error()))
		}
		return
	}

	if state.Status != model.OrderStatusPending {
		s.logger.Info("payment settled",
			slog.Int64("order", j.order.ID),
			slog.String("status", string(state.Status)),
		)
	}
}
