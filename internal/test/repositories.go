package test

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// UserRepositoryStub stores users in-memory for tests.
type UserRepositoryStub struct {
	Users map[string]*model.User
	ByID  map[int64]*model.User
	Next  int64
	Err   error
}

// NewUserRepositoryStub constructs stub repository with initialized maps.
func NewUserRepositoryStub() *UserRepositoryStub {
	return &UserRepositoryStub{
		Users: make(map[string]*model.User),
		ByID:  make(map[int64]*model.User),
		Next:  1,
	}
}

// Create registers user unless already exists or stub has explicit error.
func (s *UserRepositoryStub) Create(ctx context.Context, login, passwordHash string) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Users == nil {
		s.Users = make(map[string]*model.User)
	}
	if s.ByID == nil {
		s.ByID = make(map[int64]*model.User)
	}
	if _, exists := s.Users[login]; exists {
		return nil, domainErrors.ErrAlreadyExists
	}
	if s.Next == 0 {
		s.Next = 1
	}
	user := &model.User{ID: s.Next, Login: login, PasswordHash: passwordHash}
	s.Next++
	s.Users[login] = user
	s.ByID[user.ID] = user
	return user, nil
}

// GetByLogin fetches user by login or returns not found.
func (s *UserRepositoryStub) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if user, ok := s.Users[login]; ok {
		return user, nil
	}
	return nil, domainErrors.ErrNotFound
}

// GetByID fetches user by identifier or returns not found.
func (s *UserRepositoryStub) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if user, ok := s.ByID[id]; ok {
		return user, nil
	}
	return nil, domainErrors.ErrNotFound
}

// BeginAttemptCall records one BeginAttempt invocation.
type BeginAttemptCall struct {
	OrderID int64
	Attempt model.PaymentAttempt
	Amount  int64
}

// OrderRepositoryStub keeps orders in-memory and enforces the same
// conditional-write discipline as the real storage, so concurrency tests
// observe realistic winner/loser behaviour.
type OrderRepositoryStub struct {
	CreateFn        func(context.Context, int64, string, int64) (*model.Order, error)
	GetByIDFn       func(context.Context, int64) (*model.Order, error)
	ListByUserFn    func(context.Context, int64) ([]model.Order, error)
	BeginAttemptFn  func(context.Context, int64, model.PaymentAttempt, int64) (int64, error)
	SelectPendingFn func(context.Context, int) ([]model.Order, error)
	SelectOverdueFn func(context.Context, time.Time, int) ([]model.Order, error)
	SettlePaidFn    func(context.Context, int64, string) (bool, error)
	SettleExpiredFn func(context.Context, int64) (bool, error)

	mu            sync.Mutex
	ByID          map[int64]*model.Order
	NextOrderID   int64
	NextPaymentID int64
	BeginCalls    []BeginAttemptCall
}

// NewOrderRepositoryStub constructs an empty in-memory order store.
func NewOrderRepositoryStub() *OrderRepositoryStub {
	return &OrderRepositoryStub{
		ByID:          make(map[int64]*model.Order),
		NextOrderID:   1,
		NextPaymentID: 1,
	}
}

// Seed inserts orders directly, bypassing Create.
func (s *OrderRepositoryStub) Seed(orders ...model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ByID == nil {
		s.ByID = make(map[int64]*model.Order)
	}
	for i := range orders {
		o := orders[i]
		s.ByID[o.ID] = &o
		if o.ID >= s.NextOrderID {
			s.NextOrderID = o.ID + 1
		}
	}
}

// Snapshot returns a copy of the stored order.
func (s *OrderRepositoryStub) Snapshot(orderID int64) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ByID[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Create stores a new pending order.
func (s *OrderRepositoryStub) Create(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, userID, itemSummary, finalAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ByID == nil {
		s.ByID = make(map[int64]*model.Order)
	}
	if s.NextOrderID == 0 {
		s.NextOrderID = 1
	}
	order := &model.Order{
		ID:            s.NextOrderID,
		UserID:        userID,
		ItemSummary:   itemSummary,
		FinalAmount:   finalAmount,
		Currency:      model.CurrencyKHR,
		PaymentStatus: model.PaymentStatusPending,
		Status:        model.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
	s.NextOrderID++
	s.ByID[order.ID] = order
	copied := *order
	return &copied, nil
}

// GetByID returns a copy of the stored order or not found.
func (s *OrderRepositoryStub) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

// ListByUser returns copies of the user's orders.
func (s *OrderRepositoryStub) ListByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	if s.ListByUserFn != nil {
		return s.ListByUserFn(ctx, userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.ByID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

// BeginAttempt resets the order projection and opens a new attempt cycle.
func (s *OrderRepositoryStub) BeginAttempt(ctx context.Context, orderID int64, attempt model.PaymentAttempt, amount int64) (int64, error) {
	if s.BeginAttemptFn != nil {
		return s.BeginAttemptFn(ctx, orderID, attempt, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[orderID]
	if !ok {
		return 0, domainErrors.ErrNotFound
	}
	if order.Status == model.OrderStatusPaid {
		return 0, domainErrors.ErrInvalidState
	}
	order.Attempt = attempt
	order.PaymentStatus = model.PaymentStatusPending
	order.Status = model.OrderStatusPending
	order.IsPaid = false
	order.Notified = false
	order.AttemptStartedAt = time.Now()
	if s.NextPaymentID == 0 {
		s.NextPaymentID = 1
	}
	paymentID := s.NextPaymentID
	s.NextPaymentID++
	s.BeginCalls = append(s.BeginCalls, BeginAttemptCall{OrderID: orderID, Attempt: attempt, Amount: amount})
	return paymentID, nil
}

// SelectPendingBatch returns orders with a live attempt awaiting verification.
func (s *OrderRepositoryStub) SelectPendingBatch(ctx context.Context, limit int) ([]model.Order, error) {
	if s.SelectPendingFn != nil {
		return s.SelectPendingFn(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.ByID {
		if o.Status == model.OrderStatusPending && o.Attempt.VerificationDigest != "" {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SelectOverdueBatch returns pending orders whose attempt started before cutoff.
func (s *OrderRepositoryStub) SelectOverdueBatch(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	if s.SelectOverdueFn != nil {
		return s.SelectOverdueFn(ctx, cutoff, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.ByID {
		if o.Status == model.OrderStatusPending && o.Attempt.VerificationDigest != "" && o.AttemptStartedAt.Before(cutoff) {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SettlePaid applies the conditional PENDING to PAID transition.
func (s *OrderRepositoryStub) SettlePaid(ctx context.Context, orderID int64, externalTxRef string) (bool, error) {
	if s.SettlePaidFn != nil {
		return s.SettlePaidFn(ctx, orderID, externalTxRef)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[orderID]
	if !ok {
		return false, domainErrors.ErrNotFound
	}
	if order.PaymentStatus != model.PaymentStatusPending || order.Status != model.OrderStatusPending {
		return false, nil
	}
	order.PaymentStatus = model.PaymentStatusPaid
	order.Status = model.OrderStatusPaid
	order.IsPaid = true
	order.Notified = true
	order.Attempt.ExternalTxRef = externalTxRef
	order.UpdatedAt = time.Now()
	return true, nil
}

// SettleExpired applies the conditional PENDING to CANCELLED transition.
func (s *OrderRepositoryStub) SettleExpired(ctx context.Context, orderID int64) (bool, error) {
	if s.SettleExpiredFn != nil {
		return s.SettleExpiredFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.ByID[orderID]
	if !ok {
		return false, domainErrors.ErrNotFound
	}
	if order.PaymentStatus != model.PaymentStatusPending || order.Status != model.OrderStatusPending {
		return false, nil
	}
	order.PaymentStatus = model.PaymentStatusFailed
	order.Status = model.OrderStatusCancelled
	order.Notified = true
	order.UpdatedAt = time.Now()
	return true, nil
}

// LedgerRepositoryStub serves the payment history for tests.
type LedgerRepositoryStub struct {
	CurrentFn func(context.Context, int64) (*model.LedgerEntry, error)
	ListFn    func(context.Context, int64) ([]model.LedgerEntry, error)
	Entries   []model.LedgerEntry
}

// CurrentByOrder returns the newest entry for the order.
func (s *LedgerRepositoryStub) CurrentByOrder(ctx context.Context, orderID int64) (*model.LedgerEntry, error) {
	if s.CurrentFn != nil {
		return s.CurrentFn(ctx, orderID)
	}
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if s.Entries[i].OrderID == orderID {
			entry := s.Entries[i]
			return &entry, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// ListByOrder returns every entry recorded for the order.
func (s *LedgerRepositoryStub) ListByOrder(ctx context.Context, orderID int64) ([]model.LedgerEntry, error) {
	if s.ListFn != nil {
		return s.ListFn(ctx, orderID)
	}
	var out []model.LedgerEntry
	for _, e := range s.Entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}
