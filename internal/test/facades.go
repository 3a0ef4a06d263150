package test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// OrderFacadeStub provides controllable behaviour for checkout endpoints.
type OrderFacadeStub struct {
	CreateFn func(context.Context, int64, string, int64) (*model.Order, error)
	OrderFn  func(context.Context, int64, int64) (*model.Order, error)
	OrdersFn func(context.Context, int64) ([]model.Order, error)
}

// CreateOrder delegates to provided function or returns a default order.
func (s OrderFacadeStub) CreateOrder(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, userID, itemSummary, finalAmount)
	}
	return &model.Order{ID: 1, UserID: userID, ItemSummary: itemSummary, FinalAmount: finalAmount, Currency: model.CurrencyKHR, Status: model.OrderStatusPending, PaymentStatus: model.PaymentStatusPending}, nil
}

// Order returns a single order for the user.
func (s OrderFacadeStub) Order(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	if s.OrderFn != nil {
		return s.OrderFn(ctx, userID, orderID)
	}
	return &model.Order{ID: orderID, UserID: userID, Currency: model.CurrencyKHR, Status: model.OrderStatusPending, PaymentStatus: model.PaymentStatusPending}, nil
}

// Orders returns predefined orders for given user.
func (s OrderFacadeStub) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	if s.OrdersFn != nil {
		return s.OrdersFn(ctx, userID)
	}
	return []model.Order{{ID: 1, UserID: userID}}, nil
}

// PaymentFacadeStub simulates the reconciliation engine for handler tests.
type PaymentFacadeStub struct {
	IssueFn func(context.Context, int64) (*model.Issuance, error)
	RetryFn func(context.Context, int64) (*model.Issuance, error)
	CheckFn func(context.Context, int64) (*model.PaymentState, error)
}

// IssuePayment returns configured issuance or a default one.
func (s PaymentFacadeStub) IssuePayment(ctx context.Context, orderID int64) (*model.Issuance, error) {
	if s.IssueFn != nil {
		return s.IssueFn(ctx, orderID)
	}
	return &model.Issuance{PaymentID: 1, OrderID: orderID, Amount: 1000, QRString: "qr"}, nil
}

// RetryPayment returns configured issuance or a default one.
func (s PaymentFacadeStub) RetryPayment(ctx context.Context, orderID int64) (*model.Issuance, error) {
	if s.RetryFn != nil {
		return s.RetryFn(ctx, orderID)
	}
	return &model.Issuance{PaymentID: 2, OrderID: orderID, Amount: 1000, QRString: "qr"}, nil
}

// CheckPayment returns configured state or pending.
func (s PaymentFacadeStub) CheckPayment(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	if s.CheckFn != nil {
		return s.CheckFn(ctx, orderID)
	}
	return &model.PaymentState{Status: model.OrderStatusPending}, nil
}

// SweepCall records one reconciliation handled by the sweeper stub.
type SweepCall struct {
	OrderID int64
	Expire  bool
}

// SweeperFacadeStub mimics sweeper interactions with the settlement facade.
type SweeperFacadeStub struct {
	Pending   [][]model.Order
	Overdue   [][]model.Order
	PendingFn func(context.Context, int) ([]model.Order, error)
	OverdueFn func(context.Context, int) ([]model.Order, error)
	CheckFn   func(context.Context, int64) (*model.PaymentState, error)
	ExpireFn  func(context.Context, int64) (*model.PaymentState, error)

	mu           sync.Mutex
	Calls        []SweepCall
	pendingCalls int32
	overdueCalls int32
}

// Lock exposes internal mutex for external synchronization.
func (s *SweeperFacadeStub) Lock() { s.mu.Lock() }

// Unlock releases previously acquired lock.
func (s *SweeperFacadeStub) Unlock() { s.mu.Unlock() }

// PendingPayments returns batches from the configured queue.
func (s *SweeperFacadeStub) PendingPayments(ctx context.Context, limit int) ([]model.Order, error) {
	if s.PendingFn != nil {
		return s.PendingFn(ctx, limit)
	}
	call := atomic.AddInt32(&s.pendingCalls, 1)
	if int(call) <= len(s.Pending) {
		return s.Pending[call-1], nil
	}
	time.Sleep(10 * time.Millisecond)
	return nil, nil
}

// OverduePayments returns batches from the configured queue.
func (s *SweeperFacadeStub) OverduePayments(ctx context.Context, limit int) ([]model.Order, error) {
	if s.OverdueFn != nil {
		return s.OverdueFn(ctx, limit)
	}
	call := atomic.AddInt32(&s.overdueCalls, 1)
	if int(call) <= len(s.Overdue) {
		return s.Overdue[call-1], nil
	}
	return nil, nil
}

// CheckPayment records the verification request.
func (s *SweeperFacadeStub) CheckPayment(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	if s.CheckFn != nil {
		return s.CheckFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SweepCall{OrderID: orderID})
	return &model.PaymentState{Status: model.OrderStatusPaid}, nil
}

// ExpirePayment records the expiry request.
func (s *SweeperFacadeStub) ExpirePayment(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	if s.ExpireFn != nil {
		return s.ExpireFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SweepCall{OrderID: orderID, Expire: true})
	return &model.PaymentState{Status: model.OrderStatusCancelled}, nil
}

// IssuerStub fabricates QR issuance responses for tests.
type IssuerStub struct {
	CreateFn func(context.Context, int64, int64) (*model.QRCode, error)
	QR       *model.QRCode
	Err      error
}

// CreateQR returns the configured response or a default QR.
func (s IssuerStub) CreateQR(ctx context.Context, orderID int64, amount int64) (*model.QRCode, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, orderID, amount)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.QR != nil {
		return s.QR, nil
	}
	return &model.QRCode{QRString: "qr-payload", VerificationDigest: "digest"}, nil
}

// OracleStub answers verification requests for tests.
type OracleStub struct {
	CheckFn func(context.Context, string) (*model.OracleResult, error)
	Result  *model.OracleResult
	Err     error

	calls int32
}

// CheckPayment returns the configured result or a not-found answer.
func (s *OracleStub) CheckPayment(ctx context.Context, digest string) (*model.OracleResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.CheckFn != nil {
		return s.CheckFn(ctx, digest)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return &model.OracleResult{Status: model.OracleStatusNotFound}, nil
}

// Calls reports how many times the oracle was consulted.
func (s *OracleStub) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

// NotifierRecorder captures outbound notifications and operator alerts.
type NotifierRecorder struct {
	SendErr  error
	AlertErr error

	mu     sync.Mutex
	Sent   []model.Notification
	Alerts []string
}

// Send records the notification or fails with the configured error.
func (n *NotifierRecorder) Send(ctx context.Context, msg model.Notification) error {
	if n.SendErr != nil {
		return n.SendErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
	return nil
}

// Alert records the operator alert or fails with the configured error.
func (n *NotifierRecorder) Alert(ctx context.Context, message string) error {
	if n.AlertErr != nil {
		return n.AlertErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Alerts = append(n.Alerts, message)
	return nil
}

// SentByStatus counts recorded notifications with the given status.
func (n *NotifierRecorder) SentByStatus(status model.OrderStatus) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, msg := range n.Sent {
		if msg.Status == status {
			count++
		}
	}
	return count
}

// AlertCount reports the number of recorded operator alerts.
func (n *NotifierRecorder) AlertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Alerts)
}
