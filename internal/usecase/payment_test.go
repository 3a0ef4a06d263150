package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/pkg/integrity"
	testhelpers "github.com/urbanstore/khqrpay/internal/test"
)

const testSecret = "test-secret"

type paymentFixture struct {
	uc       *PaymentUseCase
	orders   *testhelpers.OrderRepositoryStub
	ledger   *testhelpers.LedgerRepositoryStub
	issuer   *testhelpers.IssuerStub
	oracle   *testhelpers.OracleStub
	notifier *testhelpers.NotifierRecorder
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		orders:   testhelpers.NewOrderRepositoryStub(),
		ledger:   &testhelpers.LedgerRepositoryStub{},
		issuer:   &testhelpers.IssuerStub{},
		oracle:   &testhelpers.OracleStub{},
		notifier: &testhelpers.NotifierRecorder{},
	}
	f.uc = NewPaymentUseCase(
		f.orders,
		f.ledger,
		f.issuer,
		f.oracle,
		f.notifier,
		testSecret,
		10*time.Minute,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func pendingOrder(id int64, amount int64) model.Order {
	return model.Order{
		ID:            id,
		UserID:        1,
		ItemSummary:   "2x croissant",
		FinalAmount:   amount,
		Currency:      model.CurrencyKHR,
		PaymentStatus: model.PaymentStatusPending,
		Status:        model.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
}

func withAttempt(o model.Order, digest string, startedAt time.Time) model.Order {
	o.Attempt = model.PaymentAttempt{
		QRString:           "qr-" + digest,
		VerificationDigest: digest,
		IntegrityHash:      integrity.Hash(o.ID, o.FinalAmount, model.CurrencyKHR, testSecret),
	}
	o.AttemptStartedAt = startedAt
	return o
}

func TestPaymentUseCaseIssueCreatesAttempt(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(pendingOrder(7, 12000))
	f.issuer.QR = &model.QRCode{QRString: "khqr-payload", VerificationDigest: "abc123"}

	issuance, err := f.uc.Issue(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issuance.OrderID != 7 || issuance.Amount != 12000 || issuance.QRString != "khqr-payload" {
		t.Fatalf("unexpected issuance: %+v", issuance)
	}

	if len(f.orders.BeginCalls) != 1 {
		t.Fatalf("expected one attempt cycle, got %d", len(f.orders.BeginCalls))
	}
	attempt := f.orders.BeginCalls[0].Attempt
	if attempt.VerificationDigest != "abc123" {
		t.Fatalf("unexpected digest: %s", attempt.VerificationDigest)
	}
	wantHash := integrity.Hash(7, 12000, model.CurrencyKHR, testSecret)
	if attempt.IntegrityHash != wantHash {
		t.Fatalf("integrity hash mismatch: got %s want %s", attempt.IntegrityHash, wantHash)
	}
	if got := f.notifier.SentByStatus(model.OrderStatusPending); got != 1 {
		t.Fatalf("expected one pending notification, got %d", got)
	}
}

func TestPaymentUseCaseIssueStateChecks(t *testing.T) {
	f := newPaymentFixture()

	paid := pendingOrder(1, 1000)
	paid.Status = model.OrderStatusPaid
	paid.PaymentStatus = model.PaymentStatusPaid
	live := withAttempt(pendingOrder(2, 1000), "live", time.Now())
	f.orders.Seed(paid, live)

	if _, err := f.uc.Issue(context.Background(), 1); !errors.Is(err, domainErrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for paid order, got %v", err)
	}
	if _, err := f.uc.Issue(context.Background(), 2); !errors.Is(err, domainErrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for live attempt, got %v", err)
	}
	if _, err := f.uc.Issue(context.Background(), 99); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.uc.Retry(context.Background(), 2); !errors.Is(err, domainErrors.ErrInvalidState) {
		t.Fatalf("retry must require a cancelled order, got %v", err)
	}
}

func TestPaymentUseCaseIssueInvalidAmount(t *testing.T) {
	f := newPaymentFixture()
	f.issuer.CreateFn = func(context.Context, int64, int64) (*model.QRCode, error) {
		t.Fatal("issuer must not be called for invalid amounts")
		return nil, nil
	}
	f.orders.Seed(pendingOrder(1, 0), pendingOrder(2, maxPaymentAmount+1))

	if _, err := f.uc.Issue(context.Background(), 1); !errors.Is(err, domainErrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero, got %v", err)
	}
	if _, err := f.uc.Issue(context.Background(), 2); !errors.Is(err, domainErrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount above cap, got %v", err)
	}
}

func TestPaymentUseCaseIssueIssuerContractViolation(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(pendingOrder(1, 1000))
	f.issuer.QR = &model.QRCode{QRString: "payload"}

	_, err := f.uc.Issue(context.Background(), 1)
	if !errors.Is(err, domainErrors.ErrIssuanceRejected) {
		t.Fatalf("expected issuance rejected on missing digest, got %v", err)
	}
	if len(f.orders.BeginCalls) != 0 {
		t.Fatal("no attempt cycle may start on a rejected issuance")
	}
}

func TestPaymentUseCaseVerifyConfirmedSettlesExactlyOnce(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(withAttempt(pendingOrder(5, 3000), "digest-5", time.Now()))
	f.oracle.Result = &model.OracleResult{Status: model.OracleStatusConfirmed, ExternalTxRef: "tx123"}

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := f.uc.Verify(context.Background(), 5)
			if err != nil {
				t.Errorf("verify failed: %v", err)
				return
			}
			if state.Status != model.OrderStatusPaid {
				t.Errorf("every caller must observe PAID, got %s", state.Status)
			}
		}()
	}
	wg.Wait()

	if got := f.notifier.SentByStatus(model.OrderStatusPaid); got != 1 {
		t.Fatalf("expected exactly one paid notification, got %d", got)
	}
	order, _ := f.orders.Snapshot(5)
	if order.Status != model.OrderStatusPaid || !order.IsPaid || !order.Notified {
		t.Fatalf("unexpected settled order: %+v", order)
	}
	if order.Attempt.ExternalTxRef != "tx123" {
		t.Fatalf("external tx ref not recorded: %q", order.Attempt.ExternalTxRef)
	}
}

func TestPaymentUseCaseVerifyTerminalSkipsOracle(t *testing.T) {
	f := newPaymentFixture()
	settled := withAttempt(pendingOrder(3, 1000), "digest-3", time.Now())
	settled.Status = model.OrderStatusPaid
	settled.PaymentStatus = model.PaymentStatusPaid
	settled.Attempt.ExternalTxRef = "tx-settled"
	f.orders.Seed(settled)

	state, err := f.uc.Verify(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPaid || state.ExternalTxRef != "tx-settled" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if f.oracle.Calls() != 0 {
		t.Fatal("settled orders must not hit the oracle")
	}
	if f.notifier.SentByStatus(model.OrderStatusPaid) != 0 {
		t.Fatal("settled orders must not be re-notified")
	}
}

func TestPaymentUseCaseVerifyLedgerFastPath(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(withAttempt(pendingOrder(4, 2500), "digest-4", time.Now()))
	f.ledger.Entries = []model.LedgerEntry{{
		ID:            11,
		OrderID:       4,
		Amount:        2500,
		Method:        model.PaymentMethodKHQR,
		Status:        model.PaymentStatusPaid,
		ExternalTxRef: "tx-ledger",
	}}

	state, err := f.uc.Verify(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPaid || state.ExternalTxRef != "tx-ledger" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if f.oracle.Calls() != 0 {
		t.Fatal("ledger fast-path must not consult the oracle")
	}
	if got := f.notifier.SentByStatus(model.OrderStatusPaid); got != 1 {
		t.Fatalf("fast-path winner must notify once, got %d", got)
	}
}

func TestPaymentUseCaseVerifyLedgerReadFailureFallsBackToOracle(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(withAttempt(pendingOrder(5, 2500), "digest-5", time.Now()))
	f.ledger.CurrentFn = func(context.Context, int64) (*model.LedgerEntry, error) {
		return nil, errors.New("connection reset")
	}
	f.oracle.Result = &model.OracleResult{Status: model.OracleStatusConfirmed, ExternalTxRef: "tx-oracle"}

	state, err := f.uc.Verify(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPaid || state.ExternalTxRef != "tx-oracle" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if f.oracle.Calls() != 1 {
		t.Fatalf("degraded ledger read must fall back to the oracle, got %d calls", f.oracle.Calls())
	}
}

func TestPaymentUseCaseVerifyPendingWithinWindow(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(withAttempt(pendingOrder(6, 1000), "digest-6", time.Now()))

	state, err := f.uc.Verify(context.Background(), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPending {
		t.Fatalf("fresh unpaid attempt must stay pending, got %s", state.Status)
	}
	order, _ := f.orders.Snapshot(6)
	if order.Status != model.OrderStatusPending {
		t.Fatalf("order state must be untouched, got %s", order.Status)
	}
}

func TestPaymentUseCaseVerifyExpiresStaleAttempt(t *testing.T) {
	f := newPaymentFixture()
	started := time.Now().Add(-time.Hour)
	f.orders.Seed(withAttempt(pendingOrder(8, 1000), "digest-8", started))

	state, err := f.uc.Verify(context.Background(), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusCancelled {
		t.Fatalf("stale attempt must expire, got %s", state.Status)
	}
	if got := f.notifier.SentByStatus(model.OrderStatusCancelled); got != 1 {
		t.Fatalf("expected one expiry notification, got %d", got)
	}
	order, _ := f.orders.Snapshot(8)
	if order.Status != model.OrderStatusCancelled || order.PaymentStatus != model.PaymentStatusFailed {
		t.Fatalf("unexpected expired order: %+v", order)
	}
}

func TestPaymentUseCaseVerifyOracleUnavailableLeavesState(t *testing.T) {
	f := newPaymentFixture()
	started := time.Now().Add(-time.Hour)
	f.orders.Seed(withAttempt(pendingOrder(9, 1000), "digest-9", started))
	f.oracle.Err = domainErrors.ErrOracleUnavailable

	_, err := f.uc.Verify(context.Background(), 9)
	if !errors.Is(err, domainErrors.ErrOracleUnavailable) {
		t.Fatalf("expected oracle unavailable, got %v", err)
	}
	order, _ := f.orders.Snapshot(9)
	if order.Status != model.OrderStatusPending {
		t.Fatal("transport failures must not expire the attempt")
	}
	if len(f.notifier.Sent) != 0 || f.notifier.AlertCount() != 0 {
		t.Fatal("transport failures must not notify")
	}
}

func TestPaymentUseCaseVerifyAuthFailureAlertsOnce(t *testing.T) {
	f := newPaymentFixture()
	f.orders.Seed(withAttempt(pendingOrder(10, 1000), "digest-10", time.Now()))
	f.oracle.Err = domainErrors.ErrOracleUnauthorized

	for i := 0; i < 5; i++ {
		if _, err := f.uc.Verify(context.Background(), 10); !errors.Is(err, domainErrors.ErrOracleUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	}
	if got := f.notifier.AlertCount(); got != 1 {
		t.Fatalf("repeated credential failures must alert once, got %d", got)
	}
	order, _ := f.orders.Snapshot(10)
	if order.Status != model.OrderStatusPending {
		t.Fatal("credential failures must not change order state")
	}

	// A successful oracle response re-arms the alert latch.
	f.oracle.Err = nil
	if _, err := f.uc.Verify(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.oracle.Err = domainErrors.ErrOracleUnauthorized
	if _, err := f.uc.Verify(context.Background(), 10); !errors.Is(err, domainErrors.ErrOracleUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := f.notifier.AlertCount(); got != 2 {
		t.Fatalf("re-armed latch must alert again, got %d", got)
	}
}

func TestPaymentUseCaseRetryResetsWindow(t *testing.T) {
	f := newPaymentFixture()
	cancelled := withAttempt(pendingOrder(11, 1500), "old-digest", time.Now().Add(-time.Hour))
	cancelled.Status = model.OrderStatusCancelled
	cancelled.PaymentStatus = model.PaymentStatusFailed
	cancelled.Notified = true
	f.orders.Seed(cancelled)
	f.issuer.QR = &model.QRCode{QRString: "fresh-payload", VerificationDigest: "fresh-digest"}

	issuance, err := f.uc.Retry(context.Background(), 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issuance.QRString != "fresh-payload" {
		t.Fatalf("unexpected issuance: %+v", issuance)
	}

	order, _ := f.orders.Snapshot(11)
	if order.Status != model.OrderStatusPending || order.PaymentStatus != model.PaymentStatusPending {
		t.Fatalf("retry must reopen the attempt cycle: %+v", order)
	}
	if order.Notified {
		t.Fatal("retry must reset the notification gate")
	}
	if order.Attempt.VerificationDigest != "fresh-digest" {
		t.Fatalf("retry must replace the digest, got %s", order.Attempt.VerificationDigest)
	}
	if time.Since(order.AttemptStartedAt) > time.Minute {
		t.Fatal("retry must reset the expiry clock")
	}
	if got := f.notifier.SentByStatus(model.OrderStatusPending); got != 1 {
		t.Fatalf("expected one pending notification, got %d", got)
	}
}

func TestPaymentUseCaseExpire(t *testing.T) {
	f := newPaymentFixture()
	overdue := withAttempt(pendingOrder(12, 1000), "digest-12", time.Now().Add(-time.Hour))
	fresh := withAttempt(pendingOrder(13, 1000), "digest-13", time.Now())
	f.orders.Seed(overdue, fresh)

	state, err := f.uc.Expire(context.Background(), 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusCancelled {
		t.Fatalf("overdue order must expire, got %s", state.Status)
	}

	state, err = f.uc.Expire(context.Background(), 13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPending {
		t.Fatalf("fresh attempt must survive the sweep, got %s", state.Status)
	}
	if f.oracle.Calls() != 0 {
		t.Fatal("expiry must not consult the oracle")
	}
}

func TestPaymentUseCaseOverdueBatchCutoff(t *testing.T) {
	f := newPaymentFixture()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.uc.now = func() time.Time { return now }

	var gotCutoff time.Time
	f.orders.SelectOverdueFn = func(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
		gotCutoff = cutoff
		return nil, nil
	}

	if _, err := f.uc.OverdueBatch(context.Background(), 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := now.Add(-10 * time.Minute)
	if !gotCutoff.Equal(want) {
		t.Fatalf("cutoff mismatch: got %s want %s", gotCutoff, want)
	}
}

func TestPaymentUseCaseExpiryLoserReportsDurableState(t *testing.T) {
	f := newPaymentFixture()
	overdue := withAttempt(pendingOrder(14, 1000), "digest-14", time.Now().Add(-time.Hour))
	f.orders.Seed(overdue)

	// A concurrent confirmation wins the terminal transition first.
	f.orders.SettleExpiredFn = func(ctx context.Context, orderID int64) (bool, error) {
		if won, err := f.orders.SettlePaid(ctx, orderID, "tx-race"); err != nil || !won {
			t.Fatalf("settle paid should win: %v %v", won, err)
		}
		return false, nil
	}

	state, err := f.uc.Expire(context.Background(), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusPaid || state.ExternalTxRef != "tx-race" {
		t.Fatalf("loser must report the durable state, got %+v", state)
	}
	if f.notifier.SentByStatus(model.OrderStatusCancelled) != 0 {
		t.Fatal("expiry loser must not notify")
	}
}

func TestPaymentUseCaseConfirmLoserReportsDurableState(t *testing.T) {
	f := newPaymentFixture()
	overdue := withAttempt(pendingOrder(15, 1000), "digest-15", time.Now().Add(-time.Hour))
	f.orders.Seed(overdue)
	f.oracle.Result = &model.OracleResult{Status: model.OracleStatusConfirmed, ExternalTxRef: "tx-late"}

	// A concurrent expiry wins the terminal transition first.
	f.orders.SettlePaidFn = func(ctx context.Context, orderID int64, externalTxRef string) (bool, error) {
		if won, err := f.orders.SettleExpired(ctx, orderID); err != nil || !won {
			t.Fatalf("settle expired should win: %v %v", won, err)
		}
		return false, nil
	}

	state, err := f.uc.Verify(context.Background(), 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != model.OrderStatusCancelled {
		t.Fatalf("loser must report the durable state, got %+v", state)
	}
	if f.notifier.SentByStatus(model.OrderStatusPaid) != 0 {
		t.Fatal("confirm loser must not notify")
	}
}
