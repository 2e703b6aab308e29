package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Logger = zap.NewNop()
	m.Run()
}

// fakeOrderRepo mirrors the conditional-update semantics of the Postgres
// repository: a Mark* call only writes when the stored status matches the
// caller's expectation, under a single mutex so concurrent Apply calls race
// the same way concurrent UPDATEs would.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: map[string]*models.Order{}}
	for _, o := range orders {
		cp := *o
		r.orders[o.ID] = &cp
	}
	return r
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return nil
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) MarkProcessing(ctx context.Context, id string, from models.OrderStatus, paymentID string, paidAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = models.StatusProcessing
	o.PaymentID = paymentID
	o.PaymentDate = &paidAt
	return 1, nil
}

func (r *fakeOrderRepo) MarkPaymentFailed(ctx context.Context, id string, from models.OrderStatus, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = models.StatusPaymentFailed
	o.FailureReason = reason
	return 1, nil
}

func (r *fakeOrderRepo) MarkDisputed(ctx context.Context, id string, from models.OrderStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = models.StatusDisputed
	return 1, nil
}

func (r *fakeOrderRepo) status(id string) models.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Status
}

type fakeNotifier struct {
	mu        sync.Mutex
	successes int
	failures  int
	disputes  int
}

func (n *fakeNotifier) NotifySuccess(ctx context.Context, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes++
}

func (n *fakeNotifier) NotifyFailure(ctx context.Context, order *models.Order, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures++
}

func (n *fakeNotifier) NotifyDisputed(ctx context.Context, order *models.Order, reportedAmount int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputes++
}

func successEvent(orderID string, amount int64) *models.CallbackEvent {
	return &models.CallbackEvent{
		MerchantOrderID: orderID,
		ReportedStatus:  models.CallbackSuccess,
		ReportedAmount:  amount,
		PaymentID:       "pay-" + orderID,
	}
}

func failureEvent(orderID string, amount int64, reason string) *models.CallbackEvent {
	return &models.CallbackEvent{
		MerchantOrderID: orderID,
		ReportedStatus:  models.CallbackFailure,
		ReportedAmount:  amount,
		FailureReason:   reason,
	}
}

func TestApplySuccessConfirmsPayment(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O1", Status: models.StatusPendingPayment, ExpectedAmount: 52000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	err := rec.Apply(context.Background(), successEvent("O1", 52000))

	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, repo.status("O1"))
	order, _ := repo.GetByID(context.Background(), "O1")
	assert.Equal(t, "pay-O1", order.PaymentID)
	assert.NotNil(t, order.PaymentDate)
	assert.Equal(t, 1, notifier.successes)
}

func TestApplySuccessFromCreatedAndAfterFailure(t *testing.T) {
	for _, from := range []models.OrderStatus{models.StatusCreated, models.StatusPaymentFailed} {
		repo := newFakeOrderRepo(&models.Order{ID: "O1", Status: from, ExpectedAmount: 100})
		notifier := &fakeNotifier{}
		rec := NewReconciler(repo, notifier, nil, nil)

		require.NoError(t, rec.Apply(context.Background(), successEvent("O1", 100)))
		assert.Equal(t, models.StatusProcessing, repo.status("O1"), "from %s", from)
		assert.Equal(t, 1, notifier.successes)
	}
}

func TestApplySuccessReplayIsNoOp(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O1", Status: models.StatusPendingPayment, ExpectedAmount: 52000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	event := successEvent("O1", 52000)
	require.NoError(t, rec.Apply(context.Background(), event))
	firstPaymentDate := func() *time.Time {
		o, _ := repo.GetByID(context.Background(), "O1")
		return o.PaymentDate
	}()

	// Redeliver the identical callback three more times.
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Apply(context.Background(), event))
	}

	assert.Equal(t, models.StatusProcessing, repo.status("O1"))
	assert.Equal(t, 1, notifier.successes, "replays must not re-fire notifications")
	order, _ := repo.GetByID(context.Background(), "O1")
	assert.Equal(t, firstPaymentDate, order.PaymentDate, "replays must not re-set fields")
}

func TestAmountMismatchDisputesOrder(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O2", Status: models.StatusPendingPayment, ExpectedAmount: 10000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	require.NoError(t, rec.Apply(context.Background(), successEvent("O2", 9000)))

	assert.Equal(t, models.StatusDisputed, repo.status("O2"))
	assert.Equal(t, 0, notifier.successes)
	assert.Equal(t, 1, notifier.disputes)
}

func TestAmountMismatchOnFulfilledOrderIsIgnored(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O2", Status: models.StatusFulfilled, ExpectedAmount: 10000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	require.NoError(t, rec.Apply(context.Background(), successEvent("O2", 9000)))

	assert.Equal(t, models.StatusFulfilled, repo.status("O2"))
	assert.Equal(t, 0, notifier.disputes)
}

func TestFailureRecordsReasonOnce(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O3", Status: models.StatusPendingPayment, ExpectedAmount: 5000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	event := failureEvent("O3", 5000, "insufficient funds")
	require.NoError(t, rec.Apply(context.Background(), event))
	require.NoError(t, rec.Apply(context.Background(), event))

	assert.Equal(t, models.StatusPaymentFailed, repo.status("O3"))
	order, _ := repo.GetByID(context.Background(), "O3")
	assert.Equal(t, "insufficient funds", order.FailureReason)
	assert.Equal(t, 1, notifier.failures, "replayed failure must not re-notify")
}

func TestStaleFailureNeverDowngradesConfirmedPayment(t *testing.T) {
	for _, status := range []models.OrderStatus{models.StatusProcessing, models.StatusFulfilled} {
		repo := newFakeOrderRepo(&models.Order{ID: "O4", Status: status, ExpectedAmount: 5000})
		notifier := &fakeNotifier{}
		rec := NewReconciler(repo, notifier, nil, nil)

		require.NoError(t, rec.Apply(context.Background(), failureEvent("O4", 5000, "late decline")))

		assert.Equal(t, status, repo.status("O4"))
		assert.Equal(t, 0, notifier.failures)
	}
}

func TestSuccessForTerminalOrderIsIgnored(t *testing.T) {
	for _, status := range []models.OrderStatus{models.StatusDisputed, models.StatusCancelled} {
		repo := newFakeOrderRepo(&models.Order{ID: "O5", Status: status, ExpectedAmount: 5000})
		notifier := &fakeNotifier{}
		rec := NewReconciler(repo, notifier, nil, nil)

		require.NoError(t, rec.Apply(context.Background(), successEvent("O5", 5000)))

		assert.Equal(t, status, repo.status("O5"))
		assert.Equal(t, 0, notifier.successes)
	}
}

func TestUnknownOrderReturnsNotFound(t *testing.T) {
	rec := NewReconciler(newFakeOrderRepo(), &fakeNotifier{}, nil, nil)

	err := rec.Apply(context.Background(), successEvent("ghost", 100))

	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	repo := newFakeOrderRepo(&models.Order{ID: "O6", Status: models.StatusPendingPayment, ExpectedAmount: 52000})
	notifier := &fakeNotifier{}
	rec := NewReconciler(repo, notifier, nil, nil)

	const deliveries = 16
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			_ = rec.Apply(context.Background(), successEvent("O6", 52000))
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StatusProcessing, repo.status("O6"))
	assert.Equal(t, 1, notifier.successes, "only the CAS winner may notify")
}
