package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/model"
)

type capturedEvent struct {
	Type string
	Key  string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType, key string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, capturedEvent{Type: eventType, Key: key})
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

// registeredCitizen runs the login flow and returns the citizen ID.
func registeredCitizen(t *testing.T, factory *ServiceFactory) string {
	t.Helper()
	ctx := context.Background()
	auth := factory.AuthService()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha Verma")
	require.NoError(t, err)
	result, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)
	return result.Citizen.CitizenID
}

func TestRequestLifecycleThroughService(t *testing.T) {
	factory, _ := newTestFactory(t)
	events := &fakePublisher{}
	factory.events = events
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	requests := factory.RequestService()

	req, err := requests.CreateRequest(ctx, citizenID, "water", "Leakage Complaint", "Pipe burst near the market", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, req.Status)
	assert.Equal(t, model.PriorityMedium, req.Priority, "priority defaults to Medium")

	// Submission leaves a notification in the inbox.
	unread, err := factory.NotificationService().CountUnread(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	detail, err := requests.GetRequest(ctx, citizenID, req.RequestID)
	require.NoError(t, err)
	assert.Len(t, detail.History, 1)

	require.NoError(t, requests.UpdateStatus(ctx, req.RequestID, model.StatusResolved, "Pipe repaired", "operator"))

	detail, err = requests.GetRequest(ctx, "", req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, detail.Request.Status)
	assert.Len(t, detail.History, 2)

	require.NoError(t, requests.SubmitFeedback(ctx, citizenID, req.RequestID, 5, "Quick work"))

	assert.Contains(t, events.types(), "request.created")
	assert.Contains(t, events.types(), "request.status_changed")
}

func TestRequestValidation(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	requests := factory.RequestService()

	_, err := requests.CreateRequest(ctx, citizenID, "telegraph", "X", "Y", "")
	assert.ErrorIs(t, err, ErrUnknownDepartment)

	_, err = requests.CreateRequest(ctx, citizenID, "water", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = requests.CreateRequest(ctx, citizenID, "water", "Leak", "<script>alert(1)</script>", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = requests.CreateRequest(ctx, "USER000", "water", "Leak", "desc", "")
	assert.ErrorIs(t, err, ErrCitizenNotFound)

	req, err := requests.CreateRequest(ctx, citizenID, "water", "Leak", "dripping tap", model.PriorityLow)
	require.NoError(t, err)

	// Feedback before resolution is refused.
	err = requests.SubmitFeedback(ctx, citizenID, req.RequestID, 5, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = requests.SubmitFeedback(ctx, citizenID, req.RequestID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRequestSearchFallback(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	requests := factory.RequestService()

	_, err := requests.CreateRequest(ctx, citizenID, "water", "Leakage Complaint", "Pipe burst near the vegetable market", "")
	require.NoError(t, err)
	_, err = requests.CreateRequest(ctx, citizenID, "gas", "Cylinder Booking", "Need a refill", "")
	require.NoError(t, err)

	// No search cluster configured, the LIKE fallback serves the query.
	hits, err := requests.Search(ctx, citizenID, "market", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "water", hits[0].Department)

	_, err = requests.Search(ctx, citizenID, "", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPaymentFlow(t *testing.T) {
	factory, _ := newTestFactory(t)
	events := &fakePublisher{}
	factory.events = events
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	payments := factory.PaymentService()

	due := time.Now().UTC().Add(7 * 24 * time.Hour)
	bill, err := payments.CreateBill(ctx, citizenID, "electricity", "EB-4411", 1240.50, due)
	require.NoError(t, err)

	_, err = payments.CreateBill(ctx, citizenID, "cable_tv", "X", 100, due)
	assert.ErrorIs(t, err, ErrInvalidInput)

	pending, err := payments.PendingBills(ctx, citizenID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = payments.PayBill(ctx, citizenID, bill.PaymentID, "cheque")
	assert.ErrorIs(t, err, ErrInvalidInput)

	receipt, err := payments.PayBill(ctx, citizenID, bill.PaymentID, "upi")
	require.NoError(t, err)
	assert.InDelta(t, 1240.50, receipt.Amount, 0.001)
	assert.NotEmpty(t, receipt.TransactionID)

	_, err = payments.PayBill(ctx, citizenID, bill.PaymentID, "upi")
	assert.ErrorIs(t, err, ErrInvalidInput, "double payment refused")

	history, err := payments.History(ctx, citizenID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.Contains(t, events.types(), "payment.completed")
}

func TestDocumentFlow(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	documents := factory.DocumentService()

	doc, err := documents.Upload(ctx, citizenID, "ration_card.pdf", "ration_card", 20480, "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentUploaded, doc.Status)

	_, err = documents.Upload(ctx, citizenID, "huge.pdf", "other", 64<<20, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = documents.Upload(ctx, citizenID, "x.pdf", "passport", 100, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, documents.Review(ctx, doc.DocumentID, model.DocumentVerified))

	list, err := documents.List(ctx, citizenID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.DocumentVerified, list[0].Status)

	err = documents.Review(ctx, doc.DocumentID, model.DocumentUploaded)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNotificationInbox(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	requests := factory.RequestService()
	inbox := factory.NotificationService()

	req, err := requests.CreateRequest(ctx, citizenID, "gas", "Cylinder Booking", "Need a refill", "")
	require.NoError(t, err)
	require.NoError(t, requests.UpdateStatus(ctx, req.RequestID, model.StatusInProgress, "", "operator"))

	list, err := inbox.List(ctx, citizenID, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, inbox.MarkRead(ctx, citizenID, list[0].ID))
	unread, err := inbox.CountUnread(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err := inbox.MarkAllRead(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEmergencyReporting(t *testing.T) {
	factory, _ := newTestFactory(t)
	events := &fakePublisher{}
	factory.events = events
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	emergency := factory.EmergencyService()

	contacts := emergency.Contacts()
	require.NotEmpty(t, contacts)
	assert.Equal(t, "100", contacts[0].Number)

	_, err := emergency.Report(ctx, "", "tsunami", "Sector 12", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	report, err := emergency.Report(ctx, citizenID, "gas_leak", "Sector 12 market", "Strong smell of gas", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, report.Severity)
	assert.Equal(t, testPhone, report.ReporterPhone, "reporter details fall back to the citizen profile")

	// Utility emergencies open a follow-up ticket in the owning department.
	mine, err := factory.RequestService().ListMyRequests(ctx, citizenID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "gas", mine[0].Department)
	assert.Equal(t, model.PriorityCritical, mine[0].Priority)

	assert.Contains(t, events.types(), "emergency.reported")

	recent, err := emergency.RecentReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestDashboardMetrics(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	citizenID := registeredCitizen(t, factory)
	requests := factory.RequestService()

	req, err := requests.CreateRequest(ctx, citizenID, "water", "Leak", "dripping tap", "")
	require.NoError(t, err)
	require.NoError(t, requests.UpdateStatus(ctx, req.RequestID, model.StatusResolved, "", "operator"))
	require.NoError(t, requests.SubmitFeedback(ctx, citizenID, req.RequestID, 4, ""))

	_, err = requests.CreateRequest(ctx, citizenID, "gas", "Booking", "refill", "")
	require.NoError(t, err)

	metrics, err := factory.AnalyticsService().Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics.TotalRequests)
	assert.Equal(t, int64(1), metrics.OpenRequests)
	assert.Equal(t, int64(1), metrics.ResolvedRequests)
	assert.InDelta(t, 4.0, metrics.AvgRating, 0.001)
	assert.Equal(t, int64(1), metrics.NewCitizens30d)
	assert.Equal(t, int64(1), metrics.ActiveCitizens7d)
}
