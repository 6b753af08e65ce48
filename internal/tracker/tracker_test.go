package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-haid/internal/calendar"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
	"github.com/tartampluch/go-haid/internal/i18n"
	"github.com/tartampluch/go-haid/internal/observability/metrics"
	"github.com/tartampluch/go-haid/internal/store"
	"github.com/tartampluch/go-haid/internal/tracker"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// -----------------------------------------------------------------------------
// Mocks
// -----------------------------------------------------------------------------

type MockHub struct {
	mock.Mock
}

func (m *MockHub) Publish(user string, data any) {
	m.Called(user, data)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) UpdateCalendar(user string, data []byte) {
	m.Called(user, data)
}

type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

// failingStore errors on List and keeps the rest of the memory behavior.
type failingStore struct {
	*store.Memory
}

func (failingStore) List(context.Context, string) ([]engine.Record, error) {
	return nil, errors.New("backend down")
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func newService(t *testing.T, st store.Store) *tracker.Service {
	t.Helper()

	catalog, err := i18n.NewCatalog(config.DefaultLanguage)
	require.NoError(t, err)

	m, err := metrics.NewClassificationMetrics(sdkmetric.NewMeterProvider())
	require.NoError(t, err)

	return tracker.New(tracker.Options{
		Store:    st,
		Catalog:  catalog,
		Calendar: calendar.NewGenerator(MockClock{CurrentTime: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}),
		Metrics:  m,
		Language: config.DefaultLanguage,
		Endpoint: config.DefaultConsultEndpoint,
	})
}

func add(t *testing.T, svc *tracker.Service, user, start, end string) engine.Record {
	t.Helper()
	rec, err := svc.Add(context.Background(), user, tracker.RecordInput{Start: start, End: end})
	require.NoError(t, err)
	return rec
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestTable_ClassifiesStoredRecords(t *testing.T) {
	svc := newService(t, store.NewMemory())
	add(t, svc, "alice", "2025-01-01T00:00:00Z", "2025-01-18T00:00:00Z")
	add(t, svc, "alice", "2025-02-10T00:00:00Z", "2025-02-16T12:00:00Z")

	table, err := svc.Table(context.Background(), "alice", "")
	require.NoError(t, err)

	assert.Equal(t, "alice", table.User)
	assert.Equal(t, "id", table.Lang)
	require.Len(t, table.Rows, 2)

	newest, oldest := table.Rows[0], table.Rows[1]
	assert.Equal(t, "10/02/2025 00:00", newest.StartText)
	assert.Equal(t, "6.50 D", newest.Bleeding)
	assert.Equal(t, "-", newest.Purity)
	assert.Nil(t, newest.PurityDays)
	// The older overflow pushes the purity window to 25 days, past the
	// threshold, so none of the newer bleeding is valid.
	assert.Empty(t, newest.Haid)
	assert.Equal(t, "istihadoh 6 D, 12 H", newest.Istihadoh)

	assert.Equal(t, "25 D", oldest.Purity)
	assert.Equal(t, "haid 15 D", oldest.Haid)
	assert.Equal(t, "istihadoh 2 D", oldest.Istihadoh)
	assert.Equal(t, "istihadoh", oldest.IstihadohKind)
	require.NotNil(t, oldest.BleedingDays)
	assert.InDelta(t, 17, *oldest.BleedingDays, 1e-9)

	assert.Empty(t, table.Flagged)
	assert.NotNil(t, table.Flagged, "empty lists are not null in JSON")
}

func TestTable_LanguageAndEscalation(t *testing.T) {
	svc := newService(t, store.NewMemory())
	add(t, svc, "bob", "2025-03-01T00:00:00Z", "2025-03-05T00:00:00Z")
	add(t, svc, "bob", "2025-03-14T00:00:00Z", "2025-03-22T00:00:00Z")

	table, err := svc.Table(context.Background(), "bob", "en-US,en;q=0.8")
	require.NoError(t, err)

	assert.Equal(t, "en", table.Lang)
	assert.Equal(t, []int{0}, table.Escalated)
	assert.Equal(t, "taqottu'", table.Rows[0].Haid)
	assert.Equal(t, "broken-pattern", table.Rows[0].HaidKind)
	assert.Contains(t, table.Rows[0].ConsultURL, config.DefaultConsultEndpoint+"?text=")
	assert.Contains(t, table.Rows[0].ConsultURL, "consult%20about")
}

func TestConfigure_ChangesEndpoint(t *testing.T) {
	svc := newService(t, store.NewMemory())
	add(t, svc, "bob", "2025-03-01T00:00:00Z", "2025-03-05T00:00:00Z")
	add(t, svc, "bob", "2025-03-14T00:00:00Z", "2025-03-22T00:00:00Z")

	svc.Configure("en", "https://wa.me/15550100")
	table, err := svc.Table(context.Background(), "bob", "")
	require.NoError(t, err)

	assert.Equal(t, "en", table.Lang)
	assert.Contains(t, table.Rows[0].ConsultURL, "https://wa.me/15550100?text=")
}

func TestAdd_Validation(t *testing.T) {
	svc := newService(t, store.NewMemory())

	_, err := svc.Add(context.Background(), "alice", tracker.RecordInput{Start: "yesterday"})
	assert.ErrorIs(t, err, tracker.ErrInvalidTime)

	rec, err := svc.Add(context.Background(), "alice", tracker.RecordInput{Start: "2025-01-01T08:00"})
	require.NoError(t, err)
	assert.Nil(t, rec.End, "empty end stays absent")
	require.NotNil(t, rec.Start)
	assert.Equal(t, 8, rec.Start.Hour())
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newService(t, store.NewMemory())
	ctx := context.Background()
	rec := add(t, svc, "alice", "2025-01-01T00:00:00Z", "")

	updated, err := svc.Update(ctx, "alice", rec.ID, tracker.RecordInput{
		Start: "2025-01-01T00:00:00Z",
		End:   "2025-01-07T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	require.NotNil(t, updated.End)

	_, err = svc.Update(ctx, "alice", "missing", tracker.RecordInput{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "alice", rec.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "alice", rec.ID), store.ErrNotFound)
}

func TestCalendar(t *testing.T) {
	svc := newService(t, store.NewMemory())
	add(t, svc, "alice", "2025-01-01T00:00:00Z", "2025-01-07T00:00:00Z")

	data, err := svc.Calendar(context.Background(), "alice")
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:haid 6 D")

	empty, err := svc.Calendar(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, config.StubVCalendar, string(empty))
}

func TestStoreFailure(t *testing.T) {
	svc := newService(t, failingStore{store.NewMemory()})

	_, err := svc.Table(context.Background(), "alice", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrTableCompute)

	_, err = svc.Calendar(context.Background(), "alice")
	assert.Error(t, err)

	hub := new(MockHub)
	svc.Attach(hub, nil)
	svc.Refresh(context.Background(), "alice")
	hub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRun_PushesOnChange(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(t, mem)

	hub := new(MockHub)
	sink := new(MockSink)
	published := make(chan *tracker.Table, 1)
	calendars := make(chan []byte, 1)
	hub.On("Publish", "alice", mock.AnythingOfType("*tracker.Table")).
		Run(func(args mock.Arguments) {
			select {
			case published <- args.Get(1).(*tracker.Table):
			default:
			}
		})
	sink.On("UpdateCalendar", "alice", mock.Anything).
		Run(func(args mock.Arguments) {
			select {
			case calendars <- args.Get(1).([]byte):
			default:
			}
		})
	svc.Attach(hub, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Run subscribes asynchronously; keep writing until the first push arrives.
	var table *tracker.Table
	require.Eventually(t, func() bool {
		_, _ = mem.Put(context.Background(), "alice", engine.Record{ID: "r1"})
		select {
		case table = <-published:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "alice", table.User)
	select {
	case data := <-calendars:
		assert.Contains(t, string(data), "BEGIN:VCALENDAR")
	case <-time.After(2 * time.Second):
		t.Fatal("calendar was not pushed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_SubscriptionClosed(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(t, mem)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_ = mem.Close()
		select {
		case err := <-done:
			return errors.Is(err, tracker.ErrSubscriptionClosed)
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
