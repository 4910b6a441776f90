package calendar

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// In-memory fakes of every outbound port
// =============================================================================

type fakeStates struct {
	mu     sync.Mutex
	states map[uuid.UUID]domain.IntegrationState
}

func (f *fakeStates) Get(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[businessID]
	if !ok {
		return nil, nil
	}
	s.SelectedCalendarIDs = append([]string(nil), s.SelectedCalendarIDs...)
	return &s, nil
}

func (f *fakeStates) Save(ctx context.Context, state *domain.IntegrationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.BusinessID] = *state
	return nil
}

type fakeMappings struct {
	mu      sync.Mutex
	entries map[uuid.UUID]domain.CalendarMapping
}

func (f *fakeMappings) UpsertMapping(ctx context.Context, businessID uuid.UUID, calendarID string, owner domain.OwnerRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries[businessID] == nil {
		f.entries[businessID] = domain.CalendarMapping{}
	}
	f.entries[businessID][calendarID] = owner
	return nil
}

func (f *fakeMappings) GetMapping(ctx context.Context, businessID uuid.UUID) (domain.CalendarMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := domain.CalendarMapping{}
	for k, v := range f.entries[businessID] {
		m[k] = v
	}
	return m, nil
}

func (f *fakeMappings) ClearMappings(ctx context.Context, businessID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, businessID)
	return nil
}

type fakeOwners struct {
	owners []domain.Owner
}

func (f *fakeOwners) ListActiveOwners(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) ([]domain.Owner, error) {
	var list []domain.Owner
	for _, o := range f.owners {
		if o.Kind == kind {
			list = append(list, o)
		}
	}
	return list, nil
}

type fakeProvider struct {
	mu        sync.Mutex
	calendars []domain.ProviderCalendar
	events    map[string][]domain.ExternalEvent
	listErr   error
	stopErr   error
	block     chan struct{} // when set, ListEvents waits on it or ctx
	listCalls int
	watched   []string
	stopped   []string
	nextWatch int
}

func (f *fakeProvider) ListCalendars(ctx context.Context, token *oauth2.Token) ([]domain.ProviderCalendar, error) {
	return f.calendars, nil
}

func (f *fakeProvider) ListEvents(ctx context.Context, token *oauth2.Token, calendarID string, from, to time.Time) ([]domain.ExternalEvent, error) {
	f.mu.Lock()
	f.listCalls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var list []domain.ExternalEvent
	for _, ev := range f.events[calendarID] {
		if ev.End.After(from) && ev.Start.Before(to) {
			list = append(list, ev)
		}
	}
	return list, nil
}

func (f *fakeProvider) Watch(ctx context.Context, token *oauth2.Token, calendarID string) (*out.CalendarWatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWatch++
	f.watched = append(f.watched, calendarID)
	return &out.CalendarWatchResponse{
		ChannelID:  calendarID + "-ch-" + strconv.Itoa(f.nextWatch),
		ResourceID: "res-" + calendarID,
		Expiration: testNow.Add(7 * 24 * time.Hour),
	}, nil
}

func (f *fakeProvider) StopWatch(ctx context.Context, token *oauth2.Token, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, channelID)
	return nil
}

func (f *fakeProvider) setEvents(calendarID string, events ...domain.ExternalEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range events {
		events[i].CalendarID = calendarID
	}
	f.events[calendarID] = events
}

type fakeCredentials struct {
	err error
}

func (f *fakeCredentials) Token(ctx context.Context, businessID uuid.UUID) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access"}, nil
}

type fakeAppointments struct {
	mu          sync.Mutex
	appts       map[int64]*domain.InternalAppointment
	nextID      int64
	failUpsert  map[string]bool
	failCancel  map[int64]bool
	deleteErr   error
	cancelCalls int
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{
		appts:      make(map[int64]*domain.InternalAppointment),
		nextID:     100,
		failUpsert: make(map[string]bool),
		failCancel: make(map[int64]bool),
	}
}

func (f *fakeAppointments) add(a *domain.InternalAppointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *a
	f.appts[a.ID] = &c
}

func (f *fakeAppointments) get(id int64) *domain.InternalAppointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil
	}
	c := *a
	return &c
}

func (f *fakeAppointments) byExternalID(eventID string) []*domain.InternalAppointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.InternalAppointment
	for _, a := range f.appts {
		if a.IsOriginOf(eventID) {
			c := *a
			list = append(list, &c)
		}
	}
	return list
}

func (f *fakeAppointments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appts)
}

func (f *fakeAppointments) FindActiveAppointments(ctx context.Context, businessID uuid.UUID, owners []domain.OwnerRef, from, to time.Time) ([]*domain.InternalAppointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[domain.OwnerRef]bool, len(owners))
	for _, o := range owners {
		wanted[o] = true
	}
	query := domain.TimeWindow{Start: from, End: to}
	var list []*domain.InternalAppointment
	for _, a := range f.appts {
		if a.BusinessID != businessID || !a.IsActive() {
			continue
		}
		if !wanted[domain.OwnerRef{Kind: a.OwnerKind, ID: a.OwnerID}] || !a.Window().Overlaps(query) {
			continue
		}
		c := *a
		list = append(list, &c)
	}
	return list, nil
}

func (f *fakeAppointments) UpsertAppointment(ctx context.Context, appt *domain.InternalAppointment) (*domain.InternalAppointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if appt.ExternalEventID != nil && f.failUpsert[*appt.ExternalEventID] {
		return nil, errors.New("write failed")
	}
	if appt.ExternalEventID != nil {
		for _, existing := range f.appts {
			if existing.BusinessID == appt.BusinessID && existing.IsOriginOf(*appt.ExternalEventID) {
				existing.StartsAt = appt.StartsAt
				existing.DurationMinutes = appt.DurationMinutes
				existing.OwnerKind = appt.OwnerKind
				existing.OwnerID = appt.OwnerID
				existing.Summary = appt.Summary
				c := *existing
				return &c, nil
			}
		}
	}
	f.nextID++
	c := *appt
	c.ID = f.nextID
	f.appts[c.ID] = &c
	r := c
	return &r, nil
}

func (f *fakeAppointments) CancelAppointment(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.failCancel[id] {
		return errors.New("cancel failed")
	}
	a, ok := f.appts[id]
	if !ok {
		return errors.New("not found")
	}
	a.Status = domain.AppointmentCancelled
	a.CancelReason = reason
	return nil
}

func (f *fakeAppointments) DeleteAppointments(ctx context.Context, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := 0
	for _, id := range ids {
		if _, ok := f.appts[id]; ok {
			delete(f.appts, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeAppointments) UnlinkExternalReference(ctx context.Context, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if a, ok := f.appts[id]; ok && a.ExternalEventID != nil {
			a.ExternalEventID = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeAppointments) FindExternallySourced(ctx context.Context, businessID uuid.UUID, from time.Time) ([]*domain.InternalAppointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.InternalAppointment
	for _, a := range f.appts {
		if a.BusinessID == businessID && a.Source == domain.SourceExternalCalendar && !a.StartsAt.Before(from) {
			c := *a
			list = append(list, &c)
		}
	}
	return list, nil
}

func (f *fakeAppointments) FindLinkedManual(ctx context.Context, businessID uuid.UUID) ([]*domain.InternalAppointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.InternalAppointment
	for _, a := range f.appts {
		if a.BusinessID == businessID && a.Source == domain.SourceManual && a.ExternalEventID != nil {
			c := *a
			list = append(list, &c)
		}
	}
	return list, nil
}

type fakeClosures struct {
	mu       sync.Mutex
	closures map[string]*domain.Closure
}

func (f *fakeClosures) UpsertClosure(ctx context.Context, closure *domain.Closure) (*domain.Closure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closures[closure.ExternalEventID] = closure
	return closure, nil
}

func (f *fakeClosures) DeleteFutureClosures(ctx context.Context, businessID uuid.UUID, from time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, c := range f.closures {
		if c.BusinessID == businessID && c.EndsOn.After(from) {
			delete(f.closures, id)
			n++
		}
	}
	return n, nil
}

type fakeWatches struct {
	mu      sync.Mutex
	watches map[string]*domain.WatchChannel
}

func (f *fakeWatches) SaveWatch(ctx context.Context, w *domain.WatchChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *w
	f.watches[w.ChannelID] = &c
	return nil
}

func (f *fakeWatches) ListWatches(ctx context.Context, businessID uuid.UUID) ([]*domain.WatchChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.WatchChannel
	for _, w := range f.watches {
		if w.BusinessID == businessID {
			c := *w
			list = append(list, &c)
		}
	}
	return list, nil
}

func (f *fakeWatches) GetWatchByChannel(ctx context.Context, channelID string) (*domain.WatchChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[channelID]
	if !ok {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (f *fakeWatches) ListExpiringWatches(ctx context.Context, before time.Time) ([]*domain.WatchChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.WatchChannel
	for _, w := range f.watches {
		if w.ExpiresAt.Before(before) {
			c := *w
			list = append(list, &c)
		}
	}
	return list, nil
}

func (f *fakeWatches) DeleteWatch(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, channelID)
	return nil
}

type fakeBatches struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*domain.FetchedBatch
}

func (f *fakeBatches) LoadBatch(ctx context.Context, businessID uuid.UUID) (*domain.FetchedBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[businessID], nil
}

func (f *fakeBatches) StoreBatch(ctx context.Context, batch *domain.FetchedBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batch.BusinessID] = batch
	return nil
}

func (f *fakeBatches) PurgeBatch(ctx context.Context, businessID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.batches, businessID)
	return nil
}

// chanLocker is a per-business semaphore.
type chanLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

func (l *chanLocker) slot(businessID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[businessID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[businessID] = ch
	}
	return ch
}

func (l *chanLocker) Acquire(ctx context.Context, businessID uuid.UUID) (func(), error) {
	ch := l.slot(businessID)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, out.ErrLockBusy
	}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*domain.RealtimeEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, event *domain.RealtimeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) last() *domain.RealtimeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

type fakeProducer struct {
	mu   sync.Mutex
	jobs []*out.CalendarSyncJob
}

func (f *fakeProducer) PublishCalendarSync(ctx context.Context, job *out.CalendarSyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

// =============================================================================
// Fixture
// =============================================================================

var testNow = time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)

var (
	ana   = domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1}
	bruno = domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 2}
)

type fixture struct {
	biz          uuid.UUID
	mgr          *Manager
	states       *fakeStates
	mappings     *fakeMappings
	provider     *fakeProvider
	credentials  *fakeCredentials
	appointments *fakeAppointments
	closures     *fakeClosures
	watches      *fakeWatches
	batches      *fakeBatches
	locker       *chanLocker
	notifier     *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		biz:          uuid.New(),
		states:       &fakeStates{states: make(map[uuid.UUID]domain.IntegrationState)},
		mappings:     &fakeMappings{entries: make(map[uuid.UUID]domain.CalendarMapping)},
		provider:     &fakeProvider{events: make(map[string][]domain.ExternalEvent)},
		credentials:  &fakeCredentials{},
		appointments: newFakeAppointments(),
		closures:     &fakeClosures{closures: make(map[string]*domain.Closure)},
		watches:      &fakeWatches{watches: make(map[string]*domain.WatchChannel)},
		batches:      &fakeBatches{batches: make(map[uuid.UUID]*domain.FetchedBatch)},
		locker:       &chanLocker{slots: make(map[uuid.UUID]chan struct{})},
		notifier:     &fakeNotifier{},
	}
	f.provider.calendars = []domain.ProviderCalendar{
		{ID: "cal-ana", Name: "Ana", IsPrimary: true},
		{ID: "cal-bruno", Name: "Bruno"},
	}

	f.mgr = NewManager(Dependencies{
		States:       f.states,
		Mappings:     f.mappings,
		Owners:       &fakeOwners{owners: []domain.Owner{{ID: 1, Kind: domain.OwnerEmployee, Name: "Ana"}, {ID: 2, Kind: domain.OwnerEmployee, Name: "Bruno"}}},
		Provider:     f.provider,
		Credentials:  f.credentials,
		Appointments: f.appointments,
		Closures:     f.closures,
		Watches:      f.watches,
		Batches:      f.batches,
		Locker:       f.locker,
		Notifier:     f.notifier,
	}, Config{
		ProviderTimeout: time.Second,
		LockWait:        50 * time.Millisecond,
		DisconnectWait:  time.Second,
		ImportHorizon:   30 * 24 * time.Hour,
	})
	f.mgr.now = func() time.Time { return testNow }
	return f
}

// mapped drives the wizard up to the mapped phase with both calendars mapped.
func (f *fixture) mapped(tb interface{ Fatalf(string, ...any) }) {
	ctx := context.Background()
	if _, err := f.mgr.Connect(ctx, f.biz); err != nil {
		tb.Fatalf("connect: %v", err)
	}
	if _, err := f.mgr.SelectCalendars(ctx, f.biz, []string{"cal-ana", "cal-bruno"}); err != nil {
		tb.Fatalf("select: %v", err)
	}
	if err := f.mgr.SetMapping(ctx, f.biz, "cal-ana", ana.ID); err != nil {
		tb.Fatalf("map ana: %v", err)
	}
	if err := f.mgr.SetMapping(ctx, f.biz, "cal-bruno", bruno.ID); err != nil {
		tb.Fatalf("map bruno: %v", err)
	}
	if _, err := f.mgr.CompleteMapping(ctx, f.biz); err != nil {
		tb.Fatalf("complete mapping: %v", err)
	}
}

// waitForListCalls blocks until the provider has been asked for events n times.
func (f *fixture) waitForListCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		f.provider.mu.Lock()
		calls := f.provider.listCalls
		f.provider.mu.Unlock()
		if calls >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("provider reached %d time(s), want %d", calls, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) state() *domain.IntegrationState {
	s, _ := f.states.Get(context.Background(), f.biz)
	return s
}

// timed builds an event on the test day (2026-11-03) from hh:mm to hh:mm.
func timed(id string, startH, startM, endH, endM int) domain.ExternalEvent {
	day := testNow.AddDate(0, 0, 1)
	return domain.ExternalEvent{
		ID:      id,
		Start:   time.Date(day.Year(), day.Month(), day.Day(), startH, startM, 0, 0, time.UTC),
		End:     time.Date(day.Year(), day.Month(), day.Day(), endH, endM, 0, 0, time.UTC),
		Summary: "Booking " + id,
	}
}

func allDay(id, summary string, days int) domain.ExternalEvent {
	start := time.Date(testNow.Year(), testNow.Month(), testNow.Day()+2, 0, 0, 0, 0, time.UTC)
	return domain.ExternalEvent{ID: id, Start: start, End: start.AddDate(0, 0, days), AllDay: true, Summary: summary}
}

func manualAppointment(id int64, biz uuid.UUID, owner domain.OwnerRef, ev domain.ExternalEvent) *domain.InternalAppointment {
	return &domain.InternalAppointment{
		ID:              id,
		BusinessID:      biz,
		OwnerKind:       owner.Kind,
		OwnerID:         owner.ID,
		StartsAt:        ev.Start,
		DurationMinutes: ev.DurationMinutes(),
		Status:          domain.AppointmentConfirmed,
		Source:          domain.SourceManual,
	}
}
