package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/contact"
	"lifeguard_alerts/internal/domain/notify"
	"lifeguard_alerts/internal/domain/preference"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func nullLogger() (*logrus.Entry, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

type memDirectory struct {
	contacts map[int64]*contact.Contact
	err      error
}

func newDirectory(cs ...*contact.Contact) *memDirectory {
	d := &memDirectory{contacts: make(map[int64]*contact.Contact)}
	for _, c := range cs {
		d.contacts[c.ID] = c
	}
	return d
}

func (d *memDirectory) GetByID(_ context.Context, id int64) (*contact.Contact, error) {
	if d.err != nil {
		return nil, d.err
	}
	c, ok := d.contacts[id]
	if !ok {
		return nil, idb.ErrContactNotFound
	}
	return c, nil
}

func (d *memDirectory) ListByUser(_ context.Context, userID string) ([]*contact.Contact, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []*contact.Contact
	for _, c := range d.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	// Map order is random; the resolver must not depend on it.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type memPreferences struct {
	mu    sync.Mutex
	prefs map[string]*preference.Preference
	err   error
}

func newPreferences(ps ...*preference.Preference) *memPreferences {
	m := &memPreferences{prefs: make(map[string]*preference.Preference)}
	for _, p := range ps {
		m.prefs[p.UserID] = p
	}
	return m
}

func (m *memPreferences) Get(_ context.Context, userID string) (*preference.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.prefs[userID]
	if !ok {
		return nil, idb.ErrPreferenceNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPreferences) Upsert(_ context.Context, p *preference.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *p
	m.prefs[p.UserID] = &cp
	return nil
}

type memAlertRepo struct {
	mu           sync.Mutex
	nextID       int64
	alerts       map[int64]*alert.Alert
	records      map[int64][]*alert.DeliveryRecord
	createErr    error
	resolveCalls int
}

func newAlertRepo() *memAlertRepo {
	return &memAlertRepo{
		alerts:  make(map[int64]*alert.Alert),
		records: make(map[int64][]*alert.DeliveryRecord),
	}
}

func (r *memAlertRepo) CreateWithDeliveries(_ context.Context, a *alert.Alert, records []*alert.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = time.Now()
	stored := *a
	r.alerts[a.ID] = &stored
	for i, rec := range records {
		rec.ID = int64(i + 1)
		rec.EmergencyID = a.ID
		rec.CreatedAt = a.CreatedAt
		cp := *rec
		r.records[a.ID] = append(r.records[a.ID], &cp)
	}
	return nil
}

func (r *memAlertRepo) GetByID(_ context.Context, id int64) (*alert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, idb.ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAlertRepo) ListByUser(_ context.Context, userID string, _ int) ([]*alert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*alert.Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memAlertRepo) Resolve(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCalls++
	a, ok := r.alerts[id]
	if !ok {
		return false, idb.ErrAlertNotFound
	}
	if a.Status != alert.StatusActive {
		return false, nil
	}
	a.Status = alert.StatusResolved
	a.ResolvedAt = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

func (r *memAlertRepo) record(alertID, contactID int64) *alert.DeliveryRecord {
	for _, rec := range r.records[alertID] {
		if rec.ContactID == contactID {
			return rec
		}
	}
	return nil
}

func (r *memAlertRepo) MarkChannelSent(_ context.Context, alertID, contactID int64, ch notify.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(alertID, contactID)
	if rec == nil {
		return idb.ErrDeliveryNotFound
	}
	switch ch {
	case notify.ChannelEmail:
		rec.EmailSent = true
	case notify.ChannelSMS:
		rec.SmsSent = true
	}
	return nil
}

func (r *memAlertRepo) ListDeliveries(_ context.Context, alertID int64) ([]*alert.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*alert.DeliveryRecord, 0, len(r.records[alertID]))
	for _, rec := range r.records[alertID] {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memAlertRepo) RecordResponse(_ context.Context, alertID, contactID int64, status alert.ResponseStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(alertID, contactID)
	if rec == nil {
		return false, idb.ErrDeliveryNotFound
	}
	if rec.ResponseStatus != alert.ResponseNone {
		return false, nil
	}
	rec.ResponseStatus = status
	rec.ResponseTime = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

func (r *memAlertRepo) MarkTimedOut(_ context.Context, cutoff time.Time, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, recs := range r.records {
		if r.alerts[id].Status != alert.StatusActive {
			continue
		}
		for _, rec := range recs {
			if rec.ResponseStatus == alert.ResponseNone && rec.CreatedAt.Before(cutoff) {
				rec.ResponseStatus = alert.ResponseTimedOut
				rec.ResponseTime = sql.NullTime{Time: at, Valid: true}
				n++
			}
		}
	}
	return n, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*alert.TestAudit
	err     error
}

func (m *memAudit) Create(_ context.Context, e *alert.TestAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type sendCall struct {
	channel notify.Channel
	to      string
	msg     notify.Message
}

// scriptedGateway fails the first len(script[addr]) sends to addr with the
// scripted errors, then succeeds. Sends to an address in hold block until
// the channel is closed. Each send takes at least delay.
type scriptedGateway struct {
	mu       sync.Mutex
	script   map[string][]error
	always   map[string]error
	hold     map[string]chan struct{}
	delay    time.Duration
	calls    []sendCall
	inflight int
	peak     int
}

func newGateway() *scriptedGateway {
	return &scriptedGateway{
		script: make(map[string][]error),
		always: make(map[string]error),
		hold:   make(map[string]chan struct{}),
	}
}

func (g *scriptedGateway) send(ctx context.Context, ch notify.Channel, to string, msg notify.Message) error {
	g.mu.Lock()
	g.calls = append(g.calls, sendCall{channel: ch, to: to, msg: msg})
	g.inflight++
	if g.inflight > g.peak {
		g.peak = g.inflight
	}
	wait := g.hold[to]
	delay := g.delay
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inflight--
		g.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.always[to]; ok {
		return err
	}
	if errs := g.script[to]; len(errs) > 0 {
		g.script[to] = errs[1:]
		return errs[0]
	}
	return nil
}

func (g *scriptedGateway) SendEmail(ctx context.Context, to string, msg notify.Message) error {
	return g.send(ctx, notify.ChannelEmail, to, msg)
}

func (g *scriptedGateway) SendSMS(ctx context.Context, to string, msg notify.Message) error {
	return g.send(ctx, notify.ChannelSMS, to, msg)
}

func (g *scriptedGateway) sent() []sendCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sendCall(nil), g.calls...)
}

func (g *scriptedGateway) callsTo(to string) int {
	n := 0
	for _, c := range g.sent() {
		if c.to == to {
			n++
		}
	}
	return n
}

// maxInFlight is the highest number of sends observed at once.
func (g *scriptedGateway) maxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// testClock is a settable clock safe to read from dispatch goroutines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu      sync.Mutex
	results []*DispatchResult
	done    chan struct{}
}

func newObserver() *recordingObserver {
	return &recordingObserver{done: make(chan struct{}, 8)}
}

func (o *recordingObserver) DispatchFinished(_ context.Context, _ *alert.Alert, res *DispatchResult) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
	o.done <- struct{}{}
}

type failingCooldownStore struct{}

func (failingCooldownStore) Admit(context.Context, string, time.Time, time.Duration, bool) (time.Duration, bool, error) {
	return 0, false, errTestStoreDown
}

func (failingCooldownStore) Release(context.Context, string, time.Time) error {
	return errTestStoreDown
}
