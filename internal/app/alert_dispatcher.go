// internal/app/alert_dispatcher.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Outcome tags the result of a trigger.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeThrottled    Outcome = "throttled"
	OutcomeNoRecipients Outcome = "no_recipients"
)

// ContactState is the per-recipient verdict reported to the caller.
type ContactState string

const (
	StateNotified    ContactState = "notified"
	StateUnreachable ContactState = "unreachable"
	StatePending     ContactState = "pending"
)

var (
	ErrMissingUser   = fmt.Errorf("user id is required")
	ErrAlertNotOwned = fmt.Errorf("alert belongs to another user")
)

// TriggerRequest is one request to raise an emergency alert.
type TriggerRequest struct {
	UserID   string
	Message  string
	Location string
	Force    bool // Bypass the cooldown check (still records the alert time)
}

// RecipientOutcome reports what happened for one recipient.
type RecipientOutcome struct {
	ContactID         int64
	Name              string
	Ambulance         bool
	ChannelsAttempted []notify.Channel
	ChannelsSucceeded []notify.Channel
	State             ContactState
}

// DispatchResult is the aggregate answer of Trigger.
type DispatchResult struct {
	Outcome          Outcome
	AlertID          int64
	Phase            alert.Phase
	Recipients       []RecipientOutcome
	UnreachableCount int
	PendingCount     int
	RetryAfter       time.Duration // Set when throttled
	Warning          string
}

// Delivered reports whether at least one recipient was notified.
func (r *DispatchResult) Delivered() bool {
	for _, rec := range r.Recipients {
		if rec.State == StateNotified {
			return true
		}
	}
	return false
}

func (r *DispatchResult) idsIn(state ContactState) []int64 {
	ids := make([]int64, 0, len(r.Recipients))
	for _, rec := range r.Recipients {
		if rec.State == state {
			ids = append(ids, rec.ContactID)
		}
	}
	return ids
}

// Sent returns the contact IDs that were notified.
func (r *DispatchResult) Sent() []int64 { return r.idsIn(StateNotified) }

// Unreachable returns the contact IDs for which every channel failed or none existed.
func (r *DispatchResult) Unreachable() []int64 { return r.idsIn(StateUnreachable) }

// Pending returns the contact IDs still in flight when the caller stopped waiting.
func (r *DispatchResult) Pending() []int64 { return r.idsIn(StatePending) }

// DispatchObserver is told once per alert when its last send lands.
type DispatchObserver interface {
	DispatchFinished(ctx context.Context, a *alert.Alert, result *DispatchResult)
}

const defaultDispatchTimeout = 15 * time.Second

// DispatcherConfig holds the tunables of the fan-out.
type DispatcherConfig struct {
	Workers        int           // In-flight sends across all alerts
	Timeout        time.Duration // How long Trigger waits for the fan-out
	MaxRetries     int           // Retries after the first attempt
	BackoffBase    time.Duration
	BackoffFactor  int
	AttemptTimeout time.Duration // Per gateway call
}

// AlertView is an alert with its live phase and delivery snapshot.
type AlertView struct {
	Alert      *alert.Alert
	Phase      alert.Phase
	Deliveries []*alert.DeliveryRecord
}

// AlertDispatcher orchestrates one emergency trigger end to end.
type AlertDispatcher struct {
	guard    *CooldownGuard
	resolver *RecipientResolver
	repo     alert.Repository
	tracker  *DeliveryTracker
	gateway  notify.Gateway
	pool     *semaphore.Weighted
	cfg      DispatcherConfig
	metrics  Metrics
	observer DispatchObserver
	clock    func() time.Time
	log      *logrus.Entry

	mu       sync.Mutex
	inflight map[int64]*dispatchRun
	wg       sync.WaitGroup
}

func NewAlertDispatcher(
	guard *CooldownGuard,
	resolver *RecipientResolver,
	repo alert.Repository,
	tracker *DeliveryTracker,
	gateway notify.Gateway,
	cfg DispatcherConfig,
	log *logrus.Entry,
) *AlertDispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDispatchTimeout
	}
	return &AlertDispatcher{
		guard:    guard,
		resolver: resolver,
		repo:     repo,
		tracker:  tracker,
		gateway:  gateway,
		pool:     semaphore.NewWeighted(int64(cfg.Workers)),
		cfg:      cfg,
		metrics:  nopMetrics{},
		clock:    time.Now,
		log:      log,
		inflight: make(map[int64]*dispatchRun),
	}
}

// SetMetrics replaces the no-op metrics sink.
func (d *AlertDispatcher) SetMetrics(m Metrics) {
	if m != nil {
		d.metrics = m
	}
}

// SetObserver registers the hook called when a dispatch finishes.
func (d *AlertDispatcher) SetObserver(o DispatchObserver) {
	d.observer = o
}

// Trigger raises an alert for req.UserID and fans it out to the resolved recipients.
// Transport failures never surface as errors; persistence failures do.
func (d *AlertDispatcher) Trigger(ctx context.Context, req TriggerRequest) (*DispatchResult, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	entry := d.log.WithField("user_id", req.UserID)
	now := d.clock()

	// 1. Cooldown
	admitted := false
	adm, err := d.guard.Admit(ctx, req.UserID, now, req.Force)
	if err != nil {
		// An unavailable cooldown store must not block an emergency.
		entry.WithError(err).Error("Cooldown check failed; admitting alert")
	} else if !adm.Allowed {
		entry.WithFields(logrus.Fields{
			"retry_after":     adm.Remaining.String(),
			"cooldown_window": d.guard.Window().String(),
		}).Info("Alert throttled by cooldown")
		d.metrics.AlertTriggered(OutcomeThrottled)
		return &DispatchResult{Outcome: OutcomeThrottled, RetryAfter: adm.Remaining}, nil
	} else {
		admitted = true
	}
	release := func() {
		if !admitted {
			return
		}
		if err := d.guard.Release(context.WithoutCancel(ctx), req.UserID, adm.Stamp); err != nil {
			entry.WithError(err).Warn("Failed to release cooldown admission")
		}
	}

	// 2. Recipients
	sel, err := d.resolver.Resolve(ctx, req.UserID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	// 3. Alert and delivery records in one transaction
	a := &alert.Alert{
		UserID:   req.UserID,
		Message:  req.Message,
		Location: req.Location,
		Status:   alert.StatusActive,
	}
	records := make([]*alert.DeliveryRecord, 0, len(sel.Recipients))
	for _, r := range sel.Recipients {
		records = append(records, &alert.DeliveryRecord{ContactID: r.Contact.ID})
	}
	if err := d.repo.CreateWithDeliveries(ctx, a, records); err != nil {
		release()
		entry.WithError(err).Error("Failed to persist emergency alert")
		return nil, fmt.Errorf("failed to persist emergency alert: %w", err)
	}
	entry = entry.WithField("alert_id", a.ID)
	entry.WithFields(logrus.Fields{"recipients": len(sel.Recipients), "forced": req.Force}).Info("Emergency alert created")

	if len(sel.Recipients) == 0 {
		res := &DispatchResult{
			Outcome: OutcomeNoRecipients,
			AlertID: a.ID,
			Phase:   alert.PhaseDispatchedComplete,
			Warning: noRecipientWarning(sel),
		}
		entry.Warn(res.Warning)
		d.metrics.AlertTriggered(OutcomeNoRecipients)
		d.notifyObserver(ctx, a, res)
		return res, nil
	}

	// 4-7. Fan-out
	run := newDispatchRun(a, sel.Recipients, d.clock())
	d.mu.Lock()
	d.inflight[a.ID] = run
	d.mu.Unlock()
	run.startDispatching()

	d.wg.Add(1)
	go d.execute(context.WithoutCancel(ctx), run, entry)

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-run.done:
	case <-timer.C:
		entry.Warn("Dispatch timeout reached; remaining sends continue in the background")
	case <-ctx.Done():
		entry.WithError(ctx.Err()).Warn("Caller stopped waiting; remaining sends continue in the background")
	}

	res := run.result()
	d.metrics.AlertTriggered(OutcomeSent)
	entry.WithFields(logrus.Fields{
		"notified":    len(res.Sent()),
		"unreachable": res.UnreachableCount,
		"pending":     res.PendingCount,
	}).Info("Emergency alert dispatch reported to caller")
	return res, nil
}

func noRecipientWarning(sel *Selection) string {
	if !sel.Preference.NotifiesAnyone() {
		return "Emergency notifications are disabled in your preferences; nobody was notified"
	}
	return "No eligible emergency recipients were found; nobody was notified"
}

type sendUnit struct {
	idx       int
	recipient Recipient
	channel   notify.Channel
}

type unitResult struct {
	unit     sendUnit
	err      error
	attempts int
}

// execute enqueues the units in recipient order on the shared pool and collects results.
func (d *AlertDispatcher) execute(ctx context.Context, run *dispatchRun, entry *logrus.Entry) {
	defer d.wg.Done()

	var units []sendUnit
	for i, r := range run.recipients {
		for _, ch := range r.Channels {
			units = append(units, sendUnit{idx: i, recipient: r, channel: ch})
		}
	}

	results := make(chan unitResult, len(units))
	go func() {
		for _, u := range units {
			// ctx is detached from the caller and cannot be canceled, so Acquire only waits.
			if err := d.pool.Acquire(ctx, 1); err != nil {
				results <- unitResult{unit: u, err: err}
				continue
			}
			go func(u sendUnit) {
				defer d.pool.Release(1)
				attempts, err := d.sendWithRetry(ctx, run.alert, u, entry)
				results <- unitResult{unit: u, err: err, attempts: attempts}
			}(u)
		}
	}()

	for range units {
		res := <-results
		d.metrics.ChannelSend(res.unit.channel, res.err == nil, res.attempts)
		if err := d.tracker.Record(ctx, run.alert.ID, res.unit.recipient.Contact.ID, res.unit.channel, res.err); err != nil {
			entry.WithError(err).Error("Delivery outcome could not be stored")
		}
		run.land(res.unit.idx, res.unit.channel, res.err == nil)
	}

	final := run.finish()
	d.mu.Lock()
	delete(d.inflight, run.alert.ID)
	d.mu.Unlock()

	d.metrics.DispatchCompleted(d.clock().Sub(run.started), final.Phase == alert.PhaseDispatchedPartial)
	entry.WithFields(logrus.Fields{
		"notified":    len(final.Sent()),
		"unreachable": final.UnreachableCount,
		"phase":       final.Phase,
	}).Info("Emergency alert dispatch finished")

	if d.observer != nil {
		d.observer.DispatchFinished(ctx, run.alert, final)
	}
}

// sendWithRetry makes up to 1+MaxRetries attempts, each with a fresh attempt id.
func (d *AlertDispatcher) sendWithRetry(ctx context.Context, a *alert.Alert, u sendUnit, entry *logrus.Entry) (int, error) {
	c := u.recipient.Contact
	entry = entry.WithFields(logrus.Fields{"contact_id": c.ID, "channel": u.channel})

	var lastErr error
	backoff := d.cfg.BackoffBase
	attempts := 0
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			<-t.C
			backoff *= time.Duration(d.cfg.BackoffFactor)
		}
		attempts++

		msg := alertMessage(a, c, u.channel)
		msg.AttemptID = uuid.NewString()
		lastErr = d.send(ctx, c.Email, c.Phone, u.channel, msg)
		if lastErr == nil {
			entry.WithFields(logrus.Fields{"attempt": attempts, "attempt_id": msg.AttemptID}).Debug("Channel send succeeded")
			return attempts, nil
		}
		entry.WithError(lastErr).WithFields(logrus.Fields{"attempt": attempts, "attempt_id": msg.AttemptID}).Warn("Channel send attempt failed")
		if notify.IsPermanent(lastErr) {
			break
		}
	}
	return attempts, fmt.Errorf("%s delivery to contact %d failed after %d attempt(s): %w", u.channel, c.ID, attempts, lastErr)
}

func (d *AlertDispatcher) send(ctx context.Context, email, phone string, ch notify.Channel, msg notify.Message) error {
	attemptCtx := ctx
	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}
	switch ch {
	case notify.ChannelEmail:
		return d.gateway.SendEmail(attemptCtx, email, msg)
	case notify.ChannelSMS:
		return d.gateway.SendSMS(attemptCtx, phone, msg)
	}
	return notify.Permanent(fmt.Errorf("unsupported channel %q", ch))
}

func (d *AlertDispatcher) notifyObserver(ctx context.Context, a *alert.Alert, res *DispatchResult) {
	if d.observer == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.observer.DispatchFinished(context.WithoutCancel(ctx), a, res)
	}()
}

// Phase reports the live dispatch phase of an alert.
func (d *AlertDispatcher) Phase(ctx context.Context, alertID int64) (alert.Phase, error) {
	d.mu.Lock()
	run, ok := d.inflight[alertID]
	d.mu.Unlock()
	if ok {
		return run.currentPhase(), nil
	}

	a, err := d.repo.GetByID(ctx, alertID)
	if err != nil {
		return "", err
	}
	return d.settledPhase(ctx, a)
}

func (d *AlertDispatcher) settledPhase(ctx context.Context, a *alert.Alert) (alert.Phase, error) {
	if a.IsResolved() {
		return alert.PhaseResolved, nil
	}
	records, err := d.tracker.Snapshot(ctx, a.ID)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if !r.Reached() {
			return alert.PhaseDispatchedPartial, nil
		}
	}
	return alert.PhaseDispatchedComplete, nil
}

// Lookup returns the alert with its phase and deliveries. A non-empty userID
// restricts access to the alert's owner.
func (d *AlertDispatcher) Lookup(ctx context.Context, userID string, alertID int64) (*AlertView, error) {
	a, err := d.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if userID != "" && a.UserID != userID {
		return nil, ErrAlertNotOwned
	}
	phase, err := d.Phase(ctx, alertID)
	if err != nil {
		return nil, err
	}
	records, err := d.tracker.Snapshot(ctx, alertID)
	if err != nil {
		return nil, err
	}
	return &AlertView{Alert: a, Phase: phase, Deliveries: records}, nil
}

// History lists the user's most recent alerts.
func (d *AlertDispatcher) History(ctx context.Context, userID string, limit int) ([]*alert.Alert, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	alerts, err := d.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for user %s: %w", userID, err)
	}
	return alerts, nil
}

// Resolve moves the alert to Resolved. Resolving twice returns the unchanged alert.
// A non-empty userID restricts the operation to the alert's owner.
func (d *AlertDispatcher) Resolve(ctx context.Context, userID string, alertID int64) (*alert.Alert, error) {
	a, err := d.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if userID != "" && a.UserID != userID {
		return nil, ErrAlertNotOwned
	}
	if a.IsResolved() {
		return a, nil
	}

	changed, err := d.repo.Resolve(ctx, alertID, d.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert %d: %w", alertID, err)
	}
	if changed {
		d.log.WithField("alert_id", alertID).Info("Emergency alert resolved")
	}

	d.mu.Lock()
	if run, ok := d.inflight[alertID]; ok {
		run.markResolved()
	}
	d.mu.Unlock()

	return d.repo.GetByID(ctx, alertID)
}

// Respond records a recipient's answer to an alert.
func (d *AlertDispatcher) Respond(ctx context.Context, alertID, contactID int64, status alert.ResponseStatus) (bool, error) {
	return d.tracker.Respond(ctx, alertID, contactID, status)
}

// Shutdown waits for detached sends to land or ctx to expire.
func (d *AlertDispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(fmt.Errorf("in-flight emergency sends did not finish"), ctx.Err())
	}
}

// dispatchRun is the in-memory state of one alert's fan-out.
type dispatchRun struct {
	alert      *alert.Alert
	recipients []Recipient
	started    time.Time
	done       chan struct{}

	mu        sync.Mutex
	outcomes  []RecipientOutcome
	remaining []int
	phase     alert.Phase
	resolved  bool
}

func newDispatchRun(a *alert.Alert, recipients []Recipient, started time.Time) *dispatchRun {
	run := &dispatchRun{
		alert:      a,
		recipients: recipients,
		started:    started,
		done:       make(chan struct{}),
		outcomes:   make([]RecipientOutcome, len(recipients)),
		remaining:  make([]int, len(recipients)),
		phase:      alert.PhaseCreated,
	}
	for i, r := range recipients {
		run.outcomes[i] = RecipientOutcome{
			ContactID:         r.Contact.ID,
			Name:              r.Contact.Name,
			Ambulance:         r.Ambulance,
			ChannelsAttempted: append([]notify.Channel(nil), r.Channels...),
		}
		run.remaining[i] = len(r.Channels)
	}
	return run
}

func (r *dispatchRun) land(idx int, ch notify.Channel, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.outcomes[idx].ChannelsSucceeded = append(r.outcomes[idx].ChannelsSucceeded, ch)
	}
	r.remaining[idx]--
}

func (r *dispatchRun) finish() *DispatchResult {
	r.mu.Lock()
	res := r.resultLocked()
	if !r.resolved {
		if res.UnreachableCount > 0 {
			r.phase = alert.PhaseDispatchedPartial
		} else {
			r.phase = alert.PhaseDispatchedComplete
		}
	}
	res.Phase = r.phase
	r.mu.Unlock()

	close(r.done)
	return res
}

func (r *dispatchRun) startDispatching() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == alert.PhaseCreated {
		r.phase = alert.PhaseDispatching
	}
}

func (r *dispatchRun) markResolved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = true
	r.phase = alert.PhaseResolved
}

func (r *dispatchRun) currentPhase() alert.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *dispatchRun) result() *DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultLocked()
}

func (r *dispatchRun) resultLocked() *DispatchResult {
	res := &DispatchResult{
		Outcome:    OutcomeSent,
		AlertID:    r.alert.ID,
		Phase:      r.phase,
		Recipients: make([]RecipientOutcome, len(r.outcomes)),
	}
	for i, o := range r.outcomes {
		o.ChannelsSucceeded = append([]notify.Channel(nil), o.ChannelsSucceeded...)
		switch {
		case len(o.ChannelsSucceeded) > 0:
			o.State = StateNotified
		case r.remaining[i] > 0:
			o.State = StatePending
			res.PendingCount++
		default:
			o.State = StateUnreachable
			res.UnreachableCount++
		}
		res.Recipients[i] = o
	}
	return res
}
