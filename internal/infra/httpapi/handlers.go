package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/gin-gonic/gin"
)

type triggerRequest struct {
	Message  string `json:"message"`
	Location string `json:"location"`
}

// internalTriggerRequest is raised by trusted backends on a user's behalf.
// Only this route may bypass the cooldown.
type internalTriggerRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Message  string `json:"message"`
	Location string `json:"location"`
	Force    bool   `json:"force"`
}

type recipientResponse struct {
	ContactID         int64            `json:"contactId"`
	Name              string           `json:"name"`
	Ambulance         bool             `json:"ambulance"`
	ChannelsAttempted []notify.Channel `json:"channelsAttempted"`
	ChannelsSucceeded []notify.Channel `json:"channelsSucceeded"`
	State             app.ContactState `json:"state"`
}

type triggerResponse struct {
	Success           bool                `json:"success"`
	Outcome           app.Outcome         `json:"outcome"`
	AlertID           int64               `json:"alertId,omitempty"`
	Phase             alert.Phase         `json:"phase,omitempty"`
	AlertsSent        []int64             `json:"alertsSent"`
	Unreachable       []int64             `json:"unreachable"`
	Pending           []int64             `json:"pending"`
	UnreachableCount  int                 `json:"unreachableCount"`
	PendingCount      int                 `json:"pendingCount"`
	Recipients        []recipientResponse `json:"recipients"`
	RetryAfterSeconds int64               `json:"retryAfterSeconds,omitempty"`
	Warning           string              `json:"warning,omitempty"`
}

type alertResponse struct {
	ID         int64        `json:"id"`
	UserID     string       `json:"userId"`
	Message    string       `json:"message"`
	Location   string       `json:"location"`
	Status     alert.Status `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	ResolvedAt *time.Time   `json:"resolvedAt"`
}

type deliveryResponse struct {
	ContactID      int64                `json:"contactId"`
	EmailSent      bool                 `json:"emailSent"`
	SmsSent        bool                 `json:"smsSent"`
	ResponseStatus alert.ResponseStatus `json:"responseStatus,omitempty"`
	ResponseTime   *time.Time           `json:"responseTime,omitempty"`
}

type preferenceRequest struct {
	SendToEmergencyContacts *bool `json:"sendToEmergencyContacts"`
	SendToAmbulanceService  *bool `json:"sendToAmbulanceService"`
}

type responseRequest struct {
	ContactID int64                `json:"contactId" binding:"required"`
	Status    alert.ResponseStatus `json:"status" binding:"required"`
}

func toAlertResponse(a *alert.Alert) alertResponse {
	out := alertResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Message:   a.Message,
		Location:  a.Location,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
	if a.ResolvedAt.Valid {
		t := a.ResolvedAt.Time
		out.ResolvedAt = &t
	}
	return out
}

func toTriggerResponse(res *app.DispatchResult) triggerResponse {
	out := triggerResponse{
		Outcome:          res.Outcome,
		AlertID:          res.AlertID,
		Phase:            res.Phase,
		AlertsSent:       res.Sent(),
		Unreachable:      res.Unreachable(),
		Pending:          res.Pending(),
		UnreachableCount: res.UnreachableCount,
		PendingCount:     res.PendingCount,
		Recipients:       make([]recipientResponse, 0, len(res.Recipients)),
		Warning:          res.Warning,
	}
	for _, r := range res.Recipients {
		out.Recipients = append(out.Recipients, recipientResponse{
			ContactID:         r.ContactID,
			Name:              r.Name,
			Ambulance:         r.Ambulance,
			ChannelsAttempted: r.ChannelsAttempted,
			ChannelsSucceeded: r.ChannelsSucceeded,
			State:             r.State,
		})
	}

	switch res.Outcome {
	case app.OutcomeNoRecipients:
		out.Success = true
	case app.OutcomeSent:
		out.Success = res.Delivered() || res.PendingCount > 0
	}
	return out
}

func (h *handler) triggerAlert(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	h.trigger(c, app.TriggerRequest{
		UserID:   currentUserID(c),
		Message:  req.Message,
		Location: req.Location,
	})
}

func (h *handler) triggerAlertInternal(c *gin.Context) {
	var req internalTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Force {
		h.log.WithField("user_id", req.UserID).Warn("Forced emergency trigger bypasses the cooldown")
	}
	h.trigger(c, app.TriggerRequest{
		UserID:   req.UserID,
		Message:  req.Message,
		Location: req.Location,
		Force:    req.Force,
	})
}

func (h *handler) trigger(c *gin.Context, req app.TriggerRequest) {
	res, err := h.alerts.Trigger(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := toTriggerResponse(res)
	if res.Outcome == app.OutcomeThrottled {
		setRetryAfter(c, res.RetryAfter)
		out.RetryAfterSeconds = int64((res.RetryAfter + time.Second - 1) / time.Second)
		c.JSON(http.StatusTooManyRequests, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) listAlerts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 200 {
			abortWithError(c, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = v
	}

	alerts, err := h.alerts.History(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (h *handler) getAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.alerts.Lookup(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	deliveries := make([]deliveryResponse, 0, len(view.Deliveries))
	for _, d := range view.Deliveries {
		dr := deliveryResponse{
			ContactID:      d.ContactID,
			EmailSent:      d.EmailSent,
			SmsSent:        d.SmsSent,
			ResponseStatus: d.ResponseStatus,
		}
		if d.ResponseTime.Valid {
			t := d.ResponseTime.Time
			dr.ResponseTime = &t
		}
		deliveries = append(deliveries, dr)
	}
	c.JSON(http.StatusOK, gin.H{
		"alert":      toAlertResponse(view.Alert),
		"phase":      view.Phase,
		"deliveries": deliveries,
	})
}

func (h *handler) resolveAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.alerts.Resolve(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alert": toAlertResponse(a)})
}

func (h *handler) sendTestAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.tests.SendTest(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	body := gin.H{"success": res.Success, "channel": res.Channel}
	if !res.Success {
		body["error"] = res.Error
		c.JSON(http.StatusBadGateway, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) getPreferences(c *gin.Context) {
	p, err := h.preferences.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sendToEmergencyContacts": p.SendToEmergencyContacts,
		"sendToAmbulanceService":  p.SendToAmbulanceService,
	})
}

// savePreferences fills missing fields with the product defaults.
func (h *handler) savePreferences(c *gin.Context) {
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	contacts, ambulance := true, false
	if req.SendToEmergencyContacts != nil {
		contacts = *req.SendToEmergencyContacts
	}
	if req.SendToAmbulanceService != nil {
		ambulance = *req.SendToAmbulanceService
	}

	p, err := h.preferences.Save(c.Request.Context(), currentUserID(c), contacts, ambulance)
	if err != nil {
		h.respondError(c, err)
		return
	}
	body := gin.H{
		"sendToEmergencyContacts": p.SendToEmergencyContacts,
		"sendToAmbulanceService":  p.SendToAmbulanceService,
	}
	if !p.NotifiesAnyone() {
		body["warning"] = "No one will be notified in an emergency with these settings"
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) recordResponse(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "contactId and status are required")
		return
	}
	recorded, err := h.alerts.Respond(c.Request.Context(), id, req.ContactID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": recorded})
}

func (h *handler) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.health))
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.log.WithError(err).WithField("dependency", name).Warn("Health check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP statuses in one place.
func (h *handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrMissingUser):
		abortWithError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, idb.ErrAlertNotFound), errors.Is(err, app.ErrAlertNotOwned):
		abortWithError(c, http.StatusNotFound, "emergency alert not found")
	case errors.Is(err, idb.ErrContactNotFound), errors.Is(err, app.ErrContactNotOwned):
		abortWithError(c, http.StatusNotFound, "emergency contact not found")
	case errors.Is(err, idb.ErrDeliveryNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNoDeliverableRoute):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrInvalidResponse):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		abortWithError(c, http.StatusInternalServerError, "internal server error")
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
