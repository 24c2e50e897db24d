package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/preference"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AlertService is the part of the dispatcher the REST surface uses.
type AlertService interface {
	Trigger(ctx context.Context, req app.TriggerRequest) (*app.DispatchResult, error)
	History(ctx context.Context, userID string, limit int) ([]*alert.Alert, error)
	Lookup(ctx context.Context, userID string, alertID int64) (*app.AlertView, error)
	Resolve(ctx context.Context, userID string, alertID int64) (*alert.Alert, error)
	Respond(ctx context.Context, alertID, contactID int64, status alert.ResponseStatus) (bool, error)
}

type TestAlertSender interface {
	SendTest(ctx context.Context, userID string, contactID int64) (*app.TestResult, error)
}

type PreferenceService interface {
	Get(ctx context.Context, userID string) (*preference.Preference, error)
	Save(ctx context.Context, userID string, contacts, ambulance bool) (*preference.Preference, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Deps bundles what the router needs.
type Deps struct {
	Alerts         AlertService
	Tests          TestAlertSender
	Preferences    PreferenceService
	Verifier       *TokenVerifier
	InternalAPIKey string
	TestAlertRate  string
	Limits         LimitObserver
	Metrics        http.Handler // Optional /metrics handler
	Health         map[string]HealthCheck
	Log            *logrus.Entry
}

type handler struct {
	alerts      AlertService
	tests       TestAlertSender
	preferences PreferenceService
	health      map[string]HealthCheck
	log         *logrus.Entry
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) (*gin.Engine, error) {
	h := &handler{
		alerts:      d.Alerts,
		tests:       d.Tests,
		preferences: d.Preferences,
		health:      d.Health,
		log:         d.Log,
	}

	testLimit, err := NewUserRateLimit(d.TestAlertRate, d.Limits, d.Log)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log))

	r.GET("/health", h.healthCheck)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	user := r.Group("/", RequireUser(d.Verifier))
	{
		user.POST("/emergency-alerts", h.triggerAlert)
		user.GET("/emergency-alerts", h.listAlerts)
		user.GET("/emergency-alerts/:id", h.getAlert)
		user.POST("/emergency-alerts/:id/resolve", h.resolveAlert)
		user.POST("/emergency-contacts/:id/test-alert", testLimit, h.sendTestAlert)
		user.GET("/emergency-preferences", h.getPreferences)
		user.PUT("/emergency-preferences", h.savePreferences)
	}

	internal := r.Group("/internal", RequireInternalKey(d.InternalAPIKey))
	internal.POST("/emergency-alerts", h.triggerAlertInternal)
	internal.POST("/emergency-alerts/:id/responses", h.recordResponse)

	return r, nil
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if uid := currentUserID(c); uid != "" {
			entry = entry.WithField("user_id", uid)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("HTTP request failed")
		} else {
			entry.Debug("HTTP request served")
		}
	}
}

// Server owns the HTTP listener.
type Server struct {
	srv *http.Server
	log *logrus.Entry
}

func NewServer(addr string, handler http.Handler, log *logrus.Entry) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background; listener errors go to errc.
func (s *Server) Start(errc chan<- error) {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
