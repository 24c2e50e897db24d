package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lifeguard_alerts/internal/domain/notify"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// SMSRequest is the body posted to the SMS provider.
type SMSRequest struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// SMSResponse is the provider reply, for both success and error statuses.
type SMSResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SMSClient sends text messages through an HTTP SMS provider.
type SMSClient struct {
	httpClient *resty.Client
	endpoint   string
	sender     string
	log        *logrus.Entry
}

func NewSMSClient(endpoint, apiKey, sender string, log *logrus.Entry) *SMSClient {
	// Retries are owned by the dispatcher, so resty's own retry stays off.
	client := resty.New().
		SetTimeout(10*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &SMSClient{
		httpClient: client,
		endpoint:   endpoint,
		sender:     sender,
		log:        log,
	}
}

// Send posts one SMS. Client errors other than 408 and 429 are permanent.
func (c *SMSClient) Send(ctx context.Context, to string, msg notify.Message) error {
	var out SMSResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", msg.AttemptID).
		SetBody(SMSRequest{To: to, From: c.sender, Body: msg.Body, Reference: msg.AttemptID}).
		SetResult(&out).
		SetError(&out).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to call SMS provider: %w", err)
	}

	if resp.IsError() {
		sendErr := fmt.Errorf("SMS provider error: %s (status: %d)", out.Message, resp.StatusCode())
		code := resp.StatusCode()
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return notify.Permanent(sendErr)
		}
		return sendErr
	}

	c.log.WithFields(logrus.Fields{
		"provider_id": out.ID,
		"attempt_id":  msg.AttemptID,
		"alert_id":    msg.AlertID,
	}).Debug("SMS accepted by provider")
	return nil
}
