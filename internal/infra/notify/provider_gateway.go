// internal/infra/notify/provider_gateway.go
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/domain/notify"
)

// channel -> provider endpoint path
var endpointPaths = map[notify.Channel]string{
	notify.ChannelEmail:    "/v1/email/send",
	notify.ChannelSMS:      "/v1/sms/send",
	notify.ChannelWhatsApp: "/v1/whatsapp/send",
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ProviderGateway delivers messages through the messaging provider's HTTP
// API, one endpoint per channel. Each call is bounded by the client
// timeout; a hung provider call surfaces as a delivery error.
type ProviderGateway struct {
	client *resty.Client
	logger *logrus.Entry
}

func NewProviderGateway(baseURL, apiKey string, logger *logrus.Entry) *ProviderGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &ProviderGateway{client: client, logger: logger}
}

// Send delivers one message to one recipient over the given channel.
func (g *ProviderGateway) Send(ctx context.Context, channel notify.Channel, recipient string, msg notify.Message) error {
	path, ok := endpointPaths[channel]
	if !ok {
		return fmt.Errorf("channel %q is not configured", channel)
	}

	req := sendRequest{To: recipient, Body: msg.Body}
	if channel == notify.ChannelEmail {
		req.Subject = msg.Subject
	}

	var out sendResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return fmt.Errorf("%s delivery failed: %w", channel, err)
	}
	if resp.IsError() {
		reason := out.Error
		if reason == "" {
			reason = resp.Status()
		}
		return fmt.Errorf("%s delivery failed: %s", channel, reason)
	}

	g.logger.WithFields(logrus.Fields{
		"channel":   channel,
		"recipient": recipient,
	}).Debug("Message delivered")
	return nil
}
