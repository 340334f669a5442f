package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// HTTPRelay drives the relay board through its own HTTP endpoint,
// GET <base>/relay?status=ON|OFF.
type HTTPRelay struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRelay(baseURL string, client *http.Client) *HTTPRelay {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPRelay{baseURL: baseURL, client: client}
}

func (r *HTTPRelay) SendRelayCommand(ctx context.Context, status string) error {
	endpoint := r.baseURL + "/relay?status=" + url.QueryEscape(status)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay responded %d", resp.StatusCode)
	}
	return nil
}

// MQTTRelay publishes the status as a retained message so a relay that
// reconnects picks up the last command.
type MQTTRelay struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

func NewMQTTRelay(client mqtt.Client, topic string) *MQTTRelay {
	return &MQTTRelay{client: client, topic: topic, timeout: 5 * time.Second}
}

func (r *MQTTRelay) SendRelayCommand(ctx context.Context, status string) error {
	token := r.client.Publish(r.topic, 1, true, status)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.timeout):
		return errors.New("mqtt publish timed out")
	}
}

// NoopRelay is used when no relay device is configured.
type NoopRelay struct{}

func (NoopRelay) SendRelayCommand(context.Context, string) error { return nil }
