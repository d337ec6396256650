package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrDeviceNotRegistered = errors.New("push device not registered")

type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type sendResponse struct {
	Data   []ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoNotifier delivers notifications through the Expo push HTTP API.
type ExpoNotifier struct {
	client      *http.Client
	endpoint    string
	accessToken string
}

func NewExpoNotifier(client *http.Client, endpoint, accessToken string) *ExpoNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &ExpoNotifier{
		client:      client,
		endpoint:    strings.TrimSpace(endpoint),
		accessToken: strings.TrimSpace(accessToken),
	}
}

func (n *ExpoNotifier) Send(ctx context.Context, msg Message) error {
	if n.endpoint == "" {
		return fmt.Errorf("push endpoint is not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("push token is required")
	}
	if msg.Sound == "" {
		msg.Sound = "default"
	}

	payload, err := json.Marshal([]Message{msg})
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if n.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.accessToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("push api error %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("push api returned no ticket")
	}

	t := out.Data[0]
	if t.Status == "ok" {
		return nil
	}
	if t.Details.Error == "DeviceNotRegistered" {
		return ErrDeviceNotRegistered
	}
	return fmt.Errorf("push ticket %s: %s", t.Status, t.Message)
}
