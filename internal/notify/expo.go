package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExpoTransport posts notifications to an Expo-compatible push endpoint.
type ExpoTransport struct {
	URL    string
	Client *http.Client
}

func NewExpoTransport(url string) *ExpoTransport {
	return &ExpoTransport{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (t *ExpoTransport) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	payload, err := json.Marshal(expoMessage{To: token, Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %s", resp.Status)
	}
	return nil
}

var _ PushTransport = (*ExpoTransport)(nil)
