// Package testhelpers provides shared utilities for testing the relay.
//
// It contains helpers for dialing the WebSocket endpoint with an allowed
// origin, sending and receiving typed JSON events, and making plain HTTP
// requests, to keep the unit and integration tests free of duplication.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header value the test configuration allows.
const TestOrigin = "http://localhost:8080"

// ConnectWebSocket dials the given ws:// URL with the test origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ConnectWebSocketWithOrigin dials with an explicit Origin header value.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent marshals the event as JSON and sends it as one text frame.
func SendEvent(conn *websocket.Conn, event interface{}) error {
	return conn.WriteJSON(event)
}

// SendRawMessage sends a raw byte frame, useful for malformed-input tests.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveEvent reads the next JSON event, failing the test if none arrives
// within the timeout.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]interface{} {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return event
}

// WaitForEventType reads events until one with the wanted type arrives,
// skipping everything else (periodic presence pushes can interleave with
// direct acknowledgments). It fails the test when the timeout elapses first.
func WaitForEventType(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for event type %q", eventType)
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		var event map[string]interface{}
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("Failed to read event while waiting for %q: %v", eventType, err)
		}
		if event["type"] == eventType {
			return event
		}
	}
}

// AssertNoEvent fails the test if any event arrives within the window.
func AssertNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err == nil {
		t.Fatalf("Expected no event, received %v", event)
	}
}

// StringSlice converts a JSON array value (as decoded into interface{}) into
// a []string for assertions.
func StringSlice(t *testing.T, value interface{}) []string {
	t.Helper()

	items, ok := value.([]interface{})
	if !ok {
		t.Fatalf("Expected a JSON array, got %T", value)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			t.Fatalf("Expected a string element, got %T", item)
		}
		out = append(out, s)
	}
	return out
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// EncodeEvent marshals an event for raw sends.
func EncodeEvent(t *testing.T, event interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	return data
}
