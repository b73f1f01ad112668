package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/logolab/internal/announce"
)

type recordedCall struct {
	Method  string
	Auth    string
	Payload map[string]any
}

func newFakeAPI(t *testing.T, responses map[string]string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("unreadable payload: %v", err)
		}
		method := r.URL.Path[len("/"):]
		calls = append(calls, recordedCall{
			Method:  method,
			Auth:    r.Header.Get("Authorization"),
			Payload: payload,
		})
		response, ok := responses[method]
		if !ok {
			response = `{"ok":true,"channel":"C1","ts":"1700000001.000100"}`
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(response)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BotToken: "xoxb-test", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestPostMessageReturnsMessageRef(t *testing.T) {
	server, calls := newFakeAPI(t, nil)
	client := newTestClient(t, server.URL)

	ref, err := client.PostMessage(context.Background(), "C1", announce.Message{Text: "hello"})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if ref.Channel != "C1" || ref.Timestamp != "1700000001.000100" {
		t.Fatalf("unexpected ref: %#v", ref)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected one api call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.Method != "chat.postMessage" {
		t.Fatalf("unexpected method: %s", call.Method)
	}
	if call.Auth != "Bearer xoxb-test" {
		t.Fatalf("unexpected auth header: %s", call.Auth)
	}
	if call.Payload["channel"] != "C1" || call.Payload["text"] != "hello" {
		t.Fatalf("unexpected payload: %#v", call.Payload)
	}
}

func TestPostMessageSerializesBlocks(t *testing.T) {
	server, calls := newFakeAPI(t, nil)
	client := newTestClient(t, server.URL)

	card := announce.VotingCard(announce.CardInput{SubmissionID: "sub-1", Description: "d", ImageURL: "u", Votes: 0})
	if _, err := client.PostMessage(context.Background(), "C1", card); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	blocks, ok := (*calls)[0].Payload["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected two serialized blocks, got %#v", (*calls)[0].Payload["blocks"])
	}
}

func TestUpdateMessageTargetsTimestamp(t *testing.T) {
	server, calls := newFakeAPI(t, nil)
	client := newTestClient(t, server.URL)

	if err := client.UpdateMessage(context.Background(), "C1", "1700000001.000100", announce.Message{Text: "updated"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	call := (*calls)[0]
	if call.Method != "chat.update" {
		t.Fatalf("unexpected method: %s", call.Method)
	}
	if call.Payload["ts"] != "1700000001.000100" {
		t.Fatalf("unexpected ts: %v", call.Payload["ts"])
	}
}

func TestPostEphemeralTargetsUser(t *testing.T) {
	server, calls := newFakeAPI(t, nil)
	client := newTestClient(t, server.URL)

	if err := client.PostEphemeral(context.Background(), "C1", "U1", "only you"); err != nil {
		t.Fatalf("ephemeral failed: %v", err)
	}

	call := (*calls)[0]
	if call.Method != "chat.postEphemeral" || call.Payload["user"] != "U1" {
		t.Fatalf("unexpected call: %#v", call)
	}
}

func TestAPIErrorSurfacesAsFailure(t *testing.T) {
	server, _ := newFakeAPI(t, map[string]string{
		"chat.postMessage": `{"ok":false,"error":"channel_not_found"}`,
	})
	client := newTestClient(t, server.URL)

	_, err := client.PostMessage(context.Background(), "C-MISSING", announce.Message{Text: "hello"})
	if !errors.Is(err, ErrAPIFailure) {
		t.Fatalf("expected api failure, got %v", err)
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); !errors.Is(err, ErrInvalidClientConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
