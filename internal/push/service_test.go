package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func newTestService(send sendFunc) *Service {
	s := NewService("test-public", "test-private", "mailto:ops@example.com")
	s.send = send
	return s
}

func TestBroadcastResultsKeepInputOrder(t *testing.T) {
	var mu sync.Mutex
	delivered := make(map[string][]byte)
	service := newTestService(func(_ context.Context, payload []byte, sub Subscription) (int, error) {
		mu.Lock()
		delivered[sub.Endpoint] = payload
		mu.Unlock()
		return 201, nil
	})

	subs := []Subscription{
		{Endpoint: "https://push.example/a"},
		{Endpoint: "https://push.example/b"},
		{Endpoint: "https://push.example/c"},
	}
	results := service.Broadcast(context.Background(), Notification{Title: "New document", Body: "Passport received"}, subs)

	if len(results) != len(subs) {
		t.Fatalf("expected %d results, got %d", len(subs), len(results))
	}
	for i, sub := range subs {
		if results[i].Endpoint != sub.Endpoint {
			t.Fatalf("result %d out of order: %+v", i, results[i])
		}
		if results[i].Err != nil {
			t.Fatalf("unexpected error for %s: %v", sub.Endpoint, results[i].Err)
		}
	}

	var notification Notification
	if err := json.Unmarshal(delivered["https://push.example/b"], &notification); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if notification.Title != "New document" {
		t.Fatalf("payload lost title: %+v", notification)
	}
}

func TestBroadcastMarksGoneSubscriptions(t *testing.T) {
	statuses := map[string]int{
		"https://push.example/ok":      201,
		"https://push.example/expired": 410,
		"https://push.example/missing": 404,
	}
	service := newTestService(func(_ context.Context, _ []byte, sub Subscription) (int, error) {
		return statuses[sub.Endpoint], nil
	})

	results := service.Broadcast(context.Background(), Notification{Title: "t"}, []Subscription{
		{Endpoint: "https://push.example/ok"},
		{Endpoint: "https://push.example/expired"},
		{Endpoint: "https://push.example/missing"},
	})

	if results[0].Gone || results[0].Err != nil {
		t.Fatalf("healthy endpoint flagged: %+v", results[0])
	}
	for _, result := range results[1:] {
		if !result.Gone {
			t.Fatalf("expected %s marked gone", result.Endpoint)
		}
		if result.Err == nil {
			t.Fatalf("gone result must carry an error: %+v", result)
		}
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	sendErr := errors.New("tls handshake failed")
	service := newTestService(func(_ context.Context, _ []byte, sub Subscription) (int, error) {
		if sub.Endpoint == "https://push.example/bad" {
			return 0, sendErr
		}
		return 201, nil
	})

	results := service.Broadcast(context.Background(), Notification{Title: "t"}, []Subscription{
		{Endpoint: "https://push.example/bad"},
		{Endpoint: "https://push.example/good"},
	})

	if !errors.Is(results[0].Err, sendErr) {
		t.Fatalf("expected transport error, got %v", results[0].Err)
	}
	if results[0].Gone {
		t.Fatal("transport failure is not a gone subscription")
	}
	if results[1].Err != nil {
		t.Fatalf("failure leaked to the other endpoint: %v", results[1].Err)
	}
}

func TestBroadcastRejectedEndpointStatus(t *testing.T) {
	service := newTestService(func(_ context.Context, _ []byte, _ Subscription) (int, error) {
		return 429, nil
	})

	results := service.Broadcast(context.Background(), Notification{Title: "t"}, []Subscription{{Endpoint: "e"}})
	if results[0].Err == nil {
		t.Fatal("4xx status must surface as an error")
	}
	if results[0].Gone {
		t.Fatal("429 is retryable, not gone")
	}
}

func TestEnabledRequiresBothKeys(t *testing.T) {
	if !NewService("pub", "priv", "mailto:a@b.c").Enabled() {
		t.Fatal("expected enabled with both keys")
	}
	if NewService("pub", "", "mailto:a@b.c").Enabled() {
		t.Fatal("missing private key must disable push")
	}
	if NewService("", "priv", "mailto:a@b.c").Enabled() {
		t.Fatal("missing public key must disable push")
	}
}
