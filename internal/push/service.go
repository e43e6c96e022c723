// Package push delivers Web Push notifications to stored browser
// subscriptions.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Notification is the payload shown by the service worker. Fields mirror the
// browser Notification options the frontend passes through verbatim.
type Notification struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Icon               string `json:"icon,omitempty"`
	Badge              string `json:"badge,omitempty"`
	Tag                string `json:"tag,omitempty"`
	URL                string `json:"url,omitempty"`
	Type               string `json:"type,omitempty"`
	ID                 string `json:"id,omitempty"`
	Vibrate            []int  `json:"vibrate,omitempty"`
	RequireInteraction bool   `json:"requireInteraction,omitempty"`
	Silent             bool   `json:"silent,omitempty"`
}

// Subscription is one browser push endpoint with its encryption keys.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Result reports one delivery attempt. Gone means the endpoint rejected the
// subscription permanently and it should be pruned.
type Result struct {
	Endpoint string
	Err      error
	Gone     bool
}

// sendFunc performs one delivery; swapped out in tests.
type sendFunc func(ctx context.Context, payload []byte, sub Subscription) (statusCode int, err error)

// Service fans a notification out to every subscription. One endpoint's
// failure never blocks the others.
type Service struct {
	options webpush.Options
	send    sendFunc
}

func NewService(vapidPublicKey, vapidPrivateKey, subscriber string) *Service {
	s := &Service{
		options: webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  vapidPublicKey,
			VAPIDPrivateKey: vapidPrivateKey,
			TTL:             60,
		},
	}
	s.send = s.sendWebPush
	return s
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.options.VAPIDPublicKey != "" && s.options.VAPIDPrivateKey != ""
}

func (s *Service) sendWebPush(ctx context.Context, payload []byte, sub Subscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &s.options)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Broadcast sends the notification to all subscriptions concurrently and
// returns one Result per subscription in input order.
func (s *Service) Broadcast(ctx context.Context, notification Notification, subs []Subscription) []Result {
	payload, _ := json.Marshal(notification)

	results := make([]Result, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub Subscription) {
			defer wg.Done()
			results[i] = s.deliver(ctx, payload, sub)
		}(i, sub)
	}
	wg.Wait()
	return results
}

func (s *Service) deliver(ctx context.Context, payload []byte, sub Subscription) Result {
	status, err := s.send(ctx, payload, sub)
	result := Result{Endpoint: sub.Endpoint}
	if err != nil {
		result.Err = err
		return result
	}
	switch {
	case status == 404 || status == 410:
		result.Gone = true
		result.Err = fmt.Errorf("subscription gone (status %d)", status)
	case status >= 400:
		result.Err = fmt.Errorf("push endpoint returned status %d", status)
	}
	return result
}
