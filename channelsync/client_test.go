package channelsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func stubToken(token string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return token, nil }
}

func TestCallRefusesAtZeroRemainingWithoutTransmitting(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := &channelClient{
		baseURL:   srv.URL,
		http:      srv.Client(),
		db:        newTestDB(t),
		token:     stubToken("tok"),
		remaining: 0,
		resetsIn:  42,
	}

	_, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read")
	if !IsRateLimitError(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("request was transmitted despite zero remaining credits")
	}
}

func TestCallAdoptsRemainingFromHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerFiveMinRemaining, "5")
		w.Header().Set(headerFiveMinResetsIn, "120")
		w.Header().Set(headerRequestCost, "2")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := &channelClient{
		baseURL:   srv.URL,
		http:      srv.Client(),
		db:        newTestDB(t),
		token:     stubToken("tok"),
		remaining: 100,
	}

	if _, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if client.remaining != 5 {
		t.Errorf("header value should overwrite the estimate: got %d, want 5", client.remaining)
	}
	if client.resetsIn != 120 {
		t.Errorf("resetsIn not adopted: got %d, want 120", client.resetsIn)
	}
}

func TestCallDecrementsByCostWithoutHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := &channelClient{
		baseURL:   srv.URL,
		http:      srv.Client(),
		db:        newTestDB(t),
		token:     stubToken("tok"),
		remaining: 10,
	}

	if _, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if client.remaining != 9 {
		t.Errorf("expected optimistic decrement to 9, got %d", client.remaining)
	}
}

func TestCallRefreshesOnceOn401(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	var refreshes int32
	client := &channelClient{
		baseURL: srv.URL,
		http:    srv.Client(),
		db:      newTestDB(t),
		token:   stubToken("stale"),
		refresh: func(context.Context, string) (string, error) {
			atomic.AddInt32(&refreshes, 1)
			return "fresh", nil
		},
		remaining: 10,
	}

	resp, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after retry, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&refreshes) != 1 {
		t.Errorf("expected exactly one reactive refresh, got %d", refreshes)
	}
}

func TestCallPersistentlyUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &channelClient{
		baseURL:   srv.URL,
		http:      srv.Client(),
		db:        newTestDB(t),
		token:     stubToken("stale"),
		refresh:   stubToken("still-stale"),
		remaining: 10,
	}

	_, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read")
	if !IsAuthError(err) {
		t.Errorf("expected AuthError after failed retry, got %v", err)
	}
}

func TestCallZeroesRemainingOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerFiveMinResetsIn, "180")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := &channelClient{
		baseURL:   srv.URL,
		http:      srv.Client(),
		db:        newTestDB(t),
		token:     stubToken("tok"),
		remaining: 50,
	}

	_, err := client.Call(context.Background(), "GET", "/bookings", nil, nil, "read")
	if !IsRateLimitError(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if client.remaining != 0 {
		t.Errorf("remaining should drop to zero on 429, got %d", client.remaining)
	}
}

func TestParseRateLimitsDefaults(t *testing.T) {
	limits := parseRateLimits(http.Header{})
	if limits.Present {
		t.Error("no headers should mean Present=false")
	}
	if limits.Cost != 1 {
		t.Errorf("default cost should be 1, got %d", limits.Cost)
	}
}
