package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchNotesDecodesAndSendsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("since_days"); got != "3" {
			t.Errorf("since_days = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"notes":[{"id":"n1","title":"standup","body":"notes body","tags":["work"]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "token-1")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	notes, err := c.FetchNotes(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchNotes error: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n1" || notes[0].Title != "standup" {
		t.Fatalf("unexpected notes: %+v", notes)
	}
}

func TestFetchNotesEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"notes":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	notes, err := c.FetchNotes(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchNotes error: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no notes, got %d", len(notes))
	}
}

func TestFetchNotesTypedErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthExpired},
		{http.StatusForbidden, ErrAuthExpired},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c, _ := NewClient(srv.URL, "t")
		_, err := c.FetchNotes(context.Background(), 1)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestFetchNotesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "t")
	_, err := c.FetchNotes(context.Background(), 1)
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrRateLimited) {
		t.Fatalf("500 must not map to a typed failure: %v", err)
	}
}
