package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finch-chat/finch/internal/async"
)

func TestParseBaseURL_Normalizes(t *testing.T) {
	u, err := parseBaseURL("perch.example.com:9000")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Host != "perch.example.com:9000" {
		t.Fatalf("url = %q, want http host:port", u.String())
	}

	u, err = parseBaseURL("https://example.com/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}

	if _, err := parseBaseURL("  "); err == nil {
		t.Fatal("empty service url should be rejected")
	}
}

func TestClient_LoginAndAuthorizedRequests(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/session" && r.Method == http.MethodPost:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["username"] != "alice" {
				http.Error(w, `{"error":"unknown user"}`, http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(Credentials{AccountID: "alice", SessionKey: "key-1"})
		case r.URL.Path == "/api/me":
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(User{Username: "alice", DisplayName: "Alice"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	snap := c.Login("alice", "secret").Wait()
	if snap.State != async.Succeeded {
		t.Fatalf("login state = %v (%v), want Succeeded", snap.State, snap.Err)
	}
	if snap.Value.SessionKey != "key-1" {
		t.Fatalf("credentials = %+v, want session key-1", snap.Value)
	}

	c.SetCredentials(snap.Value)
	userSnap := c.GetAuthenticatedUser().Wait()
	if userSnap.State != async.Succeeded || userSnap.Value.Username != "alice" {
		t.Fatalf("user snapshot = %+v, want alice", userSnap)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("Authorization = %q, want bearer session key", gotAuth)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/me":
			http.Error(w, `{"error":"bad session"}`, http.StatusUnauthorized)
		case "/api/calendar":
			http.Error(w, `{"error":"down"}`, http.StatusServiceUnavailable)
		case "/api/threads":
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	snap := c.GetAuthenticatedUser().Wait()
	if snap.State != async.Failed || !errors.Is(snap.Err, ErrUnauthorized) {
		t.Fatalf("unauthorized snapshot = %+v, want ErrUnauthorized", snap)
	}
	if !IsValidation(snap.Err) {
		t.Fatalf("IsValidation(%v) = false, want true", snap.Err)
	}

	calSnap := c.GetCalendar().Wait()
	if calSnap.State != async.Failed || !IsTransient(calSnap.Err) {
		t.Fatalf("5xx snapshot = %+v, want transient failure", calSnap)
	}

	threadSnap := c.RefreshThreads(nil).Wait()
	if threadSnap.State != async.Failed || !IsValidation(threadSnap.Err) {
		t.Fatalf("4xx snapshot = %+v, want validation failure", threadSnap)
	}
	var se *ServiceError
	if !errors.As(threadSnap.Err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("error = %v, want ServiceError 400", threadSnap.Err)
	}
}

func TestClient_RefreshThreadsHonorsToken(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]Thread{"threads": nil})
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	tok := async.NewToken()
	res := c.RefreshThreads(tok)
	tok.Cancel()

	select {
	case <-res.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("canceled refresh never terminated")
	}
	if got := res.State(); got != async.Canceled {
		t.Fatalf("state = %v, want Canceled", got)
	}
}

func TestClient_FetchPhotoReturnsRawBytes(t *testing.T) {
	t.Parallel()

	photo := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photos/bob" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(photo)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	snap := c.FetchPhoto("bob").Wait()
	if snap.State != async.Succeeded || string(snap.Value) != string(photo) {
		t.Fatalf("photo snapshot = %+v, want raw bytes", snap)
	}
}

func TestClient_SearchUsersEncodesQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(map[string][]User{"users": {{Username: "bob"}}})
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	snap := c.SearchUsers("bo b").Wait()
	if snap.State != async.Succeeded || len(snap.Value) != 1 {
		t.Fatalf("search snapshot = %+v, want one user", snap)
	}
	if gotQuery != "bo b" {
		t.Fatalf("query = %q, want the raw term", gotQuery)
	}
}
