package gmail

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	conndomain "mailpilot-backend/internal/connection/domain"
	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// newTestGmail wires the generated Gmail client at a local server so the
// sync paths can be exercised without credentials.
func newTestGmail(t *testing.T, handler http.Handler) *gmail.Service {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := gmail.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("gmail service: %v", err)
	}
	return srv
}

func watermarkConn(watermark string) *conndomain.MailConnection {
	conn := &conndomain.MailConnection{ID: "c1", EmailAddress: "owner@example.com"}
	if watermark != "" {
		conn.LastHistoryID = &watermark
	}
	return conn
}

func TestSyncExpiredWatermarkFallsBackOnce(t *testing.T) {
	var historyCalls, listCalls, profileCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		historyCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Start history ID is too old"}}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		profileCalls++
		w.Write([]byte(`{"emailAddress":"owner@example.com","historyId":"777"}`))
	})

	svc := NewService("id", "secret", 25)
	result, err := svc.sync(newTestGmail(t, mux), watermarkConn("12345"))
	if err != nil {
		t.Fatal(err)
	}

	if !result.FullSync {
		t.Error("expected a full-sync result")
	}
	if result.NewHistoryID != "777" {
		t.Errorf("watermark = %q, want 777 (from the profile fetch)", result.NewHistoryID)
	}
	if len(result.Refs) != 2 || result.Refs[0].ID != "m1" || result.Refs[1].ID != "m2" {
		t.Errorf("refs = %+v", result.Refs)
	}
	if historyCalls != 1 || listCalls != 1 || profileCalls != 1 {
		t.Errorf("calls history=%d list=%d profile=%d, want exactly one each", historyCalls, listCalls, profileCalls)
	}
}

func TestSyncIncremental(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		// The same message appearing in two history entries must not
		// produce two refs.
		w.Write([]byte(`{
			"history": [
				{"messagesAdded": [{"message": {"id": "m9", "threadId": "t9"}}]},
				{"messagesAdded": [{"message": {"id": "m9", "threadId": "t9"}}]}
			],
			"historyId": "900"
		}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
	})

	svc := NewService("id", "secret", 25)
	result, err := svc.sync(newTestGmail(t, mux), watermarkConn("100"))
	if err != nil {
		t.Fatal(err)
	}

	if result.FullSync {
		t.Error("incremental path must not report a full sync")
	}
	if len(result.Refs) != 1 || result.Refs[0].ID != "m9" {
		t.Errorf("refs = %+v, want exactly one m9", result.Refs)
	}
	if result.NewHistoryID != "900" {
		t.Errorf("watermark = %q, want 900", result.NewHistoryID)
	}
	if listCalls != 0 {
		t.Errorf("message listing called %d times during an incremental sync", listCalls)
	}
}

func TestSyncIncrementalTransportErrorDoesNotFallBack(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
	})

	svc := NewService("id", "secret", 25)
	_, err := svc.sync(newTestGmail(t, mux), watermarkConn("100"))
	if !errors.Is(err, pipedomain.ErrSyncTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if listCalls != 0 {
		t.Error("a 5xx on history.list must not trigger the full-sync fallback")
	}
}

func TestSyncWithoutWatermarkRunsFullSync(t *testing.T) {
	var historyCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		historyCalls++
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"emailAddress":"owner@example.com","historyId":"5"}`))
	})

	svc := NewService("id", "secret", 25)
	result, err := svc.sync(newTestGmail(t, mux), watermarkConn(""))
	if err != nil {
		t.Fatal(err)
	}

	if !result.FullSync || result.NewHistoryID != "5" {
		t.Errorf("result = %+v, want full sync with watermark 5", result)
	}
	if historyCalls != 0 {
		t.Error("no watermark means no incremental attempt")
	}
}
