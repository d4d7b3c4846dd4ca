package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/groblegark/apgate/internal/model"
)

func TestHTTPClient_ImplementsApprovalClient(t *testing.T) {
	var _ ApprovalClient = (*HTTPClient)(nil)
}

func TestSubmitRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/requests" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var in SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if in.Tool != "Bash" || in.SessionID != "sess-1" {
			t.Errorf("got %+v", in)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.Request{
			ID:        "apr-abc",
			SessionID: in.SessionID,
			Action:    model.Action{Tool: in.Tool, Input: in.ToolInput},
			Status:    model.StatusPending,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	got, err := c.SubmitRequest(context.Background(), &SubmitRequest{
		SessionID: "sess-1",
		Tool:      "Bash",
		ToolInput: json.RawMessage(`{"command":"ls"}`),
	})
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if got.ID != "apr-abc" || got.Status != model.StatusPending {
		t.Errorf("got %+v", got)
	}
}

func TestGetRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/requests/apr-abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(model.Request{ID: "apr-abc", Status: model.StatusApproved})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	got, err := c.GetRequest(context.Background(), "apr-abc")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "request not found"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.GetRequest(context.Background(), "apr-nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "request not found" {
		t.Errorf("got %+v", apiErr)
	}
}

func TestGetEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/requests/apr-abc/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"events": []model.Event{
			{ID: 1, Topic: "approvals.request.created", RequestID: "apr-abc"},
			{ID: 2, Topic: "approvals.request.denied", RequestID: "apr-abc", Actor: "bob"},
		}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	evts, err := c.GetEvents(context.Background(), "apr-abc")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	if evts[1].Actor != "bob" {
		t.Errorf("Actor = %q, want bob", evts[1].Actor)
	}
}

func TestListRequests_QueryEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "pending,approved" || q.Get("tool") != "Bash" || q.Get("limit") != "10" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(ListRequestsResponse{
			Requests: []*model.Request{{ID: "apr-1"}},
			Total:    1,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	resp, err := c.ListRequests(context.Background(), &ListRequestsRequest{
		Status: []string{"pending", "approved"},
		Tool:   "Bash",
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if resp.Total != 1 || len(resp.Requests) != 1 {
		t.Errorf("got %+v", resp)
	}
}

func TestRespond_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "request already decided", "status": "timed_out"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Respond(context.Background(), "apr-abc", &RespondRequest{
		Decision:    "approve",
		RespondedBy: "alice",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", apiErr.StatusCode)
	}
}

func TestCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/requests/cleanup" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if in["older_than"] != "24h0m0s" {
			t.Errorf("older_than = %q", in["older_than"])
		}
		json.NewEncoder(w).Encode(map[string]int{"deleted": 3})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	n, err := c.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret")
	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status != "ok" {
		t.Errorf("status = %q", status)
	}
}
