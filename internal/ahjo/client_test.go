package ahjo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := &Client{BaseURL: srv.URL, Token: "test-token", HTTPClient: srv.Client()}
	return c, srv
}

func TestGetCase(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cases/HEL%202024-001234" && r.URL.Path != "/cases/HEL 2024-001234" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization header %q", got)
		}
		if got := r.URL.Query().Get("apireqlang"); got != "fi" {
			t.Errorf("apireqlang %q", got)
		}
		fmt.Fprint(w, `{
			"CaseID": "HEL 2024-001234",
			"CaseIDLabel": "HEL 2024-001234",
			"Title": "Talousarvio vuodelle 2025",
			"Created": "2024-03-01T10:15:00",
			"Status": "open",
			"Handlings": [{"Sequence": 1, "Status": "scheduled"}],
			"Records": [{"Title": "Esitys", "NativeId": "n-1", "VersionSeriesId": "v-1"}]
		}`)
	}))
	defer srv.Close()

	got, err := c.GetCase(context.Background(), "HEL 2024-001234", "fi")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.ID != "HEL 2024-001234" || got.Title != "Talousarvio vuodelle 2025" {
		t.Errorf("case: %+v", got)
	}
	if got.Created == nil || got.Created.Year() != 2024 {
		t.Errorf("created not parsed: %v", got.Created)
	}
	if len(got.Handlings) != 1 || len(got.Records) != 1 {
		t.Errorf("nested records lost: %+v", got)
	}
}

func TestGetCaseMissingRequiredField(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"CaseID": "HEL 2024-000001"}`)
	}))
	defer srv.Close()

	_, err := c.GetCase(context.Background(), "HEL 2024-000001", "fi")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestMultiParentOrganizationRejected(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"Organization": {"ID": "U02", "Name": "Kaupunginkanslia"},
			"Parents": [
				{"ID": "U01", "Name": "Kaupunginhallitus"},
				{"ID": "U00", "Name": "Kaupunginvaltuusto"}
			]
		}`)
	}))
	defer srv.Close()

	_, err := c.GetOrganization(context.Background(), "U02", "fi")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindDataIntegrity {
		t.Fatalf("expected data-integrity error, got %v", err)
	}
}

func TestSingleParentOrganization(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"Organization": {"ID": "U02", "Name": "Kaupunginkanslia", "Existing": "1"},
			"Parents": [{"ID": "U01", "Name": "Kaupunginhallitus"}],
			"Children": [{"ID": "U021", "Name": "Talousosasto"}]
		}`)
	}))
	defer srv.Close()

	org, err := c.GetOrganization(context.Background(), "U02", "fi")
	if err != nil {
		t.Fatalf("GetOrganization: %v", err)
	}
	if org.Parent == nil || org.Parent.ID != "U01" {
		t.Errorf("parent: %+v", org.Parent)
	}
	if len(org.Children) != 1 || org.Children[0].ID != "U021" {
		t.Errorf("children: %+v", org.Children)
	}
	if !org.Info.Existing {
		t.Error("existing flag lost")
	}
}

func TestAuthFailure(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := c.GetTrustee(context.Background(), "123", "fi")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMissingConfigAndToken(t *testing.T) {
	c := &Client{}
	_, err := c.GetCase(context.Background(), "x", "fi")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}

	c = &Client{BaseURL: "http://localhost:1"}
	_, err = c.GetCase(context.Background(), "x", "fi")
	if !errors.As(err, &ae) || ae.Kind != KindAuth {
		t.Fatalf("expected auth error for missing token, got %v", err)
	}
}

func TestErrorKindPerStatus(t *testing.T) {
	status := http.StatusNotFound
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	// A reachable remote answering 404 or 500 is a request-level failure.
	for _, s := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		status = s
		_, err := c.GetCase(context.Background(), "HEL 2024-000404", "fi")
		var ae *Error
		if !errors.As(err, &ae) || ae.Kind != KindTransport {
			t.Fatalf("status %d: expected transport error, got %v", s, err)
		}
	}

	// Gateway-level statuses mean the remote itself is down.
	for _, s := range []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		status = s
		_, err := c.GetCase(context.Background(), "HEL 2024-000404", "fi")
		var ae *Error
		if !errors.As(err, &ae) || ae.Kind != KindUnavailable {
			t.Fatalf("status %d: expected unavailable error, got %v", s, err)
		}
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := &Client{BaseURL: srv.URL, Token: "test-token", HTTPClient: srv.Client()}
	srv.Close()

	_, err := c.GetCase(context.Background(), "x", "fi")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCaseBatchOneQueryPerChunkAscending(t *testing.T) {
	var starts []string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("handlingdate_start")
		end := r.URL.Query().Get("handlingdate_end")
		if start == "" || end == "" {
			t.Errorf("missing date bounds: %q %q", start, end)
		}
		starts = append(starts, start)
		// One case per chunk, named after the chunk start.
		fmt.Fprintf(w, `{"cases": [{"CaseID": "case-%d", "Title": "t"}]}`, len(starts))
	}))
	defer srv.Close()

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	batch := c.Cases("fi", after, before, 7*24*time.Hour)

	var ids []string
	for batch.Next(context.Background()) {
		ids = append(ids, batch.Case().ID)
	}
	if err := batch.Err(); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(starts) != 3 {
		t.Fatalf("expected 3 chunk queries, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] <= starts[i-1] {
			t.Fatalf("chunks out of order: %v", starts)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 cases, got %v", ids)
	}
}

func TestCaseBatchSkipsEmptyChunks(t *testing.T) {
	call := 0
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 2 {
			fmt.Fprint(w, `{"cases": []}`)
			return
		}
		fmt.Fprintf(w, `{"cases": [{"CaseID": "case-%d", "Title": "t"}]}`, call)
	}))
	defer srv.Close()

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	batch := c.Cases("fi", after, before, 7*24*time.Hour)

	var ids []string
	for batch.Next(context.Background()) {
		ids = append(ids, batch.Case().ID)
	}
	if err := batch.Err(); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 cases across a gap, got %v", ids)
	}
}

func TestCaseBatchStopsOnError(t *testing.T) {
	call := 0
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"cases": [{"CaseID": "ok", "Title": "t"}]}`)
	}))
	defer srv.Close()

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	batch := c.Cases("fi", after, before, 7*24*time.Hour)

	n := 0
	for batch.Next(context.Background()) {
		n++
	}
	if n != 1 {
		t.Fatalf("expected 1 case before the failure, got %d", n)
	}
	var ae *Error
	if err := batch.Err(); !errors.As(err, &ae) || ae.Kind != KindUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if batch.Next(context.Background()) {
		t.Fatal("Next must keep returning false after an error")
	}
}

func TestDecisionmakerBatch(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"decisionmakers": [{
			"Organization": {"ID": "02900", "Name": "Kaupunginvaltuusto"},
			"Composition": [{"Name": "Jäsen Yksi"}],
			"Language": "fi"
		}]}`)
	}))
	defer srv.Close()

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := c.Decisionmakers("fi", after, after.AddDate(0, 0, 7), 7*24*time.Hour)
	if !batch.Next(context.Background()) {
		t.Fatalf("expected one decisionmaker, err=%v", batch.Err())
	}
	dm := batch.Decisionmaker()
	if dm.Organization.Info.ID != "02900" || len(dm.Composition) != 1 {
		t.Errorf("decisionmaker: %+v", dm)
	}
}
