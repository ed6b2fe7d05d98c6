package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ahjosync/internal/ahjo"
	"ahjosync/internal/db"
	"ahjosync/internal/migrate"
	"ahjosync/internal/repo"
	"ahjosync/internal/worker"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func newRemote(t *testing.T, handler http.HandlerFunc) *ahjo.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &ahjo.Client{BaseURL: srv.URL, Token: "t", HTTPClient: srv.Client()}
}

func TestExecutorImportsCase(t *testing.T) {
	r := newTestRepo(t)
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"CaseID": "HEL 2024-001", "Title": "Otsikko"}`)
	})
	e := &ImportExecutor{Client: client, Repo: r, Lang: "fi"}

	out, err := e.Execute(context.Background(), "case", []string{"HEL 2024-001"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome: %+v", out)
	}
	stored, err := r.GetCase(context.Background(), "HEL 2024-001")
	if err != nil {
		t.Fatalf("stored case missing: %v", err)
	}
	if stored.Title != "Otsikko" {
		t.Errorf("title = %q", stored.Title)
	}
}

func TestExecutorSuspendsWhenRemoteDown(t *testing.T) {
	r := newTestRepo(t)
	// Closed server: every request fails at the transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := &ahjo.Client{BaseURL: srv.URL, Token: "t", HTTPClient: srv.Client()}
	srv.Close()
	e := &ImportExecutor{Client: client, Repo: r, Lang: "fi"}

	_, err := e.Execute(context.Background(), "case", []string{"x"})
	if !errors.Is(err, worker.ErrSuspended) {
		t.Fatalf("expected suspend, got %v", err)
	}
}

func TestExecutorDeletedRecordDoesNotSuspend(t *testing.T) {
	r := newTestRepo(t)
	// The remote is up; this one record is gone. The task must fail and
	// follow the retry chain instead of suspending every other task.
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})
	e := &ImportExecutor{Client: client, Repo: r, Lang: "fi"}

	_, err := e.Execute(context.Background(), "case", []string{"HEL 2024-000404"})
	if err == nil {
		t.Fatal("expected error for a missing record")
	}
	if errors.Is(err, worker.ErrSuspended) {
		t.Fatal("a 404 for one record must not suspend the run")
	}
}

func TestExecutorRemoteErrorStatusSuspends(t *testing.T) {
	r := newTestRepo(t)
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	e := &ImportExecutor{Client: client, Repo: r, Lang: "fi"}

	_, err := e.Execute(context.Background(), "case", []string{"x"})
	if !errors.Is(err, worker.ErrSuspended) {
		t.Fatalf("expected suspend for a 503, got %v", err)
	}
}

func TestExecutorBadRecordIsNotSuspend(t *testing.T) {
	r := newTestRepo(t)
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"CaseID": ""}`)
	})
	e := &ImportExecutor{Client: client, Repo: r, Lang: "fi"}

	_, err := e.Execute(context.Background(), "case", []string{"broken"})
	if err == nil {
		t.Fatal("expected error for undecodable record")
	}
	if errors.Is(err, worker.ErrSuspended) {
		t.Fatal("a single bad record must not suspend the run")
	}
}

func TestExecutorUnsupportedType(t *testing.T) {
	e := &ImportExecutor{Repo: newTestRepo(t)}
	out, err := e.Execute(context.Background(), "widget", []string{"x"})
	if err != nil {
		t.Fatalf("unsupported type must fail the outcome, not error: %v", err)
	}
	if out.Completed || out.Code == "" {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestOrganizationTreeWithCycle(t *testing.T) {
	r := newTestRepo(t)
	fetches := map[string]int{}
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		id := req.URL.Path[len("/organizations/"):]
		fetches[id]++
		switch id {
		case "A":
			fmt.Fprint(w, `{"Organization": {"ID": "A", "Name": "Root"}, "Children": [{"ID": "B", "Name": "Child"}]}`)
		case "B":
			// Remote data loops back to the root.
			fmt.Fprint(w, `{"Organization": {"ID": "B", "Name": "Child"}, "Children": [{"ID": "A", "Name": "Root"}]}`)
		default:
			http.NotFound(w, req)
		}
	})
	s := &Syncer{Client: client, Repo: r, Lang: "fi"}

	n, err := s.OrganizationTree(context.Background(), "A", 10)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d organizations, want 2", n)
	}
	if fetches["A"] != 1 || fetches["B"] != 1 {
		t.Fatalf("cycle guard failed, fetches: %v", fetches)
	}
	if _, err := r.GetOrganization(context.Background(), "B"); err != nil {
		t.Fatalf("child not stored: %v", err)
	}
}

func TestOrganizationTreeRespectsMaxDepth(t *testing.T) {
	r := newTestRepo(t)
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		id := req.URL.Path[len("/organizations/"):]
		next := id + "x"
		fmt.Fprintf(w, `{"Organization": {"ID": %q, "Name": "org"}, "Children": [{"ID": %q, "Name": "org"}]}`, id, next)
	})
	s := &Syncer{Client: client, Repo: r, Lang: "fi"}

	n, err := s.OrganizationTree(context.Background(), "A", 2)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	// Root plus two levels below it.
	if n != 3 {
		t.Fatalf("stored %d organizations, want 3", n)
	}
}

func TestCompositionsOverLocalSet(t *testing.T) {
	r := newTestRepo(t)
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		id := req.URL.Path[len("/decisionmakers/"):]
		fmt.Fprintf(w, `{"Organization": {"ID": %q, "Name": "org"}, "Composition": [{"Name": "Jäsen"}], "Language": "fi"}`, id)
	})
	s := &Syncer{Client: client, Repo: r, Lang: "fi"}

	// Seed two decisionmakers without compositions.
	if _, err := s.Compositions(context.Background(), []string{"02900", "00400"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := s.Compositions(context.Background(), nil)
	if err != nil {
		t.Fatalf("refresh all: %v", err)
	}
	if n != 2 {
		t.Fatalf("refreshed %d, want 2", n)
	}
	dm, err := r.GetDecisionmaker(context.Background(), "02900")
	if err != nil {
		t.Fatal(err)
	}
	if len(dm.Composition) != 1 {
		t.Errorf("composition lost: %+v", dm)
	}
}

func TestBackfillCasesStoresEveryChunk(t *testing.T) {
	r := newTestRepo(t)
	call := 0
	client := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		call++
		fmt.Fprintf(w, `{"cases": [{"CaseID": "case-%d", "Title": "t"}]}`, call)
	})
	s := &Syncer{Client: client, Repo: r, Lang: "fi"}

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	res, err := s.BackfillCases(context.Background(), after, before, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Stored != 2 || res.Fetched != 2 {
		t.Fatalf("result: %+v", res)
	}
	if _, err := r.GetCase(context.Background(), "case-2"); err != nil {
		t.Fatalf("second chunk's case missing: %v", err)
	}
}
