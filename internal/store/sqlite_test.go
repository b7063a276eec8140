package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	created := time.Now().Truncate(time.Millisecond)

	if err := repo.RecordSessionCreated("session-a1", "shell", "/bin/bash", created); err != nil {
		t.Fatal(err)
	}

	rec, err := repo.GetSession(ctx, "session-a1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("session not found after insert")
	}
	if rec.Preset != "shell" || rec.Command != "/bin/bash" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, created)
	}
	if rec.EndedAt != nil {
		t.Error("ended_at set before session ended")
	}

	ended := created.Add(5 * time.Second)
	if err := repo.RecordSessionEnded("session-a1", "exited", ended); err != nil {
		t.Fatal(err)
	}
	rec, err = repo.GetSession(ctx, "session-a1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.FinalState != "exited" {
		t.Errorf("final state = %q", rec.FinalState)
	}
	if rec.EndedAt == nil || !rec.EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", rec.EndedAt, ended)
	}
}

func TestGetSessionMissing(t *testing.T) {
	repo := newTestStore(t)
	rec, err := repo.GetSession(context.Background(), "session-none")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil", rec)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	repo := newTestStore(t)
	base := time.Now()
	for i, id := range []string{"session-old", "session-mid", "session-new"} {
		if err := repo.RecordSessionCreated(id, "shell", "", base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := repo.ListSessions(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].ID != "session-new" || recs[1].ID != "session-mid" {
		t.Errorf("order = %s, %s", recs[0].ID, recs[1].ID)
	}
}

func TestMessagesAndExecHistory(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := repo.RecordMessage("session-m", "user", "run the tests", now); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordMessage("session-m", "assistant", "done, 12 passed", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordExec("session-m", "go test ./...", "success", 2300, now); err != nil {
		t.Fatal(err)
	}

	msgs, err := repo.ListMessages(ctx, "session-m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}

	execs, err := repo.ListExecs(ctx, "session-m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].Command != "go test ./..." || execs[0].DurationMs != 2300 {
		t.Errorf("execs = %+v", execs)
	}

	// Other sessions see nothing.
	other, err := repo.ListMessages(ctx, "session-other", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("other session messages = %+v", other)
	}
}
