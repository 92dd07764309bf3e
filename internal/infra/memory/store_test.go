package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-live-service/internal/domain"
	"classroom-live-service/internal/infra/memory"
)

func TestCreateRoomRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	room := domain.Room{ID: "room-1", CreatorName: "Teacher", CreatedAt: time.Now()}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := store.CreateRoom(ctx, room); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	store := memory.NewStore()
	if _, err := store.GetRoom(context.Background(), "nope"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestBindCreatorConnOnlyWhileUnbound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.CreateRoom(ctx, domain.Room{ID: "room-1"}); err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := store.BindCreatorConn(ctx, "room-1", "c1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := store.BindCreatorConn(ctx, "room-1", "c2"); err != nil {
		t.Fatalf("second bind: %v", err)
	}

	room, _ := store.GetRoom(ctx, "room-1")
	if room.CreatorConn != "c1" {
		t.Fatalf("expected first bind to stick, got %q", room.CreatorConn)
	}

	if err := store.BindCreatorConn(ctx, "missing", "c1"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestOpenSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	if _, err := store.OpenSession(ctx, "room-1"); !errors.Is(err, domain.ErrNoOpenSession) {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}

	sess := domain.Session{ID: "s1", RoomID: "room-1", StartedAt: time.Now()}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.OpenSession(ctx, "room-1")
	if err != nil || got.ID != "s1" {
		t.Fatalf("expected open session s1, got %+v err %v", got, err)
	}

	endedAt := time.Now()
	if err := store.EndSession(ctx, "s1", endedAt); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := store.OpenSession(ctx, "room-1"); !errors.Is(err, domain.ErrNoOpenSession) {
		t.Fatalf("expected no open session after end, got %v", err)
	}

	// Ending an ended or unknown session stays a no-op.
	if err := store.EndSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("repeated end: %v", err)
	}
	if err := store.EndSession(ctx, "missing", time.Now()); err != nil {
		t.Fatalf("unknown end: %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	base := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		sess := domain.Session{ID: id, RoomID: "room-1", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create session %s: %v", id, err)
		}
	}
	if err := store.CreateSession(ctx, domain.Session{ID: "other", RoomID: "room-2", StartedAt: base}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	sessions, err := store.ListSessions(ctx, "room-1", 2)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s3" || sessions[1].ID != "s2" {
		t.Fatalf("expected [s3 s2], got %+v", sessions)
	}
}

func TestQuizAndResponseCounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	if err := store.CreateQuiz(ctx, domain.Quiz{ID: "q1", SessionID: "s1"}); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := store.CreateQuiz(ctx, domain.Quiz{ID: "q2", SessionID: "s1"}); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := store.CreateQuiz(ctx, domain.Quiz{ID: "q3", SessionID: "s2"}); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	if n, _ := store.CountQuizzes(ctx, "s1"); n != 2 {
		t.Fatalf("expected 2 quizzes for s1, got %d", n)
	}

	if err := store.CreateResponse(ctx, domain.Response{ID: "r1", SessionID: "s1", DisplayName: "A"}); err != nil {
		t.Fatalf("create response: %v", err)
	}
	responses, err := store.ListResponses(ctx, "s1")
	if err != nil || len(responses) != 1 || responses[0].ID != "r1" {
		t.Fatalf("expected [r1], got %+v err %v", responses, err)
	}
	if other, _ := store.ListResponses(ctx, "s2"); len(other) != 0 {
		t.Fatalf("expected no responses for s2, got %+v", other)
	}
}

func TestRoomsByOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	base := time.Now()
	rooms := []domain.Room{
		{ID: "room-1", CreatorUserID: "user-1", CreatorKey: "key-1", CreatedAt: base},
		{ID: "room-2", CreatorUserID: "user-2", CreatorKey: "key-2", CreatedAt: base.Add(time.Minute)},
		{ID: "room-3", CreatorUserID: "user-1", CreatorKey: "key-3", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, room := range rooms {
		if err := store.CreateRoom(ctx, room); err != nil {
			t.Fatalf("create room %s: %v", room.ID, err)
		}
	}

	got, err := store.RoomsByOwner(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("rooms by user: %v", err)
	}
	if len(got) != 2 || got[0] != "room-1" || got[1] != "room-3" {
		t.Fatalf("expected [room-1 room-3], got %v", got)
	}

	got, err = store.RoomsByOwner(ctx, "", []string{"key-2", "bogus"})
	if err != nil {
		t.Fatalf("rooms by key: %v", err)
	}
	if len(got) != 1 || got[0] != "room-2" {
		t.Fatalf("expected [room-2], got %v", got)
	}

	got, err = store.RoomsByOwner(ctx, "", nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no rooms without identity, got %v err %v", got, err)
	}
}
