package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"classroom-live-service/internal/app"
	"classroom-live-service/internal/domain"
	pgstore "classroom-live-service/internal/infra/postgres"
	pgmigrations "classroom-live-service/internal/infra/postgres/migrations"
	redisinfra "classroom-live-service/internal/infra/redis"
)

// recorder stands in for the websocket hub; the flow under test is the
// coordinator against real Postgres and Redis.
type recorder struct {
	mu     sync.Mutex
	events map[string][]any // event type -> payloads
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]any)}
}

func (r *recorder) Send(_ string, event string, payload any) {
	r.mu.Lock()
	r.events[event] = append(r.events[event], payload)
	r.mu.Unlock()
}

func (r *recorder) SendMany(connIDs []string, event string, payload any) {
	r.mu.Lock()
	for range connIDs {
		r.events[event] = append(r.events[event], payload)
	}
	r.mu.Unlock()
}

func (r *recorder) last(event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payloads := r.events[event]
	if len(payloads) == 0 {
		return nil, false
	}
	return payloads[len(payloads)-1], true
}

func TestClassroomFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := redisinfra.NewStore(pgstore.NewStore(pool), redisClient, 5*time.Minute)
	pub := newRecorder()
	coordinator := app.NewCoordinatorWithClock(store, pub, time.Now, 10*time.Millisecond, 20*time.Millisecond)
	coordinator.SetSummaryCache(redisinfra.NewSummaryCache(redisClient, 5*time.Minute))

	room, err := coordinator.CreateRoom(ctx, "class-1", "Teacher", "acct-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	coordinator.Join(ctx, "class-1", "c1", "Teacher", "")
	coordinator.Join(ctx, "class-1", "c2", "Alice", "")
	coordinator.Join(ctx, "class-1", "c3", "Bob", "")

	sess, err := store.OpenSession(ctx, "class-1")
	if err != nil {
		t.Fatalf("expected an open session: %v", err)
	}
	if marker := redisClient.Get(ctx, "session:open:"+sess.ID).Val(); marker != "class-1" {
		t.Fatalf("expected redis liveness marker, got %q", marker)
	}

	correct := 1
	err = coordinator.CreateQuiz(ctx, "c1", app.QuizDraft{
		RoomID:          "class-1",
		Question:        "What is 2 + 2?",
		Options:         []string{"3", "4", "5"},
		CorrectIndex:    &correct,
		CreatedBy:       "Teacher",
		DurationSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quizPayload, ok := pub.last(domain.EventQuizNew)
	if !ok {
		t.Fatalf("expected quiz broadcast")
	}
	quizID := quizPayload.(domain.QuizAnnouncement).ID

	if err := coordinator.SubmitAnswer(ctx, quizID, "u2", "Alice", 1); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if err := coordinator.SubmitAnswer(ctx, quizID, "u3", "Bob", 0); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	if err := coordinator.EndSession(ctx, "class-1", "c1"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	payload, ok := pub.last(domain.EventSessionSummary)
	if !ok {
		t.Fatalf("expected session summary")
	}
	summary := payload.(domain.SessionSummary)
	if summary.TotalQuestions != 1 || summary.RespondentCount != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.CorrectByUser[0].DisplayName != "Alice" || summary.CorrectByUser[0].CorrectCount != 1 {
		t.Fatalf("expected Alice leading, got %+v", summary.CorrectByUser)
	}

	if err := redisClient.Get(ctx, "session:open:"+sess.ID).Err(); err != goredis.Nil {
		t.Fatalf("expected liveness marker removed, got %v", err)
	}

	// History via capability key is served through the summary cache.
	entries, err := coordinator.History(ctx, "", []string{room.CreatorKey})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != sess.ID || entries[0].EndedAt == nil {
		t.Fatalf("unexpected history: %+v", entries)
	}
	if err := redisClient.Get(ctx, "session:"+sess.ID+":summary").Err(); err != nil {
		t.Fatalf("expected cached summary: %v", err)
	}

	again, err := coordinator.History(ctx, "acct-1", nil)
	if err != nil {
		t.Fatalf("history by account: %v", err)
	}
	if len(again) != 1 || again[0].TotalQuestions != 1 {
		t.Fatalf("unexpected cached history: %+v", again)
	}
}

func TestDuplicateRoomRejectedOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewStore(pool)
	room := domain.Room{ID: "class-1", CreatorName: "Teacher", CreatedAt: time.Now()}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := store.CreateRoom(ctx, room); err != domain.ErrRoomExists {
		t.Fatalf("expected ErrRoomExists from unique index, got %v", err)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "classroom", "POSTGRES_PASSWORD": "classpass", "POSTGRES_DB": "classroomdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://classroom:classpass@%s:%s/classroomdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
