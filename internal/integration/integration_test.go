package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	pgstore "quiz-room-service/internal/infra/postgres"
	pgmigrations "quiz-room-service/internal/infra/postgres/migrations"
	infraredis "quiz-room-service/internal/infra/redis"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	migrateAndSeed(t, ctx, db, sampleQuiz())

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

	quizRepo := infraredis.NewQuizRepository(redisClient, pgstore.NewQuizLoader(pool), 5*time.Minute)
	store := infraredis.NewRoomStore(redisClient, 5*time.Minute)
	sink := pgstore.NewResultStore(db)
	service := app.NewRoomService(store, quizRepo, sink, clockwork.NewRealClock(), app.RoomDefaults{
		SecondsPerQuestion: 60,
		PerQuizBaseSeconds: 60,
	})
	defer service.Close()

	room, err := service.CreateRoom(ctx, app.CreateRoomParams{
		HostID: "host-1",
		QuizID: "quiz-1",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "room:live:"+room.ID).Result(); n != 1 {
		t.Fatalf("liveness key missing after create")
	}

	for _, join := range []struct{ identity, name string }{
		{"host-1", "Host"}, {"u1", "Alice"}, {"u2", "Bob"},
	} {
		if _, err := service.Apply(ctx, room.ID, domain.Command{
			Type: domain.CommandJoin, Issuer: join.identity, DisplayName: join.name,
		}); err != nil {
			t.Fatalf("join %s: %v", join.identity, err)
		}
	}
	if _, err := service.Apply(ctx, room.ID, domain.Command{Type: domain.CommandStart, Issuer: "host-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Apply(ctx, room.ID, domain.Command{
		Type: domain.CommandAnswer, Issuer: "u2", QuestionIndex: 0, OptionID: "o2",
	}); err != nil {
		t.Fatalf("answer u2: %v", err)
	}
	if _, err := service.Apply(ctx, room.ID, domain.Command{
		Type: domain.CommandAnswer, Issuer: "u1", QuestionIndex: 0, OptionID: "o1",
	}); err != nil {
		t.Fatalf("answer u1: %v", err)
	}
	if _, err := service.Apply(ctx, room.ID, domain.Command{Type: domain.CommandFinish, Issuer: "host-1"}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// The summary write is asynchronous; poll for the row.
	results := waitForResultRow(t, ctx, db, room.ID)
	if len(results) != 2 {
		t.Fatalf("expected 2 ranked participants, got %d", len(results))
	}
	if results[0].Identity != "u2" || results[0].Rank != 1 || results[0].Score != 1 {
		t.Fatalf("expected Bob leading with 1 point, got %+v", results[0])
	}

	service.Sweep()
	if n, _ := redisClient.Exists(ctx, "room:live:"+room.ID).Result(); n != 0 {
		t.Fatalf("liveness key survived the sweep of a finished room")
	}
	if _, err := service.Resync(ctx, room.ID); err == nil {
		t.Fatalf("swept room still resolvable")
	}
}

func waitForResultRow(t *testing.T, ctx context.Context, db *bun.DB, roomID string) []domain.ParticipantResult {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var raw json.RawMessage
		err := db.QueryRowContext(ctx, `SELECT participants FROM room_results WHERE room_id = ?`, roomID).Scan(&raw)
		if err == nil {
			var results []domain.ParticipantResult
			if err := json.Unmarshal(raw, &results); err != nil {
				t.Fatalf("decode participants column: %v", err)
			}
			return results
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("room result row for %s never appeared", roomID)
	return nil
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points: 1,
			},
			{
				ID:     "q2",
				Prompt: "What is 3 * 3?",
				Options: []domain.Option{
					{ID: "o1", Text: "9", Correct: true},
					{ID: "o2", Text: "6", Correct: false},
				},
				Points: 1,
			},
		},
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
