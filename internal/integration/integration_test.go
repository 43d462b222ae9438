package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
	"campus-sync-service/internal/infra/memory"
	pgloader "campus-sync-service/internal/infra/postgres"
	pgmigrations "campus-sync-service/internal/infra/postgres/migrations"
	infraredis "campus-sync-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestEnrollAndCompleteCourseEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedCatalog(t, ctx, pgURL, sampleCourse(), sampleFinalQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	store := infraredis.NewDocumentStore(redisClient)

	// Startup path: the document store is seeded from the Postgres catalog,
	// then live traffic runs entirely against the store.
	loader := pgloader.NewCatalogLoader(pool)
	courses, err := loader.LoadCourses(ctx)
	if err != nil {
		t.Fatalf("load courses: %v", err)
	}
	for id, course := range courses {
		if err := store.Set(ctx, domain.ColCourses, id, course, false); err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
	quizzes, err := loader.LoadQuizzes(ctx)
	if err != nil {
		t.Fatalf("load quizzes: %v", err)
	}
	for id, quiz := range quizzes {
		if err := store.Set(ctx, domain.ColQuizzes, id, quiz, false); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}

	registry := memory.NewRegistry()
	identity := registry.AddUser("sam@campus.local", "pw")
	role := domain.RoleRecord{ID: identity.ID, Role: "student"}
	if err := store.Set(ctx, domain.ColRoles, identity.ID, role, false); err != nil {
		t.Fatalf("seed role: %v", err)
	}

	auth := memory.NewAuthService(registry)
	session := app.NewSession(auth, store, memory.NewBlobStore(), nil, nil)
	defer session.Close()
	transcript := app.NewTranscriptAggregator(session.Sync())

	if err := session.SignIn(ctx, "sam@campus.local", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got := session.Capabilities().Role; got != domain.RoleStudent {
		t.Fatalf("expected student, got %s", got)
	}
	if len(session.Sync().Snapshot().Courses) != 1 {
		t.Fatalf("expected seeded course in mappings")
	}

	if err := session.Enroll(ctx, "course-1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	waitFor(t, func() bool { return session.IsEnrolledIn("course-1") })

	score, err := session.SubmitAttempt(ctx, "quiz-1", []int{1, 0})
	if err != nil {
		t.Fatalf("submit attempt: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected derived score 100, got %d", score)
	}

	waitFor(t, func() bool {
		rows := transcript.BuildTranscript(identity.ID)
		return len(rows) == 1 && rows[0].Completed
	})
	rows := transcript.BuildTranscript(identity.ID)
	if rows[0].CourseID != "course-1" || rows[0].CourseTitle != "Distributed Systems" || rows[0].BestScore != 100 {
		t.Fatalf("unexpected transcript row %+v", rows[0])
	}

	if err := session.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if session.Identity() != nil {
		t.Fatalf("expected cleared identity after sign-out")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "campus", "POSTGRES_PASSWORD": "campuspass", "POSTGRES_DB": "campusdb"},
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
	dsn := fmt.Sprintf("postgres://campus:campuspass@%s:%s/campusdb?sslmode=disable", host, port.Port())
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

func seedCatalog(t *testing.T, ctx context.Context, dsn string, course domain.Course, quiz domain.Quiz) {
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

	upsert(t, ctx, db, "courses", course.ID, course)
	upsert(t, ctx, db, "quizzes", quiz.ID, quiz)
}

func upsert(t *testing.T, ctx context.Context, db *bun.DB, table, id string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal %s: %v", table, err)
	}
	query := `INSERT INTO ` + table + ` (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`
	if _, err := db.ExecContext(ctx, query, id, string(data)); err != nil {
		t.Fatalf("insert %s: %v", table, err)
	}
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:       "course-1",
		Title:    "Distributed Systems",
		Category: "cs",
		Short:    "Consensus, replication, and failure",
		Credits:  5,
	}
}

func sampleFinalQuiz() domain.Quiz {
	return domain.Quiz{
		ID:                  "quiz-1",
		Title:               "Distributed Systems Final",
		CourseID:            "course-1",
		CourseTitleSnapshot: "Distributed Systems",
		PassScore:           70,
		IsFinal:             true,
		Items: []domain.QuizItem{
			{QuestionText: "Which protocol tolerates minority failures?", Choices: []string{"2PC", "Raft"}, CorrectIndex: 1},
			{QuestionText: "Quorum reads require", Choices: []string{"majority", "all replicas"}, CorrectIndex: 0},
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
