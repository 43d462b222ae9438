package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/config"
	"campus-sync-service/internal/domain"
	"campus-sync-service/internal/infra/memory"
	pgcatalog "campus-sync-service/internal/infra/postgres"
	redisstore "campus-sync-service/internal/infra/redis"
	transport "campus-sync-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the gateway.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the sync gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.DocumentStore
	var blobs app.BlobStore
	if redisClient != nil {
		store = redisstore.NewDocumentStore(redisClient)
		blobs = redisstore.NewBlobStore(redisClient, "blob://campus")
	} else {
		store = memory.NewDocumentStore()
		blobs = memory.NewBlobStore()
	}

	registry := memory.NewRegistry()
	if err := seedAccounts(ctx, cfg, registry, store); err != nil {
		return err
	}
	if err := seedCatalog(ctx, cfg, store); err != nil {
		return err
	}

	wsHandler := transport.NewWSHandler(store, blobs, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting campus sync gateway on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedAccounts registers configured users and writes their role records so
// the capability resolver can find them.
func seedAccounts(ctx context.Context, cfg config.Config, registry *memory.Registry, store app.DocumentStore) error {
	for _, user := range cfg.Users {
		identity := registry.AddUser(user.Email, user.Secret)
		role := domain.RoleRecord{ID: identity.ID, Role: string(domain.NormalizeRole(user.Role))}
		if err := store.Set(ctx, domain.ColRoles, identity.ID, role, false); err != nil {
			return err
		}
		if user.Name != "" {
			profile := domain.Profile{ID: identity.ID, Name: user.Name, Role: role.Role}
			if err := store.Set(ctx, domain.ColProfiles, identity.ID, profile, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedCatalog loads courses and quizzes from Postgres when configured, or
// falls back to the built-in sample catalog.
func seedCatalog(ctx context.Context, cfg config.Config, store app.DocumentStore) error {
	courses := sampleCourses()
	quizzes := sampleQuizzes()

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader := pgcatalog.NewCatalogLoader(pool)
		if courses, err = loader.LoadCourses(ctx); err != nil {
			return err
		}
		if quizzes, err = loader.LoadQuizzes(ctx); err != nil {
			return err
		}
	}

	for id, course := range courses {
		if err := store.Set(ctx, domain.ColCourses, id, course, false); err != nil {
			return err
		}
	}
	for id, quiz := range quizzes {
		if err := store.Set(ctx, domain.ColQuizzes, id, quiz, false); err != nil {
			return err
		}
	}
	log.Printf("catalog seeded: %d courses, %d quizzes", len(courses), len(quizzes))
	return nil
}

// sampleCourses provides a minimal demo catalog; production deployments load
// theirs from Postgres.
func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"course-web": {
			ID:       "course-web",
			Title:    "Web Development Fundamentals",
			Category: "programming",
			Short:    "HTML, CSS, and JS from scratch",
			Goals:    []string{"Build static pages", "Understand the DOM"},
			Credits:  4,
		},
		"course-go": {
			ID:       "course-go",
			Title:    "Backend Services in Go",
			Category: "programming",
			Short:    "HTTP services, concurrency, testing",
			Goals:    []string{"Write concurrent services"},
			Credits:  5,
		},
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-web-final": {
			ID:                  "quiz-web-final",
			Title:               "Web Fundamentals Final",
			CourseID:            "course-web",
			CourseTitleSnapshot: "Web Development Fundamentals",
			PassScore:           70,
			IsFinal:             true,
			Items: []domain.QuizItem{
				{
					QuestionText: "Which tag defines a hyperlink?",
					Choices:      []string{"<div>", "<a>", "<span>"},
					CorrectIndex: 1,
				},
				{
					QuestionText: "CSS stands for?",
					Choices:      []string{"Cascading Style Sheets", "Computer Style System"},
					CorrectIndex: 0,
				},
			},
		},
	}
}
