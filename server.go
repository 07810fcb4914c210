package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storyweaver/blobstore"
	"storyweaver/config"
	"storyweaver/gemini"
	"storyweaver/metrics"
	"storyweaver/speech"
	"storyweaver/stories"
	"storyweaver/whisperx"
)

type (
	storyRepo interface {
		CreateStory(ctx context.Context, s stories.Story) (string, error)
		GetStoryByID(ctx context.Context, id string) (stories.Story, error)
		ListStories(ctx context.Context, f stories.ListFilter) ([]stories.Story, error)
	}
)

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	repo, closeRepo, err := openRepo(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobs, media, err := openBlobStore(cfg)
	if err != nil {
		return err
	}

	rec, closeRec, err := openRecognizer(ctx, cfg.Speech)
	if err != nil {
		return err
	}
	defer closeRec()

	analyzer, err := gemini.NewAnalyzer(ctx, gemini.Config{
		ProjectID:       cfg.Analyzer.ProjectID,
		Location:        cfg.Analyzer.Location,
		Model:           cfg.Analyzer.Model,
		CredentialsFile: cfg.Analyzer.CredentialsFile,
	}, stories.AnalysisInstruction)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	svc := stories.NewService(repo, blobs, rec, analyzer, stories.Options{
		DefaultLanguageCode: cfg.Speech.DefaultLanguage,
		Encoding:            cfg.Speech.Encoding,
		Observer:            recorder,
	})

	r := mux.NewRouter()
	r.Use(recorder.Middleware)
	stories.InstallController(r, svc, cfg.Server.MaxUploadBytes)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	if media != nil {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", media))
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      securityHeaders(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving stories api on %s", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen and serve: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown server: %v\n", err)
	}
	return nil
}

func openRepo(ctx context.Context, cfg config.Storage) (storyRepo, func(), error) {
	switch cfg.Driver {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("disconnect mongo: %v", err)
			}
		}
		if err := client.Ping(ctx, nil); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}

		repo := stories.NewMongoRepo(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return repo, closeFn, nil

	case "postgres":
		db, err := initDB(ctx, "pgx", cfg.PostgresDSN, cfg)
		if err != nil {
			return nil, nil, err
		}
		return stories.NewSQLRepo(db), func() { db.Close() }, nil

	default:
		db, err := initDB(ctx, "sqlite3", "file:"+cfg.SQLitePath, cfg)
		if err != nil {
			return nil, nil, err
		}
		return stories.NewSQLRepo(db), func() { db.Close() }, nil
	}
}

func initDB(ctx context.Context, driver, dsn string, cfg config.Storage) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if driver == "sqlite3" {
		_, err = db.ExecContext(ctx, `
		PRAGMA busy_timeout       = 10000;
		PRAGMA journal_mode       = WAL;
		PRAGMA journal_size_limit = 200000000;
		PRAGMA synchronous        = NORMAL;
		PRAGMA foreign_keys       = ON;
		PRAGMA temp_store         = MEMORY;
		PRAGMA cache_size         = -16000;`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragmas: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := stories.MigrateSQL(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// openBlobStore returns the configured store and, for the local store, the handler serving /media/.
func openBlobStore(cfg *config.Config) (stories.BlobStore, http.Handler, error) {
	if cfg.Blob.Driver == "supabase" {
		s, err := blobstore.NewSupabaseStore(blobstore.SupabaseConfig{
			SupabaseURL: cfg.Blob.SupabaseURL,
			SupabaseKey: cfg.Blob.SupabaseKey,
			Bucket:      cfg.Blob.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}

	base, err := url.JoinPath(cfg.Server.PublicBaseURL, "media")
	if err != nil {
		return nil, nil, fmt.Errorf("media base url: %w", err)
	}
	s, err := blobstore.NewLocalStore(cfg.Blob.LocalDir, base)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Handler(), nil
}

func openRecognizer(ctx context.Context, cfg config.Speech) (stories.Recognizer, func(), error) {
	if cfg.Driver == "whisperx" {
		return whisperx.WhisperxTranscriber{Binary: cfg.WhisperxBinary, Model: cfg.WhisperxModel}, func() {}, nil
	}

	g, err := speech.NewGoogleRecognizer(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return g, func() {
		if err := g.Close(); err != nil {
			log.Printf("close speech client: %v", err)
		}
	}, nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
