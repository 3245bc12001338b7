package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/docstore"
	"campusattend/internal/faceclient"
	"campusattend/internal/handler"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/logger"
	"campusattend/internal/metrics"
	"campusattend/internal/ocrclient"
	"campusattend/internal/od"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
	"campusattend/internal/store"
	"campusattend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

// backends are the storage implementations selected by STORE_BACKEND.
type backends struct {
	users      auth.UserStore
	ledger     attendance.Ledger
	odStore    od.Store
	catalog    od.Catalog
	checks     map[string]func(context.Context) bool
	closeFuncs []func() error
}

func openBackends(ctx context.Context, cfg config.App, zl *zap.Logger) (*backends, error) {
	b := &backends{checks: map[string]func(context.Context) bool{}}
	switch cfg.StoreBackend {
	case "memory":
		zl.Warn("using in-memory stores; data is lost on restart")
		b.users = auth.NewMemoryStore()
		b.ledger = attendance.NewMemoryLedger()
		b.odStore = od.NewMemoryStore()
		b.catalog = od.StaticCatalog{}
		return b, nil
	case "postgres", "":
	default:
		return nil, errors.New("unknown STORE_BACKEND " + cfg.StoreBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	b.closeFuncs = append(b.closeFuncs, db.Close)
	if err := store.Migrate(ctx, db.Client); err != nil {
		return nil, err
	}
	activities := od.NewActivityRepository(db.Client)
	if err := activities.Seed(ctx); err != nil {
		return nil, err
	}
	b.users = auth.NewRepository(db.Client)
	b.ledger = attendance.NewRepository(db.Client)
	b.odStore = od.NewRepository(db.Client)
	b.catalog = activities
	b.checks["db"] = db.Healthy
	return b, nil
}

func openQueue(cfg config.App, b *backends) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case "redis":
		rc := store.NewRedis(cfg.RedisAddr)
		b.closeFuncs = append(b.closeFuncs, rc.Close)
		b.checks["redis"] = rc.Healthy
		return queue.NewRedisQueue(rc.Client, ""), nil
	case "amqp":
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, "")
		if err != nil {
			return nil, err
		}
		b.closeFuncs = append(b.closeFuncs, q.Close)
		return q, nil
	default:
		return queue.NewInMemory(256), nil
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(b.closeFuncs) - 1; i >= 0; i-- {
			_ = b.closeFuncs[i]()
		}
	}()

	q, err := openQueue(cfg, b)
	if err != nil {
		return err
	}
	if mem, ok := q.(*queue.InMemory); ok {
		// No separate worker can reach an in-process queue.
		go func() { _ = worker.New(zl.Named("worker")).Run(ctx, mem) }()
	}

	students, err := roster.Open(cfg.RosterPath)
	if err != nil {
		return err
	}

	authSvc := auth.NewService(b.users, students, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, zl.Named("auth"),
		auth.WithAdminSignup(cfg.AllowAdminSignup))
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.ExternalTimeout)
	ocr := ocrclient.New(cfg.OCRServiceURL, cfg.OCRSkip, cfg.ExternalTimeout)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			zl.Warn("face service not available", zap.Error(err))
		}
	}

	var docs docstore.Store
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		docs = docstore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder, cfg.ExternalTimeout)
		zl.Info("documents stored in cloudinary", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		local, err := docstore.NewLocal(cfg.UploadDir)
		if err != nil {
			return err
		}
		docs = local
		zl.Info("documents stored on disk", zap.String("dir", cfg.UploadDir))
	}

	m := metrics.New()

	att := attendance.NewService(b.ledger, face, attendance.Options{
		Threshold: cfg.FaceThreshold,
		Location:  cfg.Timezone,
		Directory: students,
		Publisher: q,
		Metrics:   m,
		Logger:    zl.Named("attendance"),
	})
	pipeline := od.NewPipeline(b.odStore, docs, ocr, od.PipelineOptions{
		MaxDocumentBytes: cfg.ODMaxDocumentBytes,
		Keywords:         cfg.ODKeywords,
		MinKeywordScore:  cfg.ODMinKeywordScore,
		Publisher:        q,
		Metrics:          m,
		Logger:           zl.Named("od"),
	})
	review := od.NewReviewQueue(b.odStore, od.ReviewOptions{
		Publisher: q,
		Metrics:   m,
		Logger:    zl.Named("review"),
	})

	h := handler.New(handler.Deps{
		Auth:           authSvc,
		Attendance:     att,
		Pipeline:       pipeline,
		Review:         review,
		Catalog:        b.catalog,
		Roster:         students,
		Face:           face,
		OCR:            ocr,
		Checks:         b.checks,
		MaxUploadBytes: cfg.ODMaxDocumentBytes,
		Logger:         zl.Named("http"),
		Now:            func() time.Time { return time.Now().In(cfg.Timezone) },
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestIDMiddleware())
	r.Use(logger.GinMiddleware(zl, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.ClientIP).GinMiddleware())
	r.Use(m.GinMiddleware())

	r.GET("/metrics", gin.WrapH(m.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.ExternalTimeout),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}

// writeTimeout leaves room for upload-od, which calls the document store and
// then OCR, each bounded by the external timeout.
func writeTimeout(external time.Duration) time.Duration {
	const base = 15 * time.Second
	if d := 2*external + base; d > base {
		return d
	}
	return base
}
