package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/handler"
	"github.com/xxxsen/voicerag/internal/job"
	"github.com/xxxsen/voicerag/internal/middleware"
	"github.com/xxxsen/voicerag/internal/schedule"
	"github.com/xxxsen/voicerag/internal/service"
	"github.com/xxxsen/voicerag/internal/watcher"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "voicerag",
		Short: "voice enabled document chat server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real environment variables win.
			_ = godotenv.Load()
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run voicerag server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "ingest pdf files into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.AddCommand(runCmd, ingestCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func runIngest(ctx context.Context, cfg *config.Config, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := buildApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		res, err := app.ingest.Ingest(ctx, filepath.Base(file), data)
		if err != nil {
			return err
		}
		logutil.GetLogger(ctx).Info("document ingested",
			zap.String("file", file),
			zap.Bool("skipped", res.Skipped),
			zap.Int("pages", res.Document.Pages),
			zap.Int("chunks", res.Document.Chunks),
		)
	}
	return nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("session_store", cfg.SessionStore.Type),
		zap.String("speech", cfg.Speech.Provider),
		zap.String("file_store", cfg.FileStore.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *prometheus.Registry
	if !cfg.Metrics.Disable {
		reg = prometheus.NewRegistry()
	}
	app, err := buildApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer app.Close()

	scheduler := schedule.NewCronScheduler()
	if cfg.Speech.RetentionHours > 0 {
		cleanup := job.NewSpeechCleanupJob(app.files, service.SpeechKeyPrefix, time.Duration(cfg.Speech.RetentionHours)*time.Hour)
		if err := scheduler.AddJob(cleanup, cfg.Speech.CleanupSpec); err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Upload.WatchDir != "" {
		w, err := watcher.New(cfg.Upload.WatchDir, func(ctx context.Context, name string, data []byte) error {
			_, err := app.ingest.Ingest(ctx, name, data)
			return err
		}, 0)
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() { _ = w.Stop() }()
	}

	deps := handler.RouterDeps{
		Sessions:    handler.NewSessionHandler(app.chat),
		Chat:        handler.NewChatHandler(app.chat),
		Documents:   handler.NewDocumentHandler(app.ingest, cfg.Upload.MaxBytes),
		Files:       handler.NewFileHandler(app.files),
		ChatLimitMS: cfg.RateLimitMS,
	}
	if reg != nil {
		deps.Metrics = app.metrics.Handler()
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
