package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/extract"
	"github.com/xxxsen/classmate/internal/filestore"
	"github.com/xxxsen/classmate/internal/handler"
	"github.com/xxxsen/classmate/internal/job"
	"github.com/xxxsen/classmate/internal/metrics"
	"github.com/xxxsen/classmate/internal/middleware"
	"github.com/xxxsen/classmate/internal/schedule"
	"github.com/xxxsen/classmate/internal/service"
)

func main() {
	var configPath string
	var topK int

	rootCmd := &cobra.Command{
		Use:   "classmate",
		Short: "classmate teaching assistant backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run classmate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			conn, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			return runServer(cfg, conn)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "upload and index local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			conn, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			return runIngest(cmd.Context(), cfg, conn, args)
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <text>",
		Short: "print the nearest indexed chunks for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			conn, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			return runQuery(cmd.Context(), cfg, conn, args[0], topK)
		},
	}
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "number of hits, defaults to rag.top_k")

	rootCmd.AddCommand(runCmd, ingestCmd, queryCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type components struct {
	rag       *service.RAGService
	documents *service.DocumentService
	chat      *service.ChatService
	gateway   handler.ProviderLister
}

func buildComponents(ctx context.Context, cfg *config.Config, conn *sql.DB) (*components, *job.EmbeddingCacheCleanupJob, error) {
	embedder, cacheRepo, err := buildEmbedder(cfg, conn)
	if err != nil {
		return nil, nil, err
	}
	rag := service.NewLazyRAG(ragOpener(cfg, conn, embedder)).Get(ctx)
	gateway := buildGateway(cfg)
	if !gateway.Available() {
		logutil.GetLogger(ctx).Warn("no llm provider configured, chat and ask will fail")
	}
	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, nil, fmt.Errorf("init file store: %w", err)
	}
	extractor := extract.New(extract.WithTranscriber(gateway))
	documents := service.NewDocumentService(files, extractor, rag, gateway, service.DocumentOptions{
		Upload:    cfg.Upload,
		TopK:      cfg.RAG.TopK,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	chat := service.NewChatService(rag, gateway, cfg.RAG.TopK, cfg.LLM.MaxTokens)
	var cacheJob *job.EmbeddingCacheCleanupJob
	if cacheRepo != nil {
		cacheJob = job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Jobs.EmbeddingCacheCleanup.MaxDays)
	}
	return &components{rag: rag, documents: documents, chat: chat, gateway: gateway}, cacheJob, nil
}

type scheduledJob struct {
	job schedule.Job
	cfg config.JobConfig
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	lg := logutil.GetLogger(context.Background())
	lg.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("embedding", cfg.Embedding.Provider+":"+cfg.Embedding.Model),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, cacheJob, err := buildComponents(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer comps.rag.Close()

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(comps.documents, cfg.Upload.MaxBytes()),
		Chat:      handler.NewChatHandler(comps.chat),
		Health:    handler.NewHealthHandler(comps.rag, comps.gateway),
		RateLimit: time.Duration(cfg.Server.RateLimitMS) * time.Millisecond,
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
			middleware.CORS(cfg.Server.CORSOrigins),
			metrics.Middleware(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	jobs := []scheduledJob{
		{job: job.NewUploadCleanupJob(comps.documents, cfg.Jobs.UploadCleanup.MaxDays), cfg: cfg.Jobs.UploadCleanup},
		{job: job.NewReindexJob(comps.documents), cfg: cfg.Jobs.Reindex},
	}
	if cacheJob != nil {
		jobs = append(jobs, scheduledJob{job: cacheJob, cfg: cfg.Jobs.EmbeddingCacheCleanup})
	}
	for _, item := range jobs {
		if item.cfg.Disabled {
			continue
		}
		if err := scheduler.AddJob(item.job, item.cfg.Spec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	lg.Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			lg.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("server stopping...")
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, conn *sql.DB, paths []string) error {
	comps, _, err := buildComponents(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer comps.rag.Close()
	if !comps.rag.Available() {
		return fmt.Errorf("vector index unavailable: %w", comps.rag.Err())
	}
	enc := json.NewEncoder(os.Stdout)
	for _, path := range paths {
		res, err := ingestFile(ctx, comps.documents, path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

func ingestFile(ctx context.Context, documents *service.DocumentService, path string) (*service.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return documents.Upload(ctx, service.UploadInput{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Reader:   f,
	})
}

func runQuery(ctx context.Context, cfg *config.Config, conn *sql.DB, text string, topK int) error {
	embedder, _, err := buildEmbedder(cfg, conn)
	if err != nil {
		return err
	}
	rag := service.NewLazyRAG(ragOpener(cfg, conn, embedder)).Get(ctx)
	defer rag.Close()
	if !rag.Available() {
		return fmt.Errorf("vector index unavailable: %w", rag.Err())
	}
	if topK <= 0 {
		topK = cfg.RAG.TopK
	}
	hits, err := rag.Query(ctx, text, topK)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(hits)
}
