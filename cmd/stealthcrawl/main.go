package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/user/stealth-crawler/internal/adapter/chromedp_crawler"
	"github.com/user/stealth-crawler/internal/adapter/file"
	"github.com/user/stealth-crawler/internal/adapter/memory"
	"github.com/user/stealth-crawler/internal/adapter/postgres"
	redis_adapter "github.com/user/stealth-crawler/internal/adapter/redis"
	"github.com/user/stealth-crawler/internal/adapter/tee"
	"github.com/user/stealth-crawler/internal/challenge"
	"github.com/user/stealth-crawler/internal/delivery/http/handler"
	"github.com/user/stealth-crawler/internal/delivery/http/router"
	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/repository"
	"github.com/user/stealth-crawler/internal/usecase"
	"github.com/user/stealth-crawler/pkg/config"
	"github.com/user/stealth-crawler/pkg/jitter"
	"github.com/user/stealth-crawler/pkg/logger"
	"github.com/user/stealth-crawler/pkg/metrics"
	"github.com/user/stealth-crawler/pkg/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var input crawlInput

	cmd := &cobra.Command{
		Use:           "stealthcrawl",
		Short:         "Crawl a site with a disguised headless browser",
		Long:          "Crawl a site with a disguised headless Chromium and harvest emails, .jpg or .pdf links, or raw HTML up to depth 2.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).fill(&input); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			return run(cmd.Context(), cmd, input)
		},
	}

	cmd.Flags().StringVar(&input.url, "url", "", "start URL")
	cmd.Flags().StringVar(&input.mode, "mode", "", "what to scrape: email, jpg, pdf, all or html")
	cmd.Flags().StringVar(&input.depth, "depth", "", "link depth, 0 to 2")
	return cmd
}

func run(parent context.Context, cmd *cobra.Command, input crawlInput) error {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌ Invalid configuration:", err)
		return err
	}

	// --- Logger ---
	logger.Init(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// --- Input validation, before any browser or file exists ---
	mode, err := entity.ParseMode(input.mode)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌ Unknown mode.")
		return err
	}
	if !utils.IsAbsoluteHTTP(input.url) {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌ Invalid URL.")
		return fmt.Errorf("%w: %q", repository.ErrInvalidStartURL, input.url)
	}
	depth := entity.ParseDepth(input.depth)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Repositories ---
	visited, closeVisited, err := newVisitedRepo(ctx, cfg)
	if err != nil {
		slog.Error("Unable to set up visited set", "error", err)
		return err
	}
	defer closeVisited()

	sink, closeSink, err := newResultSink(ctx, cfg)
	if err != nil {
		slog.Error("Unable to set up result sink", "error", err)
		return err
	}
	defer closeSink()

	rnd := jitter.New()
	session := chromedp_crawler.NewSession(chromedp_crawler.Options{
		Headless:          cfg.Headless,
		ExecPath:          cfg.ChromePath,
		ProxyServer:       cfg.ProxyServer,
		NavigationTimeout: cfg.NavigationTimeout(),
		Rand:              rnd,
		Sleep:             jitter.Sleep,
		Metrics:           m,
	})

	checker, err := newChallengeChecker(cfg.ChallengeCheck, session)
	if err != nil {
		slog.Error("Invalid challenge check mode", "value", cfg.ChallengeCheck, "error", err)
		return err
	}

	// --- Use Cases ---
	crawler := usecase.NewCrawlerUseCase(session, visited, sink, usecase.Options{
		Rand:           rnd,
		Sleep:          jitter.Sleep,
		MaxLinks:       cfg.MaxLinksPerPage,
		Challenge:      checker,
		RecordFailures: cfg.RecordFailures,
		Metrics:        m,
	})

	// --- HTTP Server ---
	if cfg.StatusAddr != "" {
		server := &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      router.New(handler.NewHandler(crawler), reg, m),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			slog.Info("Starting status server", "addr", cfg.StatusAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Status server stopped", "addr", cfg.StatusAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	summary, err := crawler.Run(ctx, input.url, mode, depth)
	if err != nil {
		slog.Error("Crawl could not start", "error", err)
		return err
	}

	if summary.Interrupted {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️ Interrupted. Partial results saved in %s\n", summary.Output)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Done. Results saved in %s\n", summary.Output)
	return nil
}

func newVisitedRepo(ctx context.Context, cfg *config.Config) (repository.VisitedRepository, func(), error) {
	switch cfg.VisitedBackend {
	case "", "memory":
		return memory.NewVisitedRepo(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("unable to connect to Redis: %w", err)
		}
		slog.Info("Redis connection established")
		runID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
		return redis_adapter.NewVisitedRepo(rdb, runID), func() { _ = rdb.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown visited backend %q", cfg.VisitedBackend)
}

func newResultSink(ctx context.Context, cfg *config.Config) (repository.ResultSink, func(), error) {
	fileSink := file.NewSink(cfg.OutputDir)
	if cfg.PostgresURL == "" {
		return fileSink, func() {}, nil
	}

	dbpool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("PostgreSQL connection pool established")
	return tee.NewSink(fileSink, postgres.NewSink(dbpool)), dbpool.Close, nil
}

func newChallengeChecker(mode string, inspector challenge.PageInspector) (repository.ChallengeChecker, error) {
	switch mode {
	case "", "off":
		return nil, nil
	case "live":
		return challenge.Live{Detector: challenge.NewDetector(), Inspector: inspector}, nil
	case "static":
		return challenge.Static{Detector: challenge.NewDetector()}, nil
	}
	return nil, fmt.Errorf("unknown challenge check mode %q", mode)
}
