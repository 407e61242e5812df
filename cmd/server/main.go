// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Receipt Printer Bridge
//
// Entry point for the email-to-printer bridge. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to Redis (quota + dedup) and PostgreSQL (journal),
//     both optional — absent backends degrade to in-process state
//  3. Builds the admission pipeline and the printer dispatcher
//  4. Serves the inbound webhook, the authenticated print API and health
//  5. Runs the provider event poller as a webhook safety net
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/woz-bot/receipt-printer/internal/config"
	"github.com/woz-bot/receipt-printer/internal/dedup"
	"github.com/woz-bot/receipt-printer/internal/events"
	"github.com/woz-bot/receipt-printer/internal/journal"
	"github.com/woz-bot/receipt-printer/internal/mailer"
	"github.com/woz-bot/receipt-printer/internal/models"
	"github.com/woz-bot/receipt-printer/internal/moderation"
	"github.com/woz-bot/receipt-printer/internal/notify"
	"github.com/woz-bot/receipt-printer/internal/pipeline"
	"github.com/woz-bot/receipt-printer/internal/printer"
	"github.com/woz-bot/receipt-printer/internal/ratelimit"
	"github.com/woz-bot/receipt-printer/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting receipt printer bridge")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"printer", cfg.Printer.Host,
		"width", cfg.Printer.Width,
		"daily_prints", cfg.Limits.DailyPrints,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Redis (optional): durable quota counters + inbound dedup ---
	var (
		rdb    *redis.Client
		store  ratelimit.Store
		filter *dedup.Filter
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		store = ratelimit.NewRedisStore(rdb)
		filter = dedup.NewFilter(rdb)
		defer rdb.Close()
	} else {
		slog.Warn("REDIS_URL not set, quota counters are in-process only")
		mem := ratelimit.NewMemoryStore()
		mem.StartSweeper(ctx, cfg.SweepInterval)
		store = mem
	}

	// --- PostgreSQL (optional): outcome journal ---
	var (
		pool         *pgxpool.Pool
		journalStore *journal.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		journalStore, err = journal.NewStore(ctx, pool)
		if err != nil {
			slog.Error("failed to initialise outcome journal", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	} else {
		slog.Warn("DATABASE_URL not set, outcome journal disabled")
	}

	// --- Mail provider client: notifications + attachment fetch ---
	var mailClient *mailer.Client
	if cfg.Mail.APIKey != "" {
		mailClient = mailer.NewClient(cfg.Mail.APIBaseURL, cfg.Mail.APIKey, cfg.Mail.FromAddress)
	} else {
		slog.Warn("MAIL_API_KEY not set, sender notifications and attachment fetch disabled")
	}

	// --- Admission pipeline ---
	pipeCfg := pipeline.Config{
		Limiter:     ratelimit.NewLimiter(store, cfg.Limits.DailyPrints),
		Content:     moderation.NewContentPolicy(cfg.Blocklist, cfg.Limits.MaxTextLength),
		Attachments: moderation.NewAttachmentPolicy(cfg.Limits.MaxImages, cfg.Limits.MaxImageMB, cfg.Limits.MaxTotalMB),
		Dispatcher:  printer.NewTCPDispatcher(cfg.Printer.Host, cfg.Printer.Port),
		MaxWidth:    cfg.Printer.Width,
		FooterText:  cfg.FooterText,
	}
	if cfg.Vision.Endpoint != "" {
		pipeCfg.Images = moderation.NewVisionClient(ctx, moderation.VisionOptions{
			Endpoint:     cfg.Vision.Endpoint,
			APIKey:       cfg.Vision.APIKey,
			ClientID:     cfg.Vision.ClientID,
			ClientSecret: cfg.Vision.ClientSecret,
			TokenURL:     cfg.Vision.TokenURL,
		})
	} else {
		slog.Warn("image moderation endpoint not set, images pass unmoderated")
	}
	if mailClient != nil {
		pipeCfg.Fetcher = mailClient
	}
	pipe := pipeline.New(pipeCfg)

	var notifier *notify.Dispatcher
	if mailClient != nil {
		notifier = notify.NewDispatcher(mailClient, cfg.Limits.DailyPrints)
	}

	// --- HTTP server: webhook + API + health ---
	handler := webhook.NewHandler(pipe, notifier, journalStore, filter,
		cfg.Mail.WebhookSecret, cfg.APIToken)

	health := func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	}

	ready, err := webhook.Serve(ctx, cfg.Port, handler, health)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Event poller: replays webhook deliveries we missed ---
	// Needs both the provider API and the Redis dedup filter; without
	// the filter every sweep would reprint the whole window.
	if mailClient != nil && filter != nil {
		eventsClient := events.NewClient(cfg.Mail.APIBaseURL, cfg.Mail.APIKey)
		poller := events.NewPoller(eventsClient, filter,
			cfg.EventsPollInterval, cfg.EventsPollLookback,
			func(ctx context.Context, req *models.InboundRequest) {
				handler.HandleEmail(ctx, req)
			})
		go poller.Run(ctx)
	} else {
		slog.Info("event poller disabled")
	}

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	// Give in-flight webhook processing a moment to finish.
	time.Sleep(2 * time.Second)
	slog.Info("receipt printer bridge stopped")
}
