// Command server is the long-running driver: it loads config, wires one
// Core, serves the admin HTTP surface (health, metrics, approval queue,
// optional decision feed), and runs the scheduler on a ticker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/config"
	internalcore "github.com/eyeinthesky6/indexpilot-sub002/internal/core"
	"github.com/eyeinthesky6/indexpilot-sub002/internal/middleware"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/monitoring"
	"github.com/eyeinthesky6/indexpilot-sub002/safety"
	"github.com/eyeinthesky6/indexpilot-sub002/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.INFO, os.Stdout)
	monitoring.InitializeMonitoring("1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := internalcore.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("core init failed", err)
	}
	defer svc.Close()

	go svc.Start(ctx)

	feed := newDecisionFeed(logger)
	svc.Audit = newFeedSink(feed, svc.Audit)
	svc.Scheduler.Audit = svc.Audit

	admin := newAdminAuth(cfg.Admin.Email, cfg.Admin.Password, cfg.JWT.Secret, jwtExpiry(cfg.JWT.Expiry))

	mux := http.NewServeMux()
	monitoring.RegisterMonitoringEndpoints(mux)
	mux.HandleFunc("/ws/decisions", feed.serveHTTP)
	mux.HandleFunc("/admin/login", handleAdminLogin(admin))
	mux.HandleFunc("/admin/approvals", admin.requireAdmin(handleListApprovals(svc.Safety.Approvals)))
	mux.HandleFunc("/admin/approvals/decide", admin.requireAdmin(handleDecideApproval(svc.Safety.Approvals)))
	mux.HandleFunc("/admin/run", admin.requireAdmin(handleRunPass(svc)))

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	defer limiter.Stop()
	guardedMux := limiter.MiddlewareWithExclusions([]string{"/health", "/ready"})(mux)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: guardedMux,
	}

	go runScheduler(ctx, svc, cfg, logger)

	go func() {
		logger.Info("server listening", logging.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", logging.String("reason", "signal received"))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

// runScheduler drives the batched decision pass (spec §4.15 batch-mode
// paragraph) on a ticker confined to the configured maintenance window.
func runScheduler(ctx context.Context, svc *internalcore.Core, cfg *config.Config, logger *logging.Logger) {
	mode := scheduler.ModeAdvisory
	if cfg.AutoRollback.Enabled {
		mode = scheduler.ModeApply
	}

	safetyCfg, err := config.LoadSafetyConfig()
	if err != nil {
		logger.Warn("safety config load failed, using default maintenance window", logging.String("error", err.Error()))
		safetyCfg.MaintenanceWindow = config.MaintenanceWindowYAMLConfig{StartHour: 2, EndHour: 6}
	}

	batchCfg := scheduler.BatchConfig{
		PreferredStartHour: safetyCfg.MaintenanceWindow.StartHour,
		PreferredEndHour:   safetyCfg.MaintenanceWindow.EndHour,
		MaxPerHour:         4,
		InterCreatePause:   30 * time.Second,
		InterBatchPause:    5 * time.Minute,
		MaxPerBatch:        20,
	}

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.Scheduler.RunBatch(ctx, mode, batchCfg)
			if err != nil {
				logger.Error("scheduled batch failed", err)
				continue
			}
			logger.Info("scheduled batch complete",
				logging.Int("created", len(result.Created)),
				logging.Int("rolled_back", len(result.RolledBack)),
				logging.Int("skipped", len(result.Skipped)))

			if cfg.ForeignKeyGaps.Enabled {
				created, err := svc.RunFKGapScan(ctx, cfg.ForeignKeyGaps.Schema, mode)
				if err != nil {
					logger.Error("fk gap scan failed", err)
					continue
				}
				if len(created) > 0 {
					logger.Info("fk gap scan created indexes", logging.Int("count", len(created)))
				}
			}
		}
	}
}

func jwtExpiry(spec string) time.Duration {
	if d, err := time.ParseDuration(spec); err == nil {
		return d
	}
	return 8 * time.Hour
}

func handleAdminLogin(admin *adminAuth) http.HandlerFunc {
	type loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		token, err := admin.login(req.Email, req.Password)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func handleListApprovals(store *safety.ApprovalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.List())
	}
}

func handleDecideApproval(store *safety.ApprovalStore) http.HandlerFunc {
	type decideRequest struct {
		ID      string `json:"id"`
		Approve bool   `json:"approve"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req decideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := store.Decide(req.ID, req.Approve); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleRunPass(svc *internalcore.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := scheduler.ModeAdvisory
		if r.URL.Query().Get("mode") == "apply" {
			mode = scheduler.ModeApply
		}
		result, err := svc.Scheduler.RunPass(r.Context(), mode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
