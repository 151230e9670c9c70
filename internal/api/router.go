// Package api wires together all HTTP routes for the audit service.
//
// Route grouping:
//   - /api/v1/auth/ is unauthenticated: it is where credentials are presented.
//   - Everything else under /api/v1/ requires a bearer token; the auth
//     middleware resolves it into the operation context every mutation
//     handler passes to the hook-wired repositories.
//   - /healthz and /metrics are unauthenticated operational endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bastionhq/bastion-audit/internal/api/audits"
	"github.com/bastionhq/bastion-audit/internal/api/authn"
	"github.com/bastionhq/bastion-audit/internal/api/users"
	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/config"
	"github.com/bastionhq/bastion-audit/internal/db/repositories"
	"github.com/bastionhq/bastion-audit/internal/geo"
	"github.com/bastionhq/bastion-audit/internal/jobs"
	"github.com/bastionhq/bastion-audit/internal/middleware"
	"github.com/bastionhq/bastion-audit/internal/safego"
	"github.com/bastionhq/bastion-audit/internal/storage"

	// Import archive backends to register them
	_ "github.com/bastionhq/bastion-audit/internal/storage/local"
	_ "github.com/bastionhq/bastion-audit/internal/storage/s3"
)

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) calls Shutdown() after
// the HTTP server has drained.
type BackgroundServices struct {
	archiveExporter *jobs.ArchiveExporter
	shipper         audit.Shipper
}

// Shutdown stops all background goroutines and flushes the secondary stream.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.archiveExporter != nil {
		bg.archiveExporter.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("closing secondary stream", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter builds the Gin router and wires the audit pipeline: repositories,
// recorders, the secondary-stream mirror, and the background jobs.
func NewRouter(cfg *config.Config, db *sqlx.DB, rdb *redis.Client) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	router.Use(gin.Recovery())

	bg := &BackgroundServices{}

	// Audit pipeline core.
	auditRepo := repositories.NewAuditRepository(db)

	shipper, err := buildShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("building secondary stream: %w", err)
	}
	if shipper != nil {
		auditRepo.AddObserver(audit.NewMirror(shipper))
		bg.shipper = shipper
	}

	var checker audit.UnusualLoginChecker
	if cfg.Audit.UnusualLogin.Enabled && rdb != nil {
		checker = loggingChecker{geo.NewChecker(rdb, cfg.Audit.UnusualLogin.AlertsPerHour)}
	}

	recorder := audit.NewRecorder(auditRepo)
	loginRecorder := audit.NewLoginRecorder(auditRepo, checker)
	passwordRecorder := audit.NewPasswordRecorder(auditRepo)

	userRepo := repositories.NewUserRepository(db, recorder, passwordRecorder)
	userRepo.RegisterLoaders(recorder)

	// Archive export job.
	if cfg.Archive.Enabled {
		archiver, err := storage.NewArchiver(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing archive backend: %w", err)
		}
		exporter := jobs.NewArchiveExporter(auditRepo, archiver, time.Hour)
		safego.Go("archive-exporter", func() {
			exporter.Start(context.Background())
		})
		bg.archiveExporter = exporter
	}

	// Handlers.
	authnHandlers := authn.NewHandlers(userRepo, loginRecorder, time.Hour)
	userHandlers := users.NewHandlers(userRepo)
	auditHandlers := audits.NewHandlers(auditRepo)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", authnHandlers.LoginHandler())

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.POST("/users", userHandlers.CreateUserHandler())
		protected.PATCH("/users/:id", userHandlers.UpdateUserHandler())
		protected.PUT("/users/:id/password", userHandlers.ChangePasswordHandler())
		protected.DELETE("/users/:id", userHandlers.DeleteUserHandler())
		protected.POST("/users/:id/groups", userHandlers.AddToGroupsHandler())
		protected.DELETE("/users/:id/groups", userHandlers.RemoveFromGroupsHandler())
		protected.POST("/groups", userHandlers.CreateGroupHandler())

		protected.GET("/audits/operate-logs", auditHandlers.ListOperateLogsHandler())
		protected.GET("/audits/login-logs", auditHandlers.ListLoginLogsHandler())
		protected.GET("/audits/password-changes", auditHandlers.ListPasswordChangeLogsHandler())
	}

	return router, bg, nil
}

// buildShipper assembles the configured secondary-stream destinations into
// one MultiShipper. Returns nil when no destination is enabled.
func buildShipper(configs []config.ShipperConfig) (audit.Shipper, error) {
	var shippers []audit.Shipper
	for _, sc := range configs {
		if !sc.Enabled {
			continue
		}
		switch sc.Type {
		case "file":
			fs, err := audit.NewFileShipper(sc.File.Path, sc.File.MaxSizeMB, sc.File.MaxBackups)
			if err != nil {
				return nil, err
			}
			shippers = append(shippers, fs)
		case "webhook":
			ws, err := audit.NewWebhookShipper(audit.WebhookOptions{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       sc.Webhook.Timeout,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: sc.Webhook.FlushInterval,
			})
			if err != nil {
				return nil, err
			}
			shippers = append(shippers, ws)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", sc.Type)
		}
	}
	if len(shippers) == 0 {
		return nil, nil
	}
	return audit.NewMultiShipper(shippers...), nil
}

// loggingChecker adapts geo.Checker's error-returning Check to the
// fire-and-forget contract: failures are logged and dropped.
type loggingChecker struct {
	checker *geo.Checker
}

func (lc loggingChecker) Check(ctx context.Context, username, ip string) {
	if err := lc.checker.Check(ctx, username, ip); err != nil {
		slog.Warn("unusual-login check failed", "username", username, "error", err)
	}
}
