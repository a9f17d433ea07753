package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	_ "biodata/docs"
	"biodata/internal/config"
	"biodata/internal/events"
	"biodata/internal/handlers"
	"biodata/internal/middleware"
	"biodata/internal/pdf"
	"biodata/internal/ratelimit"
	"biodata/internal/repositories"
	"biodata/internal/routes"
	"biodata/internal/services"
	"biodata/internal/utils"
)

// App owns the process-wide resources. Close releases them in reverse order.
type App struct {
	Config *config.Config
	DB     *sql.DB

	Access       *services.AccessService
	Applications *services.ApplicationService
	Import       *services.ImportService
	AdminAuth    *services.AdminAuthService

	closers []func() error
}

func ConfigureLogging(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// New connects to the database and the optional brokers and builds the services.
func New(cfg *config.Config) (*App, error) {
	ConfigureLogging(cfg.Log.Level, cfg.Log.Format)

	// === DB ===
	db, err := repositories.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, db.Close)

	// === Repos ===
	accessRepo := repositories.NewAccessRequestRepository(db)
	appRepo := repositories.NewApplicationRepository(db)
	adminRepo := repositories.NewAdminRepository(db)
	logRepo := repositories.NewAdminLogRepository(db)

	// === Optional infrastructure ===
	rdb, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.WithError(err).Warn("[app] redis unavailable, otp throttling disabled")
		rdb = nil
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
	}
	limiter := ratelimit.NewLimiter(rdb, cfg.OTP.MaxSendsPerWindow, cfg.OTP.SendWindow, "biodata")

	sinks := events.Multi{}
	if cfg.RabbitMQ.URL != "" {
		pub, err := events.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			logrus.WithError(err).Warn("[app] rabbitmq unavailable, lifecycle events not published")
		} else {
			sinks = append(sinks, pub)
			a.closers = append(a.closers, pub.Close)
		}
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Notify.Timeout)
		if err != nil {
			logrus.WithError(err).Warn("[app] telegram disabled")
		} else {
			async := events.NewAsync("telegram", tg, cfg.Notify.Timeout)
			sinks = append(sinks, async)
			a.closers = append(a.closers, async.Close)
		}
	}
	if cfg.Email.SMTPHost != "" {
		async := events.NewAsync("email", services.NewEmailNotifier(cfg.Email), cfg.Notify.Timeout)
		sinks = append(sinks, async)
		a.closers = append(a.closers, async.Close)
	}

	// === Services ===
	sms := utils.NewClientWithOptions(cfg.Mobizon.APIKey, cfg.Mobizon.SenderID, cfg.Mobizon.DryRun)
	photos := services.NewPhotoService(cfg.Photos)

	a.Access = services.NewAccessService(accessRepo, sms, limiter, cfg.OTP, cfg.Access.DedupeRegistrations)
	a.Applications = services.NewApplicationService(appRepo, logRepo, photos, sinks)
	a.Import = services.NewImportService(appRepo)
	a.AdminAuth = services.NewAdminAuthService(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.WithError(err).Warn("[app] close")
		}
	}
}

// Router builds the gin engine with every route mounted.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	pdfGen := pdf.NewGenerator(cfg.Photos.Dir, cfg.PDF.FontPath)
	return routes.SetupRoutes(router, routes.Handlers{
		Access:       handlers.NewAccessHandler(a.Access),
		Applications: handlers.NewApplicationHandler(a.Applications),
		Admin:        handlers.NewAdminHandler(a.Applications, pdfGen),
		AdminAuth:    handlers.NewAdminAuthHandler(a.AdminAuth),
		Import:       handlers.NewImportHandler(a.Import),
	}, routes.Options{
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		PhotoDir:  cfg.Photos.Dir,
		PhotoURL:  cfg.Photos.URLPrefix,
	})
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
func (a *App) Serve(ctx context.Context) error {
	if err := a.AdminAuth.EnsureBootstrap(ctx, a.Config.Auth.BootstrapUser, a.Config.Auth.BootstrapPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("[app] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logrus.Info("[app] shutting down")
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
