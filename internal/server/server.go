package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/duespay/internal/config"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	"github.com/smallbiznis/duespay/internal/observability"
	obsmiddleware "github.com/smallbiznis/duespay/internal/observability/logger"
	obstracing "github.com/smallbiznis/duespay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	reminderdomain "github.com/smallbiznis/duespay/internal/reminder/domain"
	"github.com/smallbiznis/duespay/internal/scheduler"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http.server.start", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	memberSvc   memberdomain.Service
	generator   invoicedomain.Generator
	reminders   reminderdomain.Dispatcher
	payments    paymentdomain.Lifecycle
	settingsSvc settingsdomain.Service
	scheduler   *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	MemberSvc memberdomain.Service
	Generator invoicedomain.Generator
	Reminders reminderdomain.Dispatcher
	Payments  paymentdomain.Lifecycle
	Settings  settingsdomain.Service

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log,
		memberSvc:   p.MemberSvc,
		generator:   p.Generator,
		reminders:   p.Reminders,
		payments:    p.Payments,
		settingsSvc: p.Settings,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Members --------
	api.POST("/members", s.CreateMember)
	api.GET("/members/:id", s.GetMemberByID)

	// -------- Billing triggers --------
	billing := api.Group("/billing")
	{
		billing.POST("/invoices/generate", s.GenerateInvoices)
		billing.POST("/reminders/check", s.CheckReminders)
		billing.POST("/reminders/members/:id", s.SendMemberReminder)
		billing.POST("/reminders/outstanding", s.SendOutstandingReminders)
		billing.POST("/jobs/:job/run", s.RunJob)
	}

	// -------- Payments --------
	api.POST("/payments", s.SubmitPayment)
	api.POST("/payments/:id/approve", s.ApprovePayment)
	api.POST("/payments/:id/reject", s.RejectPayment)
	api.DELETE("/payments/:id", s.DeletePayment)

	// -------- Settings --------
	api.GET("/settings/email", s.GetEmailSettings)
	api.PUT("/settings/email", s.UpdateEmailSettings)
}
