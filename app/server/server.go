package server

import (
	"context"
	"log/slog"
	"sync"

	"studyrag/app/api"
	"studyrag/config"
	"studyrag/service"
	"studyrag/store"

	"github.com/gofiber/fiber/v2"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger

	mu  sync.Mutex
	app *fiber.App
	rt  *service.App
}

func NewServer(cfg config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// NewApp registers every route on a fresh fiber app.
func NewApp(chunks store.ChunkStore, svc *service.Service, defaults service.PlanDefaults) *fiber.App {
	var (
		app           = fiber.New(fiberConfig)
		checkHandler  = api.NewCheckHandler(chunks)
		coverHandler  = api.NewCoverageHandler(svc)
		planHandler   = api.NewPlanHandler(svc, defaults)
		searchHandler = api.NewSearchHandler(svc)
		check         = app.Group("/check")
		apiv1         = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Put("/coverage", coverHandler.HandlePutCoverage)
	apiv1.Post("/enrich", coverHandler.HandleEnrich)
	apiv1.Get("/exams", coverHandler.HandleListExams)
	apiv1.Get("/readiness", coverHandler.HandleReadiness)

	apiv1.Post("/analyze", planHandler.HandleAnalyze)
	apiv1.Post("/plans", planHandler.HandleCreatePlan)
	apiv1.Get("/plans/:id", planHandler.HandleGetPlan)
	apiv1.Get("/plans/:id/export", planHandler.HandleExportPlan)

	apiv1.Post("/search", searchHandler.HandleSearch)
	return app
}

func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("error to stop server", "error", err.Error())
		}
	}
	if s.rt != nil {
		if err := s.rt.Close(); err != nil {
			s.logger.Error("error to release resources", "error", err.Error())
		}
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	rt, err := service.Open(context.Background(), s.cfg, s.logger)
	if err != nil {
		s.logger.Error("error to initialize storage", "error", err.Error())
		return
	}
	app := NewApp(rt.Chunks, rt.Service, rt.Defaults)

	s.mu.Lock()
	s.app = app
	s.rt = rt
	s.mu.Unlock()

	if err := app.Listen(s.cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}
