package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"contracthub/config"
	"contracthub/database"
	"contracthub/directory"
	"contracthub/handlers"
	"contracthub/invites"
	"contracthub/middleware"
	"contracthub/notify"
	"contracthub/roster"
	"contracthub/storage"
	"contracthub/timesheets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer log.Sync()

	middleware.SetJWTSecret(cfg.JWTSecret)

	if err := database.Init(cfg.DatabaseURL); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()

	files, err := storage.NewLocal(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		log.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	rosterSvc := roster.New(db, log)
	dir := directory.New(db)
	sender := notify.NewLogSender(log, cfg.BaseURL)
	inviteSvc := invites.New(db, log, rosterSvc, dir, sender, cfg.Policy)
	timesheetSvc := timesheets.New(db, log, files, rosterSvc, cfg.Policy.ApproveWhenUnsupervised)

	authHandler := handlers.NewAuthHandler(cfg, log)
	contractHandler := handlers.NewContractHandler(log, rosterSvc)
	inviteHandler := handlers.NewInviteHandler(log, inviteSvc)
	taskHandler := handlers.NewTaskHandler(log, timesheetSvc)
	submissionHandler := handlers.NewSubmissionHandler(log, timesheetSvc)
	downloadHandler := handlers.NewDownloadHandler(log, timesheetSvc)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	// Public routes
	router.Post("/register", authHandler.Register)
	router.Post("/login", authHandler.Login)
	router.Post("/logout", authHandler.Logout)
	router.Get("/auth/state", authHandler.State)
	router.Get("/invites/{token}", inviteHandler.Show)
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/files/*", http.StripPrefix("/files/",
		http.FileServer(http.Dir(cfg.UploadDir))))

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Get("/me", authHandler.Me)

		r.Post("/contracts", contractHandler.Create)
		r.Get("/contracts", contractHandler.List)
		r.Get("/contracts/{contractID}", contractHandler.Get)
		r.Get("/contracts/{contractID}/supervisors", contractHandler.Supervisors)
		r.Patch("/contracts/{contractID}/members/{userID}", contractHandler.UpdateMember)
		r.Delete("/contracts/{contractID}/members/{userID}", contractHandler.RemoveMember)

		r.Post("/contracts/{contractID}/invites", inviteHandler.Create)
		r.Get("/contracts/{contractID}/invites", inviteHandler.List)
		r.Post("/invites/{token}/accept", inviteHandler.Accept)
		r.Patch("/contracts/{contractID}/invites/{inviteID}", inviteHandler.Update)
		r.Delete("/contracts/{contractID}/invites/{inviteID}", inviteHandler.Delete)

		r.Post("/contracts/{contractID}/tasks", taskHandler.Create)
		r.Get("/contracts/{contractID}/tasks", taskHandler.List)
		r.Get("/tasks/{taskID}", taskHandler.Get)
		r.Patch("/tasks/{taskID}", taskHandler.Update)
		r.Delete("/tasks/{taskID}", taskHandler.Delete)
		r.Get("/tasks/{taskID}/download", downloadHandler.Bundle)

		r.Post("/tasks/{taskID}/submissions", submissionHandler.Submit)
		r.Get("/submissions", submissionHandler.List)
		r.Delete("/submissions/{submissionID}", submissionHandler.Delete)
		r.Patch("/submissions/{submissionID}/decision", submissionHandler.Decide)
		r.Get("/submissions/{submissionID}/download", downloadHandler.File)
	})

	log.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
