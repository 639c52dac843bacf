package main

import (
	"time"

	"github.com/taskhive/taskhive/backend/internal/config"
	"github.com/taskhive/taskhive/backend/internal/handlers"
	"github.com/taskhive/taskhive/backend/internal/models"
	"github.com/taskhive/taskhive/backend/internal/services"
	"github.com/taskhive/taskhive/backend/internal/utils"
	"github.com/taskhive/taskhive/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	sweeper     *services.TokenSweeper
	authHandler *handlers.AuthHandler
}

// bootstrap initializes all application dependencies: tokens, database, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.AccessSecret)
	utils.SetJWTRefreshSecret(cfg.JWT.RefreshSecret)
	utils.SetTokenIssuerAudience(cfg.JWT.Issuer, cfg.JWT.Audience)
	utils.SetTokenLifetimes(
		time.Duration(cfg.JWT.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWT.RefreshTTLHours)*time.Hour,
	)
	if !utils.RefreshSecretConfigured() {
		// Intentional degradation path, kept visible: refresh tokens are
		// signed with the access secret until a distinct one is configured.
		logger.Warn().Msg("JWT_REFRESH_SECRET not set, refresh tokens use the access secret")
	}

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	secureCookies := cfg.Server.Mode == "release"
	authHandler := handlers.NewAuthHandler(models.GetDB(), secureCookies)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	sweeper := services.NewTokenSweeper(models.GetDB())
	if err := sweeper.Start(time.Duration(cfg.Sweep.IntervalMinutes) * time.Minute); err != nil {
		logger.Fatalf("Failed to start token sweeper: %v", err)
	}

	return &appServices{
		sweeper:     sweeper,
		authHandler: authHandler,
	}
}

// shutdown gracefully stops all background services.
func (s *appServices) shutdown() {
	s.sweeper.Stop()
	logger.Info().Msg("All schedulers stopped")
}
