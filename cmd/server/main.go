package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeduel/internal/api"
	"codeduel/internal/api/ws"
	"codeduel/internal/app/duel"
	"codeduel/internal/app/judge"
	"codeduel/internal/app/service"
	"codeduel/internal/app/worker"
	"codeduel/internal/common/clock"
	"codeduel/internal/common/security"
	"codeduel/internal/domain/repository"
	"codeduel/internal/platform/cache"
	"codeduel/internal/platform/config"
	"codeduel/internal/platform/database"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()
	fmt.Println("Redis connected.")

	clk := &clock.DefaultClock{}

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	problemRepo := repository.NewPgProblemRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	rankingRepo := repository.NewPgRankingRepository(database.DB)
	duelRepo := repository.NewPgDuelRepository(database.DB)

	// 6. Initialize Services
	judgeClient := judge.NewHTTPClient(config.AppConfig.JudgeBaseURL, config.AppConfig.JudgeWallClockGrace)
	antiCheatService := service.NewAntiCheatService(cache.RDB, config.AppConfig.MinorViolationLimit, config.AppConfig.ContestDisqualifyTTL)
	leaderboardService := service.NewLeaderboardService(cache.RDB, contestRepo, submissionRepo, antiCheatService, clk, config.AppConfig.LeaderboardTTLBuffer)
	ratingService := service.NewRatingService(rankingRepo, clk, config.AppConfig.DefaultRating, config.AppConfig.RatingKFactor)
	authService := service.NewAuthService(userRepo)
	problemService := service.NewProblemService(problemRepo, database.DB,
		config.AppConfig.JudgeDefaultCPUMs, config.AppConfig.JudgeDefaultMemKb)
	contestService := service.NewContestService(contestRepo, leaderboardService, ratingService, clk, database.DB,
		config.AppConfig.PenaltyPerWrongDefault, config.AppConfig.MaxSubmissionsDefault)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, contestRepo, judgeClient,
		leaderboardService, cache.RDB, clk, config.AppConfig.SubmissionQueueName, config.AppConfig.MaxSubmissionsDefault)

	// 7. Background workers and the duel hub
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	duelHub := duel.NewHub(duelRepo, antiCheatService, clk, duel.Config{
		MaxParticipants: config.AppConfig.DuelMaxParticipants,
		AutoStartDelay:  config.AppConfig.DuelAutoStartDelay,
	})
	go duelHub.Run(workerCtx)

	submissionWorker := worker.NewSubmissionWorker(cache.RDB, submissionService, config.AppConfig.SubmissionQueueName)
	go submissionWorker.Start(workerCtx)

	contestScheduler := worker.NewContestScheduler(contestRepo, contestService, leaderboardService, clk,
		config.AppConfig.ContestPollInterval, config.AppConfig.LeaderboardPurgeDelay)
	go contestScheduler.Start(workerCtx)
	fmt.Println("Background workers started.")

	// 8. Initialize Router & HTTP Server
	duelSocket := ws.NewDuelSocket(duelHub, submissionService, problemService, userRepo)
	router := api.NewRouter(authService, problemService, contestService, submissionService, ratingService, antiCheatService, duelRepo, duelSocket)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	workerCancel() // Signal workers and the duel hub to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and workers stopped gracefully.")
}
