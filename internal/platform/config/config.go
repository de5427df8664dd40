package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JudgeBaseURL        string
	JudgeDefaultCPUMs   int
	JudgeDefaultMemKb   int
	JudgeWallClockGrace time.Duration

	SubmissionQueueName string

	ContestPollInterval    time.Duration
	LeaderboardTTLBuffer   time.Duration
	LeaderboardPurgeDelay  time.Duration
	ContestDisqualifyTTL   time.Duration
	MaxSubmissionsDefault  int
	PenaltyPerWrongDefault int

	DuelMaxParticipants int
	DuelAutoStartDelay  time.Duration
	MinorViolationLimit int

	DefaultRating int
	RatingKFactor int
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:       getEnv("API_PORT", "8080"),
		JWTKey:        []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:        time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "user"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "codeduel_db"),
		DBSslMode:     getEnv("DB_SSLMODE", "disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JudgeBaseURL:        getEnv("JUDGE_BASE_URL", "http://localhost:2358"),
		JudgeDefaultCPUMs:   getEnvAsInt("JUDGE_DEFAULT_CPU_MS", 2000),
		JudgeDefaultMemKb:   getEnvAsInt("JUDGE_DEFAULT_MEMORY_KB", 131072),
		JudgeWallClockGrace: time.Duration(getEnvAsInt("JUDGE_WALL_CLOCK_GRACE_SECONDS", 10)) * time.Second,

		SubmissionQueueName: getEnv("SUBMISSION_QUEUE_NAME", "submission_jobs_queue"),

		ContestPollInterval:    time.Duration(getEnvAsInt("CONTEST_POLL_INTERVAL_SECONDS", 30)) * time.Second,
		LeaderboardTTLBuffer:   time.Duration(getEnvAsInt("LEADERBOARD_TTL_BUFFER_MINUTES", 30)) * time.Minute,
		LeaderboardPurgeDelay:  time.Duration(getEnvAsInt("LEADERBOARD_PURGE_DELAY_MINUTES", 10)) * time.Minute,
		ContestDisqualifyTTL:   time.Duration(getEnvAsInt("CONTEST_DISQUALIFY_TTL_HOURS", 48)) * time.Hour,
		MaxSubmissionsDefault:  getEnvAsInt("MAX_SUBMISSIONS_PER_PROBLEM", 20),
		PenaltyPerWrongDefault: getEnvAsInt("PENALTY_PER_WRONG_SUBMISSION", 20),

		DuelMaxParticipants: getEnvAsInt("DUEL_MAX_PARTICIPANTS", 2),
		DuelAutoStartDelay:  time.Duration(getEnvAsInt("DUEL_AUTO_START_DELAY_MS", 1500)) * time.Millisecond,
		MinorViolationLimit: getEnvAsInt("MINOR_VIOLATION_LIMIT", 5),

		DefaultRating: getEnvAsInt("DEFAULT_RATING", 1200),
		RatingKFactor: getEnvAsInt("RATING_K_FACTOR", 32),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
