package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Postgres
	DatabaseURL string

	// Google OAuth + APIs
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GoogleCredentials  string

	// Firebase (push notifications)
	FirebaseCredentials string

	// AI + vector store
	GeminiApiKey   string
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	// DLP service
	DLPBaseURL    string
	DLPBatchSize  int
	DLPMaxRetries int

	// Vault encryption key (hex-encoded, 32 bytes)
	EncryptionKey string

	// Sync engine tuning. These are operational knobs: changing them must
	// never require touching algorithm code.
	RetentionDays         int
	SyncPageSize          int
	MailLookbackDays      int
	CalendarLookbackDays  int
	CalendarLookaheadDays int
	DriveLookbackDays     int
	SyncMaxRetries        int
	SyncFanout            int
	AutoSyncMinutes       int
	DedupWindow           time.Duration
	SyncJobStaleAfter     time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getEnvDuration("JWT_REFRESH_EXPIRY", 720*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=daybrief password=daybrief dbname=daybrief port=5432 sslmode=disable"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/connections/google/callback"),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", "provider-updates"),
		GoogleCredentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		GeminiApiKey:   getEnv("GEMINI_API_KEY", ""),
		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		DLPBaseURL:    getEnv("DLP_BASE_URL", "http://localhost:9090"),
		DLPBatchSize:  getEnvInt("DLP_BATCH_SIZE", 20),
		DLPMaxRetries: getEnvInt("DLP_MAX_RETRIES", 4),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		RetentionDays:         getEnvInt("RETENTION_DAYS", 90),
		SyncPageSize:          getEnvInt("SYNC_PAGE_SIZE", 100),
		MailLookbackDays:      getEnvInt("MAIL_LOOKBACK_DAYS", 7),
		CalendarLookbackDays:  getEnvInt("CALENDAR_LOOKBACK_DAYS", 7),
		CalendarLookaheadDays: getEnvInt("CALENDAR_LOOKAHEAD_DAYS", 30),
		DriveLookbackDays:     getEnvInt("DRIVE_LOOKBACK_DAYS", 14),
		SyncMaxRetries:        getEnvInt("SYNC_MAX_RETRIES", 3),
		SyncFanout:            getEnvInt("SYNC_FANOUT", 5),
		AutoSyncMinutes:       getEnvInt("AUTO_SYNC_MINUTES", 10),
		DedupWindow:           getEnvDuration("DEDUP_WINDOW", 5*time.Second),
		SyncJobStaleAfter:     getEnvDuration("SYNC_JOB_STALE_AFTER", 30*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
