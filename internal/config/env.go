package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	GenModel     string
	Port         string
	JWTSecret    string
	PaymentToken string

	// ShardPool is the fixed set of vector-index shards users are routed onto.
	ShardPool []string

	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int
	EmbedDim     int

	// Quota knobs: actions in the trailing 24h and total storage volume units.
	DailyActionLimit   int
	StorageVolumeLimit float64

	// AllowlistIDs bypass the subscription check entirely.
	AllowlistIDs []int64

	// Periodic reindex walker.
	ReindexIntervalMin int
	ReindexPauseSec    int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "saved-ai-imports"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		PaymentToken: getEnv("PAYMENT_TOKEN", ""),

		ShardPool: splitList(getEnv("SHARD_POOL", "saved-ai-1,saved-ai-2,saved-ai-3")),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1024),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 256),
		EmbedBatch:   getEnvInt("EMBED_BATCH", 16),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),

		DailyActionLimit:   getEnvInt("DAILY_ACTION_LIMIT", 30),
		StorageVolumeLimit: float64(getEnvInt("STORAGE_VOLUME_LIMIT", 200)),

		AllowlistIDs: splitIDList(getEnv("ALLOWLIST_IDS", "")),

		ReindexIntervalMin: getEnvInt("UPDATE_INTERVAL", 60),
		ReindexPauseSec:    getEnvInt("UPDATE_PAUSE", 1),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if len(cfg.ShardPool) == 0 {
		log.Fatal("SHARD_POOL is empty")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitIDList(s string) []int64 {
	var out []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("WARN: skipping non-numeric id %q in list", part)
			continue
		}
		out = append(out, id)
	}
	return out
}
