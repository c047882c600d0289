// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Blockchain  BlockchainConfig
	Sync        SyncConfig
	Storage     StorageConfig
	AWS         AWSConfig
	Email       EmailConfig
	Events      EventsConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

// BlockchainConfig describes the authoritative contract. RPCURLs holds extra
// chains that may be synchronized on demand, keyed by chain id.
type BlockchainConfig struct {
	ChainID         uint64
	RPCURL          string
	RPCURLs         map[uint64]string
	PrivateKey      string
	ContractAddress string
}

type SyncConfig struct {
	Enabled       bool
	Interval      time.Duration
	RPCTimeout    time.Duration
	MaxBlockRange uint64
}

type StorageConfig struct {
	Provider         string // lighthouse | s3
	LighthouseAPIKey string
	LighthouseURL    string
	GatewayURL       string
	MaxUploadSize    int64
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "provenance"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Blockchain: BlockchainConfig{
			ChainID:         getEnvAsUint64("BLOCKCHAIN_CHAIN_ID", 31337),
			RPCURL:          getEnv("BLOCKCHAIN_RPC_URL", "http://localhost:8545"),
			RPCURLs:         getEnvAsChainMap("BLOCKCHAIN_RPC_URLS"),
			PrivateKey:      getEnv("BLOCKCHAIN_PRIVATE_KEY", ""),
			ContractAddress: getEnv("BLOCKCHAIN_CONTRACT_ADDRESS", ""),
		},
		Sync: SyncConfig{
			Enabled:       getEnvAsBool("SYNC_ENABLED", true),
			Interval:      getEnvAsDuration("SYNC_INTERVAL", time.Minute),
			RPCTimeout:    getEnvAsDuration("SYNC_RPC_TIMEOUT", 20*time.Second),
			MaxBlockRange: getEnvAsUint64("SYNC_MAX_BLOCK_RANGE", 5000),
		},
		Storage: StorageConfig{
			Provider:         getEnv("STORAGE_PROVIDER", "lighthouse"),
			LighthouseAPIKey: getEnv("LIGHTHOUSE_API_KEY", ""),
			LighthouseURL:    getEnv("LIGHTHOUSE_URL", "https://node.lighthouse.storage"),
			GatewayURL:       getEnv("IPFS_GATEWAY_URL", "https://gateway.lighthouse.storage/ipfs"),
			MaxUploadSize:    int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 100)) * 1024 * 1024,
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "provenance-documents"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@provenance.app"),
			FromName:     getEnv("FROM_NAME", "Product Provenance"),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "provenance.events"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Blockchain.ContractAddress == "" && c.Environment == "production" {
		return fmt.Errorf("contract address is required in production")
	}

	switch c.Storage.Provider {
	case "lighthouse", "s3":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}

	if c.Sync.MaxBlockRange == 0 {
		return fmt.Errorf("SYNC_MAX_BLOCK_RANGE must be positive")
	}

	return nil
}

// Endpoints returns every configured endpoint keyed by chain id, including the
// primary chain.
func (b *BlockchainConfig) Endpoints() map[uint64]string {
	out := make(map[uint64]string, len(b.RPCURLs)+1)
	for chainID, url := range b.RPCURLs {
		out[chainID] = url
	}
	if b.RPCURL != "" {
		out[b.ChainID] = b.RPCURL
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsChainMap parses "137=https://a,80001=https://b".
func getEnvAsChainMap(key string) map[uint64]string {
	out := make(map[uint64]string)
	value := os.Getenv(key)
	if value == "" {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		chainID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}
		out[chainID] = parts[1]
	}
	return out
}
