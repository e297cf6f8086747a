package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Intelligence IntelligenceConfig
	Embedding    EmbeddingConfig
	Similarity   SimilarityConfig
	Whois        WhoisConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type IntelligenceConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type EmbeddingConfig struct {
	Model    string
	Dim      int
	MaxChars int
}

type SimilarityConfig struct {
	// Backend selects the corpus index: "store" scans persisted
	// records, "milvus" uses an ANN collection.
	Backend string
	Milvus  MilvusConfig
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
}

type WhoisConfig struct {
	BaseURL    string
	TimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/orgscan")

	viper.SetEnvPrefix("ORGSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 60)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/orgscan.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 24)

	viper.SetDefault("intelligence.model", "gpt-4o-mini")
	viper.SetDefault("intelligence.temperature", 0.1)
	viper.SetDefault("intelligence.maxTokens", 1024)
	viper.SetDefault("intelligence.timeoutSec", 30)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dim", 1536)
	viper.SetDefault("embedding.maxChars", 2000)

	viper.SetDefault("similarity.backend", "store")
	viper.SetDefault("similarity.milvus.endpoint", "localhost:19530")
	viper.SetDefault("similarity.milvus.collectionName", "org_submissions")

	viper.SetDefault("whois.baseURL", "https://whois.freeaiapi.xyz")
	viper.SetDefault("whois.timeoutSec", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
