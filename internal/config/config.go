package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"recommendation"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig collects every tunable the scoring pipeline depends on.
// Decay constants, thresholds and TTLs materially change cold-start
// behavior, so none of them are hard-coded in the engine.
type EngineConfig struct {
	Decay         DecayConfig         `mapstructure:"decay"`
	Weights       InteractionWeights  `mapstructure:"interaction_weights"`
	TagPreference TagPreferenceConfig `mapstructure:"tag_preference"`
	Content       ContentConfig       `mapstructure:"content_based"`
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	Social        SocialConfig        `mapstructure:"social"`
	Mixed         MixedConfig         `mapstructure:"mixed"`
	Caching       CachingConfig       `mapstructure:"caching"`
	Sampling      SamplingConfig      `mapstructure:"sampling"`
	Warmer        WarmerConfig        `mapstructure:"warmer"`
}

type DecayConfig struct {
	Factor  float64 `mapstructure:"factor"`
	MaxDays int     `mapstructure:"max_days"`
	Floor   float64 `mapstructure:"floor"`
}

type InteractionWeights struct {
	Like    float64 `mapstructure:"like"`
	Comment float64 `mapstructure:"comment"`
	Share   float64 `mapstructure:"share"`
	Collect float64 `mapstructure:"collect"`
	View    float64 `mapstructure:"view"`
	Dislike float64 `mapstructure:"dislike"`
}

type TagPreferenceConfig struct {
	MinInteractions     int     `mapstructure:"min_interactions"`
	ColdStartConfidence float64 `mapstructure:"cold_start_confidence"`
}

type ContentConfig struct {
	TopPreferredTags int     `mapstructure:"top_preferred_tags"`
	MinSimilarity    float64 `mapstructure:"min_similarity"`
	HotScoreWeight   float64 `mapstructure:"hot_score_weight"`
	HotScoreNorm     float64 `mapstructure:"hot_score_norm"`
}

type CollaborativeConfig struct {
	MinSimilarity   float64 `mapstructure:"min_similarity"`
	MaxSimilarUsers int     `mapstructure:"max_similar_users"`
}

type SocialConfig struct {
	DirectWeight       float64 `mapstructure:"direct_weight"`
	MutualWeight       float64 `mapstructure:"mutual_weight"`
	SecondDegreeWeight float64 `mapstructure:"second_degree_weight"`
	ThirdDegreeWeight  float64 `mapstructure:"third_degree_weight"`
	MaxItemScore       float64 `mapstructure:"max_item_score"`
	MinReasonWeight    float64 `mapstructure:"min_reason_weight"`
	MaxReasons         int     `mapstructure:"max_reasons"`
	ExpansionRounds    int     `mapstructure:"expansion_rounds"`
	MaxGraphNodes      int     `mapstructure:"max_graph_nodes"`
}

type MixedConfig struct {
	ActivityWindow time.Duration `mapstructure:"activity_window"`
	ActivityFloor  int           `mapstructure:"activity_floor"`
}

type CachingConfig struct {
	TagPreferencesTTL  time.Duration `mapstructure:"tag_preferences_ttl"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
	MixedTTL           time.Duration `mapstructure:"mixed_ttl"`
}

type SamplingConfig struct {
	ActiveUserCap int `mapstructure:"active_user_cap"`
	PublicItemCap int `mapstructure:"public_item_cap"`
}

type WarmerConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Decay defaults
	viper.SetDefault("recommendation.decay.factor", 0.95)
	viper.SetDefault("recommendation.decay.max_days", 365)
	viper.SetDefault("recommendation.decay.floor", 0.1)

	// Interaction weight defaults
	viper.SetDefault("recommendation.interaction_weights.like", 1.0)
	viper.SetDefault("recommendation.interaction_weights.comment", 2.0)
	viper.SetDefault("recommendation.interaction_weights.share", 3.0)
	viper.SetDefault("recommendation.interaction_weights.collect", 1.5)
	viper.SetDefault("recommendation.interaction_weights.view", 0.1)
	viper.SetDefault("recommendation.interaction_weights.dislike", -0.5)

	// Tag preference defaults
	viper.SetDefault("recommendation.tag_preference.min_interactions", 3)
	viper.SetDefault("recommendation.tag_preference.cold_start_confidence", 0.1)

	// Content-based defaults
	viper.SetDefault("recommendation.content_based.top_preferred_tags", 5)
	viper.SetDefault("recommendation.content_based.min_similarity", 0.1)
	viper.SetDefault("recommendation.content_based.hot_score_weight", 0.3)
	viper.SetDefault("recommendation.content_based.hot_score_norm", 1000.0)

	// Collaborative defaults
	viper.SetDefault("recommendation.collaborative.min_similarity", 0.3)
	viper.SetDefault("recommendation.collaborative.max_similar_users", 50)

	// Social defaults
	viper.SetDefault("recommendation.social.direct_weight", 1.0)
	viper.SetDefault("recommendation.social.mutual_weight", 1.5)
	viper.SetDefault("recommendation.social.second_degree_weight", 0.6)
	viper.SetDefault("recommendation.social.third_degree_weight", 0.3)
	viper.SetDefault("recommendation.social.max_item_score", 20.0)
	viper.SetDefault("recommendation.social.min_reason_weight", 2.0)
	viper.SetDefault("recommendation.social.max_reasons", 3)
	viper.SetDefault("recommendation.social.expansion_rounds", 2)
	viper.SetDefault("recommendation.social.max_graph_nodes", 2000)

	// Mixed defaults
	viper.SetDefault("recommendation.mixed.activity_window", "720h")
	viper.SetDefault("recommendation.mixed.activity_floor", 5)

	// Caching defaults
	viper.SetDefault("recommendation.caching.tag_preferences_ttl", "1h")
	viper.SetDefault("recommendation.caching.recommendations_ttl", "15m")
	viper.SetDefault("recommendation.caching.mixed_ttl", "15m")

	// Sampling defaults
	viper.SetDefault("recommendation.sampling.active_user_cap", 1000)
	viper.SetDefault("recommendation.sampling.public_item_cap", 5000)

	// Warmer defaults
	viper.SetDefault("recommendation.warmer.batch_size", 50)
	viper.SetDefault("recommendation.warmer.batch_delay", "2s")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
