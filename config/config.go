package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxExternalTimeout bounds every call to the store, broker, calendar and
// audit services. A missed tick must never hold a lock past its expiry.
const MaxExternalTimeout = 10 * time.Second

type Config struct {
	ServerConfig   ServerConfig   `json:"server" yaml:"server"`
	LoggingConfig  LoggingConfig  `json:"logging" yaml:"logging"`
	RedisConfig    RedisConfig    `json:"redis" yaml:"redis"`
	DatabaseConfig DatabaseConfig `json:"database" yaml:"database"`
	VaultConfig    VaultConfig    `json:"vault" yaml:"vault"`
	BinanceConfig  BinanceConfig  `json:"binance" yaml:"binance"`
	PipelineConfig PipelineConfig `json:"pipeline" yaml:"pipeline"`
	ScalpConfig    ScalpConfig    `json:"scalp" yaml:"scalp"`
	SwingConfig    SwingConfig    `json:"swing" yaml:"swing"`
	RegimeConfig   RegimeConfig   `json:"regime" yaml:"regime"`
	RiskConfig     RiskConfig     `json:"risk" yaml:"risk"`
	ChaosConfig    ChaosConfig    `json:"chaos" yaml:"chaos"`
	CircuitConfig  CircuitConfig  `json:"circuit" yaml:"circuit"`
	CalendarConfig CalendarConfig `json:"calendar" yaml:"calendar"`
	LLMConfig      LLMConfig      `json:"llm" yaml:"llm"`
	KafkaConfig    KafkaConfig    `json:"kafka" yaml:"kafka"`
	AuthConfig     AuthConfig     `json:"auth" yaml:"auth"`
}

type ServerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled" default:"true"`
	Host            string `json:"host" yaml:"host" default:"0.0.0.0"`
	Port            int    `json:"port" yaml:"port" default:"8080" validate:"min=1,max=65535"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins" default:"*"`
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout" default:"30"` // seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout" default:"30"`
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"10"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" default:"INFO"` // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output" yaml:"output" default:"stdout"`
	JSONFormat bool   `json:"json_format" yaml:"json_format" default:"true"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" default:"true"`
	Address  string `json:"address" yaml:"address" default:"localhost:6379"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" default:"20"`
	Prefix   string `json:"prefix" yaml:"prefix" default:"rtb:"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" default:"true"`
	Host     string `json:"host" yaml:"host" default:"localhost"`
	Port     int    `json:"port" yaml:"port" default:"5432"`
	User     string `json:"user" yaml:"user" default:"trading_bot"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database" default:"trading_bot"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full prefer allow"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns" default:"10"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address" default:"http://localhost:8200"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path" default:"secret"`
	SecretPath string `json:"secret_path" yaml:"secret_path" default:"regime-trading-bot/broker"`
}

type BinanceConfig struct {
	APIKey     string  `json:"api_key" yaml:"api_key"`
	SecretKey  string  `json:"secret_key" yaml:"secret_key"`
	TestNet    bool    `json:"testnet" yaml:"testnet"`
	MockMode   bool    `json:"mock_mode" yaml:"mock_mode"` // synthetic candles, no broker calls
	MockSeed   int64   `json:"mock_seed" yaml:"mock_seed" default:"42"`
	MockEquity float64 `json:"mock_equity" yaml:"mock_equity" default:"10000"`
}

type PipelineConfig struct {
	Symbols         []string      `json:"symbols" yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\"]" validate:"min=1,dive,required"`
	Strategy        string        `json:"strategy" yaml:"strategy" default:"scalp" validate:"oneof=scalp swing"`
	Timeframe       string        `json:"timeframe" yaml:"timeframe" default:"15m"`
	CandleLimit     int           `json:"candle_limit" yaml:"candle_limit" default:"250" validate:"min=50,max=1500"`
	TickInterval    time.Duration `json:"tick_interval" yaml:"tick_interval" default:"5m"`
	JobLockTTL      time.Duration `json:"job_lock_ttl" yaml:"job_lock_ttl" default:"4m"`
	SymbolLockTTL   time.Duration `json:"symbol_lock_ttl" yaml:"symbol_lock_ttl" default:"2m"`
	MaxConcurrency  int           `json:"max_concurrency" yaml:"max_concurrency" default:"4" validate:"min=1"`
	ExternalTimeout time.Duration `json:"external_timeout" yaml:"external_timeout" default:"8s"`
}

type ScalpConfig struct {
	MinScore        float64 `json:"min_score" yaml:"min_score" default:"6"`
	StopATRMult     float64 `json:"stop_atr_mult" yaml:"stop_atr_mult" default:"1.0" validate:"gt=0"`
	TargetATRMult   float64 `json:"target_atr_mult" yaml:"target_atr_mult" default:"7.0" validate:"gt=0"`
	ProximityATR    float64 `json:"proximity_atr" yaml:"proximity_atr" default:"0.5"`
	StochOversold   float64 `json:"stoch_oversold" yaml:"stoch_oversold" default:"20"`
	StochOverbought float64 `json:"stoch_overbought" yaml:"stoch_overbought" default:"80"`
}

type SwingConfig struct {
	VolumeSurgeRatio float64 `json:"volume_surge_ratio" yaml:"volume_surge_ratio" default:"1.2"`
	ADXThreshold     float64 `json:"adx_threshold" yaml:"adx_threshold" default:"25"`
	RetestPercent    float64 `json:"retest_percent" yaml:"retest_percent" default:"1.0"`
	StopATRMult      float64 `json:"stop_atr_mult" yaml:"stop_atr_mult" default:"1.5" validate:"gt=0"`
	RewardRatio      float64 `json:"reward_ratio" yaml:"reward_ratio" default:"2.5" validate:"gt=0"`
}

// RegimeConfig selects estimator variants; the thresholds are fixed.
type RegimeConfig struct {
	HurstCorrection bool `json:"hurst_correction" yaml:"hurst_correction"` // Anis-Lloyd small-sample correction
}

type RiskConfig struct {
	MinConfidence  float64       `json:"min_confidence" yaml:"min_confidence" default:"75"`
	MaxRiskPercent float64       `json:"max_risk_percent" yaml:"max_risk_percent" default:"1.0" validate:"gt=0,lte=1"`
	NewsBuffer     time.Duration `json:"news_buffer" yaml:"news_buffer" default:"30m"`
	KillSwitchKey  string        `json:"kill_switch_key" yaml:"kill_switch_key" default:"killswitch:global"`
	AuditEnabled   bool          `json:"audit_enabled" yaml:"audit_enabled"`
	AuditVeto      bool          `json:"audit_veto" yaml:"audit_veto" default:"true"`
	KellyLookback  int           `json:"kelly_lookback" yaml:"kelly_lookback" default:"50"`
	KellyMinTrades int           `json:"kelly_min_trades" yaml:"kelly_min_trades" default:"10"`
	PriorWinRate   float64       `json:"prior_win_rate" yaml:"prior_win_rate" default:"0.55" validate:"gte=0,lte=1"`
	PriorAvgWin    float64       `json:"prior_avg_win" yaml:"prior_avg_win" default:"1.5" validate:"gt=0"`
	PriorAvgLoss   float64       `json:"prior_avg_loss" yaml:"prior_avg_loss" default:"1.0" validate:"gt=0"`
}

type ChaosConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Tier       string        `json:"tier" yaml:"tier" default:"LOW" validate:"oneof=LOW MEDIUM HIGH"`
	DelayShape float64       `json:"delay_shape" yaml:"delay_shape" default:"1.5"`
	DelayScale float64       `json:"delay_scale" yaml:"delay_scale" default:"0.5"` // seconds
	DelayFloor time.Duration `json:"delay_floor" yaml:"delay_floor" default:"150ms"`
}

type CircuitConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" default:"5" validate:"min=1"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" default:"60s"`
}

type CalendarConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" default:"true"`
	URL      string        `json:"url" yaml:"url" default:"https://nfs.faireconomy.media/ff_calendar_thisweek.json"`
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" default:"1h"`
}

type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider" default:"claude" validate:"oneof=claude openai deepseek"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	Model    string `json:"model" yaml:"model" default:"claude-3-haiku-20240307"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topic   string   `json:"topic" yaml:"topic" default:"trading.decisions"`
}

type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration" default:"15m"`
	OperatorUser        string        `json:"operator_user" yaml:"operator_user" default:"operator"`
	OperatorPassHash    string        `json:"operator_pass_hash" yaml:"operator_pass_hash"` // bcrypt
}

// Load reads the config file (JSON or YAML), fills defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	// Environment variables take precedence over the file
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.PipelineConfig.SymbolLockTTL <= 0 || c.PipelineConfig.JobLockTTL <= 0 {
		return fmt.Errorf("invalid config: lock TTLs must be positive")
	}
	if c.PipelineConfig.ExternalTimeout <= 0 || c.PipelineConfig.ExternalTimeout > MaxExternalTimeout {
		return fmt.Errorf("invalid config: external_timeout must be in (0, %s]", MaxExternalTimeout)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("invalid config: auth enabled without jwt_secret")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Binance
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)

	// Pipeline
	if symbols := getEnvOrDefault("PIPELINE_SYMBOLS", ""); symbols != "" {
		cfg.PipelineConfig.Symbols = splitList(symbols)
	}
	cfg.PipelineConfig.Strategy = getEnvOrDefault("PIPELINE_STRATEGY", cfg.PipelineConfig.Strategy)
	cfg.PipelineConfig.Timeframe = getEnvOrDefault("PIPELINE_TIMEFRAME", cfg.PipelineConfig.Timeframe)
	cfg.PipelineConfig.TickInterval = getEnvDurationOrDefault("PIPELINE_TICK_INTERVAL", cfg.PipelineConfig.TickInterval)
	cfg.PipelineConfig.ExternalTimeout = getEnvDurationOrDefault("PIPELINE_EXTERNAL_TIMEOUT", cfg.PipelineConfig.ExternalTimeout)

	// Regime
	cfg.RegimeConfig.HurstCorrection = getEnvBoolOrDefault("REGIME_HURST_CORRECTION", cfg.RegimeConfig.HurstCorrection)

	// Risk
	cfg.RiskConfig.MinConfidence = getEnvFloatOrDefault("RISK_MIN_CONFIDENCE", cfg.RiskConfig.MinConfidence)
	cfg.RiskConfig.MaxRiskPercent = getEnvFloatOrDefault("RISK_MAX_PERCENT", cfg.RiskConfig.MaxRiskPercent)
	cfg.RiskConfig.NewsBuffer = getEnvDurationOrDefault("RISK_NEWS_BUFFER", cfg.RiskConfig.NewsBuffer)
	cfg.RiskConfig.AuditEnabled = getEnvBoolOrDefault("RISK_AUDIT_ENABLED", cfg.RiskConfig.AuditEnabled)
	cfg.RiskConfig.AuditVeto = getEnvBoolOrDefault("RISK_AUDIT_VETO", cfg.RiskConfig.AuditVeto)

	// Chaos factor
	cfg.ChaosConfig.Enabled = getEnvBoolOrDefault("CHAOS_ENABLED", cfg.ChaosConfig.Enabled)
	cfg.ChaosConfig.Tier = strings.ToUpper(getEnvOrDefault("CHAOS_TIER", cfg.ChaosConfig.Tier))

	// Circuit breakers
	cfg.CircuitConfig.FailureThreshold = getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", cfg.CircuitConfig.FailureThreshold)
	cfg.CircuitConfig.Timeout = getEnvDurationOrDefault("CIRCUIT_TIMEOUT", cfg.CircuitConfig.Timeout)

	// Calendar
	cfg.CalendarConfig.Enabled = getEnvBoolOrDefault("CALENDAR_ENABLED", cfg.CalendarConfig.Enabled)
	cfg.CalendarConfig.URL = getEnvOrDefault("CALENDAR_URL", cfg.CalendarConfig.URL)

	// LLM
	cfg.LLMConfig.Provider = getEnvOrDefault("AI_LLM_PROVIDER", cfg.LLMConfig.Provider)
	cfg.LLMConfig.APIKey = getEnvOrDefault("AI_LLM_API_KEY", cfg.LLMConfig.APIKey)
	cfg.LLMConfig.Model = getEnvOrDefault("AI_LLM_MODEL", cfg.LLMConfig.Model)

	// Kafka
	cfg.KafkaConfig.Enabled = getEnvBoolOrDefault("KAFKA_ENABLED", cfg.KafkaConfig.Enabled)
	if brokers := getEnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaConfig.Brokers = splitList(brokers)
	}
	cfg.KafkaConfig.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.KafkaConfig.Topic)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a config file populated with defaults.
func GenerateSampleConfig(filename string) error {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return err
	}
	cfg.BinanceConfig.MockMode = true

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
