package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Database Database `mapstructure:"database"`
	Engine   Engine   `mapstructure:"engine"`
	Slots    Slots    `mapstructure:"slots"`
	Delivery Delivery `mapstructure:"delivery"`
	Ingest   Ingest   `mapstructure:"ingest"`
	Valkey   Valkey   `mapstructure:"valkey"`
	AI       AI       `mapstructure:"ai"`
	Operator Operator `mapstructure:"operator"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
}

// Database holds SQLite configuration
type Database struct {
	Path    string `mapstructure:"path"`
	Timeout string `mapstructure:"timeout"`
}

// Engine holds the curation engine tuning tables
type Engine struct {
	Dedup     Dedup     `mapstructure:"dedup"`
	Freshness Freshness `mapstructure:"freshness"`
	Scoring   Scoring   `mapstructure:"scoring"`
}

// Dedup holds duplicate-detection windows and the title similarity threshold
type Dedup struct {
	IngestWindow        string  `mapstructure:"ingest_window"`
	CrossSourceWindow   string  `mapstructure:"cross_source_window"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// Freshness holds the maximum age per urgency class before an item goes stale
type Freshness struct {
	Urgent        string `mapstructure:"urgent"`
	TimeSensitive string `mapstructure:"time_sensitive"`
	Evergreen     string `mapstructure:"evergreen"`
	Batchable     string `mapstructure:"batchable"`
}

// Scoring holds base scores per source trust tier and severity adjustments
type Scoring struct {
	Tier1Base    int `mapstructure:"tier1_base"`
	Tier2Base    int `mapstructure:"tier2_base"`
	Tier3Base    int `mapstructure:"tier3_base"`
	Tier4Base    int `mapstructure:"tier4_base"`
	OutageBoost  int `mapstructure:"outage_boost"`
	MajorBoost   int `mapstructure:"major_boost"`
	MinorPenalty int `mapstructure:"minor_penalty"`
}

// Slots holds per-slot send times and capacity bounds
type Slots struct {
	Morning SlotConfig `mapstructure:"morning"`
	Midday  SlotConfig `mapstructure:"midday"`
	Evening SlotConfig `mapstructure:"evening"`
}

// SlotConfig holds one digest slot's local send time and item bounds
type SlotConfig struct {
	Time     string `mapstructure:"time"`
	MinItems int    `mapstructure:"min_items"`
	MaxItems int    `mapstructure:"max_items"`
}

// Delivery holds digest delivery configuration
type Delivery struct {
	Endpoint        string `mapstructure:"endpoint"`
	Token           string `mapstructure:"token"`
	FromAddress     string `mapstructure:"from_address"`
	FromName        string `mapstructure:"from_name"`
	Timeout         string `mapstructure:"timeout"`
	DryRun          bool   `mapstructure:"dry_run"`
	Concurrency     int    `mapstructure:"concurrency"`
	QuietStart      string `mapstructure:"quiet_start"`
	QuietEnd        string `mapstructure:"quiet_end"`
	FreeDailyCap    int    `mapstructure:"free_daily_cap"`
	PremiumDailyCap int    `mapstructure:"premium_daily_cap"`
}

// Ingest holds feed polling configuration
type Ingest struct {
	Interval        string `mapstructure:"interval"`
	UrgentSweep     string `mapstructure:"urgent_sweep"`
	UserAgent       string `mapstructure:"user_agent"`
	Timeout         string `mapstructure:"timeout"`
	MaxItemsPerFeed int    `mapstructure:"max_items_per_feed"`
}

// Valkey holds the distributed lock backend configuration
type Valkey struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LockTTL  string `mapstructure:"lock_ttl"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Operator holds operator notification configuration
type Operator struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Timeout    string `mapstructure:"timeout"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".citybrief")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".citybrief")
	viper.SetDefault("app.timezone", "America/New_York")

	// Database defaults
	viper.SetDefault("database.path", ".citybrief/citybrief.db")
	viper.SetDefault("database.timeout", "5s")

	// Dedup defaults
	viper.SetDefault("engine.dedup.ingest_window", "24h")
	viper.SetDefault("engine.dedup.cross_source_window", "48h")
	viper.SetDefault("engine.dedup.similarity_threshold", 0.80)

	// Freshness windows per urgency class
	viper.SetDefault("engine.freshness.urgent", "1h")
	viper.SetDefault("engine.freshness.time_sensitive", "6h")
	viper.SetDefault("engine.freshness.evergreen", "24h")
	viper.SetDefault("engine.freshness.batchable", "72h")

	// Scoring defaults
	viper.SetDefault("engine.scoring.tier1_base", 80)
	viper.SetDefault("engine.scoring.tier2_base", 70)
	viper.SetDefault("engine.scoring.tier3_base", 60)
	viper.SetDefault("engine.scoring.tier4_base", 40)
	viper.SetDefault("engine.scoring.outage_boost", 15)
	viper.SetDefault("engine.scoring.major_boost", 8)
	viper.SetDefault("engine.scoring.minor_penalty", 10)

	// Slot defaults
	viper.SetDefault("slots.morning.time", "07:00")
	viper.SetDefault("slots.morning.min_items", 2)
	viper.SetDefault("slots.morning.max_items", 8)
	viper.SetDefault("slots.midday.time", "12:30")
	viper.SetDefault("slots.midday.min_items", 3)
	viper.SetDefault("slots.midday.max_items", 6)
	viper.SetDefault("slots.evening.time", "18:00")
	viper.SetDefault("slots.evening.min_items", 2)
	viper.SetDefault("slots.evening.max_items", 10)

	// Delivery defaults
	viper.SetDefault("delivery.from_address", "digest@citybrief.nyc")
	viper.SetDefault("delivery.from_name", "CityBrief")
	viper.SetDefault("delivery.timeout", "30s")
	viper.SetDefault("delivery.dry_run", false)
	viper.SetDefault("delivery.concurrency", 4)
	viper.SetDefault("delivery.quiet_start", "22:00")
	viper.SetDefault("delivery.quiet_end", "07:00")
	viper.SetDefault("delivery.free_daily_cap", 2)
	viper.SetDefault("delivery.premium_daily_cap", 4)

	// Ingest defaults
	viper.SetDefault("ingest.interval", "30m")
	viper.SetDefault("ingest.urgent_sweep", "15m")
	viper.SetDefault("ingest.user_agent", "CityBrief/1.0")
	viper.SetDefault("ingest.timeout", "30s")
	viper.SetDefault("ingest.max_items_per_feed", 50)

	// Valkey defaults
	viper.SetDefault("valkey.address", "127.0.0.1:6379")
	viper.SetDefault("valkey.db", 0)
	viper.SetDefault("valkey.lock_ttl", "60s")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash-preview-05-20")
	viper.SetDefault("ai.gemini.timeout", "120s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.3)

	// Operator defaults
	viper.SetDefault("operator.timeout", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "auto")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	// Delivery endpoint
	bindEnvKeys("delivery.endpoint", []string{
		"DELIVERY_ENDPOINT",
		"CITYBRIEF_DELIVERY_ENDPOINT",
	})

	bindEnvKeys("delivery.token", []string{
		"DELIVERY_TOKEN",
		"CITYBRIEF_DELIVERY_TOKEN",
	})

	// Valkey connection
	bindEnvKeys("valkey.address", []string{
		"VALKEY_ADDR",
		"VALKEY_ADDRESS",
		"REDIS_ADDR",
	})

	bindEnvKeys("valkey.password", []string{
		"VALKEY_PASSWORD",
		"REDIS_PASSWORD",
	})

	// Operator webhook
	bindEnvKeys("operator.webhook_url", []string{
		"OPERATOR_WEBHOOK_URL",
		"OPERATOR_WEBHOOK",
	})

	// Database path
	bindEnvKeys("database.path", []string{
		"CITYBRIEF_DB_PATH",
		"DATABASE_PATH",
	})

	// General settings
	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"CITYBRIEF_DEBUG",
	})

	bindEnvKeys("app.timezone", []string{
		"CITYBRIEF_TZ",
	})

	bindEnvKeys("delivery.dry_run", []string{
		"CITYBRIEF_DRY_RUN",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Database.Path != "" {
		config.Database.Path = expandPath(config.Database.Path)
	}

	// Validate durations
	durations := map[string]string{
		"database.timeout":                 config.Database.Timeout,
		"engine.dedup.ingest_window":       config.Engine.Dedup.IngestWindow,
		"engine.dedup.cross_source_window": config.Engine.Dedup.CrossSourceWindow,
		"engine.freshness.urgent":          config.Engine.Freshness.Urgent,
		"engine.freshness.time_sensitive":  config.Engine.Freshness.TimeSensitive,
		"engine.freshness.evergreen":       config.Engine.Freshness.Evergreen,
		"engine.freshness.batchable":       config.Engine.Freshness.Batchable,
		"delivery.timeout":                 config.Delivery.Timeout,
		"ingest.interval":                  config.Ingest.Interval,
		"ingest.urgent_sweep":              config.Ingest.UrgentSweep,
		"ingest.timeout":                   config.Ingest.Timeout,
		"valkey.lock_ttl":                  config.Valkey.LockTTL,
		"ai.gemini.timeout":                config.AI.Gemini.Timeout,
		"operator.timeout":                 config.Operator.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	// Validate wall-clock times
	clocks := map[string]string{
		"slots.morning.time":   config.Slots.Morning.Time,
		"slots.midday.time":    config.Slots.Midday.Time,
		"slots.evening.time":   config.Slots.Evening.Time,
		"delivery.quiet_start": config.Delivery.QuietStart,
		"delivery.quiet_end":   config.Delivery.QuietEnd,
	}

	for key, clock := range clocks {
		if clock != "" {
			if _, err := time.Parse("15:04", clock); err != nil {
				return fmt.Errorf("invalid time of day for %s: %s (want HH:MM)", key, clock)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	if t := config.Engine.Dedup.SimilarityThreshold; t <= 0 || t > 1 {
		errors = append(errors, fmt.Sprintf("engine.dedup.similarity_threshold must be in (0, 1], got %v", t))
	}

	for name, slot := range map[string]SlotConfig{
		"morning": config.Slots.Morning,
		"midday":  config.Slots.Midday,
		"evening": config.Slots.Evening,
	} {
		if slot.MinItems < 0 || slot.MaxItems < 1 {
			errors = append(errors, fmt.Sprintf("slots.%s: min_items must be >= 0 and max_items >= 1", name))
		}
		if slot.MinItems > slot.MaxItems {
			errors = append(errors, fmt.Sprintf("slots.%s: min_items (%d) exceeds max_items (%d)", name, slot.MinItems, slot.MaxItems))
		}
	}

	if config.Delivery.FreeDailyCap < 1 {
		errors = append(errors, "delivery.free_daily_cap must be at least 1")
	}
	if config.Delivery.PremiumDailyCap < config.Delivery.FreeDailyCap {
		errors = append(errors, "delivery.premium_daily_cap must not be lower than delivery.free_daily_cap")
	}
	if config.Delivery.Concurrency < 1 {
		errors = append(errors, "delivery.concurrency must be at least 1")
	}

	// Token without an endpoint is a misconfiguration; an endpoint without a
	// token is fine (open dev endpoints).
	if config.Delivery.Token != "" && config.Delivery.Endpoint == "" {
		errors = append(errors, "delivery.token is set but delivery.endpoint is empty. Set DELIVERY_ENDPOINT or delivery.endpoint in the config file")
	}

	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("unknown app.timezone: %s", config.App.Timezone))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App           { return Get().App }
func GetDatabase() Database { return Get().Database }
func GetEngine() Engine     { return Get().Engine }
func GetSlots() Slots       { return Get().Slots }
func GetDelivery() Delivery { return Get().Delivery }
func GetIngest() Ingest     { return Get().Ingest }
func GetValkey() Valkey     { return Get().Valkey }
func GetAI() AI             { return Get().AI }
func GetOperator() Operator { return Get().Operator }
func GetLogging() Logging   { return Get().Logging }

// Specific convenience getters for frequently accessed values
func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string  { return Get().AI.Gemini.Model }
func GetDatabasePath() string { return Get().Database.Path }
func IsDebugMode() bool       { return Get().App.Debug }

// Location returns the configured local timezone. Validated at load time,
// so a failed lookup here means the tz database itself is missing; fall back
// to UTC rather than crash mid-run.
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Duration helpers. Durations are validated in postProcessConfig, so parse
// failures can only come from empty strings; each helper falls back to its
// shipped default.

func (d Database) TimeoutDuration() time.Duration  { return durationOr(d.Timeout, 5*time.Second) }
func (d Dedup) IngestWindowDuration() time.Duration {
	return durationOr(d.IngestWindow, 24*time.Hour)
}
func (d Dedup) CrossSourceWindowDuration() time.Duration {
	return durationOr(d.CrossSourceWindow, 48*time.Hour)
}
func (f Freshness) UrgentDuration() time.Duration    { return durationOr(f.Urgent, time.Hour) }
func (f Freshness) TimeSensitiveDuration() time.Duration {
	return durationOr(f.TimeSensitive, 6*time.Hour)
}
func (f Freshness) EvergreenDuration() time.Duration { return durationOr(f.Evergreen, 24*time.Hour) }
func (f Freshness) BatchableDuration() time.Duration { return durationOr(f.Batchable, 72*time.Hour) }
func (d Delivery) TimeoutDuration() time.Duration    { return durationOr(d.Timeout, 30*time.Second) }
func (i Ingest) IntervalDuration() time.Duration     { return durationOr(i.Interval, 30*time.Minute) }
func (i Ingest) UrgentSweepDuration() time.Duration  { return durationOr(i.UrgentSweep, 15*time.Minute) }
func (i Ingest) TimeoutDuration() time.Duration      { return durationOr(i.Timeout, 30*time.Second) }
func (v Valkey) LockTTLDuration() time.Duration      { return durationOr(v.LockTTL, 60*time.Second) }
func (g GeminiConfig) TimeoutDuration() time.Duration {
	return durationOr(g.Timeout, 120*time.Second)
}
func (o Operator) TimeoutDuration() time.Duration { return durationOr(o.Timeout, 10*time.Second) }

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
