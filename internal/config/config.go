package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
// Незаданные поля берутся из переменных окружения, затем из значений по умолчанию.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Storage   StorageConfig   `yaml:"storage"`
	Positions PositionsConfig `yaml:"positions"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Audit     AuditConfig     `yaml:"audit"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`      // websocket
	RESTPort     int    `yaml:"rest_port"` // админка, /health, /metrics
	MaxPlayers   int    `yaml:"max_players"`
	OneUserPerIP *bool  `yaml:"one_user_per_ip"`
	BehindProxy  *bool  `yaml:"behind_proxy"`
	AdminIP      string `yaml:"admin_ip"`
	ClientOrigin string `yaml:"client_origin"`
}

// GetPort возвращает порт websocket с поддержкой fallback значений
func (s *ServerConfig) GetPort() int {
	return getPortWithEnvFallback(s.Port, "PORT", 3000)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "GAME_REST_PORT", 8088)
}

func (s *ServerConfig) GetMaxPlayers() int {
	return getIntWithEnvFallback(s.MaxPlayers, "MAX_PLAYERS", 20)
}

func (s *ServerConfig) GetOneUserPerIP() bool {
	return getBoolWithEnvFallback(s.OneUserPerIP, "ONE_USER_PER_IP", false)
}

func (s *ServerConfig) GetBehindProxy() bool {
	return getBoolWithEnvFallback(s.BehindProxy, "IS_BEHIND_PROXY", false)
}

func (s *ServerConfig) GetAdminIP() string {
	return getStringWithEnvFallback(s.AdminIP, "ADMIN_IP", "")
}

func (s *ServerConfig) GetClientOrigin() string {
	return getStringWithEnvFallback(s.ClientOrigin, "CLIENT_ORIGIN_URL", "*")
}

type WorldConfig struct {
	SX            int     `yaml:"sx"`
	SY            int     `yaml:"sy"`
	SZ            int     `yaml:"sz"`
	GroundHeight  int     `yaml:"ground_height"`
	Generator     string  `yaml:"generator"` // flat | perlin
	Seed          string  `yaml:"seed"`
	Magnitude     float64 `yaml:"magnitude"`
	GravityTickMs int     `yaml:"gravity_tick_ms"` // < 0 — выключено
	FallbackWorld string  `yaml:"fallback_world"`  // путь к файлу мира-шаблона
}

// GetSize возвращает размеры мира
func (w *WorldConfig) GetSize() (sx, sy, sz int) {
	return getIntWithEnvFallback(w.SX, "WORLD_SX", 256),
		getIntWithEnvFallback(w.SY, "WORLD_SY", 256),
		getIntWithEnvFallback(w.SZ, "WORLD_SZ", 64)
}

func (w *WorldConfig) GetGroundHeight() int {
	return getIntWithEnvFallback(w.GroundHeight, "WORLD_GROUNDHEIGHT", 32)
}

func (w *WorldConfig) GetGenerator() string {
	return strings.ToLower(getStringWithEnvFallback(w.Generator, "WORLD_GENERATOR", "perlin"))
}

func (w *WorldConfig) GetSeed() string {
	return getStringWithEnvFallback(w.Seed, "WORLD_SEED", "acid-info")
}

func (w *WorldConfig) GetMagnitude() float64 {
	if w.Magnitude > 0 {
		return w.Magnitude
	}
	return 0.1
}

// GetGravityInterval — период шага гравитации; 0 — гравитация выключена
func (w *WorldConfig) GetGravityInterval() time.Duration {
	if w.GravityTickMs < 0 {
		return 0
	}
	return time.Duration(getIntWithEnvFallback(w.GravityTickMs, "WORLD_GRAVITY_TICK_MS", 100)) * time.Millisecond
}

func (w *WorldConfig) GetFallbackWorld() string {
	return getStringWithEnvFallback(w.FallbackWorld, "FALLBACK_WORLD_FILE", "")
}

type StorageConfig struct {
	Backend      string `yaml:"backend"` // file | badger | bolt
	Dir          string `yaml:"dir"`
	FileName     string `yaml:"file_name"`
	SaveInterval int    `yaml:"save_interval_seconds"`
}

func (s *StorageConfig) GetBackend() string {
	return strings.ToLower(getStringWithEnvFallback(s.Backend, "WORLD_STORAGE", "file"))
}

func (s *StorageConfig) GetDir() string {
	return getStringWithEnvFallback(s.Dir, "WORLD_FILE_FOLDER", "saved_world_data")
}

func (s *StorageConfig) GetFileName() string {
	return getStringWithEnvFallback(s.FileName, "WORLD_FILE_NAME", "world")
}

func (s *StorageConfig) GetSaveInterval() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.SaveInterval, "SECONDS_BETWEEN_SAVES", 60)) * time.Second
}

type PositionsConfig struct {
	Backend   string `yaml:"backend"` // memory | redis | maria
	RedisAddr string `yaml:"redis_addr"`
	MariaDSN  string `yaml:"maria_dsn"`
}

func (p *PositionsConfig) GetBackend() string {
	return strings.ToLower(getStringWithEnvFallback(p.Backend, "POSITIONS_BACKEND", "memory"))
}

func (p *PositionsConfig) GetRedisAddr() string {
	return getStringWithEnvFallback(p.RedisAddr, "REDIS_ADDR", "localhost:6379")
}

func (p *PositionsConfig) GetMariaDSN() string {
	return getStringWithEnvFallback(p.MariaDSN, "MARIA_DSN", "")
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | jetstream
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

func (e *EventBusConfig) GetBackend() string {
	return strings.ToLower(getStringWithEnvFallback(e.Backend, "EVENTBUS_BACKEND", "memory"))
}

func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "NATS_URL", "nats://127.0.0.1:4222")
}

func (e *EventBusConfig) GetStream() string {
	return getStringWithEnvFallback(e.Stream, "NATS_STREAM", "EVENTS")
}

func (e *EventBusConfig) GetRetention() time.Duration {
	return time.Duration(getIntWithEnvFallback(e.Retention, "NATS_RETENTION_HOURS", 24)) * time.Hour
}

func (e *EventBusConfig) GetBuffer() int {
	return getIntWithEnvFallback(e.Buffer, "EVENTBUS_BUFFER", 1024)
}

type AuditConfig struct {
	Backend    string `yaml:"backend"` // memory | mongo
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func (a *AuditConfig) GetBackend() string {
	return strings.ToLower(getStringWithEnvFallback(a.Backend, "AUDIT_BACKEND", "memory"))
}

func (a *AuditConfig) GetMongoURI() string {
	return getStringWithEnvFallback(a.MongoURI, "MONGO_URI", "mongodb://localhost:27017")
}

type AuthConfig struct {
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password_hash"` // bcrypt
	JWTSecret     string `yaml:"jwt_secret"`          // base64
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

func (a *AuthConfig) GetAdminUser() string {
	return getStringWithEnvFallback(a.AdminUser, "ADMIN_USER", "admin")
}

func (a *AuthConfig) GetAdminPasswordHash() string {
	return getStringWithEnvFallback(a.AdminPassword, "ADMIN_PASSWORD_HASH", "")
}

func (a *AuthConfig) GetJWTSecret() string {
	return getStringWithEnvFallback(a.JWTSecret, "JWT_SECRET", "")
}

func (a *AuthConfig) GetTokenTTL() time.Duration {
	return time.Duration(getIntWithEnvFallback(a.TokenTTLHours, "JWT_TTL_HOURS", 12)) * time.Hour
}

type TelemetryConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ServiceName string   `yaml:"service_name"`
	Endpoint    string   `yaml:"endpoint"`
	Insecure    bool     `yaml:"insecure"`
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// GetSampleRatio — доля трасс; по умолчанию пишем все
func (t *TelemetryConfig) GetSampleRatio() float64 {
	if t.SampleRatio != nil {
		return *t.SampleRatio
	}
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLE_RATIO"), 64); err == nil {
		return v
	}
	return 1
}

func (t *TelemetryConfig) GetServiceName() string {
	return getStringWithEnvFallback(t.ServiceName, "OTEL_SERVICE_NAME", "voxel-server")
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	Components string `yaml:"components"` // network=debug,storage=warn
}

func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "LOG_LEVEL", "info")
}

func (l *LoggingConfig) GetDir() string {
	return getStringWithEnvFallback(l.Dir, "LOG_DIR", "logs")
}

func (l *LoggingConfig) GetComponents() string {
	return getStringWithEnvFallback(l.Components, "LOG_COMPONENTS", "")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	port := getIntWithEnvFallback(configPort, envVar, defaultPort)
	if port > 65535 {
		return defaultPort
	}
	return port
}

func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configValue > 0 {
		return configValue
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

func getBoolWithEnvFallback(configValue *bool, envVar string, defaultValue bool) bool {
	if configValue != nil {
		return *configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal == "true"
	}
	return defaultValue
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV GAME_CONFIG; без файла возвращает пустой Config
// (все значения из окружения и дефолтов).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	return &cfg, nil
}
