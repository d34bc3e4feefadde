package global

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig carries every option the gateway binary recognizes. Values come
// from environment variables with the defaults below; norm() fills anything
// left unset.
type AppConfig struct {
	Addr           string
	JWTSecret      []byte
	AllowedOrigins []string

	MongoURI      string
	MongoDatabase string
	MongoUser     string
	MongoPassword string
	MongoPoolSize int
	MongoMaxRetry int

	RedisAddr     string // empty disables the presence mirror
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	MaxConnsPerUser int
	PresenceWindow  time.Duration
	TypingWindow    time.Duration
	JoinLeaveWindow time.Duration
	DedupeWindow    time.Duration
	CleanupInterval time.Duration
	StaleMaxAge     time.Duration

	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int
	PingInterval  time.Duration
	PongWait      time.Duration
}

func (c *AppConfig) norm() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if len(c.JWTSecret) == 0 {
		c.JWTSecret = []byte("dev-secret-change-me")
	}
	if c.MongoURI == "" {
		c.MongoURI = "mongodb://localhost:27017"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "freelanceit"
	}
	if c.MongoPoolSize <= 0 {
		c.MongoPoolSize = 20
	}
	if c.MongoMaxRetry <= 0 {
		c.MongoMaxRetry = 3
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 60 * time.Second
	}
	if c.MaxConnsPerUser <= 0 {
		c.MaxConnsPerUser = 5
	}
	if c.PresenceWindow <= 0 {
		c.PresenceWindow = 30 * time.Second
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = 1 * time.Second
	}
	if c.JoinLeaveWindow <= 0 {
		c.JoinLeaveWindow = 2 * time.Second
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.StaleMaxAge <= 0 {
		c.StaleMaxAge = 10 * time.Minute
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 75 * time.Second
	}
}

// Load reads the configuration from the environment and applies defaults.
func Load() *AppConfig {
	c := &AppConfig{
		Addr:            envStr("GATEWAY_ADDR"),
		JWTSecret:       []byte(envStr("GATEWAY_JWT_SECRET")),
		AllowedOrigins:  envList("GATEWAY_ALLOWED_ORIGINS"),
		MongoURI:        envStr("MONGO_URI"),
		MongoDatabase:   envStr("MONGO_DATABASE"),
		MongoUser:       envStr("MONGO_USER"),
		MongoPassword:   envStr("MONGO_PASSWORD"),
		MongoPoolSize:   envInt("MONGO_POOL_SIZE"),
		RedisAddr:       envStr("REDIS_ADDR"),
		RedisPassword:   envStr("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB"),
		PresenceTTL:     envDur("GATEWAY_PRESENCE_TTL"),
		MaxConnsPerUser: envInt("GATEWAY_MAX_CONNS_PER_USER"),
		PresenceWindow:  envDur("GATEWAY_PRESENCE_WINDOW"),
		TypingWindow:    envDur("GATEWAY_TYPING_WINDOW"),
		JoinLeaveWindow: envDur("GATEWAY_JOIN_LEAVE_WINDOW"),
		DedupeWindow:    envDur("GATEWAY_DEDUPE_WINDOW"),
		CleanupInterval: envDur("GATEWAY_CLEANUP_INTERVAL"),
		StaleMaxAge:     envDur("GATEWAY_STALE_MAX_AGE"),
	}
	c.norm()
	return c
}

func envStr(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string) int {
	v, err := strconv.Atoi(envStr(key))
	if err != nil {
		return 0
	}
	return v
}

func envDur(key string) time.Duration {
	s := envStr(key)
	if s == "" {
		return 0
	}
	// Bare numbers are taken as milliseconds.
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func envList(key string) []string {
	s := envStr(key)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
