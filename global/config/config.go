package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chatparty/logger"
	"chatparty/tools/ids"
)

// AppConfig carries everything the gateway binary needs. One instance,
// filled at process start; no ambient lookups after Load.
type AppConfig struct {
	NodeID      int64         // snowflake node (0~1023), unique per instance
	GatewayID   string        // instance name, used as presence value and NATS client name
	HTTPPort    int
	JWTSecret   string
	MongoURI    string
	MongoDB     string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	NatsServers []string      // empty disables the cross-instance bridge
	PresenceTTL time.Duration
}

var Global AppConfig

// Load reads .env (if present) then the environment, fills Global and
// configures the id generator. Call once from main before anything else.
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil {
		logger.Infof("[config] no .env file, using environment only")
	}

	Global = AppConfig{
		NodeID:      envInt64("CHAT_NODE_ID", 1),
		GatewayID:   envStr("CHAT_GATEWAY_ID", "gateway-1"),
		HTTPPort:    int(envInt64("CHAT_HTTP_PORT", 8080)),
		JWTSecret:   envStr("CHAT_JWT_SECRET", "dev-secret-change-me"),
		MongoURI:    envStr("CHAT_MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     envStr("CHAT_MONGO_DB", "chatparty"),
		RedisAddr:   envStr("CHAT_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:   envStr("CHAT_REDIS_PASSWORD", ""),
		RedisDB:     int(envInt64("CHAT_REDIS_DB", 0)),
		PresenceTTL: time.Duration(envInt64("CHAT_PRESENCE_TTL_SEC", 120)) * time.Second,
	}
	if servers := envStr("CHAT_NATS_SERVERS", ""); servers != "" {
		for _, s := range strings.Split(servers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				Global.NatsServers = append(Global.NatsServers, s)
			}
		}
	}

	ids.SetNodeID(Global.NodeID)
	return &Global
}

func (c *AppConfig) JwtSecretBytes() []byte { return []byte(c.JWTSecret) }

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warnf("[config] bad %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
