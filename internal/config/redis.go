package config

// This file defines the Redis client constructor.  Redis backs rate
// limiting, the multi-instance realtime relay and the asynq expiry queue.
// If the server cannot be reached at startup the constructor returns nil
// and callers degrade by disabling those features.

import (
    "context"
    "crypto/tls"
    "strings"
    "time"

    "github.com/hibiken/asynq"
    "github.com/redis/go-redis/v9"
    "github.com/spf13/viper"
)

// RedisConfig holds connection settings.  Supported variables are:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand (host/port win when both are set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

func loadRedis(v *viper.Viper) RedisConfig {
    v.SetDefault("REDIS_DB", 0)
    addr := v.GetString("REDIS_ADDR")
    host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    tlsEnv := v.GetString("REDIS_TLS")
    return RedisConfig{
        Addr:     addr,
        Password: v.GetString("REDIS_PASSWORD"),
        DB:       v.GetInt("REDIS_DB"),
        TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
    }
}

func (c RedisConfig) tlsConfig() *tls.Config {
    if !c.TLS {
        return nil
    }
    return &tls.Config{InsecureSkipVerify: true}
}

// NewRedisClient connects and pings with a short timeout.  The returned
// client is nil if the server is unreachable.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: cfg.tlsConfig(),
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}

// AsynqOpt returns the same connection settings for the asynq client and
// server.
func (c RedisConfig) AsynqOpt() asynq.RedisClientOpt {
    return asynq.RedisClientOpt{
        Addr:      c.Addr,
        Password:  c.Password,
        DB:        c.DB,
        TLSConfig: c.tlsConfig(),
    }
}
