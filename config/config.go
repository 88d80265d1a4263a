package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	DEVELOPMENT = "development"
	STAGING     = "staging"
	PRODUCTION  = "production"
)

type GeoServiceConf struct {
	// Base URL of the IP geolocation provider, i.e https://ipinfo.io.
	BaseURL string `envconfig:"GEO_SERVICE_URL" default:"https://ipinfo.io"`
	Token   string `envconfig:"GEO_SERVICE_TOKEN"`
	// Per lookup timeout. Must stay well under the invocation budget.
	TimeoutInSecs int `envconfig:"GEO_SERVICE_TIMEOUT_SECS" default:"2"`
}

type Configuration struct {
	AppName   string
	Env       string
	RedisHost string
	RedisPort int

	GeoService GeoServiceConf
}

var configuration *Configuration
var redisPool *redis.Pool

func initLogging() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	if IsDevelopment() {
		log.SetLevel(log.DebugLevel)
	}
}

// InitConf - Sets the configuration for the app. Must be called once from
// main before any other Init.
func InitConf(config *Configuration) error {
	if configuration != nil {
		return fmt.Errorf("config already initialized")
	}

	if config.Env != DEVELOPMENT && config.Env != STAGING && config.Env != PRODUCTION {
		return fmt.Errorf("env [ %s ] not recognised", config.Env)
	}

	configuration = config
	initLogging()

	// Geo provider credentials come from the environment, not flags.
	// Missing credentials are fatal at startup, not at first lookup.
	if err := envconfig.Process("", &configuration.GeoService); err != nil {
		log.WithError(err).Error("Failed to read geo service config from env")
		return err
	}

	log.WithFields(log.Fields{"app_name": config.AppName,
		"env": config.Env}).Info("Config initialized")
	return nil
}

// InitRedis - Initializes the cache redis connection pool.
func InitRedis(host string, port int) {
	redisPool = &redis.Pool{
		MaxIdle:     10,
		MaxActive:   100,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", fmt.Sprintf("%s:%d", host, port),
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second))
		},
	}

	log.WithFields(log.Fields{"host": host, "port": port}).Info("Redis service initialized")
}

func GetCacheRedisConnection() redis.Conn {
	return redisPool.Get()
}

func GetConfig() *Configuration {
	return configuration
}

func GetGeoServiceConf() GeoServiceConf {
	return configuration.GeoService
}

func IsDevelopment() bool {
	return configuration != nil &&
		strings.Compare(configuration.Env, DEVELOPMENT) == 0
}
