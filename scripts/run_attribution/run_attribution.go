package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"attribution/attribution"
	C "attribution/config"
	"attribution/geo"
	"attribution/task/attribution_job"
	U "attribution/util"
)

func main() {
	env := flag.String("env", "development", "")
	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	windowHours := flag.Int("window_hours", attribution.WindowTightHours,
		"Lookback window for candidate pageviews, in hours.")
	lookbackDays := flag.Int("lookback_days", 7, "How many days of conversion indexes to process.")
	numRoutines := flag.Int("num_routines", 10, "Concurrent conversions per batch.")
	budgetSecs := flag.Int("budget_secs", 45, "Wall clock budget. 0 disables the deadline.")
	geoThreshold := flag.Int("geo_match_threshold", 0,
		"Override for the minimum standard-mode geo score. 0 keeps the default.")

	flag.Parse()

	config := &C.Configuration{
		AppName:   "attribution",
		Env:       *env,
		RedisHost: *redisHost,
		RedisPort: *redisPort,
	}
	if err := C.InitConf(config); err != nil {
		log.WithError(err).Fatal("Failed to initialize config in attribution job.")
	}
	C.InitRedis(config.RedisHost, config.RedisPort)

	geoResolver, err := geo.NewCachedResolver(C.GetGeoServiceConf())
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize geo resolver.")
	}

	matcherConf := attribution.DefaultMatcherConfig()
	if *geoThreshold > 0 {
		matcherConf.GeoMatchThreshold = *geoThreshold
	}

	resolver := attribution.NewResolver(attribution.NewMatcher(matcherConf, geoResolver))
	builder := attribution.NewBuilder(matcherConf)

	job := attribution_job.NewJob(resolver, builder, *windowHours, *numRoutines,
		time.Duration(*budgetSecs)*time.Second)

	runID := xid.New().String()
	to := U.TimeNowUnix()
	from := U.UnixTimeBeforeDuration(time.Hour * 24 * time.Duration(*lookbackDays))

	status := job.Run(runID, from, to)
	log.WithFields(log.Fields{"run_id": runID, "status": status}).Info("Attribution job done.")

	if status.Status == attribution_job.StatusFailed {
		os.Exit(1)
	}
}
