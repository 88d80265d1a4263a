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
	"attribution/task/recovery_job"
)

func main() {
	env := flag.String("env", "development", "")
	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	windowHours := flag.Int("window_hours", attribution.WindowRecoveryHours,
		"Lookback window for recovery candidates, in hours.")
	budgetSecs := flag.Int("budget_secs", 45, "Wall clock budget. 0 disables the deadline.")
	force := flag.Bool("force", false, "Re-attempt journeys already stamped recovery_attempted.")
	strictReprocess := flag.Bool("strict_reprocess", false,
		"Also re-evaluate POSSIBLE-grade attributions in strict mode and remove the ones that fail.")

	flag.Parse()

	config := &C.Configuration{
		AppName:   "recovery",
		Env:       *env,
		RedisHost: *redisHost,
		RedisPort: *redisPort,
	}
	if err := C.InitConf(config); err != nil {
		log.WithError(err).Fatal("Failed to initialize config in recovery job.")
	}
	C.InitRedis(config.RedisHost, config.RedisPort)

	geoResolver, err := geo.NewCachedResolver(C.GetGeoServiceConf())
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize geo resolver.")
	}

	matcherConf := attribution.DefaultMatcherConfig()
	resolver := attribution.NewResolver(attribution.NewMatcher(matcherConf, geoResolver))
	strictResolver := attribution.NewResolver(attribution.NewStrictMatcher(matcherConf, geoResolver))
	reconciler := attribution.NewReconciler(attribution.NewBuilder(matcherConf))

	job := recovery_job.NewJob(resolver, strictResolver, reconciler, *windowHours,
		time.Duration(*budgetSecs)*time.Second, *force)

	runID := xid.New().String()

	status := job.RunRecovery(runID)
	log.WithFields(log.Fields{"run_id": runID, "status": status}).Info("Recovery pass done.")
	if status.Status == "failed" {
		os.Exit(1)
	}

	if *strictReprocess {
		strictStatus := job.RunStrictReprocess(runID)
		log.WithFields(log.Fields{"run_id": runID,
			"status": strictStatus}).Info("Strict reprocess done.")
		if strictStatus.Status == "failed" {
			os.Exit(1)
		}
	}
}
