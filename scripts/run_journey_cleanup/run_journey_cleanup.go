package main

import (
	"flag"
	"os"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	C "attribution/config"
	"attribution/task/recovery_job"
)

func main() {
	env := flag.String("env", "development", "")
	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	flag.Parse()

	config := &C.Configuration{
		AppName:   "journey_cleanup",
		Env:       *env,
		RedisHost: *redisHost,
		RedisPort: *redisPort,
	}
	if err := C.InitConf(config); err != nil {
		log.WithError(err).Fatal("Failed to initialize config in journey cleanup.")
	}
	C.InitRedis(config.RedisHost, config.RedisPort)

	// Cleanup only touches journey records, no geo or matcher needed.
	job := recovery_job.NewJob(nil, nil, nil, 0, 0, false)

	runID := xid.New().String()
	status := job.RunCleanup(runID)
	log.WithFields(log.Fields{"run_id": runID, "status": status}).Info("Journey cleanup done.")

	if status.Status == "failed" {
		os.Exit(1)
	}
}
