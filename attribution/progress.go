package attribution

import (
	"encoding/json"

	"github.com/pkg/errors"

	"attribution/cache"
	cacheRedis "attribution/cache/redis"
	"attribution/model/model"
	U "attribution/util"
)

// Progress records expire with the journeys they track.
const progressExpirySecs = cache.JourneyExpirySecs

// ReadProgress - Loads the persisted progress record for a job, or a fresh
// one when none exists yet.
func ReadProgress(jobName, runID string) (*model.Progress, error) {
	key, err := cache.NewKey(cache.PrefixProgress, jobName)
	if err != nil {
		return nil, err
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read progress record")
	}
	if !found {
		return model.NewProgress(runID), nil
	}

	var progress model.Progress
	if err := json.Unmarshal([]byte(value), &progress); err != nil {
		// A corrupt progress record only costs re-doing work.
		return model.NewProgress(runID), nil
	}
	progress.RunID = runID
	return &progress, nil
}

func WriteProgress(jobName string, progress *model.Progress) error {
	key, err := cache.NewKey(cache.PrefixProgress, jobName)
	if err != nil {
		return err
	}

	progress.UpdatedAt = U.TimeNowUnix()
	value, err := json.Marshal(progress)
	if err != nil {
		return errors.Wrap(err, "failed to marshal progress record")
	}
	return cacheRedis.Set(key, string(value), progressExpirySecs)
}

func ClearProgress(jobName string) error {
	key, err := cache.NewKey(cache.PrefixProgress, jobName)
	if err != nil {
		return err
	}
	return cacheRedis.Del(key)
}
