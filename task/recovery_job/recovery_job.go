package recovery_job

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"attribution/attribution"
	"attribution/cache"
	cacheRedis "attribution/cache/redis"
	"attribution/model/model"
	U "attribution/util"
)

const (
	JobName        = "recovery"
	StrictJobName  = "strict_reprocess"
	CleanupJobName = "journey_cleanup"

	scanPageSize = 200
)

// Status - Per run report for the recovery and maintenance passes.
type Status struct {
	Status             string `json:"status"`
	NoOfJourneysSeen   int    `json:"no_of_journeys_seen"`
	NoOfJourneysTried  int    `json:"no_of_journeys_tried"`
	NoOfRecovered      int    `json:"no_of_recovered"`
	NoOfStillUnmatched int    `json:"no_of_still_unmatched"`
	NoOfRemoved        int    `json:"no_of_removed"`
	NoOfDuplicates     int    `json:"no_of_duplicates"`
	NoOfSkipped        int    `json:"no_of_skipped"`
	BudgetExhausted    bool   `json:"budget_exhausted"`
	LastCursor         int    `json:"last_cursor,omitempty"`
}

// Job - Re-attempts attribution for journeys that previously found no
// match, and runs the strict reprocess and duplicate cleanup maintenance
// scans. All three walk the journey namespace with bounded SCAN pages.
type Job struct {
	resolver       *attribution.Resolver
	strictResolver *attribution.Resolver
	reconciler     *attribution.Reconciler
	windowHours    int
	budget         time.Duration
	force          bool
}

func NewJob(resolver, strictResolver *attribution.Resolver, reconciler *attribution.Reconciler,
	windowHours int, budget time.Duration, force bool) *Job {

	return &Job{
		resolver:       resolver,
		strictResolver: strictResolver,
		reconciler:     reconciler,
		windowHours:    windowHours,
		budget:         budget,
		force:          force,
	}
}

func journeyScanPattern() string {
	return fmt.Sprintf("%s:*", cache.PrefixCustomerJourney)
}

// RunRecovery - Walks journeys and reconciles newly found touchpoints into
// conversion-only ones. Resumes from the persisted cursor; stops cleanly on
// budget exhaustion after the current page.
func (j *Job) RunRecovery(runID string) *Status {
	status := &Status{}
	deadline := time.Now().Add(j.budget)
	logCtx := log.WithFields(log.Fields{"job": JobName, "run_id": runID})

	progress, err := attribution.ReadProgress(JobName, runID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read progress, cannot run")
		status.Status = "failed"
		return status
	}

	cursor := progress.LastCursor
	for {
		nextCursor, keys, err := cacheRedis.Scan(cursor, journeyScanPattern(), scanPageSize)
		if err != nil {
			logCtx.WithError(err).Error("Journey scan failed")
			status.Status = "failed"
			return status
		}

		recoveredBefore := status.NoOfRecovered
		for _, key := range keys {
			j.recoverJourneyByKey(key, status, logCtx)
		}

		cursor = nextCursor
		progress.LastCursor = cursor
		progress.Add("recovered", status.NoOfRecovered-recoveredBefore)
		if err := attribution.WriteProgress(JobName, progress); err != nil {
			logCtx.WithError(err).Error("Failed to persist progress")
		}

		if cursor == 0 {
			// Full pass complete, the next run starts over.
			progress.LastCursor = 0
			attribution.WriteProgress(JobName, progress)
			break
		}
		if j.budget > 0 && time.Now().After(deadline) {
			status.BudgetExhausted = true
			status.LastCursor = cursor
			break
		}
	}

	if status.BudgetExhausted {
		status.Status = "partial"
	} else {
		status.Status = "success"
	}

	logCtx.WithFields(log.Fields{
		"seen":      status.NoOfJourneysSeen,
		"tried":     status.NoOfJourneysTried,
		"recovered": status.NoOfRecovered,
		"status":    status.Status,
	}).Info("Recovery run finished")
	return status
}

func (j *Job) recoverJourneyByKey(key string, status *Status, logCtx *log.Entry) {
	status.NoOfJourneysSeen++

	journey, found, err := attribution.GetJourneyByStoreKey(key)
	if err != nil || !found {
		if err != nil {
			logCtx.WithError(err).WithField("key", key).Warn("Skipping unreadable journey")
		}
		status.NoOfSkipped++
		return
	}

	if !journey.IsConversionOnly() {
		return
	}
	if journey.RecoveryAttempted && !j.force {
		return
	}

	conversion, ok := j.loadConversion(journey.ConversionOrderID, logCtx)
	if !ok {
		status.NoOfSkipped++
		return
	}

	status.NoOfJourneysTried++

	candidates, skipped := attribution.FetchCandidates(conversion)
	status.NoOfSkipped += skipped

	matched := j.resolver.Resolve(conversion, candidates, j.windowHours)
	recoveryMethod := attribution.RecoveryMethodGeo
	if best, found := attribution.BestOf(matched); found && best.Result.Method != model.MethodGeoCorrelation {
		recoveryMethod = attribution.RecoveryMethodIPIndex
	}

	journey = j.reconciler.Reconcile(journey, matched, recoveryMethod)

	if len(matched) == 0 {
		status.NoOfStillUnmatched++
	} else {
		status.NoOfRecovered++
		if best, found := attribution.BestOf(matched); found {
			attribution.AnnotateConversion(conversion, best, U.TimeNowUnix())
			if err := attribution.WriteConversion(conversion); err != nil {
				logCtx.WithError(err).Error("Failed to write back conversion annotations")
			}
		}
	}

	if err := attribution.WriteJourney(journey); err != nil {
		logCtx.WithError(err).WithField("journey_id", journey.JourneyID).Error("Failed to write journey")
	}
}

// RunStrictReprocess - Re-evaluates journeys whose attribution rests on a
// POSSIBLE-grade geo match. When strict re-scoring finds no qualifying
// match the attribution is removed, not left stale.
func (j *Job) RunStrictReprocess(runID string) *Status {
	status := &Status{}
	deadline := time.Now().Add(j.budget)
	logCtx := log.WithFields(log.Fields{"job": StrictJobName, "run_id": runID})

	cursor := 0
	for {
		nextCursor, keys, err := cacheRedis.Scan(cursor, journeyScanPattern(), scanPageSize)
		if err != nil {
			logCtx.WithError(err).Error("Journey scan failed")
			status.Status = "failed"
			return status
		}

		for _, key := range keys {
			j.strictReprocessByKey(key, status, logCtx)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
		if j.budget > 0 && time.Now().After(deadline) {
			status.BudgetExhausted = true
			status.LastCursor = cursor
			break
		}
	}

	if status.BudgetExhausted {
		status.Status = "partial"
	} else {
		status.Status = "success"
	}

	logCtx.WithFields(log.Fields{
		"seen":    status.NoOfJourneysSeen,
		"removed": status.NoOfRemoved,
		"status":  status.Status,
	}).Info("Strict reprocess finished")
	return status
}

// hasOnlyPossibleAttribution - True when every matched pageview touchpoint
// rests on a POSSIBLE-grade geo correlation.
func hasOnlyPossibleAttribution(journey *model.Journey) bool {
	sawPageview := false
	for _, tp := range journey.Touchpoints {
		if tp.IsConversion {
			continue
		}
		sawPageview = true
		if tp.ConfidenceTier != attribution.ConfidencePossible {
			return false
		}
	}
	return sawPageview
}

func (j *Job) strictReprocessByKey(key string, status *Status, logCtx *log.Entry) {
	status.NoOfJourneysSeen++

	journey, found, err := attribution.GetJourneyByStoreKey(key)
	if err != nil || !found {
		status.NoOfSkipped++
		return
	}

	if !hasOnlyPossibleAttribution(journey) {
		return
	}

	conversion, ok := j.loadConversion(journey.ConversionOrderID, logCtx)
	if !ok {
		status.NoOfSkipped++
		return
	}

	status.NoOfJourneysTried++

	candidates, _ := attribution.FetchCandidates(conversion)
	matched := j.strictResolver.Resolve(conversion, candidates, j.windowHours)

	if len(matched) > 0 {
		// Survived strict re-scoring, rebuild with the strict match set.
		journey = j.reconciler.Reconcile(journey, matched, attribution.RecoveryMethodStrictScan)
		status.NoOfRecovered++
	} else {
		journey = j.reconciler.RemoveAttribution(journey, conversion,
			attribution.RemovalReasonStrictNoMatch)
		if err := attribution.WriteConversion(conversion); err != nil {
			logCtx.WithError(err).Error("Failed to write back cleared conversion")
		}
		status.NoOfRemoved++
	}

	if err := attribution.WriteJourney(journey); err != nil {
		logCtx.WithError(err).WithField("journey_id", journey.JourneyID).Error("Failed to write journey")
	}
}

// RunCleanup - Duplicate journey maintenance: storage has no uniqueness
// constraint on conversion_order_id, so duplicates are detected by a full
// scan and resolved keeping the most recently created record.
func (j *Job) RunCleanup(runID string) *Status {
	status := &Status{}
	logCtx := log.WithFields(log.Fields{"job": CleanupJobName, "run_id": runID})

	// First pass: map order id -> newest journey key.
	newestByOrder := make(map[string]*model.Journey)
	keyByJourneyID := make(map[string]string)
	duplicateKeys := make([]string, 0)

	cursor := 0
	for {
		nextCursor, keys, err := cacheRedis.Scan(cursor, journeyScanPattern(), scanPageSize)
		if err != nil {
			logCtx.WithError(err).Error("Journey scan failed")
			status.Status = "failed"
			return status
		}

		for _, key := range keys {
			status.NoOfJourneysSeen++
			journey, found, err := attribution.GetJourneyByStoreKey(key)
			if err != nil || !found {
				status.NoOfSkipped++
				continue
			}
			keyByJourneyID[journey.JourneyID] = key

			current, exists := newestByOrder[journey.ConversionOrderID]
			if !exists {
				newestByOrder[journey.ConversionOrderID] = journey
				continue
			}

			status.NoOfDuplicates++
			if journey.CreatedAt > current.CreatedAt {
				duplicateKeys = append(duplicateKeys, keyByJourneyID[current.JourneyID])
				newestByOrder[journey.ConversionOrderID] = journey
			} else {
				duplicateKeys = append(duplicateKeys, key)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	if len(duplicateKeys) > 0 {
		for _, batch := range U.GetStringListAsBatch(duplicateKeys, scanPageSize) {
			if err := cacheRedis.DelString(batch...); err != nil {
				logCtx.WithError(err).Error("Failed to delete duplicate journeys")
				status.Status = "failed"
				return status
			}
		}
	}

	status.Status = "success"
	logCtx.WithFields(log.Fields{
		"seen":       status.NoOfJourneysSeen,
		"duplicates": status.NoOfDuplicates,
	}).Info("Journey cleanup finished")
	return status
}

func (j *Job) loadConversion(orderID string, logCtx *log.Entry) (*model.Conversion, bool) {
	if orderID == "" {
		return nil, false
	}

	key, err := cache.NewKey(cache.PrefixConversions, orderID)
	if err != nil {
		return nil, false
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil || !found {
		return nil, false
	}

	conversion, err := model.DecodeConversion(json.RawMessage(value))
	if err != nil {
		logCtx.WithError(err).WithField("order_id", orderID).Warn("Skipping malformed conversion record")
		return nil, false
	}
	return conversion, true
}
