package attribution_job

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"attribution/attribution"
	"attribution/model/model"
	U "attribution/util"
)

const JobName = "attribution"

const (
	StatusNotModified = "not_modified"
	StatusFailed      = "failed"
	StatusSuccess     = "success"
	StatusPartial     = "partial"
)

// Status - Per run report: what succeeded, what was skipped, what remains.
type Status struct {
	Status             string   `json:"status"`
	NoOfDatesProcessed int      `json:"no_of_dates_processed"`
	NoOfConversions    int      `json:"no_of_conversions"`
	NoOfJourneysBuilt  int      `json:"no_of_journeys_built"`
	NoOfConversionOnly int      `json:"no_of_conversion_only"`
	NoOfRecordsSkipped int      `json:"no_of_records_skipped"`
	RemainingDates     []string `json:"remaining_dates,omitempty"`
	BudgetExhausted    bool     `json:"budget_exhausted"`

	SeenFailure bool       `json:"-"`
	Lock        sync.Mutex `json:"-"`
}

func (s *Status) addResult(journeysBuilt, conversionOnly, skipped int, seenFailure bool) {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	if seenFailure {
		s.SeenFailure = true
	}
	s.NoOfJourneysBuilt += journeysBuilt
	s.NoOfConversionOnly += conversionOnly
	s.NoOfRecordsSkipped += skipped
}

// Job - Primary attribution pass. Walks conversion date indexes inside the
// lookback, resolves and persists a journey per conversion, and checkpoints
// progress so a later invocation can resume after budget exhaustion.
type Job struct {
	resolver    *attribution.Resolver
	builder     *attribution.Builder
	windowHours int
	numRoutines int
	budget      time.Duration
}

func NewJob(resolver *attribution.Resolver, builder *attribution.Builder,
	windowHours, numRoutines int, budget time.Duration) *Job {

	if numRoutines <= 0 {
		numRoutines = 10
	}
	return &Job{
		resolver:    resolver,
		builder:     builder,
		windowHours: windowHours,
		numRoutines: numRoutines,
		budget:      budget,
	}
}

// Run - Processes conversions for every date between from and to, oldest
// first. Budget exhaustion is a normal termination: the current small batch
// finishes, progress is persisted and the remaining dates are reported.
func (j *Job) Run(runID string, from, to int64) *Status {
	status := &Status{}
	deadline := time.Now().Add(j.budget)

	logCtx := log.WithFields(log.Fields{
		"job":    JobName,
		"run_id": runID,
		"from":   from,
		"to":     to,
	})

	progress, err := attribution.ReadProgress(JobName, runID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read progress, cannot run")
		status.Status = StatusFailed
		return status
	}

	dates := U.GetDatesInRangeZ(from, to)
	remaining := make([]string, 0, len(dates))
	for _, date := range dates {
		if !progress.IsDateDone(date) {
			remaining = append(remaining, date)
		}
	}

	if len(remaining) == 0 {
		status.Status = StatusNotModified
		logCtx.Info("No dates left to process")
		return status
	}

	for di, date := range remaining {
		if j.budget > 0 && time.Now().After(deadline) {
			status.BudgetExhausted = true
			status.RemainingDates = remaining[di:]
			break
		}

		j.processDate(date, progress, status, logCtx)
		status.NoOfDatesProcessed++
		progress.MarkDateDone(date)

		if err := attribution.WriteProgress(JobName, progress); err != nil {
			logCtx.WithError(err).Error("Failed to persist progress")
		}
	}

	switch {
	case status.SeenFailure:
		status.Status = StatusFailed
	case status.BudgetExhausted:
		status.Status = StatusPartial
	default:
		status.Status = StatusSuccess
	}

	logCtx.WithFields(log.Fields{
		"dates_processed": status.NoOfDatesProcessed,
		"journeys_built":  status.NoOfJourneysBuilt,
		"skipped":         status.NoOfRecordsSkipped,
		"status":          status.Status,
	}).Info("Attribution run finished")
	return status
}

func (j *Job) processDate(date string, progress *model.Progress, status *Status, logCtx *log.Entry) {
	conversions, skipped, err := attribution.GetConversionsForDate(date)
	if err != nil {
		// Unreadable index for one date degrades to skipping that date.
		logCtx.WithError(err).WithField("date", date).Error("Failed to read conversions for date")
		status.addResult(0, 0, 1, false)
		return
	}
	status.addResult(0, 0, skipped, false)
	status.NoOfConversions += len(conversions)
	progress.Add("conversions", len(conversions))
	builtBefore := status.NoOfJourneysBuilt

	// Bounded fan-out: fixed-size batches awaited together, never an
	// unbounded number of concurrent store lookups.
	for i := 0; i < len(conversions); {
		next := i + j.numRoutines
		if next > len(conversions) {
			next = len(conversions)
		}

		var wg sync.WaitGroup
		wg.Add(next - i)
		for ci := i; ci < next; ci++ {
			go j.processConversionWorker(conversions[ci], status, &wg)
		}
		wg.Wait()

		i = next
	}

	progress.Add("journeys_built", status.NoOfJourneysBuilt-builtBefore)
}

func (j *Job) processConversionWorker(conversion *model.Conversion, status *Status, wg *sync.WaitGroup) {
	defer wg.Done()

	logCtx := log.WithFields(log.Fields{"job": JobName, "order_id": conversion.OrderID})

	candidates, skipped := attribution.FetchCandidates(conversion)
	matched := j.resolver.Resolve(conversion, candidates, j.windowHours)

	journey := j.builder.Build(conversion, matched)

	conversionOnly := 0
	if len(matched) == 0 {
		conversionOnly = 1
	} else {
		if best, found := attribution.BestOf(matched); found {
			attribution.AnnotateConversion(conversion, best, U.TimeNowUnix())
			if err := attribution.WriteConversion(conversion); err != nil {
				logCtx.WithError(err).Error("Failed to write back conversion annotations")
			}
		}
	}

	if err := attribution.WriteJourney(journey); err != nil {
		logCtx.WithError(err).Error("Failed to write journey")
		status.addResult(0, conversionOnly, skipped, true)
		return
	}

	status.addResult(1, conversionOnly, skipped, false)
}
