package attribution

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"attribution/model/model"
	U "attribution/util"
)

// Recovery methods stamped on reconciled journeys.
const (
	RecoveryMethodIPIndex    = "ip_index_recovery"
	RecoveryMethodGeo        = "geo_recovery"
	RecoveryMethodStrictScan = "strict_reprocess"
)

// Strict-removal reasons recorded on the audit field.
const (
	RemovalReasonStrictNoMatch = "strict_rescore_no_match"
)

// TouchpointDedupeKey - Composite identity for a touchpoint: timestamp plus
// session id, falling back to timestamp plus IP when no session exists.
// Re-running recovery must never insert the same touchpoint twice.
func TouchpointDedupeKey(timestamp int64, sessionID, ipAddress string) string {
	if sessionID != "" {
		return fmt.Sprintf("%d|s|%s", timestamp, sessionID)
	}
	return fmt.Sprintf("%d|i|%s", timestamp, ipAddress)
}

// Reconciler - Merges newly matched pageviews into an existing journey and
// recomputes it wholesale. Never patches fields individually: the journey
// is rebuilt from the merged touchpoint list so last-write-wins on the
// full-record overwrite stays structurally safe under concurrent writers.
type Reconciler struct {
	builder *Builder
}

func NewReconciler(builder *Builder) *Reconciler {
	return &Reconciler{builder: builder}
}

// Reconcile - Dedupes newMatches against the pageviews already embedded in
// the journey, replaces the touchpoint list with
// sorted(existing + deduped new) + [conversion touchpoint], recomputes all
// derived fields and stamps the recovery bookkeeping.
func (r *Reconciler) Reconcile(journey *model.Journey, newMatches []MatchedPageview, recoveryMethod string) *model.Journey {
	existing := make([]model.Touchpoint, 0, len(journey.Touchpoints))
	var conversionTouchpoint *model.Touchpoint
	seen := make(map[string]struct{})

	for i := range journey.Touchpoints {
		tp := journey.Touchpoints[i]
		if tp.IsConversion {
			conversionTouchpoint = &tp
			continue
		}
		existing = append(existing, tp)
		seen[TouchpointDedupeKey(tp.Timestamp, tp.SessionID, tp.IPAddress)] = struct{}{}
	}

	recovered := 0
	for _, match := range newMatches {
		pageview := match.Pageview
		key := TouchpointDedupeKey(pageview.Timestamp, pageview.SessionID, pageview.IPAddress)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		recovered++

		touchpoint := r.builder.touchpointsFromMatches([]MatchedPageview{match})[0]
		touchpoint.RecoveryMethod = recoveryMethod
		existing = append(existing, touchpoint)
	}

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].Timestamp < existing[j].Timestamp
	})

	if conversionTouchpoint == nil {
		// Defensive reconstruction: a journey record must always close
		// with its conversion.
		synthetic := r.builder.conversionTouchpoint(&model.Conversion{
			Timestamp: journey.ConversionTimestamp,
		})
		conversionTouchpoint = &synthetic
	}
	journey.Touchpoints = append(existing, *conversionTouchpoint)

	if len(existing) > 0 {
		journey.ReconstructionMethod = model.ReconstructionRecovery
	}

	journey.RecoveryAttempted = true
	journey.RecoveryTimestamp = U.TimeNowUnix()
	journey.RecoveryMethod = recoveryMethod
	journey.RecoveredPageviews = recovered

	RecomputeDerivedFields(journey)

	log.WithFields(log.Fields{
		"journey_id":        journey.JourneyID,
		"order_id":          journey.ConversionOrderID,
		"recovered":         recovered,
		"total_touchpoints": journey.TotalTouchpoints,
		"reconstruction":    journey.ReconstructionMethod,
		"recovery_method":   recoveryMethod,
	}).Info("Reconciled journey")

	return journey
}

// RemoveAttribution - Strict-mode backward transition: the previously
// matched pageviews did not survive strict re-scoring, so the journey is
// reduced to conversion-only and the removed values are preserved under
// removed_attribution. Destructive and explicit; reversible only by
// re-running recovery from scratch.
func (r *Reconciler) RemoveAttribution(journey *model.Journey, conversion *model.Conversion, reason string) *model.Journey {
	now := U.TimeNowUnix()
	removed := ClearConversionAttribution(conversion, reason, now)

	// Carry what the touchpoints said into the audit record when the
	// conversion annotations were already empty.
	if removed.Source == "" && len(journey.Touchpoints) > 1 {
		removed.Source = journey.FirstClickSource
		removed.LandingPage = journey.Touchpoints[0].LandingPage
		removed.Method = journey.Touchpoints[0].AttributionMethod
	}

	var conversionTouchpoint *model.Touchpoint
	for i := range journey.Touchpoints {
		if journey.Touchpoints[i].IsConversion {
			conversionTouchpoint = &journey.Touchpoints[i]
			break
		}
	}
	if conversionTouchpoint == nil {
		synthetic := r.builder.conversionTouchpoint(conversion)
		conversionTouchpoint = &synthetic
	}

	journey.Touchpoints = []model.Touchpoint{*conversionTouchpoint}
	journey.ReconstructionMethod = model.ReconstructionConversionOnly
	journey.RemovedAttribution = removed
	journey.RecoveryAttempted = true
	journey.RecoveryTimestamp = now
	journey.RecoveryMethod = RecoveryMethodStrictScan
	journey.RecoveredPageviews = 0

	RecomputeDerivedFields(journey)

	log.WithFields(log.Fields{
		"journey_id": journey.JourneyID,
		"order_id":   journey.ConversionOrderID,
		"reason":     reason,
	}).Warn("Removed attribution after strict re-score")

	return journey
}
