package attribution

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"attribution/model/model"
	U "attribution/util"
)

// Default lookback windows in hours. Callers pick per pass: tight for the
// primary high-confidence pass, loose for recovery.
const (
	WindowTightHours    = 24
	WindowRecoveryHours = 72
	WindowLooseHours    = 168
)

// CandidatePageview - A pageview plus the retrieval-path hint from the
// store lookup that produced it.
type CandidatePageview struct {
	Pageview model.Pageview
	Hint     MatchHint
}

// MatchedPageview - A pageview that passed the matcher threshold.
type MatchedPageview struct {
	Pageview model.Pageview
	Result   MatchResult
}

// Resolver - Applies the lookback window and the Identity Matcher over a
// candidate set. Pure with respect to its inputs; candidate retrieval from
// the store lives in store.go.
type Resolver struct {
	matcher *Matcher
}

func NewResolver(matcher *Matcher) *Resolver {
	return &Resolver{matcher: matcher}
}

// InWindow - The window is [conversionTs - windowHours, conversionTs], both
// bounds inclusive. A pageview exactly at the lower bound is a candidate, a
// microsecond earlier is not.
func InWindow(pageviewTs, conversionTs int64, windowHours int) bool {
	windowStart := conversionTs - int64(windowHours)*3600
	return pageviewTs >= windowStart && pageviewTs <= conversionTs
}

// Resolve - Multi-touch resolution: returns every in-window candidate that
// passes the matcher, sorted chronologically (ties keep discovery order).
// Zero candidates in window returns empty, the caller decides whether that
// becomes a conversion-only journey.
func (r *Resolver) Resolve(conversion *model.Conversion, candidates []CandidatePageview, windowHours int) []MatchedPageview {
	signals := SignalsFromConversion(conversion)
	matched := make([]MatchedPageview, 0)

	for i := range candidates {
		pageview := candidates[i].Pageview
		if !InWindow(pageview.Timestamp, conversion.Timestamp, windowHours) {
			continue
		}
		if pageview.IsLikelyBot() {
			continue
		}

		result := r.matcher.Score(signals, &pageview, candidates[i].Hint)
		if !result.IsMatch {
			continue
		}

		matched = append(matched, MatchedPageview{Pageview: pageview, Result: result})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Pageview.Timestamp < matched[j].Pageview.Timestamp
	})
	return matched
}

// ResolveBest - Single best match for recovery and verification flows:
// rank by confidence descending, then most recent before the conversion
// first.
func (r *Resolver) ResolveBest(conversion *model.Conversion, candidates []CandidatePageview, windowHours int) (MatchedPageview, bool) {
	return BestOf(r.Resolve(conversion, candidates, windowHours))
}

// BestOf - Ranks an already matched set: score descending (scores are
// monotone with confidence tier), then most recent first.
func BestOf(matched []MatchedPageview) (MatchedPageview, bool) {
	if len(matched) == 0 {
		return MatchedPageview{}, false
	}

	ranked := make([]MatchedPageview, len(matched))
	copy(ranked, matched)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Result.Score != ranked[j].Result.Score {
			return ranked[i].Result.Score > ranked[j].Result.Score
		}
		return ranked[i].Pageview.Timestamp > ranked[j].Pageview.Timestamp
	})
	return ranked[0], true
}

// DedupeCandidates - Union of the per-IP index and reverse-index retrieval
// paths can surface the same pageview more than once. A candidate that came
// through a reverse-index pointer wins over the same pageview from the IP
// index, its hint carries more information.
func DedupeCandidates(candidates []CandidatePageview) []CandidatePageview {
	deduped := make([]CandidatePageview, 0, len(candidates))
	byKey := make(map[string]int)

	for _, candidate := range candidates {
		key := TouchpointDedupeKey(candidate.Pageview.Timestamp,
			candidate.Pageview.SessionID, candidate.Pageview.IPAddress)
		if at, exists := byKey[key]; exists {
			if candidate.Hint.ViaIPIndex && !deduped[at].Hint.ViaIPIndex {
				deduped[at] = candidate
			}
			continue
		}
		byKey[key] = len(deduped)
		deduped = append(deduped, candidate)
	}
	return deduped
}

// AnnotateConversion - Writes the resolved attribution back onto the
// conversion record. The conversion stays immutable otherwise.
func AnnotateConversion(conversion *model.Conversion, best MatchedPageview, now int64) {
	conversion.AttributionFound = true
	conversion.AttributionMethod = best.Result.Method
	conversion.LandingPage = best.Pageview.LandingPage
	conversion.Source = best.Pageview.Source
	conversion.Medium = best.Pageview.Medium
	conversion.Campaign = best.Pageview.Campaign
	conversion.Content = best.Pageview.Content
	conversion.Term = best.Pageview.Term
	conversion.AttributionImprovement = &model.AttributionImprovement{
		Method:     best.Result.Method,
		Confidence: best.Result.Confidence,
		Score:      best.Result.Score,
		MatchedIP:  best.Result.MatchedIP,
		Timestamp:  now,
	}

	log.WithFields(log.Fields{
		"order_id":   conversion.OrderID,
		"method":     best.Result.Method,
		"confidence": best.Result.Confidence,
	}).Debug("Annotated conversion with attribution")
}

// ClearConversionAttribution - Strict-mode removal counterpart of
// AnnotateConversion. Returns the removed values for the audit record.
func ClearConversionAttribution(conversion *model.Conversion, reason string, now int64) *model.RemovedAttribution {
	removed := &model.RemovedAttribution{
		LandingPage: conversion.LandingPage,
		Source:      conversion.Source,
		Medium:      conversion.Medium,
		Campaign:    conversion.Campaign,
		Content:     conversion.Content,
		Term:        conversion.Term,
		Method:      conversion.AttributionMethod,
		RemovedAt:   now,
		Reason:      reason,
	}

	conversion.AttributionFound = false
	conversion.AttributionMethod = ""
	conversion.LandingPage = ""
	conversion.Source = ""
	conversion.Medium = ""
	conversion.Campaign = ""
	conversion.Content = ""
	conversion.Term = ""
	conversion.AttributionImprovement = nil

	return removed
}

// UniqueMatchedSources - Distinct non-empty sources across matches, used by
// callers reporting per-run stats.
func UniqueMatchedSources(matched []MatchedPageview) []string {
	sources := make([]string, 0, len(matched))
	for _, m := range matched {
		sources = append(sources, m.Pageview.Source)
	}
	return U.UniqueStrings(U.AppendNonNullValues(sources...))
}
