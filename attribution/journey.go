package attribution

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"attribution/model/model"
	U "attribution/util"
)

// Builder - Turns one conversion plus its matched pageviews into a journey
// record. Building twice from the same inputs yields identical derived
// fields; only journey_id and created_at differ.
type Builder struct {
	conf MatcherConfig
}

func NewBuilder(conf MatcherConfig) *Builder {
	return &Builder{conf: conf}
}

func newJourneyID() string {
	return fmt.Sprintf("journey_%s", uuid.New().String())
}

// Build - Empty matches produce a single-touchpoint conversion-only
// journey. Otherwise pageviews are sorted ascending by timestamp, numbered
// 1..N, and the conversion is appended as the final touchpoint with fixed
// maximal confidence: the conversion is ground truth, not inferred.
func (b *Builder) Build(conversion *model.Conversion, matched []MatchedPageview) *model.Journey {
	journey := &model.Journey{
		JourneyID:           newJourneyID(),
		CustomerEmail:       conversion.Email,
		ConversionOrderID:   conversion.OrderID,
		ConversionTimestamp: conversion.Timestamp,
		ConversionValue:     conversion.OrderTotal,
		CreatedAt:           U.TimeNowUnix(),
	}

	if len(matched) == 0 {
		journey.ReconstructionMethod = model.ReconstructionConversionOnly
	} else {
		journey.ReconstructionMethod = model.ReconstructionMultiTouch
	}

	touchpoints := b.touchpointsFromMatches(matched)
	touchpoints = append(touchpoints, b.conversionTouchpoint(conversion))
	journey.Touchpoints = touchpoints

	RecomputeDerivedFields(journey)
	return journey
}

func (b *Builder) touchpointsFromMatches(matched []MatchedPageview) []model.Touchpoint {
	ordered := make([]MatchedPageview, len(matched))
	copy(ordered, matched)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Pageview.Timestamp < ordered[j].Pageview.Timestamp
	})

	touchpoints := make([]model.Touchpoint, 0, len(ordered)+1)
	for _, match := range ordered {
		pageview := match.Pageview
		touchpoints = append(touchpoints, model.Touchpoint{
			Timestamp:         pageview.Timestamp,
			IPAddress:         pageview.IPAddress,
			SessionID:         pageview.SessionID,
			CanvasFingerprint: pageview.CanvasFingerprint,
			LandingPage:       pageview.LandingPage,
			Source:            pageview.Source,
			Medium:            pageview.Medium,
			Campaign:          pageview.Campaign,
			Content:           pageview.Content,
			Term:              pageview.Term,
			ReferrerURL:       pageview.ReferrerURL,
			DeviceType:        pageview.DeviceType(),
			AttributionMethod: match.Result.Method,
			Confidence:        match.Result.Score,
			ConfidenceTier:    match.Result.Confidence,
			MatchedIP:         match.Result.MatchedIP,
		})
	}
	return touchpoints
}

func (b *Builder) conversionTouchpoint(conversion *model.Conversion) model.Touchpoint {
	return model.Touchpoint{
		Timestamp:         conversion.Timestamp,
		SessionID:         conversion.SessionID,
		CanvasFingerprint: conversion.DeviceSignature,
		IsConversion:      true,
		IsLastTouchpoint:  true,
		AttributionMethod: model.MethodConversionGround,
		Confidence:        b.conf.ScoreExactMatch,
		ConfidenceTier:    ConfidenceDefinite,
	}
}

// RecomputeDerivedFields - Every derived field is recomputed from the final
// touchpoint list, never incrementally patched. Callers must have the
// conversion touchpoint last already.
func RecomputeDerivedFields(journey *model.Journey) {
	touchpoints := journey.Touchpoints
	if len(touchpoints) == 0 {
		return
	}

	for i := range touchpoints {
		touchpoints[i].TouchpointPosition = i + 1
		touchpoints[i].IsFirstTouchpoint = i == 0
		touchpoints[i].IsLastTouchpoint = i == len(touchpoints)-1
	}

	first := touchpoints[0]
	journey.JourneyStart = first.Timestamp
	journey.TotalTouchpoints = len(touchpoints)
	journey.JourneySpanHours = float64(journey.ConversionTimestamp-first.Timestamp) / 3600.0

	sessions := make([]string, 0, len(touchpoints))
	fingerprints := make([]string, 0, len(touchpoints))
	sources := make([]string, 0, len(touchpoints))
	confidenceSum := 0.0

	for _, tp := range touchpoints {
		sessions = append(sessions, tp.SessionID)
		fingerprints = append(fingerprints, tp.CanvasFingerprint)
		if !tp.IsConversion {
			sources = append(sources, tp.Source)
		}
		confidenceSum += tp.Confidence
	}

	journey.UniqueSessions = len(U.UniqueStrings(U.AppendNonNullValues(sessions...)))
	journey.UniqueDeviceFingerprints = len(U.UniqueStrings(U.AppendNonNullValues(fingerprints...)))
	journey.UniqueSources = U.UniqueStrings(U.AppendNonNullValues(sources...))
	journey.CrossSessionJourney = journey.UniqueSessions > 1
	journey.CrossDeviceJourney = journey.UniqueDeviceFingerprints > 1
	journey.AttributionConfidenceAvg = confidenceSum / float64(len(touchpoints))

	// first_click_source is touchpoint 1; last_click_source is the
	// touchpoint immediately before the conversion, not the conversion's
	// own synthetic source.
	journey.FirstClickSource = ""
	journey.LastClickSource = ""
	if len(touchpoints) > 1 {
		journey.FirstClickSource = touchpoints[0].Source
		journey.LastClickSource = touchpoints[len(touchpoints)-2].Source
	}
}
