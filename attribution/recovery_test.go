package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attribution/model/model"
)

func TestTouchpointDedupeKey(t *testing.T) {
	// Session id is the primary identity, IP the fallback.
	assert.Equal(t, "1000|s|sess_1", TouchpointDedupeKey(1000, "sess_1", "1.2.3.4"))
	assert.Equal(t, "1000|i|1.2.3.4", TouchpointDedupeKey(1000, "", "1.2.3.4"))

	// Same timestamp, different session, must not collide.
	assert.NotEqual(t,
		TouchpointDedupeKey(1000, "sess_1", "1.2.3.4"),
		TouchpointDedupeKey(1000, "sess_2", "1.2.3.4"))
}

func TestReconcileAddsTouchpointsToConversionOnly(t *testing.T) {
	builder := NewBuilder(DefaultMatcherConfig())
	reconciler := NewReconciler(builder)
	conversion := testConversionAt(1_753_005_600)

	journey := builder.Build(conversion, nil)
	assert.True(t, journey.IsConversionOnly())

	matched := []MatchedPageview{
		matchedPageviewAt(conversion.Timestamp-3600, "google", "s1", 5, ConfidenceStrong),
	}
	journey = reconciler.Reconcile(journey, matched, RecoveryMethodGeo)

	assert.Equal(t, model.ReconstructionRecovery, journey.ReconstructionMethod)
	assert.Len(t, journey.Touchpoints, 2)
	assert.Equal(t, "google", journey.Touchpoints[0].Source)
	assert.Equal(t, RecoveryMethodGeo, journey.Touchpoints[0].RecoveryMethod)
	assert.True(t, journey.Touchpoints[1].IsConversion)

	assert.True(t, journey.RecoveryAttempted)
	assert.Equal(t, RecoveryMethodGeo, journey.RecoveryMethod)
	assert.Equal(t, 1, journey.RecoveredPageviews)
	assert.NotZero(t, journey.RecoveryTimestamp)

	// Derived fields were recomputed wholesale.
	assert.Equal(t, 2, journey.TotalTouchpoints)
	assert.Equal(t, "google", journey.FirstClickSource)
	assert.Equal(t, "google", journey.LastClickSource)
	assert.Equal(t, 1.0, journey.JourneySpanHours)
}

// Re-running recovery with the same matches must not duplicate
// touchpoints.
func TestReconcileIsIdempotent(t *testing.T) {
	builder := NewBuilder(DefaultMatcherConfig())
	reconciler := NewReconciler(builder)
	conversion := testConversionAt(1_753_005_600)

	matched := []MatchedPageview{
		matchedPageviewAt(conversion.Timestamp-3600, "google", "s1", 5, ConfidenceStrong),
		matchedPageviewAt(conversion.Timestamp-7200, "newsletter", "", 4, ConfidencePossible),
	}

	journey := builder.Build(conversion, nil)
	journey = reconciler.Reconcile(journey, matched, RecoveryMethodGeo)
	assert.Len(t, journey.Touchpoints, 3)
	assert.Equal(t, 2, journey.RecoveredPageviews)

	journey = reconciler.Reconcile(journey, matched, RecoveryMethodGeo)
	assert.Len(t, journey.Touchpoints, 3)
	assert.Equal(t, 0, journey.RecoveredPageviews)
	assert.Equal(t, 3, journey.TotalTouchpoints)
}

func TestReconcileDedupesSessionlessByIP(t *testing.T) {
	builder := NewBuilder(DefaultMatcherConfig())
	reconciler := NewReconciler(builder)
	conversion := testConversionAt(1_753_005_600)

	sessionless := matchedPageviewAt(conversion.Timestamp-3600, "google", "", 4, ConfidencePossible)

	journey := builder.Build(conversion, []MatchedPageview{sessionless})
	journey = reconciler.Reconcile(journey, []MatchedPageview{sessionless}, RecoveryMethodIPIndex)

	assert.Len(t, journey.Touchpoints, 2)
	assert.Equal(t, 0, journey.RecoveredPageviews)
}

func TestReconcileKeepsChronologicalOrder(t *testing.T) {
	builder := NewBuilder(DefaultMatcherConfig())
	reconciler := NewReconciler(builder)
	conversion := testConversionAt(1_753_005_600)

	journey := builder.Build(conversion, []MatchedPageview{
		matchedPageviewAt(conversion.Timestamp-3600, "google", "s2", 5, ConfidenceStrong),
	})

	// The recovered pageview is earlier than the existing one.
	journey = reconciler.Reconcile(journey, []MatchedPageview{
		matchedPageviewAt(conversion.Timestamp-7200, "newsletter", "s1", 4, ConfidencePossible),
	}, RecoveryMethodGeo)

	assert.Equal(t, "newsletter", journey.Touchpoints[0].Source)
	assert.Equal(t, "google", journey.Touchpoints[1].Source)
	assert.True(t, journey.Touchpoints[2].IsConversion)
	assert.Equal(t, conversion.Timestamp-7200, journey.JourneyStart)
}

func TestRemoveAttributionReducesToConversionOnly(t *testing.T) {
	builder := NewBuilder(DefaultMatcherConfig())
	reconciler := NewReconciler(builder)
	conversion := testConversionAt(1_753_005_600)

	matched := matchedPageviewAt(conversion.Timestamp-3600, "google", "s1", 4, ConfidencePossible)
	matched.Pageview.LandingPage = "/pricing"
	journey := builder.Build(conversion, []MatchedPageview{matched})
	AnnotateConversion(conversion, matched, conversion.Timestamp)

	journey = reconciler.RemoveAttribution(journey, conversion, RemovalReasonStrictNoMatch)

	assert.Equal(t, model.ReconstructionConversionOnly, journey.ReconstructionMethod)
	assert.Len(t, journey.Touchpoints, 1)
	assert.True(t, journey.Touchpoints[0].IsConversion)
	assert.Equal(t, RecoveryMethodStrictScan, journey.RecoveryMethod)
	assert.True(t, journey.RecoveryAttempted)

	// The removed values survive on the audit record.
	assert.NotNil(t, journey.RemovedAttribution)
	assert.Equal(t, "google", journey.RemovedAttribution.Source)
	assert.Equal(t, "/pricing", journey.RemovedAttribution.LandingPage)
	assert.Equal(t, RemovalReasonStrictNoMatch, journey.RemovedAttribution.Reason)

	// And the conversion annotations were cleared.
	assert.False(t, conversion.AttributionFound)
	assert.Empty(t, conversion.Source)
}
