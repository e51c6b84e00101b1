package pattern

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/tasteid/internal/testutil"
	"github.com/thebtf/tasteid/pkg/models"
)

const sixMonths = 180 * 24 * time.Hour

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(DefaultConfig(), zerolog.Nop())
}

func statusByID(patterns []*models.Pattern) map[string]models.PatternStatus {
	out := make(map[string]models.PatternStatus, len(patterns))
	for _, p := range patterns {
		out[p.ID] = p.Status
	}
	return out
}

func (s *EngineSuite) TestThreeRatingsNeverConfirm() {
	patterns := s.engine.DetectPatternsFromReviews(testutil.SingleArtistHistory(3, "Slowdive", 10))

	s.Empty(FilterByStatus(patterns, models.PatternStatusConfirmed))
}

func (s *EngineSuite) TestOscillationConfirmsOnColdStart() {
	events := testutil.OscillatingHistory(50, sixMonths)

	patterns := s.engine.DetectPatternsFromReviews(events)

	statuses := statusByID(patterns)
	s.Equal(models.PatternStatusConfirmed, statuses["discovery_comfort_oscillation"])
	for _, p := range patterns {
		if p.ID == "discovery_comfort_oscillation" {
			s.GreaterOrEqual(p.Confidence, 0.6)
			s.GreaterOrEqual(p.SupportCount, 10)
			s.Equal(0, p.EventsSinceSeen)
			s.NotEmpty(p.Evidence)
		}
	}
}

func (s *EngineSuite) TestIdentityStableAcrossColdRuns() {
	events := testutil.OscillatingHistory(50, sixMonths)

	first := NewEngine(DefaultConfig(), zerolog.Nop()).DetectPatternsFromReviews(events)
	second := NewEngine(DefaultConfig(), zerolog.Nop()).DetectPatternsFromReviews(events)

	s.Equal(statusByID(first), statusByID(second))
}

func (s *EngineSuite) TestRerunWithPriorStateIsIdempotent() {
	events := testutil.OscillatingHistory(50, sixMonths)
	s.engine.DetectPatternsFromReviews(events)
	state, err := s.engine.ToJSON()
	s.Require().NoError(err)

	resumed := NewEngine(DefaultConfig(), zerolog.Nop())
	s.Require().NoError(resumed.LoadFromJSON(state))
	resumed.DetectPatternsFromReviews(events)
	again, err := resumed.ToJSON()
	s.Require().NoError(err)

	s.JSONEq(string(state), string(again))
}

func (s *EngineSuite) TestStoppedBehaviorFades() {
	events := testutil.OscillatingHistory(50, sixMonths)
	s.engine.DetectPatternsFromReviews(events)
	state, err := s.engine.ToJSON()
	s.Require().NoError(err)

	// Only a familiar artist from now on: no more novel/known alternation.
	events = testutil.Append(events, 40, "Radiohead", 7, "art rock")
	resumed := NewEngine(DefaultConfig(), zerolog.Nop())
	s.Require().NoError(resumed.LoadFromJSON(state))
	resumed.DetectPatternsFromReviews(events)

	faded := statusByID(resumed.GetPatternsByStatus(models.PatternStatusFaded))
	s.Contains(faded, "discovery_comfort_oscillation")
	for _, p := range resumed.ActivePatterns() {
		s.NotEqual("discovery_comfort_oscillation", p.ID)
	}
}

func (s *EngineSuite) TestFadedPatternResurrects() {
	events := testutil.OscillatingHistory(50, sixMonths)
	s.engine.DetectPatternsFromReviews(events)
	events = testutil.Append(events, 40, "Radiohead", 7, "art rock")
	s.engine.DetectPatternsFromReviews(events)
	s.Equal(models.PatternStatusFaded, statusByID(s.engine.Patterns())["discovery_comfort_oscillation"])

	// Alternate again: a new artist, then Radiohead, repeatedly.
	for i := 0; i < 10; i++ {
		events = testutil.Append(events, 1, "Returning Newcomer "+string(rune('A'+i)), 6, "indie")
		events = testutil.Append(events, 1, "Radiohead", 7, "art rock")
	}
	s.engine.DetectPatternsFromReviews(events)

	s.True(statusByID(s.engine.ActivePatterns())["discovery_comfort_oscillation"] != "")
}

func (s *EngineSuite) TestLoadFromJSON_CorruptStateStartsCold() {
	s.engine.DetectPatternsFromReviews(testutil.OscillatingHistory(50, sixMonths))
	s.Require().NotEmpty(s.engine.Patterns())

	tests := map[string]string{
		"not json":       "{broken",
		"wrong shape":    `{"patterns": 1}`,
		"invalid status": `[{"id":"critical_ear","status":"zombie","confidence":0.5}]`,
		"confidence":     `[{"id":"critical_ear","status":"emerging","confidence":4}]`,
		"missing id":     `[{"status":"emerging","confidence":0.5}]`,
	}
	for name, data := range tests {
		s.Run(name, func() {
			err := s.engine.LoadFromJSON([]byte(data))
			s.Error(err)
			s.Empty(s.engine.Patterns())
		})
	}
}

func (s *EngineSuite) TestLoadFromJSON_EmptyAndRetired() {
	s.NoError(s.engine.LoadFromJSON(nil))
	s.Empty(s.engine.Patterns())

	s.NoError(s.engine.LoadFromJSON([]byte(`[{"id":"retired_detector","status":"confirmed","confidence":0.9}]`)))
	s.Empty(s.engine.Patterns())
}

func (s *EngineSuite) TestRoundTripIsByteStable() {
	s.engine.DetectPatternsFromReviews(testutil.OscillatingHistory(50, sixMonths))
	first, err := s.engine.ToJSON()
	s.Require().NoError(err)

	reloaded := NewEngine(DefaultConfig(), zerolog.Nop())
	s.Require().NoError(reloaded.LoadFromJSON(first))
	second, err := reloaded.ToJSON()
	s.Require().NoError(err)

	s.Equal(string(first), string(second))
	s.NotContains(string(first), "evidence")
}

func (s *EngineSuite) TestSortedByImportance() {
	s.Require().NoError(s.engine.LoadFromJSON([]byte(`[
		{"id":"binge_sessions","status":"faded","confidence":0.9},
		{"id":"critical_ear","status":"emerging","confidence":0.9},
		{"id":"genre_hopper","status":"confirmed","confidence":0.7}
	]`)))

	sorted := s.engine.GetPatternsSortedByImportance()

	s.Require().Len(sorted, 3)
	s.Equal("genre_hopper", sorted[0].ID)
	s.Equal("critical_ear", sorted[1].ID)
	s.Equal("binge_sessions", sorted[2].ID)
}

func (s *EngineSuite) TestPolarizedRaterTriggersBothRatingDetectors() {
	var events []models.RatingEvent
	for i := 0; i < 40; i++ {
		rating := 2.0
		if i%2 == 1 {
			rating = 10
		}
		at := testutil.Epoch.Add(time.Duration(i) * 3 * 24 * time.Hour)
		events = append(events, testutil.Event(string(rune('A'+i)), at, "Artist "+string(rune('A'+i)), rating, "noise"))
	}

	statuses := statusByID(s.engine.DetectPatternsFromReviews(events))

	s.Equal(models.PatternStatusConfirmed, statuses["critical_ear"])
	s.Equal(models.PatternStatusConfirmed, statuses["generous_rater"])
}

func TestMarkBursts(t *testing.T) {
	events := []models.RatingEvent{
		testutil.Event("1", testutil.Epoch, "a", 5),
		testutil.Event("2", testutil.Epoch.Add(time.Hour), "a", 5),
		testutil.Event("3", testutil.Epoch.Add(2*time.Hour), "a", 5),
		testutil.Event("4", testutil.Epoch.Add(72*time.Hour), "a", 5),
	}

	flags := markBursts(events, map[string][]int{"": {0, 1, 2, 3}}, 3, 24*time.Hour)

	if !flags[0] || !flags[1] || !flags[2] || flags[3] {
		t.Errorf("unexpected burst flags %v", flags)
	}
}

func TestOscillationIgnoresRatingsWithoutArtist(t *testing.T) {
	base := testutil.OscillatingHistory(20, 60*24*time.Hour)
	var withBlanks []models.RatingEvent
	for i, e := range base {
		withBlanks = append(withBlanks, e,
			testutil.Event(fmt.Sprintf("blank%02d", i), e.CreatedAt.Add(time.Minute), "", 7, "art rock"))
	}

	want := detectOscillation(base, DefaultConfig())
	got := detectOscillation(withBlanks, DefaultConfig())

	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
	assert.Equal(t, want.Support, got.Support)
	for _, id := range got.Evidence {
		assert.NotContains(t, id, "blank")
	}

	blank := []models.RatingEvent{
		testutil.Event("1", testutil.Epoch, "", 7),
		testutil.Event("2", testutil.Epoch.Add(time.Hour), "", 7),
	}
	assert.Zero(t, detectOscillation(blank, DefaultConfig()).Confidence)
}

func TestLoyalistFollowsConfiguredShares(t *testing.T) {
	events := []models.RatingEvent{
		testutil.Event("1", testutil.Epoch, "a", 7, "rock"),
		testutil.Event("2", testutil.Epoch.Add(time.Hour), "b", 7, "rock"),
		testutil.Event("3", testutil.Epoch.Add(2*time.Hour), "c", 7, "rock"),
		testutil.Event("4", testutil.Epoch.Add(3*time.Hour), "d", 7, "jazz"),
	}

	config := DefaultConfig()
	config.LoyalistBaseShare, config.LoyalistRange = 0.5, 0.5

	assert.InDelta(t, 0.5, detectGenreLoyalist(events, config).Confidence, 1e-9)
}

func TestBurstShareScalesSprintConfidence(t *testing.T) {
	events := testutil.SingleArtistHistory(8, "Low", 7)

	config := DefaultConfig()
	config.BurstShare = 1
	assert.InDelta(t, 1.0, detectDeepDiveSprints(events, config).Confidence, 1e-9)

	events = append(events, testutil.Append(events, 8, "", 7)[8:]...)
	assert.InDelta(t, 0.5, detectDeepDiveSprints(events, config).Confidence, 1e-9)
}
