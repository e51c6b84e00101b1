package tasteid

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/tasteid/internal/testutil"
	"github.com/thebtf/tasteid/pkg/models"
)

const sixMonths = 182 * 24 * time.Hour

var fixedNow = time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	e := NewEngine(DefaultConfig(), nil, zerolog.Nop())
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

type EngineSuite struct {
	suite.Suite
	engine *Engine
	events []models.RatingEvent
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = newEngine()
	s.events = testutil.OscillatingHistory(50, sixMonths)
}

func (s *EngineSuite) statusOf(patterns []*models.Pattern, id string) models.PatternStatus {
	for _, p := range patterns {
		if p.ID == id {
			return p.Status
		}
	}
	return models.PatternStatusNone
}

func (s *EngineSuite) TestCompute_RejectsShortHistory() {
	_, err := s.engine.Compute(s.events[:2], nil)
	s.ErrorIs(err, ErrInsufficientData)
	s.False(IsRetryable(err))
}

func (s *EngineSuite) TestCompute_ThreeRatingsForOneArtist() {
	result, err := s.engine.Compute(testutil.SingleArtistHistory(3, "Bjork", 10), nil)
	s.Require().NoError(err)

	s.Less(result.Signature.Archetype.AdventurenessScore, 0.4)
	s.Empty(confirmedIDs(result.Patterns))
	s.Empty(result.Alerts)
	s.Empty(result.ColdStarts)
	s.False(result.Snapshot.IsEmpty())
}

func confirmedIDs(patterns []*models.Pattern) []string {
	var ids []string
	for _, p := range patterns {
		if p.Status == models.PatternStatusConfirmed {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (s *EngineSuite) TestCompute_OscillationConfirms() {
	result, err := s.engine.Compute(s.events, nil)
	s.Require().NoError(err)

	s.Equal(models.PatternStatusConfirmed, s.statusOf(result.Patterns, "discovery_comfort_oscillation"))
	s.NotEmpty(result.Episodes)
	s.Equal(len(s.events), result.EpisodeStats.TotalEvents)
}

func (s *EngineSuite) TestCompute_IdempotentRecompute() {
	first, err := s.engine.Compute(s.events, nil)
	s.Require().NoError(err)

	second, err := s.engine.Compute(s.events, &first.Snapshot)
	s.Require().NoError(err)
	third, err := s.engine.Compute(s.events, &second.Snapshot)
	s.Require().NoError(err)

	s.Empty(second.Alerts)
	s.Empty(second.SignificantDrifts)
	s.JSONEq(string(first.Snapshot.PatternState), string(second.Snapshot.PatternState))
	s.JSONEq(string(first.Snapshot.CognitiveGraph), string(second.Snapshot.CognitiveGraph))
	s.JSONEq(string(first.Snapshot.EpisodeHistory), string(second.Snapshot.EpisodeHistory))
	s.JSONEq(string(first.Snapshot.DriftState), string(second.Snapshot.DriftState))
	s.Equal(second.Snapshot, third.Snapshot)
}

func (s *EngineSuite) TestCompute_InputOrderDoesNotMatter() {
	reversed := make([]models.RatingEvent, len(s.events))
	for i, e := range s.events {
		reversed[len(s.events)-1-i] = e
	}

	a, err := s.engine.Compute(s.events, nil)
	s.Require().NoError(err)
	b, err := s.engine.Compute(reversed, nil)
	s.Require().NoError(err)

	s.Equal(a.Snapshot, b.Snapshot)
}

func (s *EngineSuite) TestCompute_PatternDisappearsAfterBehaviorStops() {
	first, err := s.engine.Compute(s.events, nil)
	s.Require().NoError(err)

	events := testutil.Append(s.events, 40, "Radiohead", 7, "art rock")
	second, err := s.engine.Compute(events, &first.Snapshot)
	s.Require().NoError(err)

	s.Equal(models.PatternStatusFaded, s.statusOf(second.Patterns, "discovery_comfort_oscillation"))
	var found bool
	for _, a := range second.Alerts {
		if a.Kind == models.DriftPatternDisappeared && a.Subject == "discovery_comfort_oscillation" {
			found = true
			s.Equal(fixedNow, a.DetectedAt)
		}
	}
	s.True(found)
}

func (s *EngineSuite) TestCompute_CorruptBlobsStartCold() {
	first, err := s.engine.Compute(s.events, nil)
	s.Require().NoError(err)

	prior := first.Snapshot
	prior.PatternState = []byte(`{"not":"an array"}`)
	prior.DriftState = []byte(`[`)

	result, err := s.engine.Compute(s.events, &prior)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"pattern", "drift"}, result.ColdStarts)
	s.Empty(result.Alerts)
	s.JSONEq(string(first.Snapshot.CognitiveGraph), string(result.Snapshot.CognitiveGraph))
}

func (s *EngineSuite) TestUpdateConfig_AppliesToNextRun() {
	config := DefaultConfig()
	config.MinEvents = 60
	s.engine.UpdateConfig(config)

	_, err := s.engine.Compute(s.events, nil)
	s.ErrorIs(err, ErrInsufficientData)
	s.Equal(60, s.engine.Config().MinEvents)
}

// polarizedHistory alternates 2/10 ratings of one genre every three days.
func polarizedHistory(n int) []models.RatingEvent {
	events := make([]models.RatingEvent, 0, n)
	for i := 0; i < n; i++ {
		rating := 2.0
		if i%2 == 1 {
			rating = 10
		}
		at := testutil.Epoch.Add(time.Duration(i) * 3 * 24 * time.Hour)
		events = append(events, testutil.Event(fmt.Sprintf("p%03d", i), at, fmt.Sprintf("Artist %d", i%4), rating, "noise"))
	}
	return events
}

func contradictions(alerts []models.DriftAlert) []string {
	var subjects []string
	for _, a := range alerts {
		if a.Kind == models.DriftContradiction {
			subjects = append(subjects, a.Subject)
		}
	}
	return subjects
}

func (s *EngineSuite) TestCompute_ContradictionOnFirstRun() {
	first, err := s.engine.Compute(polarizedHistory(40), nil)
	s.Require().NoError(err)

	s.Subset(confirmedIDs(first.Patterns), []string{"critical_ear", "generous_rater"})
	s.Equal([]string{"critical_ear+generous_rater"}, contradictions(first.Alerts))
	s.Contains(contradictions(first.SignificantDrifts), "critical_ear+generous_rater")

	prior := first.Snapshot
	for _, n := range []int{60, 80} {
		next, err := s.engine.Compute(polarizedHistory(n), &prior)
		s.Require().NoError(err)
		s.Empty(contradictions(next.Alerts), "%d events", n)
		prior = next.Snapshot
	}
}

func (s *EngineSuite) TestCompute_MinEventsHasFloor() {
	config := DefaultConfig()
	config.MinEvents = 1
	s.engine.UpdateConfig(config)

	_, err := s.engine.Compute(s.events[:2], nil)
	s.ErrorIs(err, ErrInsufficientData)

	_, err = s.engine.Compute(s.events[:3], nil)
	s.NoError(err)
}

func (s *EngineSuite) TestCompute_DuplicateIDsCountOnce() {
	events := testutil.SingleArtistHistory(3, "Low", 8)
	events = append(events, events[2], events[1])

	_, err := s.engine.Compute(events[2:], nil)
	s.ErrorIs(err, ErrInsufficientData, "three copies of two ratings")

	result, err := s.engine.Compute(events, nil)
	s.Require().NoError(err)
	s.Equal(3, result.EventCount)
	s.Equal(3, result.EpisodeStats.TotalEvents)
}

func (s *EngineSuite) TestPreview_AcceptsSingleRating() {
	result, err := s.engine.Preview(s.events[:1])
	s.Require().NoError(err)
	s.Equal(1, result.Stats.RatingCount)

	_, err = s.engine.Preview(nil)
	s.ErrorIs(err, ErrInsufficientData)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrConflict, true},
		{ErrComputation, true},
		{errors.Join(errors.New("save profile"), ErrConflict), true},
		{insufficientData(1, 3), false},
		{errors.New("disk full"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, outcomeOK, outcome(nil))
	assert.Equal(t, outcomeInsufficient, outcome(insufficientData(0, 3)))
	assert.Equal(t, outcomeConflict, outcome(ErrConflict))
	assert.Equal(t, outcomeError, outcome(ErrComputation))
}

func TestResultProfile(t *testing.T) {
	result, err := newEngine().Compute(testutil.SingleArtistHistory(5, "Low", 8), nil)
	require.NoError(t, err)

	profile := result.Profile("u1", "run-1", fixedNow)

	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, "run-1", profile.RunID)
	assert.Equal(t, result.Signature.Archetype, profile.Archetype)
	assert.Equal(t, result.Snapshot, profile.Snapshot)
	assert.Equal(t, 5, profile.Stats.RatingCount)
}
