package matcher

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(opts ...Option) *Matcher {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return New(logger, opts...)
}

func subScript(id string, priority int, mode models.MatchMode, keywords ...string) *models.SubScript {
	return &models.SubScript{
		ID:               id,
		Name:             id,
		TriggerKeywords:  keywords,
		ResponseTemplate: "reply from " + id,
		Priority:         priority,
		Status:           models.SubScriptStatusActive,
		MatchMode:        mode,
		CreatedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func scenario(id string, subScripts ...*models.SubScript) *models.Scenario {
	return &models.Scenario{
		ID:         id,
		PageID:     "page-1",
		Name:       id,
		Status:     models.ScenarioStatusActive,
		SubScripts: subScripts,
	}
}

func TestMatch_HigherPriorityWinsRegardlessOfOrder(t *testing.T) {
	t.Parallel()

	greeting := subScript("greeting", 10, models.MatchModeContains, "xin chào", "hello")
	product := subScript("product", 8, models.MatchModeContains, "sản phẩm")

	orders := [][]*models.Scenario{
		{scenario("a", greeting), scenario("b", product)},
		{scenario("b", product), scenario("a", greeting)},
		{scenario("a", product, greeting)},
	}

	m := newTestMatcher()

	for _, scenarios := range orders {
		results := m.Match(scenarios, "xin chào, có sản phẩm gì không?", nil)

		require.Len(t, results, 2)
		assert.Equal(t, "greeting", results[0].TargetID)
		assert.Equal(t, SourceSubScript, results[0].SourceType)
		assert.Equal(t, "reply from greeting", results[0].SubScript.ResponseTemplate)
		assert.Equal(t, "product", results[1].TargetID)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	t.Parallel()

	scenarios := []*models.Scenario{
		scenario("a",
			subScript("one", 5, models.MatchModeContains, "giá"),
			subScript("two", 5, models.MatchModeContains, "giá"),
		),
	}

	m := newTestMatcher()

	first, ok := m.Best(scenarios, "cho hỏi giá", nil)
	require.True(t, ok)

	for range 10 {
		again, ok := m.Best(scenarios, "cho hỏi giá", nil)
		require.True(t, ok)
		assert.Equal(t, first.TargetID, again.TargetID)
	}

	assert.Equal(t, "one", first.TargetID)
}

func TestMatch_TieBreaks(t *testing.T) {
	t.Parallel()

	t.Run("longest keyword wins", func(t *testing.T) {
		t.Parallel()

		short := subScript("short", 5, models.MatchModeContains, "giá")
		long := subScript("long", 5, models.MatchModeContains, "giá sỉ")

		best, ok := newTestMatcher().Best([]*models.Scenario{scenario("a", short, long)}, "Giá sỉ bao nhiêu?", nil)
		require.True(t, ok)
		assert.Equal(t, "long", best.TargetID)
		assert.Equal(t, "giá sỉ", best.Keyword)
	})

	t.Run("earliest created wins", func(t *testing.T) {
		t.Parallel()

		older := subScript("older", 5, models.MatchModeContains, "ship")
		newer := subScript("newer", 5, models.MatchModeContains, "ship")
		newer.CreatedAt = older.CreatedAt.Add(time.Hour)

		best, ok := newTestMatcher().Best([]*models.Scenario{scenario("a", newer, older)}, "ship cod?", nil)
		require.True(t, ok)
		assert.Equal(t, "older", best.TargetID)
	})

	t.Run("scenario priority breaks trigger ties", func(t *testing.T) {
		t.Parallel()

		low := &models.Scenario{
			ID: "low", Status: models.ScenarioStatusActive, Priority: 1,
			Triggers: []*models.Trigger{{ID: "t-low", Type: models.TriggerTypeKeyword, Value: "menu", IsActive: true}},
		}
		high := &models.Scenario{
			ID: "high", Status: models.ScenarioStatusActive, Priority: 9,
			Triggers: []*models.Trigger{{ID: "t-high", Type: models.TriggerTypeKeyword, Value: "menu", IsActive: true}},
		}

		best, ok := newTestMatcher().Best([]*models.Scenario{low, high}, "MENU", nil)
		require.True(t, ok)
		assert.Equal(t, "t-high", best.TargetID)
		assert.Equal(t, SourceTrigger, best.SourceType)
	})

	t.Run("longer keyword beats scenario priority across scenarios", func(t *testing.T) {
		t.Parallel()

		general := scenario("general", subScript("short", 5, models.MatchModeContains, "giá"))
		general.Priority = 9
		wholesale := scenario("wholesale", subScript("long", 5, models.MatchModeContains, "giá sỉ"))
		wholesale.Priority = 1

		for _, scenarios := range [][]*models.Scenario{{general, wholesale}, {wholesale, general}} {
			best, ok := newTestMatcher().Best(scenarios, "giá sỉ bao nhiêu?", nil)
			require.True(t, ok)
			assert.Equal(t, "long", best.TargetID)
		}
	})
}

func TestMatch_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mode    models.MatchMode
		keyword string
		text    string
		match   bool
	}{
		{name: "contains", mode: models.MatchModeContains, keyword: "Hello", text: "oh hello there", match: true},
		{name: "contains miss", mode: models.MatchModeContains, keyword: "hello", text: "hi", match: false},
		{name: "exact", mode: models.MatchModeExact, keyword: "menu", text: "  MENU ", match: true},
		{name: "exact miss", mode: models.MatchModeExact, keyword: "menu", text: "menu please", match: false},
		{name: "startswith", mode: models.MatchModeStartsWith, keyword: "mua", text: "Mua 2 cái", match: true},
		{name: "startswith miss", mode: models.MatchModeStartsWith, keyword: "mua", text: "tôi mua", match: false},
		{name: "regex", mode: models.MatchModeRegex, keyword: `size\s+(s|m|l)\b`, text: "Size  M còn không", match: true},
		{name: "malformed regex", mode: models.MatchModeRegex, keyword: `size(`, text: "size(", match: false},
		{name: "decomposed input", mode: models.MatchModeContains, keyword: "ch\u00e0o", text: "xin cha\u0300o", match: true},
		{name: "diacritics matter", mode: models.MatchModeContains, keyword: "bán", text: "ban", match: false},
		{name: "blank keyword never matches", mode: models.MatchModeContains, keyword: "  ", text: "anything", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scenarios := []*models.Scenario{scenario("a", subScript("s", 1, tt.mode, tt.keyword))}

			_, ok := newTestMatcher().Best(scenarios, tt.text, nil)
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestMatch_MalformedRegexFallsToNextCandidate(t *testing.T) {
	t.Parallel()

	broken := subScript("broken", 9, models.MatchModeRegex, `[`)
	fallback := subScript("fallback", 1, models.MatchModeContains, "[")

	m := newTestMatcher()

	for range 2 {
		best, ok := m.Best([]*models.Scenario{scenario("a", broken, fallback)}, "[", nil)
		require.True(t, ok)
		assert.Equal(t, "fallback", best.TargetID)
	}
}

func TestMatch_TriggerRules(t *testing.T) {
	t.Parallel()

	s := &models.Scenario{
		ID:     "a",
		Status: models.ScenarioStatusActive,
		Triggers: []*models.Trigger{
			{ID: "inactive", Type: models.TriggerTypeKeyword, Value: "hi", IsActive: false, Priority: 9},
			{ID: "starts", Type: models.TriggerTypeKeyword, MatchMode: models.MatchModeStartsWith, Value: "hi", IsActive: true, Priority: 8},
			{ID: "event", Type: models.TriggerTypeEvent, Value: "hi", IsActive: true, Priority: 7},
			{ID: "keyword", Type: models.TriggerTypeKeyword, Value: "hi", IsActive: true, Priority: 1},
		},
	}

	results := newTestMatcher().Match([]*models.Scenario{s}, "hi", nil)
	require.Len(t, results, 1)
	assert.Equal(t, "keyword", results[0].TargetID)

	s.Status = models.ScenarioStatusInactive
	assert.Empty(t, newTestMatcher().Match([]*models.Scenario{s}, "hi", nil))
}

func TestMatch_ContextRequired(t *testing.T) {
	t.Parallel()

	s := subScript("needs-phone", 1, models.MatchModeContains, "đặt hàng")
	s.ContextRequired = "phone"
	scenarios := []*models.Scenario{scenario("a", s)}

	m := newTestMatcher()

	_, ok := m.Best(scenarios, "đặt hàng", nil)
	assert.False(t, ok)

	_, ok = m.Best(scenarios, "đặt hàng", map[string]any{"phone": ""})
	assert.False(t, ok)

	_, ok = m.Best(scenarios, "đặt hàng", map[string]any{"phone": "0900000000"})
	assert.True(t, ok)
}

type fixedScorer float64

func (f fixedScorer) Score(_, _ string, _ models.MatchMode, hit bool) float64 {
	if !hit {
		return 0
	}

	return float64(f)
}

func TestMatch_ConfidenceThreshold(t *testing.T) {
	t.Parallel()

	strict := subScript("strict", 5, models.MatchModeContains, "tư vấn")
	strict.ConfidenceThreshold = 0.8
	loose := subScript("loose", 1, models.MatchModeContains, "tư vấn")
	loose.ConfidenceThreshold = 0.5

	scenarios := []*models.Scenario{scenario("a", strict, loose)}

	best, ok := newTestMatcher(WithScorer(fixedScorer(0.6))).Best(scenarios, "cần tư vấn", nil)
	require.True(t, ok)
	assert.Equal(t, "loose", best.TargetID)
	assert.InDelta(t, 0.6, best.Score, 0.0001)

	best, ok = newTestMatcher().Best(scenarios, "cần tư vấn", nil)
	require.True(t, ok)
	assert.Equal(t, "strict", best.TargetID)
	assert.InDelta(t, 1.0, best.Score, 0.0001)
}

func TestEvents_OrderedByPriority(t *testing.T) {
	t.Parallel()

	scenarios := []*models.Scenario{
		{
			ID: "a", Status: models.ScenarioStatusActive,
			Triggers: []*models.Trigger{
				{ID: "welcome-low", Type: models.TriggerTypeEvent, Value: models.EventConversationStarted, IsActive: true, Priority: 1},
				{ID: "other", Type: models.TriggerTypeEvent, Value: "BUY_NOW", IsActive: true, Priority: 9},
			},
		},
		{
			ID: "b", Status: models.ScenarioStatusActive,
			Triggers: []*models.Trigger{
				{ID: "welcome-high", Type: models.TriggerTypeEvent, Value: models.EventConversationStarted, IsActive: true, Priority: 4},
			},
		},
	}

	results := Events(scenarios, models.EventConversationStarted)
	require.Len(t, results, 2)
	assert.Equal(t, "welcome-high", results[0].TargetID)
	assert.Equal(t, "welcome-low", results[1].TargetID)
}
