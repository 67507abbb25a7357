// Package matcher selects the trigger or sub-script that answers an inbound text.
package matcher

import (
	"cmp"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/textnorm"
)

type SourceType string

const (
	SourceTrigger   SourceType = "trigger"
	SourceSubScript SourceType = "subscript"
)

// Result is one matched candidate. Exactly one of Trigger and SubScript is set.
type Result struct {
	SourceType SourceType
	TargetID   string
	Score      float64
	Priority   int
	Keyword    string
	Scenario   *models.Scenario
	Trigger    *models.Trigger
	SubScript  *models.SubScript

	createdAt int64
	index     int
}

// ConfidenceScorer turns a keyword comparison into a confidence in [0,1]. hit is the outcome of the
// literal match mode comparison.
type ConfidenceScorer interface {
	Score(text, keyword string, mode models.MatchMode, hit bool) float64
}

// ExactScorer scores literal hits as 1 and everything else as 0.
type ExactScorer struct{}

func (ExactScorer) Score(_, _ string, _ models.MatchMode, hit bool) float64 {
	if hit {
		return 1
	}

	return 0
}

type Option func(*Matcher)

func WithScorer(scorer ConfidenceScorer) Option {
	return func(m *Matcher) {
		m.scorer = scorer
	}
}

// Matcher evaluates keyword triggers and sub-scripts. It is safe for concurrent use; compiled
// patterns are cached for the life of the matcher.
type Matcher struct {
	logger   *slog.Logger
	scorer   ConfidenceScorer
	patterns sync.Map
}

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

func New(logger *slog.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		logger: logger.With("module", "matcher"),
		scorer: ExactScorer{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Match returns every candidate of the active scenarios that matches text, best first.
// bindings is the conversation's variable context used by sub-scripts with a context requirement.
func (m *Matcher) Match(scenarios []*models.Scenario, text string, bindings map[string]any) []Result {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return nil
	}

	results := make([]Result, 0)

	for _, scenario := range scenarios {
		if !scenario.IsActive() {
			continue
		}

		for index, trigger := range scenario.Triggers {
			if result, ok := m.matchTrigger(scenario, trigger, normalized); ok {
				result.index = index
				results = append(results, result)
			}
		}

		for index, subScript := range scenario.SubScripts {
			if result, ok := m.matchSubScript(scenario, subScript, normalized, bindings); ok {
				result.index = len(scenario.Triggers) + index
				results = append(results, result)
			}
		}
	}

	Sort(results)

	m.logger.Debug("matched candidates", "text", normalized, "candidates", len(results))

	return results
}

// Best returns the highest ranked candidate for text.
func (m *Matcher) Best(scenarios []*models.Scenario, text string, bindings map[string]any) (*Result, bool) {
	results := m.Match(scenarios, text, bindings)
	if len(results) == 0 {
		return nil, false
	}

	return &results[0], true
}

// Events returns the active event triggers whose value equals event, ordered with the same rule as
// keyword candidates.
func Events(scenarios []*models.Scenario, event string) []Result {
	results := make([]Result, 0)

	for _, scenario := range scenarios {
		if !scenario.IsActive() {
			continue
		}

		for index, trigger := range scenario.Triggers {
			if trigger.Type != models.TriggerTypeEvent || !trigger.IsActive || trigger.Value != event {
				continue
			}

			results = append(results, Result{
				SourceType: SourceTrigger,
				TargetID:   trigger.ID,
				Score:      1,
				Priority:   trigger.Priority,
				Keyword:    trigger.Value,
				Scenario:   scenario,
				Trigger:    trigger,
				createdAt:  trigger.CreatedAt.UnixNano(),
				index:      index,
			})
		}
	}

	Sort(results)

	return results
}

// Sort orders candidates by priority, then matched keyword length, then scenario priority, then
// creation time. Remaining ties fall back to ids so the order never depends on storage order.
func Sort(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}

		if c := cmp.Compare(utf8.RuneCountInString(b.Keyword), utf8.RuneCountInString(a.Keyword)); c != 0 {
			return c
		}

		if c := cmp.Compare(b.Scenario.Priority, a.Scenario.Priority); c != 0 {
			return c
		}

		if c := cmp.Compare(a.createdAt, b.createdAt); c != 0 {
			return c
		}

		if c := strings.Compare(a.Scenario.ID, b.Scenario.ID); c != 0 {
			return c
		}

		if c := cmp.Compare(a.index, b.index); c != 0 {
			return c
		}

		return strings.Compare(a.TargetID, b.TargetID)
	})
}

func (m *Matcher) matchTrigger(scenario *models.Scenario, trigger *models.Trigger, text string) (Result, bool) {
	if trigger.Type != models.TriggerTypeKeyword || !trigger.IsActive {
		return Result{}, false
	}

	mode := trigger.MatchMode
	if mode == "" {
		mode = models.MatchModeContains
	}

	if mode == models.MatchModeStartsWith {
		m.logger.Warn("startswith is not supported on triggers",
			"scenario_id", scenario.ID,
			"trigger_id", trigger.ID)

		return Result{}, false
	}

	matched, ok := m.compare(scenario.ID, mode, trigger.Value, text)
	if !ok {
		return Result{}, false
	}

	return Result{
		SourceType: SourceTrigger,
		TargetID:   trigger.ID,
		Score:      1,
		Priority:   trigger.Priority,
		Keyword:    matched,
		Scenario:   scenario,
		Trigger:    trigger,
		createdAt:  trigger.CreatedAt.UnixNano(),
	}, true
}

func (m *Matcher) matchSubScript(
	scenario *models.Scenario,
	subScript *models.SubScript,
	text string,
	bindings map[string]any,
) (Result, bool) {
	if !subScript.IsActive() {
		return Result{}, false
	}

	if subScript.ContextRequired != "" && !present(bindings, subScript.ContextRequired) {
		return Result{}, false
	}

	var (
		best      Result
		found     bool
		bestScore float64
	)

	for _, keyword := range subScript.TriggerKeywords {
		matched, hit := m.compare(scenario.ID, subScript.MatchMode, keyword, text)

		score := m.scorer.Score(text, keyword, subScript.MatchMode, hit)
		if score <= 0 || score < subScript.ConfidenceThreshold {
			continue
		}

		if matched == "" {
			matched = textnorm.Normalize(keyword)
		}

		if found && (score < bestScore ||
			(score == bestScore && utf8.RuneCountInString(matched) <= utf8.RuneCountInString(best.Keyword))) {
			continue
		}

		found = true
		bestScore = score
		best = Result{
			SourceType: SourceSubScript,
			TargetID:   subScript.ID,
			Score:      score,
			Priority:   subScript.Priority,
			Keyword:    matched,
			Scenario:   scenario,
			SubScript:  subScript,
			createdAt:  subScript.CreatedAt.UnixNano(),
		}
	}

	return best, found
}

// compare applies mode to the normalized text. It returns the matched keyword text on a hit.
func (m *Matcher) compare(scenarioID string, mode models.MatchMode, keyword, text string) (string, bool) {
	if mode == models.MatchModeRegex {
		re := m.pattern(scenarioID, keyword)
		if re == nil {
			return "", false
		}

		loc := re.FindStringIndex(text)
		if loc == nil {
			return "", false
		}

		return text[loc[0]:loc[1]], true
	}

	normalized := textnorm.Normalize(keyword)
	if normalized == "" {
		return "", false
	}

	switch mode {
	case models.MatchModeExact:
		return normalized, text == normalized
	case models.MatchModeStartsWith:
		return normalized, strings.HasPrefix(text, normalized)
	case models.MatchModeContains, "":
		return normalized, strings.Contains(text, normalized)
	default:
		m.logger.Warn("unknown match mode", "scenario_id", scenarioID, "match_mode", mode)

		return "", false
	}
}

func (m *Matcher) pattern(scenarioID, pattern string) *regexp.Regexp {
	if cached, ok := m.patterns.Load(pattern); ok {
		compiled := cached.(compiledPattern)

		return compiled.re
	}

	re, err := regexp.Compile(textnorm.Pattern(pattern))
	if err != nil {
		m.logger.Warn("malformed regex pattern treated as non-matching",
			"scenario_id", scenarioID,
			"pattern", pattern,
			"error", err)
	}

	m.patterns.Store(pattern, compiledPattern{re: re, err: err})

	return re
}

func present(bindings map[string]any, key string) bool {
	value, ok := bindings[key]
	if !ok || value == nil {
		return false
	}

	if s, isString := value.(string); isString {
		return s != ""
	}

	return true
}
