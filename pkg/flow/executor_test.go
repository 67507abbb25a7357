package flow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/mocks"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeActions struct {
	results map[models.ActionType]models.ActionStatus
	seen    []models.ActionType
}

func (f *fakeActions) Execute(_ context.Context, action *models.Action, env actions.Env) *models.ActionResult {
	f.seen = append(f.seen, action.Type)

	status := models.ActionStatusSuccess
	if configured, ok := f.results[action.Type]; ok {
		status = configured
	}

	if action.Type == models.ActionTypeTransferToAgent && status == models.ActionStatusSuccess {
		env.Conversation.Status = models.ConversationStatusPending
	}

	return &models.ActionResult{Type: action.Type, Status: status}
}

type fakeResponder struct {
	text     string
	err      error
	requests []ai.Request
}

func (f *fakeResponder) Respond(_ context.Context, request ai.Request) (string, error) {
	f.requests = append(f.requests, request)

	return f.text, f.err
}

type fakeSnapshots map[string]*models.Scenario

func (f fakeSnapshots) Published(_ context.Context, scenarioID string) (*models.Scenario, error) {
	scenario, ok := f[scenarioID]
	if !ok {
		return nil, errors.New("scenario not published")
	}

	return scenario, nil
}

type fixture struct {
	actions   *fakeActions
	responder *fakeResponder
	catalog   *mocks.MockCatalog
	snapshots fakeSnapshots
	executor  *Executor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		actions:   &fakeActions{results: map[models.ActionType]models.ActionStatus{}},
		responder: &fakeResponder{},
		catalog:   &mocks.MockCatalog{},
		snapshots: fakeSnapshots{},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	f.executor = NewExecutor(logger, f.actions, f.responder, f.catalog, f.snapshots, opts...)

	return f
}

func newRun(scenario *models.Scenario, text string) *Run {
	return &Run{
		Scenario: scenario,
		Conversation: &models.Conversation{
			ID:      "c1",
			PageID:  "p1",
			PSID:    "u1",
			Status:  models.ConversationStatusActive,
			Context: map[string]any{},
		},
		Message: &models.InboundMessage{PageID: "p1", SenderID: "u1", MID: "m1", Text: text},
		Trace:   NewTrace(),
	}
}

// reply points the run at a new inbound message, as the engine does between deliveries.
func reply(run *Run, text, payload string) {
	run.Message = &models.InboundMessage{PageID: "p1", SenderID: "u1", MID: "m-" + text, Text: text, Payload: payload}
	run.Trace = NewTrace()
}

func node(id string, content models.Content) *models.Node {
	return &models.Node{ID: id, Type: content.NodeType(), Content: content}
}

func text(id, body string) *models.Node {
	return node(id, &models.TextContent{Text: body})
}

func link(id, from, to, condition string, order int) *models.Link {
	return &models.Link{ID: id, FromNodeID: from, ToNodeID: to, Condition: condition, OrderIndex: order}
}

func scenario(nodes []*models.Node, links ...*models.Link) *models.Scenario {
	return &models.Scenario{
		ID:               "s1",
		PageID:           "p1",
		Name:             "shop",
		Status:           models.ScenarioStatusActive,
		PublishedVersion: 3,
		Nodes:            nodes,
		Links:            links,
	}
}

func texts(result *Result) []string {
	out := make([]string, 0, len(result.Parts))
	for _, part := range result.Parts {
		out = append(out, part.Text)
	}

	return out
}

func steps(trace *Trace, kind StepKind) []Step {
	out := make([]Step, 0)
	for _, step := range trace.Steps {
		if step.Kind == kind {
			out = append(out, step)
		}
	}

	return out
}

func TestExecutor_Start_FollowsFirstPassingLinkInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario(
		[]*models.Node{
			text("start", "Chào {{ .vars.name }}"),
			text("gold", "Ưu đãi hạng vàng"),
			text("silver", "Ưu đãi hạng bạc"),
			text("default", "Xem sản phẩm"),
		},
		link("l3", "start", "default", "", 2),
		link("l2", "start", "silver", `tier == "silver"`, 1),
		link("l1", "start", "gold", `tier == "gold"`, 0),
	)
	s.Variables = []*models.Variable{
		{Key: "name", Type: models.VariableTypeString, DefaultValue: "bạn"},
		{Key: "tier", Type: models.VariableTypeString},
	}

	run := newRun(s, "hi")
	run.Conversation.Context["tier"] = "silver"

	result, err := f.executor.Start(context.Background(), run, "start")
	require.NoError(t, err)

	assert.Equal(t, []string{"Chào bạn", "Ưu đãi hạng bạc"}, texts(result))
	assert.True(t, result.Terminal)
	assert.Nil(t, run.Conversation.FlowState)
	assert.Equal(t, models.ProcessedByScript, result.ProcessedBy)

	conditions := steps(run.Trace, StepCondition)
	require.Len(t, conditions, 2)
	assert.Equal(t, "l1", conditions[0].LinkID)
	assert.False(t, *conditions[0].Passed)
	assert.Equal(t, "l2", conditions[1].LinkID)
	assert.True(t, *conditions[1].Passed)
}

func TestExecutor_Start_BadConditionCountsAsFalse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario(
		[]*models.Node{text("start", "a"), text("broken", "b"), text("fallback", "c")},
		link("l1", "start", "broken", "tier ===", 0),
		link("l2", "start", "fallback", "", 1),
	)

	run := newRun(s, "hi")

	result, err := f.executor.Start(context.Background(), run, "start")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, texts(result))

	conditions := steps(run.Trace, StepCondition)
	require.Len(t, conditions, 1)
	assert.NotEmpty(t, conditions[0].Error)
	assert.False(t, *conditions[0].Passed)
}

func TestExecutor_Start_MissingEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario([]*models.Node{text("start", "a")})

	run := newRun(s, "hi")
	previous := &models.FlowState{ScenarioID: "other", CurrentNodeID: "x", AwaitingInputFor: models.AwaitQuickReply}
	run.Conversation.FlowState = previous

	result, err := f.executor.Start(context.Background(), run, "nope")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsConfigError(err))

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, KindMissingEntry, configErr.Kind)
	assert.Same(t, previous, run.Conversation.FlowState)
	assert.Len(t, steps(run.Trace, StepConfigError), 1)
}

func TestExecutor_Start_ReplacesPreviousFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario([]*models.Node{
		node("ask", &models.QuickReplyContent{Text: "Size?", Options: []models.QuickReplyOption{{Title: "M"}}}),
	})

	run := newRun(s, "hi")
	run.Conversation.FlowState = &models.FlowState{ScenarioID: "other", CurrentNodeID: "x", AwaitingInputFor: models.AwaitForm, FieldIndex: 2}

	_, err := f.executor.Start(context.Background(), run, "ask")
	require.NoError(t, err)

	state := run.Conversation.FlowState
	require.NotNil(t, state)
	assert.Equal(t, "s1", state.ScenarioID)
	assert.Equal(t, 3, state.Version)
	assert.Equal(t, "ask", state.CurrentNodeID)
	assert.Equal(t, models.AwaitQuickReply, state.AwaitingInputFor)
	assert.Zero(t, state.FieldIndex)
	assert.Equal(t, testNow, state.StartedAt)
}

func TestExecutor_HopLimitStopsSelfLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		emitted int
	}{
		{name: "default limit", emitted: DefaultMaxHops},
		{name: "custom limit", opts: []Option{WithMaxHops(4)}, emitted: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tt.opts...)
			s := scenario([]*models.Node{text("loop", "again")}, link("self", "loop", "loop", "", 0))
			run := newRun(s, "hi")

			result, err := f.executor.Start(context.Background(), run, "loop")
			require.NoError(t, err)

			assert.Len(t, result.Parts, tt.emitted)
			assert.True(t, result.Terminal)
			assert.Nil(t, run.Conversation.FlowState)

			configErrors := steps(run.Trace, StepConfigError)
			require.Len(t, configErrors, 1)
			assert.Contains(t, configErrors[0].Error, KindMaxHops)
		})
	}
}

func TestExecutor_DanglingLinkTerminates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario([]*models.Node{text("start", "a")}, link("l1", "start", "ghost", "", 0))
	run := newRun(s, "hi")

	result, err := f.executor.Start(context.Background(), run, "start")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, texts(result))
	assert.True(t, result.Terminal)
	assert.Nil(t, run.Conversation.FlowState)

	configErrors := steps(run.Trace, StepConfigError)
	require.Len(t, configErrors, 1)
	assert.Contains(t, configErrors[0].Error, "ghost")
}

func quickReplyScenario() *models.Scenario {
	return scenario(
		[]*models.Node{
			node("ask", &models.QuickReplyContent{
				Text: "Bạn muốn đặt hàng?",
				Options: []models.QuickReplyOption{
					{Title: "Có", Payload: "YES", NextNodeID: "yes"},
					{Title: "Không", Payload: "NO"},
				},
				SaveTo: "choice",
			}),
			text("yes", "Tuyệt vời"),
			text("no", "Hẹn gặp lại"),
		},
		link("l1", "ask", "no", "", 0),
	)
}

func TestExecutor_QuickReply_ResumeOnMatchingTitle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(quickReplyScenario(), "mua")

	result, err := f.executor.Start(context.Background(), run, "ask")
	require.NoError(t, err)

	require.Len(t, result.Parts, 1)
	assert.Equal(t, "Bạn muốn đặt hàng?", result.Parts[0].Text)
	require.Len(t, result.Parts[0].Attachments, 1)
	assert.Equal(t, models.AttachmentQuickReply, result.Parts[0].Attachments[0].Type)
	assert.Len(t, result.Parts[0].Attachments[0].QuickReplies, 2)
	assert.True(t, result.Suspended)
	assert.Equal(t, models.AwaitQuickReply, run.Conversation.FlowState.AwaitingInputFor)

	reply(run, "  CÓ ", "")

	result, err = f.executor.Resume(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []string{"Tuyệt vời"}, texts(result))
	assert.Equal(t, "Có", run.Conversation.Context["choice"])
	assert.Nil(t, run.Conversation.FlowState)
}

func TestExecutor_QuickReply_PayloadWithoutNextNodeFollowsLinks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(quickReplyScenario(), "mua")

	_, err := f.executor.Start(context.Background(), run, "ask")
	require.NoError(t, err)

	reply(run, "whatever the button said", "NO")

	result, err := f.executor.Resume(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hẹn gặp lại"}, texts(result))
	assert.Equal(t, "Không", run.Conversation.Context["choice"])
}

func TestExecutor_QuickReply_MismatchPromptsAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(quickReplyScenario(), "mua")

	_, err := f.executor.Start(context.Background(), run, "ask")
	require.NoError(t, err)

	reply(run, "có lẽ", "")

	result, err := f.executor.Resume(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bạn muốn đặt hàng?"}, texts(result))
	assert.True(t, result.Suspended)
	assert.False(t, result.Terminal)

	state := run.Conversation.FlowState
	require.NotNil(t, state)
	assert.Equal(t, "ask", state.CurrentNodeID)
	assert.Equal(t, models.AwaitQuickReply, state.AwaitingInputFor)
	assert.NotContains(t, run.Conversation.Context, "choice")
}

func TestExecutor_Resume_MissingNodeClearsFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(scenario([]*models.Node{text("start", "a")}), "hi")
	run.Conversation.FlowState = &models.FlowState{ScenarioID: "s1", CurrentNodeID: "removed", AwaitingInputFor: models.AwaitQuickReply}

	result, err := f.executor.Resume(context.Background(), run)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsConfigError(err))
	assert.Nil(t, run.Conversation.FlowState)
}

func formScenario(maxRetries int) *models.Scenario {
	return scenario(
		[]*models.Node{
			node("lead", &models.FormContent{
				Fields: []models.FormField{
					{Key: "email", Prompt: "Email của bạn?", Required: true, Type: models.FieldTypeEmail, ErrorMessage: "Email không hợp lệ"},
					{Key: "note", Prompt: "Ghi chú?"},
					{Key: "quantity", Prompt: "Số lượng?", Required: true, Type: models.FieldTypeNumber},
				},
				SaveTo:     "lead",
				MaxRetries: maxRetries,
			}),
			text("done", "Cảm ơn, chúng tôi sẽ liên hệ {{ .vars.email }}"),
		},
		link("l1", "lead", "done", "", 0),
	)
}

func TestExecutor_Form_CollectsFieldsInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(formScenario(2), "đặt hàng")
	ctx := context.Background()

	result, err := f.executor.Start(ctx, run, "lead")
	require.NoError(t, err)
	assert.Equal(t, []string{"Email của bạn?"}, texts(result))
	assert.Equal(t, models.AwaitForm, run.Conversation.FlowState.AwaitingInputFor)

	reply(run, "not-an-email", "")
	result, err = f.executor.Resume(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"Email không hợp lệ", "Email của bạn?"}, texts(result))
	assert.Equal(t, 1, run.Conversation.FlowState.Retries)
	assert.Zero(t, run.Conversation.FlowState.FieldIndex)

	reply(run, "lan@example.com", "")
	result, err = f.executor.Resume(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ghi chú?"}, texts(result))
	assert.Equal(t, 1, run.Conversation.FlowState.FieldIndex)
	assert.Zero(t, run.Conversation.FlowState.Retries)

	reply(run, "Skip", "")
	result, err = f.executor.Resume(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"Số lượng?"}, texts(result))

	reply(run, "3", "")
	result, err = f.executor.Resume(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cảm ơn, chúng tôi sẽ liên hệ lan@example.com"}, texts(result))
	assert.True(t, result.Terminal)
	assert.Nil(t, run.Conversation.FlowState)

	assert.Equal(t, map[string]any{"email": "lan@example.com", "quantity": 3.0}, run.Conversation.Context["lead"])
	assert.NotContains(t, run.Conversation.Context, "note")
}

func TestExecutor_Form_RetriesExhaustedTerminates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	run := newRun(formScenario(2), "đặt hàng")
	ctx := context.Background()

	_, err := f.executor.Start(ctx, run, "lead")
	require.NoError(t, err)

	reply(run, "nope", "")
	result, err := f.executor.Resume(ctx, run)
	require.NoError(t, err)
	assert.True(t, result.Suspended)

	reply(run, "still nope", "")
	result, err = f.executor.Resume(ctx, run)
	require.NoError(t, err)

	assert.Empty(t, result.Parts)
	assert.True(t, result.Terminal)
	assert.Nil(t, run.Conversation.FlowState)
	assert.NotContains(t, run.Conversation.Context, "lead")
}

func TestParseField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		field    models.FormField
		answer   string
		expected any
		wantErr  bool
	}{
		{name: "text", field: models.FormField{Type: models.FieldTypeText}, answer: "hello", expected: "hello"},
		{name: "untyped", field: models.FormField{}, answer: "hello", expected: "hello"},
		{name: "number", field: models.FormField{Type: models.FieldTypeNumber}, answer: "2.5", expected: 2.5},
		{name: "not a number", field: models.FormField{Type: models.FieldTypeNumber}, answer: "two", wantErr: true},
		{name: "email", field: models.FormField{Type: models.FieldTypeEmail}, answer: "a@b.vn", expected: "a@b.vn"},
		{name: "bad email", field: models.FormField{Type: models.FieldTypeEmail}, answer: "a@", wantErr: true},
		{name: "phone with separators", field: models.FormField{Type: models.FieldTypePhone}, answer: "090 123-45.67", expected: "090 123-45.67"},
		{name: "international phone", field: models.FormField{Type: models.FieldTypePhone}, answer: "+84901234567", expected: "+84901234567"},
		{name: "short phone", field: models.FormField{Type: models.FieldTypePhone}, answer: "12345", wantErr: true},
		{name: "phone with letters", field: models.FormField{Type: models.FieldTypePhone}, answer: "0901abc567", wantErr: true},
		{name: "phone with inner plus", field: models.FormField{Type: models.FieldTypePhone}, answer: "0901+234567", wantErr: true},
		{name: "pattern", field: models.FormField{Pattern: `^[A-Z]{2}\d{3}$`}, answer: "AB123", expected: "AB123"},
		{name: "pattern mismatch", field: models.FormField{Pattern: `^[A-Z]{2}\d{3}$`}, answer: "ab123", wantErr: true},
		{name: "empty", field: models.FormField{}, answer: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseField(tt.field, tt.answer)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExecutor_Carousel_ProductGroup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario([]*models.Node{
		node("products", &models.CarouselContent{Source: models.CarouselSourceProductGroup, Limit: 2}),
	})
	s.ProductGroupID = "g1"

	f.catalog.On("GetProducts", mock.Anything, "g1", 2).Return([]models.Product{
		{ID: "1", Name: "Áo thun", Price: 150000, Images: []string{"https://cdn.example.com/1.png"}},
		{ID: "2", Name: "Quần jean", Price: 420000},
		{ID: "3", Name: "Mũ", Price: 90000},
	}, nil)

	run := newRun(s, "sản phẩm")

	result, err := f.executor.Start(context.Background(), run, "products")
	require.NoError(t, err)

	require.Len(t, result.Parts, 1)
	require.Len(t, result.Parts[0].Attachments, 1)

	cards := result.Parts[0].Attachments[0].Cards
	require.Len(t, cards, 2)
	assert.Equal(t, "Áo thun", cards[0].Title)
	assert.Equal(t, "https://cdn.example.com/1.png", cards[0].ImageURL)
	assert.Contains(t, cards[0].Subtitle, "150")
	assert.Contains(t, cards[0].Subtitle, "₫")
	f.catalog.AssertExpectations(t)
}

func TestExecutor_Carousel_CatalogFailureContinues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario(
		[]*models.Node{
			node("products", &models.CarouselContent{Source: models.CarouselSourceProductGroup, ProductGroupID: "g9"}),
			text("after", "Liên hệ để biết thêm"),
		},
		link("l1", "products", "after", "", 0),
	)

	f.catalog.On("GetProducts", mock.Anything, "g9", 0).Return(nil, errors.New("catalog down"))

	run := newRun(s, "sản phẩm")

	result, err := f.executor.Start(context.Background(), run, "products")
	require.NoError(t, err)

	assert.Equal(t, []string{"Liên hệ để biết thêm"}, texts(result))

	failed := false
	for _, step := range steps(run.Trace, StepNode) {
		if step.NodeID == "products" && step.Error != "" {
			failed = true
		}
	}

	assert.True(t, failed)
}

func TestExecutor_Carousel_ManualCardsAndMedia(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario(
		[]*models.Node{
			node("banner", &models.MediaContent{URL: "https://cdn.example.com/sale.png", MediaType: "image", Caption: "Giảm giá"}),
			node("cards", &models.CarouselContent{Source: models.CarouselSourceManual, Cards: []models.Card{{Title: "A"}, {Title: "B"}}}),
		},
		link("l1", "banner", "cards", "", 0),
	)

	run := newRun(s, "sale")

	result, err := f.executor.Start(context.Background(), run, "banner")
	require.NoError(t, err)

	require.Len(t, result.Parts, 2)
	assert.Equal(t, "Giảm giá", result.Parts[0].Text)
	assert.Equal(t, "https://cdn.example.com/sale.png", result.Parts[0].Attachments[0].URL)
	assert.Len(t, result.Parts[1].Attachments[0].Cards, 2)

	payload := result.Payload()
	assert.Equal(t, "Giảm giá", payload.Text)
	assert.Len(t, payload.Attachments, 2)
}

func TestExecutor_ChildScript(t *testing.T) {
	t.Parallel()

	child := &models.Scenario{
		ID:               "child",
		PageID:           "p1",
		Name:             "size guide",
		Status:           models.ScenarioStatusActive,
		PublishedVersion: 7,
		Nodes: []*models.Node{
			{ID: "k1", Type: models.NodeTypeQuickReply, IsEntry: true, Content: &models.QuickReplyContent{
				Text:    "Chiều cao của bạn?",
				Options: []models.QuickReplyOption{{Title: "Dưới 1m6"}, {Title: "Trên 1m6"}},
			}},
		},
	}

	t.Run("jumps into the child's entry node", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.snapshots["child"] = child

		s := scenario([]*models.Node{node("go", &models.ChildScriptContent{ScenarioID: "child"})})
		run := newRun(s, "size")

		result, err := f.executor.Start(context.Background(), run, "go")
		require.NoError(t, err)

		assert.Equal(t, []string{"Chiều cao của bạn?"}, texts(result))

		state := run.Conversation.FlowState
		require.NotNil(t, state)
		assert.Equal(t, "child", state.ScenarioID)
		assert.Equal(t, 7, state.Version)
		assert.Equal(t, "k1", state.CurrentNodeID)
	})

	t.Run("unpublished child is a configuration error", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		s := scenario([]*models.Node{node("go", &models.ChildScriptContent{ScenarioID: "missing"})})
		run := newRun(s, "size")

		result, err := f.executor.Start(context.Background(), run, "go")
		require.NoError(t, err)

		assert.Empty(t, result.Parts)
		assert.True(t, result.Terminal)
		require.Len(t, steps(run.Trace, StepConfigError), 1)
		assert.Contains(t, steps(run.Trace, StepConfigError)[0].Error, KindChildScript)
	})

	t.Run("unknown child node is a configuration error", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.snapshots["child"] = child

		s := scenario([]*models.Node{node("go", &models.ChildScriptContent{ScenarioID: "child", NodeID: "k9"})})
		run := newRun(s, "size")

		result, err := f.executor.Start(context.Background(), run, "go")
		require.NoError(t, err)

		assert.True(t, result.Terminal)
		assert.Len(t, steps(run.Trace, StepConfigError), 1)
	})
}

func TestExecutor_Wait(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := scenario(
		[]*models.Node{
			node("pause", &models.WaitContent{Seconds: 60}),
			text("after", "Bạn còn ở đó không?"),
		},
		link("l1", "pause", "after", "", 0),
	)

	run := newRun(s, "hi")

	result, err := f.executor.Start(context.Background(), run, "pause")
	require.NoError(t, err)

	assert.Empty(t, result.Parts)
	assert.True(t, result.Suspended)

	state := run.Conversation.FlowState
	require.NotNil(t, state)
	assert.Equal(t, models.AwaitWait, state.AwaitingInputFor)
	require.NotNil(t, state.ResumeAt)
	assert.Equal(t, testNow.Add(time.Minute), *state.ResumeAt)

	run.Message = nil

	result, err = f.executor.Continue(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bạn còn ở đó không?"}, texts(result))
	assert.Nil(t, run.Conversation.FlowState)
}

func TestExecutor_Actions(t *testing.T) {
	t.Parallel()

	t.Run("transfer stops the flow", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		s := scenario(
			[]*models.Node{
				node("handoff", &models.ActionContent{Actions: []*models.Action{
					{Type: models.ActionTypeAddTag, TagName: "hot-lead"},
					{Type: models.ActionTypeTransferToAgent},
					{Type: models.ActionTypeSetVariable, Key: "after", Value: "x"},
				}}),
				text("never", "unreachable"),
			},
			link("l1", "handoff", "never", "", 0),
		)

		run := newRun(s, "gặp nhân viên")

		result, err := f.executor.Start(context.Background(), run, "handoff")
		require.NoError(t, err)

		assert.Equal(t, []models.ActionType{models.ActionTypeAddTag, models.ActionTypeTransferToAgent}, f.actions.seen)
		assert.Empty(t, result.Parts)
		assert.True(t, result.Terminal)
		assert.Len(t, result.Actions, 2)
		assert.Equal(t, models.ConversationStatusPending, run.Conversation.Status)
		assert.Len(t, steps(run.Trace, StepAction), 2)
	})

	t.Run("failed blocking webhook stops the flow", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.actions.results[models.ActionTypeCallWebhook] = models.ActionStatusFailed

		s := scenario(
			[]*models.Node{
				node("order", &models.ActionContent{Actions: []*models.Action{
					{Type: models.ActionTypeCallWebhook, URL: "https://crm.example.com/orders", Blocking: true},
				}}),
				text("confirm", "Đã đặt hàng"),
			},
			link("l1", "order", "confirm", "", 0),
		)

		run := newRun(s, "đặt")

		result, err := f.executor.Start(context.Background(), run, "order")
		require.NoError(t, err)

		assert.Empty(t, result.Parts)
		assert.True(t, result.Terminal)
	})

	t.Run("failed fire-and-forget action continues", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.actions.results[models.ActionTypeAddTag] = models.ActionStatusFailed

		s := scenario(
			[]*models.Node{
				node("tag", &models.ActionContent{Actions: []*models.Action{{Type: models.ActionTypeAddTag, TagName: "vip"}}}),
				text("next", "Tiếp tục"),
			},
			link("l1", "tag", "next", "", 0),
		)

		run := newRun(s, "vip")

		result, err := f.executor.Start(context.Background(), run, "tag")
		require.NoError(t, err)

		assert.Equal(t, []string{"Tiếp tục"}, texts(result))
		require.Len(t, result.Actions, 1)
		assert.True(t, result.Actions[0].Failed())
	})
}

func TestExecutor_AIReply(t *testing.T) {
	t.Parallel()

	aiScenario := func() *models.Scenario {
		return scenario(
			[]*models.Node{
				node("ask-ai", &models.AIReplyContent{UseDefault: true}),
				text("menu", "Xem menu"),
			},
			link("l1", "ask-ai", "menu", "", 0),
		)
	}

	t.Run("answer is emitted", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.responder.text = "Shop mở cửa từ 8h"

		run := newRun(aiScenario(), "mấy giờ mở cửa")

		result, err := f.executor.Start(context.Background(), run, "ask-ai")
		require.NoError(t, err)

		assert.Equal(t, []string{"Shop mở cửa từ 8h", "Xem menu"}, texts(result))
		assert.Equal(t, models.ProcessedByAI, result.ProcessedBy)
		require.Len(t, f.responder.requests, 1)
		assert.True(t, f.responder.requests[0].Override.UseDefault)
	})

	t.Run("failure continues with links", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.responder.err = errors.New("timeout")

		run := newRun(aiScenario(), "mấy giờ mở cửa")

		result, err := f.executor.Start(context.Background(), run, "ask-ai")
		require.NoError(t, err)

		assert.Equal(t, []string{"Xem menu"}, texts(result))
		assert.Equal(t, models.ProcessedByAI, result.ProcessedBy)
		assert.True(t, result.AIFailed)

		aiSteps := steps(run.Trace, StepAI)
		require.Len(t, aiSteps, 1)
		assert.Equal(t, "timeout", aiSteps[0].Error)
	})

	t.Run("disabled in test runs", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		run := newRun(aiScenario(), "mấy giờ mở cửa")
		run.DisableAI = true

		result, err := f.executor.Start(context.Background(), run, "ask-ai")
		require.NoError(t, err)

		assert.Equal(t, []string{"Xem menu"}, texts(result))
		assert.Empty(t, f.responder.requests)
		assert.Equal(t, "skipped", steps(run.Trace, StepAI)[0].Detail)
	})
}
