package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/llm"
	"github.com/brunobiangulo/vistag/taxonomy"
)

func TestMain(m *testing.M) {
	// genai's opencensus dependency starts its stats worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type reply struct {
	content string
	err     error
	delay   time.Duration
	prompt  int
	output  int
}

// scriptedGateway answers per branch, identified by the instruction text.
type scriptedGateway struct {
	byInstruction map[string]branch.ID
	replies       map[branch.ID]reply
	jitter        bool

	mu    sync.Mutex
	calls map[branch.ID]int
}

func newScriptedGateway(branches []*branch.Branch, replies map[branch.ID]reply) *scriptedGateway {
	g := &scriptedGateway{
		byInstruction: make(map[string]branch.ID),
		replies:       replies,
		calls:         make(map[branch.ID]int),
	}
	for _, b := range branches {
		g.byInstruction[b.Instruction] = b.ID
	}
	return g
}

func (g *scriptedGateway) ChatWithImages(ctx context.Context, req llm.VisionChatRequest) (*llm.ChatResponse, error) {
	id, ok := g.byInstruction[req.Messages[0].Content[1].Text]
	if !ok {
		return nil, errors.New("unknown instruction")
	}
	g.mu.Lock()
	g.calls[id]++
	g.mu.Unlock()

	r, ok := g.replies[id]
	if !ok {
		r = reply{content: "{}"}
	}
	delay := r.delay
	if g.jitter {
		delay += time.Duration(rand.IntN(5)) * time.Millisecond
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.ChatResponse{Content: r.content, PromptTokens: r.prompt, CompletionTokens: r.output}, nil
}

func (g *scriptedGateway) callCount(id branch.ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

type fixture struct {
	graph   *Graph
	gateway *scriptedGateway
}

func newFixture(t *testing.T, settings branch.Settings, replies map[branch.ID]reply) fixture {
	t.Helper()
	reg := taxonomy.Default()
	branches := branch.Defaults(reg)
	gw := newScriptedGateway(branches, replies)
	g, err := NewGraph(reg, branch.NewClassifier(gw, settings), branch.Subject, branches, DefaultRules())
	require.NoError(t, err)
	return fixture{graph: g, gateway: gw}
}

func run(f fixture) *RunState {
	s := NewRunState("run-1", "https://example.com/a.jpg")
	f.graph.Run(context.Background(), s)
	return s
}

func assertAllTerminal(t *testing.T, s *RunState) {
	t.Helper()
	for _, o := range s.Outcomes {
		assert.Truef(t, o.Terminal(), "branch %s still pending", o.Branch)
		assert.NotNil(t, o.Mapping)
	}
	assert.Equal(t, PhaseDone, s.Phase)
}

func TestBystandersForceMultiplePeople(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject:  {content: `{"主体": ["人像"]}`},
		branch.Portrait: {content: "```json\n{\"人数\": [\"单人\"], \"性别\": [\"女性\"]}\n```"},
		branch.Scene:    {content: `{"图片质量": ["有路人"], "空间": ["室外"]}`},
	})
	s := run(f)
	assertAllTerminal(t, s)

	want := []string{
		"主体-人像",
		"人像-人数-多人",
		"人像-性别-女性",
		"场景-图片质量-有路人",
		"场景-空间-室外",
	}
	assert.ElementsMatch(t, want, s.Tags)
	assert.NotContains(t, s.Tags, "人像-人数-单人")

	// Raw outcome is left untouched.
	assert.Equal(t, []string{"单人"}, s.Outcome(branch.Portrait).Mapping.Values("人数"))

	for _, id := range []branch.ID{branch.Pet, branch.Food, branch.Scenery} {
		assert.Equal(t, branch.StatusSkipped, s.Outcome(id).Status, id.String())
		assert.Zero(t, f.gateway.callCount(id), id.String())
	}
	assert.Equal(t, 1, f.gateway.callCount(branch.Clothing))
}

func TestFoodTimeoutStillSucceeds(t *testing.T) {
	settings := branch.DefaultSettings()
	settings.Timeout = 50 * time.Millisecond
	f := newFixture(t, settings, map[branch.ID]reply{
		branch.Subject: {content: `{"主体": ["食物"]}`, prompt: 1000, output: 10},
		branch.Food:    {content: `{"食物类型": ["火锅"]}`, delay: 2 * time.Second, prompt: 1000, output: 10},
		branch.Scene:   {content: `{"空间": ["室内"]}`, prompt: 1000, output: 10},
	})
	s := run(f)
	assertAllTerminal(t, s)

	food := s.Outcome(branch.Food)
	assert.Equal(t, branch.StatusFailed, food.Status)
	assert.Zero(t, food.Cost)
	assert.Zero(t, food.Elapsed)
	assert.Equal(t, []string{"主体-食物", "场景-空间-室内"}, s.Tags)

	perCall := branch.DefaultPrice.Cost(1000, 10)
	assert.InDelta(t, 2*perCall, s.TotalCost, 1e-12)
}

func TestInvalidTagDropped(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject:  {content: `{"主体": ["人像"]}`},
		branch.Portrait: {content: `{"发型长度": ["超长发"], "性别": ["男性"]}`},
	})
	s := run(f)

	assert.NotContains(t, s.Tags, "人像-发型长度-超长发")
	assert.Equal(t, []string{"主体-人像", "人像-性别-男性"}, s.Tags)
}

func TestNoPortraitNeverCallsPortraitBranches(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject: {content: `{"主体": ["动物（宠物）", "风景"]}`},
		branch.Pet:     {content: `{"种类": ["猫"], "数量": ["单只"]}`},
		branch.Scenery: {content: `{"城市天空": ["日落"]}`},
		branch.Scene:   {content: `{"空间": ["室外"]}`},
	})
	s := run(f)
	assertAllTerminal(t, s)

	assert.Zero(t, f.gateway.callCount(branch.Portrait))
	assert.Zero(t, f.gateway.callCount(branch.Clothing))
	assert.Zero(t, f.gateway.callCount(branch.Food))
	assert.Equal(t, 1, f.gateway.callCount(branch.Pet))
	assert.Equal(t, 1, f.gateway.callCount(branch.Scenery))

	want := []string{
		"主体-动物（宠物）",
		"主体-风景",
		"动物（宠物）-数量-单只",
		"动物（宠物）-种类-猫",
		"场景-空间-室外",
		"风景-城市天空-日落",
	}
	if diff := cmp.Diff(sorted(want), s.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestSubjectFailureSkipsGatedBranches(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject: {err: errors.New("503")},
		branch.Scene:   {content: `{"时间": ["夜晚"]}`},
	})
	s := run(f)
	assertAllTerminal(t, s)

	assert.Equal(t, branch.StatusFailed, s.Outcome(branch.Subject).Status)
	for _, id := range []branch.ID{branch.Portrait, branch.Clothing, branch.Pet, branch.Food, branch.Scenery} {
		assert.Equal(t, branch.StatusSkipped, s.Outcome(id).Status, id.String())
	}
	assert.Equal(t, []string{"场景-时间-夜晚"}, s.Tags)
}

func TestOtherSubjectOnlyEmitsNoSubjectTag(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject: {content: `{"主体": ["其他"]}`},
	})
	s := run(f)
	assert.Empty(t, s.Tags)
	assert.NotNil(t, s.Tags)
}

func TestCompletionOrderDoesNotChangeTags(t *testing.T) {
	replies := map[branch.ID]reply{
		branch.Subject:  {content: `{"主体": ["人像", "食物"]}`},
		branch.Portrait: {content: `{"人数": ["单人"], "表情": ["微笑"]}`},
		branch.Clothing: {content: `{"眼镜": ["无眼镜"], "风格": ["休闲风"]}`},
		branch.Food:     {content: `{"食物类型": ["甜品"]}`},
		branch.Scene:    {content: `{"图片质量": ["有路人"], "节日": ["生日"]}`},
	}
	var first []string
	for i := range 10 {
		f := newFixture(t, branch.DefaultSettings(), replies)
		f.gateway.jitter = true
		s := run(f)
		if i == 0 {
			first = s.Tags
			continue
		}
		if diff := cmp.Diff(first, s.Tags); diff != "" {
			t.Fatalf("run %d tags differ (-first +got):\n%s", i, diff)
		}
	}
	assert.Contains(t, first, "人像-人数-多人")
	assert.Contains(t, first, "人像-服饰-眼镜-无眼镜")
}

func TestAggregateIdempotent(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject:  {content: `{"主体": ["人像"]}`},
		branch.Portrait: {content: `{"人数": ["单人"]}`},
		branch.Scene:    {content: `{"图片质量": ["有路人"]}`},
	})
	s := run(f)
	first := append([]string(nil), s.Tags...)

	f.graph.Aggregator().Aggregate(s)
	assert.Equal(t, first, s.Tags)
	assert.Equal(t, first, f.graph.Aggregator().Tags(s))
}

func TestElapsedAndCost(t *testing.T) {
	f := newFixture(t, branch.DefaultSettings(), map[branch.ID]reply{
		branch.Subject: {content: `{"主体": ["植物"]}`, prompt: 2000, output: 100, delay: 10 * time.Millisecond},
	})
	s := run(f)

	assert.False(t, s.CompletedAt.Before(s.CreatedAt))
	assert.GreaterOrEqual(t, s.Elapsed(), 10*time.Millisecond)
	assert.InDelta(t, branch.DefaultPrice.Cost(2000, 100), s.TotalCost, 1e-12)
	assert.Equal(t, []string{"主体-植物"}, s.Tags)
}

func TestRunStateStartsPending(t *testing.T) {
	s := NewRunState("id", "img")
	assert.Equal(t, PhasePending, s.Phase)
	assert.Zero(t, s.Elapsed())
	for _, o := range s.Outcomes {
		assert.Equal(t, branch.StatusPending, o.Status)
		assert.False(t, o.Terminal())
	}
	assert.Equal(t, "AGGREGATING", PhaseAggregating.String())
}

func TestNewGraphValidation(t *testing.T) {
	reg := taxonomy.Default()
	branches := branch.Defaults(reg)
	runner := branch.NewClassifier(newScriptedGateway(branches, nil), branch.DefaultSettings())

	_, err := NewGraph(reg, nil, branch.Subject, branches, nil)
	assert.Error(t, err)

	_, err = NewGraph(reg, runner, branch.Portrait, branches, nil)
	assert.Error(t, err, "gated gate accepted")

	_, err = NewGraph(reg, runner, branch.Subject, append(branches, branches[0]), nil)
	assert.Error(t, err, "duplicate accepted")

	bad := *branches[branch.Food]
	bad.Requires = "火星"
	_, err = NewGraph(reg, runner, branch.Subject, []*branch.Branch{branches[branch.Subject], &bad}, nil)
	assert.Error(t, err, "unknown subject accepted")
}

func TestPartialGraphMarksAbsentSkipped(t *testing.T) {
	reg := taxonomy.Default()
	all := branch.Defaults(reg)
	subset := []*branch.Branch{all[branch.Subject], all[branch.Scene]}
	gw := newScriptedGateway(subset, map[branch.ID]reply{
		branch.Subject: {content: `{"主体": ["人像"]}`},
	})
	g, err := NewGraph(reg, branch.NewClassifier(gw, branch.DefaultSettings()), branch.Subject, subset, nil)
	require.NoError(t, err)

	s := NewRunState("r", "img")
	g.Run(context.Background(), s)
	assertAllTerminal(t, s)
	assert.Equal(t, branch.StatusSkipped, s.Outcome(branch.Portrait).Status)
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
