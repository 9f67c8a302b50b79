package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnnounceRelay/internal/admission"
	"AnnounceRelay/internal/approval"
	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/gate"
	"AnnounceRelay/internal/logging"
)

const operatorID = "op-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	calls atomic.Int32
	fn    func(ctx context.Context, source, style string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, source, style string) (string, error) {
	g.calls.Add(1)
	if g.fn != nil {
		return g.fn(ctx, source, style)
	}
	return "Big news: Protocol X is live on mainnet.", nil
}

type countingDispatcher struct {
	mu    sync.Mutex
	texts []string
	n     int
}

func (d *countingDispatcher) Dispatch(_ context.Context, text, _ string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return d.n
}

func (d *countingDispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.texts)
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []domain.PendingApproval
}

func (n *recordingNotifier) NotifyReview(_ context.Context, pa domain.PendingApproval) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, pa)
	return nil
}

type memoryStyles struct {
	style string
	saved int
}

func (m *memoryStyles) LoadStyle(context.Context) (string, bool, error) {
	return m.style, m.style != "", nil
}

func (m *memoryStyles) SaveStyle(_ context.Context, style string) error {
	m.style = style
	m.saved++
	return nil
}

type harness struct {
	clock      *fakeClock
	generator  *fakeGenerator
	dispatcher *countingDispatcher
	notifier   *recordingNotifier
	styles     *memoryStyles
	ledger     *approval.Ledger
	pipeline   *PipelineCoordinator
}

func newHarness(t *testing.T, mutate func(*Settings)) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:      clock,
		generator:  &fakeGenerator{},
		dispatcher: &countingDispatcher{n: 3},
		notifier:   &recordingNotifier{},
		styles:     &memoryStyles{},
		ledger:     approval.NewLedger(0, clock.Now),
	}
	settings := Settings{
		ReviewRequired:    true,
		GenerationTimeout: time.Second,
		DefaultStyle:      "plain",
		Operators:         []string{operatorID},
		AutopilotCooldown: time.Hour,
		Topics:            []string{"staking rewards", "bridge upgrade"},
	}
	if mutate != nil {
		mutate(&settings)
	}
	h.pipeline = NewPipelineCoordinator(PipelineDeps{
		Gate:         gate.NewContentGate(20, false, nil),
		Admission:    admission.NewController(30*time.Second, 180*time.Second, clock.Now),
		Ledger:       h.ledger,
		Dispatcher:   h.dispatcher,
		Generator:    h.generator,
		Reviews:      h.notifier,
		Styles:       h.styles,
		Destinations: 3,
		Logger:       logging.Discard(),
		Now:          clock.Now,
		Settings:     settings,
	})
	return h
}

func payload(text string) gate.Payload {
	return gate.Payload{Text: text, URL: "https://x.com/protocolx/status/1"}
}

func TestSubmitQueuesForReviewThenPublishesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	out, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, out.Status)
	assert.True(t, strings.HasPrefix(out.ApprovalID, "w-"))
	assert.Equal(t, 1, h.ledger.Len())
	require.Len(t, h.notifier.seen, 1)
	assert.Equal(t, 0, h.dispatcher.Calls())

	res, err := h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionPublish, operatorID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChannelsPosted)
	assert.Equal(t, 0, h.ledger.Len())

	_, err = h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionPublish, operatorID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, h.dispatcher.Calls())
}

func TestResolveRejectsNonOperator(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	out, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)

	_, err = h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionPublish, "stranger")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, h.ledger.Len())
	assert.Equal(t, 0, h.dispatcher.Calls())

	res, err := h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionDiscard, operatorID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDiscard, res.Action)
	assert.Equal(t, 0, h.dispatcher.Calls())
}

func TestDiscardThenPublishIsNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	out, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingReview, out.Status)

	_, err = h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionDiscard, operatorID)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ledger.Len())

	_, err = h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionPublish, operatorID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, h.dispatcher.Calls())
}

func TestConcurrentResolveDispatchesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	out, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.pipeline.Resolve(ctx, out.ApprovalID, domain.ActionPublish, operatorID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, h.dispatcher.Calls())
}

func TestSubmitDuplicateThenThrottled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)

	_, err = h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	h.clock.Advance(10 * time.Second)
	_, err = h.pipeline.SubmitInbound(ctx, payload("Completely different news about staking"))
	require.ErrorIs(t, err, domain.ErrThrottled)
	var throttled *domain.ThrottledError
	require.True(t, errors.As(err, &throttled))
	assert.Equal(t, 20*time.Second, throttled.Remaining)
	assert.Equal(t, int32(1), h.generator.calls.Load())
}

func TestSubmitRejectsInvalidPayloadWithoutState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.pipeline.SubmitInbound(context.Background(), gate.Payload{Text: "too short"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.True(t, h.pipeline.Status().LastAcceptedAt.IsZero())
	assert.Equal(t, int32(0), h.generator.calls.Load())
}

func TestGenerationFailureReleasesFingerprint(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	h.generator.fn = func(context.Context, string, string) (string, error) {
		return "", errors.New("upstream 500")
	}

	_, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, 0, h.pipeline.Status().Fingerprints)

	h.generator.fn = nil
	h.clock.Advance(31 * time.Second)
	out, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err, "released fingerprint must not be treated as a duplicate")
	assert.Equal(t, domain.StatusPendingReview, out.Status)
	assert.Equal(t, 1, h.pipeline.Status().Fingerprints)
}

func TestGenerationTimeoutDiscardsLateResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.GenerationTimeout = 20 * time.Millisecond })
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h.generator.fn = func(context.Context, string, string) (string, error) {
		<-release
		return "too late", nil
	}

	_, err := h.pipeline.SubmitInbound(context.Background(), payload("Protocol X mainnet launches today"))
	assert.ErrorIs(t, err, domain.ErrGenerationTimedOut)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, 0, h.dispatcher.Calls())
}

func TestMetaResponseIsBlocked(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.ReviewRequired = false })
	ctx := context.Background()
	h.generator.fn = func(context.Context, string, string) (string, error) {
		return "Could you provide the post you want announced?", nil
	}

	_, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	assert.ErrorIs(t, err, domain.ErrMetaResponse)
	assert.Equal(t, 0, h.dispatcher.Calls())
	assert.Equal(t, 0, h.ledger.Len())

	h.clock.Advance(31 * time.Second)
	_, err = h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestSubmitPostsDirectlyWhenReviewOff(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	require.NoError(t, h.pipeline.SetReviewRequired(operatorID, false))

	out, err := h.pipeline.SubmitInbound(context.Background(), payload("Protocol X mainnet launches today"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, out.Status)
	assert.Equal(t, 3, out.ChannelsPosted)
	assert.Equal(t, 0, h.ledger.Len())
}

func TestShadowModeStoresWithoutGeneration(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.Shadow = true })

	out, err := h.pipeline.SubmitInbound(context.Background(), payload("Protocol X mainnet launches today"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStored, out.Status)
	assert.Equal(t, int32(0), h.generator.calls.Load())
	assert.False(t, h.pipeline.Status().LastInboundAt.IsZero())
}

func TestKillSwitchDisablesAutonomy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.AutopilotEnabled = true })

	require.NoError(t, h.pipeline.SetKillSwitch(operatorID, true))
	st := h.pipeline.Status()
	assert.True(t, st.KillSwitchEngaged)
	assert.False(t, st.AutonomousMode)

	err := h.pipeline.SetAutonomousMode(operatorID, true)
	assert.ErrorIs(t, err, domain.ErrKillSwitchEngaged)

	result, err := h.pipeline.Tick(context.Background(), h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, TickKilled, result)
	assert.Equal(t, 0, h.dispatcher.Calls())

	require.NoError(t, h.pipeline.SetKillSwitch(operatorID, false))
	assert.False(t, h.pipeline.Status().AutonomousMode, "clearing the kill switch leaves autonomy off")
	assert.ErrorIs(t, h.pipeline.SetKillSwitch("stranger", true), domain.ErrUnauthorized)
}

func TestRedraftAndAnnounce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.MaxOperatorInput = 40 })
	ctx := context.Background()

	_, _, err := h.pipeline.Redraft(ctx, operatorID)
	assert.ErrorIs(t, err, domain.ErrNoRecentItem)

	_, err = h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)

	pa, recent, err := h.pipeline.Redraft(ctx, operatorID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pa.ID, "m-"))
	assert.Equal(t, "Protocol X mainnet launches today", recent.Text)
	assert.Equal(t, 2, h.ledger.Len())

	_, err = h.pipeline.Announce(ctx, operatorID, strings.Repeat("x", 41))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	_, err = h.pipeline.Announce(ctx, "stranger", "launch")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	pa, err = h.pipeline.Announce(ctx, operatorID, "validator onboarding")
	require.NoError(t, err)
	assert.Equal(t, domain.OriginOperator, pa.Origin)
}

func TestStyleIsPersistedAndUsed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	var gotStyle string
	h.generator.fn = func(_ context.Context, _ string, style string) (string, error) {
		gotStyle = style
		return "Announcement", nil
	}

	require.NoError(t, h.pipeline.SetStyle(ctx, operatorID, "hype, short"))
	assert.Equal(t, "hype, short", h.styles.style)

	_, err := h.pipeline.SubmitInbound(ctx, payload("Protocol X mainnet launches today"))
	require.NoError(t, err)
	assert.Equal(t, "hype, short", gotStyle)

	restored := newHarness(t, nil)
	restored.styles.style = "remembered"
	restored.pipeline.RestoreStyle(ctx)
	assert.Equal(t, "remembered", restored.pipeline.Status().Style)
}
