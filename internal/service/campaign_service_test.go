package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/segment"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

type fixture struct {
	svc       *service.CampaignService
	campaigns *MockCampaignRepo
	messages  *MockMessageRepo
	queue     *MockQueue
	stats     *MockStats
}

func newFixture(campaigns ...*model.Campaign) *fixture {
	f := &fixture{
		campaigns: NewMockCampaignRepo(campaigns...),
		messages:  NewMockMessageRepo(),
		queue:     &MockQueue{failFor: map[int]bool{}},
		stats:     &MockStats{stats: &model.CampaignStats{}},
	}
	f.svc = &service.CampaignService{
		CampaignRepo: f.campaigns,
		MessageRepo:  f.messages,
		Resolver:     segment.NewResolver(&MockUserRepo{users: twentyUsers()}),
		Queue:        f.queue,
		Stats:        f.stats,
		Log:          zerolog.Nop(),
	}
	return f
}

func vipCampaign() *model.Campaign {
	return &model.Campaign{ID: 1, Name: "VIP", Template: "Hi {{name}}", SegmentRule: "vip", Status: model.CampaignStatusDraft}
}

func TestSendCampaign_IsIdempotent(t *testing.T) {
	f := newFixture(vipCampaign())
	ctx := context.Background()

	first, err := f.svc.SendCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Queued)

	second, err := f.svc.SendCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Queued)

	assert.Equal(t, 3, f.messages.count())
	assert.Len(t, f.queue.enqueued(), 3)
	assert.Equal(t, []string{model.CampaignStatusSending}, f.campaigns.statusUpdates)
}

func TestSendCampaign_NotFound(t *testing.T) {
	f := newFixture()

	res, err := f.svc.SendCampaign(context.Background(), 42)
	assert.Nil(t, res)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Zero(t, f.messages.createCalls)
	assert.Empty(t, f.queue.enqueued())
}

func TestSendCampaign_EmptyRuleTargetsEveryone(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Template: "Hello", Status: model.CampaignStatusDraft})

	res, err := f.svc.SendCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Queued)
}

func TestSendCampaign_UnknownTagQueuesNothing(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Template: "Hello", SegmentRule: "gold", Status: model.CampaignStatusDraft})

	res, err := f.svc.SendCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, res.Queued)
	assert.Empty(t, f.campaigns.statusUpdates)
}

func TestSendCampaign_SkipsRecipientErrors(t *testing.T) {
	f := newFixture(vipCampaign())
	f.messages.createErr[7] = errors.New("connection reset")

	res, err := f.svc.SendCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)

	// The failed recipient is picked up by the next send.
	delete(f.messages.createErr, 7)
	res, err = f.svc.SendCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
}

func TestSendCampaign_EnqueueFailureMarksFailedAndRequeueRecovers(t *testing.T) {
	f := newFixture(vipCampaign())
	f.queue.failFor[2] = true
	ctx := context.Background()

	res, err := f.svc.SendCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, []int{2}, f.messages.markFailed)

	// A repeated send must not duplicate the stranded message.
	res, err = f.svc.SendCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, res.Queued)

	delete(f.queue.failFor, 2)
	res, err = f.svc.RequeueFailed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.ElementsMatch(t, []int{1, 2, 3}, f.queue.enqueued())
}

func TestRequeueFailed_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RequeueFailed(context.Background(), 9)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestPreview_RendersVIPRecipients(t *testing.T) {
	f := newFixture(vipCampaign())

	res, err := f.svc.Preview(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []int{3, 7, 12}, res.Users)
	require.Len(t, res.Previews, 3)
	for _, p := range res.Previews {
		assert.True(t, strings.HasPrefix(p.Body, "Hi "), p.Body)
		assert.Equal(t, "Hi "+p.User.Name, p.Body)
	}

	assert.Zero(t, f.messages.createCalls)
	assert.Zero(t, f.messages.count())
	assert.Empty(t, f.queue.enqueued())
}

func TestPreview_Limit(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Template: "Yo {{name}}"})

	res, err := f.svc.Preview(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, []int{1, 2, 3, 4}, res.Users)

	res, err = f.svc.Preview(context.Background(), 1, -1)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultPreviewLimit, res.Count)
}

func TestPreview_ZeroLimitIsEmpty(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Template: "Yo {{name}}"})

	res, err := f.svc.Preview(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, res.Users)
	assert.Empty(t, res.Previews)
}

func TestPreview_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Preview(context.Background(), 5, 10)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestCreateCampaign_NormalizesRule(t *testing.T) {
	f := newFixture()

	c, err := f.svc.CreateCampaign(context.Background(), "Launch", "Hi {{name}}", " vip , tw,,vip ")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ID)
	assert.Equal(t, "vip,tw", c.SegmentRule)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)

	got, err := f.svc.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Launch", got.Name)
}

func TestGetStats(t *testing.T) {
	f := newFixture(vipCampaign())
	p50 := 120.0
	f.stats.stats = &model.CampaignStats{Total: 3, Queued: 1, Sent: 2, P50Ms: &p50, P95Ms: &p50}

	s, err := f.svc.GetStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Sent)

	_, err = f.svc.GetStats(context.Background(), 2)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Equal(t, 1, f.stats.calls)
}

func TestListMessages_Limit(t *testing.T) {
	f := newFixture(vipCampaign())

	_, err := f.svc.ListMessages(context.Background(), 1, -1)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultMessagesLimit, f.messages.listLimit)

	_, err = f.svc.ListMessages(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, f.messages.listLimit)

	_, err = f.svc.ListMessages(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.messages.listLimit)
}
