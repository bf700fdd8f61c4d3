package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/logger"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/segment"
)

const (
	DefaultPreviewLimit  = 10
	DefaultMessagesLimit = 50
)

// RecipientResolver resolves a segment rule to recipients.
type RecipientResolver interface {
	Resolve(ctx context.Context, rule string) ([]model.User, error)
}

// StatsComputer computes delivery statistics for a campaign.
type StatsComputer interface {
	ComputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error)
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Resolver     RecipientResolver
	Queue        queue.Enqueuer
	Stats        StatsComputer
	Log          zerolog.Logger
}

// SendResult is the outcome of one send or requeue pass.
type SendResult struct {
	Queued int `json:"queued"`
}

type Preview struct {
	User model.User `json:"user"`
	Body string     `json:"body"`
}

type PreviewResult struct {
	Count    int       `json:"count"`
	Users    []int     `json:"users"`
	Previews []Preview `json:"previews"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, name, template, segmentRule string) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:        name,
		Template:    template,
		SegmentRule: segment.ParseRule(segmentRule).String(),
		Status:      model.CampaignStatusDraft,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.Log)
	log.Info().
		Int("campaign_id", c.ID).
		Str("segment_rule", c.SegmentRule).
		Msg("campaign created")
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(ctx, id)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// SendCampaign creates one message per matching recipient and enqueues each
// message it created. Recipients that already have a message for this
// campaign are skipped, so repeated sends only pick up new recipients.
// Other per-recipient failures are logged and skipped.
func (s *CampaignService) SendCampaign(ctx context.Context, campaignID int) (*SendResult, error) {
	log := logger.FromContext(ctx, s.Log).With().Int("campaign_id", campaignID).Logger()

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	users, err := s.Resolver.Resolve(ctx, campaign.SegmentRule)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients of campaign %d: %w", campaignID, err)
	}

	result := &SendResult{}
	skipped := 0
	for _, u := range users {
		msg, err := s.MessageRepo.CreateMessage(ctx, campaignID, u.ID)
		if errors.Is(err, appErrors.ErrAlreadyExists) {
			metrics.MessagesCreatedTotal.WithLabelValues("exists").Inc()
			skipped++
			continue
		}
		if err != nil {
			metrics.MessagesCreatedTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Int("user_id", u.ID).Msg("failed to create message")
			continue
		}
		metrics.MessagesCreatedTotal.WithLabelValues("created").Inc()

		if s.enqueue(ctx, log, msg.ID) {
			result.Queued++
		}
	}

	if campaign.Status == model.CampaignStatusDraft && result.Queued > 0 {
		if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignStatusSending); err != nil {
			log.Warn().Err(err).Msg("failed to update campaign status")
		}
	}

	log.Info().
		Int("recipients", len(users)).
		Int("queued", result.Queued).
		Int("already_sent", skipped).
		Msg("campaign send pass complete")
	return result, nil
}

// RequeueFailed puts every FAILED message of the campaign back on the queue.
func (s *CampaignService) RequeueFailed(ctx context.Context, campaignID int) (*SendResult, error) {
	log := logger.FromContext(ctx, s.Log).With().Int("campaign_id", campaignID).Logger()

	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}

	ids, err := s.MessageRepo.RequeueFailed(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	result := &SendResult{}
	for _, id := range ids {
		if s.enqueue(ctx, log, id) {
			result.Queued++
		}
	}

	log.Info().Int("requeued", result.Queued).Msg("failed messages requeued")
	return result, nil
}

// enqueue publishes a message id. A message that cannot be enqueued is
// marked FAILED so RequeueFailed can recover it.
func (s *CampaignService) enqueue(ctx context.Context, log zerolog.Logger, messageID int) bool {
	err := s.Queue.Enqueue(ctx, messageID)
	if err == nil {
		return true
	}

	log.Error().Err(err).Int("message_id", messageID).Msg("failed to enqueue message")
	if err := s.MessageRepo.MarkFailed(ctx, messageID); err != nil {
		log.Error().Err(err).Int("message_id", messageID).Msg("failed to mark unqueued message failed")
	}
	return false
}

// Preview renders the template for up to limit matching recipients. It
// never creates messages. A negative limit means DefaultPreviewLimit.
func (s *CampaignService) Preview(ctx context.Context, campaignID, limit int) (*PreviewResult, error) {
	if limit < 0 {
		limit = DefaultPreviewLimit
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	users, err := s.Resolver.Resolve(ctx, campaign.SegmentRule)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients of campaign %d: %w", campaignID, err)
	}
	if len(users) > limit {
		users = users[:limit]
	}

	result := &PreviewResult{
		Count:    len(users),
		Users:    make([]int, 0, len(users)),
		Previews: make([]Preview, 0, len(users)),
	}
	for _, u := range users {
		result.Users = append(result.Users, u.ID)
		result.Previews = append(result.Previews, Preview{
			User: u,
			Body: RenderTemplate(campaign.Template, u.Name),
		})
	}
	return result, nil
}

// ListMessages returns up to limit messages of the campaign with their
// recipients, most recent first. A negative limit means DefaultMessagesLimit.
func (s *CampaignService) ListMessages(ctx context.Context, campaignID, limit int) ([]model.MessageWithRecipient, error) {
	if limit < 0 {
		limit = DefaultMessagesLimit
	}
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.MessageRepo.ListWithRecipients(ctx, campaignID, limit)
}

func (s *CampaignService) GetStats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.Stats.ComputeStats(ctx, campaignID)
}
