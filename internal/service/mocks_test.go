package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// Mock repositories
type MockCampaignRepo struct {
	mu            sync.Mutex
	campaigns     map[int]*model.Campaign
	nextID        int
	statusUpdates []string
}

func NewMockCampaignRepo(campaigns ...*model.Campaign) *MockCampaignRepo {
	m := &MockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
	for _, c := range campaigns {
		m.campaigns[c.ID] = c
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
	}
	return m
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.nextID++
	m.campaigns[c.ID] = c
	return nil
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return []*model.Campaign{}, 0, nil
}

func (m *MockCampaignRepo) UpdateStatus(ctx context.Context, id int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

// MockMessageRepo stores messages in memory and enforces the one message
// per (campaign, user) rule like the database does.
type MockMessageRepo struct {
	mu          sync.Mutex
	messages    map[int]*model.Message
	byPair      map[string]int
	nextID      int
	createCalls int
	createErr   map[int]error // by user id
	markFailed  []int
	listLimit   int
}

func NewMockMessageRepo() *MockMessageRepo {
	return &MockMessageRepo{
		messages:  map[int]*model.Message{},
		byPair:    map[string]int{},
		nextID:    1,
		createErr: map[int]error{},
	}
}

func (m *MockMessageRepo) CreateMessage(ctx context.Context, campaignID, userID int) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if err := m.createErr[userID]; err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d:%d", campaignID, userID)
	if _, ok := m.byPair[key]; ok {
		return nil, appErrors.ErrAlreadyExists
	}
	msg := &model.Message{
		ID:             m.nextID,
		CampaignID:     campaignID,
		UserID:         userID,
		Status:         model.MessageStatusQueued,
		IdempotencyKey: model.IdempotencyKey(campaignID, userID),
		CreatedAt:      time.Now(),
	}
	m.nextID++
	m.messages[msg.ID] = msg
	m.byPair[key] = msg.ID
	return msg, nil
}

func (m *MockMessageRepo) MarkSent(ctx context.Context, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[messageID]; ok {
		msg.Status = model.MessageStatusSent
	}
	return nil
}

func (m *MockMessageRepo) MarkFailed(ctx context.Context, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markFailed = append(m.markFailed, messageID)
	if msg, ok := m.messages[messageID]; ok && msg.Status == model.MessageStatusQueued {
		msg.Status = model.MessageStatusFailed
	}
	return nil
}

func (m *MockMessageRepo) RequeueFailed(ctx context.Context, campaignID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int{}
	for id := 1; id < m.nextID; id++ {
		msg := m.messages[id]
		if msg.CampaignID == campaignID && msg.Status == model.MessageStatusFailed {
			msg.Status = model.MessageStatusQueued
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MockMessageRepo) ListWithRecipients(ctx context.Context, campaignID, limit int) ([]model.MessageWithRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLimit = limit
	return []model.MessageWithRecipient{}, nil
}

func (m *MockMessageRepo) Outcomes(ctx context.Context, campaignID int) ([]model.MessageOutcome, error) {
	return nil, nil
}

func (m *MockMessageRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type MockUserRepo struct {
	users []model.User
}

func (m *MockUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	return m.users, nil
}

// MockQueue records enqueued ids; failFor makes Enqueue fail for those ids.
type MockQueue struct {
	mu      sync.Mutex
	ids     []int
	failFor map[int]bool
}

func (q *MockQueue) Enqueue(ctx context.Context, messageID int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFor[messageID] {
		return fmt.Errorf("broker unavailable")
	}
	q.ids = append(q.ids, messageID)
	return nil
}

func (q *MockQueue) enqueued() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int(nil), q.ids...)
}

type MockStats struct {
	stats *model.CampaignStats
	calls int
}

func (m *MockStats) ComputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	m.calls++
	return m.stats, nil
}

// twentyUsers returns users 1..20; users 3, 7 and 12 are tagged vip.
func twentyUsers() []model.User {
	users := make([]model.User, 0, 20)
	for i := 1; i <= 20; i++ {
		u := model.User{ID: i, Name: fmt.Sprintf("User%d", i), Email: fmt.Sprintf("user%d@example.com", i), Tags: []string{}}
		switch i {
		case 3, 7, 12:
			u.Tags = []string{"vip"}
		case 5:
			u.Tags = []string{"tw"}
		}
		users = append(users, u)
	}
	return users
}
