package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
	"chat-client/internal/repositories"
)

type RosterFetcherMock struct {
	mock.Mock
}

func (m *RosterFetcherMock) OnlineUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type HistoryFetcherMock struct {
	mock.Mock
}

func (m *HistoryFetcherMock) ChatHistory(ctx context.Context, userID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, userID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type LastMessageRepositoryMock struct {
	mock.Mock
}

func (m *LastMessageRepositoryMock) Load(ctx context.Context) (map[int]time.Time, error) {
	args := m.Called(ctx)
	var times map[int]time.Time
	if val := args.Get(0); val != nil {
		times = val.(map[int]time.Time)
	}
	return times, args.Error(1)
}

func (m *LastMessageRepositoryMock) Save(ctx context.Context, userID int, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

var _ repositories.LastMessageRepository = (*LastMessageRepositoryMock)(nil)
