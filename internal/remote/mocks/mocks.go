package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/expandinAI/particle/internal/remote"
	"github.com/expandinAI/particle/internal/settings"
)

// Client is a mock for remote.Client.
type Client struct {
	mock.Mock
}

func (m *Client) EnsureUser(ctx context.Context, externalID string) (*remote.User, error) {
	args := m.Called(ctx, externalID)
	if user, ok := args.Get(0).(*remote.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) UpsertProject(ctx context.Context, userID string, p remote.Project) error {
	args := m.Called(ctx, userID, p)
	return args.Error(0)
}

func (m *Client) UpsertSession(ctx context.Context, userID string, s remote.Session) error {
	args := m.Called(ctx, userID, s)
	return args.Error(0)
}

func (m *Client) UpsertSettings(ctx context.Context, userID string, synced settings.Synced) (time.Time, error) {
	args := m.Called(ctx, userID, synced)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *Client) FetchSettings(ctx context.Context, userID string) (*remote.SettingsRow, error) {
	args := m.Called(ctx, userID)
	if row, ok := args.Get(0).(*remote.SettingsRow); ok {
		return row, args.Error(1)
	}
	return nil, args.Error(1)
}
