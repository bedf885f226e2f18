package endpoints

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Endpoint), args.Error(1)
}

func (m *mockRepo) InsertEndpoint(ctx context.Context, ep *models.Endpoint) error {
	args := m.Called(ctx, ep)
	ep.ID = 7
	return args.Error(0)
}

func (m *mockRepo) DeleteEndpointAt(ctx context.Context, index int) (bool, error) {
	args := m.Called(ctx, index)
	return args.Bool(0), args.Error(1)
}

func newTestStore(repo Repository) *Store {
	return NewStore(repo, zerolog.New(io.Discard))
}

func TestStore_AddValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		url    string
		topics []topics.Topic
		field  string
	}{
		{name: "empty url", url: "  ", field: "url"},
		{name: "relative url", url: "hooks/x", field: "url"},
		{name: "unsupported scheme", url: "ftp://hooks.example.com/x", field: "url"},
		{name: "missing host", url: "https:///x", field: "url"},
		{name: "unknown topic", url: "https://hooks.example.com/x", topics: []topics.Topic{"user.deleted"}, field: "topics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			_, err := newTestStore(repo).Add(ctx, tt.url, "", tt.topics, true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEndpoint))

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
			repo.AssertNotCalled(t, "InsertEndpoint", mock.Anything, mock.Anything)
		})
	}
}

func TestStore_AddPersists(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("InsertEndpoint", ctx, mock.AnythingOfType("*models.Endpoint")).Return(nil).Once()

	ep, err := newTestStore(repo).Add(ctx, " https://hooks.example.com/x ", "s3cret",
		[]topics.Topic{topics.UserApproved, topics.UserApproved, topics.OrderCompleted}, true)
	require.NoError(t, err)

	assert.Equal(t, int64(7), ep.ID)
	assert.Equal(t, "https://hooks.example.com/x", ep.URL)
	assert.Equal(t, []topics.Topic{topics.UserApproved, topics.OrderCompleted}, ep.Topics)
	assert.False(t, ep.CreatedAt.IsZero())
	repo.AssertExpectations(t)
}

func TestStore_RemoveOutOfRangeIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("DeleteEndpointAt", ctx, 5).Return(false, nil).Once()

	assert.NoError(t, newTestStore(repo).Remove(ctx, 5))
	repo.AssertExpectations(t)
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	stored := []models.Endpoint{
		{ID: 1, URL: "https://a", Enabled: true, Topics: []topics.Topic{topics.UserApproved}},
		{ID: 2, URL: "https://b", Enabled: false, Topics: []topics.Topic{topics.UserApproved}},
		{ID: 3, URL: "https://c", Enabled: true, Topics: []topics.Topic{}},
		{ID: 4, URL: "https://d", Enabled: true, Topics: []topics.Topic{topics.UserDeclined, topics.UserApproved}},
	}
	repo.On("ListEndpoints", ctx).Return(stored, nil)

	snap, err := newTestStore(repo).Snapshot(ctx, topics.UserApproved)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap[0].ID)
	assert.Equal(t, int64(4), snap[1].ID)

	snap[1].Topics[0] = topics.EmailSent
	assert.Equal(t, topics.UserDeclined, stored[3].Topics[0])
}

func TestStore_ListError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ListEndpoints", ctx).Return(nil, errors.New("disk gone"))

	_, err := newTestStore(repo).List(ctx)
	assert.ErrorContains(t, err, "disk gone")
}
