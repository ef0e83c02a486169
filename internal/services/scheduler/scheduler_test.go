package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access/internal/metrics"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockRepository) MarkTrialReminderSent(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var fixedNow = time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)

func newTestScheduler(repo *MockRepository, pub *MockPublisher) *SchedulerService {
	s := NewSchedulerService(repo, pub, newNoopLogger(), time.Hour, 24*time.Hour)
	s.now = func() time.Time { return fixedNow }
	return s
}

func trial(id int64, email string, expires time.Time) *models.Account {
	return &models.Account{ID: id, Email: email, Tier: models.TierTrial, TrialExpiresAt: &expires}
}

func TestSchedulerService_RemindExpiringTrials(t *testing.T) {
	from := fixedNow
	to := fixedNow.Add(24 * time.Hour)
	soon := fixedNow.Add(5 * time.Hour)

	tests := []struct {
		name       string
		setupMocks func(repo *MockRepository, pub *MockPublisher)
		want       int
	}{
		{
			name: "publishes one message per account",
			setupMocks: func(repo *MockRepository, pub *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return([]*models.Account{
					trial(1, "a@example.com", soon),
					trial(2, "b@example.com", soon),
				}, nil).Once()
				pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, models.TrialExpiringMessage{
					AccountID: 1, Email: "a@example.com", TrialExpiresAt: soon,
				}).Return(nil).Once()
				pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, models.TrialExpiringMessage{
					AccountID: 2, Email: "b@example.com", TrialExpiresAt: soon,
				}).Return(nil).Once()
				repo.On("MarkTrialReminderSent", mock.Anything, int64(1), fixedNow).Return(nil).Once()
				repo.On("MarkTrialReminderSent", mock.Anything, int64(2), fixedNow).Return(nil).Once()
			},
			want: 2,
		},
		{
			name: "no accounts",
			setupMocks: func(repo *MockRepository, _ *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return([]*models.Account{}, nil).Once()
			},
			want: 0,
		},
		{
			name: "repository error",
			setupMocks: func(repo *MockRepository, _ *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return(nil, errors.New("db down")).Once()
			},
			want: 0,
		},
		{
			name: "publish error does not stop the batch",
			setupMocks: func(repo *MockRepository, pub *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return([]*models.Account{
					trial(1, "a@example.com", soon),
					trial(2, "b@example.com", soon),
				}, nil).Once()
				pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.AccountID == 1
				})).Return(errors.New("channel closed")).Once()
				pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.AccountID == 2
				})).Return(nil).Once()
				repo.On("MarkTrialReminderSent", mock.Anything, int64(2), fixedNow).Return(nil).Once()
			},
			want: 1,
		},
		{
			name: "mark failure still counts as published",
			setupMocks: func(repo *MockRepository, pub *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return([]*models.Account{
					trial(1, "a@example.com", soon),
				}, nil).Once()
				pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, mock.Anything).Return(nil).Once()
				repo.On("MarkTrialReminderSent", mock.Anything, int64(1), fixedNow).Return(errors.New("db down")).Once()
			},
			want: 1,
		},
		{
			name: "account without expiry is skipped",
			setupMocks: func(repo *MockRepository, _ *MockPublisher) {
				repo.On("FindTrialsExpiringBetween", mock.Anything, from, to).Return([]*models.Account{
					{ID: 3, Email: "vip@example.com", Tier: models.TierVIP},
				}, nil).Once()
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			pub := new(MockPublisher)
			tt.setupMocks(repo, pub)

			before := testutil.ToFloat64(metrics.RemindersPublishedTotal)
			got := newTestScheduler(repo, pub).RemindExpiringTrials(context.Background())

			assert.Equal(t, tt.want, got)
			assert.Equal(t, float64(tt.want), testutil.ToFloat64(metrics.RemindersPublishedTotal)-before)
			repo.AssertExpectations(t)
			pub.AssertExpectations(t)
		})
	}
}

func TestSchedulerService_RunStopsOnCancel(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockPublisher)
	called := make(chan struct{}, 1)
	repo.On("FindTrialsExpiringBetween", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		}).
		Return([]*models.Account{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestScheduler(repo, pub).Run(ctx)
		close(done)
	}()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("first pass did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// reminderStore хранит аккаунты в памяти и фильтрует уже напомненные.
type reminderStore struct {
	accounts []*models.Account
	sent     map[int64]time.Time
}

func (r *reminderStore) FindTrialsExpiringBetween(_ context.Context, from, to time.Time) ([]*models.Account, error) {
	var out []*models.Account
	for _, acc := range r.accounts {
		if acc.Tier != models.TierTrial || acc.TrialExpiresAt == nil {
			continue
		}
		if _, ok := r.sent[acc.ID]; ok {
			continue
		}
		if !acc.TrialExpiresAt.Before(from) && acc.TrialExpiresAt.Before(to) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *reminderStore) MarkTrialReminderSent(_ context.Context, id int64, at time.Time) error {
	r.sent[id] = at
	return nil
}

func TestSchedulerService_OneReminderAcrossOverlappingPasses(t *testing.T) {
	store := &reminderStore{
		accounts: []*models.Account{trial(1, "a@example.com", fixedNow.Add(20*time.Hour))},
		sent:     map[int64]time.Time{},
	}
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingKeyTrialExpiring, mock.Anything).Return(nil).Once()

	now := fixedNow
	s := NewSchedulerService(store, pub, newNoopLogger(), 12*time.Hour, 24*time.Hour)
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.RemindExpiringTrials(context.Background()))
	// перезапуск процесса сразу делает ещё один проход
	assert.Equal(t, 0, s.RemindExpiringTrials(context.Background()))

	now = now.Add(12 * time.Hour)
	assert.Equal(t, 0, s.RemindExpiringTrials(context.Background()))

	assert.Equal(t, fixedNow, store.sent[1])
	pub.AssertExpectations(t)
}
