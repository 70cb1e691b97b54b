package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAppRepository Mock Repository
type MockAppRepository struct {
	mock.Mock
	repository.AppRepository
}

func (m *MockAppRepository) FindAll(ctx context.Context) ([]*domain.AppRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AppRecord), args.Error(1)
}

func (m *MockAppRepository) FindByID(ctx context.Context, id string) (*domain.AppRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AppRecord), args.Error(1)
}

type recordingObserver struct {
	snaps []*stats.Snapshot
}

func (o *recordingObserver) ObserveSnapshot(snap *stats.Snapshot) {
	o.snaps = append(o.snaps, snap)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleApps() []*domain.AppRecord {
	return []*domain.AppRecord{
		{
			ID: "a", Title: "A", RequiresInternet: true, Analyzed: true,
			Findings:   domain.Findings{TrustManagers: 1, NaiveTrustManagers: 1},
			Categories: []domain.AppCategory{{Category: "GAME"}},
		},
		{
			ID: "b", Title: "B", RequiresInternet: true,
			Categories: []domain.AppCategory{{Category: "GAME"}},
		},
		{
			ID: "c", Title: "C",
			Categories: []domain.AppCategory{{Category: "TOOLS"}},
		},
	}
}

func TestStatsService_Snapshot(t *testing.T) {
	repo := new(MockAppRepository)
	repo.On("FindAll", mock.Anything).Return(sampleApps(), nil)
	observer := &recordingObserver{}

	svc := NewStatsService(repo, report.DefaultOptions(), observer, testLogger())
	snap, err := svc.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, snap.Total.Total)
	assert.Equal(t, 2, snap.Total.Internet)
	assert.Equal(t, 1, snap.Total.Unchecked)
	assert.Equal(t, 1, snap.Total.Naive)
	assert.Equal(t, []string{"GAME", "TOOLS"}, snap.CategoryNames())
	require.Len(t, observer.snaps, 1)
	assert.Same(t, snap, observer.snaps[0])
	repo.AssertExpectations(t)
}

func TestStatsService_SnapshotError(t *testing.T) {
	repo := new(MockAppRepository)
	repo.On("FindAll", mock.Anything).Return(nil, errors.New("db down"))

	svc := NewStatsService(repo, report.DefaultOptions(), nil, testLogger())
	_, err := svc.Snapshot(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestStatsService_Report(t *testing.T) {
	repo := new(MockAppRepository)
	repo.On("FindAll", mock.Anything).Return(sampleApps(), nil)

	svc := NewStatsService(repo, report.DefaultOptions(), nil, testLogger())
	r, err := svc.Report(context.Background())

	require.NoError(t, err)
	internet, ok := r.Table("internet")
	require.True(t, ok)
	assert.Len(t, internet.Rows, 2)
}

func TestStatsService_GetApp(t *testing.T) {
	repo := new(MockAppRepository)
	repo.On("FindByID", mock.Anything, "a").Return(sampleApps()[0], nil)
	repo.On("FindByID", mock.Anything, "zzz").Return(nil, repository.ErrNotFound)

	svc := NewStatsService(repo, report.DefaultOptions(), nil, testLogger())

	app, err := svc.GetApp(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "A", app.Title)

	_, err = svc.GetApp(context.Background(), "zzz")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
