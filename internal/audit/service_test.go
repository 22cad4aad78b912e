package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	err      error
	lastCall WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastCall = arg
	return s.rows, s.err
}

func row(at string, actor, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Actor: actor, Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		row("2026-03-10T10:00:00Z", "ana", "lot.confirm", "lot", "1"),
		row("2026-03-09T09:00:00Z", "ana", "lot.delete", "lot", "2"),
		row("2026-03-08T08:00:00Z", "luis", "counts.reset", "stock", "all"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, int32(3), repo.lastCall.LimitRows)
	require.Equal(t, int32(0), repo.lastCall.OffsetRows)
	require.True(t, repo.lastCall.FromAt.Valid)
	require.False(t, repo.lastCall.Actor.Valid)
}

func TestServiceTimelineFiltersAndBounds(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Entity: " lot ", EntityID: "7", Page: 3, PageSize: 500})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Equal(t, 100, result.Paging.PageSize)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.Equal(t, int32(200), repo.lastCall.OffsetRows)
	require.Equal(t, "lot", repo.lastCall.Entity.String)
	require.Equal(t, "7", repo.lastCall.EntityID.String)
	require.False(t, repo.lastCall.FromAt.Valid)
}

func TestServiceExportReadsEverything(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2026-03-10T10:00:00Z", "ana", "account.clear", "stock", "b")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Action: "account.clear"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, repo.lastCall.LimitRows)
	require.Equal(t, "account.clear", repo.lastCall.Action.String)

	repo.err = errors.New("boom")
	_, err = NewService(repo).Export(context.Background(), TimelineFilters{})
	require.Error(t, err)

	_, err = NewService(nil).Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
