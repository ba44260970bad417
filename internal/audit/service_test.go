package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows    []TimelineRow
	lastArg Query
}

func (s *stubTimelineRepo) Timeline(_ context.Context, q Query) ([]TimelineRow, error) {
	s.lastArg = q
	if q.Limit > 0 && int(q.Limit) < len(s.rows) {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func entry(ts, actor, action, entity, id string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: at, Actor: actor, Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		entry("2026-03-10T10:00:00Z", "admin", "role.update", "role", "3"),
		entry("2026-03-09T09:00:00Z", "admin", "user.role", "user", "7"),
		entry("2026-03-08T08:00:00Z", "admin", "role.create", "role", "4"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Entity:   " role ",
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, int32(3), repo.lastArg.Limit)
	assert.Equal(t, int32(0), repo.lastArg.Offset)
	assert.Equal(t, pgtype.Text{String: "role", Valid: true}, repo.lastArg.Entity)
	assert.False(t, repo.lastArg.ToAt.Valid)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, int32(2*maxPageSize), repo.lastArg.Offset)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.NotNil(t, result.Rows)
}

func TestServiceExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		entry("2026-03-10T10:00:00Z", "admin", "user.delete", "user", "9"),
		entry("2026-03-09T09:00:00Z", "admin", "user.overrides", "user", "7"),
	}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Zero(t, repo.lastArg.Limit)
	assert.False(t, repo.lastArg.Actor.Valid)
}

func TestWriteCSV(t *testing.T) {
	row := entry("2026-03-10T10:00:00Z", "admin", "role.permissions", "role", "3")
	row.Meta = map[string]any{"permissions": []string{"dealers.read"}}

	out, err := WriteCSV([]TimelineRow{row})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "2026-03-10T10:00:00Z", records[1][0])
	assert.Equal(t, `{"permissions":["dealers.read"]}`, records[1][5])
}
