package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil)
	require.Error(t, err)
}

func TestConnectRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sequence_counters").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementReturnsCounterAfterAdd(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("talks", int64(20)).
		WillReturnRows(pgxmock.NewRows([]string{"counter"}).AddRow(int64(40)))

	value, err := store.Increment(context.Background(), "talks", 20)
	require.NoError(t, err)
	require.Equal(t, int64(40), value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementPropagatesErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("connection refused")
	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("speakers", int64(1)).
		WillReturnError(boom)

	_, err := store.Increment(context.Background(), "speakers", 1)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTalk(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	permalink := "http://audiodharma.org/talks/1.mp3"
	mock.ExpectQuery("SELECT (.+) FROM talks").
		WithArgs(permalink).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "permalink", "title", "duration", "talk_date", "description",
			"venue", "event", "source", "license", "speaker_id",
		}).AddRow(
			int64(7), permalink, "Breath", 3600, "2016-04-03", "desc",
			"IMC", nil, "http://audiodharma.org", "CC", int64(3),
		))

	talk, ok, err := store.FindTalk(context.Background(), permalink)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), talk.ID)
	require.Equal(t, 3600, talk.Duration)
	require.Equal(t, int64(3), talk.SpeakerID)
	require.Nil(t, talk.Event)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTalkMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM talks").
		WithArgs("http://x/1").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.FindTalk(context.Background(), "http://x/1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTalk(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	event := "Spring Retreat"
	talk := crawler.Talk{
		ID:          9,
		Permalink:   "http://audiodharma.org/talks/9.mp3",
		Title:       "Ease",
		Duration:    1200,
		Date:        "2016-04-01",
		Description: "d",
		Venue:       "IMC",
		Event:       &event,
		Source:      "http://audiodharma.org",
		License:     "CC",
		SpeakerID:   2,
	}
	mock.ExpectExec("INSERT INTO talks").
		WithArgs(
			talk.ID,
			talk.Permalink,
			talk.Title,
			talk.Duration,
			talk.Date,
			talk.Description,
			talk.Venue,
			talk.Event,
			talk.Source,
			talk.License,
			talk.SpeakerID,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertTalk(context.Background(), talk))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSpeaker(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM speakers").
		WithArgs("Gil Fronsdal").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "bio", "website", "picture"}).
			AddRow(int64(1), "Gil Fronsdal", "bio", "http://imc.org", "http://imc.org/gil.jpg"))

	speaker, ok, err := store.FindSpeaker(context.Background(), "Gil Fronsdal")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, crawler.Speaker{
		ID:      1,
		Name:    "Gil Fronsdal",
		Bio:     "bio",
		Website: "http://imc.org",
		Picture: "http://imc.org/gil.jpg",
	}, speaker)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSpeakerPropagatesErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	speaker := crawler.Speaker{ID: 4, Name: "Andrea Fella"}
	mock.ExpectExec("INSERT INTO speakers").
		WithArgs(speaker.ID, speaker.Name, speaker.Bio, speaker.Website, speaker.Picture).
		WillReturnError(errors.New("disk full"))

	err := store.UpsertSpeaker(context.Background(), speaker)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
