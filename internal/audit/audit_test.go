package audit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"agenda/internal/db"
	"agenda/internal/model"
)

func newStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "audit.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *db.DB) {
	t.Helper()
	ctx := context.Background()

	client, err := store.LookupOrCreateClient(ctx, "Ann", "+15550100200")
	require.NoError(t, err)

	require.NoError(t, store.CreateReservations(ctx, []*model.Reservation{
		{
			ClientID:   &client.ID,
			StartTime:  time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC),
			EndTime:    time.Date(2026, 2, 27, 11, 30, 0, 0, time.UTC),
			Notes:      "1 person(s): Cut",
			TotalPrice: 30,
		},
		{
			StartTime:       time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
			EndTime:         time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
			IsPersonalBlock: true,
			Notes:           "Dentist",
		},
		{
			ClientID:  &client.ID,
			StartTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		},
	}))
}

func TestExportMonth_RoundTrip(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	exporter := NewExporter(store, time.UTC, zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, exporter.ExportMonth(context.Background(), time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{AppointmentsSheet, ClientsSheet}, book.GetSheetList())

	rows, err := book.GetRows(AppointmentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, appointmentColumns, rows[0])
	assert.Equal(t, []string{"2026-02-27", "10:00", "11:30", "90", "Ann", "+15550100200", "1 person(s): Cut", "pending", "no", "30"}, rows[1][1:])
	assert.Equal(t, "yes", rows[2][9])
	assert.Equal(t, "Dentist", rows[2][7])

	clients, err := book.GetRows(ClientsSheet)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Ann", clients[1][1])
}

func TestExportMonth_EmptyMonth(t *testing.T) {
	store := newStore(t)
	exporter := NewExporter(store, time.UTC, zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, exporter.ExportMonth(context.Background(), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(AppointmentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type failingCleaner struct{}

func (failingCleaner) DeleteReservationsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestMonthlyJob_RunOnce(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	dir := t.TempDir()

	exporter := NewExporter(store, time.UTC, zerolog.Nop())
	job := NewMonthlyJob(exporter, store, dir, 3*24*time.Hour, zerolog.Nop())

	path, deleted, err := job.RunOnce(context.Background(), time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "appointments_2026-02.xlsx"), path)
	// only the Feb 27 appointment ended before the Feb 28 00:01 cutoff
	assert.Equal(t, int64(1), deleted)

	_, err = os.Stat(path)
	require.NoError(t, err)

	remaining, err := store.ListReservations(context.Background(),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	failing := NewMonthlyJob(exporter, failingCleaner{}, dir, time.Hour, zerolog.Nop())
	path, _, err = failing.RunOnce(context.Background(), time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.NotEmpty(t, path)
}

func TestNextFirstOfMonth(t *testing.T) {
	assert.Equal(t, time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC), nextFirstOfMonth(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "appointments_2026-02.xlsx", FileName(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
}
