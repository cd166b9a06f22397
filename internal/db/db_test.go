package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestCreateReservation_RejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.Reservation{StartTime: at(10, 0), EndTime: at(11, 0), IsPersonalBlock: true}
	require.NoError(t, db.CreateReservation(ctx, first))
	assert.NotZero(t, first.ID)
	assert.NotEmpty(t, first.Reference)
	assert.Equal(t, model.StatusPending, first.Status)

	err := db.CreateReservation(ctx, &model.Reservation{StartTime: at(10, 30), EndTime: at(11, 30)})
	assert.ErrorIs(t, err, ErrConflict)

	// touching endpoints are fine
	require.NoError(t, db.CreateReservation(ctx, &model.Reservation{StartTime: at(11, 0), EndTime: at(12, 0)}))
	require.NoError(t, db.CreateReservation(ctx, &model.Reservation{StartTime: at(9, 0), EndTime: at(10, 0)}))

	list, err := db.ListReservations(ctx, at(0, 0), at(23, 59))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].StartTime.Equal(at(9, 0)))
	assert.True(t, list[2].EndTime.Equal(at(12, 0)))
}

func TestCreateReservation_ConcurrentSameSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.CreateReservation(ctx, &model.Reservation{StartTime: at(14, 0), EndTime: at(15, 0)})
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestCreateReservations_BatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []*model.Reservation{
		{StartTime: at(9, 0), EndTime: at(10, 0), IsPersonalBlock: true},
		{StartTime: at(10, 0), EndTime: at(11, 0), IsPersonalBlock: true},
		{StartTime: at(10, 30), EndTime: at(11, 30), IsPersonalBlock: true},
	}
	assert.ErrorIs(t, db.CreateReservations(ctx, batch), ErrConflict)

	list, err := db.ListReservations(ctx, at(0, 0), at(23, 59))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateReservationTimes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := &model.Reservation{StartTime: at(10, 0), EndTime: at(12, 0)}
	b := &model.Reservation{StartTime: at(13, 0), EndTime: at(14, 0)}
	require.NoError(t, db.CreateReservations(ctx, []*model.Reservation{a, b}))

	// shifting into its own old interval is allowed
	require.NoError(t, db.UpdateReservationTimes(ctx, a.ID, at(11, 0), at(13, 0)))

	got, err := db.GetReservation(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(at(11, 0)))
	assert.True(t, got.EndTime.Equal(at(13, 0)))

	assert.ErrorIs(t, db.UpdateReservationTimes(ctx, a.ID, at(12, 30), at(14, 30)), ErrConflict)
	assert.ErrorIs(t, db.UpdateReservationTimes(ctx, 999, at(18, 0), at(19, 0)), ErrNotFound)
}

func TestReservationStatusAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	client, err := db.LookupOrCreateClient(ctx, "Ann", "+100")
	require.NoError(t, err)

	r := &model.Reservation{ClientID: &client.ID, StartTime: at(10, 0), EndTime: at(11, 0), Notes: "1 person(s): Cut"}
	block := &model.Reservation{StartTime: at(12, 0), EndTime: at(13, 0), IsPersonalBlock: true}
	require.NoError(t, db.CreateReservations(ctx, []*model.Reservation{r, block}))

	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, model.StatusCompleted))
	assert.ErrorIs(t, db.UpdateReservationStatus(ctx, block.ID, model.StatusCompleted), ErrNotFound)

	got, err := db.GetReservationByReference(ctx, r.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "Ann", got.ClientName)
	assert.Equal(t, "+100", got.ClientPhone)

	history, err := db.ListReservationsByPhone(ctx, "+100")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, db.DeleteReservation(ctx, r.ID))
	assert.ErrorIs(t, db.DeleteReservation(ctx, r.ID), ErrNotFound)
	_, err = db.GetReservation(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteClient_CascadesToAppointments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	client, err := db.LookupOrCreateClient(ctx, "Ann", "+100")
	require.NoError(t, err)
	require.NoError(t, db.CreateReservation(ctx, &model.Reservation{ClientID: &client.ID, StartTime: at(10, 0), EndTime: at(11, 0)}))

	require.NoError(t, db.DeleteClient(ctx, client.ID))
	list, err := db.ListReservations(ctx, at(0, 0), at(23, 59))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLookupOrCreateClient_KeepsExistingName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.LookupOrCreateClient(ctx, "Ann", "+100")
	require.NoError(t, err)
	second, err := db.LookupOrCreateClient(ctx, "Anna", "+100")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ann", second.FullName)

	clients, err := db.ListClients(ctx, "An")
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestServices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cut := &model.Service{Name: "Cut", Price: 30, DurationMinutes: 30, IsActive: true}
	color := &model.Service{Name: "Color", Price: 80, DurationMinutes: 90, IsActive: false}
	require.NoError(t, db.SaveService(ctx, cut))
	require.NoError(t, db.SaveService(ctx, color))

	active, err := db.ListServices(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Cut", active[0].Name)

	got, err := db.GetServicesByIDs(ctx, []int64{color.ID, 404, cut.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Color", got[0].Name)
	assert.Equal(t, "Cut", got[1].Name)

	cut.Price = 35
	require.NoError(t, db.SaveService(ctx, cut))
	require.NoError(t, db.DeleteService(ctx, color.ID))
	assert.ErrorIs(t, db.DeleteService(ctx, color.ID), ErrNotFound)

	all, err := db.ListServices(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 35.0, all[0].Price)
}

func TestWorkingHoursAndSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	h, err := db.GetWorkingHours(ctx, time.Monday)
	require.NoError(t, err)
	assert.False(t, h.IsWorkDay)

	week := []model.WorkingHours{{DayOfWeek: 1, IsWorkDay: true, StartTime: "09:00", EndTime: "17:00"}}
	require.NoError(t, db.SeedWorkingHours(ctx, week))
	require.NoError(t, db.SeedWorkingHours(ctx, []model.WorkingHours{{DayOfWeek: 1, IsWorkDay: true, StartTime: "10:00", EndTime: "12:00"}}))

	h, err = db.GetWorkingHours(ctx, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, "09:00", h.StartTime)

	require.NoError(t, db.SaveWorkingHours(ctx, []model.WorkingHours{{DayOfWeek: 1, IsWorkDay: true, StartTime: "10:00", EndTime: "12:00"}}))
	all, err := db.ListWorkingHours(ctx)
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, "10:00", all[1].StartTime)
	assert.False(t, all[0].IsWorkDay)

	s, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), s)

	require.NoError(t, db.SeedSettings(ctx, model.Settings{SlotIntervalMinutes: 30, AllowClientReschedule: false}))
	require.NoError(t, db.SeedSettings(ctx, model.Settings{SlotIntervalMinutes: 15, AllowClientReschedule: true}))
	s, err = db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, s.SlotIntervalMinutes)
	assert.False(t, s.AllowClientReschedule)

	require.NoError(t, db.SetSetting(ctx, model.SettingSlotInterval, "abc"))
	interval, err := db.GetSlotInterval(ctx)
	require.NoError(t, err)
	assert.Zero(t, interval)
}

func TestAdminsAndBlocklist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddAdmin(ctx, " Owner@Example.com ", ""))
	require.NoError(t, db.AddAdmin(ctx, "owner@example.com", ""))
	n, err := db.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := db.IsAdmin(ctx, "OWNER@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	admins, err := db.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.ErrorIs(t, db.DeleteAdmin(ctx, admins[0].ID), ErrLastAdmin)
	assert.ErrorIs(t, db.DeleteAdmin(ctx, 404), ErrNotFound)

	require.NoError(t, db.AddAdmin(ctx, "second@example.com", "owner@example.com"))
	require.NoError(t, db.DeleteAdmin(ctx, admins[0].ID))

	require.NoError(t, db.BlockPhone(ctx, "+100", "spam", "owner@example.com"))
	blocked, err := db.IsPhoneBlocked(ctx, "+100")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, db.UnblockPhone(ctx, "+100"))
	assert.ErrorIs(t, db.UnblockPhone(ctx, "+100"), ErrNotFound)
}

func TestBackupAndCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, db.CreateReservation(ctx, &model.Reservation{StartTime: at(10, 0), EndTime: at(11, 0)}))

	dest := filepath.Join(dir, BackupFileName(time.Now()))
	require.NoError(t, db.Backup(ctx, dest))
	_, err := os.Stat(dest)
	require.NoError(t, err)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	removed, err := CleanupBackups(dir, 24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestCreateReservation_BeginFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db := New(conn, zerolog.Nop())
	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	err = db.CreateReservation(context.Background(), &model.Reservation{StartTime: at(10, 0), EndTime: at(11, 0)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservation_OverlapQueryFailureRollsBack(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db := New(conn, zerolog.Nop())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err = db.CreateReservation(context.Background(), &model.Reservation{StartTime: at(10, 0), EndTime: at(11, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check overlap")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveClient_DuplicatePhone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveClient(ctx, &model.Client{FullName: "Ann", PhoneNumber: "+100"}))
	err := db.SaveClient(ctx, &model.Client{FullName: "Bob", PhoneNumber: "+100"})
	assert.ErrorIs(t, err, ErrDuplicate)
}
