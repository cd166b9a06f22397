// Package google mirrors appointments into a Google Sheets spreadsheet.
package google

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"agenda/internal/events"
	"agenda/internal/model"
)

var header = []interface{}{
	"ID", "Reference", "Date", "Start", "End", "Client", "Phone",
	"Notes", "Status", "Total", "Updated",
}

const lastColumn = "K"

// SheetsService keeps one row per appointment, keyed by appointment ID in
// column A. Writes are applied by a single worker in event order.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location

	rowCache map[int64]int
	cacheMu  sync.RWMutex

	queue  chan events.Event
	logger zerolog.Logger
}

// NewSheetsService authenticates with a service-account JSON key.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location, logger zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return newSheetsService(srv, spreadsheetID, sheetName, loc, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location, logger zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Appointments"
	}
	if loc == nil {
		loc = time.Local
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		rowCache:      make(map[int64]int),
		queue:         make(chan events.Event, 256),
		logger:        logger.With().Str("component", "sheets").Logger(),
	}
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache forgets every known row.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func (s *SheetsService) rangeFor(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.sheetName, row, lastColumn, row)
}

// Init writes the header row and loads the ID to row mapping.
func (s *SheetsService) Init(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeFor(1), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return s.WarmCache(ctx)
}

// WarmCache rebuilds the row cache from column A.
func (s *SheetsService) WarmCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read ids: %w", err)
	}

	s.ClearCache()
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(fmt.Sprint(row[0]), 10, 64)
		if err != nil {
			continue
		}
		s.setCachedRow(id, i+1)
	}
	return nil
}

// HandleEvent queues a booking event for the worker. It never blocks.
func (s *SheetsService) HandleEvent(_ context.Context, e events.Event) error {
	select {
	case s.queue <- e:
		return nil
	default:
		return fmt.Errorf("sheets queue full, dropped %s", e.Type)
	}
}

// Run applies queued events until ctx is done.
func (s *SheetsService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			if err := s.Apply(ctx, e); err != nil {
				s.logger.Error().Err(err).Str("event", e.Type).Msg("sheet sync failed")
			}
		}
	}
}

// Apply mirrors one event into the sheet.
func (s *SheetsService) Apply(ctx context.Context, e events.Event) error {
	if e.Type == events.BlocksCreated {
		blocks, err := e.Reservations()
		if err != nil {
			return err
		}
		for i := range blocks {
			if err := s.UpsertReservation(ctx, &blocks[i]); err != nil {
				return err
			}
		}
		return nil
	}

	r, err := e.Reservation()
	if err != nil {
		return err
	}
	if e.Type == events.AppointmentCancelled {
		return s.ClearReservation(ctx, r.ID)
	}
	return s.UpsertReservation(ctx, r)
}

// UpsertReservation updates the row of r, appending one if r is new.
func (s *SheetsService) UpsertReservation(ctx context.Context, r *model.Reservation) error {
	values := &sheets.ValueRange{Values: [][]interface{}{rowValues(r, s.loc)}}

	if row, ok := s.getCachedRow(r.ID); ok {
		_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeFor(row), values).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:"+lastColumn, values).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(r.ID, row)
		}
	}
	return nil
}

// ClearReservation blanks the row of a cancelled appointment.
func (s *SheetsService) ClearReservation(ctx context.Context, id int64) error {
	row, ok := s.getCachedRow(id)
	if !ok {
		return nil
	}
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rangeFor(row), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %d: %w", row, err)
	}
	s.deleteCacheRow(id)
	return nil
}

func rowValues(r *model.Reservation, loc *time.Location) []interface{} {
	start := r.StartTime.In(loc)
	status := string(r.Status)
	client := r.ClientName
	if r.IsPersonalBlock {
		status = "blocked"
		client = ""
	}
	return []interface{}{
		r.ID,
		r.Reference,
		start.Format("2006-01-02"),
		start.Format("15:04"),
		r.EndTime.In(loc).Format("15:04"),
		client,
		r.ClientPhone,
		r.Notes,
		status,
		r.TotalPrice,
		r.UpdatedAt.In(loc).Format("2006-01-02 15:04:05"),
	}
}

// rowFromRange extracts the first row number of an A1 range such as
// "Appointments!A7:K7".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
