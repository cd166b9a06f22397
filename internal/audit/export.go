// Package audit exports monthly appointment workbooks and prunes old
// appointments once they have been archived.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"agenda/internal/model"
)

// Sheet names of the exported workbook.
const (
	AppointmentsSheet = "Appointments"
	ClientsSheet      = "Clients"
)

var appointmentColumns = []string{
	"Reference", "Date", "Start", "End", "Duration (min)",
	"Client", "Phone", "Notes", "Status", "Personal block", "Total",
}

var clientColumns = []string{"ID", "Full name", "Phone", "Created"}

// Store reads what goes into the workbook.
type Store interface {
	ListReservationsStartingIn(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
	ListClients(ctx context.Context, search string) ([]model.Client, error)
}

// Exporter builds monthly workbooks.
type Exporter struct {
	store  Store
	loc    *time.Location
	logger zerolog.Logger
}

func NewExporter(store Store, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{
		store:  store,
		loc:    loc,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// monthBounds returns the first instants of month and of the month after it.
func (e *Exporter) monthBounds(month time.Time) (time.Time, time.Time) {
	month = month.In(e.loc)
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, e.loc)
	return from, from.AddDate(0, 1, 0)
}

// ExportMonth writes the appointments starting in month and the client list
// to w as an xlsx workbook.
func (e *Exporter) ExportMonth(ctx context.Context, month time.Time, w io.Writer) error {
	from, to := e.monthBounds(month)
	list, err := e.store.ListReservationsStartingIn(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	clients, err := e.store.ListClients(ctx, "")
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}

	book := newSheetWriter()
	defer func() { _ = book.close() }()

	if err := book.addSheet(AppointmentsSheet); err != nil {
		return err
	}
	if err := book.writeHeader(appointmentColumns); err != nil {
		return err
	}
	for i := range list {
		if err := book.writeRow(e.appointmentRow(&list[i])); err != nil {
			return err
		}
	}

	if err := book.addSheet(ClientsSheet); err != nil {
		return err
	}
	if err := book.writeHeader(clientColumns); err != nil {
		return err
	}
	for _, c := range clients {
		row := []any{c.ID, c.FullName, c.PhoneNumber, c.CreatedAt.In(e.loc).Format("2006-01-02 15:04")}
		if err := book.writeRow(row); err != nil {
			return err
		}
	}

	if err := book.save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().
		Str("month", from.Format("2006-01")).
		Int("appointments", len(list)).
		Int("clients", len(clients)).
		Msg("workbook exported")
	return nil
}

func (e *Exporter) appointmentRow(r *model.Reservation) []any {
	start := r.StartTime.In(e.loc)
	status := string(r.Status)
	block := "no"
	if r.IsPersonalBlock {
		status = ""
		block = "yes"
	}
	return []any{
		r.Reference,
		start.Format("2006-01-02"),
		start.Format("15:04"),
		r.EndTime.In(e.loc).Format("15:04"),
		r.DurationMinutes(),
		r.ClientName,
		r.ClientPhone,
		r.Notes,
		status,
		block,
		r.TotalPrice,
	}
}
