package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agenda/internal/events"
	"agenda/internal/model"
	"agenda/internal/slots"
)

// Kinds label messages in metrics.
const (
	KindCreated     = "created"
	KindRescheduled = "rescheduled"
	KindCancelled   = "cancelled"
	KindDigest      = "digest"
)

// EventTypes are the events the notifier reacts to.
var EventTypes = []string{
	events.AppointmentCreated,
	events.AppointmentRescheduled,
	events.AppointmentCancelled,
}

// HandleEvent queues an owner message for a booking event. Personal blocks
// are the owner's own doing and are not announced.
func (n *Notifier) HandleEvent(_ context.Context, e events.Event) error {
	r, err := e.Reservation()
	if err != nil {
		return err
	}
	if r.IsPersonalBlock {
		return nil
	}

	var kind, title string
	switch e.Type {
	case events.AppointmentCreated:
		kind, title = KindCreated, "New appointment"
	case events.AppointmentRescheduled:
		kind, title = KindRescheduled, "Appointment rescheduled"
	case events.AppointmentCancelled:
		kind, title = KindCancelled, "Appointment cancelled"
	default:
		return nil
	}

	n.Enqueue(kind, FormatReservation(title, r, n.loc))
	return nil
}

// FormatReservation renders one appointment for a chat message.
func FormatReservation(title string, r *model.Reservation, loc *time.Location) string {
	start := r.StartTime.In(loc)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "%s, %s-%s (%s)\n",
		start.Format("Mon 02.01.2006"),
		start.Format("15:04"),
		r.EndTime.In(loc).Format("15:04"),
		slots.FormatDuration(r.DurationMinutes()))
	fmt.Fprintf(&b, "Client: %s %s\n", r.ClientName, r.ClientPhone)
	if r.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", r.Notes)
	}
	if r.TotalPrice > 0 {
		fmt.Fprintf(&b, "Total: %.2f\n", r.TotalPrice)
	}
	fmt.Fprintf(&b, "Ref: %s", r.Reference)
	return b.String()
}

// FormatDigest renders the agenda of a day.
func FormatDigest(day time.Time, list []model.Reservation, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agenda for %s\n", day.In(loc).Format("Mon 02.01.2006"))
	if len(list) == 0 {
		b.WriteString("No appointments today.")
		return b.String()
	}

	var total float64
	appointments := 0
	for i := range list {
		r := &list[i]
		line := fmt.Sprintf("%s-%s ", r.StartTime.In(loc).Format("15:04"), r.EndTime.In(loc).Format("15:04"))
		if r.IsPersonalBlock {
			line += "blocked"
			if r.Notes != "" {
				line += ": " + r.Notes
			}
		} else {
			appointments++
			total += r.TotalPrice
			line += r.ClientName
			if r.Notes != "" {
				line += " (" + r.Notes + ")"
			}
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "%d appointment(s), %.2f expected", appointments, total)
	return b.String()
}
