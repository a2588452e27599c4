package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	maxListedBookings = 3
	maxButtonLabel    = 24
	emptyButtonLabel  = "No Booking Available"

	noBookings       = "No bookings found for the provided information."
	bookingsFailed   = "Unable to fetch bookings. Please try again later."
	noReports        = "There are no reports available for this booking. Type *Hi* to restart the conversation."
	reportFailed     = "Unable to fetch the report due to a server error. Please try again later."
	bookingNotListed = "No booking found for the selected option: %s. Please choose a valid option."
)

// bookingListFlow shows the three most recent bookings as buttons. Registered
// as booking_details it answers with the booking's status; as
// download_report it answers with the report link.
type bookingListFlow struct {
	*deps
	action session.Action
}

func (f *bookingListFlow) start(ctx context.Context, t *turn) outcome {
	list, err := f.backend.ListBookings(ctx, t.id)
	if err != nil {
		return f.fail(ctx, t, bookingsFailed, err)
	}
	if len(list.Bookings) == 0 {
		t.clear()
		return f.say(ctx, t, StatusNotFound, noBookings)
	}
	n := min(len(list.Bookings), maxListedBookings)
	bookings := make([]session.Booking, 0, n)
	for _, b := range list.Bookings[:n] {
		bookings = append(bookings, toSessionBooking(b))
	}
	t.session = &session.Session{
		Action:   f.action,
		Bookings: &session.BookingListState{Step: session.BookingAskSelection, Bookings: bookings},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.BookingDetails, bookingButtons(bookings))
}

func (f *bookingListFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Bookings
	if st == nil || st.Step != session.BookingAskSelection {
		return f.unhandled(ctx, t)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 1 || n > len(st.Bookings) {
		msg := fmt.Sprintf(bookingNotListed, t.text)
		if out := f.say(ctx, t, StatusError, msg); out.Error != "" {
			return out
		}
		out := f.prompt(ctx, t, StatusError, f.templates.BookingDetails, bookingButtons(st.Bookings))
		out.Message = msg
		return out
	}
	b := st.Bookings[n-1]
	t.clear()
	if f.action == session.ActionDownloadReport {
		return f.sendReport(ctx, t, b)
	}
	return f.say(ctx, t, StatusSuccess, bookingDetailsMessage(b))
}

func (f *bookingListFlow) sendReport(ctx context.Context, t *turn, b session.Booking) outcome {
	url, err := f.backend.DownloadReport(ctx, b.Number)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return f.say(ctx, t, StatusNotFound, noReports)
	case err != nil:
		t.log.Error("report download failed", "error", err, "booking_no", b.Number)
		out := f.say(ctx, t, StatusError, reportFailed)
		out.Error = err.Error()
		return out
	}
	t.log.Info("report link sent", "booking_no", b.Number)
	return f.say(ctx, t, StatusSuccess, "Here is your report.👇\n\n"+url+"\n\nThank you for using us! 😊\nType *Hi* to restart the conversation.")
}

func toSessionBooking(b backend.Booking) session.Booking {
	return session.Booking{
		Number:        b.Number,
		Date:          b.Date,
		PatientName:   b.PatientName,
		ReportStatus:  b.ReportStatus,
		BookingStatus: b.BookingStatus,
		BranchName:    b.BranchName,
	}
}

func bookingDetailsMessage(b session.Booking) string {
	return "Here are the booking details:\n\n" +
		"Name: " + orNA(b.PatientName) + "\n" +
		"Booking Date: " + orNA(b.Date) + "\n" +
		"Report Status: " + orNA(b.ReportStatus) + "\n" +
		"Booking Status: " + orNA(b.BookingStatus) + "\n" +
		"Branch Name: " + orNA(b.BranchName) + "\n\n" +
		"Thank you for choosing us! 😊\n\n" +
		"Type *Hi* to restart the conversation."
}

// bookingButtons builds the template variables "1" to "3". Labels read
// "DD/MM/YYYY FirstName", fit a WhatsApp button and are unique.
func bookingButtons(bookings []session.Booking) map[string]string {
	vars := make(map[string]string, maxListedBookings)
	used := make(map[string]bool, len(bookings))
	for i, b := range bookings {
		idx := strconv.Itoa(i + 1)
		label := bookingLabel(b)
		for used[label] {
			if utf8.RuneCountInString(label)+4 > maxButtonLabel {
				label = truncateRunes(label, maxButtonLabel-1-len(idx)) + "~" + idx
			} else {
				label += " (" + idx + ")"
			}
		}
		used[label] = true
		vars[idx] = label
	}
	for i := len(bookings) + 1; i <= maxListedBookings; i++ {
		vars[strconv.Itoa(i)] = emptyButtonLabel
	}
	return vars
}

func bookingLabel(b session.Booking) string {
	date := b.Date
	if d, err := time.Parse(apiDateLayout, b.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	first, _, _ := strings.Cut(strings.TrimSpace(b.PatientName), " ")
	label := strings.TrimSpace(date + " " + first)
	if utf8.RuneCountInString(label) > maxButtonLabel {
		room := maxButtonLabel - utf8.RuneCountInString(date) - 1 - len("...")
		label = date + " " + truncateRunes(first, room) + "..."
	}
	return label
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
