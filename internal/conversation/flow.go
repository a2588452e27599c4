// Package conversation implements the WhatsApp booking conversation: a set of
// step-driven flows, the gateway that registers patients, and the Dispatcher
// that routes each inbound message to the flow owning the sender's session.
package conversation

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/lab-booking-bot/internal/archive"
	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/internal/session"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("labbot.internal.conversation")

// Result statuses.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
	StatusIgnored  = "ignored"
)

// Result is returned for every inbound message.
type Result struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Backend is the lab API surface the flows use.
type Backend interface {
	LookupUser(ctx context.Context, username string) (*backend.User, error)
	RegisterUser(ctx context.Context, reg backend.UserRegistration) error
	ListPatients(ctx context.Context, username string) ([]backend.Patient, error)
	AddPatient(ctx context.Context, req backend.PatientRequest) (*backend.AddPatientResult, error)
	GetAddress(ctx context.Context, username string) (*backend.Address, error)
	AddAddress(ctx context.Context, req backend.AddressRequest) error
	EditAddress(ctx context.Context, req backend.AddressRequest) error
	ListBookings(ctx context.Context, username string) (*backend.BookingList, error)
	SubmitPrescriptionBooking(ctx context.Context, b backend.PrescriptionBooking) (string, error)
	DownloadReport(ctx context.Context, bookingNo string) (string, error)
	SaveBookings(ctx context.Context, raw json.RawMessage) error
	CheckNationality(ctx context.Context, mobileAPI string) (string, error)
	CheckSurname(ctx context.Context, mobileAPI string) (string, error)
	SaveUserDetails(ctx context.Context, details backend.UserDetails) error
	UpdateNationality(ctx context.Context, mobileAPI, nationality string) error
}

// Messenger sends WhatsApp messages. Destinations are channel addresses.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendTemplate(ctx context.Context, to, contentSID string, vars map[string]string) (string, error)
}

// MediaFetcher downloads an inbound attachment.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (*messaging.Media, error)
}

// Archiver keeps a copy of uploaded prescriptions.
type Archiver interface {
	ArchivePrescription(ctx context.Context, p archive.Prescription) (string, error)
}

// flow is one named conversation. start is the entry point: it replaces the
// turn's session and sends the first prompt. handle advances the current step.
type flow interface {
	start(ctx context.Context, t *turn) outcome
	handle(ctx context.Context, t *turn) outcome
}

// outcome is a flow's answer to one call. A non-empty next hands the turn to
// that flow's entry point before the Dispatcher replies.
type outcome struct {
	Result
	next session.Action
}

func handoff(next session.Action) outcome {
	return outcome{next: next}
}

// turn carries one inbound message through the flows. session is nil once a
// flow has cleared it. user and address cache lookups made earlier in the
// same turn for the entry point that follows.
type turn struct {
	id       string
	to       string
	text     string
	mediaURL string
	now      time.Time
	session  *session.Session
	user     *backend.User
	address  *backend.Address
	log      *logging.Logger
}

func (t *turn) clear() {
	t.session = nil
}

// deps are the collaborators shared by every flow.
type deps struct {
	backend   Backend
	messenger Messenger
	media     MediaFetcher
	scratch   session.Scratch
	archive   Archiver
	templates config.Templates
	loc       *time.Location
	logger    *logging.Logger
	metrics   *metrics.BotMetrics
}

// say sends a text message. A failed send is reported in Error without
// changing status: the state change has already happened.
func (d *deps) say(ctx context.Context, t *turn, status, body string) outcome {
	out := outcome{Result: Result{Status: status, Message: body}}
	if err := d.messenger.SendText(ctx, t.to, body); err != nil {
		t.log.Error("failed to send message", "error", err, "step", t.session.Step())
		out.Error = err.Error()
	}
	return out
}

// prompt sends a template message.
func (d *deps) prompt(ctx context.Context, t *turn, status, contentSID string, vars map[string]string) outcome {
	sid, err := d.messenger.SendTemplate(ctx, t.to, contentSID, vars)
	if err != nil {
		t.log.Error("failed to send template", "error", err, "content_sid", contentSID, "step", t.session.Step())
		return outcome{Result: Result{Status: StatusError, Error: err.Error()}}
	}
	return outcome{Result: Result{Status: status, MessageID: sid}}
}

// fail ends the conversation after a backend failure.
func (d *deps) fail(ctx context.Context, t *turn, body string, err error) outcome {
	t.log.Error("backend call failed", "error", err, "step", t.session.Step())
	t.clear()
	out := d.say(ctx, t, StatusError, body)
	if out.Error == "" && err != nil {
		out.Error = err.Error()
	}
	return out
}

func (d *deps) unhandled(ctx context.Context, t *turn) outcome {
	var action session.Action
	if t.session != nil {
		action = t.session.Action
	}
	t.log.Warn("unhandled step", "action", action, "step", t.session.Step())
	t.clear()
	out := d.say(ctx, t, StatusError, "Something went wrong. Type 'hi' to start the conversation again.")
	out.Error = "unhandled step"
	return out
}
