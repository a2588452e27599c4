package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/internal/session"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// maxHandoffs bounds the flow-to-flow chain a single message can trigger.
const maxHandoffs = 4

const (
	startHint       = "Type 'hi' to start the conversation."
	connectionIssue = "We are having trouble connecting to the server. Please try again later."
)

// Inbound is one message received from WhatsApp.
type Inbound struct {
	From     string
	Body     string
	MediaURL string
}

// Options configures a Dispatcher. Backend and Messenger are required; the
// stores default to in-process implementations.
type Options struct {
	Backend   Backend
	Messenger Messenger
	Media     MediaFetcher
	Store     session.Store
	Scratch   session.Scratch
	Locker    session.Locker
	Archive   Archiver
	Templates config.Templates
	Location  *time.Location
	Now       func() time.Time
	Logger    *logging.Logger
	Metrics   *metrics.BotMetrics
}

// Dispatcher routes inbound messages to the flow that owns the sender's
// session and persists the session afterwards.
type Dispatcher struct {
	deps
	store  session.Store
	locker session.Locker
	now    func() time.Time
	flows  map[session.Action]flow
}

// NewDispatcher wires every flow.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	if opts.Scratch == nil {
		opts.Scratch = session.NewMemoryScratch()
	}
	if opts.Locker == nil {
		opts.Locker = session.NewMemoryLocker()
	}
	if opts.Location == nil {
		opts.Location = time.FixedZone("IST", 5*60*60+30*60)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		deps: deps{
			backend:   opts.Backend,
			messenger: opts.Messenger,
			media:     opts.Media,
			scratch:   opts.Scratch,
			archive:   opts.Archive,
			templates: opts.Templates,
			loc:       opts.Location,
			logger:    opts.Logger,
			metrics:   opts.Metrics,
		},
		store:  opts.Store,
		locker: opts.Locker,
		now:    opts.Now,
	}
	dp := &d.deps
	gw := &gateway{deps: dp}
	d.flows = map[session.Action]flow{
		session.ActionExistingUser:    &menuFlow{deps: dp},
		session.ActionRegistration:    &registrationFlow{deps: dp},
		session.ActionSelfBooking:     &selfBookingFlow{deps: dp, gateway: gw},
		session.ActionOtherBooking:    &otherBookingFlow{deps: dp},
		session.ActionFamilyMember:    &familyFlow{deps: dp, gateway: gw},
		session.ActionNewAddress:      &addressFlow{deps: dp, action: session.ActionNewAddress},
		session.ActionExistingAddress: &addressFlow{deps: dp, action: session.ActionExistingAddress},
		session.ActionPrescription:    &prescriptionFlow{deps: dp},
		session.ActionBookingDetails:  &bookingListFlow{deps: dp, action: session.ActionBookingDetails},
		session.ActionDownloadReport:  &bookingListFlow{deps: dp, action: session.ActionDownloadReport},
	}
	return d
}

// Process handles one inbound message. Errors are returned only for an
// invalid sender (wrapping messaging.ErrInvalidFormat) or a failing session
// store or lock; every conversational failure is reported in the Result.
func (d *Dispatcher) Process(ctx context.Context, in Inbound) (Result, error) {
	ctx, span := tracer.Start(ctx, "conversation.process")
	defer span.End()

	id, err := messaging.ToCanonical(in.From)
	if err != nil {
		span.SetStatus(codes.Error, "invalid sender")
		return Result{}, fmt.Errorf("conversation: sender %q: %w", in.From, err)
	}
	to, err := messaging.ToChannelAddress(id)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: sender %q: %w", in.From, err)
	}
	span.SetAttributes(attribute.String("user.id", id))

	unlock, err := d.locker.Lock(ctx, id)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("conversation: lock %s: %w", id, err)
	}
	defer unlock()

	started := time.Now()
	t := &turn{
		id:       id,
		to:       to,
		text:     strings.TrimSpace(in.Body),
		mediaURL: strings.TrimSpace(in.MediaURL),
		now:      d.now().In(d.loc),
		log:      d.logger.WithUser(id),
	}

	action := "greeting"
	var out outcome
	if isGreeting(t.text) {
		if err := d.store.Delete(ctx, id); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("conversation: reset session: %w", err)
		}
		out = d.greet(ctx, t)
	} else {
		sess, err := d.store.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("conversation: load session: %w", err)
		}
		if sess == nil {
			d.metrics.ObserveInbound("none", StatusIgnored)
			return Result{Status: StatusIgnored, Message: startHint}, nil
		}
		t.session = sess
		action = string(sess.Action)
		span.SetAttributes(attribute.String("conversation.action", action), attribute.String("conversation.step", sess.Step()))
		if f, ok := d.flows[sess.Action]; ok {
			out = f.handle(ctx, t)
		} else {
			out = d.unhandled(ctx, t)
		}
	}

	out = d.follow(ctx, t, session.Action(action), out)

	if t.session == nil {
		err = d.store.Delete(ctx, id)
	} else {
		err = d.store.Set(ctx, id, t.session)
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("conversation: save session: %w", err)
	}

	d.metrics.ObserveInbound(action, out.Status)
	d.metrics.ObserveDispatch(action, time.Since(started).Seconds())
	span.AddEvent("processed", trace.WithAttributes(attribute.String("status", out.Status)))
	t.log.Debug("message processed", "action", action, "status", out.Status, "step", t.session.Step())
	return out.Result, nil
}

// follow runs the entry points named by successive outcomes.
func (d *Dispatcher) follow(ctx context.Context, t *turn, from session.Action, out outcome) outcome {
	for hops := 0; out.next != ""; hops++ {
		if hops == maxHandoffs {
			t.log.Error("handoff limit reached", "next", out.next)
			t.clear()
			return outcome{Result: Result{Status: StatusError, Error: "too many handoffs"}}
		}
		f, ok := d.flows[out.next]
		if !ok {
			t.log.Error("handoff to unknown flow", "next", out.next)
			return d.unhandled(ctx, t)
		}
		d.metrics.ObserveHandoff(string(from), string(out.next))
		t.log.Debug("handoff", "from", from, "to", out.next)
		from = out.next
		out = f.start(ctx, t)
	}
	return out
}

// greet is the registration check behind "hi": registered users get the
// menu, everyone else starts registration.
func (d *Dispatcher) greet(ctx context.Context, t *turn) outcome {
	user, err := d.backend.LookupUser(ctx, t.id)
	switch {
	case err == nil:
		t.user = user
		return handoff(session.ActionExistingUser)
	case errors.Is(err, backend.ErrNotFound):
		return handoff(session.ActionRegistration)
	}
	t.log.Error("user lookup failed", "error", err)
	out := d.say(ctx, t, StatusError, connectionIssue)
	out.Error = err.Error()
	return out
}
