package conversation

import (
	"context"
	"strings"

	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const defaultUserName = "User"

// menuFlow greets a registered user and offers new booking, booking details
// and report download.
type menuFlow struct {
	*deps
}

func (f *menuFlow) start(ctx context.Context, t *turn) outcome {
	user := t.user
	if user == nil {
		u, err := f.backend.LookupUser(ctx, t.id)
		if err != nil {
			t.log.Warn("user lookup for menu greeting failed", "error", err)
		}
		user = u
	}
	name := defaultUserName
	if user != nil && strings.TrimSpace(user.Name) != "" {
		name = strings.TrimSpace(user.Name)
	}
	t.session = &session.Session{
		Action: session.ActionExistingUser,
		Menu:   &session.MenuState{Step: session.MenuAwaitingOption, Name: name},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.ExistingUserOptions, map[string]string{"1": name})
}

func (f *menuFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Menu
	if st == nil || st.Step != session.MenuAwaitingOption {
		return f.unhandled(ctx, t)
	}
	switch strings.ToLower(t.text) {
	case "new booking":
		t.clear()
		return handoff(session.ActionSelfBooking)
	case "booking details":
		t.clear()
		return handoff(session.ActionBookingDetails)
	case "download reports", "download report":
		t.clear()
		return handoff(session.ActionDownloadReport)
	}
	return f.prompt(ctx, t, StatusError, f.templates.ExistingUserOptions, map[string]string{"1": st.Name})
}
