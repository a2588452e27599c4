package conversation

import (
	"context"
	"strings"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	selfDetailsFailed    = "Failed to fetch your details. Please try again later."
	selfProcessingFailed = "An error occurred while processing your request. Please try again later."
	selfSaveFailed       = "An error occurred while saving your details. Please try again later."
	askSurname           = "Please provide your surname:"
	emptySurname         = "Surname cannot be empty. Please provide your surname:"
	askNationality       = "Please specify your nationality:"
	invalidNationality   = "Invalid nationality. Please enter a valid nationality:"
)

// selfBookingFlow asks who the booking is for. For the account holder it
// completes the profile (surname, nationality) and registers them as a
// patient; for anyone else it moves to the other-person flow.
type selfBookingFlow struct {
	*deps
	gateway *gateway
}

func (f *selfBookingFlow) start(ctx context.Context, t *turn) outcome {
	t.session = &session.Session{
		Action:      session.ActionSelfBooking,
		SelfBooking: &session.SelfBookingState{Step: session.SelfAskBookingPerson},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.Relationship, nil)
}

func (f *selfBookingFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.SelfBooking
	if st == nil {
		return f.unhandled(ctx, t)
	}
	switch st.Step {
	case session.SelfAskBookingPerson:
		switch strings.ToLower(t.text) {
		case "self":
			return f.bookForSelf(ctx, t, st)
		case "someone else":
			t.clear()
			return handoff(session.ActionOtherBooking)
		}
		return f.prompt(ctx, t, StatusError, f.templates.Relationship, nil)

	case session.SelfAskSurname:
		if t.text == "" {
			return f.say(ctx, t, StatusError, emptySurname)
		}
		st.Person.Surname = t.text
		return f.checkNationality(ctx, t, st)

	case session.SelfAskNationality:
		switch {
		case isYes(t.text):
			st.Person.Nationality = defaultNationality
			f.saveDetails(ctx, t, st.Person)
			return f.gateway.submit(ctx, t, st.Person)
		case isNo(t.text):
			st.Step = session.SelfAskCustomNationality
			return f.say(ctx, t, StatusSuccess, askNationality)
		}
		return f.prompt(ctx, t, StatusError, f.templates.Nationality, nil)

	case session.SelfAskCustomNationality:
		nationality, ok := ParseNationality(t.text)
		if !ok {
			return f.say(ctx, t, StatusError, invalidNationality)
		}
		st.Person.Nationality = nationality
		f.saveDetails(ctx, t, st.Person)
		return f.gateway.submit(ctx, t, st.Person)
	}
	return f.unhandled(ctx, t)
}

// bookForSelf builds the profile from the account and fills in what the
// booking database knows.
func (f *selfBookingFlow) bookForSelf(ctx context.Context, t *turn, st *session.SelfBookingState) outcome {
	user, err := f.backend.LookupUser(ctx, t.id)
	if err != nil {
		return f.fail(ctx, t, selfDetailsFailed, err)
	}
	st.Person = personFromUser(user, t.id)

	if st.Person.Surname == "" {
		surname, err := f.backend.CheckSurname(ctx, t.id)
		if err != nil {
			return f.fail(ctx, t, selfProcessingFailed, err)
		}
		if surname == "" {
			st.Step = session.SelfAskSurname
			return f.say(ctx, t, StatusSuccess, askSurname)
		}
		st.Person.Surname = surname
	}
	return f.checkNationality(ctx, t, st)
}

func (f *selfBookingFlow) checkNationality(ctx context.Context, t *turn, st *session.SelfBookingState) outcome {
	nationality, err := f.backend.CheckNationality(ctx, t.id)
	if err != nil {
		return f.fail(ctx, t, selfProcessingFailed, err)
	}
	if nationality != "" {
		st.Person.Nationality = nationality
		return f.gateway.submit(ctx, t, st.Person)
	}
	if err := f.backend.SaveUserDetails(ctx, userDetails(t.id, st.Person)); err != nil {
		return f.fail(ctx, t, selfSaveFailed, err)
	}
	st.Step = session.SelfAskNationality
	return f.prompt(ctx, t, StatusSuccess, f.templates.Nationality, nil)
}

// saveDetails records the chosen nationality. Registration goes ahead even
// when the booking database is unavailable.
func (f *selfBookingFlow) saveDetails(ctx context.Context, t *turn, p session.Person) {
	if err := f.backend.SaveUserDetails(ctx, userDetails(t.id, p)); err != nil {
		t.log.Warn("failed to save nationality", "error", err)
	}
}

// personFromUser splits the account name. First_Name and Sur_Name win when
// present; otherwise Name is split once on the first space.
func personFromUser(u *backend.User, id string) session.Person {
	first, surname := strings.TrimSpace(u.FirstName), strings.TrimSpace(u.Surname)
	if first == "" {
		name := strings.TrimSpace(u.Name)
		first, surname, _ = strings.Cut(name, " ")
		surname = strings.TrimSpace(surname)
	}
	return session.Person{
		FirstName: first,
		Surname:   surname,
		Gender:    strings.TrimSpace(u.Gender),
		DOB:       strings.TrimSpace(u.DOB),
		Mobile:    id,
	}
}

func userDetails(id string, p session.Person) backend.UserDetails {
	return backend.UserDetails{
		MobileAPI:   id,
		FirstName:   p.FirstName,
		Surname:     p.Surname,
		Gender:      p.Gender,
		DOB:         p.DOB,
		Mobile:      id,
		Nationality: p.Nationality,
	}
}
