package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const registrationWelcome = "Hi! Welcome to the lab!👋\n\n" +
	"It looks like you're not registered with us🤔\n" +
	"Kindly enter your full name to register."

const (
	askFullName    = "Please enter your full name with at least two parts (e.g., John Doe or Jane A.):"
	askDOB         = "Great! Now, please enter your Date of Birth (DD/MM/YYYY):"
	retryDOB       = "Please enter your Date of Birth in DD/MM/YYYY format."
	dobInFuture    = "The date of birth cannot be in the future. Please provide a valid DOB (DD/MM/YYYY):"
	dobUnrealistic = "The age derived from the DOB is not realistic. Please provide a valid DOB (DD/MM/YYYY):"
)

// registrationFlow creates the account for a new WhatsApp user and then
// continues into self booking.
type registrationFlow struct {
	*deps
}

func (f *registrationFlow) start(ctx context.Context, t *turn) outcome {
	t.session = &session.Session{
		Action:       session.ActionRegistration,
		Registration: &session.RegistrationState{Step: session.RegistrationAskName},
	}
	return f.say(ctx, t, StatusSuccess, registrationWelcome)
}

func (f *registrationFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Registration
	if st == nil {
		return f.unhandled(ctx, t)
	}
	switch st.Step {
	case session.RegistrationAskName:
		name, ok := ParseFullName(t.text)
		if !ok {
			return f.say(ctx, t, StatusError, askFullName)
		}
		st.Person.FirstName, st.Person.MiddleName, st.Person.Surname = name.First, name.Middle, name.Surname
		st.Step = session.RegistrationAskGender
		return f.prompt(ctx, t, StatusSuccess, f.templates.GenderNewUser, nil)

	case session.RegistrationAskGender:
		gender, ok := ParseGender(t.text)
		if !ok {
			return f.prompt(ctx, t, StatusError, f.templates.GenderNewUser, nil)
		}
		st.Person.Gender = gender
		st.Step = session.RegistrationAskDOB
		return f.say(ctx, t, StatusSuccess, askDOB)

	case session.RegistrationAskDOB:
		dob, err := ParseDOB(t.text, t.now)
		if err != nil {
			return f.say(ctx, t, StatusError, dobRetryMessage(err, retryDOB))
		}
		st.Person.DOB = dob
		return f.register(ctx, t, st.Person)
	}
	return f.unhandled(ctx, t)
}

func (f *registrationFlow) register(ctx context.Context, t *turn, p session.Person) outcome {
	err := f.backend.RegisterUser(ctx, backend.UserRegistration{
		Name:     p.FirstName + " " + p.Surname,
		UserName: t.id,
		Gender:   p.Gender,
		DOB:      p.DOB,
		MobileNo: t.id,
	})
	if err != nil {
		return f.fail(ctx, t, "Registration failed. Please try again later.", err)
	}
	t.log.Info("user registered")
	t.clear()
	if out := f.say(ctx, t, StatusSuccess, "Registration successful!"); out.Error != "" {
		t.log.Warn("registration confirmation not delivered", "error", out.Error)
	}
	return handoff(session.ActionSelfBooking)
}

// dobRetryMessage picks the corrective prompt for a rejected date of birth.
func dobRetryMessage(err error, formatHint string) string {
	switch {
	case errors.Is(err, ErrDateInFuture):
		return dobInFuture
	case errors.Is(err, ErrAgeUnrealistic):
		return dobUnrealistic
	}
	return formatHint
}
