package conversation

import (
	"context"
	"strings"

	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	askTheirName        = "Please enter their full name (e.g., John Doe):"
	retryTheirName      = "Please enter a valid full name with at least two parts (e.g., John Doe):"
	askTheirNationality = "Please specify their nationality:"
	askTheirDOB         = "Please enter their date of birth (DD/MM/YYYY):"
	retryTheirDOB       = "Invalid DOB format. Please provide in DD/MM/YYYY format:"
	askTheirMobile      = "Please enter their 10-digit mobile number:"
	retryTheirMobile    = "Invalid mobile number. Please enter a valid 10-digit mobile number:"
)

// familyFlow registers a relative of the account holder as a patient.
type familyFlow struct {
	*deps
	gateway *gateway
}

func (f *familyFlow) start(ctx context.Context, t *turn) outcome {
	t.session = &session.Session{
		Action: session.ActionFamilyMember,
		Family: &session.FamilyState{Step: session.FamilyAskRelationship},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.SomeoneElseRelationship, nil)
}

func (f *familyFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Family
	if st == nil {
		return f.unhandled(ctx, t)
	}
	p := &st.Person
	switch st.Step {
	case session.FamilyAskRelationship:
		switch strings.ToLower(t.text) {
		case "someone else", "someone":
			return f.prompt(ctx, t, StatusSuccess, f.templates.SomeoneElseRelationship, nil)
		}
		rel, ok := RelationByOption(t.text)
		if !ok {
			return f.prompt(ctx, t, StatusError, f.templates.SomeoneElseRelationship, nil)
		}
		p.RelationCode, p.Relation = rel.Code, rel.Name
		st.Step = session.FamilyAskName
		return f.say(ctx, t, StatusSuccess, askTheirName)

	case session.FamilyAskName:
		name, ok := ParseFullName(t.text)
		if !ok {
			return f.say(ctx, t, StatusError, retryTheirName)
		}
		p.FirstName, p.MiddleName, p.Surname = name.First, name.Middle, name.Surname
		st.Step = session.FamilyAskNationality
		return f.prompt(ctx, t, StatusSuccess, f.templates.PatientNationality, nil)

	case session.FamilyAskNationality:
		switch {
		case isYes(t.text):
			p.Nationality = defaultNationality
			st.Step = session.FamilyAskDOB
			return f.say(ctx, t, StatusSuccess, askTheirDOB)
		case isNo(t.text):
			st.Step = session.FamilyAskCustomNationality
			return f.say(ctx, t, StatusSuccess, askTheirNationality)
		}
		return f.prompt(ctx, t, StatusError, f.templates.PatientNationality, nil)

	case session.FamilyAskCustomNationality:
		nationality, ok := ParseNationality(t.text)
		if !ok {
			return f.say(ctx, t, StatusError, askTheirNationality)
		}
		p.Nationality = nationality
		st.Step = session.FamilyAskDOB
		return f.say(ctx, t, StatusSuccess, askTheirDOB)

	case session.FamilyAskDOB:
		dob, err := ParseDOB(t.text, t.now)
		if err != nil {
			return f.say(ctx, t, StatusError, dobRetryMessage(err, retryTheirDOB))
		}
		p.DOB = dob
		st.Step = session.FamilyAskGender
		return f.prompt(ctx, t, StatusSuccess, f.templates.SomeoneElseGender, nil)

	case session.FamilyAskGender:
		gender, ok := ParseGender(t.text)
		if !ok {
			return f.prompt(ctx, t, StatusError, f.templates.SomeoneElseGender, nil)
		}
		p.Gender = gender
		st.Step = session.FamilyAskMobile
		return f.say(ctx, t, StatusSuccess, askTheirMobile)

	case session.FamilyAskMobile:
		if !ValidMobile(t.text) {
			return f.say(ctx, t, StatusError, retryTheirMobile)
		}
		p.Mobile = t.text
		return f.gateway.submit(ctx, t, *p)
	}
	return f.unhandled(ctx, t)
}
