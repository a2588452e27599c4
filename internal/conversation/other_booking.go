package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	patientListFailed = "Unable to fetch patient details. Please try again later."
	invalidSerial     = "Invalid selection. Please reply with a valid serial number."
	otherPatientHint  = "\n👉 *Reply with the serial number* (e.g., 1, 2, etc.) of the patient you want to proceed with, or reply *Add* to register a new family member."
)

// otherBookingFlow lets the account holder book for a patient already
// registered under the account, or add a new family member.
type otherBookingFlow struct {
	*deps
}

func (f *otherBookingFlow) start(ctx context.Context, t *turn) outcome {
	list, err := f.backend.ListPatients(ctx, t.id)
	if errors.Is(err, backend.ErrNotFound) {
		t.clear()
		return handoff(session.ActionFamilyMember)
	}
	if err != nil {
		return f.fail(ctx, t, patientListFailed, err)
	}
	patients := toSessionPatients(list)
	t.session = &session.Session{
		Action:       session.ActionOtherBooking,
		OtherBooking: &session.OtherBookingState{Step: session.OtherAskPatient, Patients: patients},
	}
	out := f.say(ctx, t, StatusSuccess, patientListMessage(patients)+otherPatientHint)
	if f.templates.AddFamilyPatient != "" {
		return f.prompt(ctx, t, StatusSuccess, f.templates.AddFamilyPatient, nil)
	}
	return out
}

func (f *otherBookingFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.OtherBooking
	if st == nil || st.Step != session.OtherAskPatient {
		return f.unhandled(ctx, t)
	}
	switch strings.ToLower(t.text) {
	case "add", "add new member", "add family member", "someone else":
		t.clear()
		return handoff(session.ActionFamilyMember)
	}
	p, ok := pickPatient(st.Patients, t.text)
	if !ok {
		return f.say(ctx, t, StatusError, invalidSerial)
	}
	if err := f.scratch.SetPatientCode(ctx, t.id, p.Code); err != nil {
		t.log.Warn("failed to cache patient code", "error", err)
	}
	if err := f.scratch.SetRelation(ctx, t.id, ""); err != nil {
		t.log.Warn("failed to reset relation", "error", err)
	}
	t.log.Info("patient selected", "patient_code", p.Code)
	t.clear()
	return nextAddressStep(ctx, f.deps, t)
}

func pickPatient(patients []session.Patient, serial string) (session.Patient, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(serial))
	if err != nil || n < 1 || n > len(patients) {
		return session.Patient{}, false
	}
	return patients[n-1], true
}

func toSessionPatients(list []backend.Patient) []session.Patient {
	out := make([]session.Patient, 0, len(list))
	for _, p := range list {
		out = append(out, session.Patient{
			Code:      p.Code,
			Name:      p.Name,
			Age:       p.AgeText(),
			AgePeriod: p.AgePeriod,
			Gender:    p.Gender,
		})
	}
	return out
}

func patientListMessage(patients []session.Patient) string {
	var b strings.Builder
	b.WriteString("👩‍⚕️ *Patient Details*\n\n")
	for i, p := range patients {
		fmt.Fprintf(&b, "*%d.* %s (%s %s, %s)\n    ID: %s\n",
			i+1, orNA(p.Name), orNA(p.Age), orNA(p.AgePeriod), orNA(p.Gender), orNA(p.Code))
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
