package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	defaultNationality = "Saudi"
	gatewayRetry       = "An error occurred. Try again later."
)

// gateway registers a patient under the sender's account and moves on to
// the address step.
type gateway struct {
	*deps
}

// submit adds the patient. A patient the backend already knows counts as
// success. On any other failure the session is left as it is so the user can
// answer the last prompt again.
func (g *gateway) submit(ctx context.Context, t *turn, p session.Person) outcome {
	nationality := p.Nationality
	if nationality == "" {
		nationality = defaultNationality
	}
	mobile := p.Mobile
	if mobile == "" {
		mobile = t.id
	}
	req := backend.PatientRequest{
		Username:    t.id,
		PtName:      p.FirstName + " " + p.Surname,
		FirstName:   p.FirstName,
		Surname:     p.Surname,
		DOB:         p.DOB,
		Gender:      p.Gender,
		MobileNo:    mobile,
		Nationality: nationality,
	}
	if p.RelationCode != "" {
		code := p.RelationCode
		req.RelationCode = &code
	}

	res, err := g.backend.AddPatient(ctx, req)
	if err != nil {
		t.log.Error("add patient failed", "error", err, "step", t.session.Step())
		out := g.say(ctx, t, StatusError, gatewayRetry)
		out.Error = err.Error()
		return out
	}

	if stored, err := g.scratch.RememberPatientCode(ctx, t.id, res.PatientCode); err != nil {
		t.log.Warn("failed to cache patient code", "error", err)
	} else if !stored {
		t.log.Debug("patient code already cached", "patient_code", res.PatientCode)
	} else if err := g.scratch.SetRelation(ctx, t.id, p.Relation); err != nil {
		t.log.Warn("failed to cache relation", "error", err)
	}
	if res.Duplicate {
		t.log.Info("patient already registered", "patient_code", res.PatientCode)
		if p.Nationality != "" {
			if err := g.backend.UpdateNationality(ctx, t.id, p.Nationality); err != nil {
				t.log.Warn("nationality update failed", "error", err)
			}
		}
	} else {
		t.log.Info("patient registered", "patient_code", res.PatientCode)
	}

	t.clear()
	return nextAddressStep(ctx, g.deps, t)
}

// nextAddressStep hands off to the existing-address flow when an address is
// on file and to the new-address flow otherwise.
func nextAddressStep(ctx context.Context, d *deps, t *turn) outcome {
	addr, err := d.backend.GetAddress(ctx, t.id)
	switch {
	case err == nil:
		t.address = addr
		return handoff(session.ActionExistingAddress)
	case errors.Is(err, backend.ErrNotFound):
		return handoff(session.ActionNewAddress)
	}
	t.log.Warn("address lookup failed, collecting a new address", "error", err)
	return handoff(session.ActionNewAddress)
}
