package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	askDoor          = "Please enter your door number and apartment name (e.g., 12, Sunshine Apartment)."
	askLocality      = "Please enter your locality (e.g., Abha Street)."
	askZip           = "Please enter your zip code (5 digits, e.g., 13525)."
	invalidZip       = "Invalid zip code. Please enter a valid 5-digit zip code (e.g., 13525)."
	restartAddress   = "Let's restart. " + askDoor
	addressAdded     = "Your address has been added successfully!"
	addressSaved     = "Your address has been saved successfully!"
	addressAddFailed = "Failed to add the address. Type 'hi' to start the conversation again."
	addressEditFail  = "Failed to save your address. Please try again later."
	addressFetchFail = "Unable to fetch your address. Please try again later."
)

// Fixed address fields the lab API requires but WhatsApp never collects.
const (
	homeAddressType  = "01"
	addressLocation  = "Updated Location"
	addressLandmark  = "Updated Landmark"
	addressLatitude  = "14.025649"
	addressLongitude = "79.125487"
)

// addressFlow collects a home address. Registered as add_new_address it
// starts at the door number; as existing_address it first offers the stored
// address and only collects a new one (saved through edit) when declined.
type addressFlow struct {
	*deps
	action session.Action
}

func (f *addressFlow) start(ctx context.Context, t *turn) outcome {
	if f.action == session.ActionNewAddress {
		t.session = &session.Session{
			Action:  session.ActionNewAddress,
			Address: &session.AddressState{Step: session.AddressAskDoor},
		}
		return f.say(ctx, t, StatusSuccess, askDoor)
	}

	addr := t.address
	if addr == nil {
		a, err := f.backend.GetAddress(ctx, t.id)
		if errors.Is(err, backend.ErrNotFound) {
			t.clear()
			return handoff(session.ActionNewAddress)
		}
		if err != nil {
			return f.fail(ctx, t, addressFetchFail, err)
		}
		addr = a
	}
	t.session = &session.Session{
		Action:  session.ActionExistingAddress,
		Address: &session.AddressState{Step: session.AddressConfirmOrEdit, FullAddress: addr.FullAddress},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.ExistingAddress, map[string]string{"1": addr.FullAddress})
}

func (f *addressFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Address
	if st == nil {
		return f.unhandled(ctx, t)
	}
	switch st.Step {
	case session.AddressConfirmOrEdit:
		switch {
		case isYes(t.text):
			t.clear()
			return handoff(session.ActionPrescription)
		case isNo(t.text):
			st.Edit = true
			st.Step = session.AddressAskDoor
			return f.say(ctx, t, StatusSuccess, askDoor)
		}
		return f.prompt(ctx, t, StatusError, f.templates.ExistingAddress, map[string]string{"1": st.FullAddress})

	case session.AddressAskDoor:
		if t.text == "" {
			return f.say(ctx, t, StatusError, askDoor)
		}
		st.Door = t.text
		st.Step = session.AddressAskLocality
		return f.say(ctx, t, StatusSuccess, askLocality)

	case session.AddressAskLocality:
		if t.text == "" {
			return f.say(ctx, t, StatusError, askLocality)
		}
		st.Locality = t.text
		st.Step = session.AddressAskZip
		return f.say(ctx, t, StatusSuccess, askZip)

	case session.AddressAskZip:
		if !ValidZip(t.text) {
			return f.say(ctx, t, StatusError, invalidZip)
		}
		st.Zip = t.text
		st.Step = session.AddressAskProvince
		return f.prompt(ctx, t, StatusSuccess, f.templates.Province, nil)

	case session.AddressAskProvince:
		p, ok := ProvinceByOption(t.text)
		if !ok {
			return f.prompt(ctx, t, StatusError, f.templates.Province, nil)
		}
		st.City, st.Region, st.Country = p.City, p.Region, p.Country
		st.Step = session.AddressConfirm
		return f.prompt(ctx, t, StatusSuccess, f.templates.AddressConfirmation, nil)

	case session.AddressConfirm:
		switch {
		case isYes(t.text):
			return f.save(ctx, t, st)
		case isNo(t.text):
			*st = session.AddressState{Step: session.AddressAskDoor, Edit: st.Edit, FullAddress: st.FullAddress}
			return f.say(ctx, t, StatusSuccess, restartAddress)
		}
		return f.prompt(ctx, t, StatusError, f.templates.AddressConfirmation, nil)
	}
	return f.unhandled(ctx, t)
}

func (f *addressFlow) save(ctx context.Context, t *turn, st *session.AddressState) outcome {
	req := backend.AddressRequest{
		Username:    t.id,
		AddressType: homeAddressType,
		Street:      st.Door,
		Place:       st.Locality,
		City:        st.City,
		State:       st.Region,
		Country:     st.Country,
		Pincode:     st.Zip,
		Location:    addressLocation,
		Landmark:    addressLandmark,
		Latitude:    addressLatitude,
		Longitude:   addressLongitude,
	}
	save, done, failed := f.backend.AddAddress, addressAdded, addressAddFailed
	if st.Edit {
		save, done, failed = f.backend.EditAddress, addressSaved, addressEditFail
	}

	err := save(ctx, req)
	switch {
	case errors.Is(err, backend.ErrAddressExists):
		t.log.Info("address already on file")
	case err != nil:
		return f.fail(ctx, t, failed, err)
	default:
		t.log.Info("address saved", "edit", st.Edit, "city", st.City)
		if out := f.say(ctx, t, StatusSuccess, done); out.Error != "" {
			t.log.Warn("address confirmation not delivered", "error", out.Error)
		}
	}
	t.clear()
	return handoff(session.ActionPrescription)
}
