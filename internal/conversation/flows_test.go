package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

func selfBookingSession() *session.Session {
	return &session.Session{
		Action:      session.ActionSelfBooking,
		SelfBooking: &session.SelfBookingState{Step: session.SelfAskBookingPerson},
	}
}

func TestMenuOptions(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionExistingUser, Menu: &session.MenuState{Step: session.MenuAwaitingOption, Name: "Asha"}})

	res := h.send(t, "something else")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, sentTemplate{to: testAddress, sid: "HX_menu", vars: map[string]string{"1": "Asha"}}, h.messenger.lastTemplate())

	h.send(t, "New booking")
	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionSelfBooking, s.Action)
	assert.Equal(t, "HX_relationship", h.messenger.lastTemplate().sid)
}

func TestMenuGreetsWithFallbackName(t *testing.T) {
	h := newHarness(t)
	h.backend.user = &backend.User{}

	h.send(t, "hi")
	assert.Equal(t, map[string]string{"1": "User"}, h.messenger.lastTemplate().vars)
}

func TestSelfBookingWithKnownNationality(t *testing.T) {
	h := newHarness(t)
	h.backend.user = &backend.User{Name: "Asha Rao", FirstName: "Asha", Surname: "Rao", Gender: "F", DOB: "1992/03/04"}
	h.backend.nationality = "Indian"
	h.backend.address = &backend.Address{FullAddress: "12, Palm Court, Riyadh"}
	h.seed(t, selfBookingSession())

	res := h.send(t, "Self")
	assert.Equal(t, StatusSuccess, res.Status)

	require.Len(t, h.backend.addedPatients, 1)
	req := h.backend.addedPatients[0]
	assert.Equal(t, testID, req.Username)
	assert.Equal(t, "Asha Rao", req.PtName)
	assert.Equal(t, "F", req.Gender)
	assert.Equal(t, "1992/03/04", req.DOB)
	assert.Equal(t, testID, req.MobileNo)
	assert.Equal(t, "Indian", req.Nationality)
	assert.Nil(t, req.RelationCode)

	code, err := h.scratch.PatientCode(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "P100", code)

	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionExistingAddress, s.Action)
	assert.Equal(t, session.AddressConfirmOrEdit, s.Address.Step)
	assert.Equal(t, sentTemplate{to: testAddress, sid: "HX_existing_address", vars: map[string]string{"1": "12, Palm Court, Riyadh"}}, h.messenger.lastTemplate())
}

func TestSelfBookingAsksSurnameAndNationality(t *testing.T) {
	h := newHarness(t)
	h.backend.user = &backend.User{Name: "Asha", Gender: "F", DOB: "1992/03/04"}
	h.seed(t, selfBookingSession())

	h.send(t, "self")
	assert.Equal(t, session.SelfAskSurname, h.session(t).SelfBooking.Step)
	assert.Equal(t, askSurname, h.messenger.lastText())

	res := h.send(t, "  ")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, emptySurname, h.messenger.lastText())

	h.send(t, "Rao")
	assert.Equal(t, session.SelfAskNationality, h.session(t).SelfBooking.Step)
	assert.Equal(t, "HX_nationality", h.messenger.lastTemplate().sid)
	require.Len(t, h.backend.savedDetails, 1)
	assert.Equal(t, "Rao", h.backend.savedDetails[0].Surname)

	res = h.send(t, "maybe")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "HX_nationality", h.messenger.lastTemplate().sid)

	h.send(t, "No")
	assert.Equal(t, session.SelfAskCustomNationality, h.session(t).SelfBooking.Step)

	res = h.send(t, "new zealander")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidNationality, h.messenger.lastText())

	h.send(t, "indian")
	require.Len(t, h.backend.addedPatients, 1)
	assert.Equal(t, "Indian", h.backend.addedPatients[0].Nationality)
	assert.Equal(t, "Rao", h.backend.addedPatients[0].Surname)
	assert.Equal(t, "Indian", h.backend.savedDetails[len(h.backend.savedDetails)-1].Nationality)

	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionNewAddress, s.Action)
	assert.Equal(t, askDoor, h.messenger.lastText())
}

func TestSelfBookingYesMeansSaudi(t *testing.T) {
	h := newHarness(t)
	h.backend.user = &backend.User{Name: "Omar Ali"}
	h.seed(t, &session.Session{
		Action: session.ActionSelfBooking,
		SelfBooking: &session.SelfBookingState{
			Step:   session.SelfAskNationality,
			Person: session.Person{FirstName: "Omar", Surname: "Ali", Mobile: testID},
		},
	})

	h.send(t, "Yes")
	require.Len(t, h.backend.addedPatients, 1)
	assert.Equal(t, "Saudi", h.backend.addedPatients[0].Nationality)
}

func TestSelfBookingLookupFailureEndsConversation(t *testing.T) {
	h := newHarness(t)
	h.backend.lookupErr = errors.New("timeout")
	h.seed(t, selfBookingSession())

	res := h.send(t, "Self")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, selfDetailsFailed, h.messenger.lastText())
	assert.Nil(t, h.session(t))
}

func TestSomeoneElseListsRegisteredPatients(t *testing.T) {
	h := newHarness(t)
	h.backend.patients = []backend.Patient{
		{Code: "P1", Name: "Asha Rao", Age: float64(32), AgePeriod: "Y", Gender: "F"},
		{Code: "P2", Name: "Ravi Rao", Age: "60", AgePeriod: "Y", Gender: "M"},
	}
	h.seed(t, selfBookingSession())

	h.send(t, "Someone else")
	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionOtherBooking, s.Action)
	require.Len(t, s.OtherBooking.Patients, 2)
	list := h.messenger.lastText()
	assert.Contains(t, list, "*1.* Asha Rao (32 Y, F)\n    ID: P1")
	assert.Contains(t, list, "*2.* Ravi Rao (60 Y, M)\n    ID: P2")
	assert.Equal(t, "HX_add_family", h.messenger.lastTemplate().sid)

	res := h.send(t, "3")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidSerial, h.messenger.lastText())

	h.send(t, "2")
	code, err := h.scratch.PatientCode(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "P2", code)
	assert.Equal(t, session.ActionNewAddress, h.session(t).Action)
}

func TestSomeoneElseWithoutPatientsStartsFamilyFlow(t *testing.T) {
	h := newHarness(t)
	h.seed(t, selfBookingSession())

	h.send(t, "someone else")
	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionFamilyMember, s.Action)
	assert.Equal(t, session.FamilyAskRelationship, s.Family.Step)
	assert.Equal(t, "HX_family_relationship", h.messenger.lastTemplate().sid)
}

func TestFamilyMemberRegistration(t *testing.T) {
	h := newHarness(t)
	h.backend.addPatientRes = &backend.AddPatientResult{PatientCode: "P555"}
	h.seed(t, &session.Session{Action: session.ActionFamilyMember, Family: &session.FamilyState{Step: session.FamilyAskRelationship}})

	res := h.send(t, "someone")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, session.FamilyAskRelationship, h.session(t).Family.Step)

	res = h.send(t, "9")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "HX_family_relationship", h.messenger.lastTemplate().sid)

	h.send(t, "2")
	assert.Equal(t, askTheirName, h.messenger.lastText())

	h.send(t, "ravi kumar rao")
	assert.Equal(t, "HX_family_nationality", h.messenger.lastTemplate().sid)

	h.send(t, "No")
	assert.Equal(t, askTheirNationality, h.messenger.lastText())

	h.send(t, "indian")
	assert.Equal(t, askTheirDOB, h.messenger.lastText())

	res = h.send(t, "1960-13-01")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, retryTheirDOB, h.messenger.lastText())

	h.send(t, "01-02-1960")
	assert.Equal(t, "HX_family_gender", h.messenger.lastTemplate().sid)

	h.send(t, "male")
	assert.Equal(t, askTheirMobile, h.messenger.lastText())

	res = h.send(t, "12345")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, retryTheirMobile, h.messenger.lastText())

	h.send(t, "9123456780")
	require.Len(t, h.backend.addedPatients, 1)
	req := h.backend.addedPatients[0]
	assert.Equal(t, "Ravi Rao", req.PtName)
	assert.Equal(t, "Ravi", req.FirstName)
	assert.Equal(t, "Rao", req.Surname)
	assert.Equal(t, "1960/02/01", req.DOB)
	assert.Equal(t, "M", req.Gender)
	assert.Equal(t, "9123456780", req.MobileNo)
	assert.Equal(t, "Indian", req.Nationality)
	require.NotNil(t, req.RelationCode)
	assert.Equal(t, "004", *req.RelationCode)

	relation, err := h.scratch.Relation(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "Father", relation)
	assert.Equal(t, session.ActionNewAddress, h.session(t).Action)
}

func TestFamilyBookingConfirmationNamesRelation(t *testing.T) {
	h := newHarness(t)
	h.backend.bookingNo = "BK0000246810"
	h.media.media = &messaging.Media{ContentType: "image/png", Data: []byte("png-bytes")}
	h.seed(t, &session.Session{
		Action: session.ActionFamilyMember,
		Family: &session.FamilyState{
			Step: session.FamilyAskMobile,
			Person: session.Person{
				FirstName: "Meera", Surname: "Rao", DOB: "1965/07/09", Gender: "F",
				Nationality: "Indian", RelationCode: "003", Relation: "Mother",
			},
		},
	})

	h.send(t, "9123456780")
	require.Equal(t, session.ActionNewAddress, h.session(t).Action)
	for _, reply := range []string{"12, Sunshine Apartment", "Abha Street", "13525", "1", "yes"} {
		h.send(t, reply)
	}
	require.Equal(t, session.ActionPrescription, h.session(t).Action)
	for _, reply := range []string{"Walk In", "15/01/2025", "Evening", "2"} {
		h.send(t, reply)
	}
	require.Equal(t, session.PrescriptionUpload, h.session(t).Prescription.Step)

	res := h.sendMedia(t, "https://api.twilio.com/media/ME2")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, strings.HasPrefix(res.Message, "Booking successful for your Mother! Booking Number: 246810."), res.Message)
	require.Len(t, h.backend.submitted, 1)
	assert.Equal(t, "P100", h.backend.submitted[0].PatientCode)

	relation, err := h.scratch.Relation(context.Background(), testID)
	require.NoError(t, err)
	assert.Empty(t, relation, "relation is cleared after booking")
}

func TestSelectingRegisteredPatientResetsRelation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.scratch.SetRelation(context.Background(), testID, "Father"))
	h.seed(t, &session.Session{
		Action: session.ActionOtherBooking,
		OtherBooking: &session.OtherBookingState{
			Step:     session.OtherAskPatient,
			Patients: []session.Patient{{Code: "P200", Name: "Asha Rao"}},
		},
	})

	h.send(t, "1")
	relation, err := h.scratch.Relation(context.Background(), testID)
	require.NoError(t, err)
	assert.Empty(t, relation)
	code, err := h.scratch.PatientCode(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "P200", code)
}

func TestGatewayDuplicatePatientKeepsFirstCachedCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.scratch.RememberPatientCode(context.Background(), testID, "P-FIRST")
	require.NoError(t, err)
	h.backend.addPatientRes = &backend.AddPatientResult{PatientCode: "P777", Duplicate: true}
	h.seed(t, &session.Session{
		Action: session.ActionFamilyMember,
		Family: &session.FamilyState{
			Step: session.FamilyAskMobile,
			Person: session.Person{
				FirstName: "Ravi", Surname: "Rao", DOB: "1960/02/01", Gender: "M",
				Nationality: "Indian", RelationCode: "004", Relation: "Father",
			},
		},
	})

	res := h.send(t, "9123456780")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"Indian"}, h.backend.updates)

	code, err := h.scratch.PatientCode(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "P-FIRST", code)
	assert.Equal(t, session.ActionNewAddress, h.session(t).Action)
	for _, text := range h.messenger.texts {
		assert.NotEqual(t, askTheirName, text, "known data is not asked again")
	}
}

func TestGatewayFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.backend.addPatientErr = errors.New("add_patient: backend: request rejected")
	h.seed(t, &session.Session{
		Action: session.ActionFamilyMember,
		Family: &session.FamilyState{Step: session.FamilyAskMobile, Person: session.Person{FirstName: "Ravi", Surname: "Rao"}},
	})

	res := h.send(t, "9123456780")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, gatewayRetry, h.messenger.lastText())
	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.FamilyAskMobile, s.Family.Step)
}

func TestNewAddressFlow(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionNewAddress, Address: &session.AddressState{Step: session.AddressAskDoor}})

	h.send(t, "12, Sunshine Apartment")
	assert.Equal(t, askLocality, h.messenger.lastText())
	h.send(t, "Abha Street")
	assert.Equal(t, askZip, h.messenger.lastText())

	res := h.send(t, "1352")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidZip, h.messenger.lastText())

	h.send(t, "13525")
	assert.Equal(t, "HX_province", h.messenger.lastTemplate().sid)

	res = h.send(t, "9")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "HX_province", h.messenger.lastTemplate().sid)
	assert.Equal(t, session.AddressAskProvince, h.session(t).Address.Step)

	h.send(t, "3")
	assert.Equal(t, "HX_address_confirm", h.messenger.lastTemplate().sid)

	res = h.send(t, "yes")
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, h.backend.addedAddresses, 1)
	assert.Equal(t, backend.AddressRequest{
		Username: testID, AddressType: "01", Street: "12, Sunshine Apartment", Place: "Abha Street",
		City: "Dammam", State: "Eastern Province", Country: "Saudi Arabia", Pincode: "13525",
		Location: "Updated Location", Landmark: "Updated Landmark", Latitude: "14.025649", Longitude: "79.125487",
	}, h.backend.addedAddresses[0])
	assert.Contains(t, h.messenger.texts, addressAdded)

	s := h.session(t)
	require.NotNil(t, s)
	assert.Equal(t, session.ActionPrescription, s.Action)
	assert.Equal(t, "HX_booking_options", h.messenger.lastTemplate().sid)
}

func TestNewAddressRestartOnNo(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionNewAddress, Address: &session.AddressState{
		Step: session.AddressConfirm, Door: "12", Locality: "Abha", Zip: "13525", City: "Riyadh",
	}})

	h.send(t, "No")
	s := h.session(t)
	assert.Equal(t, session.AddressAskDoor, s.Address.Step)
	assert.Empty(t, s.Address.Door)
	assert.Equal(t, restartAddress, h.messenger.lastText())
}

func TestAddressAlreadyMappedContinues(t *testing.T) {
	h := newHarness(t)
	h.backend.saveAddressErr = backend.ErrAddressExists
	h.seed(t, &session.Session{Action: session.ActionNewAddress, Address: &session.AddressState{
		Step: session.AddressConfirm, Door: "12", Locality: "Abha", Zip: "13525", City: "Riyadh", Region: "Riyadh Region", Country: "Saudi Arabia",
	}})

	res := h.send(t, "Yes")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, session.ActionPrescription, h.session(t).Action)
}

func TestAddressSaveFailureEndsConversation(t *testing.T) {
	h := newHarness(t)
	h.backend.saveAddressErr = errors.New("500")
	h.seed(t, &session.Session{Action: session.ActionNewAddress, Address: &session.AddressState{Step: session.AddressConfirm}})

	res := h.send(t, "yes")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, addressAddFailed, h.messenger.lastText())
	assert.Nil(t, h.session(t))
}

func TestExistingAddressEditUsesEditEndpoint(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionExistingAddress, Address: &session.AddressState{
		Step: session.AddressConfirmOrEdit, FullAddress: "old",
	}})

	h.send(t, "no")
	assert.True(t, h.session(t).Address.Edit)
	h.send(t, "7, Rose Villa")
	h.send(t, "King Road")
	h.send(t, "21577")
	h.send(t, "2")
	h.send(t, "yes")

	assert.Empty(t, h.backend.addedAddresses)
	require.Len(t, h.backend.editedAddresses, 1)
	assert.Equal(t, "Jeddah", h.backend.editedAddresses[0].City)
	assert.Equal(t, "Makkah Region", h.backend.editedAddresses[0].State)
	assert.Contains(t, h.messenger.texts, addressSaved)
	assert.Equal(t, session.ActionPrescription, h.session(t).Action)
}

func TestExistingAddressConfirmed(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionExistingAddress, Address: &session.AddressState{Step: session.AddressConfirmOrEdit, FullAddress: "old"}})

	res := h.send(t, "maybe")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, map[string]string{"1": "old"}, h.messenger.lastTemplate().vars)

	h.send(t, "Yes")
	assert.Equal(t, session.ActionPrescription, h.session(t).Action)
}

func prescriptionSession(step session.PrescriptionStep) *session.Session {
	return &session.Session{Action: session.ActionPrescription, Prescription: &session.PrescriptionState{
		Step: step, BookingType: "H", VisitDate: "2025/01/15", Period: "morning", VisitTime: "09:50", PatientCode: "P100",
	}}
}

func TestPrescriptionBookingWithCachedPatient(t *testing.T) {
	h := newHarness(t)
	_, err := h.scratch.RememberPatientCode(context.Background(), testID, "P100")
	require.NoError(t, err)
	h.backend.bookingNo = "BK0123456789"
	h.backend.bookings = &backend.BookingList{Raw: json.RawMessage(`{"SuccessFlag":"true"}`)}
	h.media.media = &messaging.Media{ContentType: "image/jpeg", Data: []byte("jpeg-bytes")}
	h.seed(t, &session.Session{Action: session.ActionPrescription, Prescription: &session.PrescriptionState{Step: session.PrescriptionAskBookingType}})

	res := h.send(t, "delivery")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "HX_booking_options", h.messenger.lastTemplate().sid)

	h.send(t, "Home Collection")
	assert.Equal(t, askVisitDate, h.messenger.lastText())

	res = h.send(t, "14/01/2025")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidVisitDate, h.messenger.lastText())

	h.send(t, "15/01/2025")
	assert.Equal(t, "HX_day_slot", h.messenger.lastTemplate().sid)

	res = h.send(t, "night")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidPeriod, h.messenger.lastText())

	h.send(t, "Morning")
	assert.Equal(t, "HX_morning", h.messenger.lastTemplate().sid)

	res = h.send(t, "9")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidSlot, h.messenger.lastText())

	h.send(t, "3")
	s := h.session(t)
	assert.Equal(t, session.PrescriptionUpload, s.Prescription.Step)
	assert.Equal(t, "09:50", s.Prescription.VisitTime)
	assert.Equal(t, "P100", s.Prescription.PatientCode)
	assert.Equal(t, askUpload, h.messenger.lastText())

	res = h.send(t, "here it is")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, noImage, h.messenger.lastText())

	res = h.sendMedia(t, "https://api.twilio.com/media/ME1")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "Booking Number: 456789.")
	assert.True(t, strings.HasPrefix(res.Message, "Booking successful! Booking Number"), res.Message)
	require.Len(t, h.backend.submitted, 1)
	assert.Equal(t, backend.PrescriptionBooking{
		Username: testID, BookingType: "H", VisitDate: "2025/01/15", VisitTime: "09:50",
		PatientCode: "P100", FileExtension: "jpeg", File: []byte("jpeg-bytes"),
	}, h.backend.submitted[0])

	require.Len(t, h.backend.savedBookings, 1)
	assert.JSONEq(t, `{"SuccessFlag":"true"}`, string(h.backend.savedBookings[0]))
	require.Len(t, h.archive.stored, 1)
	assert.Equal(t, "BK0123456789", h.archive.stored[0].BookingNo)
	assert.Equal(t, "jpeg", h.archive.stored[0].Extension)

	assert.Nil(t, h.session(t))
	code, err := h.scratch.PatientCode(context.Background(), testID)
	require.NoError(t, err)
	assert.Empty(t, code, "patient cache is cleared after booking")
}

func TestPrescriptionElapsedSlotRestartsPeriod(t *testing.T) {
	h := newHarness(t)
	h.seed(t, prescriptionSession(session.PrescriptionChooseSlot))

	res := h.send(t, "1")
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "'7 AM to 8 AM' has passed")
	assert.Contains(t, res.Message, "'09:10 AM'")
	assert.Equal(t, "HX_day_slot", h.messenger.lastTemplate().sid)
	s := h.session(t)
	assert.Equal(t, session.PrescriptionChoosePeriod, s.Prescription.Step)
	assert.Empty(t, s.Prescription.Period)
}

func TestPrescriptionAsksForPatientWhenNoneCached(t *testing.T) {
	h := newHarness(t)
	h.backend.patients = []backend.Patient{{Code: "P1", Name: "Asha Rao"}, {Code: "P2", Name: "Ravi Rao"}}
	h.seed(t, prescriptionSession(session.PrescriptionChooseSlot))

	h.send(t, "4")
	s := h.session(t)
	assert.Equal(t, session.PrescriptionAskPatient, s.Prescription.Step)
	assert.Len(t, s.Prescription.Patients, 2)
	assert.True(t, strings.HasPrefix(h.messenger.lastText(), "👩‍⚕️ *Patient Details*"))

	res := h.send(t, "0")
	assert.Equal(t, StatusError, res.Status)

	h.send(t, "2")
	s = h.session(t)
	assert.Equal(t, "P2", s.Prescription.PatientCode)
	assert.Equal(t, session.PrescriptionUpload, s.Prescription.Step)
	assert.Empty(t, s.Prescription.Patients)
}

func TestPrescriptionWithoutPatientsEndsConversation(t *testing.T) {
	h := newHarness(t)
	h.seed(t, prescriptionSession(session.PrescriptionChooseSlot))

	res := h.send(t, "4")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, noPatients, h.messenger.lastText())
	assert.Nil(t, h.session(t))
}

func TestPrescriptionRejectsNonImage(t *testing.T) {
	h := newHarness(t)
	h.media.media = &messaging.Media{ContentType: "application/pdf", Data: []byte("%PDF")}
	h.seed(t, prescriptionSession(session.PrescriptionUpload))

	res := h.sendMedia(t, "https://api.twilio.com/media/ME2")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, invalidFileType, h.messenger.lastText())
	assert.Empty(t, h.backend.submitted)
	assert.Equal(t, session.PrescriptionUpload, h.session(t).Prescription.Step)
}

func TestPrescriptionDownloadFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.media.err = errors.New("status 404")
	h.seed(t, prescriptionSession(session.PrescriptionUpload))

	res := h.sendMedia(t, "https://api.twilio.com/media/ME3")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, downloadFailed, h.messenger.lastText())
	assert.NotNil(t, h.session(t))
}

func TestPrescriptionOversizedImageIsNotBooked(t *testing.T) {
	h := newHarness(t)
	h.media.err = fmt.Errorf("messaging: media exceeds limit: %w", messaging.ErrMediaTooLarge)
	h.seed(t, prescriptionSession(session.PrescriptionUpload))

	res := h.sendMedia(t, "https://api.twilio.com/media/ME5")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, downloadFailed, h.messenger.lastText())
	assert.Empty(t, h.backend.submitted)
	assert.Equal(t, session.PrescriptionUpload, h.session(t).Prescription.Step)
}

func TestPrescriptionBookingRejected(t *testing.T) {
	h := newHarness(t)
	h.backend.submitErr = errors.New("booking_presc: rejected")
	h.media.media = &messaging.Media{ContentType: "image/png", Data: []byte("png")}
	h.seed(t, prescriptionSession(session.PrescriptionUpload))

	res := h.sendMedia(t, "https://api.twilio.com/media/ME4")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, bookingFailed, h.messenger.lastText())
	assert.Nil(t, h.session(t))
	assert.Empty(t, h.archive.stored)
}

func sampleBookings() *backend.BookingList {
	return &backend.BookingList{Bookings: []backend.Booking{
		{Number: "B1", Date: "2025/01/10", PatientName: "Asha Rao", ReportStatus: "Ready", BookingStatus: "Completed", BranchName: "Olaya"},
		{Number: "B2", Date: "2025/01/10", PatientName: "Asha Rao", ReportStatus: "Pending", BookingStatus: "Booked", BranchName: "Olaya"},
	}}
}

func TestBookingDetails(t *testing.T) {
	h := newHarness(t)
	h.backend.bookings = sampleBookings()
	h.seed(t, &session.Session{Action: session.ActionExistingUser, Menu: &session.MenuState{Step: session.MenuAwaitingOption}})

	h.send(t, "Booking details")
	tpl := h.messenger.lastTemplate()
	assert.Equal(t, "HX_booking_details", tpl.sid)
	assert.Equal(t, map[string]string{
		"1": "10/01/2025 Asha",
		"2": "10/01/2025 Asha (2)",
		"3": "No Booking Available",
	}, tpl.vars)

	res := h.send(t, "3")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "No booking found for the selected option: 3. Please choose a valid option.", res.Message)

	res = h.send(t, "2")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "Report Status: Pending")
	assert.Contains(t, res.Message, "Branch Name: Olaya")
	assert.Nil(t, h.session(t))
}

func TestBookingListEmpty(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &session.Session{Action: session.ActionExistingUser, Menu: &session.MenuState{Step: session.MenuAwaitingOption}})

	res := h.send(t, "download reports")
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, noBookings, res.Message)
	assert.Nil(t, h.session(t))
}

func TestDownloadReport(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status string
		text   string
	}{
		{"ready", "https://reports.example/B1.pdf", nil, StatusSuccess, "https://reports.example/B1.pdf"},
		{"not ready", "", backend.ErrNotFound, StatusNotFound, noReports},
		{"server error", "", errors.New("500"), StatusError, reportFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.bookings = sampleBookings()
			h.backend.reportURL, h.backend.reportErr = tt.url, tt.err
			h.seed(t, &session.Session{Action: session.ActionExistingUser, Menu: &session.MenuState{Step: session.MenuAwaitingOption}})

			h.send(t, "Download reports")
			res := h.send(t, "1")
			assert.Equal(t, tt.status, res.Status)
			assert.Contains(t, h.messenger.lastText(), tt.text)
			assert.Nil(t, h.session(t), "the report flow always ends the conversation")
		})
	}
}

func TestBookingButtonsFitAndStayUnique(t *testing.T) {
	long := session.Booking{Date: "2025/01/10", PatientName: "Bartholomewington Smith"}
	vars := bookingButtons([]session.Booking{long, long, long})
	seen := map[string]bool{}
	for _, k := range []string{"1", "2", "3"} {
		label := vars[k]
		assert.LessOrEqual(t, len([]rune(label)), maxButtonLabel, label)
		assert.False(t, seen[label], "duplicate label %q", label)
		seen[label] = true
	}
	assert.True(t, strings.HasPrefix(vars["1"], "10/01/2025 Barthol"))
	assert.Equal(t, "B1", shortBookingNo("B1"))
	assert.Equal(t, "456789", shortBookingNo("BK0123456789"))
}
