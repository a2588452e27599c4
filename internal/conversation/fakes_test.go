package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lab-booking-bot/internal/archive"
	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/session"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

const (
	testSender  = "whatsapp:+919876543210"
	testID      = "9876543210"
	testAddress = "whatsapp:+919876543210"
)

var (
	testLoc = time.FixedZone("IST", 5*60*60+30*60)
	testNow = time.Date(2025, 1, 15, 9, 10, 0, 0, testLoc)
)

var testTemplates = config.Templates{
	ExistingUserOptions:     "HX_menu",
	GenderNewUser:           "HX_gender",
	Relationship:            "HX_relationship",
	SomeoneElseRelationship: "HX_family_relationship",
	PatientNationality:      "HX_family_nationality",
	SomeoneElseGender:       "HX_family_gender",
	Nationality:             "HX_nationality",
	Province:                "HX_province",
	AddressConfirmation:     "HX_address_confirm",
	ExistingAddress:         "HX_existing_address",
	BookingOptions:          "HX_booking_options",
	DaySlot:                 "HX_day_slot",
	MorningSlot:             "HX_morning",
	AfternoonSlot:           "HX_afternoon",
	EveningSlot:             "HX_evening",
	BookingDetails:          "HX_booking_details",
	AddFamilyPatient:        "HX_add_family",
}

type fakeBackend struct {
	user      *backend.User
	lookupErr error

	registered  []backend.UserRegistration
	registerErr error

	patients    []backend.Patient
	patientsErr error

	addPatientRes *backend.AddPatientResult
	addPatientErr error
	addedPatients []backend.PatientRequest

	address         *backend.Address
	addressErr      error
	addedAddresses  []backend.AddressRequest
	editedAddresses []backend.AddressRequest
	saveAddressErr  error

	bookings    *backend.BookingList
	bookingsErr error

	submitted []backend.PrescriptionBooking
	bookingNo string
	submitErr error

	reportURL string
	reportErr error

	savedBookings []json.RawMessage

	nationality    string
	nationalityErr error
	surname        string
	surnameErr     error
	savedDetails   []backend.UserDetails
	saveDetailsErr error
	updates        []string
}

func (f *fakeBackend) LookupUser(context.Context, string) (*backend.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.user == nil {
		return nil, backend.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeBackend) RegisterUser(_ context.Context, reg backend.UserRegistration) error {
	f.registered = append(f.registered, reg)
	return f.registerErr
}

func (f *fakeBackend) ListPatients(context.Context, string) ([]backend.Patient, error) {
	if f.patientsErr != nil {
		return nil, f.patientsErr
	}
	if len(f.patients) == 0 {
		return nil, backend.ErrNotFound
	}
	return f.patients, nil
}

func (f *fakeBackend) AddPatient(_ context.Context, req backend.PatientRequest) (*backend.AddPatientResult, error) {
	f.addedPatients = append(f.addedPatients, req)
	if f.addPatientErr != nil {
		return nil, f.addPatientErr
	}
	if f.addPatientRes == nil {
		return &backend.AddPatientResult{PatientCode: "P100"}, nil
	}
	return f.addPatientRes, nil
}

func (f *fakeBackend) GetAddress(context.Context, string) (*backend.Address, error) {
	if f.addressErr != nil {
		return nil, f.addressErr
	}
	if f.address == nil {
		return nil, backend.ErrNotFound
	}
	return f.address, nil
}

func (f *fakeBackend) AddAddress(_ context.Context, req backend.AddressRequest) error {
	f.addedAddresses = append(f.addedAddresses, req)
	return f.saveAddressErr
}

func (f *fakeBackend) EditAddress(_ context.Context, req backend.AddressRequest) error {
	f.editedAddresses = append(f.editedAddresses, req)
	return f.saveAddressErr
}

func (f *fakeBackend) ListBookings(context.Context, string) (*backend.BookingList, error) {
	if f.bookingsErr != nil {
		return nil, f.bookingsErr
	}
	if f.bookings == nil {
		return &backend.BookingList{}, nil
	}
	return f.bookings, nil
}

func (f *fakeBackend) SubmitPrescriptionBooking(_ context.Context, b backend.PrescriptionBooking) (string, error) {
	f.submitted = append(f.submitted, b)
	return f.bookingNo, f.submitErr
}

func (f *fakeBackend) DownloadReport(context.Context, string) (string, error) {
	return f.reportURL, f.reportErr
}

func (f *fakeBackend) SaveBookings(_ context.Context, raw json.RawMessage) error {
	f.savedBookings = append(f.savedBookings, raw)
	return nil
}

func (f *fakeBackend) CheckNationality(context.Context, string) (string, error) {
	return f.nationality, f.nationalityErr
}

func (f *fakeBackend) CheckSurname(context.Context, string) (string, error) {
	return f.surname, f.surnameErr
}

func (f *fakeBackend) SaveUserDetails(_ context.Context, d backend.UserDetails) error {
	f.savedDetails = append(f.savedDetails, d)
	return f.saveDetailsErr
}

func (f *fakeBackend) UpdateNationality(_ context.Context, _ string, nationality string) error {
	f.updates = append(f.updates, nationality)
	return nil
}

type sentTemplate struct {
	to   string
	sid  string
	vars map[string]string
}

type fakeMessenger struct {
	texts       []string
	templates   []sentTemplate
	recipients  []string
	textErr     error
	templateErr error
}

func (m *fakeMessenger) SendText(_ context.Context, to, body string) error {
	m.recipients = append(m.recipients, to)
	if m.textErr != nil {
		return m.textErr
	}
	m.texts = append(m.texts, body)
	return nil
}

func (m *fakeMessenger) SendTemplate(_ context.Context, to, sid string, vars map[string]string) (string, error) {
	m.recipients = append(m.recipients, to)
	if m.templateErr != nil {
		return "", m.templateErr
	}
	m.templates = append(m.templates, sentTemplate{to: to, sid: sid, vars: vars})
	return fmt.Sprintf("SM%03d", len(m.templates)), nil
}

func (m *fakeMessenger) lastText() string {
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

func (m *fakeMessenger) lastTemplate() sentTemplate {
	if len(m.templates) == 0 {
		return sentTemplate{}
	}
	return m.templates[len(m.templates)-1]
}

type fakeMedia struct {
	media *messaging.Media
	err   error
	urls  []string
}

func (f *fakeMedia) Fetch(_ context.Context, url string) (*messaging.Media, error) {
	f.urls = append(f.urls, url)
	return f.media, f.err
}

type fakeArchive struct {
	stored []archive.Prescription
}

func (a *fakeArchive) ArchivePrescription(_ context.Context, p archive.Prescription) (string, error) {
	a.stored = append(a.stored, p)
	return "prescriptions/" + p.BookingNo, nil
}

type harness struct {
	d         *Dispatcher
	backend   *fakeBackend
	messenger *fakeMessenger
	media     *fakeMedia
	archive   *fakeArchive
	store     *session.MemoryStore
	scratch   *session.MemoryScratch
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend:   &fakeBackend{},
		messenger: &fakeMessenger{},
		media:     &fakeMedia{},
		archive:   &fakeArchive{},
		store:     session.NewMemoryStore(),
		scratch:   session.NewMemoryScratch(),
	}
	h.d = NewDispatcher(Options{
		Backend:   h.backend,
		Messenger: h.messenger,
		Media:     h.media,
		Store:     h.store,
		Scratch:   h.scratch,
		Archive:   h.archive,
		Templates: testTemplates,
		Location:  testLoc,
		Now:       func() time.Time { return testNow },
		Logger:    logging.NewWithWriter("error", io.Discard),
	})
	return h
}

// send processes a text message from the test sender.
func (h *harness) send(t *testing.T, body string) Result {
	t.Helper()
	res, err := h.d.Process(context.Background(), Inbound{From: testSender, Body: body})
	require.NoError(t, err)
	return res
}

func (h *harness) sendMedia(t *testing.T, mediaURL string) Result {
	t.Helper()
	res, err := h.d.Process(context.Background(), Inbound{From: testSender, MediaURL: mediaURL})
	require.NoError(t, err)
	return res
}

func (h *harness) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), testID)
	require.NoError(t, err)
	return s
}

func (h *harness) seed(t *testing.T, s *session.Session) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), testID, s))
}
