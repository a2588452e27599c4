// Package session holds per-user conversation state: which flow a user is in,
// the step within that flow, and the data collected so far.
package session

// Action names the flow that owns a session.
type Action string

const (
	ActionExistingUser    Action = "existing_user"
	ActionRegistration    Action = "user_registration"
	ActionSelfBooking     Action = "booking_person"
	ActionOtherBooking    Action = "other_booking"
	ActionFamilyMember    Action = "family_member_booking"
	ActionNewAddress      Action = "add_new_address"
	ActionExistingAddress Action = "existing_address"
	ActionPrescription    Action = "booking_with_prescription"
	ActionBookingDetails  Action = "booking_details"
	ActionDownloadReport  Action = "download_report"
)

// Session is a tagged union. Action selects which of the state pointers is
// populated; the others are nil.
type Session struct {
	Action Action `json:"action"`

	Menu         *MenuState         `json:"menu,omitempty"`
	Registration *RegistrationState `json:"registration,omitempty"`
	SelfBooking  *SelfBookingState  `json:"self_booking,omitempty"`
	OtherBooking *OtherBookingState `json:"other_booking,omitempty"`
	Family       *FamilyState       `json:"family,omitempty"`
	Address      *AddressState      `json:"address,omitempty"`
	Prescription *PrescriptionState `json:"prescription,omitempty"`
	Bookings     *BookingListState  `json:"bookings,omitempty"`
}

// Step returns the current step of the populated variant, or "".
func (s *Session) Step() string {
	if s == nil {
		return ""
	}
	switch {
	case s.Menu != nil:
		return string(s.Menu.Step)
	case s.Registration != nil:
		return string(s.Registration.Step)
	case s.SelfBooking != nil:
		return string(s.SelfBooking.Step)
	case s.OtherBooking != nil:
		return string(s.OtherBooking.Step)
	case s.Family != nil:
		return string(s.Family.Step)
	case s.Address != nil:
		return string(s.Address.Step)
	case s.Prescription != nil:
		return string(s.Prescription.Step)
	case s.Bookings != nil:
		return string(s.Bookings.Step)
	}
	return ""
}

// Person is the profile collected for a patient.
type Person struct {
	FirstName    string `json:"first_name,omitempty"`
	MiddleName   string `json:"middle_name,omitempty"`
	Surname      string `json:"surname,omitempty"`
	Gender       string `json:"gender,omitempty"`
	DOB          string `json:"dob,omitempty"`
	Mobile       string `json:"mobile,omitempty"`
	Nationality  string `json:"nationality,omitempty"`
	RelationCode string `json:"relation_code,omitempty"`
	Relation     string `json:"relation,omitempty"`
}

type MenuStep string

const MenuAwaitingOption MenuStep = "awaiting_option"

type MenuState struct {
	Step MenuStep `json:"step"`
	Name string   `json:"name,omitempty"`
}

type RegistrationStep string

const (
	RegistrationAskName   RegistrationStep = "ask_name"
	RegistrationAskGender RegistrationStep = "ask_gender"
	RegistrationAskDOB    RegistrationStep = "ask_dob"
)

type RegistrationState struct {
	Step   RegistrationStep `json:"step"`
	Person Person           `json:"person"`
}

type SelfBookingStep string

const (
	SelfAskBookingPerson     SelfBookingStep = "ask_booking_person"
	SelfAskSurname           SelfBookingStep = "ask_surname_self"
	SelfAskNationality       SelfBookingStep = "ask_nationality"
	SelfAskCustomNationality SelfBookingStep = "ask_custom_nationality"
)

type SelfBookingState struct {
	Step   SelfBookingStep `json:"step"`
	Person Person          `json:"person"`
}

type OtherBookingStep string

const OtherAskPatient OtherBookingStep = "ask_patient_selection"

type OtherBookingState struct {
	Step     OtherBookingStep `json:"step"`
	Patients []Patient        `json:"patients,omitempty"`
}

type FamilyStep string

const (
	FamilyAskRelationship      FamilyStep = "ask_relationship"
	FamilyAskName              FamilyStep = "ask_other_person_name"
	FamilyAskNationality       FamilyStep = "ask_other_person_nationality"
	FamilyAskCustomNationality FamilyStep = "ask_other_person_custom_nationality"
	FamilyAskDOB               FamilyStep = "ask_other_person_dob"
	FamilyAskGender            FamilyStep = "ask_other_person_gender"
	FamilyAskMobile            FamilyStep = "ask_other_person_mobile"
)

type FamilyState struct {
	Step   FamilyStep `json:"step"`
	Person Person     `json:"person"`
}

type AddressStep string

const (
	AddressConfirmOrEdit AddressStep = "confirm_or_edit"
	AddressAskDoor       AddressStep = "ask_door_apartment"
	AddressAskLocality   AddressStep = "ask_locality"
	AddressAskZip        AddressStep = "ask_zip_code"
	AddressAskProvince   AddressStep = "ask_province"
	AddressConfirm       AddressStep = "confirm_address"
)

// AddressState serves both the new-address and the existing-address flows.
// Edit marks a replacement of a stored address rather than an addition.
type AddressState struct {
	Step        AddressStep `json:"step"`
	Edit        bool        `json:"edit,omitempty"`
	FullAddress string      `json:"full_address,omitempty"`
	Door        string      `json:"door_apartment,omitempty"`
	Locality    string      `json:"locality,omitempty"`
	Zip         string      `json:"zip_code,omitempty"`
	City        string      `json:"city,omitempty"`
	Region      string      `json:"region,omitempty"`
	Country     string      `json:"country,omitempty"`
}

type PrescriptionStep string

const (
	PrescriptionAskBookingType PrescriptionStep = "ask_booking_type"
	PrescriptionAskVisitDate   PrescriptionStep = "ask_visit_date"
	PrescriptionChoosePeriod   PrescriptionStep = "choose_period"
	PrescriptionChooseSlot     PrescriptionStep = "choose_slot"
	PrescriptionAskPatient     PrescriptionStep = "ask_patient_code"
	PrescriptionUpload         PrescriptionStep = "upload_prescription"
)

type PrescriptionState struct {
	Step        PrescriptionStep `json:"step"`
	BookingType string           `json:"booking_type,omitempty"`
	VisitDate   string           `json:"visit_date,omitempty"`
	Period      string           `json:"period,omitempty"`
	VisitTime   string           `json:"visit_time,omitempty"`
	PatientCode string           `json:"patient_code,omitempty"`
	Patients    []Patient        `json:"patients,omitempty"`
}

// Patient is one entry of the account's patient list.
type Patient struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Age       string `json:"age,omitempty"`
	AgePeriod string `json:"age_period,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

type BookingListStep string

const BookingAskSelection BookingListStep = "ask_booking_no"

// BookingListState caches at most three bookings; option "1" is Bookings[0].
type BookingListState struct {
	Step     BookingListStep `json:"step"`
	Bookings []Booking       `json:"bookings"`
}

// Booking is the snapshot shown to the user.
type Booking struct {
	Number        string `json:"booking_no"`
	Date          string `json:"booking_date"`
	PatientName   string `json:"patient_name"`
	ReportStatus  string `json:"report_status,omitempty"`
	BookingStatus string `json:"booking_status,omitempty"`
	BranchName    string `json:"branch_name,omitempty"`
}
