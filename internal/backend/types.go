package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the wrapper every patient-app API response uses. SuccessFlag
// arrives as "true" or "True" depending on the endpoint.
type envelope struct {
	SuccessFlag string          `json:"SuccessFlag"`
	Message     json.RawMessage `json:"Message"`
}

func (e envelope) ok() bool {
	return strings.EqualFold(strings.TrimSpace(e.SuccessFlag), "true")
}

// first decodes Message[0] into out. It reports false when Message is not a
// non-empty array.
func (e envelope) first(out any) (bool, error) {
	var items []json.RawMessage
	if len(e.Message) == 0 || json.Unmarshal(e.Message, &items) != nil || len(items) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(items[0], out); err != nil {
		return false, fmt.Errorf("decode message: %w", err)
	}
	return true, nil
}

// messageText returns Message[0].Message, which carries error descriptions.
func (e envelope) messageText() string {
	var item struct {
		Message     string `json:"Message"`
		Description string `json:"Description"`
	}
	if ok, _ := e.first(&item); !ok {
		return ""
	}
	if item.Message != "" {
		return item.Message
	}
	return item.Description
}

// User is the account profile returned by user view.
type User struct {
	Name      string `json:"Name"`
	FirstName string `json:"First_Name"`
	Surname   string `json:"Sur_Name"`
	Gender    string `json:"User_Gender"`
	DOB       string `json:"User_DOB"`
	Mobile    string `json:"User_Mobile_No"`
}

// UserRegistration is the body of the user registration call.
type UserRegistration struct {
	Name     string `json:"Name"`
	UserName string `json:"UserName"`
	Gender   string `json:"Gender"`
	DOB      string `json:"DOB"`
	MobileNo string `json:"Mobile_No"`
}

// PatientRequest is the body of the add patient call. MedicalAid_No and
// Ref_Code are always sent as null.
type PatientRequest struct {
	Username     string  `json:"Username"`
	PtName       string  `json:"Pt_Name"`
	FirstName    string  `json:"First_Name"`
	Surname      string  `json:"Sur_Name"`
	DOB          string  `json:"Dob"`
	Gender       string  `json:"Gender"`
	MobileNo     string  `json:"Mobile_No"`
	Street       string  `json:"Street"`
	Place        string  `json:"Place"`
	City         string  `json:"City"`
	RelationCode *string `json:"RelationShip_Code"`
	MedicalAidNo *string `json:"MedicalAid_No"`
	RefCode      *string `json:"Ref_Code"`
	Nationality  string  `json:"Nationality"`
}

// AddPatientResult reports the patient code and whether the patient already existed.
type AddPatientResult struct {
	PatientCode string
	Duplicate   bool
}

// Patient is one entry of the patient list.
type Patient struct {
	Code      string `json:"Pt_Code"`
	Name      string `json:"Pt_Name"`
	Age       any    `json:"Pt_First_Age"`
	AgePeriod string `json:"Pt_First_Age_Period"`
	Gender    string `json:"Pt_Gender"`
}

// AgeText renders Pt_First_Age which the API sends as a number or a string.
func (p Patient) AgeText() string {
	switch v := p.Age.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// Address is one stored address.
type Address struct {
	FullAddress string `json:"Full_Address"`
	Street      string `json:"Street"`
	Place       string `json:"Place"`
	City        string `json:"City"`
}

// AddressRequest is the body of the add and edit address calls.
type AddressRequest struct {
	Username    string `json:"Username"`
	AddressType string `json:"Address_Type"`
	Street      string `json:"Street"`
	Place       string `json:"Place"`
	City        string `json:"City"`
	State       string `json:"State"`
	Country     string `json:"Country"`
	Pincode     string `json:"Pincode"`
	Location    string `json:"Location"`
	Landmark    string `json:"Landmark"`
	Latitude    string `json:"Latitude"`
	Longitude   string `json:"Longitude"`
}

// Booking is one entry of the booking list.
type Booking struct {
	Number        string `json:"Booking_No"`
	Date          string `json:"Booking_Date"`
	PatientName   string `json:"Pt_Name"`
	ReportStatus  string `json:"Report_Status"`
	BookingStatus string `json:"Booking_Status_Desc"`
	BranchName    string `json:"Branch_Name"`
}

// BookingList keeps the raw response so it can be forwarded to the booking store.
type BookingList struct {
	Bookings []Booking
	Raw      json.RawMessage
}

// PrescriptionBooking is the multipart booking submission.
type PrescriptionBooking struct {
	Username      string
	BookingType   string
	VisitDate     string
	VisitTime     string
	PatientCode   string
	FileExtension string
	File          []byte
}

// UserDetails is the profile copy kept by the booking database API.
type UserDetails struct {
	MobileAPI   string `json:"mobile_api"`
	FirstName   string `json:"first_name"`
	Surname     string `json:"surname"`
	Gender      string `json:"gender"`
	DOB         string `json:"dob"`
	Mobile      string `json:"mobile"`
	Nationality string `json:"nationality"`
}
