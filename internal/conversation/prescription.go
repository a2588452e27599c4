package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/lab-booking-bot/internal/archive"
	"github.com/wolfman30/lab-booking-bot/internal/backend"
	"github.com/wolfman30/lab-booking-bot/internal/session"
)

const (
	askVisitDate      = "Please provide the visit date (DD/MM/YYYY):"
	invalidVisitDate  = "Invalid date. Please provide the visit date in DD/MM/YYYY format and ensure it is not in the past."
	invalidPeriod     = "Invalid selection. Please reply with 'Morning', 'Afternoon', or 'Evening'."
	invalidSlot       = "Invalid selection. Please choose a valid slot from the list."
	askUpload         = "Please upload the prescription image."
	noImage           = "No image detected. Please upload the prescription image."
	downloadFailed    = "Failed to download the prescription image. Please try uploading again."
	invalidFileType   = "Invalid file type detected. Please upload a valid prescription image (e.g., JPG, PNG)."
	noPatients        = "Sorry, no patient details found. Please try again later."
	bookingFailed     = "Booking failed. Please type 'Hi' to restart the conversation."
	slotLookupFailed  = "Something went wrong. Please try again."
	patientSerialHint = "\n👉 *Reply with the serial number* (e.g., 1, 2, etc.) of the patient you want to proceed with."
	bookingNoDigits   = 6
)

// prescriptionFlow books a visit from an uploaded prescription image.
type prescriptionFlow struct {
	*deps
}

func (f *prescriptionFlow) start(ctx context.Context, t *turn) outcome {
	t.session = &session.Session{
		Action:       session.ActionPrescription,
		Prescription: &session.PrescriptionState{Step: session.PrescriptionAskBookingType},
	}
	return f.prompt(ctx, t, StatusSuccess, f.templates.BookingOptions, nil)
}

func (f *prescriptionFlow) handle(ctx context.Context, t *turn) outcome {
	st := t.session.Prescription
	if st == nil {
		return f.unhandled(ctx, t)
	}
	switch st.Step {
	case session.PrescriptionAskBookingType:
		bookingType, ok := ParseBookingType(t.text)
		if !ok {
			return f.prompt(ctx, t, StatusError, f.templates.BookingOptions, nil)
		}
		st.BookingType = bookingType
		st.Step = session.PrescriptionAskVisitDate
		return f.say(ctx, t, StatusSuccess, askVisitDate)

	case session.PrescriptionAskVisitDate:
		visitDate, err := ParseVisitDate(t.text, t.now)
		if err != nil {
			return f.say(ctx, t, StatusError, invalidVisitDate)
		}
		st.VisitDate = visitDate
		st.Step = session.PrescriptionChoosePeriod
		return f.prompt(ctx, t, StatusSuccess, f.templates.DaySlot, nil)

	case session.PrescriptionChoosePeriod:
		p := strings.ToLower(t.text)
		if !validPeriod(p) {
			return f.say(ctx, t, StatusError, invalidPeriod)
		}
		st.Period = p
		st.Step = session.PrescriptionChooseSlot
		return f.prompt(ctx, t, StatusSuccess, f.periodTemplate(p), nil)

	case session.PrescriptionChooseSlot:
		return f.chooseSlot(ctx, t, st)

	case session.PrescriptionAskPatient:
		p, ok := pickPatient(st.Patients, t.text)
		if !ok {
			return f.say(ctx, t, StatusError, invalidSerial)
		}
		st.PatientCode = p.Code
		st.Patients = nil
		st.Step = session.PrescriptionUpload
		return f.say(ctx, t, StatusSuccess, askUpload)

	case session.PrescriptionUpload:
		return f.upload(ctx, t, st)
	}
	return f.unhandled(ctx, t)
}

func (f *prescriptionFlow) periodTemplate(p string) string {
	switch p {
	case "morning":
		return f.templates.MorningSlot
	case "afternoon":
		return f.templates.AfternoonSlot
	}
	return f.templates.EveningSlot
}

func (f *prescriptionFlow) chooseSlot(ctx context.Context, t *turn, st *session.PrescriptionState) outcome {
	slot, ok := SlotFor(st.Period, t.text)
	if !ok {
		return f.say(ctx, t, StatusError, invalidSlot)
	}
	visitTime, err := VisitTime(slot, st.VisitDate, t.now, f.loc)
	if errors.Is(err, ErrSlotElapsed) {
		st.Period = ""
		st.Step = session.PrescriptionChoosePeriod
		msg := fmt.Sprintf("The current time is '%s'. The selected slot '%s' has passed. Please choose a valid slot.",
			t.now.In(f.loc).Format("03:04 PM"), slot.Label())
		if out := f.say(ctx, t, StatusError, msg); out.Error != "" {
			return out
		}
		out := f.prompt(ctx, t, StatusError, f.templates.DaySlot, nil)
		out.Message = msg
		return out
	}
	if err != nil {
		return f.fail(ctx, t, slotLookupFailed, err)
	}
	st.VisitTime = visitTime
	t.log.Debug("visit time chosen", "visit_date", st.VisitDate, "visit_time", visitTime, "slot", slot.Label())

	code, err := f.scratch.PatientCode(ctx, t.id)
	if err != nil {
		t.log.Warn("failed to read cached patient code", "error", err)
	}
	if code != "" {
		st.PatientCode = code
		st.Step = session.PrescriptionUpload
		return f.say(ctx, t, StatusSuccess, askUpload)
	}

	list, err := f.backend.ListPatients(ctx, t.id)
	if err != nil {
		return f.fail(ctx, t, noPatients, err)
	}
	st.Patients = toSessionPatients(list)
	st.Step = session.PrescriptionAskPatient
	return f.say(ctx, t, StatusSuccess, patientListMessage(st.Patients)+patientSerialHint)
}

func (f *prescriptionFlow) upload(ctx context.Context, t *turn, st *session.PrescriptionState) outcome {
	if t.mediaURL == "" {
		return f.say(ctx, t, StatusError, noImage)
	}
	if f.media == nil {
		t.log.Error("no media fetcher configured")
		return f.say(ctx, t, StatusError, downloadFailed)
	}
	media, err := f.media.Fetch(ctx, t.mediaURL)
	if err != nil {
		t.log.Warn("prescription download failed", "error", err)
		out := f.say(ctx, t, StatusError, downloadFailed)
		out.Error = err.Error()
		return out
	}
	if !strings.HasPrefix(media.ContentType, "image/") {
		t.log.Info("rejected prescription upload", "content_type", media.ContentType)
		return f.say(ctx, t, StatusError, invalidFileType)
	}
	ext := strings.ToLower(strings.TrimPrefix(media.ContentType, "image/"))

	bookingNo, err := f.backend.SubmitPrescriptionBooking(ctx, backend.PrescriptionBooking{
		Username:      t.id,
		BookingType:   st.BookingType,
		VisitDate:     st.VisitDate,
		VisitTime:     st.VisitTime,
		PatientCode:   st.PatientCode,
		FileExtension: ext,
		File:          media.Data,
	})
	if err != nil {
		return f.fail(ctx, t, bookingFailed, err)
	}
	t.log.Info("prescription booking created", "booking_no", bookingNo, "patient_code", st.PatientCode)

	relation, err := f.scratch.Relation(ctx, t.id)
	if err != nil {
		t.log.Warn("failed to read relation", "error", err)
	}
	out := f.say(ctx, t, StatusSuccess, bookingConfirmation(relation, bookingNo))

	f.syncBookings(ctx, t)
	if f.archive != nil {
		if _, err := f.archive.ArchivePrescription(ctx, archive.Prescription{
			UserID:      t.id,
			BookingNo:   bookingNo,
			PatientCode: st.PatientCode,
			Extension:   ext,
			Data:        media.Data,
			UploadedAt:  t.now,
		}); err != nil {
			t.log.Warn("prescription archive failed", "error", err, "booking_no", bookingNo)
		}
	}

	t.clear()
	if err := f.scratch.Clear(ctx, t.id); err != nil {
		t.log.Warn("failed to clear patient cache", "error", err)
	}
	return out
}

// syncBookings forwards the refreshed booking list to the booking database.
func (f *prescriptionFlow) syncBookings(ctx context.Context, t *turn) {
	list, err := f.backend.ListBookings(ctx, t.id)
	if err != nil {
		t.log.Warn("failed to fetch bookings for sync", "error", err)
		return
	}
	if err := f.backend.SaveBookings(ctx, list.Raw); err != nil {
		t.log.Warn("failed to save bookings", "error", err)
	}
}

// bookingConfirmation names the family member the booking was made for, when
// one was registered in this conversation.
func bookingConfirmation(relation, bookingNo string) string {
	headline := "Booking successful!"
	if relation != "" {
		headline = fmt.Sprintf("Booking successful for your %s!", relation)
	}
	return fmt.Sprintf("%s Booking Number: %s.\n\nYou'll receive the invoice shortly.😊\nType *Hi* to start the conversation.",
		headline, shortBookingNo(bookingNo))
}

func shortBookingNo(no string) string {
	if len(no) <= bookingNoDigits {
		return no
	}
	return no[len(no)-bookingNoDigits:]
}
