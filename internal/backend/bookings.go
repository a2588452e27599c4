package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Fixed values the booking API expects for WhatsApp prescription bookings.
const (
	firmNo      = "01"
	addressType = "01"
	doctorCode  = "005006"
	clientType  = "P"
)

// ListBookings returns the account's bookings. An account without bookings
// yields an empty list, not an error.
func (c *Client) ListBookings(ctx context.Context, username string) (*BookingList, error) {
	var raw json.RawMessage
	err := c.doJSON(ctx, "booking_list", http.MethodPost, c.endpoints.BookingList, map[string]string{"Username": username}, &raw)
	if IsStatus(err, http.StatusNotFound) {
		return &BookingList{}, nil
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("booking_list: decode: %w", err)
	}
	if !env.ok() {
		return &BookingList{Raw: raw}, nil
	}
	var detail struct {
		Bookings []Booking `json:"Booking_Detail"`
	}
	if _, err := env.first(&detail); err != nil {
		return nil, fmt.Errorf("booking_list: %w", err)
	}
	return &BookingList{Bookings: detail.Bookings, Raw: raw}, nil
}

// SubmitPrescriptionBooking posts the multipart booking and returns the
// booking number the backend assigned.
func (c *Client) SubmitPrescriptionBooking(ctx context.Context, b PrescriptionBooking) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"UserName", b.Username},
		{"Booking_Type", b.BookingType},
		{"Firm_No", firmNo},
		{"Visit_Date", b.VisitDate},
		{"Visit_Time", b.VisitTime},
		{"Pt_Code", b.PatientCode},
		{"Address_Type", addressType},
		{"IsValidated", "False"},
		{"Doctor_Code", doctorCode},
		{"Client_Type", clientType},
		{"File_Extension1", b.FileExtension},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("booking_presc: write field: %w", err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="Prescription_File1"; filename="prescription.%s"`, b.FileExtension))
	header.Set("Content-Type", "image/"+b.FileExtension)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("booking_presc: create file part: %w", err)
	}
	if _, err := part.Write(b.File); err != nil {
		return "", fmt.Errorf("booking_presc: write file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("booking_presc: close multipart: %w", err)
	}

	var env envelope
	if err := c.do(ctx, "booking_presc", http.MethodPost, c.endpoints.BookingPresc, w.FormDataContentType(), buf.Bytes(), true, &env); err != nil {
		return "", err
	}
	if !env.ok() {
		return "", fmt.Errorf("booking_presc: %w: %s", ErrRejected, env.messageText())
	}
	var item struct {
		BookingNo string `json:"Booking_No"`
	}
	if _, err := env.first(&item); err != nil {
		return "", fmt.Errorf("booking_presc: %w", err)
	}
	return item.BookingNo, nil
}

// DownloadReport returns the report PDF URL for a booking or ErrNotFound.
func (c *Client) DownloadReport(ctx context.Context, bookingNo string) (string, error) {
	endpoint := strings.TrimRight(c.endpoints.DownloadReports, "/") + "/" + url.PathEscape(bookingNo)
	var out struct {
		PDFURL string `json:"pdf_url"`
	}
	err := c.doJSON(ctx, "download_report", http.MethodGet, endpoint, nil, &out)
	if IsStatus(err, http.StatusNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if out.PDFURL == "" {
		return "", fmt.Errorf("download_report: %w: pdf_url missing", ErrRejected)
	}
	return out.PDFURL, nil
}

// SaveBookings forwards a booking list response to the booking database.
func (c *Client) SaveBookings(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	return c.doJSON(ctx, "save_booking", http.MethodPost, c.endpoints.SaveBooking, raw, nil)
}
