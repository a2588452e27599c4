package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	duplicatePatientText   = "Patient is already registered"
	duplicatePatientMarker = "Patient Code is :"
)

// LookupUser fetches the account registered for username. A 4xx response or
// a false SuccessFlag means the user is not registered and yields ErrNotFound.
func (c *Client) LookupUser(ctx context.Context, username string) (*User, error) {
	var env envelope
	err := c.doJSON(ctx, "user_view", http.MethodPost, c.endpoints.UserView, map[string]string{"Username": username}, &env)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !env.ok() {
		return nil, ErrNotFound
	}
	var user User
	if _, err := env.first(&user); err != nil {
		return nil, fmt.Errorf("user_view: %w", err)
	}
	return &user, nil
}

// RegisterUser creates the account.
func (c *Client) RegisterUser(ctx context.Context, reg UserRegistration) error {
	var env envelope
	if err := c.doJSON(ctx, "user_registration", http.MethodPost, c.endpoints.UserRegistration, reg, &env); err != nil {
		return err
	}
	if !env.ok() {
		return fmt.Errorf("user_registration: %w: %s", ErrRejected, env.messageText())
	}
	return nil
}

// ListPatients returns the patients registered under username.
func (c *Client) ListPatients(ctx context.Context, username string) ([]Patient, error) {
	var env envelope
	err := c.doJSON(ctx, "patient_list", http.MethodPost, c.endpoints.PatientList, map[string]string{"Username": username}, &env)
	if IsStatus(err, http.StatusNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, fmt.Errorf("patient_list: %w", ErrRejected)
	}
	var detail struct {
		Patients []Patient `json:"Patient_Detail"`
	}
	if _, err := env.first(&detail); err != nil {
		return nil, fmt.Errorf("patient_list: %w", err)
	}
	if len(detail.Patients) == 0 {
		return nil, ErrNotFound
	}
	return detail.Patients, nil
}

// AddPatient registers a patient under the account. A 404 that says the
// patient is already registered is not an error: the existing patient code is
// parsed from the message and returned with Duplicate set.
func (c *Client) AddPatient(ctx context.Context, req PatientRequest) (*AddPatientResult, error) {
	var env envelope
	err := c.doJSON(ctx, "add_patient", http.MethodPost, c.endpoints.AddPatient, req, &env)
	if err == nil && env.ok() {
		var item struct {
			PatientCode string `json:"Patient_Code"`
		}
		if _, err := env.first(&item); err != nil {
			return nil, fmt.Errorf("add_patient: %w", err)
		}
		if item.PatientCode == "" {
			return nil, fmt.Errorf("add_patient: %w: missing patient code", ErrRejected)
		}
		return &AddPatientResult{PatientCode: item.PatientCode}, nil
	}
	if IsStatus(err, http.StatusNotFound) {
		if code, ok := DuplicatePatientCode(env.messageText()); ok {
			return &AddPatientResult{PatientCode: code, Duplicate: true}, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("add_patient: %w: %s", ErrRejected, env.messageText())
}

// DuplicatePatientCode extracts the code from an "already registered" message.
func DuplicatePatientCode(message string) (string, bool) {
	if !strings.Contains(message, duplicatePatientText) {
		return "", false
	}
	_, after, found := strings.Cut(message, duplicatePatientMarker)
	if !found {
		return "", false
	}
	code := strings.TrimSpace(after)
	return code, code != ""
}
