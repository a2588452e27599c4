package backend

import (
	"context"
	"net/http"
	"strings"
)

// The booking database API keeps the fields the patient-app API does not:
// nationality and, for older accounts, the surname.

// CheckNationality returns the saved nationality or "".
func (c *Client) CheckNationality(ctx context.Context, mobileAPI string) (string, error) {
	var out struct {
		Nationality string `json:"nationality"`
	}
	err := c.doJSON(ctx, "check_nationality", http.MethodPost, c.endpoints.CheckNationality, map[string]string{"mobile_api": mobileAPI}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Nationality), nil
}

// CheckSurname returns the saved surname or "".
func (c *Client) CheckSurname(ctx context.Context, mobileAPI string) (string, error) {
	var out struct {
		Surname string `json:"surname"`
	}
	err := c.doJSON(ctx, "check_surname", http.MethodPost, c.endpoints.CheckSurname, map[string]string{"mobile_api": mobileAPI}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Surname), nil
}

// SaveUserDetails upserts the profile copy. "User already exists" counts as success.
func (c *Client) SaveUserDetails(ctx context.Context, details UserDetails) error {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, "save_user_details", http.MethodPost, c.endpoints.SaveUserDetails, details, &out); err != nil {
		return err
	}
	c.logger.Debug("user details saved", "user", details.MobileAPI, "result", out.Message)
	return nil
}

// UpdateNationality overwrites the saved nationality.
func (c *Client) UpdateNationality(ctx context.Context, mobileAPI, nationality string) error {
	body := map[string]string{"mobile_api": mobileAPI, "nationality": strings.TrimSpace(nationality)}
	return c.doJSON(ctx, "update_nationality", http.MethodPut, c.endpoints.UpdateNationality, body, nil)
}
