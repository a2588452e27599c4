package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const addressMappedText = "This User is already mapped this address type!"

// ErrAddressExists means the account already has an address of this type.
var ErrAddressExists = errors.New("backend: address already mapped")

// GetAddress returns the first stored address for username or ErrNotFound.
func (c *Client) GetAddress(ctx context.Context, username string) (*Address, error) {
	var env envelope
	err := c.doJSON(ctx, "get_user_address", http.MethodPost, c.endpoints.GetUserAddress, map[string]string{"Username": username}, &env)
	if IsStatus(err, http.StatusNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, ErrNotFound
	}
	var item struct {
		Addresses []Address `json:"User_Address"`
	}
	if _, err := env.first(&item); err != nil {
		return nil, fmt.Errorf("get_user_address: %w", err)
	}
	if len(item.Addresses) == 0 {
		return nil, ErrNotFound
	}
	return &item.Addresses[0], nil
}

// AddAddress stores a new address. ErrAddressExists is returned when the
// backend reports the address type as already mapped.
func (c *Client) AddAddress(ctx context.Context, req AddressRequest) error {
	return c.saveAddress(ctx, "add_user_address", c.endpoints.AddUserAddress, req)
}

// EditAddress replaces the stored address.
func (c *Client) EditAddress(ctx context.Context, req AddressRequest) error {
	return c.saveAddress(ctx, "edit_user_address", c.endpoints.EditUserAddress, req)
}

func (c *Client) saveAddress(ctx context.Context, op, endpoint string, req AddressRequest) error {
	var env envelope
	err := c.doJSON(ctx, op, http.MethodPost, endpoint, req, &env)
	if IsStatus(err, http.StatusNotFound) && env.messageText() == addressMappedText {
		return ErrAddressExists
	}
	if err != nil {
		return err
	}
	if !env.ok() {
		return fmt.Errorf("%s: %w: %s", op, ErrRejected, env.messageText())
	}
	return nil
}
