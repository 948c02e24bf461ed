package model

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidContact = errors.New("invalid contact")

// 注文時の連絡先と配送先
type Contact struct {
	Email           string
	Phone           string
	ShippingAddress string
	ShippingCity    string
	ShippingState   string
}

func NewContact(email, phone, address, city, state string) (Contact, error) {
	c := Contact{
		Email:           strings.TrimSpace(email),
		Phone:           strings.TrimSpace(phone),
		ShippingAddress: strings.TrimSpace(address),
		ShippingCity:    strings.TrimSpace(city),
		ShippingState:   strings.TrimSpace(state),
	}
	if c.Email == "" || c.Phone == "" || c.ShippingAddress == "" || c.ShippingCity == "" || c.ShippingState == "" {
		return Contact{}, ErrInvalidContact
	}
	// "Name <a@b>" 形式は受けない
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return Contact{}, ErrInvalidContact
	}
	return c, nil
}
