package domain

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/cockroachdb/apd/v3"
)

// civil truncates t to its calendar date at midnight UTC. The zero time
// stays zero and means "not set".
func civil(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func copyDecimal(d *apd.Decimal) *apd.Decimal {
	if d == nil {
		return nil
	}
	var c apd.Decimal
	c.Set(d)
	return &c
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validEmail(s string) bool {
	return govalidator.IsEmail(s)
}

// Address is a postal address. Once set, all four parts are non-blank.
type Address struct {
	street     string
	city       string
	region     string
	postalCode string
}

// NewAddress validates and returns an address.
func NewAddress(street, city, region, postalCode string) (Address, error) {
	a := Address{street: street, city: city, region: region, postalCode: postalCode}
	return a, a.Validate()
}

func (a Address) Street() string     { return a.street }
func (a Address) City() string       { return a.city }
func (a Address) Region() string     { return a.region }
func (a Address) PostalCode() string { return a.postalCode }

// IsZero reports whether no part of the address is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks that every part is non-blank.
func (a Address) Validate() error {
	parts := []struct{ name, value string }{
		{"Street", a.street},
		{"City", a.city},
		{"Region", a.region},
		{"PostalCode", a.postalCode},
	}
	for _, p := range parts {
		if blank(p.value) {
			return invalid("Address", p.name, "must not be blank")
		}
	}
	return nil
}
