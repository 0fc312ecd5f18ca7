package domain

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Account is a customer organisation.
type Account struct {
	id            string
	name          string
	industry      string
	annualRevenue *apd.Decimal
	active        bool
	foundedOn     time.Time
	billing       *Address
}

// NewAccount returns an unsaved, active account.
func NewAccount(name string) (*Account, error) {
	a := &Account{active: true}
	if err := a.Rename(name); err != nil {
		return nil, err
	}
	return a, nil
}

// ID is empty until the account has been persisted.
func (a *Account) ID() string { return a.id }

// AssignID records the identity the store assigned.
func (a *Account) AssignID(id string) { a.id = id }

func (a *Account) Name() string { return a.name }

// Rename sets a non-blank name.
func (a *Account) Rename(name string) error {
	if blank(name) {
		return invalid("Account", "Name", "must not be blank")
	}
	a.name = name
	return nil
}

func (a *Account) Industry() string { return a.industry }

func (a *Account) SetIndustry(industry string) { a.industry = industry }

// AnnualRevenue returns a copy of the revenue, nil when unknown.
func (a *Account) AnnualRevenue() *apd.Decimal { return copyDecimal(a.annualRevenue) }

// SetAnnualRevenue sets a non-negative revenue; nil clears it.
func (a *Account) SetAnnualRevenue(d *apd.Decimal) error {
	if d != nil && d.Sign() < 0 {
		return invalid("Account", "AnnualRevenue", "must not be negative, got %s", d.Text('f'))
	}
	a.annualRevenue = copyDecimal(d)
	return nil
}

func (a *Account) Active() bool { return a.active }

func (a *Account) SetActive(active bool) { a.active = active }

// FoundedOn returns the founding date, the zero time when unknown.
func (a *Account) FoundedOn() time.Time { return a.foundedOn }

// SetFoundedOn keeps only the calendar date of t.
func (a *Account) SetFoundedOn(t time.Time) { a.foundedOn = civil(t) }

// Billing returns the billing address and whether one is set.
func (a *Account) Billing() (Address, bool) {
	if a.billing == nil {
		return Address{}, false
	}
	return *a.billing, true
}

// SetBilling sets a complete billing address.
func (a *Account) SetBilling(addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	a.billing = &addr
	return nil
}

func (a *Account) ClearBilling() { a.billing = nil }

// Validate checks every invariant, for entities assembled field by field.
func (a *Account) Validate() error {
	if blank(a.name) {
		return invalid("Account", "Name", "must not be blank")
	}
	if a.annualRevenue != nil && a.annualRevenue.Sign() < 0 {
		return invalid("Account", "AnnualRevenue", "must not be negative, got %s", a.annualRevenue.Text('f'))
	}
	if a.billing != nil {
		return a.billing.Validate()
	}
	return nil
}
