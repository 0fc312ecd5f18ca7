package domain

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestNewAccount(t *testing.T) {
	a, err := NewAccount("Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", a.Name())
	assert.True(t, a.Active())
	assert.Empty(t, a.ID())
	assert.Nil(t, a.AnnualRevenue())

	_, err = NewAccount("  ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Account.Name: must not be blank", err.Error())
}

func TestAccount_Revenue(t *testing.T) {
	a, err := NewAccount("Acme")
	require.NoError(t, err)

	require.NoError(t, a.SetAnnualRevenue(dec(t, "1000.50")))
	assert.Equal(t, "1000.50", a.AnnualRevenue().String())

	// Callers cannot mutate the stored amount through the returned copy.
	a.AnnualRevenue().SetInt64(1)
	assert.Equal(t, "1000.50", a.AnnualRevenue().String())

	err = a.SetAnnualRevenue(dec(t, "-1"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "1000.50", a.AnnualRevenue().String())

	require.NoError(t, a.SetAnnualRevenue(dec(t, "0")))
	require.NoError(t, a.SetAnnualRevenue(nil))
	assert.Nil(t, a.AnnualRevenue())
}

func TestAccount_Billing(t *testing.T) {
	a, err := NewAccount("Acme")
	require.NoError(t, err)

	_, ok := a.Billing()
	assert.False(t, ok)

	addr, err := NewAddress("1 Main St", "Springfield", "IL", "62701")
	require.NoError(t, err)
	require.NoError(t, a.SetBilling(addr))
	got, ok := a.Billing()
	require.True(t, ok)
	assert.Equal(t, "Springfield", got.City())

	err = a.SetBilling(Address{street: "1 Main St"})
	require.Error(t, err)
	assert.Equal(t, "Address.City: must not be blank", err.Error())

	a.ClearBilling()
	_, ok = a.Billing()
	assert.False(t, ok)
}

func TestNewAddress(t *testing.T) {
	tests := []struct {
		name  string
		parts [4]string
		field string
	}{
		{"complete", [4]string{"s", "c", "r", "p"}, ""},
		{"street", [4]string{"", "c", "r", "p"}, "Street"},
		{"region", [4]string{"s", "c", " ", "p"}, "Region"},
		{"postal code", [4]string{"s", "c", "r", ""}, "PostalCode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAddress(tt.parts[0], tt.parts[1], tt.parts[2], tt.parts[3])
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.True(t, Address{}.IsZero())
}

func TestDatesKeepOnlyTheCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	a, err := NewAccount("Acme")
	require.NoError(t, err)

	a.SetFoundedOn(time.Date(1999, 3, 4, 23, 30, 0, 0, loc))
	assert.Equal(t, time.Date(1999, 3, 4, 0, 0, 0, 0, time.UTC), a.FoundedOn())

	a.SetFoundedOn(time.Time{})
	assert.True(t, a.FoundedOn().IsZero())
}

func TestContact(t *testing.T) {
	c, err := NewContact("Jane", "Doe")
	require.NoError(t, err)
	c.AttachTo("acc-1")
	assert.Equal(t, "acc-1", c.AccountID())

	require.NoError(t, c.SetEmail("jane@acme.com"))
	assert.Equal(t, "jane@acme.com", c.Email())
	require.NoError(t, c.SetEmail(""))

	err = c.SetEmail("not an email")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = NewContact("Jane", "")
	assert.True(t, IsValidation(err))

	assert.NoError(t, c.Validate())
	assert.Error(t, (&Contact{}).Validate())
}

func TestOpportunity(t *testing.T) {
	o, err := NewOpportunity("Big deal", StageProspecting)
	require.NoError(t, err)
	assert.False(t, o.Stage().IsClosed())

	require.NoError(t, o.SetStage(StageClosedWon))
	assert.True(t, o.Stage().IsClosed())

	err = o.SetStage("Lost in space")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StageClosedWon, o.Stage())

	require.Error(t, o.SetAmount(dec(t, "-0.01")))
	require.NoError(t, o.SetAmount(dec(t, "99.99")))
	assert.Equal(t, "99.99", o.Amount().String())
	assert.NoError(t, o.Validate())

	_, err = NewOpportunity("", StageProposal)
	assert.True(t, IsValidation(err))
}

func TestParseStage(t *testing.T) {
	for _, st := range Stages {
		got, err := ParseStage(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseStage("closed won")
	assert.Error(t, err)
}
