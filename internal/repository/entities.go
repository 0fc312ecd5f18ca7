package repository

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/domain"
	"github.com/roach88/bulkstore/internal/executor"
	"github.com/roach88/bulkstore/internal/ir"
)

func optionalDecimal(d *apd.Decimal) ir.Value {
	if d == nil {
		return ir.Null{}
	}
	return ir.DecimalFromAPD(d)
}

func optionalDate(t time.Time) ir.Value {
	if t.IsZero() {
		return ir.Null{}
	}
	return ir.DateOf(t)
}

func readDecimal(rec ir.Record, field string, set func(*apd.Decimal) error) error {
	d, ok, err := rec.OptionalDecimal(field)
	if err != nil {
		return err
	}
	if !ok {
		return set(nil)
	}
	return set(d.APD())
}

func readDate(rec ir.Record, field string, set func(time.Time)) error {
	d, err := rec.OptionalDate(field)
	if err != nil {
		return err
	}
	set(d.Time())
	return nil
}

// AccountMapping maps domain.Account onto the Account collection. The
// billing address is flattened into four Billing* fields.
func AccountMapping() Mapping[*domain.Account] {
	return Mapping[*domain.Account]{
		Collection: "Account",
		New:        func() *domain.Account { return &domain.Account{} },
		ID:         (*domain.Account).ID,
		SetID:      (*domain.Account).AssignID,
		Validate:   (*domain.Account).Validate,
		Columns: []Column[*domain.Account]{
			{
				Field: "Name", Kind: ir.KindString,
				Get: func(a *domain.Account) ir.Value { return ir.String(a.Name()) },
				Set: func(a *domain.Account, rec ir.Record) error {
					name, err := rec.String("Name")
					if err != nil {
						return err
					}
					return a.Rename(name)
				},
			},
			{
				Field: "Industry", Kind: ir.KindString,
				Get: func(a *domain.Account) ir.Value { return optionalString(a.Industry()) },
				Set: func(a *domain.Account, rec ir.Record) error {
					s, err := rec.OptionalString("Industry")
					a.SetIndustry(s)
					return err
				},
			},
			{
				Field: "AnnualRevenue", Kind: ir.KindDecimal,
				Get: func(a *domain.Account) ir.Value { return optionalDecimal(a.AnnualRevenue()) },
				Set: func(a *domain.Account, rec ir.Record) error {
					return readDecimal(rec, "AnnualRevenue", a.SetAnnualRevenue)
				},
			},
			{
				Field: "Active", Kind: ir.KindBool,
				Get: func(a *domain.Account) ir.Value { return ir.Bool(a.Active()) },
				Set: func(a *domain.Account, rec ir.Record) error {
					b, err := rec.OptionalBool("Active")
					a.SetActive(b)
					return err
				},
			},
			{
				Field: "FoundedOn", Kind: ir.KindDate,
				Get: func(a *domain.Account) ir.Value { return optionalDate(a.FoundedOn()) },
				Set: func(a *domain.Account, rec ir.Record) error {
					return readDate(rec, "FoundedOn", a.SetFoundedOn)
				},
			},
			billingColumn("BillingStreet", domain.Address.Street),
			billingColumn("BillingCity", domain.Address.City),
			billingColumn("BillingRegion", domain.Address.Region),
			billingColumn("BillingPostalCode", domain.Address.PostalCode),
		},
		Compose: composeBilling,
	}
}

func billingColumn(field string, part func(domain.Address) string) Column[*domain.Account] {
	return Column[*domain.Account]{
		Field: field, Kind: ir.KindString,
		Get: func(a *domain.Account) ir.Value {
			addr, ok := a.Billing()
			if !ok {
				return ir.Null{}
			}
			return ir.String(part(addr))
		},
	}
}

func composeBilling(a *domain.Account, rec ir.Record) error {
	var parts [4]string
	for i, field := range []string{"BillingStreet", "BillingCity", "BillingRegion", "BillingPostalCode"} {
		s, err := rec.OptionalString(field)
		if err != nil {
			return err
		}
		parts[i] = s
	}
	if parts == [4]string{} {
		a.ClearBilling()
		return nil
	}
	addr, err := domain.NewAddress(parts[0], parts[1], parts[2], parts[3])
	if err != nil {
		return err
	}
	return a.SetBilling(addr)
}

// ContactMapping maps domain.Contact onto the Contact collection.
func ContactMapping() Mapping[*domain.Contact] {
	return Mapping[*domain.Contact]{
		Collection: "Contact",
		New:        func() *domain.Contact { return &domain.Contact{} },
		ID:         (*domain.Contact).ID,
		SetID:      (*domain.Contact).AssignID,
		Validate:   (*domain.Contact).Validate,
		Columns: []Column[*domain.Contact]{
			{
				Field: "AccountId", Kind: ir.KindRef,
				Get: func(c *domain.Contact) ir.Value { return optionalRef(c.AccountID()) },
				Set: func(c *domain.Contact, rec ir.Record) error {
					id, err := rec.OptionalRefID("AccountId")
					c.AttachTo(id)
					return err
				},
			},
			{
				Field: "FirstName", Kind: ir.KindString,
				Get:   func(c *domain.Contact) ir.Value { return optionalString(c.FirstName()) },
			},
			{
				Field: "LastName", Kind: ir.KindString,
				Get:   func(c *domain.Contact) ir.Value { return ir.String(c.LastName()) },
			},
			{
				Field: "Email", Kind: ir.KindString,
				Get: func(c *domain.Contact) ir.Value { return optionalString(c.Email()) },
				Set: func(c *domain.Contact, rec ir.Record) error {
					s, err := rec.OptionalString("Email")
					if err != nil {
						return err
					}
					return c.SetEmail(s)
				},
			},
			{
				Field: "Birthdate", Kind: ir.KindDate,
				Get: func(c *domain.Contact) ir.Value { return optionalDate(c.Birthdate()) },
				Set: func(c *domain.Contact, rec ir.Record) error {
					return readDate(rec, "Birthdate", c.SetBirthdate)
				},
			},
		},
		Compose: func(c *domain.Contact, rec ir.Record) error {
			first, err := rec.OptionalString("FirstName")
			if err != nil {
				return err
			}
			last, err := rec.String("LastName")
			if err != nil {
				return err
			}
			return c.SetName(first, last)
		},
	}
}

// OpportunityMapping maps domain.Opportunity onto the Opportunity collection.
func OpportunityMapping() Mapping[*domain.Opportunity] {
	return Mapping[*domain.Opportunity]{
		Collection: "Opportunity",
		New:        func() *domain.Opportunity { return &domain.Opportunity{} },
		ID:         (*domain.Opportunity).ID,
		SetID:      (*domain.Opportunity).AssignID,
		Validate:   (*domain.Opportunity).Validate,
		Columns: []Column[*domain.Opportunity]{
			{
				Field: "AccountId", Kind: ir.KindRef,
				Get: func(o *domain.Opportunity) ir.Value { return optionalRef(o.AccountID()) },
				Set: func(o *domain.Opportunity, rec ir.Record) error {
					id, err := rec.OptionalRefID("AccountId")
					o.AttachTo(id)
					return err
				},
			},
			{
				Field: "Name", Kind: ir.KindString,
				Get: func(o *domain.Opportunity) ir.Value { return ir.String(o.Name()) },
				Set: func(o *domain.Opportunity, rec ir.Record) error {
					name, err := rec.String("Name")
					if err != nil {
						return err
					}
					return o.Rename(name)
				},
			},
			{
				Field: "Stage", Kind: ir.KindString,
				Get: func(o *domain.Opportunity) ir.Value { return ir.String(string(o.Stage())) },
				Set: func(o *domain.Opportunity, rec ir.Record) error {
					s, err := rec.String("Stage")
					if err != nil {
						return err
					}
					return o.SetStage(domain.Stage(s))
				},
			},
			{
				Field: "Amount", Kind: ir.KindDecimal,
				Get: func(o *domain.Opportunity) ir.Value { return optionalDecimal(o.Amount()) },
				Set: func(o *domain.Opportunity, rec ir.Record) error {
					return readDecimal(rec, "Amount", o.SetAmount)
				},
			},
			{
				Field: "CloseDate", Kind: ir.KindDate,
				Get: func(o *domain.Opportunity) ir.Value { return optionalDate(o.CloseDate()) },
				Set: func(o *domain.Opportunity, rec ir.Record) error {
					return readDate(rec, "CloseDate", o.SetCloseDate)
				},
			},
		},
	}
}

// NewAccounts returns the Account repository.
func NewAccounts(exec *executor.Executor, w *batch.Writer, opts ...Option) (*Repository[*domain.Account], error) {
	return New(AccountMapping(), exec, w, opts...)
}

// NewContacts returns the Contact repository.
func NewContacts(exec *executor.Executor, w *batch.Writer, opts ...Option) (*Repository[*domain.Contact], error) {
	return New(ContactMapping(), exec, w, opts...)
}

// NewOpportunities returns the Opportunity repository.
func NewOpportunities(exec *executor.Executor, w *batch.Writer, opts ...Option) (*Repository[*domain.Opportunity], error) {
	return New(OpportunityMapping(), exec, w, opts...)
}
