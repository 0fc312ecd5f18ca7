package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/domain"
	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
)

// Fixtures is the seed file layout. Contacts and opportunities are nested
// under the account they belong to.
type Fixtures struct {
	Accounts []AccountFixture `yaml:"accounts"`
}

// AccountFixture is one account with its children.
type AccountFixture struct {
	Name          string               `yaml:"name"`
	Industry      string               `yaml:"industry"`
	AnnualRevenue string               `yaml:"annual_revenue"`
	Active        *bool                `yaml:"active"`
	FoundedOn     string               `yaml:"founded_on"`
	Billing       *AddressFixture      `yaml:"billing"`
	Contacts      []ContactFixture     `yaml:"contacts"`
	Opportunities []OpportunityFixture `yaml:"opportunities"`
}

// AddressFixture is a billing address.
type AddressFixture struct {
	Street     string `yaml:"street"`
	City       string `yaml:"city"`
	Region     string `yaml:"region"`
	PostalCode string `yaml:"postal_code"`
}

// ContactFixture is one contact.
type ContactFixture struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Birthdate string `yaml:"birthdate"`
}

// OpportunityFixture is one opportunity.
type OpportunityFixture struct {
	Name      string `yaml:"name"`
	Stage     string `yaml:"stage"`
	Amount    string `yaml:"amount"`
	CloseDate string `yaml:"close_date"`
}

// LoadFixtures decodes a seed file. Unknown keys are an error.
func LoadFixtures(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var fx Fixtures
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return &fx, nil
}

// SeedResult is the output of the seed command.
type SeedResult struct {
	Accounts      int            `json:"accounts"`
	Contacts      int            `json:"contacts"`
	Opportunities int            `json:"opportunities"`
	Failed        []string       `json:"failed,omitempty"`
	AccountIDs    []string       `json:"account_ids"`
	Usage         governor.Usage `json:"usage"`
}

func (r SeedResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "seeded %d accounts, %d contacts, %d opportunities\n", r.Accounts, r.Contacts, r.Opportunities)
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "failed: %s\n", f)
	}
	b.WriteString(usageLine(r.Usage))
	return b.String()
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load accounts, contacts and opportunities from a YAML file",
		Long: `Load fixtures through the repositories in one unit of work.

Accounts are flushed first so their ids can be assigned to the nested
contacts and opportunities, which are flushed together afterwards. However
many records the file holds, the seed costs one write batch per collection
and kind.

Example:
  bulkstore seed --db ./bulkstore.db fixtures.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	fx, err := LoadFixtures(path)
	if err != nil {
		return out.Fail("failed to load fixtures", WrapExitError(ExitCommandError, "fixtures", err), nil)
	}

	sess, err := openSession(opts)
	if err != nil {
		return out.Fail("failed to open session", err, nil)
	}
	defer sess.Close()

	result, err := seed(cmd.Context(), sess, fx)
	if err != nil {
		return out.Fail("seed failed", err, result)
	}
	return out.Success(result)
}

// seed persists fx through the session's repositories.
func seed(ctx context.Context, sess *session, fx *Fixtures) (*SeedResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &SeedResult{AccountIDs: []string{}}

	accounts := make([]*domain.Account, len(fx.Accounts))
	for i, af := range fx.Accounts {
		a, err := buildAccount(af)
		if err != nil {
			return result, invalidFixture(err, "account %d", i)
		}
		if err := sess.accounts.Save(ctx, a); err != nil {
			return result, fmt.Errorf("account %d: %w", i, err)
		}
		accounts[i] = a
	}
	report, err := sess.writer.Flush(ctx)
	result.Usage = sess.gov.Usage()
	if err != nil {
		return result, err
	}
	result.Failed = append(result.Failed, failures(report)...)

	for i, a := range accounts {
		if a.ID() == "" {
			continue
		}
		result.Accounts++
		result.AccountIDs = append(result.AccountIDs, a.ID())
		for j, cf := range fx.Accounts[i].Contacts {
			c, err := buildContact(cf)
			if err != nil {
				return result, invalidFixture(err, "account %d contact %d", i, j)
			}
			c.AttachTo(a.ID())
			if err := sess.contacts.Save(ctx, c); err != nil {
				return result, fmt.Errorf("account %d contact %d: %w", i, j, err)
			}
		}
		for j, of := range fx.Accounts[i].Opportunities {
			o, err := buildOpportunity(of)
			if err != nil {
				return result, invalidFixture(err, "account %d opportunity %d", i, j)
			}
			o.AttachTo(a.ID())
			if err := sess.opportunities.Save(ctx, o); err != nil {
				return result, fmt.Errorf("account %d opportunity %d: %w", i, j, err)
			}
		}
	}

	report, err = sess.writer.Flush(ctx)
	result.Usage = sess.gov.Usage()
	if err != nil {
		return result, err
	}
	result.Failed = append(result.Failed, failures(report)...)
	for _, b := range report.Batches {
		for _, o := range b.Outcomes {
			if !o.Success {
				continue
			}
			switch b.Collection {
			case "Contact":
				result.Contacts++
			case "Opportunity":
				result.Opportunities++
			}
		}
	}
	return result, nil
}

func invalidFixture(err error, format string, args ...any) error {
	return WrapExitError(ExitCommandError, fmt.Sprintf(format, args...), err)
}

func failures(report *batch.FlushReport) []string {
	var out []string
	for _, b := range report.Batches {
		for _, o := range b.Outcomes {
			if !o.Success {
				out = append(out, fmt.Sprintf("%s %s %s: %v", b.Kind, b.Collection, o.Ref, o.Err))
			}
		}
	}
	return out
}

func parseDecimal(s string) (*apd.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(ir.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func buildAccount(f AccountFixture) (*domain.Account, error) {
	a, err := domain.NewAccount(f.Name)
	if err != nil {
		return nil, err
	}
	a.SetIndustry(f.Industry)
	if f.Active != nil {
		a.SetActive(*f.Active)
	}
	revenue, err := parseDecimal(f.AnnualRevenue)
	if err != nil {
		return nil, err
	}
	if err := a.SetAnnualRevenue(revenue); err != nil {
		return nil, err
	}
	founded, err := parseDate(f.FoundedOn)
	if err != nil {
		return nil, err
	}
	a.SetFoundedOn(founded)
	if f.Billing != nil {
		addr, err := domain.NewAddress(f.Billing.Street, f.Billing.City, f.Billing.Region, f.Billing.PostalCode)
		if err != nil {
			return nil, err
		}
		if err := a.SetBilling(addr); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func buildContact(f ContactFixture) (*domain.Contact, error) {
	c, err := domain.NewContact(f.FirstName, f.LastName)
	if err != nil {
		return nil, err
	}
	if err := c.SetEmail(f.Email); err != nil {
		return nil, err
	}
	birthdate, err := parseDate(f.Birthdate)
	if err != nil {
		return nil, err
	}
	c.SetBirthdate(birthdate)
	return c, nil
}

func buildOpportunity(f OpportunityFixture) (*domain.Opportunity, error) {
	o, err := domain.NewOpportunity(f.Name, domain.Stage(f.Stage))
	if err != nil {
		return nil, err
	}
	amount, err := parseDecimal(f.Amount)
	if err != nil {
		return nil, err
	}
	if err := o.SetAmount(amount); err != nil {
		return nil, err
	}
	closeDate, err := parseDate(f.CloseDate)
	if err != nil {
		return nil, err
	}
	o.SetCloseDate(closeDate)
	return o, nil
}
