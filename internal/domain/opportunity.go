package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Stage is a sales stage.
type Stage string

const (
	StageProspecting   Stage = "Prospecting"
	StageQualification Stage = "Qualification"
	StageProposal      Stage = "Proposal"
	StageNegotiation   Stage = "Negotiation"
	StageClosedWon     Stage = "Closed Won"
	StageClosedLost    Stage = "Closed Lost"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

// ParseStage returns the stage named s.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// IsClosed reports whether the stage ends the pipeline.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// Opportunity is a potential deal with an account.
type Opportunity struct {
	id        string
	accountID string
	name      string
	stage     Stage
	amount    *apd.Decimal
	closeDate time.Time
}

// NewOpportunity returns an unsaved opportunity.
func NewOpportunity(name string, stage Stage) (*Opportunity, error) {
	o := &Opportunity{}
	if err := o.Rename(name); err != nil {
		return nil, err
	}
	if err := o.SetStage(stage); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Opportunity) ID() string               { return o.id }
func (o *Opportunity) AssignID(id string)       { o.id = id }
func (o *Opportunity) AccountID() string        { return o.accountID }
func (o *Opportunity) Name() string             { return o.name }
func (o *Opportunity) Stage() Stage             { return o.stage }
func (o *Opportunity) CloseDate() time.Time     { return o.closeDate }
func (o *Opportunity) AttachTo(accountID string) { o.accountID = accountID }

// Amount returns a copy of the amount, nil when unknown.
func (o *Opportunity) Amount() *apd.Decimal { return copyDecimal(o.amount) }

// Rename sets a non-blank name.
func (o *Opportunity) Rename(name string) error {
	if blank(name) {
		return invalid("Opportunity", "Name", "must not be blank")
	}
	o.name = name
	return nil
}

// SetStage moves the opportunity to a known stage.
func (o *Opportunity) SetStage(s Stage) error {
	if _, err := ParseStage(string(s)); err != nil {
		return invalid("Opportunity", "Stage", "%v", err)
	}
	o.stage = s
	return nil
}

// SetAmount sets a non-negative amount; nil clears it.
func (o *Opportunity) SetAmount(d *apd.Decimal) error {
	if d != nil && d.Sign() < 0 {
		return invalid("Opportunity", "Amount", "must not be negative, got %s", d.Text('f'))
	}
	o.amount = copyDecimal(d)
	return nil
}

// SetCloseDate keeps only the calendar date of t.
func (o *Opportunity) SetCloseDate(t time.Time) { o.closeDate = civil(t) }

// Validate checks every invariant.
func (o *Opportunity) Validate() error {
	if blank(o.name) {
		return invalid("Opportunity", "Name", "must not be blank")
	}
	if _, err := ParseStage(string(o.stage)); err != nil {
		return invalid("Opportunity", "Stage", "%v", err)
	}
	if o.amount != nil && o.amount.Sign() < 0 {
		return invalid("Opportunity", "Amount", "must not be negative, got %s", o.amount.Text('f'))
	}
	return nil
}
