package domain

import "time"

// Contact is a person, optionally attached to an account.
type Contact struct {
	id        string
	accountID string
	firstName string
	lastName  string
	email     string
	birthdate time.Time
}

// NewContact returns an unsaved contact.
func NewContact(firstName, lastName string) (*Contact, error) {
	c := &Contact{}
	if err := c.SetName(firstName, lastName); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contact) ID() string           { return c.id }
func (c *Contact) AssignID(id string)   { c.id = id }
func (c *Contact) AccountID() string    { return c.accountID }
func (c *Contact) FirstName() string    { return c.firstName }
func (c *Contact) LastName() string     { return c.lastName }
func (c *Contact) Email() string        { return c.email }
func (c *Contact) Birthdate() time.Time { return c.birthdate }

// AttachTo links the contact to an account; "" detaches it.
func (c *Contact) AttachTo(accountID string) { c.accountID = accountID }

// SetName sets the name. The last name is required.
func (c *Contact) SetName(firstName, lastName string) error {
	if blank(lastName) {
		return invalid("Contact", "LastName", "must not be blank")
	}
	c.firstName, c.lastName = firstName, lastName
	return nil
}

// SetEmail sets a well-formed address; "" clears it.
func (c *Contact) SetEmail(email string) error {
	if email != "" && !validEmail(email) {
		return invalid("Contact", "Email", "%q is not an email address", email)
	}
	c.email = email
	return nil
}

// SetBirthdate keeps only the calendar date of t.
func (c *Contact) SetBirthdate(t time.Time) { c.birthdate = civil(t) }

// Validate checks every invariant.
func (c *Contact) Validate() error {
	if blank(c.lastName) {
		return invalid("Contact", "LastName", "must not be blank")
	}
	if c.email != "" && !validEmail(c.email) {
		return invalid("Contact", "Email", "%q is not an email address", c.email)
	}
	return nil
}
