package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Record(t *testing.T) {
	r := NewRecord("Account")
	r.ID = "001"
	r.Set("Name", String("A & B <co>"))
	r.Set("Revenue", MustDecimal("1200.50"))
	r.Set("Active", Bool(true))
	r.Set("Founded", NewDate(2001, 2, 3))
	r.Set("Note", Null{})
	r.Set("Employees", Int(12))

	out, err := MarshalCanonical(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"collection":"Account","fields":{"Active":true,"Employees":12,"Founded":"2001-02-03","Name":"A & B <co>","Note":null,"Revenue":1200.50},"id":"001"}`,
		string(out))
}

func TestMarshalCanonical_Related(t *testing.T) {
	child := NewRecord("Contact")
	child.ID = "003"
	child.Set("LastName", String("Doe"))

	r := NewRecord("Account")
	r.Ref = "tmp-1"
	r.Related = map[string][]Record{"Contacts": {child}}

	out, err := MarshalCanonical(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"collection":"Account","fields":{},"ref":"tmp-1","related":{"Contacts":[{"collection":"Contact","fields":{"LastName":"Doe"},"id":"003"}]}}`,
		string(out))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	r := NewRecord("X")
	r.Set("k", String("e\u0301"))
	out, err := MarshalCanonical(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "\u00e9")
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	out, err := MarshalCanonicalValue(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(out))

	out, err = MarshalCanonicalValue(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(out), "literal backslash text stays escaped")
}

func TestMarshalCanonicalRecords_Empty(t *testing.T) {
	out, err := MarshalCanonicalRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestCompareUTF16(t *testing.T) {
	keys := sortedKeys(map[string]int{"b": 1, "B": 2, "a": 3, "\U0001F600": 4, "\uFB01": 5})
	// U+1F600 encodes as surrogates 0xD83D..., which sort before U+FB01.
	assert.Equal(t, []string{"B", "a", "b", "\U0001F600", "\uFB01"}, keys)
}
