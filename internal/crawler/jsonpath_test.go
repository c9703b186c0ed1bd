package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_FirstNonEmptyWins(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"nameEn": "", "name": "Camisa", "id": 712816114, "tags": []}`))
	require.NoError(t, err)

	q := MustCompileQuery("nameEn", "name")
	assert.Equal(t, "Camisa", q.Text(doc))

	assert.Equal(t, "712816114", MustCompileQuery("id").Text(doc))
	assert.Nil(t, MustCompileQuery("tags").Search(doc))
	assert.Nil(t, MustCompileQuery("missing.deep[0]").Search(doc))
}

func TestCompileQuery_Invalid(t *testing.T) {
	_, err := CompileQuery("products[")
	assert.Error(t, err)
}

func TestNewFieldMap(t *testing.T) {
	fm, err := NewFieldMap(map[string][]string{FieldTitle: {"displayName"}})
	require.NoError(t, err)

	doc, err := DecodeJSON([]byte(`{"displayName": "Boot", "nameEn": "ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, "Boot", fm[FieldTitle].Text(doc))

	_, err = NewFieldMap(map[string][]string{"colour": {"x"}})
	assert.Error(t, err)
}

func TestAsStrings(t *testing.T) {
	assert.Equal(t, []string{"1", "a"}, AsStrings([]any{float64(1), "a", nil, ""}))
	assert.Equal(t, []string{"x"}, AsStrings("x"))
	assert.Nil(t, AsStrings(nil))
}
