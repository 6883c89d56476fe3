package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffs_Contains(t *testing.T) {
	ds := Diffs{"a", "b"}
	assert.True(t, ds.Contains("a"))
	assert.False(t, ds.Contains("c"))
}

func TestDiffs_Join(t *testing.T) {
	assert.Equal(t, "", Diffs{}.Join())
	assert.Equal(t, "a", Diffs{"a"}.Join())
	assert.Equal(t, "a|b", Diffs{"a", "b"}.Join())
}

func TestResponse_BodyLength(t *testing.T) {
	r := Response{Body: "hello"}
	assert.Equal(t, 5, r.BodyLength())
}

func TestResponse_Empty(t *testing.T) {
	assert.True(t, Response{}.Empty())
	assert.False(t, Response{Code: 200}.Empty())
	assert.False(t, Response{Body: "x"}.Empty())
}
