package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListPath(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"-la":          "",
		"-l -a dir":    "dir",
		"dir":          "dir",
		"  -la  a b  ": "a b",
	}
	for in, expected := range cases {
		assert.Equal(t, expected, listPath(in), "param %q", in)
	}
}

func TestAbsPath(t *testing.T) {
	c := &Handler{path: "/a"}
	assert.Equal(t, "/a", c.absPath(""))
	assert.Equal(t, "/a/b", c.absPath("b"))
	assert.Equal(t, "/b", c.absPath("../b"))
	assert.Equal(t, "/c", c.absPath("/c/"))
}
