package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line, command, param string
	}{
		{"NOOP\r\n", "NOOP", ""},
		{"RETR file one.txt\r\n", "RETR", "file one.txt"},
		{"user anonymous\n", "user", "anonymous"},
	}
	for _, c := range cases {
		command, param := ParseLine(c.line)
		assert.Equal(t, c.command, command)
		assert.Equal(t, c.param, param)
	}
}

func TestParseRemoteAddr(t *testing.T) {
	addr, err := ParseRemoteAddr("127,0,0,1,4,10")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1034", addr.String())

	_, err = ParseRemoteAddr("127,0,0,1,4")
	assert.Error(t, err)
	_, err = ParseRemoteAddr("127,0,0,1,4,256")
	assert.Error(t, err)
}

func TestAnyOf(t *testing.T) {
	s := []int{1, 3, 5}
	assert.True(t, AnyOf(s, func(i int) bool { return s[i] == 3 }))
	assert.False(t, AnyOf(s, func(i int) bool { return s[i] == 4 }))
}
