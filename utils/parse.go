package utils

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
)

// ParseLine splits a control line into its verb and parameter.
func ParseLine(line string) (string, string) {
	line = strings.TrimRight(line, "\r\n")
	params := strings.SplitN(line, " ", 2)
	if len(params) == 1 {
		return params[0], ""
	}
	return params[0], strings.TrimSpace(params[1])
}

// ParseRemoteAddr parses the "h1,h2,h3,h4,p1,p2" argument of PORT.
func ParseRemoteAddr(param string) (*net.TCPAddr, error) {
	parts := strings.Split(param, ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("invalid PORT argument %q", param)
	}

	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("invalid PORT argument %q", param)
		}
		nums[i] = n
	}

	return &net.TCPAddr{
		IP:   net.IPv4(byte(nums[0]), byte(nums[1]), byte(nums[2]), byte(nums[3])),
		Port: nums[4]<<8 | nums[5],
	}, nil
}

// AnyOf reports whether fn holds for any index of the slice s.
func AnyOf(s interface{}, fn func(i int) bool) bool {
	v := reflect.ValueOf(s)
	for i := 0; i < v.Len(); i++ {
		if fn(i) {
			return true
		}
	}
	return false
}
