package utils

import (
	"go.uber.org/zap"
)

// MustNil exits when e is not nil. Only used while starting up.
func MustNil(e error, msg ...string) {
	if e == nil {
		return
	}
	m := "error occurred"
	if len(msg) > 0 {
		m = msg[0]
	}
	zap.L().Fatal(m, zap.Error(e), zap.Stack("trace"))
}
