package pprof

import (
	"net/http"
	_ "net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var once sync.Once

// StartPP serves pprof and prometheus metrics on addr. Only the first call
// has an effect.
func StartPP(addr string) {
	once.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			err := http.ListenAndServe(addr, nil)
			if err != nil {
				zap.L().Error("Debug server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	})
}
