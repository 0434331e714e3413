package handler

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var syscallErrors = mustRegister(prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "guestvfs_syscall_errors_total",
		Help: "syscalls answered with a negative errno",
	},
	[]string{"op", "errno"},
))

// mustRegister registers c on the default registry, reusing the collector
// already there under the same name.
func mustRegister(c *prometheus.CounterVec) *prometheus.CounterVec {
	err := prometheus.Register(c)
	are := prometheus.AlreadyRegisteredError{}
	if errors.As(err, &are) {
		return are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err != nil {
		panic(err)
	}
	return c
}
