//go:build !linux

package nvmlbudget

import (
	"errors"

	"github.com/gogpu/clon12/hal"
)

var errUnsupported = errors.New("nvmlbudget: NVML is only wired on linux")

func queryNVML(index int) (hal.MemoryBudget, error) {
	return hal.MemoryBudget{}, errUnsupported
}

func shutdownNVML() error {
	return nil
}
