//go:build linux

package nvmlbudget

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/gogpu/clon12/hal"
)

var initOnce sync.Once
var initErr error

func ensureInit() error {
	initOnce.Do(func() {
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			initErr = fmt.Errorf("nvmlbudget: initialize NVML: %s", nvml.ErrorString(ret))
		}
	})
	return initErr
}

func queryNVML(index int) (hal.MemoryBudget, error) {
	if err := ensureInit(); err != nil {
		return hal.MemoryBudget{}, err
	}

	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return hal.MemoryBudget{}, fmt.Errorf("nvmlbudget: get handle %d: %s", index, nvml.ErrorString(ret))
	}

	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return hal.MemoryBudget{}, fmt.Errorf("nvmlbudget: get memory info: %s", nvml.ErrorString(ret))
	}

	return hal.MemoryBudget{BudgetBytes: mem.Total, UsageBytes: mem.Used}, nil
}

func shutdownNVML() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvmlbudget: shutdown NVML: %s", nvml.ErrorString(ret))
	}
	return nil
}
