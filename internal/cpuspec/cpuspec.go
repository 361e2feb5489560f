// Package cpuspec describes the host the numerical work runs on.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/seld-go/internal/logger"
)

// Device summarizes the compute host of a run.
type Device struct {
	BrandName       string
	PhysicalCores   int
	LogicalCores    int
	GOMAXPROCS      int
	TotalMemory     uint64 // bytes, 0 when unknown
	AvailableMemory uint64
	Features        []string // SIMD extensions used by the gonum kernels
}

// simdFeatures are reported when present.
var simdFeatures = []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD}

// GetDevice returns the device summary. Memory figures are left at zero when
// the platform does not report them.
func GetDevice() Device {
	d := Device{
		BrandName:     cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
	}
	if d.LogicalCores == 0 {
		d.LogicalCores = runtime.NumCPU()
	}
	if d.BrandName == "" {
		d.BrandName = runtime.GOARCH
	}

	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f) {
			d.Features = append(d.Features, f.String())
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		d.TotalMemory = vm.Total
		d.AvailableMemory = vm.Available
	}
	return d
}

// Fields renders the summary as log fields.
func (d Device) Fields() []logger.Field {
	return []logger.Field{
		logger.String("cpu", d.BrandName),
		logger.Int("physical_cores", d.PhysicalCores),
		logger.Int("logical_cores", d.LogicalCores),
		logger.Int("gomaxprocs", d.GOMAXPROCS),
		logger.Uint64("memory_total_mb", d.TotalMemory>>20),
		logger.Uint64("memory_available_mb", d.AvailableMemory>>20),
		logger.Any("simd", d.Features),
	}
}
