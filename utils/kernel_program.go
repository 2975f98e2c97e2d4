package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notargets/gocca"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
)

// KernelProgram manages code generation and execution for device kernels
// operating on cell-indexed field arrays. Fields are stored interleaved:
// a field of stride S holds S contiguous components per cell, so component
// s of cell i lives at i*S + s. Gather/scatter kernels move selected cells
// between a field array and a packed buffer, which is the device side of
// the ghost-value exchange.
type KernelProgram struct {
	// Thread-group width for the @inner loop
	BlockSize int

	FloatType DataType // Float32 or Float64 (default: Float64)
	IntType   DataType // Int32 or Int64 (default: Int64)

	// Integer constants compiled into kernels as #define lines
	Constants map[string]int

	// Generated code
	kernelPreamble string

	// Runtime resources
	device  *gocca.OCCADevice
	kernels map[string]*gocca.OCCAKernel
	memory  map[string]*gocca.OCCAMemory
}

// Config holds configuration for creating a KernelProgram
type Config struct {
	BlockSize int
	FloatType DataType
	IntType   DataType
}

// NewKernelProgram creates a new KernelProgram with the given configuration
func NewKernelProgram(device *gocca.OCCADevice, cfg Config) *KernelProgram {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 256
	}
	if cfg.FloatType == 0 && cfg.IntType == 0 {
		cfg.FloatType = Float64
		cfg.IntType = Int64
	}

	kp := &KernelProgram{
		BlockSize: cfg.BlockSize,
		FloatType: cfg.FloatType,
		IntType:   cfg.IntType,
		Constants: make(map[string]int),
		device:    device,
		kernels:   make(map[string]*gocca.OCCAKernel),
		memory:    make(map[string]*gocca.OCCAMemory),
	}

	return kp
}

// AddConstant adds an integer constant compiled into every kernel
func (kp *KernelProgram) AddConstant(name string, value int) {
	kp.Constants[name] = value
}

// GeneratePreamble generates type definitions and constants shared by kernels
func (kp *KernelProgram) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#define BLK %d\n", kp.BlockSize))

	names := make([]string, 0, len(kp.Constants))
	for name := range kp.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("#define %s %d\n", name, kp.Constants[name]))
	}
	sb.WriteString("\n")

	floatTypeStr := "double"
	if kp.FloatType == Float32 {
		floatTypeStr = "float"
	}
	intTypeStr := "long"
	if kp.IntType == Int32 {
		intTypeStr = "int"
	}
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString("\n")

	kp.kernelPreamble = sb.String()
	return kp.kernelPreamble
}

// GatherKernelSource returns a kernel gathering stride components per listed
// cell into a packed buffer: buf[i*stride+s] = src[list[i]*stride+s].
func GatherKernelSource(name string, stride int) string {
	return fmt.Sprintf(`@kernel void %s(const int n,
                   @restrict const int_t *list,
                   @restrict const real_t *src,
                   @restrict real_t *buf) {
  for (int b = 0; b < (n + BLK - 1) / BLK; ++b; @outer) {
    for (int t = 0; t < BLK; ++t; @inner) {
      const int i = b * BLK + t;
      if (i < n) {
        for (int s = 0; s < %d; ++s) {
          buf[i * %d + s] = src[list[i] * %d + s];
        }
      }
    }
  }
}
`, name, stride, stride, stride)
}

// ScatterKernelSource returns the inverse kernel writing a packed buffer to
// the listed cells: dst[list[i]*stride+s] = buf[i*stride+s].
func ScatterKernelSource(name string, stride int) string {
	return fmt.Sprintf(`@kernel void %s(const int n,
                   @restrict const int_t *list,
                   @restrict const real_t *buf,
                   @restrict real_t *dst) {
  for (int b = 0; b < (n + BLK - 1) / BLK; ++b; @outer) {
    for (int t = 0; t < BLK; ++t; @inner) {
      const int i = b * BLK + t;
      if (i < n) {
        for (int s = 0; s < %d; ++s) {
          dst[list[i] * %d + s] = buf[i * %d + s];
        }
      }
    }
  }
}
`, name, stride, stride, stride)
}

// AllocateMemory allocates a named device buffer sized in elements of the
// float type.
func (kp *KernelProgram) AllocateMemory(name string, n int) *gocca.OCCAMemory {
	mem := kp.device.Malloc(int64(n*kp.GetFloatSize()), nil, nil)
	kp.memory[name] = mem
	return mem
}

// AllocateIntMemory allocates a named device buffer sized in elements of the
// int type.
func (kp *KernelProgram) AllocateIntMemory(name string, n int) *gocca.OCCAMemory {
	mem := kp.device.Malloc(int64(n*kp.GetIntSize()), nil, nil)
	kp.memory[name] = mem
	return mem
}

// RunKernel executes a registered kernel with the given arguments, one
// thread per entry of an n-long list
func (kp *KernelProgram) RunKernel(name string, n int, args ...interface{}) error {
	kernel, exists := kp.kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not found", name)
	}

	blocks := (n + kp.BlockSize - 1) / kp.BlockSize
	if blocks < 1 {
		blocks = 1
	}
	outerDims := gocca.OCCADim{
		X: uint64(blocks),
		Y: 1,
		Z: 1,
	}
	innerDims := gocca.OCCADim{
		X: uint64(kp.BlockSize),
		Y: 1,
		Z: 1,
	}

	kernel.SetRunDims(outerDims, innerDims)

	return kernel.RunWithArgs(args...)
}

// GetMemory returns a device memory handle by name
func (kp *KernelProgram) GetMemory(name string) *gocca.OCCAMemory {
	return kp.memory[name]
}

// GetKernelPreamble returns the generated preamble (useful for debugging)
func (kp *KernelProgram) GetKernelPreamble() string {
	return kp.kernelPreamble
}

// GetFloatSize returns the size in bytes of the float type
func (kp *KernelProgram) GetFloatSize() int {
	if kp.FloatType == Float32 {
		return 4
	}
	return 8
}

// GetIntSize returns the size in bytes of the int type
func (kp *KernelProgram) GetIntSize() int {
	if kp.IntType == Int32 {
		return 4
	}
	return 8
}

// Free releases all allocated resources
func (kp *KernelProgram) Free() {
	for _, kernel := range kp.kernels {
		if kernel != nil {
			kernel.Free()
		}
	}

	for _, mem := range kp.memory {
		if mem != nil {
			mem.Free()
		}
	}
}

// BuildKernel compiles a kernel from source with the generated preamble
func (kp *KernelProgram) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	if kp.kernelPreamble == "" {
		kp.GeneratePreamble()
	}

	fullSource := kp.kernelPreamble + "\n" + kernelSource

	kernel, err := kp.device.BuildKernelFromString(fullSource, kernelName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}

	if kernel != nil {
		kp.RegisterKernel(kernelName, kernel)
		return kernel, nil
	}

	return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
}

// RegisterKernel adds a compiled kernel to the program
func (kp *KernelProgram) RegisterKernel(name string, kernel *gocca.OCCAKernel) {
	if kernel == nil {
		return
	}
	kp.kernels[name] = kernel
}
