package halo

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/notargets/gofv/utils"
)

// DevicePacker moves the ghost tail of a device-resident field through
// the halo. Gather and scatter run as kernels against index lists kept
// on the device; the exchange itself is staged through host buffers.
type DevicePacker struct {
	h      *Halo
	kp     *utils.KernelProgram
	stride int

	hostSend []float64
	hostRecv []float64
}

// NewDevicePacker compiles gather and scatter kernels for fields of the
// given stride and uploads the halo index lists to the device.
func NewDevicePacker(h *Halo, device *gocca.OCCADevice, stride int) (*DevicePacker, error) {
	kp := utils.NewKernelProgram(device, utils.Config{})
	p := &DevicePacker{
		h:        h,
		kp:       kp,
		stride:   stride,
		hostSend: make([]float64, h.NSendElts[1]*stride),
		hostRecv: make([]float64, h.NElts[1]*stride),
	}
	if _, err := kp.BuildKernel(utils.GatherKernelSource("haloGather", stride), "haloGather"); err != nil {
		return nil, err
	}
	if _, err := kp.BuildKernel(utils.ScatterKernelSource("haloScatter", stride), "haloScatter"); err != nil {
		return nil, err
	}

	if n := h.NSendElts[1]; n > 0 {
		list := make([]int64, n)
		for i, cell := range h.SendList {
			list[i] = int64(cell)
		}
		kp.AllocateIntMemory("haloSendList", n).
			CopyFrom(unsafe.Pointer(&list[0]), int64(n*kp.GetIntSize()))
		kp.AllocateMemory("haloSendBuf", n*stride)
	}
	if n := h.NElts[1]; n > 0 {
		list := make([]int64, n)
		for g := range list {
			list[g] = int64(h.m.NCells + g)
		}
		kp.AllocateIntMemory("haloRecvList", n).
			CopyFrom(unsafe.Pointer(&list[0]), int64(n*kp.GetIntSize()))
		kp.AllocateMemory("haloRecvBuf", n*stride)
	}
	return p, nil
}

// Sync updates the ghost tail of a device field in place. Collective,
// like the host side syncs. No periodic rotation is applied.
func (p *DevicePacker) Sync(field *gocca.OCCAMemory) error {
	h := p.h
	if nSend := h.NSendElts[1]; nSend > 0 {
		if err := p.kp.RunKernel("haloGather", nSend,
			nSend, p.kp.GetMemory("haloSendList"), field, p.kp.GetMemory("haloSendBuf")); err != nil {
			return fmt.Errorf("halo gather: %w", err)
		}
		p.kp.GetMemory("haloSendBuf").
			CopyTo(unsafe.Pointer(&p.hostSend[0]), int64(len(p.hostSend)*p.kp.GetFloatSize()))
	}

	p.exchange()

	if nRecv := h.NElts[1]; nRecv > 0 {
		p.kp.GetMemory("haloRecvBuf").
			CopyFrom(unsafe.Pointer(&p.hostRecv[0]), int64(len(p.hostRecv)*p.kp.GetFloatSize()))
		if err := p.kp.RunKernel("haloScatter", nRecv,
			nRecv, p.kp.GetMemory("haloRecvList"), p.kp.GetMemory("haloRecvBuf"), field); err != nil {
			return fmt.Errorf("halo scatter: %w", err)
		}
	}
	return nil
}

// exchange swaps the staged host buffers with every communicating
// domain, full ghost tail.
func (p *DevicePacker) exchange() {
	h := p.h
	if h.comm.Size() == 1 {
		return
	}
	stride := p.stride
	switch h.Exchange {
	case OneSided:
		// Published sections must outlive the snapshot, so they are
		// copied out of the staging buffer.
		bufs := make([][]float64, h.comm.Size())
		for di, d := range h.CDomainRank {
			lo, hi := h.sendRange(di, Extended)
			bufs[d] = append([]float64(nil), p.hostSend[lo*stride:hi*stride]...)
		}
		remote := h.comm.Publish(bufs)
		me := h.comm.Rank()
		for di, d := range h.CDomainRank {
			lo, _ := h.recvRange(di, Extended)
			copy(p.hostRecv[lo*stride:], remote[d].([][]float64)[me])
		}
	default:
		// The collective tag release fences the next overwrite of
		// hostSend, so sections go out unbuffered.
		tag := h.comm.NewTag()
		for di, d := range h.CDomainRank {
			lo, hi := h.sendRange(di, Extended)
			h.comm.Send(tag, d, p.hostSend[lo*stride:hi*stride])
		}
		for di, d := range h.CDomainRank {
			lo, _ := h.recvRange(di, Extended)
			copy(p.hostRecv[lo*stride:], h.comm.Recv(tag, d).([]float64))
		}
		h.comm.ReleaseTag(tag)
	}
}

// Free releases the device side resources.
func (p *DevicePacker) Free() {
	p.kp.Free()
}
