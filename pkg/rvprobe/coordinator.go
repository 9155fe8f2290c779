// Package rvprobe is the thin coordinator that ties the decoder and
// simulator to a host's memory and trap-handling surface. It owns no ISA
// knowledge of its own: it reads the right-sized word, asks pkg/rvdecode to
// classify it, and on firing asks pkg/rvsim to apply the effect — then
// tells the host how to resume.
//
// The host-facing Memory interface is grounded on a small RISC-like VM's
// paging accessor and Fetch method, generalized from a fixed word array to
// an arbitrary byte-addressable host.
package rvprobe

import (
	"errors"
	"fmt"

	"github.com/packi/rvprobe/pkg/rvdecode"
	"github.com/packi/rvprobe/pkg/rvregs"
	"github.com/packi/rvprobe/pkg/rvsim"
)

// ErrNotArmed is returned by Fire when no descriptor is registered for the
// given address.
var ErrNotArmed = errors.New("rvprobe: no probe armed at address")

// Memory is the host's read surface: the bytes at a probe site, read as
// little-endian, the way RISC-V instruction words are always laid out
// regardless of data endianness elsewhere in the system.
type Memory interface {
	// ReadUint16 reads the compressed-width half of a probe site.
	ReadUint16(address uint64) (uint16, error)
	// ReadUint32 reads the full 32-bit word at a probe site.
	ReadUint32(address uint64) (uint32, error)
}

// Coordinator holds the set of armed probes and dispatches control between
// pkg/rvdecode and pkg/rvsim. It is not goroutine-safe; the host is
// expected to serialize probe arm/fire/disarm calls the same way it
// serializes access to the trap frame they operate on.
type Coordinator struct {
	mem    Memory
	probes map[uint64]rvdecode.Descriptor
}

// New returns a Coordinator reading instruction words through mem.
func New(mem Memory) *Coordinator {
	return &Coordinator{mem: mem, probes: make(map[uint64]rvdecode.Descriptor)}
}

// Arm reads the instruction word at address, classifies it, and registers
// its descriptor for later Fire calls. It returns rvdecode.ErrRejected
// (wrapped) if the instruction there cannot be probed here.
func (c *Coordinator) Arm(address uint64) (rvdecode.Descriptor, error) {
	half, err := c.mem.ReadUint16(address)
	if err != nil {
		return rvdecode.Descriptor{}, fmt.Errorf("rvprobe: reading probe site %#x: %w", address, err)
	}

	var word uint32
	if half&0x3 == 0x3 {
		full, err := c.mem.ReadUint32(address)
		if err != nil {
			return rvdecode.Descriptor{}, fmt.Errorf("rvprobe: reading probe site %#x: %w", address, err)
		}
		word = full
	} else {
		word = uint32(half)
	}

	d, err := rvdecode.Decode(address, word)
	if err != nil {
		return rvdecode.Descriptor{}, err
	}
	c.probes[address] = d
	return d, nil
}

// Disarm removes any descriptor registered at address. It is a no-op if
// nothing was armed there.
func (c *Coordinator) Disarm(address uint64) {
	delete(c.probes, address)
}

// Lookup returns the descriptor armed at address, if any.
func (c *Coordinator) Lookup(address uint64) (rvdecode.Descriptor, bool) {
	d, ok := c.probes[address]
	return d, ok
}

// Fire runs the simulator family for the probe armed at regs.PC(), mutating
// regs in place, and returns the descriptor that fired. It is the host
// trap handler's single call into this core once a breakpoint exception is
// recognized as one of ours: simulate, then resume.
//
// After Fire returns with a nil error, the caller resumes execution at
// regs.PC(): for a non-jump descriptor Fire loads RestoreAddress into the PC
// before simulating, and a jump or a taken conditional branch then
// overwrites it with its target.
func (c *Coordinator) Fire(regs *rvregs.Snapshot) (rvdecode.Descriptor, error) {
	address := regs.PC()
	d, ok := c.probes[address]
	if !ok {
		return rvdecode.Descriptor{}, fmt.Errorf("%w: %#x", ErrNotArmed, address)
	}
	if !d.IsJump {
		regs.SetPC(d.RestoreAddress)
	}
	rvsim.Dispatch(d.Simulator, d.SyntheticEncoding, address, regs)
	return d, nil
}

// DescriptorString renders a descriptor for logs and CLI output.
func DescriptorString(d rvdecode.Descriptor) string {
	return fmt.Sprintf("%#x: orig=%#x synth=%#x sim=%s jump=%v restore=%#x",
		d.Address, d.OriginalEncoding, d.SyntheticEncoding, d.Simulator, d.IsJump, d.RestoreAddress)
}
