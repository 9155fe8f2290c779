package hostdemo

import (
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/packi/rvprobe/pkg/rvdecode"
	"github.com/packi/rvprobe/pkg/rvprobe"
	"github.com/packi/rvprobe/pkg/rvregs"
)

// ErrBlacklisted is returned by Arm when address is one of the configured
// no-probe addresses. The blacklist itself is host policy, not something the
// decode/simulate core has any opinion about.
var ErrBlacklisted = errors.New("hostdemo: address is blacklisted")

// ErrAlreadyArmed is returned by Arm when a probe is already registered at
// address.
var ErrAlreadyArmed = errors.New("hostdemo: address already armed")

// Blacklist is the host-side configuration of addresses the core must
// never be asked to probe, loaded from TOML. A real kernel keeps this for
// things like the scheduler's idle loop or NMI handlers; here it is just a
// flat list of addresses.
type Blacklist struct {
	Addresses []uint64 `toml:"addresses"`
}

// LoadBlacklist parses a TOML blacklist document of the form:
//
//	addresses = [0x1000, 0x2000]
func LoadBlacklist(r io.Reader) (*Blacklist, error) {
	var bl Blacklist
	if _, err := toml.NewDecoder(r).Decode(&bl); err != nil {
		return nil, fmt.Errorf("hostdemo: decoding blacklist: %w", err)
	}
	return &bl, nil
}

func (bl *Blacklist) contains(address uint64) bool {
	if bl == nil {
		return false
	}
	for _, a := range bl.Addresses {
		if a == address {
			return true
		}
	}
	return false
}

// ArmedProbe is everything the host keeps about one armed probe: the core's
// descriptor, the bytes it overwrote to arm it, and an identifier the host
// can use in logs independent of the address (addresses get reused across
// module loads; the ID does not).
type ArmedProbe struct {
	ID         uuid.UUID
	Address    uint64
	Original   uint16
	Descriptor rvdecode.Descriptor
}

// Host ties a Text image, a pkg/rvprobe.Coordinator, and an optional
// blacklist together, playing the part of the kernel's kprobe arch glue
// (decode-insn.c/kprobes.c) around this core.
type Host struct {
	text      *Text
	coord     *rvprobe.Coordinator
	blacklist *Blacklist
	armed     map[uint64]*ArmedProbe
	log       *log.Logger
}

// NewHost returns a Host serving probes out of text. logger may be nil, in
// which case a default charmbracelet/log logger writing to the given
// writer-less default (stderr) is used.
func NewHost(text *Text, blacklist *Blacklist, logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default()
	}
	return &Host{
		text:      text,
		coord:     rvprobe.New(text),
		blacklist: blacklist,
		armed:     make(map[uint64]*ArmedProbe),
		log:       logger,
	}
}

// Arm decodes the instruction at address and, if it is probeable, patches
// its first two bytes with the reserved breakpoint encoding
// (rvdecode.ReservedBreakpoint) and registers it. It refuses blacklisted
// addresses and re-arming an already-armed address, matching the advisory,
// never-silently-overwriting contract a real arch glue needs around a
// shared resource like kernel text.
func (h *Host) Arm(address uint64) (*ArmedProbe, error) {
	if h.blacklist.contains(address) {
		return nil, fmt.Errorf("%w: %#x", ErrBlacklisted, address)
	}
	if _, ok := h.armed[address]; ok {
		return nil, fmt.Errorf("%w: %#x", ErrAlreadyArmed, address)
	}

	d, err := h.coord.Arm(address)
	if err != nil {
		h.log.Warn("probe rejected", "address", fmt.Sprintf("%#x", address), "error", err)
		return nil, err
	}

	original, err := h.text.writeUint16(address, uint16(rvdecode.ReservedBreakpoint))
	if err != nil {
		h.coord.Disarm(address)
		return nil, fmt.Errorf("hostdemo: patching probe site %#x: %w", address, err)
	}

	probe := &ArmedProbe{ID: uuid.New(), Address: address, Original: original, Descriptor: d}
	h.armed[address] = probe
	h.log.Info("armed probe", "id", probe.ID, "address", fmt.Sprintf("%#x", address),
		"simulator", d.Simulator, "is_jump", d.IsJump)
	return probe, nil
}

// Disarm restores the original bytes at address and forgets the probe. It
// is a no-op if nothing is armed there.
func (h *Host) Disarm(address uint64) error {
	probe, ok := h.armed[address]
	if !ok {
		return nil
	}
	if _, err := h.text.writeUint16(address, probe.Original); err != nil {
		return fmt.Errorf("hostdemo: restoring probe site %#x: %w", address, err)
	}
	h.coord.Disarm(address)
	delete(h.armed, address)
	h.log.Info("disarmed probe", "id", probe.ID, "address", fmt.Sprintf("%#x", address))
	return nil
}

// Trap is what the host's trap handler calls when execution reaches an
// address with an armed probe: it simulates the original instruction's
// effect on regs (regs.PC() must equal the probe address on entry) and
// returns the descriptor that fired. After Trap returns, regs.PC() already
// holds the address execution should resume at.
func (h *Host) Trap(regs *rvregs.Snapshot) (rvdecode.Descriptor, error) {
	address := regs.PC()
	d, err := h.coord.Fire(regs)
	if err != nil {
		return rvdecode.Descriptor{}, err
	}
	h.log.Debug("probe fired", "address", fmt.Sprintf("%#x", address), "resume", fmt.Sprintf("%#x", regs.PC()))
	return d, nil
}

// Lookup reports the probe armed at address, if any.
func (h *Host) Lookup(address uint64) (*ArmedProbe, bool) {
	p, ok := h.armed[address]
	return p, ok
}
