package rvdecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packi/rvprobe/pkg/rvenc"
	"github.com/packi/rvprobe/pkg/rvisa"
	"github.com/packi/rvprobe/pkg/rvregs"
	"github.com/packi/rvprobe/pkg/rvsim"
)

// c.li a2, 1
func TestDecodeCLi(t *testing.T) {
	d, err := Decode(0x1000, 0x4605)
	require.NoError(t, err)
	want := rvenc.ADDI(rvisa.A2, rvisa.Zero, 1)
	require.Equal(t, want, d.SyntheticEncoding)
	require.Equal(t, uint32(0x00100613), want, "sanity: literal encoding")
	require.Equal(t, rvisa.SimulatorALUI, d.Simulator)
	require.False(t, d.IsJump)
	require.Equal(t, uint64(0x1002), d.RestoreAddress)
}

// c.lui t0, 0x6
func TestDecodeCLui(t *testing.T) {
	d, err := Decode(0x2000, 0x6299)
	require.NoError(t, err)
	require.Equal(t, uint32(0x000062B7), d.SyntheticEncoding)
	require.Equal(t, rvisa.SimulatorLUI, d.Simulator)
}

// c.mv s0, a0
func TestDecodeCMv(t *testing.T) {
	d, err := Decode(0x3000, 0x842A)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00050413), d.SyntheticEncoding)
	require.Equal(t, rvisa.SimulatorALUI, d.Simulator)
}

// c.sub a1, a1, a0
func TestDecodeCSub(t *testing.T) {
	d, err := Decode(0x4000, 0x8D89)
	require.NoError(t, err)
	require.Equal(t, uint32(0x40A585B3), d.SyntheticEncoding)
	require.Equal(t, rvisa.SimulatorALUR, d.Simulator)
}

// c.j +0x34
func TestDecodeCJ(t *testing.T) {
	d, err := Decode(0x5000, 0xA815)
	require.NoError(t, err)
	require.True(t, d.IsJump)
	require.Equal(t, rvisa.SimulatorJAL, d.Simulator)
	regs := rvregs.NewSnapshot(0x5000)
	rvsim.Dispatch(d.Simulator, d.SyntheticEncoding, 0x5000, regs)
	require.Equal(t, uint64(0x5034), regs.PC())
}

// c.nop is a true no-op.
func TestDecodeCNop(t *testing.T) {
	d, err := Decode(0x6000, 0x0001)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00000013), d.SyntheticEncoding)
	regs := rvregs.NewSnapshot(0x6000)
	before := regs.All()
	rvsim.Dispatch(d.Simulator, d.SyntheticEncoding, 0x6000, regs)
	require.Equal(t, before, regs.All(), "c.nop must not change any register")
}

// c.ebreak (0x9002) is rejected, never a probe target.
func TestDecodeCEbreakRejected(t *testing.T) {
	_, err := Decode(0x7000, ReservedBreakpoint)
	require.ErrorIs(t, err, ErrRejected)
}

func TestDecodeStandardOpcodeTable(t *testing.T) {
	cases := []struct {
		name   string
		word   uint32
		sel    rvisa.Simulator
		isJump bool
	}{
		{"addi", rvenc.ADDI(1, 2, 3), rvisa.SimulatorALUI, false},
		{"add", rvenc.ADD(1, 2, 3), rvisa.SimulatorALUR, false},
		{"beq", rvenc.BEQ(1, 2, 4), rvisa.SimulatorBranch, false},
		{"lui", rvenc.LUI(1, 0x1000), rvisa.SimulatorLUI, false},
		{"auipc", rvenc.AUIPC(1, 0x1000), rvisa.SimulatorAUIPC, false},
		{"jal", rvenc.JAL(1, 4), rvisa.SimulatorJAL, true},
		{"jalr", rvenc.JALR(1, 2, 4), rvisa.SimulatorJALR, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := Decode(0x1000, c.word)
			require.NoError(t, err)
			require.Equal(t, c.sel, d.Simulator)
			require.Equal(t, c.isJump, d.IsJump)
			if !c.isJump {
				require.Equal(t, uint64(0x1004), d.RestoreAddress)
			}
		})
	}
}

func TestDecodeStandardRejectsUnsupportedOpcode(t *testing.T) {
	// opcode 0x03 is LOAD -- explicitly not in the supported set.
	word := rvenc.EncodeIType(0x03, 1, 0, 2, 0)
	_, err := Decode(0x1000, word)
	require.ErrorIs(t, err, ErrRejected)
}

func TestDecodeCompressedRestoreAddressIsPlusTwo(t *testing.T) {
	d, err := Decode(0x1000, 0x0001) // c.nop
	require.NoError(t, err)
	require.Equal(t, uint64(0x1002), d.RestoreAddress)
}

func TestDecodeAddi4spnRejectsZeroImmediate(t *testing.T) {
	// Q0, funct3=0, all-zero word is the canonical illegal instruction.
	_, err := Decode(0x1000, 0x0000)
	require.ErrorIs(t, err, ErrRejected)
}

func TestDecodeCAddi4spn(t *testing.T) {
	// c.addi4spn s0, sp, 8 -> funct3=0, rd'=0 (s0=x8), nzuimm bits scrambled
	// so that only bit3 (imm[3]) set: raw bit0 (inst bit5) = 1.
	word := uint16(0x0020 | (0 << 2)) // nzuimm[3]=1 -> inst bit5=1; rd' field=0 -> s0
	d, err := decodeQ0Helper(word)
	require.NoError(t, err)
	require.Equal(t, rvenc.ADDI(rvisa.S0, rvisa.SP, 8), d)
}

func decodeQ0Helper(word uint16) (uint32, error) {
	synth, _, err := decodeQ0(word)
	return synth, err
}

func TestDecodeBeqz(t *testing.T) {
	// c.beqz s0, +0: quadrant 1, funct3=110, rs1' field=000 (s0=x8), all
	// immediate bits zero.
	d, err := Decode(0x1000, uint32(0xC001))
	require.NoError(t, err)
	require.Equal(t, rvisa.SimulatorBranch, d.Simulator)
	require.Equal(t, rvenc.BEQ(rvisa.S0, rvisa.Zero, 0), d.SyntheticEncoding)
}

func TestEncodeDecodeRoundTripStandard(t *testing.T) {
	word := rvenc.ADD(5, 6, 7)
	d, err := Decode(0x1000, word)
	require.NoError(t, err)
	require.Equal(t, word, d.SyntheticEncoding, "standard decode must preserve the original word verbatim")
}
