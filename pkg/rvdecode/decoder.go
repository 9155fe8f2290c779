// Package rvdecode classifies a candidate probe site's instruction word —
// 16-bit compressed or 32-bit standard RISC-V — and builds the probe
// descriptor the host needs to arm a breakpoint there, rejecting any form
// whose effect cannot be faithfully simulated out of line.
//
// Width discrimination and the standard-opcode dispatch table follow
// riscv_decode_insn's opcode chain from the Linux kprobes decoder, adapted
// to the real RV64I opcode encodings rather than that routine's ad-hoc
// comparison values. The compressed-quadrant tables and their bit-scramble
// immediates are adapted from a RISC-V emulator's rvcDecode and its
// decodeCI/decodeCB/decodeCJ/decodeCIW/decodeShiftCB helpers, reused for
// the scramble arithmetic and adapted to return a synthesized 32-bit word
// plus a Descriptor instead of an instruction AST node.
package rvdecode

import (
	"errors"
	"fmt"

	"github.com/packi/rvprobe/pkg/rvenc"
	"github.com/packi/rvprobe/pkg/rvisa"
)

// ErrRejected is the single error kind this package returns: this
// instruction is not supported for probing here. It is advisory to the
// host — "do not probe here" — and is never retried or recovered
// internally.
var ErrRejected = errors.New("rvdecode: instruction rejected")

// ReservedBreakpoint is the compressed c.ebreak encoding (0x9002) a host
// patcher uses to arm a probe. The decoder never needs to special-case it
// for arming purposes, but it falls out of the Q2 table as a rejection on
// its own, since none of the Q2 forms supported here match it.
const ReservedBreakpoint = uint32(0x9002)

// Descriptor is the contract between this core and its host: everything
// needed to arm a probe at Address and, when it fires, dispatch to the
// right simulator family.
type Descriptor struct {
	Address           uint64
	OriginalEncoding  uint32 // raw word read at Address; upper bits zero for compressed forms
	SyntheticEncoding uint32 // the 32-bit form the simulator actually executes
	Simulator         rvisa.Simulator
	IsJump            bool
	RestoreAddress    uint64 // valid only when !IsJump
}

// quadrant of a 16-bit word (0, 1 or 2); a word with low bits 0b11 is a
// standard 32-bit instruction, not compressed.
func quadrant(word uint16) uint16 {
	return word & 0x3
}

// isCompressed reports whether the low two bits of word mark a 16-bit
// compressed instruction (anything but 0b11).
func isCompressed(word uint32) bool {
	return word&0x3 != 0x3
}

// Decode classifies the word found at address and builds its probe
// descriptor, or rejects it. word holds a 16-bit compressed instruction in
// its low 16 bits (upper bits ignored) when isCompressed(word) — callers
// typically get it from pkg/rvprobe, which knows how to read the right
// width from host memory; Decode itself only needs to know the low two
// bits to tell them apart.
func Decode(address uint64, word uint32) (Descriptor, error) {
	if isCompressed(word) {
		return decodeCompressed(address, uint16(word))
	}
	return decodeStandard(address, word)
}

// decodeStandard classifies a 32-bit standard instruction by its opcode
// field. Any opcode outside the seven listed is rejected by omission —
// loads, stores, atomics, fences, system and floating-point/vector opcodes
// all fall here.
func decodeStandard(address uint64, word uint32) (Descriptor, error) {
	opcode := word & 0x7F
	d := Descriptor{
		Address:          address,
		OriginalEncoding: word,
		SyntheticEncoding: word,
	}
	switch opcode {
	case rvisa.OpcodeOPIMM:
		d.Simulator = rvisa.SimulatorALUI
	case rvisa.OpcodeOP:
		d.Simulator = rvisa.SimulatorALUR
	case rvisa.OpcodeBRANCH:
		d.Simulator = rvisa.SimulatorBranch
	case rvisa.OpcodeLUI:
		d.Simulator = rvisa.SimulatorLUI
	case rvisa.OpcodeAUIPC:
		d.Simulator = rvisa.SimulatorAUIPC
	case rvisa.OpcodeJAL:
		d.Simulator = rvisa.SimulatorJAL
		d.IsJump = true
	case rvisa.OpcodeJALR:
		d.Simulator = rvisa.SimulatorJALR
		d.IsJump = true
	default:
		return Descriptor{}, fmt.Errorf("%w: unsupported opcode %#02x at %#x", ErrRejected, opcode, address)
	}
	if !d.IsJump {
		d.RestoreAddress = address + 4
	}
	return d, nil
}

// decodeCompressed expands a 16-bit compressed instruction to its
// equivalent 32-bit synthetic encoding via pkg/rvenc, selecting the
// simulator family the synthetic form belongs to. Any form not explicitly
// listed in the quadrant tables is rejected.
func decodeCompressed(address uint64, word uint16) (Descriptor, error) {
	var synth uint32
	var sel rvisa.Simulator
	isJump := false
	var err error

	switch quadrant(word) {
	case 0:
		synth, sel, err = decodeQ0(word)
	case 1:
		synth, sel, isJump, err = decodeQ1(word)
	case 2:
		synth, sel, isJump, err = decodeQ2(word)
	default:
		err = fmt.Errorf("%w: standard-width word misrouted to compressed decode at %#x", ErrRejected, address)
	}
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Address:           address,
		OriginalEncoding:  uint32(word),
		SyntheticEncoding: synth,
		Simulator:         sel,
		IsJump:            isJump,
	}
	if !isJump {
		d.RestoreAddress = address + 2
	}
	return d, nil
}

func rejectedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrRejected}, args...)...)
}

// decodeQ0 decodes quadrant 0 (low bits 00): only c.addi4spn is supported.
func decodeQ0(word uint16) (uint32, rvisa.Simulator, error) {
	f3 := (word >> 13) & 0x7
	if f3 != 0 || word == 0 {
		return 0, rvisa.SimulatorNone, rejectedf("unsupported Q0 instruction %#04x", word)
	}
	// CIW format: imm raw bits12:5, rd' bits4:2+8.
	raw := uint32(word>>5) & 0xFF
	rdPrime := rvisa.CReg(uint32(word>>2) & 0x7)
	// bits: 54987623 -> scramble to 9876543200 (see rvc.go decodeCIW/C.ADDI4SPN)
	imm := raw&0xc0>>2 | raw&0x3c<<4 | raw&0x2<<1 | raw&0x1<<3
	if imm == 0 {
		return 0, rvisa.SimulatorNone, rejectedf("c.addi4spn with nzuimm=0 (reserved) at %#04x", word)
	}
	synth := rvenc.ADDI(rdPrime, rvisa.SP, int32(imm))
	return synth, rvisa.SimulatorALUI, nil
}

// decodeQ1 decodes quadrant 1 (low bits 01): c.nop/c.addi, c.addiw, c.li,
// c.addi16sp/c.lui, c.srli/c.srai/c.andi/c.sub/c.xor/c.or/c.and, c.j,
// c.beqz, c.bnez.
func decodeQ1(word uint16) (synth uint32, sel rvisa.Simulator, isJump bool, err error) {
	f3 := (word >> 13) & 0x7
	rd := uint32(word>>7) & 0x1F
	switch f3 {
	case 0: // c.nop / c.addi
		imm := decodeCIImm6(word)
		return rvenc.ADDI(rd, rd, imm), rvisa.SimulatorALUI, false, nil
	case 1: // c.addiw (RES if rd == 0)
		if rd == 0 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.addiw with rd=0 is reserved (c.jal on RV32) at %#04x", word)
		}
		// ADDIW is a 32-bit-result op none of the simulator families here
		// can execute; reject rather than mis-simulate.
		return 0, rvisa.SimulatorNone, false, rejectedf("c.addiw has no RV64I+MC simulator family at %#04x", word)
	case 2: // c.li (HINT if rd == 0)
		if rd == 0 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.li with rd=0 is a HINT at %#04x", word)
		}
		imm := decodeCIImm6(word)
		return rvenc.ADDI(rd, rvisa.Zero, imm), rvisa.SimulatorALUI, false, nil
	case 3:
		if rd == 2 { // c.addi16sp
			imm := decodeAddi16spImm(word)
			if imm == 0 {
				return 0, rvisa.SimulatorNone, false, rejectedf("c.addi16sp with nzimm=0 is reserved at %#04x", word)
			}
			return rvenc.ADDI(rvisa.SP, rvisa.SP, imm), rvisa.SimulatorALUI, false, nil
		}
		if rd == 0 { // HINT
			return 0, rvisa.SimulatorNone, false, rejectedf("c.lui with rd=0 is a HINT at %#04x", word)
		}
		nz := decodeCIImm6(word) // 6-bit signed raw field
		if nz == 0 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.lui with nzimm=0 is reserved at %#04x", word)
		}
		u := uint32(nz<<12) & 0xFFFFF000
		return rvenc.LUI(rd, u), rvisa.SimulatorLUI, false, nil
	case 4:
		return decodeQ1Funct4(word, rd)
	case 5: // c.j
		imm := decodeCJImm(word)
		return rvenc.JAL(rvisa.Zero, imm), rvisa.SimulatorJAL, true, nil
	case 6: // c.beqz
		rs1, imm := decodeCBPrimedAndImm(word)
		return rvenc.BEQ(rs1, rvisa.Zero, imm), rvisa.SimulatorBranch, false, nil
	case 7: // c.bnez
		rs1, imm := decodeCBPrimedAndImm(word)
		return rvenc.BNE(rs1, rvisa.Zero, imm), rvisa.SimulatorBranch, false, nil
	}
	return 0, rvisa.SimulatorNone, false, rejectedf("unreachable Q1 funct3 at %#04x", word)
}

// decodeQ1Funct4 decodes the funct3==4 sub-table: c.srli/c.srai/c.andi and
// the c.sub/c.xor/c.or/c.and/c.subw/c.addw group, selected by the 2-bit
// sub-op at bits [11:10]. Extracted with an explicit shift-then-mask so
// there is no C-style operator-precedence pitfall in the field extraction.
func decodeQ1Funct4(word uint16, rdFull uint32) (uint32, rvisa.Simulator, bool, error) {
	rdPrime := rvisa.CReg(rdFull)
	subOp := (word >> 10) & 0x3
	switch subOp {
	case 0: // c.srli (reject the RV128 c.srli64 form: shift amount 0)
		shamt := decodeShiftAmount(word)
		if shamt == 0 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.srli with shamt=0 is c.srli64, not RV64 at %#04x", word)
		}
		return rvenc.SRLI(rdPrime, rdPrime, shamt), rvisa.SimulatorALUI, false, nil
	case 1: // c.srai (reject c.srai64 similarly)
		shamt := decodeShiftAmount(word)
		if shamt == 0 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.srai with shamt=0 is c.srai64, not RV64 at %#04x", word)
		}
		return rvenc.SRAI(rdPrime, rdPrime, shamt), rvisa.SimulatorALUI, false, nil
	case 2: // c.andi
		imm := decodeCIImm6(word)
		return rvenc.ANDI(rdPrime, rdPrime, imm), rvisa.SimulatorALUI, false, nil
	case 3:
		rs2Prime := rvisa.CReg(uint32(word>>2) & 0x7)
		wordBit := (word >> 12) & 0x1
		funct2 := (word >> 5) & 0x3
		if wordBit == 1 {
			return 0, rvisa.SimulatorNone, false, rejectedf("c.subw/c.addw have no RV64I+MC simulator family at %#04x", word)
		}
		switch funct2 {
		case 0:
			return rvenc.SUB(rdPrime, rdPrime, rs2Prime), rvisa.SimulatorALUR, false, nil
		case 1:
			return rvenc.XOR(rdPrime, rdPrime, rs2Prime), rvisa.SimulatorALUR, false, nil
		case 2:
			return rvenc.OR(rdPrime, rdPrime, rs2Prime), rvisa.SimulatorALUR, false, nil
		case 3:
			return rvenc.AND(rdPrime, rdPrime, rs2Prime), rvisa.SimulatorALUR, false, nil
		}
	}
	return 0, rvisa.SimulatorNone, false, rejectedf("unreachable Q1 funct4 sub-op at %#04x", word)
}

// decodeQ2 decodes quadrant 2 (low bits 10): c.slli, c.jr, c.mv, c.add. All
// other forms (c.ebreak, c.jalr, c.l*sp/c.s*sp) are rejected.
func decodeQ2(word uint16) (synth uint32, sel rvisa.Simulator, isJump bool, err error) {
	f3 := (word >> 13) & 0x7
	rd := uint32(word>>7) & 0x1F
	switch f3 {
	case 0: // c.slli
		shamt := decodeShiftAmount(word)
		return rvenc.SLLI(rd, rd, shamt), rvisa.SimulatorALUI, false, nil
	case 4:
		bit12 := (word >> 12) & 0x1
		rs2 := uint32(word>>2) & 0x1F
		imm := uint32(bit12)<<5 | rs2 // the full 6-bit discriminator field
		switch {
		case imm == 0: // c.jr
			if rd == 0 {
				return 0, rvisa.SimulatorNone, false, rejectedf("c.jr with rs1=0 is reserved at %#04x", word)
			}
			return rvenc.JALR(rvisa.Zero, rd, 0), rvisa.SimulatorJALR, true, nil
		case imm < 0x20 && imm != 0: // c.mv
			return rvenc.ADDI(rd, rs2, 0), rvisa.SimulatorALUI, false, nil
		case imm >= 0x20 && (imm&0x1F) != 0: // c.add
			return rvenc.ADD(rd, rd, rs2), rvisa.SimulatorALUR, false, nil
		default: // c.ebreak, c.jalr: rejected
			return 0, rvisa.SimulatorNone, false, rejectedf("c.ebreak/c.jalr are not probeable at %#04x", word)
		}
	default:
		return 0, rvisa.SimulatorNone, false, rejectedf("unsupported Q2 instruction (c.l*sp/c.s*sp) %#04x", word)
	}
}

// --- compressed immediate extraction helpers ---
//
// These bit-gather formulas are reused as-is from
// other_examples/.../LMMilewski-riscv-emu__rvc.go.go's decodeCI/decodeCB/
// decodeCJ/decodeShiftCB, which are themselves a direct transliteration of
// the RISC-V unprivileged ISA manual's compressed-instruction immediate
// tables (riscv-spec-v2.2, Table 12.5).

// decodeCIImm6 extracts and sign-extends the CI-format 6-bit immediate used
// by c.nop/c.addi/c.li/c.lui/c.andi: {imm[5], imm[4:0]} at bits {12, 6:2}.
func decodeCIImm6(word uint16) int32 {
	raw := uint32(word>>7&0x20 | word>>2&0x1F)
	return signExtend(raw, 6)
}

// decodeAddi16spImm extracts and sign-extends c.addi16sp's scrambled
// 10-bit immediate: {9|4|6|8:7|5} from CI-format raw bits {12,6:2}.
func decodeAddi16spImm(word uint16) int32 {
	raw := uint32(word>>7&0x20 | word>>2&0x1F)
	imm := raw&0x20<<4 | raw&0x10 | raw&0x8<<3 | raw&0x6<<6 | raw&0x1<<5
	return signExtend(imm, 10)
}

// decodeShiftAmount extracts the CB-format shift amount used by c.slli/
// c.srli/c.srai: {imm[5], imm[4:0]} at bits {12, 6:2} — unsigned, unlike
// decodeCIImm6.
func decodeShiftAmount(word uint16) uint32 {
	return uint32(word&0x1000>>7 | word>>2&0x1F)
}

// decodeCJImm extracts and sign-extends c.j/c.jal's scrambled 11-bit
// immediate field: bits 12:2 of the CJ format hold offset
// {11|4|9:8|10|6|7|3:1|5}, a signed byte offset whose sign is offset bit 11.
func decodeCJImm(word uint16) int32 {
	raw := uint32(word>>2) & 0x7FF
	imm := raw&0x200>>5 | raw&0x40<<4 | raw&0x5a0<<1 | raw&0x10<<3 | raw&0xe | raw&0x1<<5
	return signExtend(imm, 12)
}

// decodeCBPrimedAndImm extracts c.beqz/c.bnez's primed register (rs1' =
// {bits9:7}+8) and scrambled signed 8-bit immediate field, gathered from the
// CB format's offset{8|4:3} (bits 12:10) and offset{7:6|2:1|5} (bits 6:2);
// the sign is offset bit 8.
func decodeCBPrimedAndImm(word uint16) (rs1 uint32, imm int32) {
	rs1 = rvisa.CReg(uint32(word>>7) & 0x7)
	raw := uint32(word>>5&0xE0 | word>>2&0x1F)
	scrambled := raw&0x80<<1 | raw&0x60>>2 | raw&0x18<<3 | raw&0x6 | raw&0x1<<5
	imm = signExtend(scrambled, 9)
	return rs1, imm
}

// signExtend sign-extends the low `bits` bits of v to a full int32.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
