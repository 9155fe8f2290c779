// Package rvsim performs the exact register and control-flow side effects
// that executing a 32-bit RISC-V instruction would have produced, given a
// mutable register-file snapshot and the exception PC. It implements seven
// simulator families: ALU-immediate, ALU-register, branch, LUI, AUIPC, JAL
// and JALR.
//
// Every function here is total and deterministic and allocates nothing:
// decoder and simulator functions take no locks, hold no global state, and
// may be invoked from any execution context including a trap handler with
// interrupts disabled. The dispatch-by-funct3 shape and the split of
// ADD/SUB and SRL/SRA by a high bit is grounded directly on the Linux
// kprobes simulate-insn.c (rv_simulate_i_ins, rv_simulate_r_ins,
// rv_simulate_rb_ins, ...), adapted from C switch statements over a mutable
// pt_regs into Go switches over a *rvregs.Snapshot, in the style of a small
// RISC-like VM's Execute method, which also decodes-then-switches over an
// opcode field.
package rvsim

import (
	"github.com/packi/rvprobe/pkg/rvisa"
	"github.com/packi/rvprobe/pkg/rvregs"
)

func rd(encoding uint32) uint32  { return (encoding >> 7) & 0x1F }
func rs1(encoding uint32) uint32 { return (encoding >> 15) & 0x1F }
func rs2(encoding uint32) uint32 { return (encoding >> 20) & 0x1F }
func funct3(encoding uint32) uint32 { return (encoding >> 12) & 0x7 }
func funct7(encoding uint32) uint32 { return encoding >> 25 }

// iImm extracts and sign-extends the 12-bit I-type immediate.
func iImm(encoding uint32) int64 {
	return int64(int32(encoding) >> 20)
}

// uImm extracts the U-type immediate, already laid out at bits 31:12.
func uImm(encoding uint32) int64 {
	return int64(int32(encoding & 0xFFFFF000))
}

// bImm extracts and sign-extends the 13-bit B-type branch offset (its low
// bit is always zero).
func bImm(encoding uint32) int64 {
	raw := (encoding>>31&0x1)<<12 | (encoding>>7&0x1)<<11 | (encoding>>25&0x3F)<<5 | (encoding>>8&0xF)<<1
	return int64(int32(raw<<19) >> 19)
}

// jImm extracts and sign-extends the 21-bit J-type jump offset (its low bit
// is always zero).
func jImm(encoding uint32) int64 {
	raw := (encoding>>31&0x1)<<20 | (encoding>>12&0xFF)<<12 | (encoding>>20&0x1)<<11 | (encoding>>21&0x3FF)<<1
	return int64(int32(raw<<11) >> 11)
}

// ALUImmediate simulates the I-type ALU family: ADDI/SLTI/SLTIU/XORI/ORI/
// ANDI/SLLI/SRLI/SRAI. Dispatch is on funct3; for shifts, bit 10 of the
// 12-bit immediate distinguishes SRAI from SRLI, and SLLI/SRLI/SRAI use the
// low 6 bits of the immediate as the RV64 shift amount.
func ALUImmediate(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	destReg := rd(encoding)
	src := regs.GPR(rs1(encoding))
	imm := iImm(encoding)
	var dest uint64
	switch funct3(encoding) {
	case rvisa.Funct3ADDI:
		dest = src + uint64(imm)
	case rvisa.Funct3SLLI:
		dest = src << (uint64(imm) & 0x3F)
	case rvisa.Funct3SLTI:
		if int64(src) < imm {
			dest = 1
		}
	case rvisa.Funct3SLTIU:
		if src < uint64(imm) {
			dest = 1
		}
	case rvisa.Funct3XORI:
		dest = src ^ uint64(imm)
	case rvisa.Funct3SRL:
		shamt := uint64(imm) & 0x3F
		if uint32(imm)&rvisa.ShiftAltBit != 0 {
			dest = uint64(int64(src) >> shamt)
		} else {
			dest = src >> shamt
		}
	case rvisa.Funct3ORI:
		dest = src | uint64(imm)
	case rvisa.Funct3ANDI:
		dest = src & uint64(imm)
	}
	regs.SetGPR(destReg, dest)
}

// ALURegister simulates the R-type ALU family: ADD/SUB/SLL/SLT/SLTU/XOR/
// SRL/SRA/OR/AND. Dispatch is on funct3; funct7 distinguishes ADD/SUB and
// SRL/SRA. The shift amount is the low 6 bits of rs2 for RV64.
func ALURegister(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	a := regs.GPR(rs1(encoding))
	b := regs.GPR(rs2(encoding))
	f7 := funct7(encoding)
	var dest uint64
	switch funct3(encoding) {
	case rvisa.Funct3ADD:
		if f7 == rvisa.Funct7ALT {
			dest = a - b
		} else {
			dest = a + b
		}
	case rvisa.Funct3SLL:
		dest = a << (b & 0x3F)
	case rvisa.Funct3SLT:
		if int64(a) < int64(b) {
			dest = 1
		}
	case rvisa.Funct3SLTU:
		if a < b {
			dest = 1
		}
	case rvisa.Funct3XOR:
		dest = a ^ b
	case rvisa.Funct3SRL:
		shamt := b & 0x3F
		if f7 == rvisa.Funct7ALT {
			dest = uint64(int64(a) >> shamt)
		} else {
			dest = a >> shamt
		}
	case rvisa.Funct3OR:
		dest = a | b
	case rvisa.Funct3AND:
		dest = a & b
	}
	regs.SetGPR(rd(encoding), dest)
}

// Branch simulates the conditional branch family: BEQ/BNE/BLT/BGE/BLTU/
// BGEU. If the condition is taken, the offset is added to the program
// counter; if not taken, the simulator leaves the PC untouched and the host
// is responsible for applying the probe descriptor's RestoreAddress
// (address+4).
func Branch(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	a := regs.GPR(rs1(encoding))
	b := regs.GPR(rs2(encoding))
	var taken bool
	switch funct3(encoding) {
	case rvisa.Funct3BEQ:
		taken = a == b
	case rvisa.Funct3BNE:
		taken = a != b
	case rvisa.Funct3BLT:
		taken = int64(a) < int64(b)
	case rvisa.Funct3BGE:
		taken = int64(a) >= int64(b)
	case rvisa.Funct3BLTU:
		taken = a < b
	case rvisa.Funct3BGEU:
		taken = a >= b
	}
	if taken {
		regs.SetPC(uint64(int64(pc) + bImm(encoding)))
	}
}

// LUI simulates "lui rd, imm": rd = imm<<12 sign-extended to 64 bits. The
// encoder/decoder already lay imm out at bits 31:12, so the immediate is
// taken and sign-extended as-is.
func LUI(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	regs.SetGPR(rd(encoding), uint64(uImm(encoding)))
}

// AUIPC simulates "auipc rd, imm": rd = pc + (imm<<12), sign-extended. The
// probe PC is the source of the program counter value added in.
func AUIPC(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	regs.SetGPR(rd(encoding), uint64(int64(pc)+uImm(encoding)))
}

// JAL simulates "jal rd, offset": rd = pc+4; pc = pc + sign_extend(offset).
func JAL(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	regs.SetGPR(rd(encoding), pc+4)
	regs.SetPC(uint64(int64(pc) + jImm(encoding)))
}

// JALR simulates "jalr rd, rs1, imm": rd = pc+4; pc = (rs1+imm) & ~1. rs1 is
// read before rd is written since rd may equal rs1.
func JALR(encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	base := regs.GPR(rs1(encoding))
	target := uint64(int64(base) + iImm(encoding))
	regs.SetGPR(rd(encoding), pc+4)
	regs.SetPC(target & ^uint64(1))
}

// Dispatch runs the simulator family named by sel against encoding, with pc
// as the trap PC and regs as the register snapshot to mutate in place. sel
// must be one of the seven families a decoder ever selects; SimulatorNone is
// a caller error and is a silent no-op — simulators are only ever invoked
// with encodings a decoder already accepted.
func Dispatch(sel rvisa.Simulator, encoding uint32, pc uint64, regs *rvregs.Snapshot) {
	switch sel {
	case rvisa.SimulatorALUI:
		ALUImmediate(encoding, pc, regs)
	case rvisa.SimulatorALUR:
		ALURegister(encoding, pc, regs)
	case rvisa.SimulatorBranch:
		Branch(encoding, pc, regs)
	case rvisa.SimulatorLUI:
		LUI(encoding, pc, regs)
	case rvisa.SimulatorAUIPC:
		AUIPC(encoding, pc, regs)
	case rvisa.SimulatorJAL:
		JAL(encoding, pc, regs)
	case rvisa.SimulatorJALR:
		JALR(encoding, pc, regs)
	}
}
