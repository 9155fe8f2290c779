package rvenc

import "testing"

func TestEncodeIType(t *testing.T) {
	// addi t0, zero, 5 -> opcode 0x13, rd=5(t0), funct3=0, rs1=0, imm=5
	got := ADDI(5, 0, 5)
	want := uint32(5)<<20 | uint32(5)<<7 | 0x13
	if got != want {
		t.Fatalf("ADDI(5,0,5) = %#08x, want %#08x", got, want)
	}
}

func TestEncodeITypeNegativeImmediate(t *testing.T) {
	got := ADDI(5, 0, -1)
	want := uint32(0xFFF)<<20 | uint32(5)<<7 | 0x13
	if got != want {
		t.Fatalf("ADDI(5,0,-1) = %#08x, want %#08x", got, want)
	}
}

func TestEncodeRType(t *testing.T) {
	got := ADD(1, 2, 3)
	want := uint32(0)<<25 | uint32(3)<<20 | uint32(2)<<15 | uint32(0)<<12 | uint32(1)<<7 | 0x33
	if got != want {
		t.Fatalf("ADD(1,2,3) = %#08x, want %#08x", got, want)
	}
	if SUB(1, 2, 3) == got {
		t.Fatalf("SUB must differ from ADD via funct7")
	}
}

func TestEncodeBTypePlacesOffsetLowBits(t *testing.T) {
	// A small positive forward branch offset.
	enc := BEQ(1, 2, 8)
	// imm[12]=0, imm[11]=0, imm[10:5]=0, imm[4:1]=0b0100, imm[0]=0 implicit
	wantBits := uint32(4)<<8 // imm[4:1] lands at bits 11:8
	if enc&0x00000F00 != wantBits {
		t.Fatalf("BEQ(1,2,8) imm[4:1] field = %#x, want %#x", enc&0xF00, wantBits)
	}
}

func TestEncodeUType(t *testing.T) {
	got := LUI(5, 0x6000)
	want := uint32(0x6000) | uint32(5)<<7 | 0x37
	if got != want {
		t.Fatalf("LUI(5,0x6000) = %#08x, want %#08x", got, want)
	}
}

func TestEncodeJTypeZeroOffset(t *testing.T) {
	enc := JAL(1, 0)
	want := uint32(1)<<7 | 0x6F
	if enc != want {
		t.Fatalf("JAL(1,0) = %#08x, want %#08x", enc, want)
	}
}

func TestShiftImmediatesEncodeShamtAndArithBit(t *testing.T) {
	got := SLLI(5, 5, 7)
	want := EncodeIType(0x13, 5, 0x1, 5, 7)
	if got != want {
		t.Fatalf("SLLI(5,5,7) = %#08x, want %#08x", got, want)
	}
	sra := SRAI(5, 5, 7)
	// The immediate occupies encoded bits 31:20, so the immediate's own
	// bit 10 (0x400) lands at encoded bit 30 (0x40000000).
	if sra&0x40000000 == 0 {
		t.Fatalf("SRAI must set the arithmetic-shift bit in the immediate")
	}
}
