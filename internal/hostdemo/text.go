// Package hostdemo adapts a small RISC-like VM's loader/fetch idiom
// (VM.Memory, VM.Fetch, VM.LoadBytecode) into a minimal byte-addressable
// RV64 "kernel text" that can actually exercise pkg/rvprobe end to end:
// load a blob of instruction words, arm a probe by patching two bytes with
// the reserved breakpoint encoding, and trap back through the coordinator
// when it fires.
//
// This package is demonstration/integration-test glue, not the
// architecture-neutral core: breakpoint insertion, i-cache concerns (elided
// here; there is no cache to invalidate over a Go byte slice), and dispatch
// into decode/simulate are all a host's job, never the core's.
package hostdemo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Text is a little-endian byte-addressable instruction stream, standing in
// for mapped kernel text. It implements pkg/rvprobe.Memory.
type Text struct {
	bytes []byte
}

// NewText wraps a byte slice as instruction text. The caller owns the
// backing array; Text neither copies nor grows it.
func NewText(bytes []byte) *Text {
	return &Text{bytes: bytes}
}

// ReadUint16 reads the compressed-width half-word at address.
func (t *Text) ReadUint16(address uint64) (uint16, error) {
	if address+2 > uint64(len(t.bytes)) {
		return 0, fmt.Errorf("hostdemo: address %#x out of range (text is %d bytes)", address, len(t.bytes))
	}
	return binary.LittleEndian.Uint16(t.bytes[address : address+2]), nil
}

// ReadUint32 reads the standard-width word at address.
func (t *Text) ReadUint32(address uint64) (uint32, error) {
	if address+4 > uint64(len(t.bytes)) {
		return 0, fmt.Errorf("hostdemo: address %#x out of range (text is %d bytes)", address, len(t.bytes))
	}
	return binary.LittleEndian.Uint32(t.bytes[address : address+4]), nil
}

// writeUint16 patches the half-word at address, returning the bytes that
// were there before. Used by Host.Arm/Disarm to swap in and out the
// reserved breakpoint encoding.
func (t *Text) writeUint16(address uint64, value uint16) (uint16, error) {
	prev, err := t.ReadUint16(address)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint16(t.bytes[address:address+2], value)
	return prev, nil
}

// Len reports the size of the text in bytes.
func (t *Text) Len() int { return len(t.bytes) }

// LoadText reads one hex instruction word per line (16 or 32 bit, "0x"
// prefixed; a trailing "#" comment is discarded) and lays them out
// back-to-back as little-endian bytes, in the style of a bufio.Scanner
// bytecode loader with "#" comment stripping and strconv.ParseUint. Unlike
// a fixed-width word format, a line here may encode a 16-bit or 32-bit
// RISC-V word; LoadText infers the width from the value's own low two
// bits, exactly as the decoder itself would.
func LoadText(r io.Reader) (*Text, error) {
	var buf []byte
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if index := strings.Index(line, "#"); index >= 0 {
			line = line[:index]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		value, err := strconv.ParseUint(line, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("hostdemo: parsing text line %q: %w", line, err)
		}
		word := uint32(value)
		if word&0x3 == 0x3 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], word)
			buf = append(buf, b[:]...)
		} else {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(word))
			buf = append(buf, b[:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewText(buf), nil
}
