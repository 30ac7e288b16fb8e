// Package payload serializes a compiled program to the versioned
// little-endian byte format attached to runtime images, and decodes it
// back. The encoding is architecture-independent; bytecode words are
// bit-cast between int32 and uint32 so negative immediates round-trip
// exactly.
package payload

import (
	"encoding/binary"
	"fmt"

	"scc/pkg/bytecode"
)

// Version is the payload format version this codec reads and writes.
const Version = 1

// Encode serializes program and its entry function index.
//
// Layout (all u32 little-endian):
//
//	version, entry, numStrings, {len, bytes}*,
//	numFunctions, {nameLen, name, numParams, numLocals, codeLen, code*}*
func Encode(program *bytecode.Program, entry int) []byte {
	var out []byte
	out = appendU32(out, Version)
	out = appendU32(out, uint32(entry))

	out = appendU32(out, uint32(len(program.Strings)))
	for _, s := range program.Strings {
		out = appendString(out, s)
	}

	out = appendU32(out, uint32(len(program.Functions)))
	for _, fn := range program.Functions {
		out = appendString(out, fn.Name)
		out = appendU32(out, uint32(fn.NumParams))
		out = appendU32(out, uint32(fn.NumLocals))
		out = appendU32(out, uint32(len(fn.Code)))
		for _, w := range fn.Code {
			out = appendU32(out, uint32(w))
		}
	}
	return out
}

func appendU32(out []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(out, v)
}

func appendString(out []byte, s string) []byte {
	out = appendU32(out, uint32(len(s)))
	return append(out, s...)
}

// reader walks the payload buffer, failing on any read past the end.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("Unexpected end of payload")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return "", fmt.Errorf("Unexpected end of payload")
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Decode parses a payload buffer back into a program and its entry
// function index. It rejects short buffers, unknown versions, and any
// out-of-range length or index.
func Decode(data []byte) (*bytecode.Program, int, error) {
	r := &reader{data: data}

	version, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	if version != Version {
		return nil, 0, fmt.Errorf("Unsupported payload version")
	}

	entry, err := r.u32()
	if err != nil {
		return nil, 0, err
	}

	numStrings, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	program := &bytecode.Program{}
	for i := uint32(0); i < numStrings; i++ {
		s, err := r.str()
		if err != nil {
			return nil, 0, err
		}
		program.Strings = append(program.Strings, s)
	}

	numFunctions, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	for i := uint32(0); i < numFunctions; i++ {
		var fn bytecode.Function
		if fn.Name, err = r.str(); err != nil {
			return nil, 0, err
		}
		numParams, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		numLocals, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		codeLen, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		fn.NumParams = int(numParams)
		fn.NumLocals = int(numLocals)
		for j := uint32(0); j < codeLen; j++ {
			w, err := r.u32()
			if err != nil {
				return nil, 0, err
			}
			fn.Code = append(fn.Code, int32(w))
		}
		program.Functions = append(program.Functions, fn)
	}

	if entry >= uint32(len(program.Functions)) {
		return nil, 0, fmt.Errorf("Invalid entry function")
	}
	return program, int(entry), nil
}
