package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/scripthost"
)

// wrapMemory adapts wazero api.Memory to scripthost.Memory.
func wrapMemory(mem api.Memory) scripthost.Memory {
	if mem == nil {
		return noMemory{}
	}
	return &memoryView{mem: mem}
}

type memoryView struct {
	mem api.Memory
}

// Read returns a view of guest memory; it is only valid until the host call returns.
func (m *memoryView) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *memoryView) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// noMemory backs guests that declare no linear memory.
type noMemory struct{}

func (noMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	return nil, fmt.Errorf("module has no memory: offset=%d, length=%d", offset, length)
}

func (noMemory) ReadU32(offset uint32) (uint32, error) {
	return 0, fmt.Errorf("module has no memory: offset=%d", offset)
}
