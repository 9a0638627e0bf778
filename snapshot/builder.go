package snapshot

import (
	"encoding/binary"
	"strconv"

	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/scripthost"
)

// ValueType is a wasm value type byte.
type ValueType byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
)

const (
	magic   = 0x6d736100 // \0asm
	version = 1

	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02

	// dataBase keeps address 0 unused so a zero argv never aliases data.
	dataBase  = 16
	pageSize  = 65536
	recordLen = 12
)

const (
	opUnreachable = 0x00
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0b
	opBr          = 0x0c
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalTee    = 0x22
	opI32Load     = 0x28
	opI32Const    = 0x41
	blockVoid     = 0x40
)

// Value record tags understood by the host function table.
const (
	TagString   uint32 = 1
	TagInt      uint32 = 2
	TagString16 uint32 = 3
)

// Arg is a value passed to a host function.
type Arg struct {
	data []byte
	tag  uint32
	n    int32
}

// Str passes a UTF-8 string. Invalid sequences are kept as-is.
func Str(s string) Arg { return Arg{tag: TagString, data: []byte(s)} }

// Bytes passes raw bytes tagged as a UTF-8 string.
func Bytes(b []byte) Arg { return Arg{tag: TagString, data: b} }

// Str16 passes a UTF-16LE string.
func Str16(s string) Arg {
	enc, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		enc = nil
	}
	return Arg{tag: TagString16, data: enc}
}

// Int passes an int32.
func Int(v int32) Arg { return Arg{tag: TagInt, n: v} }

type signature struct {
	params  []ValueType
	results []ValueType
}

func (s signature) key() string {
	b := make([]byte, 0, len(s.params)+len(s.results)+1)
	for _, p := range s.params {
		b = append(b, byte(p))
	}
	b = append(b, '>')
	for _, r := range s.results {
		b = append(b, byte(r))
	}
	return string(b)
}

var (
	hostSignature  = signature{params: []ValueType{I32, I32}, results: []ValueType{I32}}
	entrySignature = signature{results: []ValueType{I32}}
)

type importDef struct {
	module string
	name   string
	sig    signature
}

// Builder assembles a snapshot whose entry point performs a fixed sequence of
// host calls. Host call statuses propagate: the entry returns the first
// non-zero status it sees.
type Builder struct {
	hostIdx  map[scripthost.ImportID]uint32
	imports  []importDef
	body     writer
	data     []byte
	exportID scripthost.ExportID
	noExport bool
}

// NewBuilder creates a builder exporting its entry point as ExportInit.
func NewBuilder() *Builder {
	return &Builder{
		hostIdx:  make(map[scripthost.ImportID]uint32),
		exportID: scripthost.ExportInit,
	}
}

// Import declares a raw function import and returns its function index.
func (b *Builder) Import(module, name string, params, results []ValueType) uint32 {
	b.imports = append(b.imports, importDef{
		module: module,
		name:   name,
		sig:    signature{params: params, results: results},
	})
	return uint32(len(b.imports) - 1)
}

func (b *Builder) hostFunc(id scripthost.ImportID) uint32 {
	if idx, ok := b.hostIdx[id]; ok {
		return idx
	}
	idx := b.Import(scripthost.HostModule, strconv.Itoa(int(id)), hostSignature.params, hostSignature.results)
	b.hostIdx[id] = idx
	return idx
}

func (b *Builder) place(data []byte, align int) uint32 {
	for len(b.data)%align != 0 {
		b.data = append(b.data, 0)
	}
	off := uint32(dataBase + len(b.data))
	b.data = append(b.data, data...)
	return off
}

// Call invokes host function id with args.
func (b *Builder) Call(id scripthost.ImportID, args ...Arg) *Builder {
	return b.CallIndex(b.hostFunc(id), args...)
}

// CallIndex invokes an already imported function using the host call ABI.
func (b *Builder) CallIndex(fn uint32, args ...Arg) *Builder {
	var argv uint32
	if len(args) > 0 {
		records := make([]byte, recordLen*len(args))
		for i, a := range args {
			rec := records[i*recordLen:]
			binary.LittleEndian.PutUint32(rec[0:], a.tag)
			switch a.tag {
			case TagInt:
				binary.LittleEndian.PutUint32(rec[4:], uint32(a.n))
			default:
				ptr := b.place(a.data, 1)
				binary.LittleEndian.PutUint32(rec[4:], ptr)
				binary.LittleEndian.PutUint32(rec[8:], uint32(len(a.data)))
			}
		}
		argv = b.place(records, 4)
	}

	w := &b.body
	w.putByte(opI32Const)
	w.s32(int32(argv))
	w.putByte(opI32Const)
	w.s32(int32(len(args)))
	w.putByte(opCall)
	w.u32(fn)
	w.putByte(opLocalTee)
	w.u32(0)
	w.putByte(opIf)
	w.putByte(blockVoid)
	w.putByte(opLocalGet)
	w.u32(0)
	w.putByte(opReturn)
	w.putByte(opEnd)
	return b
}

// Return ends the entry point with code.
func (b *Builder) Return(code int32) *Builder {
	b.body.putByte(opI32Const)
	b.body.s32(code)
	b.body.putByte(opReturn)
	return b
}

// Trap aborts the script with an unreachable trap.
func (b *Builder) Trap() *Builder {
	b.body.putByte(opUnreachable)
	return b
}

// Fault performs an out-of-bounds heap access.
func (b *Builder) Fault() *Builder {
	b.body.putByte(opI32Const)
	b.body.s32(-16)
	b.body.putByte(opI32Load)
	b.body.u32(2)
	b.body.u32(0)
	b.body.putByte(opDrop)
	return b
}

// Spin loops forever.
func (b *Builder) Spin() *Builder {
	w := &b.body
	w.putByte(opLoop)
	w.putByte(blockVoid)
	w.putByte(opBr)
	w.u32(0)
	w.putByte(opEnd)
	return b
}

// ExportAs exports the entry point under id instead of ExportInit.
func (b *Builder) ExportAs(id scripthost.ExportID) *Builder {
	b.exportID = id
	return b
}

// WithoutExport omits the entry point export.
func (b *Builder) WithoutExport() *Builder {
	b.noExport = true
	return b
}

// Bytes encodes the snapshot.
func (b *Builder) Bytes() []byte {
	var types []signature
	typeIdx := make(map[string]uint32)
	typeOf := func(s signature) uint32 {
		k := s.key()
		if idx, ok := typeIdx[k]; ok {
			return idx
		}
		idx := uint32(len(types))
		types = append(types, s)
		typeIdx[k] = idx
		return idx
	}
	importTypes := make([]uint32, len(b.imports))
	for i, imp := range b.imports {
		importTypes[i] = typeOf(imp.sig)
	}
	entryType := typeOf(entrySignature)

	out := &writer{}
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], magic)
	binary.LittleEndian.PutUint32(hdr[4:], version)
	out.write(hdr[:])

	sec := &writer{}
	sec.u32(uint32(len(types)))
	for _, t := range types {
		sec.putByte(0x60)
		sec.u32(uint32(len(t.params)))
		for _, p := range t.params {
			sec.putByte(byte(p))
		}
		sec.u32(uint32(len(t.results)))
		for _, r := range t.results {
			sec.putByte(byte(r))
		}
	}
	out.section(sectionType, sec.contents())

	if len(b.imports) > 0 {
		sec = &writer{}
		sec.u32(uint32(len(b.imports)))
		for i, imp := range b.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.putByte(kindFunc)
			sec.u32(importTypes[i])
		}
		out.section(sectionImport, sec.contents())
	}

	sec = &writer{}
	sec.u32(1)
	sec.u32(entryType)
	out.section(sectionFunction, sec.contents())

	pages := (dataBase + len(b.data) + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	sec = &writer{}
	sec.u32(1)
	sec.putByte(0x00)
	sec.u32(uint32(pages))
	out.section(sectionMemory, sec.contents())

	sec = &writer{}
	exports := uint32(1)
	if !b.noExport {
		exports++
	}
	sec.u32(exports)
	if !b.noExport {
		sec.name(strconv.Itoa(int(b.exportID)))
		sec.putByte(kindFunc)
		sec.u32(uint32(len(b.imports)))
	}
	sec.name("memory")
	sec.putByte(kindMemory)
	sec.u32(0)
	out.section(sectionExport, sec.contents())

	fn := &writer{}
	fn.u32(1)
	fn.u32(1)
	fn.putByte(byte(I32))
	fn.write(b.body.contents())
	fn.putByte(opI32Const)
	fn.s32(0)
	fn.putByte(opEnd)
	sec = &writer{}
	sec.u32(1)
	sec.vec(fn.contents())
	out.section(sectionCode, sec.contents())

	if len(b.data) > 0 {
		sec = &writer{}
		sec.u32(1)
		sec.putByte(0x00)
		sec.putByte(opI32Const)
		sec.s32(dataBase)
		sec.putByte(opEnd)
		sec.vec(b.data)
		out.section(sectionData, sec.contents())
	}

	return out.contents()
}

// Image encodes the snapshot as an Image named name.
func (b *Builder) Image(name string) *Image {
	return NewImage(name, b.Bytes())
}
