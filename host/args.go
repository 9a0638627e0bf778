package host

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
)

const (
	tagString   uint32 = 1
	tagInt      uint32 = 2
	tagString16 uint32 = 3

	recordLen = 12
)

var (
	utf8Decoding  encoding.Encoding = unicode.UTF8
	utf16Decoding encoding.Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// value is one argument record copied out of guest memory.
type value struct {
	tag uint32
	a   uint32
	b   uint32
}

func readArgs(mem scripthost.Memory, name string, argv, argc uint32) ([]value, error) {
	if argc == 0 {
		return nil, nil
	}
	size := argc * recordLen
	if size/recordLen != argc || argv+size < argv {
		return nil, errors.OutOfBounds(errors.PhaseHost, []string{name, "argv"}, argv, size)
	}
	raw, err := mem.Read(argv, size)
	if err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindOutOfBounds).
			Path(name, "argv").
			Cause(err).
			Build()
	}
	args := make([]value, argc)
	for i := range args {
		rec := raw[i*recordLen:]
		args[i] = value{
			tag: binary.LittleEndian.Uint32(rec[0:]),
			a:   binary.LittleEndian.Uint32(rec[4:]),
			b:   binary.LittleEndian.Uint32(rec[8:]),
		}
	}
	return args, nil
}

// str converts a string record to UTF-8. Invalid sequences decode to
// U+FFFD rather than failing the call.
func (v value) str(mem scripthost.Memory, name string, i int) (string, error) {
	var enc encoding.Encoding
	switch v.tag {
	case tagString:
		enc = utf8Decoding
	case tagString16:
		enc = utf16Decoding
	default:
		return "", errors.Conversion(name, i, "expected a string")
	}
	if v.b == 0 {
		return "", nil
	}
	raw, err := mem.Read(v.a, v.b)
	if err != nil {
		return "", errors.OutOfBounds(errors.PhaseHost, []string{name, "string"}, v.a, v.b)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Conversion(name, i, err.Error())
	}
	return string(out), nil
}

func (v value) i32(name string, i int) (int32, error) {
	if v.tag != tagInt {
		return 0, errors.Conversion(name, i, "expected an int32")
	}
	return int32(v.a), nil
}
