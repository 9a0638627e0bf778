package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
)

// ParseScript reads a console script, one command per line, into a Builder:
//
//	clear
//	log <text>
//	log16 <text>          log with a UTF-16 string argument
//	warn <text>
//	logat <x> <y> <text>
//	return <code>
//	trap
//	fault
//
// Blank lines and lines starting with # are skipped. Text runs to the end of
// the line; \n and \t escapes are expanded.
func ParseScript(r io.Reader) (*Builder, error) {
	b := NewBuilder()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cmd, rest, _ := strings.Cut(text, " ")
		if err := parseCommand(b, cmd, strings.TrimLeft(rest, " \t")); err != nil {
			return nil, errors.InvalidInput(errors.PhaseStorage, fmt.Sprintf("line %d: %v", line, err))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseStorage, errors.KindTruncated, err, "read script")
	}
	return b, nil
}

var unescape = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

func parseCommand(b *Builder, cmd, rest string) error {
	switch cmd {
	case "clear":
		b.Call(scripthost.ImportClear)
	case "log":
		b.Call(scripthost.ImportLog, Str(unescape.Replace(rest)))
	case "log16":
		b.Call(scripthost.ImportLog, Str16(unescape.Replace(rest)))
	case "warn":
		b.Call(scripthost.ImportWarn, Str(unescape.Replace(rest)))
	case "logat":
		fields := strings.SplitN(rest, " ", 3)
		if len(fields) < 2 {
			return fmt.Errorf("logat needs x and y")
		}
		x, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return fmt.Errorf("logat x: %w", err)
		}
		y, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return fmt.Errorf("logat y: %w", err)
		}
		var s string
		if len(fields) == 3 {
			s = unescape.Replace(fields[2])
		}
		b.Call(scripthost.ImportLogAt, Str(s), Int(int32(x)), Int(int32(y)))
	case "return":
		code, err := strconv.ParseInt(rest, 10, 32)
		if err != nil {
			return fmt.Errorf("return code: %w", err)
		}
		b.Return(int32(code))
	case "trap":
		b.Trap()
	case "fault":
		b.Fault()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
