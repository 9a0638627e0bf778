package host

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/errors"
)

// Console is the sink host functions write to.
type Console interface {
	Clear()
	Log(text string)
	LogAt(text string, x, y int)
	Warn(text string)
}

// Kind enumerates the host functions.
type Kind uint8

const (
	KindClear Kind = iota + 1
	KindLog
	KindWarn
	KindLogAt
)

type funcSpec struct {
	id    scripthost.ImportID
	arity uint32
}

var specs = map[Kind]funcSpec{
	KindClear: {id: scripthost.ImportClear, arity: 0},
	KindLog:   {id: scripthost.ImportLog, arity: 1},
	KindWarn:  {id: scripthost.ImportWarn, arity: 1},
	KindLogAt: {id: scripthost.ImportLogAt, arity: 3},
}

var kindByID = map[scripthost.ImportID]Kind{
	scripthost.ImportClear: KindClear,
	scripthost.ImportLog:   KindLog,
	scripthost.ImportWarn:  KindWarn,
	scripthost.ImportLogAt: KindLogAt,
}

// Table resolves import ids to host functions bound to one console.
type Table struct {
	console Console
	log     *zap.Logger
}

// NewTable binds the host functions to console.
func NewTable(console Console, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{console: console, log: log}
}

// Lookup returns the function for id.
func (t *Table) Lookup(id scripthost.ImportID) (Function, error) {
	kind, ok := kindByID[id]
	if !ok {
		return Function{}, errors.New(errors.PhaseRestore, errors.KindUnresolvedImport).
			Path(scripthost.HostModule, id.String()).
			Detail("no host function with id %d", id).
			Build()
	}
	return Function{kind: kind, table: t}, nil
}

// ResolveImport implements scripthost.ImportResolver.
func (t *Table) ResolveImport(id scripthost.ImportID) (scripthost.HostFunction, error) {
	fn, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Function is a resolved host function.
type Function struct {
	table *Table
	kind  Kind
}

// Kind returns which host function f is.
func (f Function) Kind() Kind { return f.kind }

// ID implements scripthost.HostFunction.
func (f Function) ID() scripthost.ImportID { return specs[f.kind].id }

// Arity returns the number of arguments f accepts.
func (f Function) Arity() uint32 { return specs[f.kind].arity }

// Invoke implements scripthost.HostFunction.
func (f Function) Invoke(ctx context.Context, mem scripthost.Memory, argv, argc uint32) scripthost.Status {
	name := f.ID().String()
	log := f.table.log

	if argc != f.Arity() {
		log.Error("host call rejected", zap.Error(errors.Arity(name, f.Arity(), argc)))
		return scripthost.StatusArity
	}

	args, err := readArgs(mem, name, argv, argc)
	if err != nil {
		log.Error("host call rejected", zap.Error(err))
		return scripthost.StatusMemory
	}

	c := f.table.console
	switch f.kind {
	case KindClear:
		log.Debug(name + "()")
		c.Clear()

	case KindLog, KindWarn:
		text, status := f.text(mem, name, args, 0)
		if status != scripthost.StatusOK {
			return status
		}
		log.Debug(name+"()", zap.Int("len", len(text)))
		if f.kind == KindLog {
			c.Log(text)
		} else {
			c.Warn(text)
		}

	case KindLogAt:
		text, status := f.text(mem, name, args, 0)
		if status != scripthost.StatusOK {
			return status
		}
		x, err := args[1].i32(name, 1)
		if err != nil {
			log.Error("host call rejected", zap.Error(err))
			return scripthost.StatusType
		}
		y, err := args[2].i32(name, 2)
		if err != nil {
			log.Error("host call rejected", zap.Error(err))
			return scripthost.StatusType
		}
		log.Debug(name+"()", zap.Int("len", len(text)), zap.Int32("x", x), zap.Int32("y", y))
		c.LogAt(text, int(x), int(y))
	}
	return scripthost.StatusOK
}

func (f Function) text(mem scripthost.Memory, name string, args []value, i int) (string, scripthost.Status) {
	text, err := args[i].str(mem, name, i)
	if err == nil {
		return text, scripthost.StatusOK
	}
	f.table.log.Error("host call rejected", zap.Error(err))
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindOutOfBounds {
		return "", scripthost.StatusMemory
	}
	return "", scripthost.StatusType
}
