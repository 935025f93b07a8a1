package symbols

import (
	"debug/dwarf"
	"strings"
)

// Function describes a function of the executable.
type Function struct {
	Name          string
	LowPC, HighPC uint64
	// EntryPC is the first instruction after the prologue, or LowPC when
	// the line table does not mark the end of the prologue.
	EntryPC uint64
}

func newFunction(d *dwarf.Data, e *dwarf.Entry) *Function {
	name, ok := e.Val(dwarf.AttrName).(string)
	if !ok {
		return nil
	}
	ranges, _ := d.Ranges(e)
	if len(ranges) == 0 {
		return nil
	}
	return &Function{
		Name:    name,
		LowPC:   ranges[0][0],
		HighPC:  ranges[0][1],
		EntryPC: ranges[0][0],
	}
}

// BaseName returns the name of the function without its package path.
func (fn *Function) BaseName() string {
	dot := strings.LastIndex(fn.Name, ".")
	if dot != -1 {
		return fn.Name[dot+1:]
	}
	return fn.Name
}
