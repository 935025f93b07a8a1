package debugger

import (
	"fmt"
	"strconv"
	"strings"
)

// LocationSpec is a parsed breakpoint location.
type LocationSpec interface {
	// Find resolves the location to an instruction address.
	Find(syms Symbols) (uint64, error)
	String() string
}

// AddrLocationSpec is an absolute address, written *ADDR.
type AddrLocationSpec struct {
	Addr uint64
}

// LineLocationSpec is a source line, optionally qualified by a file name.
// An empty File refers to the file of the entry function.
type LineLocationSpec struct {
	File string
	Line int
}

// FuncLocationSpec is the entry of a function.
type FuncLocationSpec struct {
	Name string
}

// parseLocationSpec classifies locStr. An address prefix is tried first,
// then a line number, then file:line, and anything else is taken as a
// function name.
func parseLocationSpec(locStr string) (LocationSpec, error) {
	locStr = strings.TrimSpace(locStr)

	malformed := func(reason string) error {
		return fmt.Errorf("malformed breakpoint location %q: %s", locStr, reason)
	}

	if len(locStr) == 0 {
		return nil, malformed("empty string")
	}

	if locStr[0] == '*' {
		addr, err := parseAddress(locStr[1:])
		if err != nil {
			return nil, malformed(err.Error())
		}
		return &AddrLocationSpec{Addr: addr}, nil
	}

	if line, err := strconv.Atoi(locStr); err == nil {
		if line <= 0 {
			return nil, malformed("line numbers start at 1")
		}
		return &LineLocationSpec{Line: line}, nil
	}

	if colon := strings.LastIndex(locStr, ":"); colon > 0 {
		if line, err := strconv.Atoi(locStr[colon+1:]); err == nil {
			if line <= 0 {
				return nil, malformed("line numbers start at 1")
			}
			return &LineLocationSpec{File: locStr[:colon], Line: line}, nil
		}
	}

	if strings.ContainsAny(locStr, " \t") {
		return nil, malformed("unexpected whitespace")
	}
	return &FuncLocationSpec{Name: locStr}, nil
}

// parseAddress parses a hexadecimal address with an optional 0x prefix.
func parseAddress(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, fmt.Errorf("missing address")
	}
	addr, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

// Find accepts the address if it lies inside a known function: a trap
// written anywhere else would corrupt data or fail to install.
func (loc *AddrLocationSpec) Find(syms Symbols) (uint64, error) {
	if syms.PCToFunc(loc.Addr) == nil {
		return 0, fmt.Errorf("address %#x is not inside any function", loc.Addr)
	}
	return loc.Addr, nil
}

func (loc *AddrLocationSpec) String() string {
	return fmt.Sprintf("*%#x", loc.Addr)
}

func (loc *LineLocationSpec) Find(syms Symbols) (uint64, error) {
	return syms.LineToPC(loc.File, loc.Line)
}

func (loc *LineLocationSpec) String() string {
	if loc.File == "" {
		return strconv.Itoa(loc.Line)
	}
	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

func (loc *FuncLocationSpec) Find(syms Symbols) (uint64, error) {
	return syms.FunctionEntry(loc.Name)
}

func (loc *FuncLocationSpec) String() string {
	return loc.Name
}
