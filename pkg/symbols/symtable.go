// Package symbols indexes the DWARF debug information of an executable so
// that instruction addresses can be translated to functions and source
// lines, and source locations back to addresses.
package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deet-dbg/deet/pkg/logflags"
)

// Location is a source position resolved from an instruction address.
type Location struct {
	PC       uint64
	Function string
	File     string
	Line     int
}

func (l *Location) String() string {
	fn := l.Function
	if fn == "" {
		fn = "??"
	}
	if l.File == "" {
		return fmt.Sprintf("%s (%#x)", fn, l.PC)
	}
	return fmt.Sprintf("%s (%s:%d)", fn, l.File, l.Line)
}

// Table is a read-only index over the debug information of an executable.
// It is built once by Load and never modified afterwards.
type Table struct {
	cus     []*compileUnit
	funcs   []*Function
	byName  map[string]*Function
	rows    []lineRow
	fileIdx map[string][]*fileInfo
	entry   string
}

// Load opens the ELF executable at path and indexes its DWARF data.
// Failure to open the file is reported as *OpenError, anything wrong with
// its contents as *FormatError.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	defer f.Close()

	exe, err := elf.NewFile(f)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	d, err := exe.DWARF()
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	t, err := LoadDWARF(d)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return t, nil
}

// LoadDWARF builds a Table from already parsed DWARF data.
func LoadDWARF(d *dwarf.Data) (*Table, error) {
	log := logflags.SymbolsLogger()
	t := &Table{byName: make(map[string]*Function)}
	files := make(map[string]*fileInfo)

	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		switch e.Tag {
		case dwarf.TagCompileUnit:
			cu := newCompileUnit(e)
			if err := cu.loadLines(d, e, files); err != nil {
				return nil, fmt.Errorf("line table of %s: %v", cu.name, err)
			}
			t.cus = append(t.cus, cu)
			t.rows = append(t.rows, cu.rows...)
		case dwarf.TagSubprogram:
			if fn := newFunction(d, e); fn != nil {
				if len(t.cus) > 0 {
					t.cus[len(t.cus)-1].funcs = append(t.cus[len(t.cus)-1].funcs, fn)
				}
				t.funcs = append(t.funcs, fn)
			}
			if e.Children {
				r.SkipChildren()
			}
		case dwarf.TagNamespace, 0:
			// namespaces can contain subprograms, descend into them.
		default:
			if e.Children {
				r.SkipChildren()
			}
		}
	}
	if len(t.cus) == 0 {
		return nil, fmt.Errorf("no compile units")
	}

	sort.SliceStable(t.rows, func(i, j int) bool {
		if t.rows[i].addr != t.rows[j].addr {
			return t.rows[i].addr < t.rows[j].addr
		}
		// An end of sequence marker sorts before a row starting a new
		// sequence at the same address.
		return t.rows[i].end && !t.rows[j].end
	})
	sort.SliceStable(t.funcs, func(i, j int) bool { return t.funcs[i].LowPC < t.funcs[j].LowPC })
	for _, fn := range t.funcs {
		if _, dup := t.byName[fn.Name]; !dup {
			t.byName[fn.Name] = fn
		}
		fn.EntryPC = t.prologueEnd(fn)
	}

	t.fileIdx = make(map[string][]*fileInfo)
	for _, f := range files {
		f.index(t.fileIdx)
	}

	t.entry = "main"
	if _, ok := t.byName["main.main"]; ok {
		t.entry = "main.main"
	}

	if logflags.Symbols() {
		log.Debugf("loaded %d compile units, %d functions, %d line rows, %d files", len(t.cus), len(t.funcs), len(t.rows), len(files))
	}
	return t, nil
}

// prologueEnd returns the first address of fn flagged as the end of the
// function prologue, or the function's low PC if the compiler did not emit
// the flag. Some compilers flag an instruction still attributed to the
// declaration line; the first statement of a later line is used instead.
func (t *Table) prologueEnd(fn *Function) uint64 {
	start := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].addr >= fn.LowPC })
	for start < len(t.rows) && t.rows[start].end {
		start++
	}
	for i := start; i < len(t.rows) && t.rows[i].addr < fn.HighPC; i++ {
		if t.rows[i].prologueEnd && !t.rows[i].end {
			return t.firstBodyStmt(fn, start, i)
		}
	}
	return fn.LowPC
}

// firstBodyStmt returns the address of the first statement at or after row
// i whose line differs from the line at the start of fn.
func (t *Table) firstBodyStmt(fn *Function, start, i int) uint64 {
	decl := t.rows[start].line
	if t.rows[start].addr != fn.LowPC || t.rows[i].line != decl {
		return t.rows[i].addr
	}
	for j := i + 1; j < len(t.rows) && t.rows[j].addr < fn.HighPC; j++ {
		row := t.rows[j]
		if row.end {
			break
		}
		if row.stmt && row.line != decl && row.file == t.rows[i].file {
			return row.addr
		}
	}
	return t.rows[i].addr
}

// EntryFunction returns the name of the function where user code starts,
// main.main for Go programs and main otherwise.
func (t *Table) EntryFunction() string {
	return t.entry
}

// Functions returns the names of all the functions in the executable.
func (t *Table) Functions() []string {
	r := make([]string, 0, len(t.byName))
	for name := range t.byName {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// PCToFunc returns the function containing pc, or nil.
func (t *Table) PCToFunc(pc uint64) *Function {
	i := sort.Search(len(t.funcs), func(i int) bool { return t.funcs[i].LowPC > pc })
	if i == 0 {
		return nil
	}
	if fn := t.funcs[i-1]; pc < fn.HighPC {
		return fn
	}
	return nil
}

// PCToLine returns the file and line of the line table row covering pc.
func (t *Table) PCToLine(pc uint64) (string, int, bool) {
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].addr > pc })
	if i == 0 {
		return "", 0, false
	}
	row := t.rows[i-1]
	if row.end {
		return "", 0, false
	}
	return row.file, row.line, true
}

// PCToLocation resolves pc to the enclosing function and source line. The
// second return value is false if pc is outside every known function and
// line range.
func (t *Table) PCToLocation(pc uint64) (*Location, bool) {
	fn := t.PCToFunc(pc)
	file, line, ok := t.PCToLine(pc)
	if fn == nil && !ok {
		return nil, false
	}
	loc := &Location{PC: pc, File: file, Line: line}
	if fn != nil {
		loc.Function = fn.Name
	}
	return loc, true
}

// LookupFunc returns the function with the given name. Besides exact
// matches the name can omit the main package qualifier or, when it is
// unique, the package path altogether.
func (t *Table) LookupFunc(name string) (*Function, error) {
	if fn, ok := t.byName[name]; ok {
		return fn, nil
	}
	if fn, ok := t.byName["main."+name]; ok {
		return fn, nil
	}
	var candidates []*Function
	for _, fn := range t.byName {
		if fn.BaseName() == name {
			candidates = append(candidates, fn)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, &NotFoundError{Location: name}
	case 1:
		return candidates[0], nil
	}
	names := make([]string, 0, len(candidates))
	for _, fn := range candidates {
		names = append(names, fn.Name)
	}
	sort.Strings(names)
	return nil, &AmbiguousError{Location: name, Candidates: names}
}

// FunctionEntry returns the address where a breakpoint on the named
// function should be placed.
func (t *Table) FunctionEntry(name string) (uint64, error) {
	fn, err := t.LookupFunc(name)
	if err != nil {
		return 0, err
	}
	return fn.EntryPC, nil
}

// LineToPC returns the lowest statement address generated for the given
// line. An empty file selects the file declaring the entry function,
// otherwise file is matched as a path suffix against the files of the line
// table.
func (t *Table) LineToPC(file string, line int) (uint64, error) {
	where := fmt.Sprintf("%s:%d", file, line)
	if file == "" {
		fn, ok := t.byName[t.entry]
		if !ok {
			return 0, &NotFoundError{Location: fmt.Sprint(line)}
		}
		f, _, ok := t.PCToLine(fn.LowPC)
		if !ok {
			return 0, &NotFoundError{Location: fmt.Sprint(line)}
		}
		file, where = f, fmt.Sprint(line)
	}

	normalized := filepath.Join(string(filepath.Separator), file)
	files, ok := t.fileIdx[normalized]
	if !ok {
		return 0, &NotFoundError{Location: where}
	}
	if len(files) > 1 {
		candidates := make([]string, 0, len(files))
		for _, f := range files {
			candidates = append(candidates, f.name)
		}
		sort.Strings(candidates)
		return 0, &AmbiguousError{Location: where, Candidates: candidates}
	}
	if pc, ok := files[0].lines[line]; ok {
		return pc, nil
	}
	return 0, &NotFoundError{Location: where}
}

type lineRow struct {
	addr        uint64
	file        string
	line        int
	prologueEnd bool
	stmt        bool
	end         bool
}

type fileInfo struct {
	name  string
	lines map[int]uint64
}

func (f *fileInfo) index(m map[string][]*fileInfo) {
	pos := len(f.name)
	for {
		pos = strings.LastIndex(f.name[:pos], string(filepath.Separator))
		if pos == -1 {
			break
		}
		name := f.name[pos:]
		m[name] = append(m[name], f)
	}
}

type compileUnit struct {
	name  string
	rows  []lineRow
	funcs []*Function
}

func newCompileUnit(e *dwarf.Entry) *compileUnit {
	cu := &compileUnit{}
	cu.name, _ = e.Val(dwarf.AttrName).(string)
	return cu
}

func (cu *compileUnit) loadLines(d *dwarf.Data, e *dwarf.Entry, files map[string]*fileInfo) error {
	r, err := d.LineReader(e)
	if err != nil {
		return err
	}
	if r == nil {
		// compile unit without a line table
		return nil
	}

	for {
		var l dwarf.LineEntry
		err := r.Next(&l)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := ""
		if l.File != nil {
			name = l.File.Name
		}
		cu.rows = append(cu.rows, lineRow{
			addr:        l.Address,
			file:        name,
			line:        l.Line,
			prologueEnd: l.PrologueEnd,
			stmt:        l.IsStmt,
			end:         l.EndSequence,
		})
		if l.EndSequence || !l.IsStmt || name == "" {
			continue
		}
		f, ok := files[name]
		if !ok {
			f = &fileInfo{name: name, lines: make(map[int]uint64)}
			files[name] = f
		}
		if pc, ok := f.lines[l.Line]; !ok || l.Address < pc {
			f.lines[l.Line] = l.Address
		}
	}
	return nil
}
