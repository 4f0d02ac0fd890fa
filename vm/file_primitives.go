package vm

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// File objects
// ---------------------------------------------------------------------------

var fileClassDef = ClassDef{
	Name: "File",
	Functions: []FuncDef{
		{Name: "constructor", Fn: fileConstruct},
		{Name: "exists", Fn: fileExists},
		{Name: "read", Fn: fileRead},
		{Name: "write", Fn: fileWrite},
		{Name: "puts", Fn: filePuts},
		{Name: "readline", Fn: fileReadLine},
		{Name: "close", Fn: fileClose},
		{Name: "open", Fn: fileOpen},
		{Name: "is_open", Fn: fileIsOpen},
		{Name: "path", Fn: filePath},
		{Name: "mode", Fn: fileMode},
		{Name: "flush", Fn: fileFlush},
		{Name: "size", Fn: fileSize},
		{Name: "exists", Fn: fileStaticExists, IsStatic: true},
		{Name: "read", Fn: fileStaticRead, IsStatic: true},
	},
}

// newStdFile wraps one of the process streams. Standard files are never
// closed by the VM.
func (s *State) newStdFile(path, mode string, r io.Reader, w io.Writer) *File {
	f := &File{isStd: true, isOpen: true, writer: w}
	if r != nil {
		f.reader = bufio.NewReader(r)
	}
	p := s.CopyString(path)
	s.pushRoot(FromObject(p))
	m := s.CopyString(mode)
	s.pushRoot(FromObject(m))
	f.Path, f.Mode = p, m
	s.register(f, KindFile)
	s.popRoots(2)
	return f
}

// NewFile allocates a closed file object for path.
func (s *State) NewFile(path, mode string) *File {
	p := s.CopyString(path)
	s.pushRoot(FromObject(p))
	m := s.CopyString(mode)
	s.pushRoot(FromObject(m))
	f := &File{Path: p, Mode: m}
	s.register(f, KindFile)
	s.popRoots(2)
	return f
}

func openFlags(mode string) (int, bool) {
	plus := strings.Contains(mode, "+")
	switch strings.TrimSuffix(strings.ReplaceAll(mode, "b", ""), "+") {
	case "r":
		if plus {
			return os.O_RDWR, true
		}
		return os.O_RDONLY, true
	case "w":
		if plus {
			return os.O_RDWR | os.O_CREATE | os.O_TRUNC, true
		}
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case "a":
		if plus {
			return os.O_RDWR | os.O_CREATE | os.O_APPEND, true
		}
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	}
	return 0, false
}

func (s *State) openFile(f *File) bool {
	if f.isOpen {
		return true
	}
	flags, ok := openFlags(f.Mode.Chars)
	if !ok {
		s.Raise(s.classes.valueError, "invalid file mode '%s'", f.Mode.Chars)
		return false
	}
	h, err := os.OpenFile(f.Path.Chars, flags, 0o644)
	if err != nil {
		s.Raise(s.classes.ioError, "cannot open %s: %v", f.Path.Chars, err)
		return false
	}
	f.handle = h
	f.reader = bufio.NewReader(h)
	f.writer = h
	f.isOpen = true
	return true
}

func (s *State) closeFile(f *File) {
	if f.isStd || !f.isOpen {
		return
	}
	f.handle.Close()
	f.handle = nil
	f.reader = nil
	f.writer = nil
	f.isOpen = false
}

func fileConstruct(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(1, 2) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	mode := "r"
	if len(cs.Args) == 2 {
		if !cs.CheckType(1, Value.IsString, "string") {
			return Value{}
		}
		mode = cs.Args[1].AsString().Chars
	}
	if _, ok := openFlags(mode); !ok {
		return s.Raise(s.classes.valueError, "invalid file mode '%s'", mode)
	}
	f := s.NewFile(cs.Args[0].AsString().Chars, mode)
	s.GCProtect(FromObject(f))
	if !s.openFile(f) {
		return Value{}
	}
	return FromObject(f)
}

func thisFile(cs *CallState) *File { return cs.This.AsFile() }

func fileExists(s *State, cs *CallState) Value {
	f := thisFile(cs)
	if f.isStd {
		return Bool(true)
	}
	_, err := os.Stat(f.Path.Chars)
	return Bool(err == nil)
}

func (s *State) readable(f *File) bool {
	if !s.openFile(f) {
		return false
	}
	if f.reader == nil {
		s.Raise(s.classes.ioError, "file %s is not readable", f.Path.Chars)
		return false
	}
	return true
}

func (s *State) writable(f *File) bool {
	if !s.openFile(f) {
		return false
	}
	if f.writer == nil || f.Mode.Chars == "r" {
		s.Raise(s.classes.ioError, "file %s is not writable", f.Path.Chars)
		return false
	}
	return true
}

func fileRead(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	f := thisFile(cs)
	if !s.readable(f) {
		return Value{}
	}
	if len(cs.Args) == 1 {
		if !cs.CheckType(0, Value.IsNumber, "number") {
			return Value{}
		}
		buf := make([]byte, max(cs.Args[0].AsInt(), 0))
		n, err := io.ReadFull(f.reader, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return s.Raise(s.classes.ioError, "cannot read %s: %v", f.Path.Chars, err)
		}
		return FromObject(s.TakeString(buf[:n]))
	}
	data, err := io.ReadAll(f.reader)
	if err != nil {
		return s.Raise(s.classes.ioError, "cannot read %s: %v", f.Path.Chars, err)
	}
	return FromObject(s.TakeString(data))
}

func fileWrite(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	f := thisFile(cs)
	if !s.writable(f) {
		return Value{}
	}
	str, ok := s.stringify(cs.Args[0])
	if !ok {
		return s.RaiseValue(s.pop())
	}
	n, err := io.WriteString(f.writer, str.Chars)
	if err != nil {
		return s.Raise(s.classes.ioError, "cannot write %s: %v", f.Path.Chars, err)
	}
	return Number(float64(n))
}

func filePuts(s *State, cs *CallState) Value {
	f := thisFile(cs)
	if !s.writable(f) {
		return Value{}
	}
	var b strings.Builder
	for _, a := range cs.Args {
		str, ok := s.stringify(a)
		if !ok {
			return s.RaiseValue(s.pop())
		}
		b.WriteString(str.Chars)
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(f.writer, b.String()); err != nil {
		return s.Raise(s.classes.ioError, "cannot write %s: %v", f.Path.Chars, err)
	}
	return Null()
}

func fileReadLine(s *State, cs *CallState) Value {
	if !cs.CheckCount(0) {
		return Value{}
	}
	f := thisFile(cs)
	if !s.readable(f) {
		return Value{}
	}
	line, err := f.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return s.Raise(s.classes.ioError, "cannot read %s: %v", f.Path.Chars, err)
	}
	if line == "" && err != nil {
		return Null()
	}
	return s.String(strings.TrimRight(line, "\r\n"))
}

func fileClose(s *State, cs *CallState) Value {
	s.closeFile(thisFile(cs))
	return Null()
}

func fileOpen(s *State, cs *CallState) Value {
	if !s.openFile(thisFile(cs)) {
		return Value{}
	}
	return cs.This
}

func fileIsOpen(s *State, cs *CallState) Value { return Bool(thisFile(cs).isOpen) }

func filePath(s *State, cs *CallState) Value { return FromObject(thisFile(cs).Path) }

func fileMode(s *State, cs *CallState) Value { return FromObject(thisFile(cs).Mode) }

func fileFlush(s *State, cs *CallState) Value {
	f := thisFile(cs)
	if bw, ok := f.writer.(*bufio.Writer); ok {
		bw.Flush()
	}
	if f.handle != nil {
		f.handle.Sync()
	}
	return Null()
}

func fileSize(s *State, cs *CallState) Value {
	f := thisFile(cs)
	if f.isStd {
		return Number(0)
	}
	st, err := os.Stat(f.Path.Chars)
	if err != nil {
		return s.Raise(s.classes.ioError, "cannot stat %s: %v", f.Path.Chars, err)
	}
	return Number(float64(st.Size()))
}

func fileStaticExists(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	_, err := os.Stat(cs.Args[0].AsString().Chars)
	return Bool(err == nil)
}

func fileStaticRead(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	data, err := os.ReadFile(cs.Args[0].AsString().Chars)
	if err != nil {
		return s.Raise(s.classes.ioError, "cannot read %s: %v", cs.Args[0].AsString().Chars, err)
	}
	return FromObject(s.TakeString(data))
}
