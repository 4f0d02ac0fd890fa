package vm

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrBadBlob is returned for input that is not a neon blob image.
var ErrBadBlob = errors.New("vm: not a neon blob")

// ReadBlob loads a blob image written by WriteBlob. The functions belong to
// the top-level module, which is created when none exists yet.
func (s *State) ReadBlob(r io.Reader) (*FuncScript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vm: read blob: %w", err)
	}
	var img blobImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal blob: %w", err)
	}
	if img.Magic != blobMagic {
		return nil, ErrBadBlob
	}
	if img.Version != blobVersion {
		return nil, fmt.Errorf("vm: blob version %d, want %d", img.Version, blobVersion)
	}
	mod := s.topModule
	if mod == nil {
		mod = s.NewModule("blob-"+s.id, "<blob>")
		s.pushRoot(FromObject(mod))
		s.modules.Set(FromObject(mod.Name), FromObject(mod))
		s.popRoots(1)
		s.topModule = mod
	}
	return s.decodeFunc(&img.Func, mod)
}

func (s *State) decodeFunc(wf *wireFunc, mod *Module) (*FuncScript, error) {
	if wf.Kind > uint8(FuncKindScript) {
		return nil, fmt.Errorf("vm: blob function %q has unknown kind %d", wf.Name, wf.Kind)
	}
	fn := s.NewFuncScript(mod, FuncKind(wf.Kind))
	s.pushRoot(FromObject(fn))
	defer s.popRoots(1)
	fn.Arity = wf.Arity
	fn.Variadic = wf.Variadic
	fn.UpvalueCount = wf.UpvalueCount
	if wf.Name != "" {
		fn.Name = s.CopyString(wf.Name)
	}
	fn.Blob.Code = make([]Instruction, len(wf.Code))
	for i, ins := range wf.Code {
		if ins.IsOp && Opcode(ins.Code) >= opcodeCount {
			return nil, fmt.Errorf("vm: blob function %q: bad opcode %d at %d", wf.Name, ins.Code, i)
		}
		fn.Blob.Code[i] = Instruction{IsOp: ins.IsOp, Code: ins.Code, Line: ins.Line}
	}
	fn.Blob.Constants = make([]Value, 0, len(wf.Constants))
	for i := range wf.Constants {
		v, err := s.decodeConst(&wf.Constants[i], mod)
		if err != nil {
			return nil, err
		}
		fn.Blob.Constants = append(fn.Blob.Constants, v)
	}
	return fn, nil
}

func (s *State) decodeConst(wc *wireConst, mod *Module) (Value, error) {
	switch wc.Tag {
	case constNull:
		return Null(), nil
	case constBool:
		return Bool(wc.Num != 0), nil
	case constNumber:
		return Number(wc.Num), nil
	case constString:
		return s.String(wc.Str), nil
	case constFunction:
		if wc.Func == nil {
			return Value{}, fmt.Errorf("vm: blob function constant without body")
		}
		fn, err := s.decodeFunc(wc.Func, mod)
		if err != nil {
			return Value{}, err
		}
		return FromObject(fn), nil
	case constSwitch:
		if wc.Switch == nil || len(wc.Switch.Keys) != len(wc.Switch.Offsets) {
			return Value{}, fmt.Errorf("vm: malformed switch constant")
		}
		sw := s.NewSwitch()
		s.pushRoot(FromObject(sw))
		defer s.popRoots(1)
		sw.DefaultJump = wc.Switch.DefaultJump
		sw.ExitJump = wc.Switch.ExitJump
		for i := range wc.Switch.Keys {
			k, err := s.decodeConst(&wc.Switch.Keys[i], mod)
			if err != nil {
				return Value{}, err
			}
			sw.Table.Set(k, Number(float64(wc.Switch.Offsets[i])))
		}
		return FromObject(sw), nil
	}
	return Value{}, fmt.Errorf("vm: unknown constant tag %d", wc.Tag)
}
