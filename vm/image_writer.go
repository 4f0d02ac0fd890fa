package vm

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Compiled blob images
// ---------------------------------------------------------------------------

const (
	blobMagic   = "NEONBLOB"
	blobVersion = 1
)

// Constant tags in a blob image.
const (
	constNull uint8 = iota
	constBool
	constNumber
	constString
	constFunction
	constSwitch
)

type blobImage struct {
	Magic   string   `cbor:"1,keyasint"`
	Version int      `cbor:"2,keyasint"`
	Func    wireFunc `cbor:"3,keyasint"`
}

type wireInstruction struct {
	_    struct{} `cbor:",toarray"`
	IsOp bool
	Code byte
	Line int
}

type wireFunc struct {
	Name         string            `cbor:"1,keyasint"`
	Arity        int               `cbor:"2,keyasint"`
	Variadic     bool              `cbor:"3,keyasint,omitempty"`
	UpvalueCount int               `cbor:"4,keyasint,omitempty"`
	Kind         uint8             `cbor:"5,keyasint"`
	Code         []wireInstruction `cbor:"6,keyasint"`
	Constants    []wireConst       `cbor:"7,keyasint"`
}

type wireConst struct {
	Tag    uint8       `cbor:"1,keyasint"`
	Num    float64     `cbor:"2,keyasint,omitempty"`
	Str    string      `cbor:"3,keyasint,omitempty"`
	Func   *wireFunc   `cbor:"4,keyasint,omitempty"`
	Switch *wireSwitch `cbor:"5,keyasint,omitempty"`
}

type wireSwitch struct {
	Keys        []wireConst `cbor:"1,keyasint"`
	Offsets     []int       `cbor:"2,keyasint"`
	DefaultJump int         `cbor:"3,keyasint"`
	ExitJump    int         `cbor:"4,keyasint"`
}

var blobEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	blobEncMode = em
}

// WriteBlob serializes fn and every function it contains to w.
func (s *State) WriteBlob(w io.Writer, fn *FuncScript) error {
	wf, err := encodeFunc(fn)
	if err != nil {
		return err
	}
	data, err := blobEncMode.Marshal(&blobImage{Magic: blobMagic, Version: blobVersion, Func: *wf})
	if err != nil {
		return fmt.Errorf("vm: marshal blob: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("vm: write blob: %w", err)
	}
	return nil
}

func encodeFunc(fn *FuncScript) (*wireFunc, error) {
	wf := &wireFunc{
		Arity:        fn.Arity,
		Variadic:     fn.Variadic,
		UpvalueCount: fn.UpvalueCount,
		Kind:         uint8(fn.Kind),
		Code:         make([]wireInstruction, len(fn.Blob.Code)),
		Constants:    make([]wireConst, 0, len(fn.Blob.Constants)),
	}
	if fn.Name != nil {
		wf.Name = fn.Name.Chars
	}
	for i, ins := range fn.Blob.Code {
		wf.Code[i] = wireInstruction{IsOp: ins.IsOp, Code: ins.Code, Line: ins.Line}
	}
	for i, c := range fn.Blob.Constants {
		wc, err := encodeConst(c)
		if err != nil {
			return nil, fmt.Errorf("vm: function %s constant %d: %w", funcName(fn), i, err)
		}
		wf.Constants = append(wf.Constants, wc)
	}
	return wf, nil
}

func encodeConst(v Value) (wireConst, error) {
	switch {
	case v.IsNull(), v.IsEmpty():
		return wireConst{Tag: constNull}, nil
	case v.IsBool():
		return wireConst{Tag: constBool, Num: v.num}, nil
	case v.IsNumber():
		return wireConst{Tag: constNumber, Num: v.num}, nil
	case v.IsString():
		return wireConst{Tag: constString, Str: v.AsString().Chars}, nil
	case v.IsObjKind(KindFuncScript):
		wf, err := encodeFunc(v.AsFuncScript())
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Tag: constFunction, Func: wf}, nil
	case v.IsObjKind(KindSwitch):
		sw := v.AsSwitch()
		ws := &wireSwitch{DefaultJump: sw.DefaultJump, ExitJump: sw.ExitJump}
		var err error
		sw.Table.Each(func(k Value, p Property) bool {
			var wk wireConst
			if wk, err = encodeConst(k); err != nil {
				return false
			}
			ws.Keys = append(ws.Keys, wk)
			ws.Offsets = append(ws.Offsets, p.Value.AsInt())
			return true
		})
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Tag: constSwitch, Switch: ws}, nil
	}
	return wireConst{}, fmt.Errorf("cannot serialize constant of type %s", v.obj.header().kind)
}
