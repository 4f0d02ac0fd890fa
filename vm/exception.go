package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Exception classes
// ---------------------------------------------------------------------------

const maxTraceEntries = 15

// exceptionCtor is the native constructor of Exception: Exception(message).
func exceptionCtor(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	inst, ok := cs.This.obj.(*Instance)
	if !ok {
		return cs.This
	}
	msg := Null()
	if len(cs.Args) == 1 {
		msg = cs.Args[0]
	}
	inst.Props.Set(s.String("message"), msg)
	return cs.This
}

// newExceptionClass creates a subclass of super (nil for the root) and
// binds it as a global.
func (s *State) newExceptionClass(name string, super *Class) *Class {
	n := s.CopyString(name)
	s.pushRoot(FromObject(n))
	cls := s.NewClass(n, super)
	s.pushRoot(FromObject(cls))
	if super == nil {
		cls.Fields.Set(s.String("message"), Null())
		cls.Fields.Set(s.String("stacktrace"), Null())
		ctor := s.NewNative(name, exceptionCtor, FuncKindInitializer)
		cls.Constructor = FromObject(ctor)
		cls.Methods.Set(s.String("constructor"), cls.Constructor)
	} else {
		super.Fields.CopyTo(&cls.Fields)
	}
	s.DefineGlobal(name, FromObject(cls))
	s.popRoots(2)
	return cls
}

// isSubclass reports whether c is target or inherits from it. A nil target
// matches every class.
func isSubclass(c, target *Class) bool {
	if target == nil {
		return true
	}
	for k := c; k != nil; k = k.Super {
		if k == target {
			return true
		}
	}
	return false
}

// IsException reports whether v is an instance of the root Exception class
// or one of its subclasses.
func (s *State) IsException(v Value) bool {
	inst, ok := v.obj.(*Instance)
	return ok && v.IsObject() && isSubclass(inst.Class, s.classes.exception)
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// stackTrace describes the active frames, innermost first.
func (s *State) stackTrace() []string {
	var lines []string
	for i := s.frameCount - 1; i >= 0; i-- {
		fr := &s.frames[i]
		fn := fr.closure.Fn
		line := 0
		if n := len(fn.Blob.Code); n > 0 {
			ip := fr.ip - 1
			if ip < 0 {
				ip = 0
			}
			if ip >= n {
				ip = n - 1
			}
			line = fn.Blob.Code[ip].Line
		}
		file := "<unknown>"
		if fn.Module != nil && fn.Module.Path != nil {
			file = fn.Module.Path.Chars
		}
		lines = append(lines, fmt.Sprintf("from %s() in %s:%d", funcName(fn), file, line))
	}
	return lines
}

// attachTrace stores the current stack trace on inst unless it already
// carries one.
func (s *State) attachTrace(inst *Instance) {
	key := s.String("stacktrace")
	if p, ok := inst.Props.Get(key); ok && p.Value.IsArray() {
		return
	}
	s.pushRoot(FromObject(inst))
	lines := s.stackTrace()
	arr := s.NewArray(make([]Value, 0, len(lines)))
	s.pushRoot(FromObject(arr))
	for _, l := range lines {
		arr.Items = append(arr.Items, s.String(l))
	}
	inst.Props.Set(key, FromObject(arr))
	s.popRoots(2)
}

// newException builds an instance of cls with message and a stack trace.
func (s *State) newException(cls *Class, msg string) *Instance {
	inst := s.NewInstance(cls)
	s.pushRoot(FromObject(inst))
	inst.Props.Set(s.String("message"), s.String(msg))
	s.attachTrace(inst)
	s.popRoots(1)
	return inst
}

// raise pushes a new exception and returns false so call helpers can
// return it directly. The interpreter propagates it.
func (s *State) raise(cls *Class, format string, args ...any) bool {
	inst := s.newException(cls, fmt.Sprintf(format, args...))
	s.push(FromObject(inst))
	return false
}

// Raise records an exception for the running native to report. The native
// should return right away; the returned Value is ignored.
func (s *State) Raise(cls *Class, format string, args ...any) Value {
	if cls == nil {
		cls = s.classes.exception
	}
	inst := s.newException(cls, fmt.Sprintf(format, args...))
	s.pendingExc = FromObject(inst)
	return Value{}
}

// RaiseValue records an existing exception instance as pending.
func (s *State) RaiseValue(exc Value) Value {
	s.pendingExc = exc
	return Value{}
}

// Pending reports whether a native has raised an exception that has not
// been propagated yet.
func (s *State) Pending() bool { return !s.pendingExc.IsEmpty() }

// ---------------------------------------------------------------------------
// Propagation
// ---------------------------------------------------------------------------

// propagate unwinds to the innermost handler able to deal with the
// exception on top of the stack. It returns true when execution resumes in
// a catch or finally block, and false when no frame of the current runVM
// handles it.
func (s *State) propagate() bool {
	exc := s.pop()
	inst, _ := exc.obj.(*Instance)
	for s.frameCount > s.baseFrame {
		fr := &s.frames[s.frameCount-1]
		for fr.handlerCount > 0 {
			h := fr.handlers[fr.handlerCount-1]
			if h.catchAddr != 0 && inst != nil && isSubclass(inst.Class, h.class) {
				s.closeUpvalues(h.stackHeight)
				s.truncate(h.stackHeight)
				s.push(exc)
				fr.ip = h.catchAddr
				return true
			}
			fr.handlerCount--
			if h.finallyAddr != 0 {
				s.closeUpvalues(h.stackHeight)
				s.truncate(h.stackHeight)
				s.push(exc)
				s.push(Bool(true))
				fr.ip = h.finallyAddr
				return true
			}
		}
		s.closeUpvalues(fr.slotBase)
		s.truncate(fr.slotBase)
		s.frameCount--
	}
	s.pendingExc = exc
	if s.vmDepth <= 1 {
		s.reportUncaught(s.config.Stderr)
	}
	return false
}

// exceptionInfo extracts class name, message and trace of an exception.
func (s *State) exceptionInfo(exc Value) *RuntimeError {
	re := &RuntimeError{Class: s.TypeName(exc)}
	inst, ok := exc.obj.(*Instance)
	if !ok || !exc.IsObject() {
		re.Message = s.Format(exc)
		return re
	}
	re.Class = inst.Class.Name.Chars
	if p, ok := inst.Props.GetByStr("message"); ok && !p.Value.IsNull() {
		re.Message = s.Format(p.Value)
	}
	if p, ok := inst.Props.GetByStr("stacktrace"); ok && p.Value.IsArray() {
		for _, l := range p.Value.AsArray().Items {
			re.Trace = append(re.Trace, s.Format(l))
		}
	}
	return re
}

// reportUncaught prints the pending exception and resets the VM to an
// empty call stack. The exception stays pending for the host to collect.
func (s *State) reportUncaught(w io.Writer) {
	re := s.exceptionInfo(s.pendingExc)
	var b strings.Builder
	fmt.Fprintf(&b, "unhandled %s: %s\n", re.Class, re.Message)
	trace := re.Trace
	limited := !s.config.ShowFullStack && len(trace) > maxTraceEntries
	if limited {
		trace = trace[:maxTraceEntries]
	}
	for _, l := range trace {
		fmt.Fprintf(&b, "    %s\n", l)
	}
	if limited {
		fmt.Fprintf(&b, "    (only upper %d entries shown)\n", maxTraceEntries)
	}
	io.WriteString(w, b.String())
	vmLog.Debugf("uncaught %s at frame depth %d", re.Class, s.frameCount)
	s.reset()
}

// takePending clears and returns the pending exception as a Go error.
func (s *State) takePending() error {
	if s.pendingExc.IsEmpty() {
		return nil
	}
	err := s.exceptionInfo(s.pendingExc)
	s.pendingExc = Value{}
	return err
}

// ---------------------------------------------------------------------------
// Handler stack operations
// ---------------------------------------------------------------------------

func (s *State) pushHandler(fr *CallFrame, cls *Class, catchAddr, finallyAddr int) bool {
	if fr.handlerCount == MaxExceptionHandlers {
		return s.raise(s.classes.exception, "too many nested exception handlers in one function")
	}
	fr.handlers[fr.handlerCount] = ExceptionFrame{
		class:       cls,
		catchAddr:   catchAddr,
		finallyAddr: finallyAddr,
		stackHeight: s.stackTop,
	}
	fr.handlerCount++
	return true
}

func (fr *CallFrame) popHandler() {
	if fr.handlerCount > 0 {
		fr.handlerCount--
	}
}
