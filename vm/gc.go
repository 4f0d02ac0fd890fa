package vm

// ---------------------------------------------------------------------------
// Mark-sweep collector
// ---------------------------------------------------------------------------
//
// Marking sets an object's mark bit to currentMark. Sweep frees everything
// whose bit differs, then currentMark flips, which turns every survivor
// white again without touching it. New objects start with !currentMark.

// MarkObject marks o reachable and queues it for tracing.
func (s *State) MarkObject(o Object) {
	if o == nil {
		return
	}
	h := o.header()
	if h.mark == s.currentMark {
		return
	}
	h.mark = s.currentMark
	s.gray = append(s.gray, o)
}

// MarkValue marks the object payload of v, if any.
func (s *State) MarkValue(v Value) {
	if v.typ == ValObject {
		s.MarkObject(v.obj)
	}
}

func (s *State) markTable(t *HashTable) {
	for i := range t.entries {
		e := &t.entries[i]
		s.MarkValue(e.Key)
		s.MarkValue(e.Value.Value)
	}
}

func (s *State) markRoots() {
	for i := 0; i < s.stackTop; i++ {
		s.MarkValue(s.stack[i])
	}
	for i := 0; i < s.frameCount; i++ {
		fr := &s.frames[i]
		s.MarkObject(fr.closure)
		for j := 0; j < fr.handlerCount; j++ {
			if c := fr.handlers[j].class; c != nil {
				s.MarkObject(c)
			}
		}
	}
	for uv := s.openUpvalues; uv != nil; uv = uv.nextOpen {
		s.MarkObject(uv)
	}
	s.markTable(&s.globals)
	s.markTable(&s.modules)
	s.MarkValue(s.pendingExc)
	if s.topModule != nil {
		s.MarkObject(s.topModule)
	}
	s.classes.mark(s)
	for _, r := range s.rootSets {
		r.MarkRoots(s)
	}
	for _, o := range s.pinned {
		o.header().mark = !s.currentMark
		s.MarkObject(o)
	}
}

func (s *State) blacken(o Object) {
	switch x := o.(type) {
	case *Module:
		s.MarkObject(x.Name)
		if x.Path != nil {
			s.MarkObject(x.Path)
		}
		s.markTable(&x.Defs)
	case *Array:
		for _, v := range x.Items {
			s.MarkValue(v)
		}
	case *Dict:
		for _, v := range x.Keys {
			s.MarkValue(v)
		}
		s.markTable(&x.Table)
	case *File:
		if x.Path != nil {
			s.MarkObject(x.Path)
		}
		if x.Mode != nil {
			s.MarkObject(x.Mode)
		}
	case *FuncBound:
		s.MarkValue(x.Receiver)
		s.MarkValue(x.Method)
	case *Class:
		if x.Name != nil {
			s.MarkObject(x.Name)
		}
		s.MarkValue(x.Constructor)
		s.markTable(&x.Fields)
		s.markTable(&x.StaticFields)
		s.markTable(&x.Methods)
		s.markTable(&x.StaticMethods)
		if x.Super != nil {
			s.MarkObject(x.Super)
		}
	case *FuncScript:
		if x.Name != nil {
			s.MarkObject(x.Name)
		}
		if x.Module != nil {
			s.MarkObject(x.Module)
		}
		for _, v := range x.Blob.Constants {
			s.MarkValue(v)
		}
	case *FuncClosure:
		s.MarkObject(x.Fn)
		for _, uv := range x.Upvalues {
			if uv != nil {
				s.MarkObject(uv)
			}
		}
	case *Instance:
		s.markTable(&x.Props)
		s.MarkObject(x.Class)
	case *Upvalue:
		s.MarkValue(x.closed)
	case *Switch:
		s.markTable(&x.Table)
	}
}

func (s *State) traceRefs() {
	for len(s.gray) > 0 {
		o := s.gray[len(s.gray)-1]
		s.gray = s.gray[:len(s.gray)-1]
		s.blacken(o)
	}
}

func (s *State) sweep() int {
	freed := 0
	var prev Object
	o := s.objects
	for o != nil {
		h := o.header()
		if h.mark == s.currentMark || h.stale {
			prev = o
			o = h.next
			continue
		}
		dead := o
		o = h.next
		if prev == nil {
			s.objects = o
		} else {
			prev.header().next = o
		}
		s.bytesAllocated -= objectSize(dead)
		s.destroy(dead)
		dead.header().next = nil
		s.objectCount--
		freed++
	}
	if s.bytesAllocated < 0 {
		s.bytesAllocated = 0
	}
	return freed
}

// CollectGarbage runs one full collection cycle. Objects unreachable from
// the roots are freed within this same cycle.
func (s *State) CollectGarbage() {
	if s.collecting {
		return
	}
	s.collecting = true
	defer func() { s.collecting = false }()

	before := s.bytesAllocated
	s.markRoots()
	s.traceRefs()
	s.strings.removeWhite(s.currentMark)
	freed := s.sweep()
	s.currentMark = !s.currentMark
	s.nextGC = int(float64(s.bytesAllocated) * s.config.GCGrowth)
	if s.nextGC < s.config.GCStart/4 {
		s.nextGC = s.config.GCStart / 4
	}
	s.gcCycles++
	gcLog.Debugf("cycle %d: freed %d objects, %d -> %d bytes, next at %d",
		s.gcCycles, freed, before, s.bytesAllocated, s.nextGC)
}

// gcMaybeCollect accounts delta bytes and collects when the threshold is
// passed, unless the current frame holds protected temporaries.
func (s *State) gcMaybeCollect(delta int) {
	s.bytesAllocated += delta
	if delta <= 0 || s.bytesAllocated <= s.nextGC {
		return
	}
	if *s.protCounter() > 0 {
		return
	}
	s.CollectGarbage()
}

// accountBytes records payload growth without triggering a collection.
func (s *State) accountBytes(delta int) {
	s.bytesAllocated += delta
}

// ---------------------------------------------------------------------------
// Manual protection
// ---------------------------------------------------------------------------

func (s *State) protCounter() *int {
	if s.frameCount == 0 {
		return &s.rootProt
	}
	return &s.frames[s.frameCount-1].gcProtCount
}

// GCProtect pushes v on the stack so it stays reachable, and bumps the
// current frame's protect count which also inhibits collection. Natives
// do not need to clear it: callNative does.
func (s *State) GCProtect(v Value) Value {
	s.push(v)
	*s.protCounter()++
	return v
}

// GCClearProtect pops every value protected in the current frame.
func (s *State) GCClearProtect() {
	c := s.protCounter()
	if *c > 0 {
		s.popN(*c)
		*c = 0
	}
}

// Protect runs fn and then releases whatever fn protected.
func (s *State) Protect(fn func()) {
	c := s.protCounter()
	saved := *c
	*c = 0
	defer func() {
		if n := *s.protCounter(); n > 0 {
			s.popN(n)
		}
		*s.protCounter() = saved
	}()
	fn()
}

// Stats reports collector counters.
type Stats struct {
	Objects        int
	BytesAllocated int
	NextGC         int
	Cycles         int
}

// GCStats returns the current collector counters.
func (s *State) GCStats() Stats {
	return Stats{
		Objects:        s.objectCount,
		BytesAllocated: s.bytesAllocated,
		NextGC:         s.nextGC,
		Cycles:         s.gcCycles,
	}
}
