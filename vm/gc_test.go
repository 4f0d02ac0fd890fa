package vm

import (
	"fmt"
	"testing"
)

func TestStringInterning(t *testing.T) {
	s, _ := newTestState(t)

	a := s.CopyString("hello")
	b := s.CopyString("hello")
	if a != b {
		t.Error("equal strings were not interned to one object")
	}
	c := s.TakeString([]byte("hello"))
	if c != a {
		t.Error("TakeString did not reuse the interned string")
	}
	if s.CopyString("world") == a {
		t.Error("different strings share an object")
	}
}

func TestCollectFreesUnreachable(t *testing.T) {
	s, _ := newTestState(t)
	s.CollectGarbage()
	base := s.GCStats().Objects

	for i := 0; i < 100; i++ {
		s.CopyString(fmt.Sprintf("garbage-%d", i))
		s.NewArray(nil)
	}
	if got := s.GCStats().Objects; got != base+200 {
		t.Fatalf("objects = %d, want %d", got, base+200)
	}

	s.CollectGarbage()
	if got := s.GCStats().Objects; got != base {
		t.Errorf("objects after collection = %d, want %d", got, base)
	}
	if s.strings.FindString("garbage-5", hashString("garbage-5")) != nil {
		t.Error("intern table still holds a collected string")
	}
}

func TestCollectKeepsReachable(t *testing.T) {
	s, _ := newTestState(t)

	arr := s.NewArray(nil)
	s.DefineGlobal("keep", FromObject(arr))
	arr.Items = append(arr.Items, s.String("child"))

	s.CollectGarbage()
	s.CollectGarbage()

	v, ok := s.Global("keep")
	if !ok || v.AsArray() != arr {
		t.Fatal("global array lost")
	}
	if s.strings.FindString("child", hashString("child")) == nil {
		t.Error("string referenced from a global array was collected")
	}
}

func TestPinnedObjectsSurvive(t *testing.T) {
	s, _ := newTestState(t)

	str := s.CopyString("pinned")
	s.Pin(str)
	s.CollectGarbage()
	if s.strings.FindString("pinned", hashString("pinned")) != str {
		t.Error("pinned string was collected")
	}
}

type rootList []Object

func (r *rootList) MarkRoots(s *State) {
	for _, o := range *r {
		s.MarkObject(o)
	}
}

func TestRootSet(t *testing.T) {
	s, _ := newTestState(t)

	roots := &rootList{}
	s.AddRootSet(roots)
	*roots = append(*roots, s.CopyString("rooted"))
	s.CollectGarbage()
	if s.strings.FindString("rooted", hashString("rooted")) == nil {
		t.Error("string held by a root set was collected")
	}

	s.RemoveRootSet(roots)
	s.CollectGarbage()
	if s.strings.FindString("rooted", hashString("rooted")) != nil {
		t.Error("string survived after its root set was removed")
	}
}

func TestThresholdTriggersCollection(t *testing.T) {
	s, _ := newTestState(t)
	s.CollectGarbage()

	before := s.GCStats().Cycles
	s.nextGC = s.bytesAllocated + 1024
	for i := 0; i < 200; i++ {
		s.NewArray(make([]Value, 4))
	}
	st := s.GCStats()
	if st.Cycles == before {
		t.Error("allocating past the threshold did not collect")
	}
	if st.NextGC < s.config.GCStart/4 {
		t.Errorf("NextGC = %d, below the floor %d", st.NextGC, s.config.GCStart/4)
	}
}

func TestProtectKeepsTemporaries(t *testing.T) {
	s, _ := newTestState(t)
	s.CollectGarbage()
	base := s.GCStats().Objects
	depth := s.StackDepth()

	s.Protect(func() {
		arr := s.NewArray(nil)
		s.GCProtect(FromObject(arr))
		s.NewArray(nil)
		s.CollectGarbage()
		if got := s.GCStats().Objects; got != base+1 {
			t.Errorf("objects inside Protect = %d, want %d", got, base+1)
		}
	})

	if got := s.StackDepth(); got != depth {
		t.Errorf("stack depth after Protect = %d, want %d", got, depth)
	}
	s.CollectGarbage()
	if got := s.GCStats().Objects; got != base {
		t.Errorf("objects after release = %d, want %d", got, base)
	}
}

func TestGCClearProtect(t *testing.T) {
	s, _ := newTestState(t)
	depth := s.StackDepth()
	s.GCProtect(FromObject(s.NewArray(nil)))
	s.GCProtect(FromObject(s.NewArray(nil)))
	if got := s.StackDepth(); got != depth+2 {
		t.Fatalf("stack depth = %d, want %d", got, depth+2)
	}
	s.GCClearProtect()
	if got := s.StackDepth(); got != depth {
		t.Errorf("stack depth after clear = %d, want %d", got, depth)
	}
}
