package vm

import (
	"fmt"
	"testing"
)

func TestHashTableSetGet(t *testing.T) {
	var tbl HashTable
	for i := 0; i < 100; i++ {
		if !tbl.Set(Number(float64(i)), Number(float64(i*i))) {
			t.Fatalf("Set(%d) reported an existing key", i)
		}
	}
	if tbl.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", tbl.Len())
	}
	for i := 0; i < 100; i++ {
		v, ok := tbl.GetValue(Number(float64(i)))
		if !ok || v.AsNumber() != float64(i*i) {
			t.Errorf("Get(%d) = %v, %v", i, v.AsNumber(), ok)
		}
	}
	if tbl.Set(Number(5), Number(-1)) {
		t.Error("overwriting Set reported a new key")
	}
	if v, _ := tbl.GetValue(Number(5)); v.AsNumber() != -1 {
		t.Errorf("Get(5) after overwrite = %v", v.AsNumber())
	}
}

func TestHashTableLoadFactor(t *testing.T) {
	var tbl HashTable
	for i := 0; i < 1000; i++ {
		tbl.Set(Number(float64(i)), Null())
		if float64(tbl.count) > float64(tbl.Cap())*tableMaxLoad {
			t.Fatalf("load %d/%d exceeds max after %d inserts", tbl.count, tbl.Cap(), i+1)
		}
	}
	if c := tbl.Cap(); c&(c-1) != 0 {
		t.Errorf("capacity %d is not a power of two", c)
	}
}

func TestHashTableTombstones(t *testing.T) {
	var tbl HashTable
	for i := 0; i < 6; i++ {
		tbl.Set(Number(float64(i)), Number(float64(i)))
	}
	if !tbl.Remove(Number(2)) {
		t.Fatal("Remove(2) = false")
	}
	if tbl.Remove(Number(2)) {
		t.Error("second Remove(2) = true")
	}
	if _, ok := tbl.Get(Number(2)); ok {
		t.Error("removed key still found")
	}
	// Keys probed past the tombstone remain reachable.
	for _, k := range []float64{0, 1, 3, 4, 5} {
		if _, ok := tbl.Get(Number(k)); !ok {
			t.Errorf("Get(%v) lost after removal", k)
		}
	}
	if tbl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tbl.Len())
	}

	countBefore := tbl.count
	if !tbl.Set(Number(2), Bool(true)) {
		t.Error("re-adding a removed key should report new")
	}
	if tbl.count != countBefore {
		t.Errorf("reusing a tombstone changed count from %d to %d", countBefore, tbl.count)
	}
}

func TestHashTableTombstoneIsNotEmpty(t *testing.T) {
	var tbl HashTable
	keys := make([]Value, 0, 5)
	for i := 0; i < 5; i++ {
		keys = append(keys, Number(float64(i)))
		tbl.Set(keys[i], Null())
	}
	for _, k := range keys[:4] {
		tbl.Remove(k)
	}
	if _, ok := tbl.Get(keys[4]); !ok {
		t.Error("last key unreachable after removing the others")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestHashTableStringKeys(t *testing.T) {
	s, _ := newTestState(t)

	var tbl HashTable
	for i := 0; i < 20; i++ {
		tbl.Set(s.String(fmt.Sprintf("key%d", i)), Number(float64(i)))
	}
	p, ok := tbl.GetByStr("key7")
	if !ok || p.Value.AsNumber() != 7 {
		t.Errorf("GetByStr(key7) = %v, %v", p.Value.AsNumber(), ok)
	}
	if _, ok := tbl.GetByStr("missing"); ok {
		t.Error("GetByStr(missing) found something")
	}
	if str := tbl.FindString("key3", hashString("key3")); str == nil || str.Chars != "key3" {
		t.Errorf("FindString(key3) = %v", str)
	}
}

func TestHashTableEachAndCopy(t *testing.T) {
	var src, dst HashTable
	for i := 0; i < 10; i++ {
		src.Set(Number(float64(i)), Number(1))
	}
	src.Remove(Number(3))
	src.SetType(Number(100), Null(), PropGetter)

	n := 0
	src.Each(func(key Value, p Property) bool {
		n++
		return true
	})
	if n != 10 {
		t.Errorf("Each visited %d entries, want 10", n)
	}

	src.CopyTo(&dst)
	if dst.Len() != 10 {
		t.Errorf("CopyTo produced %d entries, want 10", dst.Len())
	}
	if p, _ := dst.Get(Number(100)); p.Kind != PropGetter {
		t.Error("CopyTo dropped the property kind")
	}

	dst.Clear()
	if dst.Len() != 0 || dst.Cap() != 0 {
		t.Errorf("Clear left Len=%d Cap=%d", dst.Len(), dst.Cap())
	}
}
