package control

import (
	"errors"
	"strconv"
	"testing"

	"quadpong/internal/wire"
)

func heldSet(keys ...string) func(string) bool {
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	return func(k string) bool { return set[k] }
}

func TestSample(t *testing.T) {
	s := NewSampler([]string{"up", "right"}, []string{"down", "left"})
	tests := []struct {
		held []string
		dir  wire.Direction
		ok   bool
	}{
		{nil, "", false},
		{[]string{"up"}, wire.Positive, true},
		{[]string{"right"}, wire.Positive, true},
		{[]string{"up", "right"}, wire.Positive, true},
		{[]string{"down"}, wire.Negative, true},
		{[]string{"left"}, wire.Negative, true},
		{[]string{"up", "down"}, "", false},
		{[]string{"right", "left"}, "", false},
		{[]string{"space"}, "", false},
	}
	for _, tt := range tests {
		dir, ok := s.Sample(heldSet(tt.held...))
		if dir != tt.dir || ok != tt.ok {
			t.Fatalf("Sample(%v) = (%q, %v), want (%q, %v)", tt.held, dir, ok, tt.dir, tt.ok)
		}
	}
}

func TestSampleHasNoMemory(t *testing.T) {
	s := NewSampler([]int{1, 2}, []int{3, 4})
	held := func(k int) bool { return k == 1 }
	for i := 0; i < 10; i++ {
		if dir, ok := s.Sample(held); !ok || dir != wire.Positive {
			t.Fatalf("frame %d: got (%q, %v)", i, dir, ok)
		}
	}
}

func TestSampleWithoutKeys(t *testing.T) {
	s := NewSampler[string](nil, []string{"down"})
	if _, ok := s.Sample(heldSet("up")); ok {
		t.Fatal("unbound direction reported")
	}
}

func TestParseKeys(t *testing.T) {
	keys, err := ParseKeys([]string{"1", "22"}, strconv.Atoi)
	if err != nil || len(keys) != 2 || keys[1] != 22 {
		t.Fatalf("ParseKeys = %v, %v", keys, err)
	}
	_, err = ParseKeys([]string{"1", "x"}, strconv.Atoi)
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Fatalf("bad name: %v", err)
	}
}
