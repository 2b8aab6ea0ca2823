package uidset

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"
)

func TestSeedS1Compression(t *testing.T) {
	uids := []uint32{1, 2, 3, 4, 6, 8, 9, 10}
	ranges := Compress(uids)
	got := Format(ranges)
	const want = "1:4,6,8:10"
	if got != want {
		t.Fatalf("Format(Compress(%v)) = %q, want %q", uids, got, want)
	}

	var buf bytes.Buffer
	consumed, pos := CompressBudget(&buf, ranges, 0, ImapMaxCmdlen)
	if consumed != len(ranges) {
		t.Fatalf("CompressBudget consumed = %d, want %d", consumed, len(ranges))
	}
	if pos != len(ranges) {
		t.Fatalf("CompressBudget pos = %d, want %d", pos, len(ranges))
	}
	if buf.String() != want {
		t.Fatalf("CompressBudget output = %q, want %q", buf.String(), want)
	}
}

func TestRoundTripProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := r.Intn(30)
		set := map[uint32]struct{}{}
		for i := 0; i < n; i++ {
			set[uint32(r.Intn(200))] = struct{}{}
		}
		var uids []uint32
		for u := range set {
			uids = append(uids, u)
		}
		sortUint32(uids)

		got, err := Parse(Format(Compress(uids)))
		if err != nil {
			t.Fatalf("Parse error for %v: %v", uids, err)
		}
		if !reflect.DeepEqual(got, uids) {
			if len(got) == 0 && len(uids) == 0 {
				continue
			}
			t.Fatalf("round trip mismatch: %v -> %v", uids, got)
		}
	}
}

func TestBudgetAdvancesEachCall(t *testing.T) {
	var uids []uint32
	for i := uint32(1); i <= 500; i += 2 { // non-contiguous -> many singleton items
		uids = append(uids, i)
	}
	ranges := Compress(uids)

	pos := 0
	calls := 0
	for pos < len(ranges) {
		var buf bytes.Buffer
		consumed, newPos := CompressBudget(&buf, ranges, pos, 16)
		if consumed == 0 {
			t.Fatalf("CompressBudget made no progress at pos %d", pos)
		}
		if buf.Len() > 16 && consumed > 1 {
			t.Fatalf("CompressBudget exceeded budget: %d bytes", buf.Len())
		}
		if newPos <= pos {
			t.Fatalf("pos did not advance: %d -> %d", pos, newPos)
		}
		pos = newPos
		calls++
		if calls > len(ranges)+1 {
			t.Fatal("CompressBudget looping without terminating")
		}
	}
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
