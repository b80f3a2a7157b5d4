package dispatch

import "testing"

func TestDispatchMatchesWildcardIndices(t *testing.T) {
	tbl := NewTable()
	var gotIdx []int
	tbl.Register("/region&/cc_range&", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		gotIdx = append([]int(nil), idx...)
		return []Arg{Float(1)}, true
	})

	reply, matched := tbl.Dispatch("/region3/cc_range12", "", nil)
	if !matched {
		t.Fatalf("expected pattern to match")
	}
	if len(gotIdx) != 2 || gotIdx[0] != 3 || gotIdx[1] != 12 {
		t.Fatalf("expected indices [3 12], got %v", gotIdx)
	}
	if len(reply) != 1 || reply[0].F != 1 {
		t.Fatalf("unexpected reply %v", reply)
	}
}

func TestDispatchRequiresSignatureMatch(t *testing.T) {
	tbl := NewTable()
	tbl.Register("/region&/pitch_keycenter", "i", func(_ []int, _ []Arg) ([]Arg, bool) {
		return nil, true
	})
	_, matched := tbl.Dispatch("/region0/pitch_keycenter", "", nil)
	if matched {
		t.Fatalf("expected a query (empty sig) not to match a registered setter (sig \"i\")")
	}
}

func TestDispatchUnknownPathNoMatch(t *testing.T) {
	tbl := NewTable()
	tbl.Register("/num_regions", "", func(_ []int, _ []Arg) ([]Arg, bool) { return []Arg{Int32(0)}, true })
	_, matched := tbl.Dispatch("/does_not_exist", "", nil)
	if matched {
		t.Fatalf("expected no match for an unregistered path")
	}
}

func TestDispatchHandlerFalseMapsToNullReply(t *testing.T) {
	tbl := NewTable()
	tbl.Register("/region&/group", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		return nil, idx[0] == 0 // only region 0 exists
	})

	reply, matched := tbl.Dispatch("/region5/group", "", nil)
	if !matched {
		t.Fatalf("expected the pattern itself to match")
	}
	if len(reply) != 1 || reply[0].Kind != KindNull {
		t.Fatalf("expected a single Null reply for an out-of-bounds region, got %v", reply)
	}
}

func TestExtractIndicesRejectsNonDigitWhereWildcardExpected(t *testing.T) {
	tbl := NewTable()
	tbl.Register("/region&/group", "", func(_ []int, _ []Arg) ([]Arg, bool) { return nil, true })
	_, matched := tbl.Dispatch("/regionX/group", "", nil)
	if matched {
		t.Fatalf("expected no match when the wildcard position holds no digits")
	}
}

func TestHashCollisionBucketFallsThroughToVerifiedMatch(t *testing.T) {
	// Two distinct patterns registered under the same signature; even if
	// their hashes collided, Dispatch must still resolve to the one whose
	// literal pattern actually matches the path (extractIndices re-verifies
	// every candidate in the bucket).
	tbl := NewTable()
	tbl.Register("/region&/group", "", func(_ []int, _ []Arg) ([]Arg, bool) { return []Arg{Str("group")}, true })
	tbl.Register("/region&/trigger", "", func(_ []int, _ []Arg) ([]Arg, bool) { return []Arg{Str("trigger")}, true })

	reply, matched := tbl.Dispatch("/region2/trigger", "", nil)
	if !matched || len(reply) != 1 || reply[0].S != "trigger" {
		t.Fatalf("expected /region2/trigger to resolve to the trigger handler, got %v matched=%v", reply, matched)
	}
}
