// Package dispatch implements the engine's control protocol: an Open Sound
// Control-style path/typetag message bus (spec.md §6). A path is a string
// like "/region3/pitch_keycenter"; a signature is a string over argument
// types {i int32, h int64, f float32, s string, b blob, T true, F false,
// N null}. Query messages carry an empty signature; value-set messages
// carry one or more typed arguments.
//
// Digits in a path token are a wildcard: "/region3/..." matches the
// registered pattern "/region&/..." with indices[0] == 3. The table is
// compiled once at construction (REDESIGN FLAG: replace the macro-expanded
// dispatcher with a compiled path table) — a hash of the path-with-digits-
// collapsed-to-& plus the signature selects a bucket, and each candidate in
// the bucket is verified against its literal pattern string to survive hash
// collisions.
package dispatch

import "strconv"

// ArgKind tags the type carried by an Arg.
type ArgKind byte

const (
	KindInt32  ArgKind = 'i'
	KindInt64  ArgKind = 'h'
	KindFloat  ArgKind = 'f'
	KindString ArgKind = 's'
	KindBlob   ArgKind = 'b'
	KindTrue   ArgKind = 'T'
	KindFalse  ArgKind = 'F'
	KindNull   ArgKind = 'N'
)

// Arg is one typed protocol argument. Only the field matching Kind is valid.
type Arg struct {
	Kind ArgKind
	I    int32
	H    int64
	F    float32
	S    string
	B    []byte
}

func Int32(v int32) Arg   { return Arg{Kind: KindInt32, I: v} }
func Int64(v int64) Arg   { return Arg{Kind: KindInt64, H: v} }
func Float(v float32) Arg { return Arg{Kind: KindFloat, F: v} }
func Str(v string) Arg    { return Arg{Kind: KindString, S: v} }
func Blob(v []byte) Arg   { return Arg{Kind: KindBlob, B: v} }
func Bool(v bool) Arg {
	if v {
		return Arg{Kind: KindTrue}
	}
	return Arg{Kind: KindFalse}
}

// Null is the reply for an out-of-bounds array access (spec.md §8's runtime
// bounds invariant: index >= size maps to the null type tag, never a panic
// or an error).
var Null = Arg{Kind: KindNull}

// Handler resolves one matched message. indices holds the wildcard captures
// in pattern order; args holds the caller's typed arguments for a value-set
// message (nil for a query). It returns the reply arguments and whether the
// path/indices resolved to a live object; a false ok maps to a single Null
// reply at the call site.
type Handler func(indices []int, args []Arg) ([]Arg, bool)

type pathEntry struct {
	pattern string
	sig     string
	handler Handler
}

// Table is a compiled path/typetag dispatch table. Registration happens
// once at construction; Dispatch runs on the realtime audio thread and
// performs no allocation beyond the small, bounded indices slice.
type Table struct {
	buckets map[uint64][]pathEntry
}

// NewTable returns an empty compiled table ready for Register calls.
func NewTable() *Table {
	return &Table{buckets: make(map[uint64][]pathEntry)}
}

// Register adds an entry for pattern (using '&' as the digit-wildcard
// token, e.g. "/region&/pitch_keycenter") and signature sig.
func (t *Table) Register(pattern, sig string, h Handler) {
	key := hashPattern(pattern, sig)
	t.buckets[key] = append(t.buckets[key], pathEntry{pattern: pattern, sig: sig, handler: h})
}

// Dispatch resolves path+sig against the compiled table and runs the
// matched handler. ok reports whether any registered pattern matched;
// within a match, the handler's own ok reports whether the addressed
// object exists (translated to a Null reply by callers that want the
// OSC-style single-value convention).
func (t *Table) Dispatch(path, sig string, args []Arg) (reply []Arg, matched bool) {
	key := hashPath(path, sig)
	var indices [maxIndices]int
	for _, e := range t.buckets[key] {
		if e.sig != sig {
			continue
		}
		n, ok := extractIndices(e.pattern, path, indices[:])
		if !ok {
			continue
		}
		out, handlerOK := e.handler(indices[:n], args)
		if !handlerOK {
			return []Arg{Null}, true
		}
		return out, true
	}
	return nil, false
}

const maxIndices = 8

// extractIndices matches path against pattern (which may contain '&'
// wildcards standing in for a run of decimal digits) and fills idx with the
// captured values in order. Mirrors the reference message matcher: a
// literal prefix must match exactly, a '&' consumes the longest run of
// digits at that position, and the pattern's tail must exactly match what
// remains of the path.
func extractIndices(pattern, path string, idx []int) (int, bool) {
	n := 0
	for {
		amp := indexByte(pattern, '&')
		if amp < 0 {
			break
		}
		if n >= len(idx) {
			return 0, false
		}
		if len(path) < amp || pattern[:amp] != path[:amp] {
			return 0, false
		}
		pattern = pattern[amp+1:]
		path = path[amp:]

		digits := 0
		for digits < len(path) && path[digits] >= '0' && path[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			return 0, false
		}
		v, err := strconv.Atoi(path[:digits])
		if err != nil {
			return 0, false
		}
		idx[n] = v
		n++
		path = path[digits:]
	}
	if path != pattern {
		return 0, false
	}
	return n, true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// hashPattern hashes an already-normalized pattern (containing literal '&'
// wildcard tokens) the same way hashPath normalizes a literal path, so a
// Register("/region&/...", ...) call and a Dispatch("/region12/...", ...)
// call land in the same bucket.
func hashPattern(pattern, sig string) uint64 {
	h := fnvBasis
	for i := 0; i < len(pattern); i++ {
		h = hashByte(pattern[i], h)
	}
	h = hashByte(',', h)
	for i := 0; i < len(sig); i++ {
		h = hashByte(sig[i], h)
	}
	return h
}

// hashPath hashes a literal path the same way hashPattern hashes its
// wildcarded form: runs of digits collapse to a single '&' before hashing.
func hashPath(path, sig string) uint64 {
	h := fnvBasis
	i := 0
	for i < len(path) {
		c := path[i]
		if c < '0' || c > '9' {
			h = hashByte(c, h)
			i++
			continue
		}
		h = hashByte('&', h)
		for i < len(path) && path[i] >= '0' && path[i] <= '9' {
			i++
		}
	}
	h = hashByte(',', h)
	for i := 0; i < len(sig); i++ {
		h = hashByte(sig[i], h)
	}
	return h
}

const (
	fnvBasis uint64 = 14695981039346656037
	fnvPrime uint64 = 1099511628211
)

func hashByte(b byte, h uint64) uint64 {
	return (h ^ uint64(b)) * fnvPrime
}
