package dispatch

import (
	"github.com/cwbudde/sfzengine/engine"
	"github.com/cwbudde/sfzengine/region"
)

// BuildEngineTable compiles the representative set of introspection and
// control endpoints this engine exposes over vm. Endpoints mirror the
// reference protocol's naming and argument conventions; the two fixes
// tracked as resolved Open Questions are applied here rather than
// preserved: cc_range's setter reads the end value from its own argument
// (args[1].f), not a second copy of the start value, and a voice's trigger
// type string is its region trigger name ("attack", "release", ...), so a
// voice fired by a note-off never reports "note_on".
func BuildEngineTable(vm *engine.VoiceManager) *Table {
	t := NewTable()

	t.Register("/num_regions", "", func(_ []int, _ []Arg) ([]Arg, bool) {
		return []Arg{Int32(int32(vm.NumRegions()))}, true
	})

	t.Register("/num_active_voices", "", func(_ []int, _ []Arg) ([]Arg, bool) {
		return []Arg{Int32(int32(vm.ActiveVoiceCount()))}, true
	})

	t.Register("/region&/pitch_keycenter", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Int32(int32(r.PitchKeycenter))}, true
	})
	t.Register("/region&/pitch_keycenter", "i", func(idx []int, args []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		r.PitchKeycenter = int(args[0].I)
		return nil, true
	})

	t.Register("/region&/key_range", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Int32(int32(r.Key.Lo)), Int32(int32(r.Key.Hi))}, true
	})
	t.Register("/region&/key_range", "ii", func(idx []int, args []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		r.Key = region.Range{Lo: float32(args[0].I), Hi: float32(args[1].I)}
		return nil, true
	})

	t.Register("/region&/vel_range", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Float(r.Velocity.Lo), Float(r.Velocity.Hi)}, true
	})
	t.Register("/region&/vel_range", "ff", func(idx []int, args []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		r.Velocity = region.Range{Lo: args[0].F, Hi: args[1].F}
		return nil, true
	})

	// cc_range&: indices[0] is the region, indices[1] is the CC condition
	// slot. The reference setter reads args[0].f twice, clobbering the
	// range's end with its start; this one reads the end from args[1].f,
	// matching the "ff" signature's two distinct arguments.
	t.Register("/region&/cc_range&", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok || idx[1] < 0 || idx[1] >= len(r.CCConds) {
			return nil, false
		}
		c := r.CCConds[idx[1]]
		return []Arg{Float(c.Lo), Float(c.Hi)}, true
	})
	t.Register("/region&/cc_range&", "ff", func(idx []int, args []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok || idx[1] < 0 || idx[1] >= len(r.CCConds) {
			return nil, false
		}
		r.CCConds[idx[1]].Lo = args[0].F
		r.CCConds[idx[1]].Hi = args[1].F
		return nil, true
	})

	t.Register("/region&/group", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Int64(int64(r.Group))}, true
	})
	t.Register("/region&/group", "h", func(idx []int, args []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		r.Group = int(args[0].H)
		return nil, true
	})

	t.Register("/region&/trigger", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		r, ok := vm.RegionAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Str(r.Trigger.String())}, true
	})

	t.Register("/voice&/note", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		v, ok := vm.VoiceAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Int32(int32(v.Note()))}, true
	})
	t.Register("/voice&/trigger", "", func(idx []int, _ []Arg) ([]Arg, bool) {
		v, ok := vm.VoiceAt(idx[0])
		if !ok {
			return nil, false
		}
		return []Arg{Str(v.TriggerType().String())}, true
	})

	return t
}
