// Package midistate implements the time-stamped event model that feeds
// the engine sample-accurate controller values: per-CC event vectors,
// pitch bend, channel/poly aftertouch, per-note overlays, and the
// extended CC slots (velocity, note number, random, gate, alternate,
// keydelta) described by the specification's MidiState component.
package midistate

import "sort"

// NumCCs is the span of standard MIDI CC numbers.
const NumCCs = 128

// Extended CC slots occupy indices beyond the 128 standard CCs, in the
// same event-vector machinery, per spec.md §4.5.
const (
	CCNoteOnVelocity = NumCCs + iota
	CCNoteOffVelocity
	CCNoteNumber
	CCUnipolarRandom
	CCBipolarRandom
	CCGate
	CCAlternate
	CCKeyDelta
	CCAbsKeyDelta
	numExtendedCCs
)

// NumCCSlots is the total number of CC-like event vectors tracked.
const NumCCSlots = NumCCs + numExtendedCCs

// Event is one sample-accurate entry in an event vector.
type Event struct {
	Delay int32
	Value float32
}

// EventVector is a sorted-by-delay list of events valid within the current
// block. Invariant: always has at least one entry (a base value at
// delay 0); the last entry is the "current value" carried into the next
// block.
type EventVector []Event

func newEventVector(initial float32) EventVector {
	return EventVector{{Delay: 0, Value: initial}}
}

// Insert places e in sorted position; an event at an already-present delay
// overwrites rather than duplicating, per the round-trip law
// insert(e); insert(e) == insert(e).
func (v *EventVector) Insert(e Event) {
	s := *v
	i := sort.Search(len(s), func(i int) bool { return s[i].Delay >= e.Delay })
	if i < len(s) && s[i].Delay == e.Delay {
		s[i].Value = e.Value
		return
	}
	s = append(s, Event{})
	copy(s[i+1:], s[i:])
	s[i] = e
	*v = s
}

// ValueAt returns the last-known value at or before delay (last-known-value
// semantics between explicit events).
func (v EventVector) ValueAt(delay int32) float32 {
	val := v[0].Value
	for _, e := range v {
		if e.Delay > delay {
			break
		}
		val = e.Value
	}
	return val
}

// Last returns the vector's final (carried-forward) value.
func (v EventVector) Last() float32 {
	return v[len(v)-1].Value
}

// Flush collapses the vector to a single {delay:0, value:last} entry,
// ready for the next block.
func (v *EventVector) Flush() {
	last := (*v)[len(*v)-1].Value
	*v = EventVector{{Delay: 0, Value: last}}
}

// AdditiveMergeEvents interleaves two sorted vectors producing a third
// whose value at every delay is a(delay)+b(delay), using last-known values
// between points. Used to combine per-note and channel-wide streams.
func AdditiveMergeEvents(a, b EventVector) EventVector {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}

	delays := make(map[int32]struct{}, len(a)+len(b))
	for _, e := range a {
		delays[e.Delay] = struct{}{}
	}
	for _, e := range b {
		delays[e.Delay] = struct{}{}
	}
	sorted := make([]int32, 0, len(delays))
	for d := range delays {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(EventVector, len(sorted))
	for i, d := range sorted {
		out[i] = Event{Delay: d, Value: a.ValueAt(d) + b.ValueAt(d)}
	}
	return out
}

// NoteState tracks per-note overlay state: per-note pitch bend, per-note CC
// overrides, and the note-on velocity that triggered it (used by
// release-triggered regions and rt_decay duration scaling).
type NoteState struct {
	Active       bool
	OnDelay      int32
	OnVelocity   float32
	OffVelocity  float32
	PerNoteCC    map[int]EventVector
	PerNoteBend  EventVector
	bendActive   bool
	Alternate    int // toggles 0/1 each note-on for the alternate extended CC
	lastOnSample int64
}

// State holds the complete MIDI state for one engine instance: channel-wide
// CC vectors, pitch bend, aftertouch, per-note overlays, and last-played
// note metadata. Written only from the audio thread (see spec.md §5).
type State struct {
	sampleRate float64

	cc       [NumCCSlots]EventVector
	ccDefault [NumCCs]float32

	pitchBend          EventVector
	channelAftertouch  EventVector
	polyAftertouch     map[int]EventVector

	notes map[int]*NoteState

	lastNote     int
	lastVelocity float32

	sampleClock int64 // running sample count, for NoteDuration

	program int
}

// New creates a MIDI state whose CC vectors, pitch bend and channel
// aftertouch all start at 0. SetCCDefault does not change these live
// values; it only records the default a CC reports.
func New(sampleRate float64) *State {
	s := &State{
		sampleRate:     sampleRate,
		polyAftertouch: make(map[int]EventVector),
		notes:          make(map[int]*NoteState),
		lastNote:       -1,
	}
	for i := range s.cc {
		s.cc[i] = newEventVector(0)
	}
	s.pitchBend = newEventVector(0)
	s.channelAftertouch = newEventVector(0)
	return s
}

// SetCCDefault sets the default/reset value reported via the dispatch
// protocol's `/ccN/default`; it does not itself change the live CC value.
func (s *State) SetCCDefault(cc int, v float32) {
	if cc < 0 || cc >= NumCCs {
		return
	}
	s.ccDefault[cc] = v
}

// CCDefault returns the stored default for cc.
func (s *State) CCDefault(cc int) float32 {
	if cc < 0 || cc >= NumCCs {
		return 0
	}
	return s.ccDefault[cc]
}

// CCEvent inserts a controller value at delay, per spec.md §4.5.
func (s *State) CCEvent(delay int32, cc int, value float32) {
	if cc < 0 || cc >= NumCCSlots {
		return
	}
	s.cc[cc].Insert(Event{Delay: delay, Value: value})
}

// CCValue returns the CC's current (last-known) value.
func (s *State) CCValue(cc int) float32 {
	if cc < 0 || cc >= NumCCSlots {
		return 0
	}
	return s.cc[cc].Last()
}

// CCValueAt returns the CC's block-precise value at delay, for modulation
// reads that need sub-block accuracy.
func (s *State) CCValueAt(cc int, delay int32) float32 {
	if cc < 0 || cc >= NumCCSlots {
		return 0
	}
	return s.cc[cc].ValueAt(delay)
}

// PerNoteCCEvent inserts a per-note CC override for note, merged additively
// with the channel-wide stream when read (spec.md §4.5/§8).
func (s *State) PerNoteCCEvent(delay int32, note, cc int, value float32) {
	ns := s.noteState(note)
	if ns.PerNoteCC == nil {
		ns.PerNoteCC = make(map[int]EventVector)
	}
	v := ns.PerNoteCC[cc]
	if v == nil {
		v = newEventVector(0)
	}
	v.Insert(Event{Delay: delay, Value: value})
	ns.PerNoteCC[cc] = v
}

// EffectiveCCAt returns the channel CC merged additively with any per-note
// override for note, evaluated at delay.
func (s *State) EffectiveCCAt(note, cc int, delay int32) float32 {
	if cc < 0 || cc >= NumCCSlots {
		return 0
	}
	ns := s.notes[note]
	if ns == nil || ns.PerNoteCC == nil {
		return s.CCValueAt(cc, delay)
	}
	v, ok := ns.PerNoteCC[cc]
	if !ok {
		return s.CCValueAt(cc, delay)
	}
	return AdditiveMergeEvents(s.cc[cc], v).ValueAt(delay)
}

// PitchBendEvent registers a channel pitch bend event in [-1, 1].
func (s *State) PitchBendEvent(delay int32, value float32) {
	s.pitchBend.Insert(Event{Delay: delay, Value: value})
}

// PitchBend returns the current channel pitch bend value.
func (s *State) PitchBend() float32 {
	return s.pitchBend.Last()
}

// PerNotePitchBendEvent registers a per-note pitch bend event.
func (s *State) PerNotePitchBendEvent(delay int32, note int, value float32) {
	ns := s.noteState(note)
	if ns.PerNoteBend == nil {
		ns.PerNoteBend = newEventVector(0)
	}
	ns.PerNoteBend.Insert(Event{Delay: delay, Value: value})
	ns.bendActive = value != 0
}

// PerNoteBend returns the active per-note pitch bend override for note, or
// (0, false) if no per-note bend is currently active (channel bend applies).
func (s *State) PerNoteBend(note int) (float32, bool) {
	ns, ok := s.notes[note]
	if !ok || !ns.bendActive || ns.PerNoteBend == nil {
		return 0, false
	}
	return ns.PerNoteBend.Last(), true
}

// ChannelAftertouchEvent registers a channel aftertouch event.
func (s *State) ChannelAftertouchEvent(delay int32, value float32) {
	s.channelAftertouch.Insert(Event{Delay: delay, Value: value})
}

// ChannelAftertouch returns the current channel aftertouch value.
func (s *State) ChannelAftertouch() float32 {
	return s.channelAftertouch.Last()
}

// PolyAftertouchEvent registers a per-note (polyphonic) aftertouch event.
func (s *State) PolyAftertouchEvent(delay int32, note int, value float32) {
	v, ok := s.polyAftertouch[note]
	if !ok {
		v = newEventVector(0)
	}
	v.Insert(Event{Delay: delay, Value: value})
	s.polyAftertouch[note] = v
}

// PolyAftertouch returns the current poly aftertouch value for note.
func (s *State) PolyAftertouch(note int) float32 {
	if v, ok := s.polyAftertouch[note]; ok {
		return v.Last()
	}
	return 0
}

// NoteOn records a note-on at delay with velocity in [0,1], updating the
// extended-CC slots (velocity, note number, gate, alternate, keydelta) and
// last-played-note metadata.
func (s *State) NoteOn(delay int32, note int, velocity float32) {
	ns := s.noteState(note)
	prevActive := ns.Active
	ns.Active = true
	ns.OnDelay = delay
	ns.OnVelocity = velocity
	ns.lastOnSample = s.sampleClock + int64(delay)
	if !prevActive {
		ns.Alternate ^= 1
	}

	s.CCEvent(delay, CCNoteOnVelocity, velocity)
	s.CCEvent(delay, CCNoteNumber, float32(note))
	s.CCEvent(delay, CCGate, 1)
	s.CCEvent(delay, CCAlternate, float32(ns.Alternate))
	if s.lastNote >= 0 {
		s.CCEvent(delay, CCKeyDelta, float32(note-s.lastNote))
		s.CCEvent(delay, CCAbsKeyDelta, absf32(float32(note-s.lastNote)))
	}
	s.lastNote = note
	s.lastVelocity = velocity
}

// NoteOff records a note-off at delay with release velocity.
func (s *State) NoteOff(delay int32, note int, velocity float32) {
	ns := s.noteState(note)
	ns.Active = false
	ns.OffVelocity = velocity
	s.CCEvent(delay, CCNoteOffVelocity, velocity)
	s.CCEvent(delay, CCGate, 0)
}

// NoteOnVelocity returns the velocity that most recently triggered note.
func (s *State) NoteOnVelocity(note int) float32 {
	if ns, ok := s.notes[note]; ok {
		return ns.OnVelocity
	}
	return 0
}

// NoteDuration returns the elapsed time in seconds since note's most recent
// note-on, measured at the given within-block delay.
func (s *State) NoteDuration(note int, delay int32) float64 {
	ns, ok := s.notes[note]
	if !ok || s.sampleRate <= 0 {
		return 0
	}
	elapsedSamples := s.sampleClock + int64(delay) - ns.lastOnSample
	if elapsedSamples < 0 {
		elapsedSamples = 0
	}
	return float64(elapsedSamples) / s.sampleRate
}

// Program returns the most recently selected MIDI program.
func (s *State) Program() int { return s.program }

// ProgramChangeEvent records a program change (not sample-accurate; applied
// immediately).
func (s *State) ProgramChangeEvent(_ int32, program int) {
	s.program = program
}

func (s *State) noteState(note int) *NoteState {
	ns, ok := s.notes[note]
	if !ok {
		ns = &NoteState{}
		s.notes[note] = ns
	}
	return ns
}

// AdvanceTime collapses every event vector to its carried-forward value
// and advances the internal sample clock by n samples, marking per-note
// pitch bend inactive once it returns to zero, per spec.md §4.5.
func (s *State) AdvanceTime(n int32) {
	for i := range s.cc {
		s.cc[i].Flush()
	}
	s.pitchBend.Flush()
	s.channelAftertouch.Flush()
	for note, v := range s.polyAftertouch {
		v.Flush()
		s.polyAftertouch[note] = v
	}
	for _, ns := range s.notes {
		if ns.PerNoteCC != nil {
			for cc, v := range ns.PerNoteCC {
				v.Flush()
				ns.PerNoteCC[cc] = v
			}
		}
		if ns.PerNoteBend != nil {
			ns.PerNoteBend.Flush()
			if ns.PerNoteBend.Last() == 0 {
				ns.bendActive = false
			}
		}
	}
	s.sampleClock += int64(n)
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
