package engine

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/sfzengine/bus"
	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/midistate"
	"github.com/cwbudde/sfzengine/region"
	"github.com/cwbudde/sfzengine/sampleplayer"
)

// SampleSource resolves a region's sample reference to a decoded, already
// engine-sample-rate buffer. Loading from disk or a sample pool is an
// external collaborator's job; the VoiceManager only reads through this
// interface.
type SampleSource interface {
	Sample(ref string) *sampleplayer.Sample
}

// Config parametrizes a VoiceManager's fixed resources, all allocated once
// at construction so the realtime path never allocates.
type Config struct {
	SampleRate float64
	MaxVoices  int
	BlockSize  int // largest n ever passed to RenderBlock
	Quality    int // sample interpolation quality (sample_quality opcode)

	EffectKernels [][]float64 // impulse response per aux bus, index 0..N-1

	// KeySwitchLo/Hi defines the instrument-wide key-switch key range; a
	// note-on within it updates the key-switch tracker instead of playing a
	// sound. KeySwitchHi < KeySwitchLo disables key-switching.
	KeySwitchLo, KeySwitchHi int

	BPM float32 // engine-wide tempo, for bpm_cond conditions

	Seed int64 // PRNG seed for random_range region conditions
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("engine: sample rate must be positive, got %v", c.SampleRate)
	}
	if c.MaxVoices <= 0 {
		return fmt.Errorf("engine: max voices must be positive, got %d", c.MaxVoices)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("engine: block size must be positive, got %d", c.BlockSize)
	}
	return nil
}

// VoiceManager owns the fixed voice pool, the region table, and MIDI
// control state, and drives the per-block render (spec.md §4.1).
type VoiceManager struct {
	cfg     Config
	regions []*region.Region
	samples SampleSource
	curves  *curve.Table

	ms           *midistate.State
	rng          *rand.Rand
	globalSample int64

	voices []*Voice // len == cfg.MaxVoices; nil entry == free slot

	seqCounters map[int]int // round-robin position per note

	heldNotes map[int]bool

	sustainDown      bool
	sostenutoDown    bool
	sostenutoLatched map[int]bool
	deferredRelease  map[int]bool // notes released while sustain/sostenuto holds them

	keySwitchLast int

	lastCC [128]float32 // previous CC value, for start_*ccN crossing detection

	mix *bus.Mixer
}

// NewVoiceManager builds a VoiceManager over a fixed region table. regions
// and samples are read-only for the VoiceManager's lifetime.
func NewVoiceManager(cfg Config, regions []*region.Region, samples SampleSource, curves *curve.Table) (*VoiceManager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	mix, err := bus.NewMixer(cfg.BlockSize, cfg.EffectKernels)
	if err != nil {
		return nil, fmt.Errorf("engine: building mixer: %w", err)
	}
	vm := &VoiceManager{
		cfg:              cfg,
		regions:          regions,
		samples:          samples,
		curves:           curves,
		ms:               midistate.New(cfg.SampleRate),
		rng:              rand.New(rand.NewSource(cfg.Seed)),
		voices:           make([]*Voice, cfg.MaxVoices),
		seqCounters:      make(map[int]int),
		heldNotes:        make(map[int]bool),
		sostenutoLatched: make(map[int]bool),
		deferredRelease:  make(map[int]bool),
		keySwitchLast:    -1,
		mix:              mix,
	}
	return vm, nil
}

// NumRegions reports the size of the region table, for dispatch's
// /num_regions endpoint and for bounds-checking region-indexed paths.
func (vm *VoiceManager) NumRegions() int { return len(vm.regions) }

// RegionAt returns region index i, or (nil, false) if i is out of bounds —
// the dispatch protocol's runtime-bounds invariant maps an out-of-range
// index to a null reply rather than a panic.
func (vm *VoiceManager) RegionAt(i int) (*region.Region, bool) {
	if i < 0 || i >= len(vm.regions) {
		return nil, false
	}
	return vm.regions[i], true
}

// VoiceAt returns the voice occupying pool slot i, or (nil, false) if the
// slot is out of bounds or currently free.
func (vm *VoiceManager) VoiceAt(i int) (*Voice, bool) {
	if i < 0 || i >= len(vm.voices) || vm.voices[i] == nil || !vm.voices[i].Active() {
		return nil, false
	}
	return vm.voices[i], true
}

// ActiveVoiceCount reports how many pool slots currently hold a live voice.
func (vm *VoiceManager) ActiveVoiceCount() int {
	n := 0
	for _, v := range vm.voices {
		if v != nil && v.Active() {
			n++
		}
	}
	return n
}

func (vm *VoiceManager) keySwitchInRange(note int) bool {
	return vm.cfg.KeySwitchHi >= vm.cfg.KeySwitchLo && note >= vm.cfg.KeySwitchLo && note <= vm.cfg.KeySwitchHi
}

func (vm *VoiceManager) keySwitchActive(ks region.KeySwitch) bool {
	if ks.HasLast && vm.keySwitchLast != ks.Last {
		return false
	}
	if ks.HasDown && !vm.heldNotes[ks.Down] {
		return false
	}
	if ks.HasUp && vm.heldNotes[ks.Up] {
		return false
	}
	return true
}

// conditionsMatch evaluates every non-sequence, non-trigger-type condition
// a region imposes on a note/velocity pair: key, velocity, random, pitch
// bend, aftertouch, bpm, CC ranges and key-switch state. Cheapest/most
// selective predicates run first (spec.md supplement: key range before CC
// ranges), since this runs once per region per note event.
func (vm *VoiceManager) conditionsMatch(r *region.Region, note int, velocity float32) bool {
	if r.Disabled() {
		return false
	}
	if !r.Key.Contains(float32(note)) {
		return false
	}
	if !r.Velocity.Contains(velocity) {
		return false
	}
	if !r.Random.Full() && !r.Random.Contains(vm.rng.Float32()) {
		return false
	}
	if !r.BendCond.Full() && !r.BendCond.Contains(vm.ms.PitchBend()) {
		return false
	}
	if !r.ChanAftertouchCond.Full() && !r.ChanAftertouchCond.Contains(vm.ms.ChannelAftertouch()) {
		return false
	}
	if !r.PolyAftertouchCond.Full() && !r.PolyAftertouchCond.Contains(vm.ms.PolyAftertouch(note)) {
		return false
	}
	if !r.BPMCond.Full() && !r.BPMCond.Contains(vm.cfg.BPM) {
		return false
	}
	for _, c := range r.CCConds {
		v := vm.ms.CCValue(c.CC)
		if v < c.Lo || v > c.Hi {
			return false
		}
	}
	if r.KeySwitch.Enabled && !vm.keySwitchActive(r.KeySwitch) {
		return false
	}
	return true
}

// seqMatches reports whether this note-on's round-robin position selects
// region r. The counter lives per note number: the simplest concrete home
// for "group" left unspecified by the distilled spec (see DESIGN.md).
func (vm *VoiceManager) seqMatches(r *region.Region, note int) bool {
	if r.SeqLength <= 1 {
		return true
	}
	pos := vm.seqCounters[note]%r.SeqLength + 1
	return pos == r.SeqPosition
}

// NoteOn starts every matching region for note/velocity, honoring
// attack/first/legato trigger gating, and advances that note's round-robin
// sequence counter. Returns the number of voices started.
func (vm *VoiceManager) NoteOn(delay int32, note int, velocity float32) int {
	priorHeld := len(vm.heldNotes)
	vm.ms.NoteOn(delay, note, velocity)
	vm.heldNotes[note] = true
	delete(vm.deferredRelease, note)

	if vm.keySwitchInRange(note) {
		vm.keySwitchLast = note
		return 0
	}

	started := 0
	for _, r := range vm.regions {
		switch r.Trigger {
		case region.TriggerAttack:
		case region.TriggerFirst:
			if priorHeld > 0 {
				continue
			}
		case region.TriggerLegato:
			if priorHeld == 0 {
				continue
			}
		default:
			continue
		}
		if !vm.conditionsMatch(r, note, velocity) {
			continue
		}
		if !vm.seqMatches(r, note) {
			continue
		}
		if vm.startVoice(r, note, velocity, r.Trigger, velocity, delay) {
			started++
		}
	}
	vm.seqCounters[note]++
	return started
}

// NoteOff releases voices playing note (one_shot voices excepted; deferred only for regions with
// sustain_cancels_release set while sustain/sostenuto holds the pedal) and
// fires any release/release_key-triggered regions.
func (vm *VoiceManager) NoteOff(delay int32, note int, velocity float32) {
	onVelocity := vm.ms.NoteOnVelocity(note)
	vm.ms.NoteOff(delay, note, velocity)
	delete(vm.heldNotes, note)

	pedalHeld := vm.sustainDown || (vm.sostenutoDown && vm.sostenutoLatched[note])
	vm.releaseVoicesForNote(note, pedalHeld)

	for _, r := range vm.regions {
		switch r.Trigger {
		case region.TriggerRelease:
			if vm.conditionsMatch(r, note, onVelocity) {
				vm.startVoice(r, note, onVelocity, r.Trigger, onVelocity, delay)
			}
		case region.TriggerReleaseKey:
			if vm.conditionsMatch(r, note, velocity) {
				vm.startVoice(r, note, velocity, r.Trigger, velocity, delay)
			}
		}
	}
}

// releaseVoicesForNote releases every still-playing (non-release-triggered)
// voice of note, except one_shot voices, which ignore note-off and play to
// the end of their sample. Release-on-note-off is the default: a voice only defers
// its release, recorded in deferredRelease for setSustain/setSostenuto to
// finish once the pedal lifts, when pedalHeld is true AND its region opted
// in via sustain_cancels_release. Every other voice of note releases now
// regardless of the pedal (spec.md §4.3).
func (vm *VoiceManager) releaseVoicesForNote(note int, pedalHeld bool) {
	for _, v := range vm.voices {
		if v == nil || !v.Active() || v.note != note || v.triggerType == region.TriggerRelease {
			continue
		}
		if v.reg.Loop.Mode == region.LoopOneShot {
			continue
		}
		if pedalHeld && v.reg.SustainCancelsRelease {
			vm.deferredRelease[note] = true
			continue
		}
		v.Release()
	}
}

// CC forwards a controller event to MidiState, tracks sustain (cc64) and
// sostenuto (cc66) pedal state, and fires start_*ccN regions on a
// threshold crossing into their configured range.
func (vm *VoiceManager) CC(delay int32, cc int, value float32) {
	prev := float32(0)
	if cc >= 0 && cc < len(vm.lastCC) {
		prev = vm.lastCC[cc]
		vm.lastCC[cc] = value
	}
	vm.ms.CCEvent(delay, cc, value)

	switch cc {
	case 64:
		vm.setSustain(value >= 0.5)
	case 66:
		vm.setSostenuto(value >= 0.5)
	}

	for _, r := range vm.regions {
		for _, sc := range r.StartCC {
			if sc.CC != cc {
				continue
			}
			wasIn := prev >= sc.Lo && prev <= sc.Hi
			isIn := value >= sc.Lo && value <= sc.Hi
			if isIn && !wasIn {
				vm.startVoice(r, r.PitchKeycenter, value, r.Trigger, value, delay)
			}
		}
	}
}

func (vm *VoiceManager) setSustain(down bool) {
	if down == vm.sustainDown {
		return
	}
	vm.sustainDown = down
	if down {
		return
	}
	for note := range vm.deferredRelease {
		if vm.sostenutoDown && vm.sostenutoLatched[note] {
			continue
		}
		vm.releaseVoicesForNote(note, false)
		delete(vm.deferredRelease, note)
	}
}

func (vm *VoiceManager) setSostenuto(down bool) {
	if down == vm.sostenutoDown {
		return
	}
	vm.sostenutoDown = down
	if down {
		for note := range vm.heldNotes {
			vm.sostenutoLatched[note] = true
		}
		return
	}
	for note := range vm.sostenutoLatched {
		delete(vm.sostenutoLatched, note)
		if !vm.sustainDown && vm.deferredRelease[note] {
			vm.releaseVoicesForNote(note, false)
			delete(vm.deferredRelease, note)
		}
	}
}

// PitchBend forwards a channel pitch-bend event to MidiState.
func (vm *VoiceManager) PitchBend(delay int32, value float32) {
	vm.ms.PitchBendEvent(delay, value)
}

// ChannelAftertouch forwards a channel pressure event to MidiState.
func (vm *VoiceManager) ChannelAftertouch(delay int32, value float32) {
	vm.ms.ChannelAftertouchEvent(delay, value)
}

// PolyAftertouch forwards a per-note pressure event to MidiState.
func (vm *VoiceManager) PolyAftertouch(delay int32, note int, value float32) {
	vm.ms.PolyAftertouchEvent(delay, note, value)
}

// startVoice resolves r's sample, allocates a pool slot (stealing a scoped
// polyphony victim first, then taking a free slot, then the pool-wide
// lowest-level voice; see allocateSlot) and chokes any other voice in r's
// off_by group. It reports whether a voice was started.
func (vm *VoiceManager) startVoice(r *region.Region, note int, velocity float32, trigger region.TriggerType, triggerValue float32, delay int32) bool {
	if r.Polyphony.Polyphony == 0 {
		return false
	}
	var sample *sampleplayer.Sample
	if vm.samples != nil {
		sample = vm.samples.Sample(r.SampleRef)
	}
	if sample == nil && !r.OscillatorMode {
		return false
	}

	slot := vm.allocateSlot(r, note)
	startSample := vm.globalSample + int64(delay)
	if trigger == region.TriggerRelease {
		// rt_decay is timed from the note-on this release voice answers.
		startSample -= int64(math.Round(vm.ms.NoteDuration(note, delay) * vm.cfg.SampleRate))
	}
	vm.voices[slot] = NewVoice(vm.cfg.SampleRate, r, note, velocity, trigger, triggerValue, sample, vm.curves, vm.cfg.Quality, startSample)
	vm.chokeGroup(slot, r)
	return true
}

// allocateSlot returns a pool index to use for a new voice of region r at
// note. A region/group/note polyphony cap already at its limit is enforced
// first by stealing its scoped victim, even when a free pool slot exists
// elsewhere: otherwise a free slot would let a capped region exceed its own
// limit while the rest of the pool is merely idle. Only once no scope is
// already at its limit does a free slot get used, falling back to the
// pool-wide lowest-level voice when the pool itself is full.
func (vm *VoiceManager) allocateSlot(r *region.Region, note int) int {
	if idx, ok := vm.oldestViolating(r, note); ok {
		return idx
	}
	for i, v := range vm.voices {
		if v == nil {
			return i
		}
	}
	return vm.lowestLevelSlot()
}

type polyScope struct {
	limit   int
	pred    func(*Voice) bool
	byLevel bool // true: steal lowest-amplitude match; false: steal oldest match
}

// oldestViolating finds the scoped victim to steal for r's own polyphony,
// group_poly and note_polyphony caps, in that order. self_mask's
// note_polyphony scope is narrowed to (region, note, group) and its
// invariant is amplitude-based (spec.md §8: "at most one voice per
// region+note+group with amplitude >= another's survives"), so that scope
// steals the lowest-level match rather than the oldest.
func (vm *VoiceManager) oldestViolating(r *region.Region, note int) (int, bool) {
	scopes := []polyScope{
		{limit: r.Polyphony.Polyphony, pred: func(v *Voice) bool { return v.reg == r }},
	}
	if r.Group != 0 {
		scopes = append(scopes, polyScope{limit: r.Polyphony.GroupPoly, pred: func(v *Voice) bool { return v.group == r.Group }})
	}
	if r.Polyphony.SelfMask {
		scopes = append(scopes, polyScope{
			limit:   r.Polyphony.NotePolyphony,
			pred:    func(v *Voice) bool { return v.reg == r && v.note == note && v.group == r.Group },
			byLevel: true,
		})
	} else {
		scopes = append(scopes, polyScope{limit: r.Polyphony.NotePolyphony, pred: func(v *Voice) bool { return v.note == note }})
	}
	for _, s := range scopes {
		if s.limit < 0 {
			continue
		}
		idx, count := vm.scopedVictim(s.pred, s.byLevel)
		if idx >= 0 && count >= s.limit {
			return idx, true
		}
	}
	return 0, false
}

// scopedVictim returns the matching voice to steal (oldest by start time,
// or lowest gating-envelope level if byLevel) along with the match count.
func (vm *VoiceManager) scopedVictim(pred func(*Voice) bool, byLevel bool) (int, int) {
	victim := -1
	count := 0
	for i, v := range vm.voices {
		if v == nil || !pred(v) {
			continue
		}
		count++
		switch {
		case victim == -1:
			victim = i
		case byLevel && v.Level() < vm.voices[victim].Level():
			victim = i
		case !byLevel && v.startSample < vm.voices[victim].startSample:
			victim = i
		}
	}
	return victim, count
}

func (vm *VoiceManager) lowestLevelSlot() int {
	lowest := 0
	lowestLevel := float32(math.MaxFloat32)
	for i, v := range vm.voices {
		if v == nil {
			return i
		}
		if lvl := v.Level(); lvl < lowestLevel {
			lowestLevel = lvl
			lowest = i
		}
	}
	return lowest
}

// chokeGroup silences every other active voice whose group equals r's
// off_by, per each victim's own region off_mode (spec.md §4.1: "starting a
// voice in group G silences voices in the group named by off_by" — here r
// is the voice starting, and r.OffBy names the group being silenced). This
// never reclaims a pool slot directly; the choked voice frees itself once
// its fade/release completes.
func (vm *VoiceManager) chokeGroup(newSlot int, r *region.Region) {
	if r.OffBy == 0 {
		return
	}
	for i, v := range vm.voices {
		if i == newSlot || v == nil || !v.Active() {
			continue
		}
		if v.group == r.OffBy {
			v.Choke()
		}
	}
}

// RenderBlock renders n frames (n <= cfg.BlockSize) into outLeft/outRight,
// advancing every active voice and MidiState's block-relative time.
func (vm *VoiceManager) RenderBlock(n int, outLeft, outRight []float32) error {
	if n > vm.cfg.BlockSize {
		return fmt.Errorf("engine: block of %d frames exceeds configured block size %d", n, vm.cfg.BlockSize)
	}
	vm.mix.Clear()

	for _, v := range vm.voices {
		if v == nil || !v.Active() {
			continue
		}
		v.RenderBlock(vm.ms, 0, vm.globalSample, vm.mix, n)
	}

	if err := vm.mix.MixDown(outLeft[:n], outRight[:n]); err != nil {
		return fmt.Errorf("engine: mixdown: %w", err)
	}

	for i, v := range vm.voices {
		if v != nil && !v.Active() {
			vm.voices[i] = nil
		}
	}

	vm.ms.AdvanceTime(int32(n))
	vm.globalSample += int64(n)
	return nil
}
