package region

// ModKeyKind tags the variant carried by a ModKey. Using a tagged union
// with compact integer payloads (rather than a pointer graph) lets the
// region table and its connections live in flat, arena-indexed slices.
type ModKeyKind int

const (
	// Sources
	ModKeyController ModKeyKind = iota
	ModKeyPerVoiceController
	ModKeyAmpEG
	ModKeyPitchEG
	ModKeyFilEG
	ModKeyAmpLFO
	ModKeyPitchLFO
	ModKeyFilLFO
	ModKeyLFO
	ModKeyFlexEnvelope
	ModKeyChannelAftertouch
	ModKeyPolyAftertouch

	// Targets
	ModKeyVolume
	ModKeyAmplitude
	ModKeyPan
	ModKeyPosition
	ModKeyWidth
	ModKeyPitch
	ModKeyFilCutoff
	ModKeyFilResonance
	ModKeyFilGain
	ModKeyEqGain
	ModKeyEqFreq
	ModKeyEqBw
	ModKeyOscillatorDetune
	ModKeyOscillatorModDepth
	ModKeyLFOFrequency
	ModKeyLFOBeats
	ModKeyLFOPhase
	ModKeyDepthKeys // target of a depth-modulation connection: the depth of another connection
)

// ModKey addresses a point in the modulation graph: a source a connection
// reads from, or a target it writes to. Index selects which instance when
// a kind is indexed (filter/EQ/LFO slot, region id, CC number, note number).
type ModKey struct {
	Kind  ModKeyKind
	Index int // CC number, filter/EQ/LFO slot, note number, region id, flex-EG index

	// Controller-only fields
	Curve  int     // curve table index
	Smooth float32 // ms
	Step   float32 // quantization step
}

// Controller builds a ModKey addressing channel-wide CC `cc` with the given
// curve/smoothing/stepping parameters.
func Controller(cc int, curve int, smooth, step float32) ModKey {
	return ModKey{Kind: ModKeyController, Index: cc, Curve: curve, Smooth: smooth, Step: step}
}

// PerVoiceController builds a ModKey addressing a per-note CC override for
// the voice whose region is regionID.
func PerVoiceController(regionID, cc int, curve int, smooth, step float32) ModKey {
	// Index carries the CC number; the owning region is implicit (a voice
	// only ever evaluates PerVoiceController keys against its own region),
	// so regionID is accepted for documentation symmetry with spec.md's
	// ModKey variant list but not separately stored.
	_ = regionID
	return ModKey{Kind: ModKeyPerVoiceController, Index: cc, Curve: curve, Smooth: smooth, Step: step}
}

// Equal reports whether two ModKeys address the same graph point, ignoring
// curve/smooth/step (those parametrize evaluation, not identity) — this is
// the comparison the Connection uniqueness invariant uses.
func (k ModKey) Equal(other ModKey) bool {
	return k.Kind == other.Kind && k.Index == other.Index
}

// FilterCutoff addresses the cutoff target of filter slot i.
func FilterCutoff(i int) ModKey { return ModKey{Kind: ModKeyFilCutoff, Index: i} }

// FilterResonance addresses the resonance target of filter slot i.
func FilterResonance(i int) ModKey { return ModKey{Kind: ModKeyFilResonance, Index: i} }

// FilterGain addresses the gain target of filter slot i.
func FilterGain(i int) ModKey { return ModKey{Kind: ModKeyFilGain, Index: i} }

// EqGain addresses the gain target of EQ band i.
func EqGain(i int) ModKey { return ModKey{Kind: ModKeyEqGain, Index: i} }

// EqFreq addresses the frequency target of EQ band i.
func EqFreq(i int) ModKey { return ModKey{Kind: ModKeyEqFreq, Index: i} }

// EqBw addresses the bandwidth target of EQ band i.
func EqBw(i int) ModKey { return ModKey{Kind: ModKeyEqBw, Index: i} }

// LFOFrequency addresses the frequency target of LFO slot i.
func LFOFrequency(i int) ModKey { return ModKey{Kind: ModKeyLFOFrequency, Index: i} }

// AddConnection appends a connection, enforcing the at-most-one-connection-
// per-(source,target) invariant by replacing any existing edge with the
// same source and target.
func (r *Region) AddConnection(c Connection) {
	for i := range r.Connections {
		if r.Connections[i].Source.Equal(c.Source) && r.Connections[i].Target.Equal(c.Target) {
			r.Connections[i] = c
			return
		}
	}
	r.Connections = append(r.Connections, c)
}

// ConnectionsTo returns every connection targeting key, in declaration order.
func (r *Region) ConnectionsTo(key ModKey) []Connection {
	var out []Connection
	for _, c := range r.Connections {
		if c.Target.Equal(key) {
			out = append(out, c)
		}
	}
	return out
}
