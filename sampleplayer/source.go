package sampleplayer

import "fmt"

// DiskSource preloads every sample a region table references into memory,
// then serves them by ref with no further disk I/O: samples are loaded
// eagerly, not streamed from a background thread (spec.md's streaming
// loader is an external collaborator, out of scope here).
type DiskSource struct {
	samples map[string]*Sample
}

// NewDiskSource loads refs (region.SampleRef values, each joined onto dir
// when dir is non-empty) at targetSampleRate and returns a source ready to hand
// them to the engine. A ref that fails to load is reported immediately,
// not deferred to first use on the audio thread.
func NewDiskSource(dir string, refs []string, targetSampleRate float64) (*DiskSource, error) {
	ds := &DiskSource{samples: make(map[string]*Sample, len(refs))}
	for _, ref := range refs {
		if _, ok := ds.samples[ref]; ok {
			continue
		}
		path := ref
		if dir != "" {
			path = dir + string('/') + ref
		}
		s, err := LoadWAV(path, targetSampleRate)
		if err != nil {
			return nil, fmt.Errorf("sampleplayer: preloading %q: %w", ref, err)
		}
		ds.samples[ref] = s
	}
	return ds, nil
}

// Sample returns the preloaded buffer for ref, or nil if ref was never
// preloaded.
func (ds *DiskSource) Sample(ref string) *Sample {
	return ds.samples[ref]
}
