// Package sampleplayer owns the in-memory sample buffer and the per-voice
// playback cursor: pitch-modulated fractional-sample reads with
// configurable interpolation quality, loop-mode handling with crossfade,
// and reverse playback (spec.md §4.2 step 3). Loading from disk is a thin
// WAV decode + resample step; parsing an instrument's mapping language
// into Region.SampleRef is an external collaborator's job (spec.md §6).
package sampleplayer

import (
	"fmt"
	"os"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
)

// Sample is an immutable, fully decoded multi-channel buffer at the
// engine's render sample rate. Channels are stored non-interleaved so a
// voice can read a frame without a stride multiply per channel.
type Sample struct {
	Channels   [][]float32 // one slice per channel
	SampleRate float64
	NumFrames  int64
}

// NumChannels reports how many channels the sample carries.
func (s *Sample) NumChannels() int { return len(s.Channels) }

// LoadWAV decodes a WAV file and resamples it to targetSampleRate if the
// file's native rate differs.
func LoadWAV(path string, targetSampleRate float64) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sampleplayer: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("sampleplayer: invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("sampleplayer: decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("sampleplayer: empty wav buffer: %s", path)
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	channels := make([][]float64, ch)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}
	fullScale := fullScaleFor(buf.SourceBitDepth)
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			channels[c][i] = float64(buf.Data[i*ch+c]) / fullScale
		}
	}

	srcRate := float64(buf.Format.SampleRate)
	if srcRate != targetSampleRate && targetSampleRate > 0 {
		r, err := dspresample.NewForRates(srcRate, targetSampleRate, dspresample.WithQuality(dspresample.QualityBest))
		if err != nil {
			return nil, fmt.Errorf("sampleplayer: resample %s: %w", path, err)
		}
		for c := range channels {
			channels[c] = r.Process(channels[c])
		}
		frames = len(channels[0])
	} else {
		targetSampleRate = srcRate
	}

	out := &Sample{SampleRate: targetSampleRate, NumFrames: int64(frames), Channels: make([][]float32, ch)}
	for c := range channels {
		out.Channels[c] = make([]float32, frames)
		for i, v := range channels[c] {
			out.Channels[c][i] = float32(v)
		}
	}
	return out, nil
}

// fullScaleFor returns the divisor that converts a decoded PCM integer
// sample at the given source bit depth to a [-1,1] float.
func fullScaleFor(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(int64(1) << uint(bitDepth-1))
}
