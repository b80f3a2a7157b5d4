// Command sfz-render renders a single note through a JSON-preset instrument
// and writes the result to a WAV file, following piano-render's flag and
// encoding conventions.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/engine"
	"github.com/cwbudde/sfzengine/preset"
	"github.com/cwbudde/sfzengine/region"
	"github.com/cwbudde/sfzengine/sampleplayer"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

func main() {
	note := flag.Int("note", 60, "MIDI note number")
	velocity := flag.Float64("velocity", 1.0, "Note-on velocity, 0..1")
	duration := flag.Float64("duration", 2.0, "Duration in seconds")
	releaseAfter := flag.Float64("release-after", 1.0, "Send note-off after this many seconds")
	presetPath := flag.String("preset", "instrument.json", "Preset JSON file path")
	output := flag.String("output", "output.wav", "Output WAV file path")
	blockSize := flag.Int("block-size", 256, "Frames rendered per block")
	flag.Parse()

	cfg, regions, err := preset.LoadJSON(*presetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading preset %q: %v\n", *presetPath, err)
		os.Exit(1)
	}
	cfg.BlockSize = *blockSize

	samples, err := sampleplayer.NewDiskSource(filepath.Dir(*presetPath), sampleRefs(regions), cfg.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error preloading samples: %v\n", err)
		os.Exit(1)
	}

	vm, err := engine.NewVoiceManager(cfg, regions, samples, curve.NewDefaultTable())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error constructing engine: %v\n", err)
		os.Exit(1)
	}

	sampleRate := int(cfg.SampleRate)
	totalFrames := int(*duration * float64(sampleRate))
	releaseAtFrame := int(*releaseAfter * float64(sampleRate))

	vm.NoteOn(0, *note, float32(*velocity))

	interleaved := make([]float32, 0, totalFrames*2)
	left := make([]float32, *blockSize)
	right := make([]float32, *blockSize)

	framesRendered := 0
	released := false
	for framesRendered < totalFrames {
		n := *blockSize
		if framesRendered+n > totalFrames {
			n = totalFrames - framesRendered
		}
		if !released && framesRendered >= releaseAtFrame {
			vm.NoteOff(0, *note, 0)
			released = true
		}
		if err := vm.RenderBlock(n, left[:n], right[:n]); err != nil {
			fmt.Fprintf(os.Stderr, "render error: %v\n", err)
			os.Exit(1)
		}
		for i := 0; i < n; i++ {
			interleaved = append(interleaved, left[i], right[i])
		}
		framesRendered += n
	}

	if err := writeWAV(*output, sampleRate, interleaved); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %q: %v\n", *output, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s (%d frames at %d Hz)\n", *output, framesRendered, sampleRate)
}

func writeWAV(path string, sampleRate int, interleaved []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	const numChannels = 2
	encoder := wav.NewEncoder(file, sampleRate, 16, numChannels, 1)
	defer encoder.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           interleaved,
		SourceBitDepth: 16,
	}
	return encoder.Write(buf)
}

// sampleRefs collects the distinct sample refs a region table uses, so
// DiskSource only preloads what this instrument actually needs.
func sampleRefs(regions []*region.Region) []string {
	seen := make(map[string]bool, len(regions))
	var refs []string
	for _, r := range regions {
		if r.SampleRef == "" || seen[r.SampleRef] {
			continue
		}
		seen[r.SampleRef] = true
		refs = append(refs, r.SampleRef)
	}
	return refs
}
