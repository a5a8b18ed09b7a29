// Package codec adapts inbound glasses audio into the PCM format the
// transcription engine and TPA audio fast path expect, via a pluggable
// Decoder the routing engine calls before fanning out binary frames.
package codec

import (
	"github.com/augmentcore/corehub/pkg/audio"
)

// TargetFormat is the PCM format every decoded frame is normalized to:
// 16kHz mono, the format internal/core/transcribe opens provider streams
// with.
var TargetFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Decoder converts one inbound audio frame into raw PCM bytes at
// TargetFormat, or returns nil with no error to signal the frame should be
// dropped (e.g. corrupt data).
type Decoder interface {
	Decode(frame audio.AudioFrame) ([]byte, error)
}

// PCMConverter is a Decoder backed by [audio.FormatConverter]: it assumes
// the input is already raw PCM (no compressed codec in play) and only
// resamples/remixes channels as needed.
type PCMConverter struct {
	conv audio.FormatConverter
}

// NewPCMConverter returns a Decoder normalizing every frame to TargetFormat.
func NewPCMConverter() *PCMConverter {
	return &PCMConverter{conv: audio.FormatConverter{Target: TargetFormat}}
}

// Decode implements Decoder.
func (p *PCMConverter) Decode(frame audio.AudioFrame) ([]byte, error) {
	out := p.conv.Convert(frame)
	return out.Data, nil
}
