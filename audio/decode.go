package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Format identifies the container a TTS backend returned.
type Format int

const (
	FormatMP3 Format = iota // vendor A output
	FormatWAV               // vendor B output
)

// Decode turns raw backend audio into a Track at the Discord sample rate.
func Decode(data []byte, format Format) (*Track, error) {
	switch format {
	case FormatMP3:
		return decodeMP3(data)
	case FormatWAV:
		return decodeWAV(data)
	default:
		return nil, fmt.Errorf("unknown audio format %d", format)
	}
}

// decodeMP3 decodes MP3 data. go-mp3 always emits 16-bit LE stereo at the
// source sample rate.
func decodeMP3(data []byte) (*Track, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}

	return NewTrack(resample(pcm, Channels, dec.SampleRate())), nil
}

func decodeWAV(data []byte) (*Track, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("wav decode: missing format")
	}

	shift := 0
	if dec.BitDepth > 16 {
		shift = int(dec.BitDepth) - 16
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	pcm := make([]int16, 0, frames*Channels)
	for f := 0; f < frames; f++ {
		var l, r int
		if ch == 1 {
			l = buf.Data[f] >> shift
			r = l
		} else {
			l = buf.Data[f*ch] >> shift
			r = buf.Data[f*ch+1] >> shift
		}
		pcm = append(pcm, int16(l), int16(r))
	}

	return NewTrack(resample(pcm, Channels, buf.Format.SampleRate)), nil
}

// resample converts interleaved stereo PCM from srcRate to SampleRate
// using linear interpolation. Good enough for speech; transcoding
// fidelity is not a goal here.
func resample(pcm []int16, channels, srcRate int) []int16 {
	if srcRate == SampleRate || srcRate <= 0 {
		return pcm
	}

	srcFrames := len(pcm) / channels
	dstFrames := int(int64(srcFrames) * SampleRate / int64(srcRate))
	out := make([]int16, dstFrames*channels)

	for f := 0; f < dstFrames; f++ {
		srcPos := float64(f) * float64(srcRate) / float64(SampleRate)
		i := int(srcPos)
		frac := srcPos - float64(i)
		j := i + 1
		if j >= srcFrames {
			j = srcFrames - 1
		}
		for c := 0; c < channels; c++ {
			a := float64(pcm[i*channels+c])
			b := float64(pcm[j*channels+c])
			out[f*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
