package speech

import (
	"encoding/binary"
	"math"
)

// levelFullScale is the RMS amplitude reported as level 1. Conversational
// speech peaks well below int16 full scale.
const levelFullScale = 8192.0

// Format describes 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Level returns the RMS loudness of 16-bit PCM scaled into [0, 1].
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return min(math.Sqrt(sum/float64(n))/levelFullScale, 1)
}

// Convert turns PCM in format from into mono PCM at rate. Stereo input is
// downmixed first so only one channel is resampled. Odd trailing bytes are
// dropped.
func Convert(pcm []byte, from Format, rate int) []byte {
	pcm = pcm[:len(pcm)&^1]
	if from.Channels == 2 {
		pcm = downmix(pcm)
	}
	return resample(pcm, from.SampleRate, rate)
}

// downmix averages each L+R frame into one mono sample.
func downmix(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// resample converts mono PCM between rates by linear interpolation. The
// input is returned unchanged when either rate is unknown or they match.
func resample(pcm []byte, src, dst int) []byte {
	if src <= 0 || dst <= 0 || src == dst || len(pcm) < 2 {
		return pcm
	}
	in := len(pcm) / 2
	n := int(int64(in) * int64(dst) / int64(src))
	out := make([]byte, n*2)
	ratio := float64(src) / float64(dst)
	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < in {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}
