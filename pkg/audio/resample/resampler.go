// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used to bring file inputs to the session sample rate
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
	position   float64
	last       float32
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts mono input samples to the output rate.
// output should hold OutputSamplesNeeded(len(input)) samples; interpolation
// positions that do not fit are lost.
func (r *Resampler) Resample(input []float32, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	// Position indexes a virtual sequence whose element 0 is the carried
	// sample and whose element k is input[k-1].
	if !r.primed {
		r.last = input[0]
		r.position = 1
		r.primed = true
	}

	outIdx := 0
	for outIdx < len(output) {
		idx := int(r.position)
		if idx >= len(input) {
			break
		}

		frac := float32(r.position - float64(idx))

		s0 := r.last
		if idx > 0 {
			s0 = input[idx-1]
		}
		s1 := input[idx]

		output[outIdx] = s0 + (s1-s0)*frac
		outIdx++
		r.position += r.ratio
	}

	r.position -= float64(len(input))
	if r.position < 0 {
		r.position = 0
	}
	r.last = input[len(input)-1]

	return outIdx
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
	r.primed = false
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// OutputSamplesNeeded calculates how many output samples can be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	return int(math.Ceil(float64(inputSamples)/r.ratio)) + 1
}
