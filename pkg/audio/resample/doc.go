// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts mono float audio between sample rates
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation over mono float32 samples. The last sample of
// each chunk is carried into the next, so chunk boundaries are seamless at
// the cost of one sample of latency.
//
// Example:
//
//	r := resample.New(44100, 24000)
//	out := make([]float32, r.OutputSamplesNeeded(len(in)))
//	n := r.Resample(in, out)
package resample
