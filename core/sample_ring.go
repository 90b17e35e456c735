package core

import "github.com/signalsfoundry/dishlink-simulator/model"

// sampleRing is a fixed-capacity circular buffer of samples. Pushing into a
// full ring overwrites the oldest entry; nothing is reallocated or shifted.
type sampleRing struct {
	buf  []model.Sample
	head int
	size int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{buf: make([]model.Sample, capacity)}
}

func (r *sampleRing) push(s model.Sample) {
	n := len(r.buf)
	if r.size < n {
		r.buf[(r.head+r.size)%n] = s
		r.size++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % n
}

func (r *sampleRing) len() int { return r.size }

// at returns the i-th sample, 0 being the oldest.
func (r *sampleRing) at(i int) model.Sample {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *sampleRing) last() (model.Sample, bool) {
	if r.size == 0 {
		return model.Sample{}, false
	}
	return r.at(r.size - 1), true
}

func (r *sampleRing) snapshot() []model.Sample {
	out := make([]model.Sample, r.size)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

func (r *sampleRing) reset() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}
