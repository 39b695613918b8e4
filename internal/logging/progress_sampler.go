package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the collection changes or the percentage crosses a bucket boundary.
type ProgressSampler struct {
	bucketSize float64
	lastKey    string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when the collection key changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. A percent that
// falls back below the last bucket (a wrap or reset) always emits.
func (s *ProgressSampler) ShouldLog(percent float64, key string) bool {
	if s == nil {
		return true
	}
	key = strings.TrimSpace(key)
	emit := false
	if key != s.lastKey {
		s.lastKey = key
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}
	if bucket != s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastKey = ""
	s.lastBucket = -1
}
