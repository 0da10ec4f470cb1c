package protocol

import "sync/atomic"

// Stats keeps track of the silent skip and truncate paths taken by the codec
type Stats struct {
	skippedSubtypes   atomic.Uint64
	unsupportedValues atomic.Uint64
	truncatedFrames   atomic.Uint64
	truncatedBytes    atomic.Uint64
}

func (s *Stats) AddSkippedSubtype() {
	s.skippedSubtypes.Add(1)
}

func (s *Stats) AddUnsupportedValue() {
	s.unsupportedValues.Add(1)
}

func (s *Stats) AddTruncation(dropped uint64) {
	s.truncatedFrames.Add(1)
	s.truncatedBytes.Add(dropped)
}

func (s *Stats) Reset() {
	s.skippedSubtypes.Store(0)
	s.unsupportedValues.Store(0)
	s.truncatedFrames.Store(0)
	s.truncatedBytes.Store(0)
}

func (s *Stats) GetSkippedSubtypes() uint64 {
	return s.skippedSubtypes.Load()
}

func (s *Stats) GetUnsupportedValues() uint64 {
	return s.unsupportedValues.Load()
}

func (s *Stats) GetTruncatedFrames() uint64 {
	return s.truncatedFrames.Load()
}

func (s *Stats) GetTruncatedBytes() uint64 {
	return s.truncatedBytes.Load()
}
