package session

import (
	"sync"

	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/oklog/ulid/v2"
)

// State is the connection state for one bonded hub. It is shared between the
// request handler (which records the HELLO identifiers) and the serial bridge
// (which owns its lifecycle).
type State struct {
	mu           sync.RWMutex
	id           ulid.ULID
	schoolID     string
	hubID        string
	serialNumber string
	packetCount  uint64
	paused       bool
}

// Snapshot is an immutable copy of State
type Snapshot struct {
	ID           string `json:"id,omitempty"`
	SchoolID     string `json:"school_id"`
	HubID        string `json:"hub_id"`
	SerialNumber string `json:"serial_number"`
	PacketCount  uint64 `json:"packet_count"`
	Paused       bool   `json:"paused"`
}

func New() *State {
	return &State{}
}

// Begin starts a new session for the device with the given serial number
func (s *State) Begin(serialNumber string) (ulid.ULID, error) {
	id, err := utils.NewULID()
	if err != nil {
		return ulid.ULID{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.serialNumber = serialNumber
	s.schoolID = ""
	s.hubID = ""
	s.packetCount = 0
	s.paused = false
	return id, nil
}

// Reset empties the session, as on disconnect
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ulid.ULID{}
	s.schoolID = ""
	s.hubID = ""
	s.serialNumber = ""
	s.packetCount = 0
	s.paused = false
}

func (s *State) SetHub(schoolID, hubID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schoolID = schoolID
	s.hubID = hubID
}

// IncPackets bumps the packet counter and returns the new value
func (s *State) IncPackets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetCount++
	return s.packetCount
}

func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SchoolID:     s.schoolID,
		HubID:        s.hubID,
		SerialNumber: s.serialNumber,
		PacketCount:  s.packetCount,
		Paused:       s.paused,
	}
	if s.id != (ulid.ULID{}) {
		snap.ID = s.id.String()
	}
	return snap
}
