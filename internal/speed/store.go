package speed

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
)

const secondsPerDay = 86400

// Sighting is one PLATE observation.
type Sighting struct {
	Timestamp uint32
	Mile      uint16
}

// Ticket is a derived speeding record.
type Ticket struct {
	Plate         string
	Road          uint16
	Mile1         uint16
	T1            uint32
	Mile2         uint16
	T2            uint32
	SpeedCentiMPH uint16
}

// day returns the calendar day (floor(t/86400)) a ticket endpoint falls on.
func day(t uint32) uint32 { return t / secondsPerDay }

// Store holds every piece of process-wide Speed Daemon state behind one
// mutex, a single critical section. It never shards the lock across
// sightings/tickets/burned-days/dispatchers because the invariants (one
// ticket per plate per day, ticket-to-road routing) span all four together.
type Store struct {
	mu sync.Mutex

	// sightings[road][plate] ordered by timestamp.
	sightings map[uint16]map[string][]Sighting
	// burnedDays[plate] is the set of calendar days already ticketed.
	burnedDays map[string]map[uint32]bool
	// pending holds tickets with no connected dispatcher for their road yet.
	pending []Ticket
	// dispatchers[road] is the set of connected dispatcher sinks covering it.
	dispatchers map[uint16][]*dispatcherSink

	log *zap.SugaredLogger
}

// dispatcherSink is how the store delivers a ticket to a connected
// dispatcher without holding a reference to the connection goroutine's
// internals — only a channel, so the store's lock is never held across a
// network write.
type dispatcherSink struct {
	roads map[uint16]bool
	ch    chan Ticket
}

// NewStore creates an empty, process-wide Speed Daemon state registry.
// Call once at startup and thread the result through every connection
// handler.
func NewStore() *Store {
	return &Store{
		sightings:   make(map[uint16]map[string][]Sighting),
		burnedDays:  make(map[string]map[uint32]bool),
		dispatchers: make(map[uint16][]*dispatcherSink),
		log:         logger.Named("speed"),
	}
}

// RegisterDispatcher adds a dispatcher's roads and returns a channel that
// yields every deliverable pending ticket for those roads, followed by any
// future tickets as they're generated. Call Unregister when the
// connection closes.
func (s *Store) RegisterDispatcher(roads []uint16) *dispatcherSink {
	s.mu.Lock()
	defer s.mu.Unlock()

	roadSet := make(map[uint16]bool, len(roads))
	for _, r := range roads {
		roadSet[r] = true
	}
	sink := &dispatcherSink{roads: roadSet, ch: make(chan Ticket, 64)}
	for _, r := range roads {
		s.dispatchers[r] = append(s.dispatchers[r], sink)
	}

	// Flush any pending tickets this dispatcher can now take.
	remaining := s.pending[:0]
	for _, t := range s.pending {
		if roadSet[t.Road] && s.tryBurn(t) {
			sink.ch <- t
		} else {
			remaining = append(remaining, t)
		}
	}
	s.pending = remaining
	return sink
}

// Unregister removes a dispatcher sink from every road it covered.
func (s *Store) Unregister(sink *dispatcherSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for r := range sink.roads {
		list := s.dispatchers[r]
		for i, d := range list {
			if d == sink {
				s.dispatchers[r] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	close(sink.ch)
}

// RecordPlate ingests one Plate observation from a camera and hands the
// first ticket its pairing with a prior sighting produces to deliver; it
// returns nothing. The candidate search tries every prior sighting of the
// plate on the road, in timestamp order, and stops at the first pair over
// the limit, since plate volumes per road are small relative to a day's
// duration.
func (s *Store) RecordPlate(road uint16, plate string, mile uint16, timestamp uint32, limit uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPlate, ok := s.sightings[road]
	if !ok {
		byPlate = make(map[string][]Sighting)
		s.sightings[road] = byPlate
	}
	prior := byPlate[plate]

	for _, other := range prior {
		if other.Timestamp == timestamp {
			continue
		}
		t1, m1, t2, m2 := other.Timestamp, other.Mile, timestamp, mile
		if t1 > t2 {
			t1, m1, t2, m2 = t2, m2, t1, m1
		}
		speedMPH := milesPerHour(m1, m2, t1, t2)
		if speedMPH > float64(limit) {
			ticket := Ticket{
				Plate: plate, Road: road,
				Mile1: m1, T1: t1, Mile2: m2, T2: t2,
				SpeedCentiMPH: uint16(math.Round(speedMPH * 100)),
			}
			s.deliver(ticket)
			break
		}
	}

	insertSorted(&byPlate, plate, Sighting{Timestamp: timestamp, Mile: mile})
	s.sightings[road] = byPlate
}

func milesPerHour(m1, m2 uint16, t1, t2 uint32) float64 {
	dist := math.Abs(float64(int(m2) - int(m1)))
	hours := float64(t2-t1) / 3600.0
	if hours == 0 {
		return math.Inf(1)
	}
	return dist / hours
}

func insertSorted(byPlate *map[string][]Sighting, plate string, s Sighting) {
	list := (*byPlate)[plate]
	idx := sort.Search(len(list), func(i int) bool { return list[i].Timestamp >= s.Timestamp })
	list = append(list, Sighting{})
	copy(list[idx+1:], list[idx:])
	list[idx] = s
	(*byPlate)[plate] = list
}

// deliver tries to burn the ticket's day span and route it to a connected
// dispatcher; otherwise it queues as pending. Must be called with s.mu held.
func (s *Store) deliver(t Ticket) {
	sinks := s.dispatchers[t.Road]
	if len(sinks) == 0 {
		s.pending = append(s.pending, t)
		return
	}
	if !s.tryBurn(t) {
		// At least one day in the span is already burned for this plate;
		// the ticket is silently dropped, since a burned day can never be
		// ticketed again.
		return
	}
	sink := sinks[0]
	select {
	case sink.ch <- t:
	default:
		s.log.Warnw("dispatcher channel full, dropping ticket", logger.FieldPlate, t.Plate, logger.FieldRoad, t.Road)
	}
}

// tryBurn burns every day in [day(t1), day(t2)] for the ticket's plate if
// and only if none of them are already burned. Must be called with s.mu held.
func (s *Store) tryBurn(t Ticket) bool {
	d1, d2 := day(t.T1), day(t.T2)
	burned, ok := s.burnedDays[t.Plate]
	if !ok {
		burned = make(map[uint32]bool)
	}
	for d := d1; d <= d2; d++ {
		if burned[d] {
			return false
		}
	}
	for d := d1; d <= d2; d++ {
		burned[d] = true
	}
	s.burnedDays[t.Plate] = burned
	return true
}
