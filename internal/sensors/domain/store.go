package sensors

import "sync"

// Store keeps the latest value and bounded history per sensor.
type Store struct {
	mu      sync.RWMutex
	locator Locator
	clock   Clock
	records map[string]*Record
	order   []string
	seq     uint64
}

// NewStore constructs a store. A nil locator places every sensor at the default position.
func NewStore(locator Locator, clock Clock) *Store {
	if locator == nil {
		locator = LocatorFunc(DefaultPlacement)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		locator: locator,
		clock:   clock,
		records: make(map[string]*Record),
	}
}

// Upsert records a sample for sensorID, creating the record on first sight.
func (s *Store) Upsert(sensorID string, value float64, timestamp *int64) Sample {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sensorID]
	if !ok {
		placement := s.locator.Locate(sensorID)
		record = &Record{
			SensorID:    sensorID,
			Position:    placement.Position,
			DisplayName: placement.DisplayName,
			History:     make([]Sample, 0, HistoryCapacity),
		}
		s.records[sensorID] = record
		s.order = append(s.order, sensorID)
	}

	s.seq++
	var ts *int64
	if timestamp != nil {
		v := *timestamp
		ts = &v
	}
	sample := Sample{
		SensorID:   sensorID,
		Value:      value,
		Timestamp:  ts,
		ReceivedAt: now,
		Seq:        s.seq,
	}

	record.LastValue = value
	record.LastUpdate = now
	if len(record.History) == HistoryCapacity {
		copy(record.History, record.History[1:])
		record.History = record.History[:HistoryCapacity-1]
	}
	record.History = append(record.History, sample)
	return sample
}

// PositionsValues returns the current value of every sensor in first-seen order.
func (s *Store) PositionsValues() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]Point, 0, len(s.order))
	for _, id := range s.order {
		record := s.records[id]
		points = append(points, Point{
			SensorID: id,
			X:        record.Position.X,
			Y:        record.Position.Y,
			Value:    record.LastValue,
		})
	}
	return points
}

// Count returns the number of distinct sensors seen.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Records returns copies of all records in first-seen order, without history.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		record := *s.records[id]
		record.History = nil
		out = append(out, record)
	}
	return out
}

// Record returns a deep copy of a single record.
func (s *Store) Record(sensorID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sensorID]
	if !ok {
		return Record{}, false
	}
	out := *record
	out.History = append([]Sample(nil), record.History...)
	return out, true
}

// History returns up to limit of the most recent samples for sensorID, oldest first.
// A non-positive limit returns the full retained history.
func (s *Store) History(sensorID string, limit int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sensorID]
	if !ok {
		return nil
	}
	return tail(record.History, limit)
}

// AllHistory returns History for every sensor keyed by identity.
func (s *Store) AllHistory(limit int) map[string][]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Sample, len(s.records))
	for id, record := range s.records {
		out[id] = tail(record.History, limit)
	}
	return out
}

func tail(history []Sample, limit int) []Sample {
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	return append([]Sample(nil), history[start:]...)
}
