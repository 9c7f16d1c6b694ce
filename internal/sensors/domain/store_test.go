package sensors

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func fixedLocator(layout map[string]Position) Locator {
	return LocatorFunc(func(id string) Placement {
		pos, ok := layout[id]
		if !ok {
			return DefaultPlacement(id)
		}
		return Placement{Position: pos, DisplayName: "zone " + id, Known: true}
	})
}

func TestUpsertCreatesRecordFromLocator(t *testing.T) {
	store := NewStore(fixedLocator(map[string]Position{"E1": {X: 1, Y: 2}}), &stepClock{})

	store.Upsert("E1", 55.5, nil)

	record, ok := store.Record("E1")
	require.True(t, ok)
	assert.Equal(t, Position{X: 1, Y: 2}, record.Position)
	assert.Equal(t, "zone E1", record.DisplayName)
	assert.Equal(t, 55.5, record.LastValue)
	assert.Len(t, record.History, 1)
}

func TestUpsertUnknownSensorUsesDefaultPlacement(t *testing.T) {
	store := NewStore(fixedLocator(nil), &stepClock{})

	store.Upsert("ghost", 40, nil)

	record, ok := store.Record("ghost")
	require.True(t, ok)
	assert.Equal(t, DefaultPosition, record.Position)
	assert.Equal(t, "unknown - ghost", record.DisplayName)
}

func TestUpsertOverwritesLatestValue(t *testing.T) {
	store := NewStore(nil, &stepClock{})

	store.Upsert("E1", 10, nil)
	store.Upsert("E1", 20, nil)

	assert.Equal(t, 1, store.Count())
	points := store.PositionsValues()
	require.Len(t, points, 1)
	assert.Equal(t, 20.0, points[0].Value)
}

func TestHistoryIsBoundedAndKeepsArrivalOrder(t *testing.T) {
	store := NewStore(nil, &stepClock{})

	for i := 0; i < HistoryCapacity+15; i++ {
		ts := int64(1_000_000 - i) // sender clock runs backwards
		store.Upsert("E1", float64(i), &ts)
	}

	history := store.History("E1", 0)
	require.Len(t, history, HistoryCapacity)
	assert.Equal(t, 15.0, history[0].Value)
	assert.Equal(t, float64(HistoryCapacity+14), history[len(history)-1].Value)
	for i := 1; i < len(history); i++ {
		assert.Less(t, history[i-1].Seq, history[i].Seq)
		assert.True(t, history[i-1].ReceivedAt.Before(history[i].ReceivedAt))
	}
}

func TestHistoryLimit(t *testing.T) {
	store := NewStore(nil, &stepClock{})
	for i := 0; i < 10; i++ {
		store.Upsert("E1", float64(i), nil)
	}

	history := store.History("E1", 3)
	got := make([]float64, 0, len(history))
	for _, sample := range history {
		got = append(got, sample.Value)
	}
	if diff := cmp.Diff([]float64{7, 8, 9}, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, store.History("missing", 3))
}

func TestPositionsValuesFirstSeenOrder(t *testing.T) {
	layout := map[string]Position{"A": {X: 0, Y: 0}, "B": {X: 10, Y: 0}, "C": {X: 5, Y: 10}}
	store := NewStore(fixedLocator(layout), &stepClock{})

	store.Upsert("C", 60, nil)
	store.Upsert("A", 40, nil)
	store.Upsert("B", 80, nil)
	store.Upsert("A", 41, nil)

	want := []Point{
		{SensorID: "C", X: 5, Y: 10, Value: 60},
		{SensorID: "A", X: 0, Y: 0, Value: 41},
		{SensorID: "B", X: 10, Y: 0, Value: 80},
	}
	if diff := cmp.Diff(want, store.PositionsValues()); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestAllHistoryReturnsCopies(t *testing.T) {
	store := NewStore(nil, &stepClock{})
	store.Upsert("A", 1, nil)
	store.Upsert("B", 2, nil)

	all := store.AllHistory(0)
	require.Len(t, all, 2)
	all["A"][0].Value = 99

	assert.Equal(t, 1.0, store.History("A", 0)[0].Value)
}
