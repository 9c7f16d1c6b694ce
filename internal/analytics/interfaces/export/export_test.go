package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"noisemap/internal/analytics/application"
	"noisemap/internal/analytics/domain/statistic"
	sensors "noisemap/internal/sensors/domain"
)

var bucketTime = time.Date(2024, 5, 1, 11, 57, 0, 0, time.UTC)

func sampleRows() []application.HistoryRow {
	return []application.HistoryRow{
		{Time: bucketTime, SensorID: "E1", Value: 52, Replicates: 2, Samples: 2, Position: sensors.Position{X: 1, Y: 2}, DisplayName: "Lab"},
		{Time: bucketTime, SensorID: "E2", Value: 70.126, Replicates: 1, Samples: 1, Position: sensors.Position{X: 2.5, Y: 7}, DisplayName: "unknown - E2"},
		{Time: bucketTime.Add(time.Minute), SensorID: "E1", Value: 60, Replicates: 1, Samples: 1, Position: sensors.Position{X: 1, Y: 2}, DisplayName: "Lab"},
	}
}

func TestWriteHistoryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryCSV(&buf, sampleRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	want := [][]string{
		historyHeader,
		{"2024-05-01T11:57:00Z", "E1", "Lab", "1", "2", "52.00", "2", "2"},
		{"2024-05-01T11:57:00Z", "E2", "unknown - E2", "2.5", "7", "70.13", "1", "1"},
		{"2024-05-01T11:58:00Z", "E1", "Lab", "1", "2", "60.00", "1", "1"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteHistoryCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryCSV(&buf, nil))
	assert.Equal(t, "time,sensor_id,display_name,x,y,value_db,replicates,samples\n", buf.String())
}

func TestBuildHistoryXLSX(t *testing.T) {
	data, err := BuildHistoryXLSX(sampleRows())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("history")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "sensor_id", rows[0][1])
	assert.Equal(t, "E2", rows[2][1])

	summary, err := f.GetRows("sensors")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"E1", "Lab", "2", "56"}, summary[1])
}

func TestBuildStatisticsPDF(t *testing.T) {
	summary := statistic.Summary{
		SensorID: "E1", Count: 2, Mean: 56, Min: 52, Max: 60, Std: 4, Window: "1m", Hours: 1,
		SamplePoints: []statistic.Bucket{
			{SensorID: "E1", Start: bucketTime, Value: 52, Replicates: 2},
			{SensorID: "E1", Start: bucketTime.Add(time.Minute), Value: 60, Replicates: 1},
		},
	}
	data, err := BuildStatisticsPDF(summary, bucketTime)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}
