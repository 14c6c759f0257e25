package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipd-simulator/pkg/model"
)

func sampleStats() *model.StepStats {
	return &model.StepStats{
		Step:             3,
		Active:           90,
		Unicellular:      80,
		Multicellular:    10,
		MeanFitness:      1.5,
		MeanFitnessUni:   1.25,
		MeanFitnessMulti: 3.5,
		CoopCount:        100,
		DefectCount:      50,
		MergeCount:       7,
		SplitCount:       2,
		MaxOrgSize:       4,
	}
}

func TestStatsCSVWriter_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewStatsCSVWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.WriteStep(sampleStats()))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"step,active,unicellular,multicellular,mean_fitness,mean_fitness_uni,mean_fitness_multi,coop_count,defect_count,merge_count,split_count,max_org_size",
		lines[0])
	assert.Equal(t, "3,90,80,10,1.5,1.25,3.5,100,50,7,2,4", lines[1])
}

func TestCreateStatsCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	w, err := CreateStatsCSVFile(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteStep(sampleStats()))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(string(data)), "\n")+1)
}

func TestCreateStatsCSVFile_BadPath(t *testing.T) {
	_, err := CreateStatsCSVFile(filepath.Join(t.TempDir(), "missing", "stats.csv"))
	assert.Error(t, err)
}

func TestJSONWriter(t *testing.T) {
	type summary struct {
		Steps int64 `json:"steps"`
	}

	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter[summary]().Write(summary{Steps: 10}, &buf))
	assert.Equal(t, "{\"steps\":10}\n", buf.String())

	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, NewPrettyJSONWriter[summary]().WriteToFile(summary{Steps: 2}, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"steps\": 2")
}
