package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"studyrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func samplePlan() types.StudyPlan {
	return types.StudyPlan{
		PlanID:            "plan-1",
		CreatedAt:         time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Exams:             []types.PlanExam{{ExamID: "stats", ExamName: "Statistics | Midterm", ExamDate: "2026-02-20", Priority: 1}},
		TotalDays:         2,
		TotalStudyMinutes: 130,
		Strategy:          "round_robin",
		StartDate:         types.NewDate(2026, time.February, 8),
		EndDate:           types.NewDate(2026, time.February, 9),
		Days: []types.Day{
			{
				Date:         types.NewDate(2026, time.February, 8),
				TotalMinutes: 75,
				Blocks: []types.Block{{
					ExamID: "stats", Chapter: 1, Topic: "Bayes theorem",
					ReadingPages: "book pp. 10-13", PracticeProblems: "Problem 1.2 (p. 14)",
					KeyTerms: []string{"Bayes Theorem", "Prior Distribution"}, TimeEstimateMinutes: 75,
					ConfidenceScore: 0.82,
				}},
			},
			{
				Date:          types.NewDate(2026, time.February, 10),
				TotalMinutes:  55,
				BeyondEndDate: true,
				Blocks: []types.Block{{
					ExamID: "stats", Chapter: 2, Topic: "Sampling, bias",
					ReadingPages: "none found", PracticeProblems: "none found",
					KeyTerms: []string{}, TimeEstimateMinutes: 55, ConfidenceScore: 0.31, LowConfidence: true,
				}},
			},
		},
		Warnings: []string{"low confidence (0.31) for stats chapter 2: Sampling, bias"},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"md": Markdown, "Markdown": Markdown, "": Markdown, "csv": CSV, "json": JSON, "yml": YAML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, samplePlan(), Markdown))
	out := buf.String()

	assert.Contains(t, out, "# Study Plan")
	assert.Contains(t, out, `Statistics \| Midterm`)
	assert.Contains(t, out, "## Warnings")
	assert.Contains(t, out, "## Day 1: 2026-02-08 (75 min)")
	assert.Contains(t, out, "## Day 2: 2026-02-10 (55 min) - past end date")
	assert.Contains(t, out, "Sampling, bias (low confidence)")
	assert.Contains(t, out, "- Key terms: Bayes Theorem, Prior Distribution")
	assert.Contains(t, out, "2 days, 2 topics, 2.2h")
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, samplePlan(), CSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2026-02-08", rows[1][0])
	assert.Equal(t, "Bayes Theorem; Prior Distribution", rows[1][7])
	assert.Equal(t, "Sampling, bias", rows[2][4])
	assert.Equal(t, "0.31", rows[2][9])
	assert.Equal(t, "true", rows[2][10])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, samplePlan(), JSON))

	var got types.StudyPlan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, samplePlan(), got)
	assert.Contains(t, buf.String(), `"date": "2026-02-08"`)
}

func TestExportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, samplePlan(), YAML))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "plan-1", doc["plan_id"])
	assert.Equal(t, "round_robin", doc["strategy"])
	days, ok := doc["days"].([]any)
	require.True(t, ok)
	assert.Len(t, days, 2)
}
