package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"studyrag/types"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	Markdown Format = "md"
	CSV      Format = "csv"
	JSON     Format = "json"
	YAML     Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown export format")

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return Markdown, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case JSON:
		return "application/json"
	case YAML:
		return "application/yaml"
	}
	return "text/markdown; charset=utf-8"
}

func (f Format) Extension() string {
	if f == YAML {
		return "yaml"
	}
	return string(f)
}

// Export writes plan to w in the given format.
func Export(w io.Writer, plan types.StudyPlan, f Format) error {
	switch f {
	case Markdown:
		return writeMarkdown(w, plan)
	case CSV:
		return writeCSV(w, plan)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case YAML:
		doc, err := yamlDoc(plan)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

var csvHeader = []string{
	"date", "exam_id", "chapter", "chapter_title", "topic", "reading_pages",
	"practice_problems", "key_terms", "time_estimate_minutes", "confidence_score", "low_confidence",
}

func writeCSV(w io.Writer, plan types.StudyPlan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range plan.Days {
		for _, b := range d.Blocks {
			row := []string{
				d.Date.String(),
				b.ExamID,
				strconv.Itoa(b.Chapter),
				b.ChapterTitle,
				b.Topic,
				b.ReadingPages,
				b.PracticeProblems,
				strings.Join(b.KeyTerms, "; "),
				strconv.Itoa(b.TimeEstimateMinutes),
				strconv.FormatFloat(b.ConfidenceScore, 'f', 2, 64),
				strconv.FormatBool(b.LowConfidence),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, plan types.StudyPlan) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Study Plan\n\n")
	fmt.Fprintf(&b, "- Plan: `%s`\n", plan.PlanID)
	fmt.Fprintf(&b, "- Period: %s to %s\n", plan.StartDate, plan.EndDate)
	fmt.Fprintf(&b, "- Strategy: %s\n", plan.Strategy)
	fmt.Fprintf(&b, "- Total: %d days, %d topics, %s\n\n", plan.TotalDays, plan.TotalTopics(), hours(plan.TotalStudyMinutes))

	if len(plan.Exams) > 0 {
		b.WriteString("## Exams\n\n")
		b.WriteString("| Exam | Date | Priority |\n|---|---|---|\n")
		for _, e := range plan.Exams {
			name := e.ExamName
			if name == "" {
				name = e.ExamID
			}
			date := e.ExamDate
			if date == "" {
				date = "n/a"
			}
			fmt.Fprintf(&b, "| %s | %s | %d |\n", mdEscape(name), date, e.Priority)
		}
		b.WriteString("\n")
	}

	if len(plan.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, wn := range plan.Warnings {
			fmt.Fprintf(&b, "- %s\n", wn)
		}
		b.WriteString("\n")
	}

	for i, d := range plan.Days {
		fmt.Fprintf(&b, "## Day %d: %s (%d min)", i+1, d.Date, d.TotalMinutes)
		if d.BeyondEndDate {
			b.WriteString(" - past end date")
		}
		b.WriteString("\n\n")
		for _, blk := range d.Blocks {
			flag := ""
			if blk.LowConfidence {
				flag = " (low confidence)"
			}
			fmt.Fprintf(&b, "### %s, chapter %d: %s%s\n\n", blk.ExamID, blk.Chapter, blk.Topic, flag)
			fmt.Fprintf(&b, "- Time: %d min\n", blk.TimeEstimateMinutes)
			fmt.Fprintf(&b, "- Reading: %s\n", blk.ReadingPages)
			fmt.Fprintf(&b, "- Practice: %s\n", blk.PracticeProblems)
			if len(blk.KeyTerms) > 0 {
				fmt.Fprintf(&b, "- Key terms: %s\n", strings.Join(blk.KeyTerms, ", "))
			}
			fmt.Fprintf(&b, "- Confidence: %.2f\n\n", blk.ConfidenceScore)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func hours(minutes int) string {
	return fmt.Sprintf("%.1fh", float64(minutes)/60)
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// yamlDoc reuses the JSON field names, since yaml.v3 ignores json tags.
func yamlDoc(plan types.StudyPlan) (map[string]any, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
