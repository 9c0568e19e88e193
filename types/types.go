package types

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SectionType string

const (
	SectionExplanation SectionType = "explanation"
	SectionProblems    SectionType = "problems"
	SectionSummary     SectionType = "summary"
	SectionOther       SectionType = "other"
)

// ParseSectionType maps a stored section label to a SectionType; unknown labels become other.
func ParseSectionType(s string) SectionType {
	switch SectionType(strings.ToLower(strings.TrimSpace(s))) {
	case SectionExplanation:
		return SectionExplanation
	case SectionProblems:
		return SectionProblems
	case SectionSummary:
		return SectionSummary
	default:
		return SectionOther
	}
}

// Chunk is an indexed span of textbook text. It is never mutated once built;
// changed source text produces new chunks on the next index rebuild.
type Chunk struct {
	ID            string      `json:"chunk_id"`
	FileID        string      `json:"file_id"`
	Text          string      `json:"text"`
	TokenCount    int         `json:"token_count,omitempty"`
	PageStart     int         `json:"page_start"`
	PageEnd       int         `json:"page_end"`
	SectionType   SectionType `json:"section_type"`
	ChapterNumber *int        `json:"chapter_number"`
	ChapterTitle  *string     `json:"chapter_title"`
	Embedding     []float32   `json:"-"`
}

// Chapter returns the chapter number or 0 when the chunk has none.
func (c Chunk) Chapter() int {
	if c.ChapterNumber == nil {
		return 0
	}
	return *c.ChapterNumber
}

type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// ChapterTopics is one chapter entry of an exam coverage record.
type ChapterTopics struct {
	Chapter      int      `json:"chapter"`
	ChapterTitle string   `json:"chapter_title"`
	Bullets      []string `json:"bullets"`
}

type ExamCoverage struct {
	ExamID       string          `json:"exam_id" validate:"required_without=SourceFileID"`
	ExamName     string          `json:"exam_name" validate:"required"`
	ExamDate     string          `json:"exam_date"`
	Chapters     []int           `json:"chapters"`
	Topics       []ChapterTopics `json:"topics" validate:"dive"`
	SourceFileID string          `json:"source_file_id,omitempty"`
}

// Normalize canonicalizes the exam id and chapter list in place.
func (c *ExamCoverage) Normalize() {
	if c.ExamID == "" && c.SourceFileID != "" {
		c.ExamID = ExamIDFromSource(c.SourceFileID)
	}
	c.ExamID = NormalizeExamID(c.ExamID)

	seen := make(map[int]struct{}, len(c.Chapters))
	chapters := make([]int, 0, len(c.Chapters))
	for _, ch := range c.Chapters {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		chapters = append(chapters, ch)
	}
	sort.Ints(chapters)
	c.Chapters = chapters
}

// TopicList flattens the coverage into topics, preserving chapter and bullet order.
func (c ExamCoverage) TopicList() []Topic {
	var topics []Topic
	for _, ch := range c.Topics {
		for _, b := range ch.Bullets {
			b = strings.TrimSpace(b)
			if b == "" {
				continue
			}
			topics = append(topics, Topic{
				ExamID:       c.ExamID,
				Chapter:      ch.Chapter,
				ChapterTitle: ch.ChapterTitle,
				Bullet:       b,
			})
		}
	}
	return topics
}

func NormalizeExamID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ReplaceAll(id, "-", "_")
}

var examNamespace = uuid.MustParse("6f1c9a2e-4b7d-4d0e-9a51-3c2f8e7b1d40")

// ExamIDFromSource derives a stable exam id from the id of the exam overview document.
func ExamIDFromSource(sourceFileID string) string {
	id := uuid.NewSHA1(examNamespace, []byte(strings.TrimSpace(sourceFileID)))
	return NormalizeExamID("exam_" + id.String()[:8])
}

// Topic is a single bullet of exam scope.
type Topic struct {
	ExamID       string `json:"-"`
	Chapter      int    `json:"chapter"`
	ChapterTitle string `json:"chapter_title"`
	Bullet       string `json:"bullet"`
}

// PageRange is a closed page interval [start, end].
type PageRange [2]int

type ReadingPages struct {
	FileID     string      `json:"file_id"`
	PageRanges []PageRange `json:"page_ranges"`
}

type ProblemRef struct {
	FileID  string `json:"file_id"`
	Page    int    `json:"page"`
	Label   string `json:"label,omitempty"`
	Snippet string `json:"snippet"`
}

type EnrichedTopic struct {
	Topic
	ReadingPages     ReadingPages `json:"reading_pages"`
	PracticeProblems []ProblemRef `json:"practice_problems"`
	KeyTerms         []string     `json:"key_terms"`
	ConfidenceScore  float64      `json:"confidence_score"`
}

const (
	HighConfidence    = 0.75
	WarningConfidence = 0.6
)

type EnrichedCoverage struct {
	ExamID      string          `json:"exam_id"`
	ExamName    string          `json:"exam_name"`
	ExamDate    string          `json:"exam_date"`
	Topics      []EnrichedTopic `json:"topics"`
	GeneratedAt time.Time       `json:"generated_at"`

	// IndexVersion identifies the index build the evidence was retrieved from.
	IndexVersion string              `json:"index_version,omitempty"`
	Fallbacks    []string            `json:"fallbacks,omitempty"`
	Failures     []EnrichmentFailure `json:"failures,omitempty"`
}

// EnrichmentFailure records a topic whose retrieval failed and was degraded
// to zero confidence.
type EnrichmentFailure struct {
	Bullet string `json:"bullet"`
	Error  string `json:"error"`
}

// Matches reports whether the enrichment was built from exactly the topics
// and exam metadata of cov.
func (c EnrichedCoverage) Matches(cov ExamCoverage) bool {
	if c.ExamName != cov.ExamName || c.ExamDate != cov.ExamDate {
		return false
	}
	topics := cov.TopicList()
	if len(topics) != len(c.Topics) {
		return false
	}
	for i, t := range topics {
		e := c.Topics[i]
		if e.Chapter != t.Chapter || e.ChapterTitle != t.ChapterTitle || e.Bullet != t.Bullet {
			return false
		}
	}
	return true
}

func (c EnrichedCoverage) HighConfidenceCount() int {
	return c.countWhere(func(s float64) bool { return s >= HighConfidence })
}

func (c EnrichedCoverage) MediumConfidenceCount() int {
	return c.countWhere(func(s float64) bool { return s >= WarningConfidence && s < HighConfidence })
}

func (c EnrichedCoverage) LowConfidenceCount() int {
	return c.countWhere(func(s float64) bool { return s < WarningConfidence })
}

func (c EnrichedCoverage) countWhere(pred func(float64) bool) int {
	n := 0
	for _, t := range c.Topics {
		if pred(t.ConfidenceScore) {
			n++
		}
	}
	return n
}

// ScheduledTask is a topic waiting in the work queue. Seq is its position
// within the exam, used to keep chapter/topic order.
type ScheduledTask struct {
	EnrichedTopic
	ExamID           string
	Seq              int
	EstimatedMinutes int
	Priority         int
}

type PlanExam struct {
	ExamID   string `json:"exam_id"`
	ExamName string `json:"exam_name"`
	ExamDate string `json:"exam_date"`
	Priority int    `json:"priority"`
}

type Block struct {
	ExamID              string   `json:"exam_id"`
	Chapter             int      `json:"chapter"`
	ChapterTitle        string   `json:"chapter_title,omitempty"`
	Topic               string   `json:"topic"`
	ReadingPages        string   `json:"reading_pages"`
	PracticeProblems    string   `json:"practice_problems"`
	KeyTerms            []string `json:"key_terms"`
	TimeEstimateMinutes int      `json:"time_estimate_minutes"`
	ConfidenceScore     float64  `json:"confidence_score"`
	LowConfidence       bool     `json:"low_confidence,omitempty"`
}

type Day struct {
	Date          Date    `json:"date"`
	TotalMinutes  int     `json:"total_minutes"`
	Blocks        []Block `json:"blocks"`
	BeyondEndDate bool    `json:"beyond_end_date,omitempty"`
}

type StudyPlan struct {
	PlanID            string     `json:"plan_id"`
	CreatedAt         time.Time  `json:"created_at"`
	Exams             []PlanExam `json:"exams"`
	TotalDays         int        `json:"total_days"`
	TotalStudyMinutes int        `json:"total_study_minutes"`
	Strategy          string     `json:"strategy"`
	StartDate         Date       `json:"start_date"`
	EndDate           Date       `json:"end_date"`
	Days              []Day      `json:"days"`
	Warnings          []string   `json:"warnings,omitempty"`
}

// TotalTopics counts the blocks in the plan.
func (p StudyPlan) TotalTopics() int {
	n := 0
	for _, d := range p.Days {
		n += len(d.Blocks)
	}
	return n
}
