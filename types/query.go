package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// validateStruct runs the struct tags and flattens the failures into field -> reason.
func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type EnrichParams struct {
	ExamID string `json:"exam_id" validate:"required"`
	Force  bool   `json:"force"`
}

func (params *EnrichParams) Validate() map[string]string {
	return validateStruct(params)
}

type PlanParams struct {
	ExamIDs       []string `json:"exam_ids" validate:"required,min=1,dive,required"`
	StartDate     string   `json:"start_date" validate:"required"`
	EndDate       string   `json:"end_date" validate:"required"`
	MinutesPerDay int      `json:"minutes_per_day" validate:"omitempty,gt=0"`
	Strategy      string   `json:"strategy" validate:"omitempty,oneof=round_robin priority_first balanced"`
}

func (params *PlanParams) Validate() map[string]string {
	errors := validateStruct(params)
	for field, value := range map[string]string{"StartDate": params.StartDate, "EndDate": params.EndDate} {
		if value == "" {
			continue
		}
		if _, err := ParseDate(value); err != nil {
			if errors == nil {
				errors = make(map[string]string)
			}
			errors[field] = "invalid date"
		}
	}
	return errors
}

type SearchParams struct {
	Query    string   `json:"query" validate:"required"`
	TopK     int      `json:"top_k" validate:"omitempty,min=1,max=50"`
	Chapter  *int     `json:"chapter" validate:"omitempty,min=1"`
	FileID   string   `json:"file_id"`
	ExamID   string   `json:"exam_id"`
	MinScore *float64 `json:"min_score" validate:"omitempty,min=-1,max=1"`
}

func (params *SearchParams) Validate() map[string]string {
	return validateStruct(params)
}

// Validate checks a coverage record received from the extraction collaborator.
func (c *ExamCoverage) Validate() map[string]string {
	return validateStruct(c)
}

type EnrichResponse struct {
	ExamID                string `json:"exam_id"`
	TotalTopics           int    `json:"total_topics"`
	HighConfidenceCount   int    `json:"high_confidence_count"`
	MediumConfidenceCount int    `json:"medium_confidence_count"`
	LowConfidenceCount    int    `json:"low_confidence_count"`
	Fallbacks             int    `json:"fallbacks"`
	Failures              int    `json:"failures"`
	Cached                bool   `json:"cached"`
	Message               string `json:"message"`
}

type ExamSummary struct {
	ExamID         string `json:"exam_id"`
	ExamName       string `json:"exam_name"`
	ExamDate       string `json:"exam_date,omitempty"`
	TotalTopics    int    `json:"total_topics"`
	HighConfidence int    `json:"high_confidence"`
	LowConfidence  int    `json:"low_confidence"`
}

func SummarizeExam(c EnrichedCoverage) ExamSummary {
	return ExamSummary{
		ExamID:         c.ExamID,
		ExamName:       c.ExamName,
		ExamDate:       c.ExamDate,
		TotalTopics:    len(c.Topics),
		HighConfidence: c.HighConfidenceCount(),
		LowConfidence:  c.LowConfidenceCount(),
	}
}

type MissingItem struct {
	Type    string `json:"type"`
	ExamID  string `json:"exam_id,omitempty"`
	Message string `json:"message"`
}

type ReadinessResponse struct {
	Ready          bool          `json:"ready"`
	Missing        []MissingItem `json:"missing"`
	AvailableExams []ExamSummary `json:"available_exams"`
	Message        string        `json:"message"`
}

type SearchResult struct {
	ChunkID   string  `json:"chunk_id"`
	FileID    string  `json:"file_id"`
	Text      string  `json:"text"`
	PageStart int     `json:"page_start"`
	PageEnd   int     `json:"page_end"`
	Chapter   *int    `json:"chapter"`
	Section   string  `json:"section_type"`
	Score     float64 `json:"score"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}
