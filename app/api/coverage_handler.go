package api

import (
	"errors"
	"fmt"
	"strings"

	"studyrag/service"
	"studyrag/store"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
)

type CoverageHandler struct {
	svc *service.Service
}

func NewCoverageHandler(svc *service.Service) *CoverageHandler {
	return &CoverageHandler{
		svc: svc,
	}
}

func (h *CoverageHandler) HandlePutCoverage(c *fiber.Ctx) error {
	var cov types.ExamCoverage
	if c.BodyParser(&cov) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&cov); len(errors) > 0 {
		return NewValidationError(errors)
	}

	saved, err := h.svc.SaveCoverage(c.UserContext(), cov)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"exam_id":  saved.ExamID,
		"chapters": saved.Chapters,
		"topics":   len(saved.TopicList()),
	})
}

func (h *CoverageHandler) HandleEnrich(c *fiber.Ctx) error {
	var params types.EnrichParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := h.svc.Enrich(c.UserContext(), params.ExamID, params.Force)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(params.ExamID, "coverage for exam")
		}
		return err
	}

	resp := types.EnrichResponse{
		ExamID:                res.Coverage.ExamID,
		TotalTopics:           len(res.Coverage.Topics),
		HighConfidenceCount:   res.Coverage.HighConfidenceCount(),
		MediumConfidenceCount: res.Coverage.MediumConfidenceCount(),
		LowConfidenceCount:    res.Coverage.LowConfidenceCount(),
		Fallbacks:             len(res.Report.Fallbacks),
		Failures:              len(res.Report.Failures),
		Cached:                res.Cached,
	}
	if res.Cached {
		resp.Message = "using stored enrichment; pass force to regenerate"
	} else {
		resp.Message = fmt.Sprintf("enriched %d topics", resp.TotalTopics)
	}
	return c.JSON(resp)
}

func (h *CoverageHandler) HandleListExams(c *fiber.Ctx) error {
	exams, err := h.svc.Exams(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(exams)
}

func (h *CoverageHandler) HandleReadiness(c *fiber.Ctx) error {
	var ids []string
	for _, id := range strings.Split(c.Query("exam_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	resp, err := h.svc.Readiness(c.UserContext(), ids)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
