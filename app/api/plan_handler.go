package api

import (
	"bytes"
	"errors"
	"fmt"

	"studyrag/export"
	"studyrag/service"
	"studyrag/store"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
)

type PlanHandler struct {
	svc      *service.Service
	defaults service.PlanDefaults
}

func NewPlanHandler(svc *service.Service, defaults service.PlanDefaults) *PlanHandler {
	return &PlanHandler{
		svc:      svc,
		defaults: defaults,
	}
}

func (h *PlanHandler) HandleAnalyze(c *fiber.Ctx) error {
	var params types.PlanParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	req, err := h.defaults.PlanRequest(params)
	if err != nil {
		return err
	}
	analysis, err := h.svc.Analyze(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(analysis)
}

func (h *PlanHandler) HandleCreatePlan(c *fiber.Ctx) error {
	var params types.PlanParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	req, err := h.defaults.PlanRequest(params)
	if err != nil {
		return err
	}
	plan, err := h.svc.CreatePlan(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *PlanHandler) HandleGetPlan(c *fiber.Ctx) error {
	id := c.Params("id")
	plan, err := h.svc.Plan(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "plan")
		}
		return err
	}
	return c.JSON(plan)
}

func (h *PlanHandler) HandleExportPlan(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return err
	}

	id := c.Params("id")
	plan, err := h.svc.Plan(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "plan")
		}
		return err
	}

	var buf bytes.Buffer
	if err := export.Export(&buf, plan, format); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="study_plan_%s.%s"`, plan.PlanID, format.Extension()))
	return c.Send(buf.Bytes())
}
