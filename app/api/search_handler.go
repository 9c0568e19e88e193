package api

import (
	"studyrag/service"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
)

type SearchHandler struct {
	svc *service.Service
}

func NewSearchHandler(svc *service.Service) *SearchHandler {
	return &SearchHandler{
		svc: svc,
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	resp, err := h.svc.Search(c.UserContext(), params)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
