package api

import (
	"studyrag/store"

	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	chunks store.ChunkStore
}

func NewCheckHandler(chunks store.ChunkStore) *CheckHandler {
	return &CheckHandler{
		chunks: chunks,
	}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	n, err := h.chunks.CountChunks(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "chunks": n})
}
