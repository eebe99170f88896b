package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/row"
)

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Post("/databases", s.createDatabase)

	tables := s.app.Group("/tables/:name")
	tables.Post("/rows", s.insertRow)
	tables.Get("/rows", s.listRows)
	tables.Get("/rows/:id", s.getRow)
}

// createDatabase opens a fresh table file under a generated handle.
func (s *Server) createDatabase(c *fiber.Ctx) error {
	name := fmt.Sprintf("db_%s", strings.Split(uuid.New().String(), "-")[0])
	if _, err := s.handle(name); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"table": name})
}

func (s *Server) insertRow(c *fiber.Ctx) error {
	h, err := s.handle(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var r row.Row
	if err := c.BodyParser(&r); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json body"})
	}

	h.mu.Lock()
	err = h.tbl.Insert(r)
	h.mu.Unlock()

	switch {
	case errors.Is(err, btree.ErrDuplicateKey):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("id %d already exists", r.ID)})
	case isValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *Server) getRow(c *fiber.Ctx) error {
	h, err := s.handle(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a number"})
	}

	h.mu.Lock()
	r, ok, err := h.tbl.Get(uint32(id))
	h.mu.Unlock()

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": fmt.Sprintf("id %d not found", id)})
	}
	return c.JSON(r)
}

// listRows scans the whole table, or [from, to] when the query narrows it.
func (s *Server) listRows(c *fiber.Ctx) error {
	h, err := s.handle(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	start, err := queryID(c, "from", 0)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	end, err := queryID(c, "to", ^uint32(0))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rows := make([]row.Row, 0)
	h.mu.Lock()
	err = h.tbl.Range(start, end, func(r row.Row) error {
		rows = append(rows, r)
		return nil
	})
	h.mu.Unlock()

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(rows), "rows": rows})
}

func queryID(c *fiber.Ctx, name string, def uint32) (uint32, error) {
	q := c.Query(name)
	if q == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(q, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", name, q)
	}
	return uint32(v), nil
}

func isValidationError(err error) bool {
	for _, v := range []error{row.ErrInvalidID, row.ErrEmptyUsername, row.ErrUsernameTooLong, row.ErrEmailTooLong} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
