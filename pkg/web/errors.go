package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/docflow/docflow/pkg/engine"
	"github.com/docflow/docflow/pkg/recordstore"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	body := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(body)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	body := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

// handleEngineError maps the engine and store error taxonomy onto
// problem+JSON responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrNoWorkflowDefined):
		return problem(c, fiber.StatusNotFound, "no_workflow_defined", err.Error())

	case recordstore.IsRecordNotFound(err):
		return notFound(c, "record not found")

	case errors.Is(err, engine.ErrUnknownAction):
		return problem(c, fiber.StatusBadRequest, "unknown_action", err.Error())

	case engine.IsUnauthorized(err):
		return problem(c, fiber.StatusForbidden, "unauthorized", err.Error())

	case engine.IsConditionNotMet(err):
		return problem(c, fiber.StatusUnprocessableEntity, "condition_not_met", err.Error())

	case engine.IsTerminalState(err), errors.Is(err, engine.ErrNotAmendable):
		return problem(c, fiber.StatusConflict, "terminal_state", err.Error())

	case recordstore.IsConcurrentModification(err):
		return problem(c, fiber.StatusConflict, "concurrent_modification", err.Error())

	case recordstore.IsValidation(err):
		return problem(c, fiber.StatusConflict, "store_validation", err.Error())

	default:
		return internalError(c, err)
	}
}
