package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/docflow/docflow/pkg/engine"
	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/registry"
)

// Identity headers. Authentication happens upstream; these carry the
// already-authenticated principal.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"
)

type APIHandlers struct {
	engine    *engine.Engine
	registry  *registry.Registry
	store     recordstore.Store
	validator *validator.Validate
}

func NewAPIHandlers(
	eng *engine.Engine,
	reg *registry.Registry,
	store recordstore.Store,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:    eng,
		registry:  reg,
		store:     store,
		validator: validate,
	}
}

// identity parses the acting principal from request headers.
func identity(c fiber.Ctx) (models.Identity, bool) {
	id := c.Get(HeaderUserID)
	if id == "" {
		return models.Identity{}, false
	}

	var roles []string

	for _, role := range strings.Split(c.Get(HeaderUserRoles), ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}

	return models.Identity{ID: id, Roles: roles}, true
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"record_types": h.registry.RecordTypes()})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	recordType := c.Params("recordType")

	definition, err := h.registry.DefinitionFor(recordType)
	if err != nil {
		return notFound(c, "no workflow defined for record type "+recordType)
	}

	return c.JSON(DefinitionResponse{
		RecordType:  definition.RecordType,
		States:      definition.States,
		Transitions: definition.Transitions,
		Unreachable: definition.Unreachable,
	})
}

func (h *APIHandlers) ListRecords(c fiber.Ctx) error {
	records, err := h.store.List(c.Context(), c.Params("recordType"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"records": records})
}

func (h *APIHandlers) GetRecord(c fiber.Ctx) error {
	record, err := h.store.Get(c.Context(), c.Params("recordType"), c.Params("id"))
	if err != nil {
		if recordstore.IsRecordNotFound(err) {
			return notFound(c, "record not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) CreateRecord(c fiber.Ctx) error {
	actor, ok := identity(c)
	if !ok {
		return badRequest(c, "missing "+HeaderUserID+" header")
	}

	var req CreateRecordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.engine.NewRecord(c.Context(), c.Params("recordType"), actor, req.Fields)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetAvailableActions(c fiber.Ctx) error {
	actor, ok := identity(c)
	if !ok {
		return badRequest(c, "missing "+HeaderUserID+" header")
	}

	transitions, err := h.engine.AvailableTransitions(c.Context(), c.Params("recordType"), c.Params("id"), actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	actions := make([]TransitionResponse, 0, len(transitions))
	for _, transition := range transitions {
		actions = append(actions, TransitionResponse{Action: transition.Action, ToState: transition.ToState})
	}

	return c.JSON(fiber.Map{"actions": actions})
}

func (h *APIHandlers) ApplyAction(c fiber.Ctx) error {
	actor, ok := identity(c)
	if !ok {
		return badRequest(c, "missing "+HeaderUserID+" header")
	}

	updated, err := h.engine.Apply(c.Context(), c.Params("recordType"), c.Params("id"), c.Params("action"), actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) AmendRecord(c fiber.Ctx) error {
	actor, ok := identity(c)
	if !ok {
		return badRequest(c, "missing "+HeaderUserID+" header")
	}

	amended, err := h.engine.Amend(c.Context(), c.Params("recordType"), c.Params("id"), actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(amended)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryErr := h.registry.HealthCheck()
	storeErr := h.store.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if registryErr != nil || storeErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	checkers := fiber.Map{"registry": "ok", "store": "ok"}
	if registryErr != nil {
		checkers["registry"] = registryErr.Error()
	}

	if storeErr != nil {
		checkers["store"] = storeErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
