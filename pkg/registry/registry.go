// Package registry loads workflow definitions from disk and serves
// them to the engine, keyed by record type.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/docflow/docflow/pkg/models"
)

// ErrNotRegistered is returned when no workflow definition exists for
// a record type.
var ErrNotRegistered = errors.New("no workflow definition registered for record type")

// DefinitionFile is the on-disk shape of a workflow definition.
type DefinitionFile struct {
	RecordType  string                  `json:"record_type"`
	States      []*models.WorkflowState `json:"states"`
	Transitions []*models.Transition    `json:"transitions"`
}

type Registry struct {
	logger *slog.Logger
	path   string

	mu          sync.RWMutex
	definitions map[string]*models.WorkflowDefinition
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger.With("module", "registry"),
		definitions: make(map[string]*models.WorkflowDefinition),
	}
}

// Register stores a definition, replacing any previous one for the
// same record type.
func (r *Registry) Register(definition *models.WorkflowDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.definitions[definition.RecordType] = definition
}

// DefinitionFor returns the definition governing a record type.
func (r *Registry) DefinitionFor(recordType string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definition, ok := r.definitions[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, recordType)
	}

	return definition, nil
}

// RecordTypes lists all registered record types in stable order.
func (r *Registry) RecordTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.definitions))
	for recordType := range r.definitions {
		types = append(types, recordType)
	}

	sort.Strings(types)

	return types
}

// LoadDir parses and validates every *.json definition under path and
// registers the results. Loading is all or nothing: a single invalid
// file fails the whole load and leaves the registry unchanged.
func (r *Registry) LoadDir(path string) error {
	definitions, err := loadDefinitions(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.path = path
	r.definitions = definitions

	for recordType, definition := range definitions {
		if len(definition.Unreachable) > 0 {
			r.logger.Warn("Definition contains unreachable states",
				"record_type", recordType,
				"states", definition.Unreachable)
		}
	}

	r.logger.Info("Loaded workflow definitions", "path", path, "count", len(definitions))

	return nil
}

// Refresh reloads definitions from the directory given to the last
// LoadDir call. On failure the previous definitions stay in effect.
func (r *Registry) Refresh() error {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()

	if path == "" {
		return nil
	}

	err := r.LoadDir(path)
	if err != nil {
		r.logger.Error("Definition refresh failed, keeping previous definitions", "error", err)

		return err
	}

	return nil
}

func (r *Registry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.definitions) == 0 {
		return errors.New("registry holds no workflow definitions")
	}

	return nil
}

func loadDefinitions(path string) (map[string]*models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", path, err)
	}

	definitions := make(map[string]*models.WorkflowDefinition)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		filePath := filepath.Join(path, entry.Name())

		definition, err := loadDefinitionFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load definition %s: %w", entry.Name(), err)
		}

		if _, exists := definitions[definition.RecordType]; exists {
			return nil, fmt.Errorf("record type %q defined by more than one file", definition.RecordType)
		}

		definitions[definition.RecordType] = definition
	}

	return definitions, nil
}

func loadDefinitionFile(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = validateDefinitionJSON(data)
	if err != nil {
		return nil, err
	}

	var file DefinitionFile

	err = json.Unmarshal(data, &file)
	if err != nil {
		return nil, err
	}

	return models.LoadDefinition(file.RecordType, file.States, file.Transitions)
}

func validateDefinitionJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(definitionSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
