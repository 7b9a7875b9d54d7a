// Package validate checks JSON documents against a JSON Schema
// (draft 2020-12). The schema is loaded lazily from a URL or a local file
// and compiled once per Validator. Beyond pass/fail, a validation reports
// per-field errors with suggestions, advisory warnings for common problems
// that the schema does not catch, and shape statistics.
//
// This is the thorough counterpart to the quick required-field check the
// fetcher applies inline: run it when a document's structure matters, not on
// every cache hit.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// ErrNoSchemaSource is returned by NewValidator when neither a schema URL
// nor a schema file path was configured.
var ErrNoSchemaSource = errors.New("no schema source configured")

const (
	defaultTimeout = 30 * time.Second

	// staleAfter is the document age past which lastUpdated draws a warning.
	staleAfter = 30 * 24 * time.Hour
)

// completenessFields are the fields a fully fleshed-out document carries;
// the completeness statistic is the percentage present.
var completenessFields = []string{
	"@context", "type", "id", "name", "description", "lastUpdated",
	"location", "features", "actions", "services", "persona",
}

// FieldError describes a single schema violation.
type FieldError struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Stats summarizes a document's shape.
type Stats struct {
	Type         string `json:"type"`
	FeatureCount int    `json:"feature_count"`
	ActionCount  int    `json:"action_count"`
	ServiceCount int    `json:"service_count"`
	HasLocation  bool   `json:"has_location"`
	HasPersona   bool   `json:"has_persona"`
	SizeBytes    int    `json:"size_bytes"`
	Completeness int    `json:"completeness"`
}

// Result is the outcome of validating one document. A malformed document
// yields a Result with Valid false, not an error; errors are reserved for
// trouble loading the schema or the document itself.
type Result struct {
	Valid    bool         `json:"valid"`
	Errors   []FieldError `json:"errors"`
	Warnings []string     `json:"warnings"`
	Stats    Stats        `json:"stats"`
}

// Option configures a Validator.
type Option func(*Validator) error

// WithSchemaURL fetches the schema from url on first use.
func WithSchemaURL(url string) Option {
	return func(v *Validator) error {
		v.schemaURL = url
		return nil
	}
}

// WithSchemaPath loads the schema from a local file on first use. It takes
// precedence over WithSchemaURL.
func WithSchemaPath(path string) Option {
	return func(v *Validator) error {
		v.schemaPath = path
		return nil
	}
}

// WithHTTPClient replaces the client used to fetch the schema and documents.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) error {
		v.client = client
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) error {
		v.logger = logger
		return nil
	}
}

// Validator validates documents against one compiled schema. It is safe for
// concurrent use.
type Validator struct {
	schemaURL  string
	schemaPath string
	client     *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	schema *jsonschema.Schema
}

// NewValidator builds a Validator. A schema source (URL or file path) is
// required; the schema itself is not loaded until the first validation.
func NewValidator(opts ...Option) (*Validator, error) {
	v := &Validator{
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if v.schemaURL == "" && v.schemaPath == "" {
		return nil, ErrNoSchemaSource
	}
	if v.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		v.logger = logger
	}
	return v, nil
}

// Validate checks doc against the schema and returns the full result.
func (v *Validator) Validate(ctx context.Context, doc map[string]any) (*Result, error) {
	schema, err := v.loadSchema(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Valid:    true,
		Warnings: collectWarnings(doc),
		Stats:    computeStats(doc),
	}
	if err := schema.Validate(doc); err != nil {
		result.Valid = false
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			result.Errors = flattenErrors(ve)
		} else {
			result.Errors = []FieldError{{Field: "root", Message: err.Error()}}
		}
	}
	return result, nil
}

// ValidateFile validates a document stored in a local JSON file. A file that
// is not JSON at all yields an invalid Result, not an error.
func (v *Validator) ValidateFile(ctx context.Context, path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &Result{
			Errors: []FieldError{{Field: "root", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}, nil
	}
	return v.Validate(ctx, doc)
}

// ValidateURL fetches a document over HTTP and validates it.
func (v *Validator) ValidateURL(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching document from %s", resp.StatusCode, url)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return &Result{
			Errors: []FieldError{{Field: "root", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}, nil
	}
	return v.Validate(ctx, doc)
}

// loadSchema fetches and compiles the schema once; later calls reuse it.
func (v *Validator) loadSchema(ctx context.Context) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.schema != nil {
		return v.schema, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	const resource = "schema.json"
	if v.schemaPath != "" {
		f, err := os.Open(v.schemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema from %s: %w", v.schemaPath, err)
		}
		addErr := compiler.AddResource(resource, f)
		_ = f.Close()
		if addErr != nil {
			return nil, fmt.Errorf("failed to load schema from %s: %w", v.schemaPath, addErr)
		}
		v.logger.Info("loaded schema from file", zap.String("path", v.schemaPath))
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.schemaURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := v.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch schema from %s: %w", v.schemaURL, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching schema from %s", resp.StatusCode, v.schemaURL)
		}
		if err := compiler.AddResource(resource, resp.Body); err != nil {
			return nil, fmt.Errorf("failed to load schema from %s: %w", v.schemaURL, err)
		}
		v.logger.Info("fetched schema", zap.String("url", v.schemaURL))
	}

	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	v.schema = schema
	return schema, nil
}

// flattenErrors walks the cause tree and keeps the leaves, which carry the
// specific violations.
func flattenErrors(ve *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, FieldError{
				Field:      fieldPath(e.InstanceLocation),
				Message:    e.Message,
				Suggestion: suggestionFor(e.Message),
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}

// fieldPath converts a JSON pointer instance location into dotted form.
func fieldPath(instanceLocation string) string {
	if instanceLocation == "" || instanceLocation == "/" {
		return "root"
	}
	return strings.ReplaceAll(strings.TrimPrefix(instanceLocation, "/"), "/", ".")
}

func suggestionFor(message string) string {
	switch {
	case strings.Contains(message, "missing propert"):
		return "this field is required; include it in the document"
	case strings.Contains(message, "format"):
		return "check the field's format; it may need to be a valid URL, email, or date"
	case strings.Contains(message, "expected"):
		return "check the data type; the schema may expect a string, number, object, or array"
	case strings.Contains(message, "must be one of"):
		return "the value must be one of those the schema allows"
	default:
		return ""
	}
}

// collectWarnings flags common problems that pass schema validation.
func collectWarnings(doc map[string]any) []string {
	var warnings []string

	if raw, ok := doc["lastUpdated"]; ok {
		if s, isStr := raw.(string); isStr {
			if updated, err := time.Parse(time.RFC3339, s); err == nil {
				if age := time.Since(updated); age > staleAfter {
					warnings = append(warnings,
						fmt.Sprintf("lastUpdated is %d days old; consider updating", int(age.Hours()/24)))
				}
			} else {
				warnings = append(warnings, "lastUpdated field has an invalid date format")
			}
		} else {
			warnings = append(warnings, "lastUpdated field has an invalid date format")
		}
	}

	if doc["type"] == "Venue" {
		if _, ok := doc["location"]; !ok {
			warnings = append(warnings, "venues should usually include location information")
		}
	}

	description, _ := doc["description"].(string)
	if len(description) < 50 {
		warnings = append(warnings, "consider providing a more detailed description")
	}

	return warnings
}

func computeStats(doc map[string]any) Stats {
	docType, _ := doc["type"].(string)
	if docType == "" {
		docType = "Unknown"
	}

	stats := Stats{
		Type:         docType,
		FeatureCount: listLen(doc["features"]),
		ActionCount:  listLen(doc["actions"]),
		ServiceCount: listLen(doc["services"]),
	}
	_, stats.HasLocation = doc["location"]
	_, stats.HasPersona = doc["persona"]
	if raw, err := json.Marshal(doc); err == nil {
		stats.SizeBytes = len(raw)
	}

	present := 0
	for _, field := range completenessFields {
		if _, ok := doc[field]; ok {
			present++
		}
	}
	stats.Completeness = int(math.Round(float64(present) / float64(len(completenessFields)) * 100))

	return stats
}

func listLen(v any) int {
	list, _ := v.([]any)
	return len(list)
}
