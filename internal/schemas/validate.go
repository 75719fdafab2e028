// Package schemas validates IIIF Presentation 3.0 manifests against their JSON Schema.
package schemas

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	schemafiles "github.com/jonathan/iiif-validator/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// maxContextLen bounds the excerpt of the offending value kept in an ErrorDetail.
const maxContextLen = 200

// ValidationError reports manifest text that could not be validated at all,
// such as text that is not JSON.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// SchemaLoadError represents errors loading or compiling the schema itself.
type SchemaLoadError struct {
	Version string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema for version %s: %s: %v", e.Version, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema for version %s: %s", e.Version, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// ErrorDetail describes one schema violation.
// Err keeps the library error for callers and is never serialised.
type ErrorDetail struct {
	Title       string                  `json:"title"`
	Detail      string                  `json:"detail"`
	Description string                  `json:"description"`
	Path        string                  `json:"path"`
	Context     string                  `json:"context"`
	Err         gojsonschema.ResultError `json:"-"`
}

// Report is the outcome of validating one manifest.
type Report struct {
	Received  string        `json:"received"`
	Okay      int           `json:"okay"`
	Error     string        `json:"error"`
	URL       *string       `json:"url"`
	ErrorList []ErrorDetail `json:"errorList"`
}

// Validator validates manifests against per-version schemas, compiling each schema once.
type Validator struct {
	mu       sync.Mutex
	sources  map[string][]byte
	compiled map[string]*gojsonschema.Schema
}

// NewValidator returns a validator backed by the embedded schemas.
func NewValidator() *Validator {
	return NewValidatorWithSchemas(map[string][]byte{
		"3.0": schemafiles.ByVersion("3.0"),
	})
}

// NewValidatorWithSchemas returns a validator using the given schema documents keyed by version.
func NewValidatorWithSchemas(sources map[string][]byte) *Validator {
	return &Validator{
		sources:  sources,
		compiled: make(map[string]*gojsonschema.Schema),
	}
}

func (v *Validator) schemaFor(version string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.compiled[version]; ok {
		return s, nil
	}

	source, ok := v.sources[version]
	if !ok || len(source) == 0 {
		return nil, &SchemaLoadError{Version: version, Message: "no schema for version"}
	}

	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(source))
	if err != nil {
		return nil, &SchemaLoadError{
			Version: version,
			Message: "schema failed to compile",
			Cause:   err,
		}
	}
	v.compiled[version] = s
	return s, nil
}

// Validate checks manifest text against the schema for version.
// A document that parses but violates the schema yields a Report with Okay 0;
// text that is not JSON yields a *ValidationError; schema problems yield a *SchemaLoadError.
func (v *Validator) Validate(data, version string, url *string) (*Report, error) {
	schema, err := v.schemaFor(version)
	if err != nil {
		return nil, err
	}

	if !json.Valid([]byte(data)) {
		var probe any
		return nil, &ValidationError{
			Message: "manifest is not valid JSON",
			Cause:   json.Unmarshal([]byte(data), &probe),
		}
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(data))
	if err != nil {
		return nil, &ValidationError{Message: "manifest could not be validated", Cause: err}
	}

	report := &Report{
		Received:  data,
		Okay:      1,
		Error:     "None",
		URL:       url,
		ErrorList: []ErrorDetail{},
	}
	if result.Valid() {
		return report, nil
	}

	report.Okay = 0
	report.ErrorList = buildErrorList(result.Errors())
	report.Error = fmt.Sprintf("manifest failed schema validation with %d error(s)", len(report.ErrorList))
	return report, nil
}

func buildErrorList(errs []gojsonschema.ResultError) []ErrorDetail {
	details := make([]ErrorDetail, 0, len(errs))
	for _, e := range errs {
		details = append(details, ErrorDetail{
			Detail:      detailFor(e),
			Description: e.Description(),
			Path:        jsonPath(e.Field()),
			Context:     excerpt(e.Value()),
			Err:         e,
		})
	}

	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Path != details[j].Path {
			return details[i].Path < details[j].Path
		}
		return details[i].Description < details[j].Description
	})

	for i := range details {
		details[i].Title = fmt.Sprintf("Error %d of %d.\n Message: %s", i+1, len(details), details[i].Description)
	}
	return details
}

// jsonPath turns a gojsonschema field ("items.0.type") into a JSON pointer ("/items/0/type").
func jsonPath(field string) string {
	if field == "" || field == "(root)" {
		return "/"
	}
	return "/" + strings.ReplaceAll(field, ".", "/")
}

func detailFor(e gojsonschema.ResultError) string {
	switch e.Type() {
	case "required":
		return "A required property is missing."
	case "invalid_type":
		return "The value has the wrong JSON type."
	case "const", "enum":
		return "The value is not one of the permitted values."
	case "format", "pattern":
		return "The value does not have the expected format."
	case "array_min_items":
		return "The list must not be empty."
	case "number_gte", "number_gt":
		return "The number is below the permitted minimum."
	case "number_any_of", "number_one_of", "number_all_of":
		return "The value does not match any of the permitted shapes."
	case "additional_property_not_allowed":
		return "The object has a property that is not permitted here."
	default:
		return "The value does not satisfy the schema."
	}
}

func excerpt(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	s := string(b)
	if len(s) > maxContextLen {
		s = s[:maxContextLen] + "..."
	}
	return s
}
