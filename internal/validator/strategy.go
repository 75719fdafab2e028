package validator

import (
	"errors"

	"github.com/jonathan/iiif-validator/internal/manifest"
	"github.com/jonathan/iiif-validator/internal/schemas"
	"github.com/jonathan/iiif-validator/internal/types"
)

// Strategy validates manifest text for one Kind of version.
// Seeded warnings are copied, never modified.
type Strategy interface {
	Validate(data string, version Version, url *string, seeded []string) (*types.CheckResult, error)
}

// SchemaBasedValidator checks manifests against a JSON Schema.
type SchemaBasedValidator struct {
	schemas *schemas.Validator
}

// NewSchemaBasedValidator wraps a schema validator.
func NewSchemaBasedValidator(v *schemas.Validator) *SchemaBasedValidator {
	return &SchemaBasedValidator{schemas: v}
}

// Validate returns a failure result when the text cannot be validated at all
// (*schemas.ValidationError). Any other error, such as a schema that fails to
// load, is returned to the caller. Seeded warnings are not reported on this path.
func (s *SchemaBasedValidator) Validate(data string, version Version, url *string, _ []string) (*types.CheckResult, error) {
	report, err := s.schemas.Validate(data, version.Name, url)
	if err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			return types.Failure(data, err.Error(), url), nil
		}
		return nil, err
	}

	return &types.CheckResult{
		Received:  report.Received,
		Okay:      report.Okay,
		Error:     report.Error,
		URL:       report.URL,
		ErrorList: stripErrors(report.ErrorList),
	}, nil
}

// stripErrors drops the library error carried by each entry.
func stripErrors(details []schemas.ErrorDetail) []schemas.ErrorDetail {
	out := make([]schemas.ErrorDetail, len(details))
	for i, d := range details {
		d.Err = nil
		out[i] = d
	}
	return out
}

// ObjectModelValidator reads manifests with the 2.x object-model reader.
type ObjectModelValidator struct {
	resolver manifest.ContextResolver
}

// NewObjectModelValidator creates the reader-backed validator. resolver may be nil.
func NewObjectModelValidator(resolver manifest.ContextResolver) *ObjectModelValidator {
	return &ObjectModelValidator{resolver: resolver}
}

// Validate never returns an error: every reader failure becomes okay=0 with the
// error text, and warnings gathered before the failure are still reported.
func (o *ObjectModelValidator) Validate(data string, version Version, url *string, seeded []string) (*types.CheckResult, error) {
	var opts []manifest.Option
	if o.resolver != nil {
		opts = append(opts, manifest.WithContextResolver(o.resolver))
	}
	reader := manifest.NewReader(data, version.Name, opts...)

	m, err := reader.Read()
	if err == nil {
		_, err = m.ToJSON()
	}

	readerWarnings := reader.Warnings()
	warnings := make([]string, 0, len(seeded)+len(readerWarnings))
	warnings = append(warnings, seeded...)
	warnings = append(warnings, readerWarnings...)

	errText := types.NoError
	if err != nil {
		errText = err.Error()
	}

	return &types.CheckResult{
		Received: data,
		Okay:     types.Okay(err == nil),
		Warnings: warnings,
		Error:    errText,
		URL:      url,
	}, nil
}
