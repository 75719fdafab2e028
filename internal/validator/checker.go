// Package validator checks IIIF Presentation manifests and reports the outcome as JSON.
//
// A Checker holds no per-call state, so one instance can serve concurrent requests.
package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/iiif-validator/internal/config"
	"github.com/jonathan/iiif-validator/internal/fetch"
	"github.com/jonathan/iiif-validator/internal/jsonld"
	"github.com/jonathan/iiif-validator/internal/logging"
	"github.com/jonathan/iiif-validator/internal/manifest"
	"github.com/jonathan/iiif-validator/internal/schemas"
	"github.com/jonathan/iiif-validator/internal/types"
)

// Accept headers sent when a client asks for content negotiation.
const (
	AcceptPresentation2 = `application/ld+json;profile="http://iiif.io/api/presentation/2/context.json"`
	AcceptPresentation3 = `application/ld+json;profile="http://iiif.io/api/presentation/3/context.json"`
)

// Options configures a Checker. Zero values fall back to defaults.
type Options struct {
	Fetch    *fetch.Options
	Resolver manifest.ContextResolver
	Schemas  *schemas.Validator
	Logger   *logging.Logger
}

// Checker dispatches manifests to the validator for their version.
type Checker struct {
	objectModel Strategy
	schema      Strategy
	fetchOpts   fetch.Options
	log         *logging.Logger
}

// New creates a Checker.
func New(opts Options) *Checker {
	schemaValidator := opts.Schemas
	if schemaValidator == nil {
		schemaValidator = schemas.NewValidator()
	}
	fetchOpts := fetch.DefaultOptions()
	if opts.Fetch != nil {
		fetchOpts = opts.Fetch
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Checker{
		objectModel: NewObjectModelValidator(opts.Resolver),
		schema:      NewSchemaBasedValidator(schemaValidator),
		fetchOpts:   *fetchOpts,
		log:         log.WithComponent("validator"),
	}
}

// NewFromConfig creates a Checker wired from configuration. The JSON-LD loader is only
// built when context resolution is enabled.
func NewFromConfig(cfg *config.Config, log *logging.Logger) (*Checker, error) {
	opts := Options{
		Fetch: &fetch.Options{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
		},
		Logger: log,
	}

	if cfg.JSONLD.ResolveContexts {
		loader, err := jsonld.NewLoader(jsonld.Options{Timeout: cfg.JSONLD.Timeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create JSON-LD loader: %w", err)
		}
		opts.Resolver = jsonld.NewResolver(loader)
	}

	return New(opts), nil
}

func (c *Checker) strategyFor(v Version) (Strategy, error) {
	switch v.Kind {
	case KindObjectModel:
		return c.objectModel, nil
	case KindSchema:
		return c.schema, nil
	default:
		return nil, fmt.Errorf("no validator for version %s (kind %s)", v.Name, v.Kind)
	}
}

// Check validates manifest text. url may be nil for text that was not fetched.
// Validation failures are reported in the result; an error is returned only when
// the schema validator fails for a reason other than the manifest itself.
func (c *Checker) Check(data, version string, url *string, warnings []string) (*types.CheckResult, error) {
	v := ParseVersion(version)
	strategy, err := c.strategyFor(v)
	if err != nil {
		return nil, err
	}

	result, err := strategy.Validate(data, v, url, warnings)
	if err != nil {
		c.log.Error().Err(err).Str("version", v.Name).Msg("validator failed")
		return nil, err
	}

	c.log.Debug().
		Str("version", v.Name).
		Stringer("kind", v.Kind).
		Int("okay", result.Okay).
		Int("warnings", len(result.Warnings)).
		Int("schema_errors", len(result.ErrorList)).
		Msg("manifest checked")
	return result, nil
}

// CheckJSON is Check with the result encoded as JSON text.
func (c *Checker) CheckJSON(data, version string, url *string, warnings []string) ([]byte, error) {
	result, err := c.Check(data, version, url, warnings)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode check result: %w", err)
	}
	return out, nil
}

// Fetch retrieves a manifest. With accept set, an Accept header naming the
// presentation context for version is sent. Fetch errors are returned unchanged.
func (c *Checker) Fetch(ctx context.Context, url, version string, accept bool) (*fetch.Result, error) {
	opts := c.fetchOpts
	if accept {
		headers := make(map[string]string, len(opts.Headers)+1)
		for k, v := range opts.Headers {
			headers[k] = v
		}
		headers["Accept"] = AcceptPresentation2
		if ParseVersion(version).Kind == KindSchema {
			headers["Accept"] = AcceptPresentation3
		}
		opts.Headers = headers
	}

	result, err := fetch.URL(ctx, url, &opts)
	if err != nil {
		c.log.Debug().Err(err).Str("url", url).Msg("fetch failed")
		return result, err
	}
	return result, nil
}
