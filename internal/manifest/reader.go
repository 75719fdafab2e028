// Package manifest reads IIIF Presentation 2.x manifests into an object model.
//
// Reading stops at the first fatal problem. Problems that a viewer can tolerate are
// collected as warnings, in the order they are found, and remain available after a
// failed read.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ContextResolver expands a JSON-LD document, loading the remote contexts it references.
type ContextResolver interface {
	Expand(doc any) error
}

// Option configures a Reader.
type Option func(*Reader)

// WithContextResolver makes the reader resolve @context entries beyond the standard one.
func WithContextResolver(resolver ContextResolver) Option {
	return func(r *Reader) {
		r.resolver = resolver
	}
}

// Reader parses one manifest. A Reader is single use and not safe for concurrent use.
type Reader struct {
	data     string
	version  string
	resolver ContextResolver
	rules    versionRules
	warnings []string
}

// NewReader creates a reader for manifest text at the given presentation version.
func NewReader(data, version string, opts ...Option) *Reader {
	r := &Reader{
		data:    data,
		version: version,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Warnings returns the warnings collected so far, each formatted as "WARNING: ...\n".
func (r *Reader) Warnings() []string {
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Read parses and checks the manifest.
func (r *Reader) Read() (*Manifest, error) {
	rules, ok := rulesByVersion[r.version]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedVersion, r.version,
			strings.Join(SupportedVersions(), ", "))
	}
	r.rules = rules

	dec := json.NewDecoder(strings.NewReader(r.data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Message: "manifest is not valid JSON", Cause: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: "unexpected data after the top-level JSON value"}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, r.fail("manifest", "top level must be a JSON object")
	}

	if err := r.checkContext(obj); err != nil {
		return nil, err
	}
	return r.readManifest(obj)
}

func (r *Reader) warn(format string, args ...any) {
	r.warnings = append(r.warnings, "WARNING: "+fmt.Sprintf(format, args...)+"\n")
}

func (r *Reader) fail(path, format string, args ...any) error {
	return &StructuralError{Path: path, Message: fmt.Sprintf(format, args...)}
}

func (r *Reader) checkContext(obj map[string]any) error {
	raw, present := obj["@context"]
	if !present {
		r.warn("Manifest has no @context; expected %s", r.rules.context)
		return nil
	}

	var entries []any
	switch c := raw.(type) {
	case string, map[string]any:
		entries = []any{c}
	case []any:
		entries = c
	default:
		return r.fail("manifest", "@context must be a URI, an object or a list of them")
	}

	hasStandard := false
	extras := 0
	for _, entry := range entries {
		if s, ok := entry.(string); ok && s == r.rules.context {
			hasStandard = true
			continue
		}
		extras++
	}
	if !hasStandard {
		return r.fail("manifest", "@context must include %s", r.rules.context)
	}
	if extras == 0 {
		return nil
	}

	if r.resolver == nil {
		r.warn("Manifest declares %d additional @context entries that were not resolved", extras)
		return nil
	}

	// The resolver wants plain float64 numbers rather than json.Number.
	var plain any
	if err := json.Unmarshal([]byte(r.data), &plain); err != nil {
		return &ParseError{Message: "manifest is not valid JSON", Cause: err}
	}
	if err := r.resolver.Expand(plain); err != nil {
		return &StructuralError{Path: "manifest", Message: "could not resolve @context", Cause: err}
	}
	return nil
}

func (r *Reader) readManifest(obj map[string]any) (*Manifest, error) {
	const path = "manifest"

	if err := r.expectType(obj, path, TypeManifest); err != nil {
		return nil, err
	}
	id, err := r.requireID(obj, path)
	if err != nil {
		return nil, err
	}
	r.checkProperties(obj, path, TypeManifest)

	desc, err := r.readDescriptive(obj, path, true)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Context:     obj["@context"],
		ID:          id,
		Type:        TypeManifest,
		Descriptive: desc,
	}

	if m.Sequences, err = r.readSequences(obj, path); err != nil {
		return nil, err
	}
	if m.Structures, err = r.readStructures(obj, path); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Reader) readSequences(obj map[string]any, path string) ([]*Sequence, error) {
	raw, ok := obj["sequences"]
	if !ok {
		return nil, r.fail(path, "manifest must have sequences")
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, r.fail(path, "sequences must be a non-empty list")
	}

	sequences := make([]*Sequence, 0, len(list))
	for i, item := range list {
		p := fmt.Sprintf("%s.sequences[%d]", path, i)
		seqObj, ok := item.(map[string]any)
		if !ok {
			return nil, r.fail(p, "sequence must be an object")
		}
		seq, err := r.readSequence(seqObj, p, i == 0)
		if err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	return sequences, nil
}

func (r *Reader) readSequence(obj map[string]any, path string, first bool) (*Sequence, error) {
	if err := r.expectType(obj, path, TypeSequence); err != nil {
		return nil, err
	}
	id, hasID, err := r.optionalID(obj, path)
	if err != nil {
		return nil, err
	}
	if !first && !hasID {
		r.warn("Sequence at %s is not the default sequence and should have an @id", path)
	}
	r.checkProperties(obj, path, TypeSequence)

	desc, err := r.readDescriptive(obj, path, false)
	if err != nil {
		return nil, err
	}
	seq := &Sequence{ID: id, Type: TypeSequence, Descriptive: desc}

	if seq.StartCanvas, err = r.optionalURI(obj, "startCanvas", path); err != nil {
		return nil, err
	}

	raw, ok := obj["canvases"]
	if !ok {
		if first {
			return nil, r.fail(path, "the default sequence must have canvases")
		}
		return seq, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, r.fail(path, "canvases must be a non-empty list")
	}

	seen := make(map[string]bool, len(list))
	for i, item := range list {
		p := fmt.Sprintf("%s.canvases[%d]", path, i)
		canvasObj, ok := item.(map[string]any)
		if !ok {
			return nil, r.fail(p, "canvas must be an object")
		}
		canvas, err := r.readCanvas(canvasObj, p)
		if err != nil {
			return nil, err
		}
		if seen[canvas.ID] {
			r.warn("Canvas @id %s is used more than once in %s", canvas.ID, path)
		}
		seen[canvas.ID] = true
		seq.Canvases = append(seq.Canvases, canvas)
	}

	if seq.StartCanvas != "" && !seen[stripFragment(seq.StartCanvas)] {
		r.warn("startCanvas %s at %s is not one of the sequence's canvases", seq.StartCanvas, path)
	}
	return seq, nil
}

func (r *Reader) readCanvas(obj map[string]any, path string) (*Canvas, error) {
	if err := r.expectType(obj, path, TypeCanvas); err != nil {
		return nil, err
	}
	id, err := r.requireID(obj, path)
	if err != nil {
		return nil, err
	}
	r.checkProperties(obj, path, TypeCanvas)

	desc, err := r.readDescriptive(obj, path, true)
	if err != nil {
		return nil, err
	}
	canvas := &Canvas{ID: id, Type: TypeCanvas, Descriptive: desc}

	if canvas.Height, err = r.readDimension(obj, "height", path, true); err != nil {
		return nil, err
	}
	if canvas.Width, err = r.readDimension(obj, "width", path, true); err != nil {
		return nil, err
	}

	if raw, ok := obj["images"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, r.fail(path, "images must be a list")
		}
		for i, item := range list {
			p := fmt.Sprintf("%s.images[%d]", path, i)
			annoObj, ok := item.(map[string]any)
			if !ok {
				return nil, r.fail(p, "image annotation must be an object")
			}
			anno, err := r.readImageAnnotation(annoObj, p, id)
			if err != nil {
				return nil, err
			}
			canvas.Images = append(canvas.Images, anno)
		}
	}

	if canvas.OtherContent, err = r.readLinks(obj, "otherContent", path); err != nil {
		return nil, err
	}
	for _, list := range canvas.OtherContent {
		if list.Type != "" && list.Type != TypeAnnotationList {
			r.warn("otherContent of %s should reference %s resources, got %s", path, TypeAnnotationList, list.Type)
		}
	}
	return canvas, nil
}

func (r *Reader) readImageAnnotation(obj map[string]any, path, canvasID string) (*Annotation, error) {
	if err := r.expectType(obj, path, TypeAnnotation); err != nil {
		return nil, err
	}
	id, _, err := r.optionalID(obj, path)
	if err != nil {
		return nil, err
	}
	r.checkProperties(obj, path, TypeAnnotation)

	anno := &Annotation{ID: id, Type: TypeAnnotation}

	switch motivation := obj["motivation"].(type) {
	case nil:
		r.warn("Image annotation at %s has no motivation; expected %s", path, MotivationPainting)
	case string:
		anno.Motivation = motivation
		if motivation != MotivationPainting {
			r.warn("Image annotation at %s should have motivation %s, got %s", path, MotivationPainting, motivation)
		}
	default:
		return nil, r.fail(path, "motivation must be a string")
	}

	on, err := r.readTarget(obj, path)
	if err != nil {
		return nil, err
	}
	if stripFragment(on) != canvasID {
		return nil, r.fail(path, "on must reference the canvas %s, got %s", canvasID, on)
	}
	anno.On = on

	raw, ok := obj["resource"]
	if !ok {
		return nil, r.fail(path, "image annotation must have a resource")
	}
	resObj, ok := raw.(map[string]any)
	if !ok {
		return nil, r.fail(path, "resource must be an object")
	}
	if anno.Resource, err = r.readResource(resObj, path+".resource"); err != nil {
		return nil, err
	}
	return anno, nil
}

// readTarget returns the canvas URI an annotation is "on", accepting a plain URI
// or a specific resource whose "full" names the canvas.
func (r *Reader) readTarget(obj map[string]any, path string) (string, error) {
	switch on := obj["on"].(type) {
	case nil:
		return "", r.fail(path, "image annotation must have an on property")
	case string:
		return on, nil
	case map[string]any:
		if full, ok := on["full"].(string); ok {
			return full, nil
		}
		if id, ok := on["@id"].(string); ok {
			return id, nil
		}
		return "", r.fail(path, "on must name the target canvas")
	default:
		return "", r.fail(path, "on must be a URI or an object")
	}
}

func (r *Reader) readResource(obj map[string]any, path string) (*Resource, error) {
	id, hasID, err := r.optionalID(obj, path)
	if err != nil {
		return nil, err
	}
	res := &Resource{ID: id}

	typ, _ := obj["@type"].(string)
	res.Type = typ
	if typ == TypeChoice {
		return r.readChoice(obj, path, res)
	}
	if typ == "" {
		r.warn("Resource at %s has no @type", path)
	}
	if !hasID {
		r.warn("Resource at %s has no @id", path)
	}

	if format, ok := obj["format"].(string); ok {
		res.Format = format
	} else if typ == TypeImage {
		r.warn("Image resource at %s should have a format", path)
	}

	if res.Height, err = r.readDimension(obj, "height", path, false); err != nil {
		return nil, err
	}
	if res.Width, err = r.readDimension(obj, "width", path, false); err != nil {
		return nil, err
	}
	if res.Service, err = r.readLinks(obj, "service", path); err != nil {
		return nil, err
	}
	if typ == TypeImage && len(res.Service) == 0 {
		r.warn("Image resource at %s has no IIIF Image API service", path)
	}
	return res, nil
}

func (r *Reader) readChoice(obj map[string]any, path string, res *Resource) (*Resource, error) {
	defObj, ok := obj["default"].(map[string]any)
	if !ok {
		return nil, r.fail(path, "oa:Choice must have a default resource")
	}
	def, err := r.readResource(defObj, path+".default")
	if err != nil {
		return nil, err
	}
	res.Default = def

	var items []any
	switch item := obj["item"].(type) {
	case nil:
	case map[string]any:
		items = []any{item}
	case []any:
		items = item
	default:
		return nil, r.fail(path, "oa:Choice item must be an object or a list")
	}
	for i, raw := range items {
		p := fmt.Sprintf("%s.item[%d]", path, i)
		itemObj, ok := raw.(map[string]any)
		if !ok {
			return nil, r.fail(p, "choice item must be an object")
		}
		alt, err := r.readResource(itemObj, p)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, alt)
	}
	return res, nil
}

func (r *Reader) readStructures(obj map[string]any, path string) ([]*Range, error) {
	raw, ok := obj["structures"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, r.fail(path, "structures must be a list")
	}

	ranges := make([]*Range, 0, len(list))
	for i, item := range list {
		p := fmt.Sprintf("%s.structures[%d]", path, i)
		rangeObj, ok := item.(map[string]any)
		if !ok {
			return nil, r.fail(p, "range must be an object")
		}
		rng, err := r.readRange(rangeObj, p)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	return ranges, nil
}

func (r *Reader) readRange(obj map[string]any, path string) (*Range, error) {
	if err := r.expectType(obj, path, TypeRange); err != nil {
		return nil, err
	}
	id, err := r.requireID(obj, path)
	if err != nil {
		return nil, err
	}
	r.checkProperties(obj, path, TypeRange)

	desc, err := r.readDescriptive(obj, path, true)
	if err != nil {
		return nil, err
	}
	rng := &Range{ID: id, Type: TypeRange, Descriptive: desc}

	if rng.Canvases, err = r.readURIList(obj, "canvases", path); err != nil {
		return nil, err
	}
	if rng.Ranges, err = r.readURIList(obj, "ranges", path); err != nil {
		return nil, err
	}
	if rng.Members, err = r.readLinks(obj, "members", path); err != nil {
		return nil, err
	}
	if rng.StartCanvas, err = r.optionalURI(obj, "startCanvas", path); err != nil {
		return nil, err
	}
	if rng.ContentLayer, err = r.optionalURI(obj, "contentLayer", path); err != nil {
		return nil, err
	}
	return rng, nil
}

func (r *Reader) readDescriptive(obj map[string]any, path string, labelRequired bool) (Descriptive, error) {
	var d Descriptive
	var err error

	if _, ok := obj["label"]; !ok && labelRequired {
		return d, r.fail(path, "label is required")
	}
	if d.Label, err = r.readLangValue(obj, "label", path); err != nil {
		return d, err
	}
	if d.Description, err = r.readLangValue(obj, "description", path); err != nil {
		return d, err
	}
	if d.Attribution, err = r.readLangValue(obj, "attribution", path); err != nil {
		return d, err
	}
	if d.Metadata, err = r.readMetadata(obj, path); err != nil {
		return d, err
	}
	if d.License, err = r.readLicense(obj, path); err != nil {
		return d, err
	}
	if d.ViewingHint, err = r.readViewingHint(obj, path); err != nil {
		return d, err
	}
	if d.ViewingDirection, err = r.readViewingDirection(obj, path); err != nil {
		return d, err
	}
	d.NavDate = r.readNavDate(obj, path)

	links := []struct {
		key  string
		dest *[]Link
	}{
		{"thumbnail", &d.Thumbnail},
		{"logo", &d.Logo},
		{"related", &d.Related},
		{"rendering", &d.Rendering},
		{"service", &d.Service},
		{"seeAlso", &d.SeeAlso},
		{"within", &d.Within},
	}
	for _, l := range links {
		if *l.dest, err = r.readLinks(obj, l.key, path); err != nil {
			return d, err
		}
	}
	return d, nil
}

func (r *Reader) readLangValue(obj map[string]any, key, path string) (LangValue, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, nil
	}
	value, ok := langValue(raw)
	if !ok {
		return nil, r.fail(path, "%s must be a string, a language-tagged value or a list of them", key)
	}
	return value, nil
}

func langValue(raw any) (LangValue, bool) {
	switch v := raw.(type) {
	case string:
		return LangValue{{Value: v}}, true
	case map[string]any:
		s, ok := v["@value"].(string)
		if !ok {
			return nil, false
		}
		lang, _ := v["@language"].(string)
		return LangValue{{Value: s, Language: lang}}, true
	case []any:
		var out LangValue
		for _, item := range v {
			sub, ok := langValue(item)
			if !ok {
				return nil, false
			}
			out = append(out, sub...)
		}
		return out, true
	default:
		return nil, false
	}
}

func (r *Reader) readMetadata(obj map[string]any, path string) ([]MetadataEntry, error) {
	raw, ok := obj["metadata"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, r.fail(path, "metadata must be a list of label/value pairs")
	}

	entries := make([]MetadataEntry, 0, len(list))
	for i, item := range list {
		p := fmt.Sprintf("%s.metadata[%d]", path, i)
		pair, ok := item.(map[string]any)
		if !ok {
			return nil, r.fail(p, "metadata entry must be an object with label and value")
		}
		label, ok := langValue(pair["label"])
		if !ok {
			return nil, r.fail(p, "metadata entry must have a label")
		}
		value, ok := langValue(pair["value"])
		if !ok {
			return nil, r.fail(p, "metadata entry must have a value")
		}
		entries = append(entries, MetadataEntry{Label: label, Value: value})
	}
	return entries, nil
}

func (r *Reader) readLicense(obj map[string]any, path string) ([]string, error) {
	var values []string
	switch v := obj["license"].(type) {
	case nil:
		return nil, nil
	case string:
		values = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, r.fail(path, "license must be a URI or a list of URIs")
			}
			values = append(values, s)
		}
	default:
		return nil, r.fail(path, "license must be a URI or a list of URIs")
	}

	for _, v := range values {
		if !isURI(v) {
			r.warn("license at %s should be a URI, got %q", path, v)
		}
	}
	return values, nil
}

func (r *Reader) readViewingHint(obj map[string]any, path string) (string, error) {
	raw, ok := obj["viewingHint"]
	if !ok {
		return "", nil
	}
	hint, ok := raw.(string)
	if !ok {
		return "", r.fail(path, "viewingHint must be a string")
	}
	if !r.rules.viewingHints[hint] && !isURI(hint) {
		r.warn("Unknown viewingHint %q at %s for version %s", hint, path, r.version)
	}
	return hint, nil
}

func (r *Reader) readViewingDirection(obj map[string]any, path string) (string, error) {
	raw, ok := obj["viewingDirection"]
	if !ok {
		return "", nil
	}
	dir, ok := raw.(string)
	if !ok || !viewingDirections[dir] {
		return "", r.fail(path, "viewingDirection must be one of left-to-right, right-to-left, top-to-bottom, bottom-to-top")
	}
	return dir, nil
}

func (r *Reader) readNavDate(obj map[string]any, path string) string {
	raw, ok := obj["navDate"]
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		r.warn("navDate at %s should be an xsd:dateTime such as 1900-01-01T00:00:00Z", path)
	}
	return s
}

func (r *Reader) readDimension(obj map[string]any, key, path string, required bool) (int64, error) {
	raw, ok := obj[key]
	if !ok {
		if required {
			return 0, r.fail(path, "%s is required", key)
		}
		return 0, nil
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, r.fail(path, "%s must be an integer", key)
	}
	n, err := num.Int64()
	if err != nil {
		return 0, r.fail(path, "%s must be an integer", key)
	}
	if n <= 0 {
		return 0, r.fail(path, "%s must be positive", key)
	}
	return n, nil
}

func (r *Reader) readLinks(obj map[string]any, key, path string) ([]Link, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, nil
	}

	var items []any
	switch v := raw.(type) {
	case string, map[string]any:
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, r.fail(path, "%s must be a URI, an object or a list of them", key)
	}

	links := make([]Link, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if !isURI(v) {
				r.warn("%s at %s should be a URI, got %q", key, path, v)
			}
			links = append(links, Link{ID: v})
		case map[string]any:
			link := Link{}
			link.ID, _ = v["@id"].(string)
			if link.ID == "" {
				r.warn("%s at %s has an entry without @id", key, path)
			}
			link.Type, _ = v["@type"].(string)
			link.Format, _ = v["format"].(string)
			link.Context, _ = v["@context"].(string)
			link.Profile = v["profile"]
			if label, ok := langValue(v["label"]); ok {
				link.Label = label
			}
			links = append(links, link)
		default:
			return nil, r.fail(path, "%s entries must be URIs or objects", key)
		}
	}
	return links, nil
}

func (r *Reader) readURIList(obj map[string]any, key, path string) ([]string, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, r.fail(path, "%s must be a list of URIs", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || !isURI(s) {
			return nil, r.fail(path, "%s must be a list of URIs", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Reader) optionalURI(obj map[string]any, key, path string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok || !isURI(s) {
		return "", r.fail(path, "%s must be a URI", key)
	}
	return s, nil
}

func (r *Reader) expectType(obj map[string]any, path, want string) error {
	raw, ok := obj["@type"]
	if !ok {
		return r.fail(path, "missing @type, expected %s", want)
	}
	got, ok := raw.(string)
	if !ok || got != want {
		return r.fail(path, "@type must be %s, got %v", want, raw)
	}
	return nil
}

func (r *Reader) requireID(obj map[string]any, path string) (string, error) {
	id, ok, err := r.optionalID(obj, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", r.fail(path, "@id is required")
	}
	return id, nil
}

func (r *Reader) optionalID(obj map[string]any, path string) (string, bool, error) {
	raw, ok := obj["@id"]
	if !ok {
		return "", false, nil
	}
	id, ok := raw.(string)
	if !ok || !isURI(id) {
		return "", false, r.fail(path, "@id must be an absolute URI, got %v", raw)
	}
	return id, true, nil
}

// checkProperties warns about properties not defined for typ, in key order.
func (r *Reader) checkProperties(obj map[string]any, path, typ string) {
	known := knownProperties[typ]
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			r.warn("Unknown property %q on %s at %s", k, typ, path)
		}
	}
}

func isURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

func stripFragment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}
