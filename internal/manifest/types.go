package manifest

import (
	"encoding/json"
)

// LangString is one value of a language-aware property such as label or description.
type LangString struct {
	Value    string `json:"@value"`
	Language string `json:"@language,omitempty"`
}

// LangValue is a label-like property: a plain string or a list of language-tagged values.
type LangValue []LangString

// MarshalJSON renders a single untagged value as a bare string.
func (v LangValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 && v[0].Language == "" {
		return json.Marshal(v[0].Value)
	}
	return json.Marshal([]LangString(v))
}

// MetadataEntry is one label/value pair of the metadata property.
type MetadataEntry struct {
	Label LangValue `json:"label"`
	Value LangValue `json:"value"`
}

// Link is a reference to an external resource (thumbnail, service, seeAlso, ...).
type Link struct {
	Context string    `json:"@context,omitempty"`
	ID      string    `json:"@id"`
	Type    string    `json:"@type,omitempty"`
	Format  string    `json:"format,omitempty"`
	Profile any       `json:"profile,omitempty"`
	Label   LangValue `json:"label,omitempty"`
}

// Descriptive holds the properties shared by every presentation resource.
type Descriptive struct {
	Label            LangValue       `json:"label,omitempty"`
	Metadata         []MetadataEntry `json:"metadata,omitempty"`
	Description      LangValue       `json:"description,omitempty"`
	Attribution      LangValue       `json:"attribution,omitempty"`
	License          []string        `json:"license,omitempty"`
	ViewingHint      string          `json:"viewingHint,omitempty"`
	ViewingDirection string          `json:"viewingDirection,omitempty"`
	NavDate          string          `json:"navDate,omitempty"`
	Thumbnail        []Link          `json:"thumbnail,omitempty"`
	Logo             []Link          `json:"logo,omitempty"`
	Related          []Link          `json:"related,omitempty"`
	Rendering        []Link          `json:"rendering,omitempty"`
	Service          []Link          `json:"service,omitempty"`
	SeeAlso          []Link          `json:"seeAlso,omitempty"`
	Within           []Link          `json:"within,omitempty"`
}

// Manifest is the parsed object model of a 2.x manifest.
type Manifest struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"@id"`
	Type    string `json:"@type"`
	Descriptive
	Sequences  []*Sequence `json:"sequences"`
	Structures []*Range    `json:"structures,omitempty"`
}

// Sequence orders the canvases of a manifest.
type Sequence struct {
	ID   string `json:"@id,omitempty"`
	Type string `json:"@type"`
	Descriptive
	StartCanvas string    `json:"startCanvas,omitempty"`
	Canvases    []*Canvas `json:"canvases,omitempty"`
}

// Canvas is a two dimensional space onto which images are painted.
type Canvas struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
	Descriptive
	Height       int64         `json:"height"`
	Width        int64         `json:"width"`
	Images       []*Annotation `json:"images,omitempty"`
	OtherContent []Link        `json:"otherContent,omitempty"`
}

// Annotation associates a content resource with a canvas.
type Annotation struct {
	ID         string    `json:"@id,omitempty"`
	Type       string    `json:"@type"`
	Motivation string    `json:"motivation,omitempty"`
	Resource   *Resource `json:"resource"`
	On         string    `json:"on"`
}

// Resource is the body of an image annotation.
type Resource struct {
	ID      string `json:"@id,omitempty"`
	Type    string `json:"@type,omitempty"`
	Format  string `json:"format,omitempty"`
	Height  int64  `json:"height,omitempty"`
	Width   int64  `json:"width,omitempty"`
	Service []Link `json:"service,omitempty"`
	// Choice bodies carry their alternatives here.
	Default *Resource   `json:"default,omitempty"`
	Items   []*Resource `json:"item,omitempty"`
}

// Range is a structural division of the manifest such as a chapter.
type Range struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
	Descriptive
	StartCanvas  string   `json:"startCanvas,omitempty"`
	ContentLayer string   `json:"contentLayer,omitempty"`
	Canvases     []string `json:"canvases,omitempty"`
	Ranges       []string `json:"ranges,omitempty"`
	Members      []Link   `json:"members,omitempty"`
}

// ToJSON materialises the object model back into JSON.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CanvasCount returns the number of canvases in the default sequence.
func (m *Manifest) CanvasCount() int {
	if len(m.Sequences) == 0 {
		return 0
	}
	return len(m.Sequences[0].Canvases)
}
