package manifest

// Presentation context URIs.
const (
	Presentation2Context = "http://iiif.io/api/presentation/2/context.json"
	SharedCanvasContext  = "http://www.shared-canvas.org/ns/context.json"
)

// Resource type names checked by the reader.
const (
	TypeManifest       = "sc:Manifest"
	TypeSequence       = "sc:Sequence"
	TypeCanvas         = "sc:Canvas"
	TypeRange          = "sc:Range"
	TypeAnnotation     = "oa:Annotation"
	TypeAnnotationList = "sc:AnnotationList"
	TypeImage          = "dctypes:Image"
	TypeChoice         = "oa:Choice"
	MotivationPainting = "sc:painting"
)

// versionRules captures what differs between presentation versions.
type versionRules struct {
	context      string
	viewingHints map[string]bool
}

var rulesByVersion = map[string]versionRules{
	"1.0": {
		context:      SharedCanvasContext,
		viewingHints: set("individuals", "paged", "continuous"),
	},
	"2.0": {
		context:      Presentation2Context,
		viewingHints: set("individuals", "paged", "continuous", "non-paged", "top"),
	},
	"2.1": {
		context:      Presentation2Context,
		viewingHints: set("individuals", "paged", "continuous", "non-paged", "top", "multi-part", "facing-pages"),
	},
}

// SupportedVersions lists the versions the reader understands.
func SupportedVersions() []string {
	return []string{"1.0", "2.0", "2.1"}
}

var viewingDirections = set("left-to-right", "right-to-left", "top-to-bottom", "bottom-to-top")

var descriptiveProperties = []string{
	"@context", "@id", "@type", "label", "metadata", "description", "attribution",
	"license", "logo", "thumbnail", "viewingHint", "related", "rendering",
	"service", "seeAlso", "within",
}

// knownProperties lists the properties each resource type may carry without a warning.
var knownProperties = map[string]map[string]bool{
	TypeManifest: set(append([]string{"sequences", "structures", "viewingDirection", "navDate", "otherContent"}, descriptiveProperties...)...),
	TypeSequence: set(append([]string{"canvases", "startCanvas", "viewingDirection"}, descriptiveProperties...)...),
	TypeCanvas:   set(append([]string{"height", "width", "images", "otherContent"}, descriptiveProperties...)...),
	TypeRange: set(append([]string{"canvases", "ranges", "members", "startCanvas", "contentLayer",
		"viewingDirection", "navDate"}, descriptiveProperties...)...),
	TypeAnnotation: set("@context", "@id", "@type", "motivation", "resource", "on", "label",
		"description", "stylesheet", "service", "seeAlso"),
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
