package validator

// Kind selects which validator handles a presentation version.
type Kind int

const (
	// KindObjectModel reads the manifest into the 2.x object model.
	KindObjectModel Kind = iota
	// KindSchema checks the manifest against a JSON Schema.
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindObjectModel:
		return "object-model"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// DefaultVersion is used when no version is requested.
const DefaultVersion = "2.1"

// Version is a requested presentation version and the validator kind that handles it.
type Version struct {
	Name string
	Kind Kind
}

// ParseVersion classifies a version string. "3.0" is schema validated; everything
// else goes to the object-model reader, which rejects versions it does not know.
func ParseVersion(s string) Version {
	switch s {
	case "":
		return Version{Name: DefaultVersion, Kind: KindObjectModel}
	case "3.0":
		return Version{Name: s, Kind: KindSchema}
	default:
		return Version{Name: s, Kind: KindObjectModel}
	}
}

func (v Version) String() string {
	return v.Name
}
