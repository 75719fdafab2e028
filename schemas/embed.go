// Package schemas embeds the JSON Schemas used to validate IIIF Presentation manifests,
// so validation works regardless of the working directory.
package schemas

import _ "embed"

// Presentation3 is the JSON Schema for IIIF Presentation API 3.0 manifests.
//
//go:embed iiif_3_0.json
var Presentation3 []byte

// ByVersion returns the embedded schema for a presentation version, or nil.
func ByVersion(version string) []byte {
	switch version {
	case "3.0":
		return Presentation3
	}
	return nil
}
