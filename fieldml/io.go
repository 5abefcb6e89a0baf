package fieldml

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/notargets/femesh/mesh"
)

// splitPath separates a path into location and leaf filename at the last
// forward or backward slash.
func splitPath(pathAndFilename string) (location, filename string) {
	cut := strings.LastIndexAny(pathAndFilename, `/\`)
	if cut < 0 {
		return "", pathAndFilename
	}
	return pathAndFilename[:cut], pathAndFilename[cut+1:]
}

// WriteFile serializes the region's highest-dimension mesh to a FieldML
// file at pathAndFilename.
func WriteFile(region *mesh.Region, pathAndFilename string) error {
	return WriteFileFields(region, pathAndFilename, nil)
}

// WriteFileFields is WriteFile restricted to the named fields. A nil name
// list selects every field.
func WriteFileFields(region *mesh.Region, pathAndFilename string, fieldNames []string) error {
	location, filename := splitPath(pathAndFilename)
	slog.Info("writing FieldML file", "location", location, "filename", filename)
	doc, err := WriteFields(region, fieldNames)
	if err != nil {
		return fmt.Errorf("write FieldML %q: %w", filename, err)
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("write FieldML %q: %w", filename, err)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(pathAndFilename, data, 0o644); err != nil {
		return fmt.Errorf("write FieldML %q: %w", filename, err)
	}
	return nil
}

// ReadFile reads a FieldML file written by WriteFile back into a region.
func ReadFile(pathAndFilename string) (*mesh.Region, error) {
	data, err := os.ReadFile(pathAndFilename)
	if err != nil {
		return nil, fmt.Errorf("read FieldML: %w", err)
	}
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("read FieldML: %w", err)
	}
	return Read(&doc)
}
