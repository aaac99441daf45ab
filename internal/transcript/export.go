package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	textSuffix = "_transcription.txt"
	jsonSuffix = "_transcription.json"
)

// document is the on-disk structured form.
type document struct {
	Segments []Segment `json:"segments"`
}

// OutputPaths derives the two output file names from the source recording's
// base name. When outputDir is empty the files land next to the source.
func OutputPaths(sourcePath, outputDir string) (txtPath, jsonPath string) {
	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	if outputDir != "" {
		base = filepath.Join(outputDir, filepath.Base(base))
	}
	return base + textSuffix, base + jsonSuffix
}

// WriteText renders one "(MM:SS) text" line per segment.
func WriteText(path string, tr Transcript) error {
	lines := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		lines = append(lines, s.Stamp+" "+s.Text)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write text transcript: %w", err)
	}
	return nil
}

// WriteJSON renders the structured form consumed by presentation layers.
func WriteJSON(path string, tr Transcript) error {
	doc := document{Segments: tr.Segments}
	if doc.Segments == nil {
		doc.Segments = []Segment{}
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json transcript: %w", err)
	}
	return nil
}

// ReadJSON loads a previously exported structured transcript.
func ReadJSON(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("read json transcript: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Transcript{}, fmt.Errorf("decode json transcript: %w", err)
	}
	if doc.Segments == nil {
		doc.Segments = []Segment{}
	}
	return Transcript{Segments: doc.Segments}, nil
}
