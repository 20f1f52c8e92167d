package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter exports transcripts in YAML format.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(doc Document, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(doc)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
