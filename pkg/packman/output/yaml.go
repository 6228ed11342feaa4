package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter writes the records as a YAML sequence, keys in column
// order.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, l *Listing) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range l.Rows {
		rec := &yaml.Node{Kind: yaml.MappingNode}
		for i, c := range l.Columns {
			rec.Content = append(rec.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: c},
				&yaml.Node{Kind: yaml.ScalarNode, Value: row[i], Tag: "!!str"},
			)
		}
		seq.Content = append(seq.Content, rec)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(seq); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter { return &YAMLFormatter{} })
}

var _ Formatter = (*YAMLFormatter)(nil)
