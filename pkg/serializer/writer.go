// Package serializer renders command results as JSON, YAML or a table.
//
// Commands hand typed records to a Writer and never format output
// themselves:
//
//	w, err := serializer.NewFileWriterOrStdout(serializer.FormatTable, output)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	return w.Serialize(ctx, jobs)
//
// Values implementing Tabular render as columns in table format. Anything
// else is flattened into FIELD/VALUE rows.
package serializer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// SupportedFormats returns the format names accepted on the command line.
func SupportedFormats() []string {
	return []string{string(FormatJSON), string(FormatYAML), string(FormatTable)}
}

// IsUnknown reports whether f is not a supported format.
func (f Format) IsUnknown() bool {
	switch f {
	case FormatJSON, FormatYAML, FormatTable:
		return false
	default:
		return true
	}
}

// FormatFromPath guesses a format from a file extension, returning def when
// the extension is not recognized.
func FormatFromPath(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return def
	}
}

// Serializer writes a value in some format.
type Serializer interface {
	Serialize(ctx context.Context, data any) error
}

// Closer is implemented by serializers owning a file.
type Closer interface {
	Close() error
}

// Tabular values render as a column table.
type Tabular interface {
	TableHeader() []string
	TableRows() [][]string
}

// Writer serializes values to an io.Writer.
type Writer struct {
	format Format
	output io.Writer
	closer io.Closer

	closeOnce sync.Once
	closeErr  error
}

// NewWriter returns a Writer for format. Unknown formats fall back to JSON.
func NewWriter(format Format, output io.Writer) *Writer {
	if format.IsUnknown() {
		format = FormatJSON
	}
	if output == nil {
		output = os.Stdout
	}
	return &Writer{format: format, output: output}
}

// NewStdoutWriter returns a Writer on standard output.
func NewStdoutWriter(format Format) *Writer {
	return NewWriter(format, os.Stdout)
}

// NewFileWriterOrStdout writes to path, or to standard output when path is
// empty or "-".
func NewFileWriterOrStdout(format Format, path string) (Serializer, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == StdoutURI {
		return NewStdoutWriter(format), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w := NewWriter(format, f)
	w.closer = f
	return w, nil
}

// Close closes the underlying file, if any. It is safe to call repeatedly.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		if w.closer != nil {
			w.closeErr = w.closer.Close()
		}
	})
	return w.closeErr
}

// Serialize writes data in the writer's format.
func (w *Writer) Serialize(ctx context.Context, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch w.format {
	case FormatYAML:
		enc := yaml.NewEncoder(w.output)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to serialize to yaml: %w", err)
		}
		return enc.Close()
	case FormatTable:
		return w.serializeTable(data)
	default:
		enc := json.NewEncoder(w.output)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to serialize to json: %w", err)
		}
		return nil
	}
}

func (w *Writer) serializeTable(data any) error {
	tw := tabwriter.NewWriter(w.output, 0, 0, 2, ' ', 0)

	if t, ok := data.(Tabular); ok {
		writeRow(tw, t.TableHeader())
		for _, row := range t.TableRows() {
			writeRow(tw, row)
		}
		return tw.Flush()
	}

	rows := map[string]string{}
	flatten("", reflect.ValueOf(data), rows)

	writeRow(tw, []string{"FIELD", "VALUE"})
	if len(rows) == 0 {
		writeRow(tw, []string{"<empty>", ""})
		return tw.Flush()
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeRow(tw, []string{k, rows[k]})
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

// flatten walks v and records leaf values under dotted keys.
func flatten(prefix string, v reflect.Value, out map[string]string) {
	if !v.IsValid() {
		if prefix != "" {
			out[prefix] = "<nil>"
		}
		return
	}

	if s, ok := v.Interface().(fmt.Stringer); ok && v.Kind() != reflect.Pointer {
		out[prefix] = s.String()
		return
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			if prefix != "" {
				out[prefix] = "<nil>"
			}
			return
		}
		flatten(prefix, v.Elem(), out)
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			flatten(join(prefix, f.Name), v.Field(i), out)
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			flatten(join(prefix, fmt.Sprint(k.Interface())), v.MapIndex(k), out)
		}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
			strs := make([]string, v.Len())
			for i := range v.Len() {
				strs[i] = v.Index(i).String()
			}
			if prefix != "" {
				out[prefix] = strings.Join(strs, " ")
			}
			return
		}
		for i := range v.Len() {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), v.Index(i), out)
		}
	default:
		out[prefix] = fmt.Sprint(v.Interface())
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
