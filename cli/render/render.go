// Package render handles output formatting for the warden CLI.
//
// Format selection:
//   - --format always wins
//   - otherwise a TTY gets a table, a pipe gets JSON
//
// Color applies to table output only and only to run/response status
// values; --no-color suppresses it. JSON and YAML are never colored.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/warden/cli/tui"
)

// Format is an output format name.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --format value. The empty string is legal and
// means "let TTY detection decide".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes command results in one configured format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a renderer from the shared CLI flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: os.Stdout}, nil
}

// NewRendererWithWriter builds a renderer around an explicit writer,
// bypassing flag and TTY detection. Used by tests.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// renderTable writes either a header+rows listing (for slices) or a
// label: value record (for a single struct or map).
func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderListing(v)
	}
	return r.renderRecord(v)
}

func (r *Renderer) renderListing(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	labels := rowLabels(deref(v.Index(0)))
	fmt.Fprintln(w, strings.Join(labels, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := deref(v.Index(i))
		cells := make([]string, 0, len(labels))
		for j, label := range labels {
			cell := r.cell(row, label, j)
			if label == "status" {
				cell = r.colorStatus(cell)
			}
			cells = append(cells, cell)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return nil
}

func (r *Renderer) renderRecord(v reflect.Value) error {
	v = deref(v)
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			label := fieldLabel(t.Field(i))
			value := cellValue(v.Field(i))
			if label == "status" {
				value = r.colorStatus(value)
			}
			fmt.Fprintf(w, "%s:\t%s\n", label, value)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), cellValue(iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", v.Interface())
	}
	return nil
}

// colorStatus styles a status value for terminal tables. A no-color
// renderer passes the value through untouched.
func (r *Renderer) colorStatus(value string) string {
	if r.noColor {
		return value
	}
	return tui.StateStyle(value).Render(value)
}

// rowLabels derives column labels from the first row.
func rowLabels(v reflect.Value) []string {
	var labels []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			labels = append(labels, fieldLabel(t.Field(i)))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			labels = append(labels, fmt.Sprintf("%v", key.Interface()))
		}
	}
	return labels
}

// cell extracts the idx-th column of a row; maps are keyed by label.
func (r *Renderer) cell(row reflect.Value, label string, idx int) string {
	switch row.Kind() {
	case reflect.Struct:
		return cellValue(row.Field(idx))
	case reflect.Map:
		return cellValue(row.MapIndex(reflect.ValueOf(label)))
	default:
		return fmt.Sprintf("%v", row.Interface())
	}
}

// fieldLabel prefers the json tag name over the Go field name.
func fieldLabel(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// cellValue flattens one value into a single table cell. Nested
// collections collapse to a count; full detail belongs to json/yaml.
func cellValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if v.Type().String() == "time.Time" {
			return fmt.Sprintf("%v", v.Interface())
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func deref(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v.Elem()
	}
	return v
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
