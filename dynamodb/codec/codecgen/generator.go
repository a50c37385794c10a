// Package codecgen generates reflection free codecs for record types.
//
// The generated file registers a read and a write function per type with
// codec.Register, so codec.For uses them instead of walking the field
// plan. Scalar and special fields get direct conversions. Everything else
// is delegated to codec.EncodeValue and codec.DecodeValue.
//
// A small program drives generation, like:
//
//	src, err := codecgen.New(codecgen.Config{
//	    Package: "catalog",
//	    Types:   []any{catalog.Product{}, catalog.Review{}},
//	}).Generate()
package codecgen

import (
	"bytes"
	"fmt"
	"go/format"
	"reflect"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/acksell/ddbq/dynamodb/codec"
)

// Config holds the code generation configuration.
type Config struct {
	// Package is the Go package name of the generated file. It must be the
	// package declaring Types.
	Package string
	// Types are instances of the struct types to generate codecs for.
	Types []any
}

type Generator struct {
	Config Config
}

func New(cfg Config) *Generator {
	return &Generator{Config: cfg}
}

type templateData struct {
	Package string
	Imports []string
	Types   []typeData
}

type typeData struct {
	Name   string
	Fields []fieldData
}

type fieldData struct {
	Name      string
	Attr      string
	Decode    string // generic or plain decoder function expression
	Encode    string // expression producing the attribute value
	Fallible  bool   // Encode also returns an error
	OmitEmpty bool
}

// Generate produces the formatted Go source.
func (g *Generator) Generate() ([]byte, error) {
	if g.Config.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}
	if len(g.Config.Types) == 0 {
		return nil, fmt.Errorf("no types to generate")
	}

	n := &namer{imports: make(map[string]bool)}
	data := templateData{Package: g.Config.Package}
	for _, v := range g.Config.Types {
		t := reflect.TypeOf(v)
		if t == nil || t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %T", codec.ErrNotRecord, v)
		}
		if t.Name() == "" {
			return nil, fmt.Errorf("cannot generate a codec for anonymous struct %s", t)
		}
		if n.pkgPath == "" {
			n.pkgPath = t.PkgPath()
		}
		if t.PkgPath() != n.pkgPath {
			return nil, fmt.Errorf("all types must be declared in one package: %s is not in %s", t, n.pkgPath)
		}
		rec, err := codec.Lookup(t)
		if err != nil {
			return nil, fmt.Errorf("building field plan for %s: %w", t, err)
		}
		td := typeData{Name: t.Name()}
		for _, f := range rec.Fields() {
			td.Fields = append(td.Fields, n.field(f))
		}
		data.Types = append(data.Types, td)
	}
	for imp := range n.imports {
		data.Imports = append(data.Imports, imp)
	}
	slices.Sort(data.Imports)

	tmpl, err := template.New("codec").Parse(codecTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}
	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		// Return unformatted code with error for debugging
		return buf.Bytes(), fmt.Errorf("formatting generated code: %w", err)
	}
	return formatted, nil
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	decimalType = reflect.TypeFor[decimal.Decimal]()
	bytesType   = reflect.TypeFor[[]byte]()
)

type namer struct {
	pkgPath string
	imports map[string]bool
}

func (n *namer) field(f codec.Field) fieldData {
	fd := fieldData{Name: f.Name, Attr: f.Attr, OmitEmpty: f.OmitEmpty}
	access := "e." + f.Name

	switch {
	case f.Shape == codec.ShapeSet:
		fd.Encode = fmt.Sprintf("codec.EncodeSet(%s)", access)
		fd.Decode = fmt.Sprintf("codec.DecodeSet[%s]", n.typeString(f.Type))
		fd.Fallible = true
	case f.Type == timeType:
		fd.Encode = fmt.Sprintf("codec.EncodeTime(%s)", access)
		fd.Decode = "codec.DecodeTime"
	case f.Type == uuidType:
		fd.Encode = fmt.Sprintf("codec.EncodeUUID(%s)", access)
		fd.Decode = "codec.DecodeUUID"
	case f.Type == decimalType:
		fd.Encode = fmt.Sprintf("codec.EncodeDecimal(%s)", access)
		fd.Decode = "codec.DecodeDecimal"
	case f.Type == bytesType:
		fd.Encode = fmt.Sprintf("codec.EncodeBytes(%s)", access)
		fd.Decode = "codec.DecodeBytes"
	case f.Shape != codec.ShapeScalar:
		fd.Encode = fmt.Sprintf("codec.EncodeValue(%s)", access)
		fd.Decode = fmt.Sprintf("codec.DecodeValue[%s]", n.typeString(f.Type))
		fd.Fallible = true
	default:
		fd.Encode, fd.Decode, fd.Fallible = scalarFuncs(f.Type.Kind(), access, n.typeString(f.Type))
	}
	return fd
}

func scalarFuncs(k reflect.Kind, access, typ string) (encode, decode string, fallible bool) {
	var name string
	switch k {
	case reflect.String:
		name = "String"
	case reflect.Bool:
		name = "Bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		name = "Signed"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		name = "Unsigned"
	case reflect.Float32, reflect.Float64:
		name = "Float"
		fallible = true
	}
	return fmt.Sprintf("codec.Encode%s(%s)", name, access), fmt.Sprintf("codec.Decode%s[%s]", name, typ), fallible
}

// typeString renders t as written in the generated package, recording
// the imports it needs.
func (n *namer) typeString(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" || t.PkgPath() == n.pkgPath {
			return t.Name()
		}
		n.imports[t.PkgPath()] = true
		return t.String()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + n.typeString(t.Elem())
	case reflect.Slice:
		return "[]" + n.typeString(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), n.typeString(t.Elem()))
	case reflect.Map:
		return "map[" + n.typeString(t.Key()) + "]" + n.typeString(t.Elem())
	}
	return t.String()
}

var codecTemplate = strings.TrimSpace(`
// Code generated by codecgen. DO NOT EDIT.

package {{.Package}}

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/codec"
{{- range .Imports}}
	"{{.}}"
{{- end}}
)

func init() {
{{- range .Types}}
	if err := codec.Register(read{{.Name}}, write{{.Name}}); err != nil {
		panic(err)
	}
{{- end}}
}
{{range .Types}}
func read{{.Name}}(item map[string]types.AttributeValue) ({{.Name}}, error) {
	var (
		e   {{.Name}}
		err error
	)
{{- range .Fields}}
	if e.{{.Name}}, err = {{.Decode}}(item[{{printf "%q" .Attr}}]); err != nil {
		return e, codec.FieldError(err, {{printf "%q" .Attr}})
	}
{{- end}}
	return e, err
}

func write{{.Name}}(e *{{.Name}}) (map[string]types.AttributeValue, error) {
	w := codec.NewItemWriter({{len .Fields}})
{{- range .Fields}}
{{- if .OmitEmpty}}
	if !codec.IsZero(e.{{.Name}}) {
		w.Attr({{printf "%q" .Attr}}).{{if .Fallible}}SetE{{else}}Set{{end}}({{.Encode}})
	}
{{- else}}
	w.Attr({{printf "%q" .Attr}}).{{if .Fallible}}SetE{{else}}Set{{end}}({{.Encode}})
{{- end}}
{{- end}}
	return w.Item()
}
{{end}}`) + "\n"
