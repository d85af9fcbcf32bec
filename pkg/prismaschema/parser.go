// Package prismaschema parses the schema files written by `prisma db pull`
// and converts them into table metadata.
package prismaschema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Schema is a parsed Prisma schema file.
type Schema struct {
	Datasource *Datasource
	Models     []Model
	Enums      []Enum
}

// Datasource is the `datasource` block.
type Datasource struct {
	Name     string
	Provider string
	URL      string
}

// Model is a `model` block, one per table.
type Model struct {
	Name       string
	DBName     string   // @@map, or Name
	PrimaryKey []string // @@id field names
	Ignored    bool     // @@ignore
	Fields     []Field
}

// Field is one line of a model block.
type Field struct {
	Name          string
	DBName        string // @map, or Name
	Type          string
	IsList        bool
	IsOptional    bool
	IsUnsupported bool
	IsID          bool
	IsUnique      bool
	Ignored       bool
	NativeType    string // @db.VarChar(100) -> VarChar(100)
	Default       *Default
	Relation      *Relation
}

// Default is the argument of @default.
type Default struct {
	Func  string // autoincrement, now, uuid, cuid, dbgenerated, sequence; empty for literals
	Args  []string
	Value any // literal: string, int64, float64, bool
}

// Relation is the @relation attribute of a relation field.
type Relation struct {
	Name       string
	Fields     []string
	References []string
}

// Enum is an `enum` block.
type Enum struct {
	Name   string
	DBName string
	Values []string // database values (@map applied)
}

// Model returns the model with the given Prisma name.
func (s *Schema) Model(name string) (*Model, bool) {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i], true
		}
	}
	return nil, false
}

// Enum returns the enum with the given Prisma name.
func (s *Schema) Enum(name string) (*Enum, bool) {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i], true
		}
	}
	return nil, false
}

// Field returns the field with the given Prisma name.
func (m *Model) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// FieldDBName maps a Prisma field name to its column name.
func (m *Model) FieldDBName(name string) string {
	if f, ok := m.Field(name); ok {
		return f.DBName
	}
	return name
}

var blockHeaderPattern = regexp.MustCompile(`^(model|enum|datasource|generator|view|type)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{\s*(\})?$`)

type line struct {
	text string
	no   int
}

// Parse reads a Prisma schema. Views, composite types and generator blocks
// are skipped.
func Parse(src string) (*Schema, error) {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	schema := &Schema{}

	for i := 0; i < len(lines); i++ {
		text := strings.TrimSpace(stripComment(lines[i]))
		if text == "" {
			continue
		}

		m := blockHeaderPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("line %d: unexpected %q", i+1, text)
		}
		kind, name, closed := m[1], m[2], m[3] != ""

		var body []line
		if !closed {
			start := i + 1
			end := -1
			for j := start; j < len(lines); j++ {
				t := strings.TrimSpace(stripComment(lines[j]))
				if t == "}" {
					end = j
					break
				}
				if t != "" {
					body = append(body, line{text: t, no: j + 1})
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("line %d: %s %s is not closed", i+1, kind, name)
			}
			i = end
		}

		switch kind {
		case "model":
			model, err := parseModel(name, body)
			if err != nil {
				return nil, err
			}
			schema.Models = append(schema.Models, *model)
		case "enum":
			enum, err := parseEnum(name, body)
			if err != nil {
				return nil, err
			}
			schema.Enums = append(schema.Enums, *enum)
		case "datasource":
			schema.Datasource = parseDatasource(name, body)
		}
	}

	return schema, nil
}

func parseModel(name string, body []line) (*Model, error) {
	model := &Model{Name: name, DBName: name}

	for _, l := range body {
		if strings.HasPrefix(l.text, "@@") {
			attrs, err := parseAttributes(l.text[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.no, err)
			}
			for _, a := range attrs {
				switch a.Name {
				case "map":
					if v, ok := a.positional(0); ok {
						model.DBName = unquote(v)
					}
				case "id":
					if v, ok := a.arg("fields", 0); ok {
						model.PrimaryKey = parseList(v)
					}
				case "ignore":
					model.Ignored = true
				}
			}
			continue
		}

		field, err := parseField(l.text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.no, err)
		}
		model.Fields = append(model.Fields, *field)
	}

	return model, nil
}

func parseField(text string) (*Field, error) {
	name, rest := splitToken(text)
	if rest == "" {
		return nil, fmt.Errorf("field %q has no type", name)
	}
	typeTok, attrText := splitToken(rest)

	field := &Field{Name: name, DBName: name}

	if strings.HasSuffix(typeTok, "?") {
		field.IsOptional = true
		typeTok = strings.TrimSuffix(typeTok, "?")
	}
	if strings.HasSuffix(typeTok, "[]") {
		field.IsList = true
		typeTok = strings.TrimSuffix(typeTok, "[]")
	}
	if strings.HasPrefix(typeTok, "Unsupported(") {
		field.IsUnsupported = true
		typeTok = "Unsupported"
	}
	field.Type = typeTok

	attrs, err := parseAttributes(attrText)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}

	for _, a := range attrs {
		switch {
		case a.Name == "id":
			field.IsID = true
		case a.Name == "unique":
			field.IsUnique = true
		case a.Name == "ignore":
			field.Ignored = true
		case a.Name == "map":
			if v, ok := a.positional(0); ok {
				field.DBName = unquote(v)
			}
		case a.Name == "default":
			if v, ok := a.positional(0); ok {
				field.Default = parseDefault(v)
			}
		case a.Name == "relation":
			rel := &Relation{}
			if v, ok := a.arg("name", 0); ok && isQuoted(v) {
				rel.Name = unquote(v)
			}
			if v, ok := a.arg("fields", -1); ok {
				rel.Fields = parseList(v)
			}
			if v, ok := a.arg("references", -1); ok {
				rel.References = parseList(v)
			}
			field.Relation = rel
		case strings.HasPrefix(a.Name, "db."):
			field.NativeType = strings.TrimPrefix(a.Name, "db.")
			if a.Raw != "" {
				field.NativeType += "(" + a.Raw + ")"
			}
		}
	}

	return field, nil
}

func parseEnum(name string, body []line) (*Enum, error) {
	enum := &Enum{Name: name, DBName: name}

	for _, l := range body {
		if strings.HasPrefix(l.text, "@@") {
			attrs, err := parseAttributes(l.text[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.no, err)
			}
			for _, a := range attrs {
				if v, ok := a.positional(0); ok && a.Name == "map" {
					enum.DBName = unquote(v)
				}
			}
			continue
		}

		value, attrText := splitToken(l.text)
		attrs, err := parseAttributes(attrText)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.no, err)
		}
		for _, a := range attrs {
			if v, ok := a.positional(0); ok && a.Name == "map" {
				value = unquote(v)
			}
		}
		enum.Values = append(enum.Values, value)
	}

	return enum, nil
}

func parseDatasource(name string, body []line) *Datasource {
	ds := &Datasource{Name: name}
	for _, l := range body {
		key, value, ok := strings.Cut(l.text, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "provider":
			ds.Provider = unquote(value)
		case "url":
			ds.URL = unquote(value)
		}
	}
	return ds
}

var funcCallPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\((.*)\)$`)

func parseDefault(raw string) *Default {
	raw = strings.TrimSpace(raw)

	if m := funcCallPattern.FindStringSubmatch(raw); m != nil {
		d := &Default{Func: m[1]}
		for _, a := range splitTopLevel(m[2], ',') {
			if a = strings.TrimSpace(a); a != "" {
				d.Args = append(d.Args, unquote(a))
			}
		}
		return d
	}

	switch {
	case isQuoted(raw):
		return &Default{Value: unquote(raw)}
	case raw == "true" || raw == "false":
		return &Default{Value: raw == "true"}
	}

	if looksNumeric(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return &Default{Value: n}
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return &Default{Value: f}
		}
	}

	// Enum member or list literal
	return &Default{Value: raw}
}

// looksNumeric keeps enum members such as NaN or Inf out of ParseFloat.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '-' || c == '.' || c >= '0' && c <= '9'
}

// attribute is a parsed @name(args) or @@name(args).
type attribute struct {
	Name string
	Raw  string // text between the parentheses
	Args []attrArg
}

type attrArg struct {
	Key   string // empty for positional arguments
	Value string
}

// positional returns the i-th unnamed argument.
func (a attribute) positional(i int) (string, bool) {
	n := 0
	for _, arg := range a.Args {
		if arg.Key != "" {
			continue
		}
		if n == i {
			return arg.Value, true
		}
		n++
	}
	return "", false
}

// arg returns the named argument, falling back to the positional one at
// index pos when pos >= 0.
func (a attribute) arg(key string, pos int) (string, bool) {
	for _, arg := range a.Args {
		if arg.Key == key {
			return arg.Value, true
		}
	}
	if pos >= 0 {
		return a.positional(pos)
	}
	return "", false
}

// parseAttributes splits "@id @default(autoincrement()) @map("x")".
func parseAttributes(s string) ([]attribute, error) {
	var attrs []attribute
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ' || c == '\t':
			i++
			continue
		case c != '@':
			return nil, fmt.Errorf("unexpected %q in attributes", s[i:])
		}
		i++

		start := i
		for i < len(s) && isNameChar(s[i]) {
			i++
		}
		attr := attribute{Name: s[start:i]}
		if attr.Name == "" {
			return nil, fmt.Errorf("empty attribute name")
		}

		if i < len(s) && s[i] == '(' {
			end, err := matchParen(s, i)
			if err != nil {
				return nil, fmt.Errorf("@%s: %w", attr.Name, err)
			}
			attr.Raw = s[i+1 : end]
			for _, part := range splitTopLevel(attr.Raw, ',') {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if key, value, ok := cutNamedArg(part); ok {
					attr.Args = append(attr.Args, attrArg{Key: key, Value: value})
				} else {
					attr.Args = append(attr.Args, attrArg{Value: part})
				}
			}
			i = end + 1
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

var namedArgPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+)$`)

func cutNamedArg(s string) (string, string, bool) {
	if isQuoted(s) {
		return "", "", false
	}
	m := namedArgPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

func isNameChar(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(s string, open int) (int, error) {
	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits on sep outside strings, parentheses and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// splitToken returns the first whitespace-delimited token (parentheses and
// strings kept intact) and the trimmed remainder.
func splitToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		case ' ', '\t':
			if depth == 0 {
				return s[:i], strings.TrimSpace(s[i+1:])
			}
		}
	}
	return s, ""
}

// stripComment removes // comments that are not inside a string.
func stripComment(s string) string {
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		} else if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			return s[:i]
		}
	}
	return s
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []string
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		// @@id([a(sort: Desc)]) carries per-field options
		if idx := strings.IndexByte(part, '('); idx > 0 {
			part = part[:idx]
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if !isQuoted(s) {
		return s
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s[1 : len(s)-1]
}
