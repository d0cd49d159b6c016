package main

import (
	"os"

	"gopkg.in/yaml.v3"

	sb "github.com/dropbox/sqlfluent/database/sqlbuilder"
	"github.com/dropbox/sqlfluent/errors"
)

// Statement types accepted in query files.
const (
	typeSelect      = "select"
	typeCount       = "count"
	typeInsert      = "insert"
	typeInsertBatch = "insert_batch"
	typeUpdate      = "update"
	typeUpdateBatch = "update_batch"
	typeDelete      = "delete"
)

// QueryFile is the top level document of a query file.
type QueryFile struct {
	Statements []Statement `yaml:"statements"`
}

// Statement describes one query.  Fields irrelevant to Type are ignored.
type Statement struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type"`
	Select   []string     `yaml:"select"`
	Distinct bool         `yaml:"distinct"`
	From     []string     `yaml:"from"`
	Join     []JoinClause `yaml:"join"`
	Where    []Predicate  `yaml:"where"`
	GroupBy  []string     `yaml:"group_by"`
	Having   []Predicate  `yaml:"having"`
	OrderBy  []string     `yaml:"order_by"`
	Limit    *int64       `yaml:"limit"`
	Offset   *int64       `yaml:"offset"`

	Set   Row    `yaml:"set"`
	Rows  []Row  `yaml:"rows"`
	Index string `yaml:"index"`
	Table string `yaml:"table"`

	Ignore      bool   `yaml:"ignore"`
	OnDuplicate string `yaml:"on_duplicate"`
}

type JoinClause struct {
	Table     string `yaml:"table"`
	On        string `yaml:"on"`
	Direction string `yaml:"direction"`
}

// Predicate is one WHERE / HAVING entry.  Exactly one of Condition, In,
// Like or Field (with Value) drives it.
type Predicate struct {
	Field     string        `yaml:"field"`
	Value     interface{}   `yaml:"value"`
	Condition string        `yaml:"condition"`
	Or        bool          `yaml:"or"`
	In        []interface{} `yaml:"in"`
	Not       bool          `yaml:"not"`
	Like      *string       `yaml:"like"`
	Side      string        `yaml:"side"`
}

// Row is a yaml mapping decoded in document order, so that column order in
// the generated INSERT matches the file.
type Row struct {
	Fields sb.FieldMap
}

func (r *Row) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Validationf(
			"line %d: expected a mapping of column to value", node.Line)
	}

	fields := make(sb.FieldMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return errors.Validationf(
				"line %d: column names must be scalars", keyNode.Line)
		}

		var value interface{}
		if err := valNode.Decode(&value); err != nil {
			return errors.Wrapf(err, "line %d: column %s", valNode.Line, keyNode.Value)
		}
		fields = append(fields, sb.F(keyNode.Value, value))
	}
	r.Fields = fields
	return nil
}

// ParseQueryFile decodes a query file's content.
func ParseQueryFile(content []byte) (*QueryFile, error) {
	file := &QueryFile{}
	if err := yaml.Unmarshal(content, file); err != nil {
		return nil, errors.Wrap(err, "Invalid query file")
	}
	for i, s := range file.Statements {
		if s.Name == "" {
			return nil, errors.Validationf("Statement %d has no name", i)
		}
		switch s.Type {
		case typeSelect, typeCount, typeInsert, typeInsertBatch,
			typeUpdate, typeUpdateBatch, typeDelete:
		default:
			return nil, errors.Validationf(
				"Statement %s has unknown type %q", s.Name, s.Type)
		}
	}
	return file, nil
}

// LoadQueryFile reads and decodes path.
func LoadQueryFile(path string) (*QueryFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read %s", path)
	}
	file, err := ParseQueryFile(content)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return file, nil
}
