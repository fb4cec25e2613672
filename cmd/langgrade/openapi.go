package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"langgrade/pkg/domain"
)

type openAPIDoc struct {
	Paths      map[string]any `yaml:"paths"`
	Components struct {
		Schemas    map[string]schema `yaml:"schemas"`
		Responses  map[string]any    `yaml:"responses"`
		Parameters map[string]any    `yaml:"parameters"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// Schemas whose properties must match the JSON fields of a Go type. Extra
// lists properties the handlers add on top of the type.
var typedSchemas = []struct {
	name  string
	value any
	extra []string
}{
	{name: "Book", value: domain.GradedBook{}, extra: []string{"url", "jobId"}},
	{name: "Analysis", value: domain.Analysis{}},
	{name: "ArticleLevel", value: domain.ArticleLevel{}},
}

func newCheckOpenAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-openapi <openapi.yaml>",
		Short: "Validate the API description against the error envelope and domain types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDoc(args[0])
			if err != nil {
				return err
			}
			if err := checkDoc(doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OpenAPI consistency check passed.")
			return nil
		},
	}
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) error {
	if len(doc.Paths) == 0 {
		return errors.New("paths missing")
	}
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errSchema); err != nil {
		return err
	}
	for _, ts := range typedSchemas {
		s, ok := doc.Components.Schemas[ts.name]
		if !ok {
			// Optional: only described schemas are compared.
			continue
		}
		want := append(jsonFields(reflect.TypeOf(ts.value)), ts.extra...)
		if err := ensureSameProperties(ts.name, s, want); err != nil {
			return err
		}
	}
	return checkRefs(doc)
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func ensureSameProperties(name string, s schema, want []string) error {
	got := make([]string, 0, len(s.Properties))
	for prop := range s.Properties {
		got = append(got, prop)
	}
	sort.Strings(got)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("%s properties mismatch: schema %v vs type %v", name, got, want)
	}
	return nil
}

// jsonFields lists the JSON names of t's exported fields, following
// embedded structs.
func jsonFields(t reflect.Type) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			out = append(out, jsonFields(f.Type)...)
			continue
		}
		if name == "" {
			name = f.Name
		}
		out = append(out, name)
	}
	return out
}

// checkRefs walks paths and component schemas and fails on the first local
// $ref that points nowhere.
func checkRefs(doc openAPIDoc) error {
	var refs []string
	collectRefs(doc.Paths, &refs)
	collectRefs(doc.Components.Responses, &refs)
	collectRefs(doc.Components.Parameters, &refs)
	for _, s := range doc.Components.Schemas {
		collectSchemaRefs(s, &refs)
	}
	for _, ref := range refs {
		section, name, ok := splitRef(ref)
		if !ok {
			return fmt.Errorf("unsupported $ref %q", ref)
		}
		var found bool
		switch section {
		case "schemas":
			_, found = doc.Components.Schemas[name]
		case "responses":
			_, found = doc.Components.Responses[name]
		case "parameters":
			_, found = doc.Components.Parameters[name]
		}
		if !found {
			return fmt.Errorf("unresolved $ref %q", ref)
		}
	}
	return nil
}

func collectRefs(node any, refs *[]string) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if ref, ok := child.(string); ok && key == "$ref" {
				*refs = append(*refs, ref)
				continue
			}
			collectRefs(child, refs)
		}
	case []any:
		for _, child := range v {
			collectRefs(child, refs)
		}
	}
}

func collectSchemaRefs(s schema, refs *[]string) {
	if s.Ref != "" {
		*refs = append(*refs, s.Ref)
	}
	if s.Items != nil {
		collectSchemaRefs(*s.Items, refs)
	}
	for _, p := range s.Properties {
		collectSchemaRefs(p, refs)
	}
}

func splitRef(ref string) (section, name string, ok bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(ref), "#/components/")
	if !ok {
		return "", "", false
	}
	section, name, ok = strings.Cut(rest, "/")
	return section, name, ok && name != ""
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
