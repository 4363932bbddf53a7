package jsonx

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "whole string",
			raw:  ` {"category":"project_related","confidence":0.8} `,
			want: map[string]any{"category": "project_related", "confidence": 0.8},
		},
		{
			name: "markdown fence",
			raw:  "```json\n{\"name\":\"山田\",\"skills\":[\"Java\"]}\n```",
			want: map[string]any{"name": "山田", "skills": []any{"Java"}},
		},
		{
			name: "prose around object",
			raw:  "以下が結果です。\n{\"title\":\"在庫管理\"}\nご確認ください。",
			want: map[string]any{"title": "在庫管理"},
		},
		{
			name: "stray braces before the object",
			raw:  "Use the {placeholder} format: {\"age\": 27}",
			want: map[string]any{"age": float64(27)},
		},
		{
			name: "deep nesting needs the depth scan",
			raw:  `result => {"a":{"b":{"c":{"d":1}}},"note":"brace } in string"} trailing`,
			want: map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": float64(1)}}}, "note": "brace } in string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Extract(tt.raw)
			if !ok {
				t.Fatalf("expected an object from %q", tt.raw)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"no json here",
		`["array", "is", "not", "an", "object"]`,
		`{"unterminated": true`,
		"{not json}",
	} {
		if got, ok := Extract(raw); ok {
			t.Fatalf("expected failure for %q, got %#v", raw, got)
		}
	}
}

func TestExtractRecoversEmbeddedObjectRegardlessOfNoise(t *testing.T) {
	t.Parallel()

	object := `{"title":"基幹システム","skills":["Go","AWS"],"budget":{"min":60,"max":70},"remote":true}`
	want, ok := Extract(object)
	if !ok {
		t.Fatalf("expected the bare object to parse")
	}

	noise := []string{"", "Sure! ", "}{ ", "結果：\n```\n", "a {b} c ", "\"quoted\" "}
	for _, prefix := range noise {
		for _, suffix := range noise {
			got, ok := Extract(prefix + object + suffix)
			if !ok || !reflect.DeepEqual(got, want) {
				t.Fatalf("prefix %q suffix %q: got %#v", prefix, suffix, got)
			}
		}
	}
}
