package jsontree

import (
	"testing"
)

func TestGetNested(t *testing.T) {
	v, err := Parse([]byte(`{"data":{"resultList":[{"title":"iphone","price":3500}]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := v.Get("data", "resultList", 0, "title").Str(""); got != "iphone" {
		t.Fatalf("title = %q, want iphone", got)
	}
	if got := v.Get("data", "resultList", 0, "price").Int(-1); got != 3500 {
		t.Fatalf("price = %d, want 3500", got)
	}
}

func TestGetMissingReturnsDefault(t *testing.T) {
	v, err := Parse([]byte(`{"data":{}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := v.Get("data", "resultList", 3, "title").Str("fallback"); got != "fallback" {
		t.Fatalf("missing path = %q, want fallback", got)
	}
	if v.Get("data", "nope").Exists() {
		t.Fatal("missing key should not exist")
	}
	// 类型不符：对标量继续下钻
	if v.Get("data", "x", "y", 0, "z").Exists() {
		t.Fatal("drilling into scalar should not exist")
	}
}

func TestNullIsAbsent(t *testing.T) {
	v, err := Parse([]byte(`{"a":null,"b":[null]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Get("a").Exists() {
		t.Fatal("null value should be absent")
	}
	if v.Get("b", 0).Exists() {
		t.Fatal("null array element should be absent")
	}
}

func TestStrOrNumber(t *testing.T) {
	v, err := Parse([]byte(`{"count":42,"label":"hot","frac":3.5}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := v.Get("count").StrOrNumber("N/A"); got != "42" {
		t.Fatalf("count = %q, want 42", got)
	}
	if got := v.Get("label").StrOrNumber("N/A"); got != "hot" {
		t.Fatalf("label = %q, want hot", got)
	}
	if got := v.Get("frac").StrOrNumber("N/A"); got != "3.5" {
		t.Fatalf("frac = %q, want 3.5", got)
	}
	if got := v.Get("missing").StrOrNumber("N/A"); got != "N/A" {
		t.Fatalf("missing = %q, want N/A", got)
	}
}

func TestSlice(t *testing.T) {
	v := Of(map[string]any{"tags": []any{"a", "b"}})
	tags := v.Get("tags").Slice()
	if len(tags) != 2 {
		t.Fatalf("len(tags) = %d, want 2", len(tags))
	}
	if tags[1].Str("") != "b" {
		t.Fatalf("tags[1] = %q, want b", tags[1].Str(""))
	}
	if got := v.Get("none").Slice(); got != nil {
		t.Fatalf("missing slice = %v, want nil", got)
	}
}
