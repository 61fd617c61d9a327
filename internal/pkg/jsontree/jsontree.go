// Package jsontree 提供对未知结构 JSON 的安全链式访问。
//
// 上游接口的返回结构没有文档且经常变动，任何一层都可能缺失或类型不符。
// Value 在访问失败时返回调用方提供的默认值，而不是 panic 或报错。
package jsontree

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value 包装一个泛型 JSON 树节点。零值表示"不存在"。
type Value struct {
	data  any
	valid bool
}

// Parse 解析 JSON 字节流为 Value。
func Parse(b []byte) (Value, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Value{}, fmt.Errorf("parse json: %w", err)
	}
	return Value{data: v, valid: true}, nil
}

// Of 包装一个已解码的值（map[string]any / []any / 标量）。
func Of(v any) Value {
	if v == nil {
		return Value{}
	}
	return Value{data: v, valid: true}
}

// Get 按 key 链逐层下钻。string 作为对象键，int 作为数组下标。
// 任何一层缺失、类型不符或下标越界都返回"不存在"的 Value。
func (v Value) Get(keys ...any) Value {
	cur := v
	for _, key := range keys {
		if !cur.valid {
			return Value{}
		}
		switch k := key.(type) {
		case string:
			m, ok := cur.data.(map[string]any)
			if !ok {
				return Value{}
			}
			next, ok := m[k]
			if !ok || next == nil {
				return Value{}
			}
			cur = Value{data: next, valid: true}
		case int:
			s, ok := cur.data.([]any)
			if !ok || k < 0 || k >= len(s) {
				return Value{}
			}
			if s[k] == nil {
				return Value{}
			}
			cur = Value{data: s[k], valid: true}
		default:
			return Value{}
		}
	}
	return cur
}

// Exists 报告节点是否存在且非 null。
func (v Value) Exists() bool {
	return v.valid
}

// Raw 返回底层值，节点不存在时返回 nil。
func (v Value) Raw() any {
	if !v.valid {
		return nil
	}
	return v.data
}

// Str 返回字符串值，不存在或类型不符时返回 def。
func (v Value) Str(def string) string {
	if !v.valid {
		return def
	}
	if s, ok := v.data.(string); ok {
		return s
	}
	return def
}

// StrOrNumber 返回字符串值；数字节点会被格式化为字符串。
// 上游的计数类字段在不同版本里时而是数字时而是字符串。
func (v Value) StrOrNumber(def string) string {
	if !v.valid {
		return def
	}
	switch t := v.data.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return def
}

// Int 返回整数值，不存在或类型不符时返回 def。
func (v Value) Int(def int64) int64 {
	if !v.valid {
		return def
	}
	switch t := v.data.(type) {
	case float64:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i
		}
	}
	return def
}

// Float 返回浮点值，不存在或类型不符时返回 def。
func (v Value) Float(def float64) float64 {
	if !v.valid {
		return def
	}
	switch t := v.data.(type) {
	case float64:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool 返回布尔值，不存在或类型不符时返回 def。
func (v Value) Bool(def bool) bool {
	if !v.valid {
		return def
	}
	if b, ok := v.data.(bool); ok {
		return b
	}
	return def
}

// Slice 返回数组元素列表，非数组节点返回 nil。
func (v Value) Slice() []Value {
	if !v.valid {
		return nil
	}
	s, ok := v.data.([]any)
	if !ok {
		return nil
	}
	out := make([]Value, 0, len(s))
	for _, e := range s {
		out = append(out, Of(e))
	}
	return out
}

// Keys 返回对象的所有键，非对象节点返回 nil。
func (v Value) Keys() []string {
	if !v.valid {
		return nil
	}
	m, ok := v.data.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
