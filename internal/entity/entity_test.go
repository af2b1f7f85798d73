package entity

import (
	"testing"
	"time"
)

func TestParseCanon(t *testing.T) {
	tests := []struct {
		in   string
		want Canon
	}{
		{"foo", Canon{Name: "foo"}},
		{"sys/foo", Canon{Base: "sys", Name: "foo"}},
		{"-/foo", Canon{Name: "foo"}},
		{"-/-/expiryexample", Canon{Name: "expiryexample"}},
		{"zone/sys/foo", Canon{Base: "sys", Name: "foo"}},
		{"-/sys/-", Canon{Base: "sys"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCanon(tt.in); got != tt.want {
				t.Errorf("ParseCanon(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNaming(t *testing.T) {
	plain := Canon{Name: "examplekv"}
	based := Canon{Base: "sys", Name: "user"}

	if got := TableName(plain); got != "examplekv" {
		t.Errorf("TableName(plain) = %q", got)
	}
	if got := TableName(based); got != "sys_user" {
		t.Errorf("TableName(based) = %q", got)
	}
	if got := Key(plain, "1"); got != "examplekv_1" {
		t.Errorf("Key(plain) = %q", got)
	}
	if got := Key(based, "abc"); got != "sys_user_abc" {
		t.Errorf("Key(based) = %q", got)
	}
	if got := Prefix(based); got != "sys_user_" {
		t.Errorf("Prefix(based) = %q", got)
	}
	if got := KeyPattern(plain); got != "examplekv_*" {
		t.Errorf("KeyPattern(plain) = %q", got)
	}
}

func TestIDString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{float64(1), "1"},
		{1.5, "1.5"},
		{42, "42"},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		if got := IDString(tt.in); got != tt.want {
			t.Errorf("IDString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"string", "x", KindScalar},
		{"int", 3, KindScalar},
		{"bool", true, KindScalar},
		{"nil", nil, KindScalar},
		{"time", now, KindDate},
		{"map", map[string]any{"a": 1.0}, KindObject},
		{"slice", []any{1.0, 2.0}, KindObject},
		{"typed slice", []string{"a"}, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in).Kind(); got != tt.want {
				t.Errorf("Classify(%v).Kind() = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScalarNormalizesNumbers(t *testing.T) {
	if got := Scalar(111).Interface(); got != float64(111) {
		t.Errorf("Scalar(111) = %#v, want float64(111)", got)
	}
	if !Scalar(111).Equal(111.0) {
		t.Error("Scalar(111) should equal 111.0")
	}
	if Scalar(111).Equal("111") {
		t.Error("Scalar(111) should not equal \"111\"")
	}
}

func TestValueEqual_Date(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := Date(ts)

	if !v.Equal(ts.In(time.FixedZone("x", 3600))) {
		t.Error("same instant in another zone should be equal")
	}
	if !v.Equal("2024-03-01T12:00:00Z") {
		t.Error("RFC3339 string of same instant should be equal")
	}
	if v.Equal(ts.Add(time.Second)) {
		t.Error("different instant should not be equal")
	}
}

func TestFromMap(t *testing.T) {
	e := FromMap(Canon{Name: "foo"}, map[string]any{
		"id":   1,
		"data": 111,
		"tags": []any{"a"},
	})

	if e.ID != "1" {
		t.Errorf("ID = %q, want %q", e.ID, "1")
	}
	if _, ok := e.Get("id"); ok {
		t.Error("id should not be stored as a field")
	}
	if v, _ := e.Get("tags"); v.Kind() != KindObject {
		t.Errorf("tags kind = %q, want object", v.Kind())
	}
	if got := e.FieldNames(); len(got) != 2 || got[0] != "data" || got[1] != "tags" {
		t.Errorf("FieldNames() = %v", got)
	}
}
