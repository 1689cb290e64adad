package utils

import (
	"reflect"
	"strings"
)

// NormalizeDTO trims whitespace on every string field of a pointer-to-struct
// DTO, so "  a@b.com " and "a@b.com" hit the same unique constraints.
func NormalizeDTO(dto any) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr {
		return
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
