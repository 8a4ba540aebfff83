// Package validate checks request structs against `validate` tags.
//
// Rules (comma-separated):
//
//	required        not zero or blank
//	nullable        skip the remaining rules when empty
//	min=N / max=N   numbers and decimals: value bounds; strings: rune length
//	gt=N / gte=N    number or decimal strictly above / at least N
//	lte=N           number or decimal at most N
//	scale=N         decimal with at most N fractional digits
//	in=a,b,c        one of the listed values
//	alpha_dash      letters, digits, hyphen, underscore
//	uuid            canonical UUID
//	regex=pattern   matches pattern (no commas)
//	dive            validate each element of a slice of structs
//
// Decimal fields are github.com/shopspring/decimal values and compare
// exactly.
//
//	type ReceiveInput struct {
//	    ProductID string          `json:"product_id" validate:"required,alpha_dash,max=64"`
//	    Quantity  decimal.Decimal `json:"quantity"   validate:"required,gt=0,scale=3"`
//	}
//
// Errors are keyed by JSON path, e.g. "lines.1.quantity".
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Struct validates v's tagged fields. An empty map means v is valid.
func Struct(v any) map[string]string {
	errs := make(map[string]string)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return errs
	}
	walk(rv, "", errs)
	return errs
}

func HasErrors(errs map[string]string) bool { return len(errs) > 0 }

func walk(rv reflect.Value, prefix string, errs map[string]string) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}

		name := prefix + jsonFieldName(field)
		value := rv.Field(i)
		rules := splitRules(tag)

		if hasRule(rules, "nullable") && isEmpty(value) {
			continue
		}

		for _, rule := range rules {
			switch rule {
			case "nullable":
				continue
			case "dive":
				dive(value, name, errs)
				continue
			}
			if msg := applyRule(rule, name, value); msg != "" {
				errs[name] = msg
				break
			}
		}
	}
}

func dive(v reflect.Value, name string, errs map[string]string) {
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return
	}
	for i := 0; i < v.Len(); i++ {
		el := v.Index(i)
		if el.Kind() == reflect.Ptr {
			if el.IsNil() {
				continue
			}
			el = el.Elem()
		}
		if el.Kind() == reflect.Struct {
			walk(el, fmt.Sprintf("%s.%d.", name, i), errs)
		}
	}
}

// ─── Rules ────────────────────────────────────────────────────────────────────

func applyRule(rule, field string, v reflect.Value) string {
	key, param, _ := strings.Cut(rule, "=")

	switch key {
	case "required":
		if isEmpty(v) {
			return fmt.Sprintf("The %s field is required.", field)
		}

	case "min", "max", "gt", "gte", "lte":
		return bound(key, param, field, v)

	case "scale":
		d, ok := asDecimal(v)
		n, err := decimal.NewFromString(param)
		if ok && err == nil && -d.Exponent() > int32(n.IntPart()) && !d.Equal(d.Truncate(int32(n.IntPart()))) {
			return fmt.Sprintf("The %s may have at most %s decimal places.", field, param)
		}

	case "in":
		raw := text(v)
		for _, a := range strings.Split(param, ",") {
			if raw == strings.TrimSpace(a) {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", field)

	case "alpha_dash":
		for _, c := range text(v) {
			if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != '_' {
				return fmt.Sprintf("The %s field may only contain letters, numbers, dashes, and underscores.", field)
			}
		}

	case "uuid":
		if _, err := uuid.Parse(text(v)); err != nil {
			return fmt.Sprintf("The %s must be a valid UUID.", field)
		}

	case "regex":
		re, err := regexp.Compile(param)
		if err != nil {
			return fmt.Sprintf("The %s has an invalid validation pattern.", field)
		}
		if !re.MatchString(text(v)) {
			return fmt.Sprintf("The %s format is invalid.", field)
		}
	}

	return ""
}

func bound(key, param, field string, v reflect.Value) string {
	limit, err := decimal.NewFromString(strings.TrimSpace(param))
	if err != nil {
		return fmt.Sprintf("The %s has an invalid validation rule.", field)
	}

	n, numeric := asDecimal(v)
	if !numeric {
		// Strings, slices: compare length.
		var l int
		if v.Kind() == reflect.String {
			l = len([]rune(v.String()))
		} else if v.Kind() == reflect.Slice || v.Kind() == reflect.Array || v.Kind() == reflect.Map {
			l = v.Len()
		} else {
			return ""
		}
		n = decimal.NewFromInt(int64(l))
		switch key {
		case "min":
			if n.LessThan(limit) {
				return fmt.Sprintf("The %s must be at least %s characters.", field, param)
			}
			return ""
		case "max":
			if n.GreaterThan(limit) {
				return fmt.Sprintf("The %s must not exceed %s characters.", field, param)
			}
			return ""
		}
	}

	switch key {
	case "min", "gte":
		if n.LessThan(limit) {
			return fmt.Sprintf("The %s must be at least %s.", field, param)
		}
	case "max", "lte":
		if n.GreaterThan(limit) {
			return fmt.Sprintf("The %s must not be greater than %s.", field, param)
		}
	case "gt":
		if n.LessThanOrEqual(limit) {
			return fmt.Sprintf("The %s must be greater than %s.", field, param)
		}
	}
	return ""
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func asDecimal(v reflect.Value) (decimal.Decimal, bool) {
	if v.Type() == decimalType {
		return v.Interface().(decimal.Decimal), true
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decimal.NewFromUint64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return decimal.NewFromFloat(v.Float()), true
	}
	return decimal.Decimal{}, false
}

func text(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

func isEmpty(v reflect.Value) bool {
	if v.Type() == decimalType {
		return v.Interface().(decimal.Decimal).IsZero()
	}
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Bool:
		return false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Struct:
		return v.IsZero()
	}
	return false
}

func jsonFieldName(f reflect.StructField) string {
	name := f.Tag.Get("json")
	if name == "" || name == "-" {
		return strings.ToLower(f.Name)
	}
	if idx := strings.Index(name, ","); idx != -1 {
		name = name[:idx]
	}
	return name
}

// splitRules splits a tag on commas, except inside an in= list:
// "required,in=cash,card,max=10" → ["required", "in=cash,card", "max=10"].
func splitRules(tag string) []string {
	var rules []string
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n := len(rules); n > 0 && strings.HasPrefix(rules[n-1], "in=") && !isRule(part) {
			rules[n-1] += "," + part
			continue
		}
		rules = append(rules, part)
	}
	return rules
}

var ruleNames = map[string]bool{
	"required": true, "nullable": true, "dive": true, "alpha_dash": true, "uuid": true,
	"min": true, "max": true, "gt": true, "gte": true, "lte": true, "scale": true, "in": true, "regex": true,
}

func isRule(s string) bool {
	key, _, _ := strings.Cut(s, "=")
	return ruleNames[key]
}

func hasRule(rules []string, target string) bool {
	for _, r := range rules {
		if r == target {
			return true
		}
	}
	return false
}
