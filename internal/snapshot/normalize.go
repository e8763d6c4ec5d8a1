package snapshot

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// CycleSentinel replaces values that reference themselves, directly or
// transitively.
const CycleSentinel = "[cycle]"

// maxSafeInteger mirrors the largest integer the sink's JSON layer can
// hold without precision loss; larger identifiers are stored as strings.
const maxSafeInteger = 1 << 53

// Normalize converts an arbitrary payload into a JSON-safe object.
// The result is always a map: non-object payloads (arrays, scalars,
// errors, nil) are wrapped under a "value" key. Non-finite numbers and
// oversized integers become stable strings, non-serializable values are
// replaced with their type name, and reference cycles are replaced with
// [CycleSentinel] instead of recursing forever.
//
// Normalize is idempotent: applying it to its own output returns an
// equal structure.
func Normalize(payload any) map[string]any {
	v := normalizeValue(payload, map[uintptr]bool{})
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": v}
}

func normalizeValue(v any, seen map[uintptr]bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case float64:
		return normalizeFloat(x)
	case float32:
		return normalizeFloat(float64(x))
	case int:
		return normalizeInt(int64(x))
	case int64:
		return normalizeInt(x)
	case uint64:
		if x > maxSafeInteger {
			return strconv.FormatUint(x, 10)
		}
		return float64(x)
	case error:
		return x.Error()
	case map[string]any:
		return normalizeMap(reflect.ValueOf(x), seen)
	case []any:
		return normalizeSlice(reflect.ValueOf(x), seen)
	}
	return normalizeReflect(reflect.ValueOf(v), seen)
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func normalizeInt(n int64) any {
	if n > maxSafeInteger || n < -maxSafeInteger {
		return strconv.FormatInt(n, 10)
	}
	return float64(n)
}

func normalizeReflect(rv reflect.Value, seen map[uintptr]bool) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Pointer {
			p := rv.Pointer()
			if seen[p] {
				return CycleSentinel
			}
			seen[p] = true
			defer delete(seen, p)
		}
		return normalizeValue(rv.Elem().Interface(), seen)
	case reflect.Map:
		return normalizeMap(rv, seen)
	case reflect.Slice:
		return normalizeSlice(rv, seen)
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeValue(rv.Index(i).Interface(), seen)
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !rt.Field(i).IsExported() {
				continue
			}
			out[rt.Field(i).Name] = normalizeValue(rv.Field(i).Interface(), seen)
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return normalizeInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > maxSafeInteger {
			return strconv.FormatUint(u, 10)
		}
		return float64(u)
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		// funcs, chans, complex and anything else the sink can't hold
		return fmt.Sprintf("[%s]", rv.Type().String())
	}
}

func normalizeMap(rv reflect.Value, seen map[uintptr]bool) any {
	if rv.IsNil() {
		return nil
	}
	p := rv.Pointer()
	if seen[p] {
		return CycleSentinel
	}
	seen[p] = true
	defer delete(seen, p)

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := fmt.Sprint(iter.Key().Interface())
		out[key] = normalizeValue(iter.Value().Interface(), seen)
	}
	return out
}

func normalizeSlice(rv reflect.Value, seen map[uintptr]bool) any {
	if rv.IsNil() {
		return []any{}
	}
	p := rv.Pointer()
	if seen[p] {
		return CycleSentinel
	}
	seen[p] = true
	defer delete(seen, p)

	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = normalizeValue(rv.Index(i).Interface(), seen)
	}
	return out
}
