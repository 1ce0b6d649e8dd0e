// Package opt provides an explicit present/absent value for optional inputs
// such as configuration settings and environment variables.
package opt

import (
	"os"
	"strings"
)

// Value holds either a value of type T or nothing.
type Value[T any] struct {
	v  T
	ok bool
}

// Some returns a present value.
func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

// None returns an absent value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the value and whether it is present.
func (o Value[T]) Get() (T, bool) {
	return o.v, o.ok
}

// IsSome reports whether the value is present.
func (o Value[T]) IsSome() bool {
	return o.ok
}

// Or returns the held value, or fallback when absent.
func (o Value[T]) Or(fallback T) T {
	if o.ok {
		return o.v
	}
	return fallback
}

// NonBlank treats empty and whitespace-only strings as absent.
func NonBlank(s string) Value[string] {
	s = strings.TrimSpace(s)
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Env looks up an environment variable; unset and blank are both absent.
func Env(key string) Value[string] {
	v, ok := os.LookupEnv(key)
	if !ok {
		return None[string]()
	}
	return NonBlank(v)
}

// First returns the first present value, or None.
func First[T any](values ...Value[T]) Value[T] {
	for _, v := range values {
		if v.ok {
			return v
		}
	}
	return None[T]()
}
