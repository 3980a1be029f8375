package launchenv

import (
	"os"
	"strings"
)

const (
	// DefaultPlaceholder separates environment assignments from game arguments.
	DefaultPlaceholder = "%command%"
	// AppendMarker at the end of a key appends to the current value.
	AppendMarker = "+"
)

// Assignment is one entry of the child environment. Unset removes the
// variable from the inherited environment.
type Assignment struct {
	Key   string
	Value string
	Unset bool
}

// Environment is the result of a build: ordered assignments plus the
// positional argument string passed to the game.
type Environment struct {
	Env  []Assignment
	Args string
}

// Lookup returns the value assigned to key by this environment.
func (e Environment) Lookup(key string) (string, bool) {
	for _, a := range e.Env {
		if a.Key == key {
			if a.Unset {
				return "", false
			}
			return a.Value, true
		}
	}
	return "", false
}

// Environ layers the assignments over base (KEY=VALUE entries) and returns a
// new slice suitable for exec.Cmd.Env. base is not modified.
func (e Environment) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(e.Env))
	index := make(map[string]int, len(base)+len(e.Env))

	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if i, dup := index[key]; dup {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}

	for _, a := range e.Env {
		if i, ok := index[a.Key]; ok {
			if a.Unset {
				out[i] = ""
				delete(index, a.Key)
				continue
			}
			out[i] = a.Key + "=" + a.Value
			continue
		}
		if a.Unset {
			continue
		}
		index[a.Key] = len(out)
		out = append(out, a.Key+"="+a.Value)
	}

	result := out[:0]
	for _, kv := range out {
		if kv != "" {
			result = append(result, kv)
		}
	}
	return result
}

func (e *Environment) set(key, value string) {
	for i := range e.Env {
		if e.Env[i].Key == key {
			e.Env[i] = Assignment{Key: key, Value: value}
			return
		}
	}
	e.Env = append(e.Env, Assignment{Key: key, Value: value})
}

func (e *Environment) unset(key string) {
	for i := range e.Env {
		if e.Env[i].Key == key {
			e.Env[i] = Assignment{Key: key, Unset: true}
			return
		}
	}
	e.Env = append(e.Env, Assignment{Key: key, Unset: true})
}

// Builder turns the user's raw launch string into an Environment.
type Builder struct {
	placeholder string
	lookup      func(string) (string, bool)
	compat      Compat
}

type Option func(*Builder)

// WithPlaceholder overrides DefaultPlaceholder.
func WithPlaceholder(p string) Option {
	return func(b *Builder) {
		if p != "" {
			b.placeholder = p
		}
	}
}

// WithLookup overrides the source of current values (os.LookupEnv by default).
func WithLookup(fn func(string) (string, bool)) Option {
	return func(b *Builder) { b.lookup = fn }
}

func NewBuilder(compat Compat, opts ...Option) *Builder {
	b := &Builder{
		placeholder: DefaultPlaceholder,
		lookup:      os.LookupEnv,
		compat:      compat,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build splits raw on the first placeholder into an environment prefix and an
// argument suffix, then applies the enabled compatibility adjustments.
func (b *Builder) Build(raw string) Environment {
	envPart, argPart := b.split(strings.TrimSpace(raw))

	var env Environment
	env.Args = argPart

	for _, token := range strings.Fields(envPart) {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			continue
		}
		if strings.HasSuffix(key, AppendMarker) {
			key = strings.TrimSuffix(key, AppendMarker)
			if key == "" {
				continue
			}
			current, _ := b.current(env, key)
			value = current + value
		}
		env.set(key, value)
	}

	b.compat.apply(&env, func(key string) (string, bool) { return b.current(env, key) })

	return env
}

func (b *Builder) split(raw string) (string, string) {
	if before, after, found := strings.Cut(raw, b.placeholder); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	if strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "/") {
		return "", raw
	}
	return raw, ""
}

// current is the effective value of key: this build's assignment if any,
// otherwise the inherited one.
func (b *Builder) current(env Environment, key string) (string, bool) {
	for _, a := range env.Env {
		if a.Key == key {
			if a.Unset {
				return "", false
			}
			return a.Value, true
		}
	}
	if b.lookup == nil {
		return "", false
	}
	return b.lookup(key)
}
