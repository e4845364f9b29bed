// Package descriptor loads per-recipient JSON descriptors as ordered
// key/value sequences.
package descriptor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/shineum/notify-mailer/internal/email"
)

// Reserved descriptor keys.
const (
	KeyEmail = "email"
	KeyFlag  = "flag"
)

var (
	errInvalidJSON = errors.New("invalid JSON")
	errInvalidUTF8 = errors.New("invalid UTF-8")
	errMultiline   = errors.New("must not contain line breaks")
	errNotObject   = errors.New("top-level value is not a JSON object")
	errMissing     = errors.New("is missing")
	errNotString   = errors.New("must be a string")
	errEmpty       = errors.New("must not be empty")
)

// Field is one key/value pair of a descriptor.
type Field struct {
	Key   string
	Value string
}

// Descriptor is one recipient record. Fields keep the order in which the
// keys appear in the JSON object.
type Descriptor struct {
	// File is the path the descriptor was loaded from, empty for in-memory data.
	File   string
	Fields []Field

	// strict records keys whose JSON value was a string.
	strict map[string]bool
}

// New builds a descriptor from already ordered fields. Every value is
// treated as a JSON string.
func New(fields ...Field) *Descriptor {
	d := &Descriptor{strict: make(map[string]bool, len(fields))}
	for _, f := range fields {
		d.set(f.Key, f.Value, true)
	}
	return d
}

// Parse decodes a JSON object into a descriptor. Duplicate keys keep the
// position of their first occurrence and the value of their last. Non-string
// values are rendered the way the mail body has always shown them: numbers
// keep their JSON text, booleans become True/False and null becomes None.
func Parse(data []byte) (*Descriptor, error) {
	if !utf8.Valid(data) {
		return nil, &email.DataError{Err: errInvalidUTF8}
	}
	if !gjson.ValidBytes(data) {
		return nil, &email.DataError{Err: errInvalidJSON}
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &email.DataError{Err: errNotObject}
	}

	d := &Descriptor{strict: make(map[string]bool)}
	root.ForEach(func(key, value gjson.Result) bool {
		d.set(key.String(), render(value), value.Type == gjson.String)
		return true
	})

	return d, nil
}

// Load reads and parses the descriptor stored at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &email.DataError{File: path, Err: err}
	}

	d, err := Parse(data)
	if err != nil {
		var dataErr *email.DataError
		if errors.As(err, &dataErr) {
			dataErr.File = path
			return nil, dataErr
		}
		return nil, &email.DataError{File: path, Err: err}
	}
	d.File = path

	return d, nil
}

// Get returns the value stored under key.
func (d *Descriptor) Get(key string) (string, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Email returns the destination address.
func (d *Descriptor) Email() (string, error) {
	return d.required(KeyEmail)
}

// Flag returns the value selecting the body template.
func (d *Descriptor) Flag() (string, error) {
	return d.required(KeyFlag)
}

// Extra returns every field except email and flag, in descriptor order.
func (d *Descriptor) Extra() []Field {
	out := make([]Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Key == KeyEmail || f.Key == KeyFlag {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (d *Descriptor) required(key string) (string, error) {
	v, ok := d.Get(key)
	if !ok {
		return "", &email.DataError{File: d.File, Field: key, Err: errMissing}
	}
	if !d.strict[key] {
		return "", &email.DataError{File: d.File, Field: key, Err: errNotString}
	}
	if strings.TrimSpace(v) == "" {
		return "", &email.DataError{File: d.File, Field: key, Err: errEmpty}
	}
	if strings.ContainsAny(v, "\r\n") {
		return "", &email.DataError{File: d.File, Field: key, Err: errMultiline}
	}
	return v, nil
}

// CheckLine reports a *email.DataError when f cannot be rendered on a
// single line.
func (d *Descriptor) CheckLine(f Field) error {
	if strings.ContainsAny(f.Key, "\r\n") || strings.ContainsAny(f.Value, "\r\n") {
		return &email.DataError{File: d.File, Field: f.Key, Err: errMultiline}
	}
	return nil
}

func render(v gjson.Result) string {
	switch v.Type {
	case gjson.Number, gjson.JSON:
		return v.Raw
	case gjson.True:
		return "True"
	case gjson.False:
		return "False"
	case gjson.Null:
		return "None"
	default:
		return v.String()
	}
}

func (d *Descriptor) set(key, value string, isString bool) {
	d.strict[key] = isString
	for i := range d.Fields {
		if d.Fields[i].Key == key {
			d.Fields[i].Value = value
			return
		}
	}
	d.Fields = append(d.Fields, Field{Key: key, Value: value})
}

// Discover expands paths into descriptor files. Regular files are returned
// as given; directories contribute their *.json entries sorted by name.
func Discover(paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
				files = append(files, m)
			}
		}
	}
	return files, nil
}
