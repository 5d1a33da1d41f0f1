package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

var (
	ErrRepeatedColumn = errors.New("found repeated column name")
	ErrColumnMismatch = errors.New("column names do not match data")
)

// Params maps parameter names to arrays, preserving insertion order.
type Params struct {
	names  []string
	values map[string]*ndarray.Array
}

func NewParams() *Params {
	return &Params{values: map[string]*ndarray.Array{}}
}

// Add inserts a new parameter. Names are never merged.
func (p *Params) Add(name string, value *ndarray.Array) error {
	if _, exists := p.values[name]; exists {
		return fmt.Errorf("%w: %s", ErrRepeatedColumn, name)
	}
	p.names = append(p.names, name)
	p.values[name] = value
	return nil
}

// Replace overwrites the value of an existing parameter.
func (p *Params) Replace(name string, value *ndarray.Array) {
	if _, exists := p.values[name]; !exists {
		p.names = append(p.names, name)
	}
	p.values[name] = value
}

func (p *Params) Get(name string) (*ndarray.Array, bool) {
	value, ok := p.values[name]
	return value, ok
}

// Names returns parameter names in insertion order.
func (p *Params) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Params) Len() int {
	return len(p.names)
}

func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.values[name])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
