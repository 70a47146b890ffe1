// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML documents over a base configuration. Later documents
// override earlier ones; fields a document leaves out keep their value.
type Builder struct {
	yamls  []string
	errs   error
	Config *Config
}

// Use sets the base configuration
func (b *Builder) Use(c *Config) *Builder {
	b.Config = c
	return b
}

// Merge adds YAML documents to be merged into the configuration
func (b *Builder) Merge(yamls ...string) *Builder {
	b.yamls = append(b.yamls, yamls...)
	return b
}

// MergeFiles adds the content of each file; read errors surface in Build
func (b *Builder) MergeFiles(paths ...string) *Builder {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			b.errs = errors.Join(b.errs, fmt.Errorf("failed to read config file: %w", err))
			continue
		}
		b.yamls = append(b.yamls, string(data))
	}
	return b
}

// Build merges every document into the base configuration, DefaultConfig
// when none was set. The result is sanitized but not validated.
func (b *Builder) Build() (*Config, error) {
	if b.Config == nil {
		b.Config = DefaultConfig()
	}

	errs := b.errs
	for _, y := range b.yamls {
		layer := &Config{}
		if err := yaml.Unmarshal([]byte(y), layer); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to parse YAML: %w", err))
			continue
		}

		if err := mergo.Merge(b.Config, layer, mergo.WithOverride, mergo.WithTransformers(boolPtrTransformer{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to merge config: %w", err))
		}
	}

	if errs != nil {
		return nil, errs
	}
	b.Config.sanitize()
	return b.Config, nil
}

// boolPtrTransformer lets an explicit false in a layer override true
type boolPtrTransformer struct{}

func (boolPtrTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if src.IsNil() {
			return nil
		}
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
