// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML fragments over a base configuration. Fragments are
// applied in order; later fragments win.
type Builder struct {
	fragments []string
	base      *Config
}

// Use sets the base configuration. DefaultConfig is used when unset.
func (b *Builder) Use(c *Config) *Builder {
	b.base = c
	return b
}

// Merge queues YAML fragments
func (b *Builder) Merge(fragments ...string) *Builder {
	b.fragments = append(b.fragments, fragments...)
	return b
}

// Build merges all queued fragments and validates the result
func (b *Builder) Build() (*Config, error) {
	cfg := b.base
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var errs error
	for _, f := range b.fragments {
		overlay := &Config{}
		if err := yaml.Unmarshal([]byte(f), overlay); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to parse YAML: %w, yaml: %s", err, f))
			continue
		}
		if err := mergo.Merge(cfg, overlay, mergo.WithOverride, mergo.WithTransformers(optionalTransformer{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to merge config: %w, yaml: %s", err, f))
		}
	}
	if errs != nil {
		return nil, errs
	}

	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// optionalTransformer lets an explicit `false` in a fragment override a
// `true` in the base; mergo would otherwise treat the pointee as empty.
type optionalTransformer struct{}

func (optionalTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
