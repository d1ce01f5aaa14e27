// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

type (
	// Registry is the owning collection of validated artifacts, keyed by
	// id. It is safe for concurrent readers while a reconfiguration or a
	// registration call mutates it.
	Registry struct {
		mu        sync.RWMutex
		artifacts map[string]Artifact
		logger    *log.Logger
	}

	// RegistryOption configures a Registry during construction.
	RegistryOption func(*Registry)
)

// WithLogger overrides the default package logger.
func WithLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry.
func New(opts ...RegistryOption) *Registry {
	r := &Registry{
		artifacts: make(map[string]Artifact),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and stores one artifact, replacing any previous
// artifact with the same id.
func (r *Registry) Register(a Artifact) error {
	if err := a.Validate(); err != nil {
		r.logger.Warn("rejecting artifact registration", "err", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[a.ID] = a
	return nil
}

// RegisterFromMap is the boundary for loosely-typed registration
// payloads (programmatic registration by other components). Required
// keys: "id", "repo", "file_pattern". Optional: "enabled" (bool,
// default true), "min_version", "channel", "required" (bool). Anything
// failing required-field or type checks is rejected and logged; no
// untyped map travels past this function.
func (r *Registry) RegisterFromMap(data map[string]any) error {
	id, ok := stringField(data, "id")
	if !ok {
		return r.rejectPayload(data, "missing or non-string id")
	}
	repo, ok := stringField(data, "repo")
	if !ok {
		return r.rejectPayload(data, "missing or non-string repo")
	}
	pattern, ok := stringField(data, "file_pattern")
	if !ok {
		return r.rejectPayload(data, "missing or non-string file_pattern")
	}

	a := Artifact{
		ID:          id,
		Repo:        repo,
		FilePattern: pattern,
		Enabled:     true,
		Channel:     ChannelStable,
	}

	if v, present := data["enabled"]; present {
		b, ok := v.(bool)
		if !ok {
			return r.rejectPayload(data, "enabled must be a bool")
		}
		a.Enabled = b
	}
	if v, present := data["min_version"]; present {
		s, ok := v.(string)
		if !ok {
			return r.rejectPayload(data, "min_version must be a string")
		}
		a.MinVersion = s
	}
	if v, present := data["channel"]; present {
		s, ok := v.(string)
		if !ok {
			return r.rejectPayload(data, "channel must be a string")
		}
		a.Channel = Channel(s)
	}
	if v, present := data["required"]; present {
		b, ok := v.(bool)
		if !ok {
			return r.rejectPayload(data, "required must be a bool")
		}
		a.Required = b
	}

	return r.Register(a)
}

func (r *Registry) rejectPayload(data map[string]any, reason string) error {
	err := &InvalidArtifactError{Reason: fmt.Sprintf("registration payload: %s", reason)}
	r.logger.Warn("rejecting registration payload", "reason", reason, "keys", len(data))
	return err
}

// Get returns the artifact with the given id, if registered.
func (r *Registry) Get(id string) (Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[id]
	return a, ok
}

// All returns every registered artifact, ordered by id for stable output.
func (r *Registry) All() []Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns the registered artifacts with updates enabled.
func (r *Registry) Enabled() []Artifact {
	all := r.All()
	out := all[:0]
	for _, a := range all {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of registered artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}

// Reload replaces the registry contents wholesale with the valid entries
// from artifacts. Invalid entries are dropped with a logged warning, and
// the count of accepted entries is returned.
func (r *Registry) Reload(artifacts []Artifact) int {
	next := make(map[string]Artifact, len(artifacts))
	for _, a := range artifacts {
		if err := a.Validate(); err != nil {
			r.logger.Warn("dropping invalid artifact on reload", "err", err)
			continue
		}
		next[a.ID] = a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = next
	return len(next)
}

func stringField(data map[string]any, key string) (string, bool) {
	v, present := data[key]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
