// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func matchSorted(r *Router, topic string) []string {
	ids := r.Match(topic)
	sort.Strings(ids)
	return ids
}

func TestRouterMatch(t *testing.T) {
	r := NewRouter()
	r.Subscribe("a/b", "s1")
	r.Subscribe("a/+", "s2")
	r.Subscribe("a/#", "s3")

	tests := []struct {
		topic string
		want  []string
	}{
		{"a/b", []string{"s1", "s2", "s3"}},
		{"a/c", []string{"s2", "s3"}},
		{"a/b/c", []string{"s3"}},
		{"a", []string{"s3"}}, // 'a/#' matches the parent level
		{"b/c", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSorted(r, tt.topic), "Match(%q)", tt.topic)
	}
}

func TestRouterDeduplicates(t *testing.T) {
	r := NewRouter()
	r.Subscribe("a/b", "s1")
	r.Subscribe("a/+", "s1")
	r.Subscribe("a/#", "s1")

	assert.Equal(t, []string{"s1"}, r.Match("a/b"))
}

func TestRouterUnsubscribe(t *testing.T) {
	r := NewRouter()
	r.Subscribe("a/b", "s1")
	r.Subscribe("a/b", "s2")
	r.Subscribe("a/+", "s3")

	assert.Len(t, r.Match("a/b"), 3)

	r.Unsubscribe("a/b", "s1")
	assert.Equal(t, []string{"s2", "s3"}, matchSorted(r, "a/b"))

	// Removing a filter that was never added is a no-op.
	r.Unsubscribe("x/y", "s1")
	assert.Equal(t, []string{"s2", "s3"}, matchSorted(r, "a/b"))
}

func TestRouterPrunesEmptyNodes(t *testing.T) {
	r := NewRouter()
	r.Subscribe("a/b/c/d", "s1")
	r.Unsubscribe("a/b/c/d", "s1")

	// The whole branch should be gone.
	assert.Empty(t, r.root.children)

	// Pruning stops at a node that still has subscribers.
	r.Subscribe("a/b", "s1")
	r.Subscribe("a/b/c", "s2")
	r.Unsubscribe("a/b/c", "s2")
	assert.Equal(t, []string{"s1"}, r.Match("a/b"))
	assert.Empty(t, r.Match("a/b/c"))
}

func TestRouterSubscribeIdempotent(t *testing.T) {
	r := NewRouter()
	r.Subscribe("a/b", "s1")
	r.Subscribe("a/b", "s1")
	assert.Equal(t, []string{"s1"}, r.Match("a/b"))

	r.Unsubscribe("a/b", "s1")
	assert.Empty(t, r.Match("a/b"))
}
