// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"strings"
	"sync"
)

// Router is the subscription trie. One node per topic level; `+` and
// `#` are ordinary child keys with wildcard semantics applied during
// matching. It is the only structure shared across session goroutines
// and is guarded by a single read/write lock.
type Router struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	children map[string]*node
	subs     map[string]struct{} // session IDs subscribed at this exact level
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{root: newNode()}
}

// Subscribe registers sessionID under the topic filter. Inserting the
// same pair twice is a no-op.
func (r *Router) Subscribe(filter, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, level := range strings.Split(filter, "/") {
		child, ok := n.children[level]
		if !ok {
			child = newNode()
			n.children[level] = child
		}
		n = child
	}
	if n.subs == nil {
		n.subs = make(map[string]struct{})
	}
	n.subs[sessionID] = struct{}{}
}

// Unsubscribe removes sessionID from the topic filter and prunes any
// nodes left without subscribers or children.
func (r *Router) Unsubscribe(filter, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := strings.Split(filter, "/")
	path := make([]*node, 0, len(levels)+1)
	n := r.root
	path = append(path, n)
	for _, level := range levels {
		child, ok := n.children[level]
		if !ok {
			return
		}
		n = child
		path = append(path, n)
	}

	delete(n.subs, sessionID)

	// Prune upward: drop nodes that hold no subscribers and no children.
	for i := len(path) - 1; i > 0; i-- {
		cur := path[i]
		if len(cur.subs) > 0 || len(cur.children) > 0 {
			break
		}
		delete(path[i-1].children, levels[i-1])
	}
}

// Match returns the session IDs whose filters match the topic name,
// de-duplicated across overlapping filters.
func (r *Router) Match(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make(map[string]struct{})
	matchLevel(r.root, strings.Split(topic, "/"), 0, matched)

	out := make([]string, 0, len(matched))
	for id := range matched {
		out = append(out, id)
	}
	return out
}

func matchLevel(n *node, levels []string, index int, matched map[string]struct{}) {
	if index == len(levels) {
		// End of the topic: exact subscribers plus a '#' child, which
		// matches zero remaining levels.
		collect(n, matched)
		if wild, ok := n.children["#"]; ok {
			collect(wild, matched)
		}
		return
	}

	if child, ok := n.children[levels[index]]; ok {
		matchLevel(child, levels, index+1, matched)
	}
	if child, ok := n.children["+"]; ok {
		matchLevel(child, levels, index+1, matched)
	}
	if child, ok := n.children["#"]; ok {
		collect(child, matched)
	}
}

func collect(n *node, matched map[string]struct{}) {
	for id := range n.subs {
		matched[id] = struct{}{}
	}
}
