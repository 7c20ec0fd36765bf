// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import "strings"

// Match reports whether topic matches filter according to hierarchical
// wildcard rules: '+' consumes exactly one level, a trailing '#'
// consumes the remainder including zero further levels.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, fLevel := range filterLevels {
		if fLevel == "#" {
			// '#' also matches the parent level itself.
			return true
		}
		if i >= len(topicLevels) {
			// Filter has more levels than the topic and none left is '#'.
			return false
		}
		if fLevel == "+" {
			continue
		}
		if fLevel != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
