// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topics provides validation and matching of hierarchical topic
// names and topic filters. A name is what a message is published under;
// a filter is a subscription pattern that may contain the single-level
// wildcard '+' and the trailing multi-level wildcard '#'.
package topics

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidTopicName is returned for a publish topic that is empty,
	// contains wildcards or carries illegal characters.
	ErrInvalidTopicName = errors.New("invalid topic name")

	// ErrInvalidTopicFilter is returned for a subscription filter with
	// misplaced wildcards or illegal characters.
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
)

// ValidateName checks that topic is usable for PUBLISH: non-empty,
// valid UTF-8, no NUL and no wildcard characters anywhere.
func ValidateName(topic string) error {
	if topic == "" || !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return ErrInvalidTopicName
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateFilter checks that filter is usable for SUBSCRIBE: '+' only
// as a whole level, '#' only as the whole final level.
func ValidateFilter(filter string) error {
	if filter == "" || !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return ErrInvalidTopicFilter
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return ErrInvalidTopicFilter
		}
		if strings.Contains(level, "#") {
			if level != "#" || i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}
	return nil
}
