// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/b", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/b/c", false},
		{"a/+", "a", false},
		{"a/#", "a", true},
		{"a/#", "a/b", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b/c", true},
		{"+/+", "a/b", true},
		{"+", "a/b", false},
		{"sensors/+/temp", "sensors/room1/temp", true},
		{"sensors/+/temp", "sensors/room1/humidity", false},
		{"", "a", false},
		{"a", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "Match(%q, %q)", tt.filter, tt.topic)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "a/b", "sensors/room1/temp", "/leading", "trailing/"}
	for _, topic := range valid {
		assert.NoError(t, ValidateName(topic), "topic %q", topic)
	}

	invalid := []string{"", "a/+/c", "a/#", "+", "#", "a/b+c", "bad\x00nul", string([]byte{0xFF, 0xFE})}
	for _, topic := range invalid {
		assert.ErrorIs(t, ValidateName(topic), ErrInvalidTopicName, "topic %q", topic)
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"a", "a/b", "a/+/c", "a/#", "#", "+", "+/+", "sensors/+/temp"}
	for _, filter := range valid {
		assert.NoError(t, ValidateFilter(filter), "filter %q", filter)
	}

	invalid := []string{"", "a/b+/c", "a/#/c", "a/b#", "#/a", "bad\x00nul"}
	for _, filter := range invalid {
		assert.ErrorIs(t, ValidateFilter(filter), ErrInvalidTopicFilter, "filter %q", filter)
	}
}
