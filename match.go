// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/woozymasta/pathrules"
)

// RegexpPatternPrefix marks a selection pattern as Go regular expression instead of glob.
const RegexpPatternPrefix = "re:"

// pathMatcher holds compiled glob rules and optional regular expressions.
type pathMatcher struct {
	matcher *pathrules.Matcher
	regexps []*regexp.Regexp
}

// newPathMatcher compiles path rules. Nil matcher is returned for empty rule set.
func newPathMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*pathMatcher, error) {
	rules = normalizeMatchRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, matcherOptionsOrDefault(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidPattern, err)
	}

	return &pathMatcher{matcher: matcher}, nil
}

// newPatternMatcher compiles ignore-style patterns: "re:" prefixed ones as regexps,
// everything else as include globs. Slash-free globs match names at any depth.
func newPatternMatcher(patterns []string, opts pathrules.MatcherOptions) (*pathMatcher, error) {
	return compilePatterns(patterns, opts, false)
}

// newSelectionMatcher compiles path selection patterns. Globs are anchored to the
// archive root unless they start with a wildcard, so "a.txt" selects only the root
// file while "*.dll" still selects every dll.
func newSelectionMatcher(patterns []string, opts pathrules.MatcherOptions) (*pathMatcher, error) {
	return compilePatterns(patterns, opts, true)
}

func compilePatterns(patterns []string, opts pathrules.MatcherOptions, anchored bool) (*pathMatcher, error) {
	globs := make([]string, 0, len(patterns))
	var regexps []*regexp.Regexp
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}

		if expr, ok := strings.CutPrefix(pattern, RegexpPatternPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, raw, err)
			}

			regexps = append(regexps, re)
			continue
		}

		if anchored {
			pattern = anchorPattern(pattern)
		}

		globs = append(globs, pattern)
	}

	m, err := newPathMatcher(includeRules(globs...), opts)
	if err != nil {
		return nil, err
	}

	if len(regexps) == 0 {
		return m, nil
	}

	if m == nil {
		m = &pathMatcher{}
	}
	m.regexps = regexps

	return m, nil
}

// anchorPattern roots a glob at archive root unless it is already anchored
// or starts with a wildcard.
func anchorPattern(pattern string) string {
	pattern = normalizePathForMatching(pattern)
	if strings.HasPrefix(pattern, "/") || strings.HasPrefix(pattern, "*") {
		return pattern
	}

	return "/" + pattern
}

// includeRules builds include rules from raw glob patterns.
func includeRules(patterns ...string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: pattern,
		})
	}

	return rules
}

// normalizeMatchRules normalizes rule patterns and drops empty patterns.
func normalizeMatchRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// matcherOptionsOrDefault fills zero-valued matcher options with exclude-by-default policy.
func matcherOptionsOrDefault(opts pathrules.MatcherOptions) pathrules.MatcherOptions {
	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionExclude
	}

	return opts
}

// Match reports whether file path is selected by rules or regular expressions.
func (m *pathMatcher) Match(path string) bool {
	return m.match(path, false)
}

// MatchDir reports whether directory path is selected by rules or regular expressions.
func (m *pathMatcher) MatchDir(path string) bool {
	return m.match(path, true)
}

// match evaluates normalized path against compiled rules.
func (m *pathMatcher) match(path string, isDir bool) bool {
	if m == nil {
		return false
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	if m.matcher != nil && m.matcher.Included(candidate, isDir) {
		return true
	}

	for _, re := range m.regexps {
		if re.MatchString(candidate) {
			return true
		}
	}

	return false
}
