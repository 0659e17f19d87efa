// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package query

import "regexp"

// statementKind routes a statement to the regular query flow or to the
// staged-file protocol.
type statementKind int

const (
	stmtQuery statementKind = iota
	stmtPut
	stmtGet
)

// PUT/GET are matched case-insensitively on the first keyword, after any
// number of leading block comments. The trailing \s+ keeps identifiers like
// PUTATIVE out of the staged-file flow.
var (
	putRe = regexp.MustCompile(`(?is)^(?:/\*.*?\*/\s*)*put\s+`)
	getRe = regexp.MustCompile(`(?is)^(?:/\*.*?\*/\s*)*get\s+`)
)

func classify(sql string) statementKind {
	switch {
	case putRe.MatchString(sql):
		return stmtPut
	case getRe.MatchString(sql):
		return stmtGet
	default:
		return stmtQuery
	}
}
