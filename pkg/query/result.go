// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow"
)

// Result is the sum of statement outcomes. Arrow is the default for SELECT
// statements; JSON appears for status responses and sessions configured for
// JSON results; Empty covers zero-row results and side-effect statements
// such as PUT.
type Result interface {
	isResult()
}

// EmptyResult is a statement that returned no rows.
type EmptyResult struct{}

// JSONResult is a rowset delivered inline as JSON.
type JSONResult struct {
	Value json.RawMessage
}

// ArrowResult is a tabular result materialized as columnar record batches,
// inline payload first, then remote chunks in server order.
type ArrowResult struct {
	Batches []arrow.Record
}

// Release frees the retained record batches. Callers that are done with a
// tabular result should release it.
func (r ArrowResult) Release() {
	for _, batch := range r.Batches {
		batch.Release()
	}
}

func (EmptyResult) isResult() {}
func (JSONResult) isResult()  {}
func (ArrowResult) isResult() {}
