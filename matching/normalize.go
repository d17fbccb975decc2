// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package matching connects synced bank transactions to cause mappings and
// computes the suggested round-up donation.
package matching

import (
	"strings"
)

// NormalizeMerchant canonicalizes a merchant name for pattern matching:
// uppercase, punctuation dropped, runs of whitespace folded to one space,
// trimmed. "McDonald's #1234" becomes "MCDONALDS 1234".
func NormalizeMerchant(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSpace := false
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			pendingSpace = true
		}
	}

	return b.String()
}
