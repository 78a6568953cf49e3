// Package format packs notification content into transport-sized batches.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"watchbot/internal/model"
)

// headerAllowance reserves room for the longest header a batch can
// carry beyond the subscription name: "[" + name + "] part NNNN of NNNN\n\n".
const headerAllowance = len("[] part 9999 of 9999\n\n")

// Batches renders items for a subscription into batches, each strictly
// below maxChars and holding at most maxItems items. Formatting is
// two-pass: items are partitioned first so the "part X of Y" headers
// can be rendered with the final total. Zero items yields zero batches.
func Batches(sub model.Subscription, items []model.Item, maxChars, maxItems int) []model.Batch {
	if len(items) == 0 {
		return nil
	}
	if maxItems < 1 {
		maxItems = 1
	}

	budget := maxChars - len(sub.Name) - headerAllowance - 1
	if budget < 1 {
		budget = 1
	}

	var parts [][]string
	var cur []string
	curSize := 0
	for _, item := range items {
		r := truncate(renderItem(item), budget)
		size := len(r) + 1 // trailing separator
		if len(cur) > 0 && (curSize+size > budget || len(cur) >= maxItems) {
			parts = append(parts, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, r)
		curSize += size
	}
	parts = append(parts, cur)

	total := len(parts)
	batches := make([]model.Batch, 0, total)
	for i, p := range parts {
		var b strings.Builder
		if total > 1 {
			fmt.Fprintf(&b, "[%s] part %d of %d\n\n", sub.Name, i+1, total)
		} else {
			fmt.Fprintf(&b, "[%s]\n\n", sub.Name)
		}
		b.WriteString(strings.Join(p, "\n"))
		batches = append(batches, model.Batch{
			ChatID: sub.ChatID,
			Text:   b.String(),
			Seq:    i + 1,
			Total:  total,
		})
	}
	return batches
}

func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	if budget <= 3 {
		return cutAtRune(s, budget)
	}
	return cutAtRune(s, budget-3) + "..."
}

// cutAtRune trims s to at most n bytes without splitting a UTF-8
// rune, so truncated payloads stay valid for the transport.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func renderItem(item model.Item) string {
	var b strings.Builder
	b.WriteString(item.Title)
	if item.Summary != "" {
		b.WriteString("\n")
		b.WriteString(item.Summary)
	}
	if item.URL != "" {
		b.WriteString("\n")
		b.WriteString(item.URL)
	}
	return b.String()
}
