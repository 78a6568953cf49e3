package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddArgs extracts a watch name and query URL from command
// arguments. The URL is the last field so names may contain spaces.
func ParseAddArgs(args string) (name, query string, err error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("usage: <name> <results-url>")
	}
	query = parts[len(parts)-1]
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		return "", "", fmt.Errorf("query %q is not a URL", query)
	}
	name = strings.Join(parts[:len(parts)-1], " ")
	return name, query, nil
}

// ParseIDArg extracts a numeric watch ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("watch ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid watch ID %q", s)
	}
	return id, nil
}
