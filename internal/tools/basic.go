package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SearchClient answers web-search queries. The default implementation is a
// stub; a real client can be swapped in through the tool's closure.
type SearchClient interface {
	Search(ctx context.Context, query string) (string, error)
}

// stubSearch returns a canned answer. The world stays coherent without
// network access; agents just get thin results.
type stubSearch struct{}

func (stubSearch) Search(_ context.Context, query string) (string, error) {
	return fmt.Sprintf("No detailed results available for %q. Try asking someone nearby.", query), nil
}

// SearchTool returns the worldwide web-search tool backed by the stub
// client.
func SearchTool() *Tool {
	return SearchToolWith(stubSearch{})
}

// SearchToolWith returns the search tool over a specific client.
func SearchToolWith(client SearchClient) *Tool {
	return &Tool{
		Name:        "search",
		Description: "Search the web. Input: the search query.",
		Worldwide:   true,
		Execute: func(ctx context.Context, input string, _ ToolContext) (string, error) {
			query := strings.TrimSpace(input)
			if query == "" {
				return "", fmt.Errorf("%w: empty search query", ErrBadInput)
			}
			return client.Search(ctx, query)
		},
	}
}

// WaitTool returns the worldwide no-op tool agents use to idle
// intentionally.
func WaitTool() *Tool {
	return &Tool{
		Name:        "wait",
		Description: "Do nothing for a while. Input: ignored.",
		Worldwide:   true,
		Execute: func(context.Context, string, ToolContext) (string, error) {
			return "You are waiting.", nil
		},
	}
}

// DirectoryTool returns the roster tool: every other agent's name, public
// bio and current location.
func DirectoryTool() *Tool {
	return &Tool{
		Name:            "directory",
		Description:     "Look up who is in the world and where they are. Input: ignored.",
		Worldwide:       true,
		RequiresContext: true,
		Execute: func(_ context.Context, _ string, tc ToolContext) (string, error) {
			var lines []string
			for _, a := range tc.World.Agents() {
				if a.ID == tc.AgentID {
					continue
				}
				locName := "somewhere"
				if loc := tc.World.LocationByID(a.LocationID); loc != nil {
					locName = loc.Name
				}
				lines = append(lines, fmt.Sprintf("%s (%s) is at the %s.", a.FullName, a.PublicBio, locName))
			}
			if len(lines) == 0 {
				return "You are alone in the world.", nil
			}
			sort.Strings(lines)
			return strings.Join(lines, "\n"), nil
		},
	}
}
