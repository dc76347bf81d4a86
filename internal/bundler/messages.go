package bundler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// messageSet collects esbuild messages as display strings. Both builds report
// the same problems, so a message is dropped when an earlier build already
// reported it; repeats within one build are kept. Messages containing the
// suppression marker are dropped.
type messageSet struct {
	marker string
	counts map[string]int
	items  []string
}

func newMessageSet(marker string) *messageSet {
	return &messageSet{marker: marker, counts: make(map[string]int)}
}

// add records the messages of one build
func (s *messageSet) add(msgs ...api.Message) {
	local := make(map[string]int, len(msgs))
	for _, msg := range msgs {
		text := formatMessage(msg)
		if s.marker != "" && strings.Contains(text, s.marker) {
			continue
		}
		local[text]++
		if local[text] <= s.counts[text] {
			continue
		}
		s.items = append(s.items, text)
	}
	for text, n := range local {
		if n > s.counts[text] {
			s.counts[text] = n
		}
	}
}

func (s *messageSet) list() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

// formatMessage renders a message with its location when esbuild has one
func formatMessage(msg api.Message) string {
	text := msg.Text
	if msg.PluginName != "" {
		text = fmt.Sprintf("[%s] %s", msg.PluginName, text)
	}
	if msg.Location == nil {
		return text
	}
	return fmt.Sprintf("%s:%d:%d: %s", displayPath(msg.Location.File), msg.Location.Line, msg.Location.Column, text)
}

// displayPath strips esbuild namespaces from module paths
func displayPath(p string) string {
	switch {
	case p == entryNamespace+":"+entryID, p == entryID:
		return "<entry>"
	case strings.HasPrefix(p, remoteNamespace+":"):
		return strings.TrimPrefix(p, remoteNamespace+":")
	default:
		return p
	}
}
