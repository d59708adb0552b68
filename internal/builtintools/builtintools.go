// Package builtintools provides the small set of tool descriptors every
// MECH agent carries regardless of task: memory read/write, grounded on
// the teacher's internal/memory tool bindings (a fixed set of
// always-available tools layered on top of task-specific ones).
package builtintools

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/mech/internal/memorystore"
	"github.com/haasonsaas/mech/internal/toolsys"
)

// Memory returns the remember_short_term / remember_long_term /
// recall_memories descriptors bound to store.
func Memory(store *memorystore.Store) []*toolsys.Descriptor {
	return []*toolsys.Descriptor{
		{
			Name:        "remember_short_term",
			Description: "Save a short, temporary memory (max 10 kept, oldest evicted first).",
			Params: []toolsys.Param{
				{ExternalName: "content", Kind: toolsys.ParamString, Required: true},
			},
			Call: func(args []any) (any, error) {
				content, _ := args[0].(string)
				entry, err := store.AddShortTerm(content)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("saved short-term memory #%d", entry.ID), nil
			},
		},
		{
			Name:        "remember_long_term",
			Description: "Save a durable memory that is never automatically evicted.",
			Params: []toolsys.Param{
				{ExternalName: "content", Kind: toolsys.ParamString, Required: true},
			},
			Call: func(args []any) (any, error) {
				content, _ := args[0].(string)
				entry, err := store.AddLongTerm(content)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("saved long-term memory #%d", entry.ID), nil
			},
		},
		{
			Name:        "recall_memories",
			Description: "List current short-term and long-term memories.",
			Call: func(args []any) (any, error) {
				short, err := store.ShortTerm()
				if err != nil {
					return nil, err
				}
				long, err := store.LongTerm()
				if err != nil {
					return nil, err
				}
				var b strings.Builder
				b.WriteString("short-term:\n")
				for _, e := range short {
					fmt.Fprintf(&b, "  #%d %s\n", e.ID, e.Content)
				}
				b.WriteString("long-term:\n")
				for _, e := range long {
					fmt.Fprintf(&b, "  #%d %s\n", e.ID, e.Content)
				}
				return b.String(), nil
			},
		},
	}
}
