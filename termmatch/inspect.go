package termmatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/postings/codec"
)

// Confidence describes how exact Count is.
type Confidence uint8

const (
	// Low marks an estimated count.
	Low Confidence = iota
	// Normal marks a bounded estimate.
	Normal
	// High marks an exact count.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	default:
		return "Unknown"
	}
}

// InspectionNode describes a match for query explanation output.
type InspectionNode struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Children   []InspectionNode  `json:"children,omitempty"`
}

// String renders the node tree as indented text.
func (n InspectionNode) String() string {
	var sb strings.Builder
	n.write(&sb, 0)
	return sb.String()
}

func (n InspectionNode) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Name)
	if len(n.Parameters) > 0 {
		keys := make([]string, 0, len(n.Parameters))
		for k := range n.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%s: %s", k, n.Parameters[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	for _, c := range n.Children {
		c.write(sb, depth+1)
	}
}

// JSON encodes the node tree with the given codec, or codec.Default if nil.
func (n InspectionNode) JSON(c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	return c.Marshal(n)
}
