package merkle

import (
	"fmt"
	"io"
)

// Output tree in DOT language, for rendering with graphviz

func (t *Tree) dotNodeName(level, i int) string {
	// Leaves are named by their record, everything else by a bit of the
	// hash. The level is included because a promoted digest shows up
	// unchanged on consecutive levels.
	if level == 0 {
		return t.records[i].ID()
	}
	return fmt.Sprintf("L%d %x", level, t.levels[level][i][:3])
}

// DotGraph writes a complete directed graph for the tree.
// It uses the DOT language. If an error is returned, the written bytes
// are likely not a valid DOT file.
func (t *Tree) DotGraph(w io.Writer) error {
	_, err := fmt.Fprintf(w, `digraph "%x" {`+"\n", t.root)
	if err != nil {
		return err
	}
	for level := len(t.levels) - 1; level > 0; level-- {
		cur := t.levels[level]
		below := t.levels[level-1]
		for i := range cur {
			left, right := 2*i, 2*i+1
			if right >= len(below) {
				// Unpaired tail. Under promote the digest moved up
				// unchanged; an edge to itself adds nothing.
				if t.mode == OddNodePromote {
					continue
				}
				right = left
			}
			_, err = fmt.Fprintf(w, `"%s" -> "%s"`+"\n", t.dotNodeName(level, i), t.dotNodeName(level-1, left))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, `"%s" -> "%s"`+"\n", t.dotNodeName(level, i), t.dotNodeName(level-1, right))
			if err != nil {
				return err
			}
		}
	}
	_, err = fmt.Fprint(w, "}")
	return err
}
