package etch

import "bufio"
import "fmt"
import "io"

import "golang.org/x/xerrors"

// Graph writes the cell DAG under root in graphviz dot format, one node per
// branch cell. Embedded children are folded into their parent's label, hashes
// that cannot be resolved are drawn grey.
func Graph(w io.Writer, res *Resolver, root *Ref) (err error) {
	bw := bufio.NewWriter(w)
	bw.WriteString("digraph etch_graph {\n")
	bw.WriteString("node [ fontsize=12 style=filled shape=box ]\n")
	seen := map[Hash]bool{}
	if err = graph(bw, res, root, seen); err != nil {
		return err
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

func graph(w *bufio.Writer, res *Resolver, r *Ref, seen map[Hash]bool) error {
	h := r.Hash()
	if seen[h] {
		return nil
	}
	seen[h] = true

	c, err := r.Value(res)
	if err != nil {
		if xerrors.Is(err, ErrMissingData) {
			fmt.Fprintf(w, "L%x [ fillcolor=grey label=\"missing %x\" ];\n", h[:4], h[:4])
			return nil
		}
		return err
	}
	embedded := 0
	for i := 0; i < c.RefCount(); i++ {
		if c.Ref(i).IsEmbedded() {
			embedded++
		}
	}
	fmt.Fprintf(w, "L%x [ fillcolor=%s label=\"%s %x\\n%d bytes, %d inline\\n%s\" ];\n",
		h[:4], graphColor(c.Tag()), tagName(c.Tag()), h[:4], len(c.Encoding()), embedded, r.Status())

	for i := 0; i < c.RefCount(); i++ {
		child := c.Ref(i)
		if child.IsEmbedded() {
			continue
		}
		ch := child.Hash()
		fmt.Fprintf(w, "L%x -> L%x ;\n", h[:4], ch[:4])
		if err = graph(w, res, child, seen); err != nil { // descend further
			return err
		}
	}
	return nil
}

func graphColor(tag byte) string {
	switch tag {
	case TagVector, TagList:
		return "lightblue"
	case TagMap, TagSet:
		return "palegreen"
	case TagBlob, TagString:
		return "khaki"
	}
	return "white"
}
