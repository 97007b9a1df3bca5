package collection

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// plain reports whether p can be answered from stored ids alone.
func (p *Proxy) plain() bool {
	return !p.store.Polymorphic() && !p.Changed() && len(p.unresolved) == 0
}

func fastPath(a, b *Proxy) bool {
	return a.plain() && b.plain() && a.typeName == b.typeName
}

func bitmapOf(p *Proxy) (*roaring64.Bitmap, error) {
	ids, err := p.IDs()
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for _, id := range ids {
		if id != 0 {
			bm.Add(id)
		}
	}
	return bm, nil
}

// Union returns the distinct elements of a and b. Null references are not
// members. Two unedited monomorphic proxies of the same resource are merged
// over their ids and the result is in ascending id order; otherwise
// elements keep their first-seen order.
func Union(a, b *Proxy) ([]Element, error) {
	if fastPath(a, b) {
		x, err := bitmapOf(a)
		if err != nil {
			return nil, err
		}
		y, err := bitmapOf(b)
		if err != nil {
			return nil, err
		}
		x.Or(y)
		return a.resolveAll(x)
	}

	left, err := a.ToSlice()
	if err != nil {
		return nil, err
	}
	right, err := b.ToSlice()
	if err != nil {
		return nil, err
	}

	seen := make(map[any]struct{}, len(left)+len(right))
	out := make([]Element, 0, len(left)+len(right))
	for _, e := range append(left, right...) {
		if e == nil {
			continue
		}
		k := keyOf(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// Intersection returns the distinct elements present in both a and b.
// Null references are not members.
func Intersection(a, b *Proxy) ([]Element, error) {
	if fastPath(a, b) {
		x, err := bitmapOf(a)
		if err != nil {
			return nil, err
		}
		y, err := bitmapOf(b)
		if err != nil {
			return nil, err
		}
		x.And(y)
		return a.resolveAll(x)
	}

	left, err := a.ToSlice()
	if err != nil {
		return nil, err
	}
	right, err := b.ToSlice()
	if err != nil {
		return nil, err
	}

	inRight := make(map[any]struct{}, len(right))
	for _, e := range right {
		inRight[keyOf(e)] = struct{}{}
	}
	seen := make(map[any]struct{}, len(left))
	var out []Element
	for _, e := range left {
		if e == nil {
			continue
		}
		k := keyOf(e)
		if _, ok := inRight[k]; !ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// IntersectionSize counts the distinct elements shared by a and b, which is
// len(Intersection(a, b)). For unedited monomorphic proxies both id
// sequences are assumed ascending and walked with two cursors; nothing is
// materialized.
func IntersectionSize(a, b *Proxy) (int, error) {
	if !fastPath(a, b) {
		common, err := Intersection(a, b)
		return len(common), err
	}

	x, err := a.IDs()
	if err != nil {
		return 0, err
	}
	y, err := b.IDs()
	if err != nil {
		return 0, err
	}

	n := 0
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch {
		case x[i] < y[j]:
			i++
		case x[i] > y[j]:
			j++
		case x[i] == 0:
			i++
			j++
		default:
			id := x[i]
			n++
			for i < len(x) && x[i] == id {
				i++
			}
			for j < len(y) && y[j] == id {
				j++
			}
		}
	}
	return n, nil
}

func (p *Proxy) resolveAll(bm *roaring64.Bitmap) ([]Element, error) {
	out := make([]Element, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		e, err := p.resolver.Resolve(p.typeID, it.Next())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type storedKey struct {
	typeName string
	id       uint64
}

func keyOf(e Element) any {
	if e == nil {
		return nil
	}
	if e.ID() != 0 {
		return storedKey{typeName: e.TypeName(), id: e.ID()}
	}
	return e
}
