// Package collection implements plural associations as lazy proxies over
// an indirection store.
//
// A Proxy reads its elements on demand through a Resolver and buffers
// appends, inserts and deletes in memory until Save copies the logical
// contents into a new store region. Elements that are not stored yet are
// patched in later through Update callbacks registered on the element.
//
//	p, _ := collection.New(joins, resolver, "book", offset, size)
//	_ = p.Append(book)
//	offset, _ = p.Save()
//
// Union, Intersection and IntersectionSize work directly on stored ids when
// both proxies are monomorphic and unedited.
package collection
