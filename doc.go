// Package rodb provides an embedded object database backed by memory-mapped files.
//
// A database is a directory holding, for every declared resource, a store
// of fixed-size records, a store of variable-length bytes, two indirection
// stores for collections, and one file (or directory) per indexed
// property. Records are addressed by 1-based ids; id 0 means nil.
//
// # Quick Start
//
// Declare resources, create the database and store objects:
//
//	resources := []schema.Resource{
//	    schema.NewResource("author",
//	        schema.Field("name", schema.String).Indexed(schema.HashIndex)),
//	    schema.NewResource("book",
//	        schema.Field("title", schema.String),
//	        schema.Field("year", schema.Integer).Indexed(schema.SegmentedIndex),
//	        schema.Singular("author", "author").Indexed(schema.FlatIndex),
//	        schema.PolymorphicPlural("related")),
//	}
//
//	db, _ := rodb.Create("./data", resources)
//	author, _ := db.New("author")
//	_ = author.Set("name", "Lem")
//	book, _ := db.New("book")
//	_ = book.Set("title", "Solaris")
//	_ = book.SetRef("author", author)
//	_ = db.Save(book)   // author is not stored yet; its slot is patched later
//	_ = db.Save(author)
//	_ = db.Close()
//
// Reopen it read-only and query an index:
//
//	db, _ := rodb.Open("./data", resources, rodb.WithReadOnly())
//	books, _ := db.Container("book")
//	p, _ := books.FindBy("year", 1961)
//	p.Each(func(i int, e collection.Element) error { ... })
//
// # Identity
//
// Each container keeps an identity map: loading the same id twice within a
// session yields the same *Object. Evict drops clean objects; objects with
// unsaved edits stay.
//
// # Deferred References
//
// An object may reference objects that are not stored yet. The slot is
// left empty and the referenced object records an update; storing it
// applies every such update. Close fails with ErrUnstoredReferences while
// any update is still waiting.
//
// # Durability
//
// Stores are written in place through their mappings. Flush (and Close)
// saves indexes, syncs every store and atomically replaces the manifest
// recording the durable element counts; data appended after the last
// flush is not visible after reopening.
//
// # Concurrency
//
// A Database is not safe for concurrent use. At most one process may open
// a directory for writing; rodb does not enforce this. Hash indexes are the
// exception: their bolt files are locked, so a second process opening a
// directory with hash indexes waits for the lock and fails after one second.
package rodb
