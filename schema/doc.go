// Package schema declares persistent resources and computes their record
// layouts.
//
// A resource is a name plus properties built with Field, Singular,
// PolymorphicSingular, Plural and PolymorphicPlural:
//
//	book := schema.NewResource("book",
//		schema.Field("title", schema.String).Indexed(schema.SegmentedIndex),
//		schema.Field("year", schema.Integer),
//		schema.Singular("author", "person"),
//		schema.Plural("reviews", "review"),
//	)
//
// NewLayout turns a resource into a fixed table of 8-byte slots. The
// Registry assigns type ids and checks that association targets exist.
package schema
