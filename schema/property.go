package schema

import "fmt"

// FieldKind is the value type of a field property.
type FieldKind uint8

const (
	// Integer is a signed 64-bit value.
	Integer FieldKind = iota + 1
	// Float is a 64-bit IEEE-754 value.
	Float
	// ULong is an unsigned 64-bit value.
	ULong
	// String is a variable-length UTF-8 string kept in the byte store.
	String
	// Object is any value serialized with the database codec.
	Object
)

func (k FieldKind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case ULong:
		return "ulong"
	case String:
		return "string"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

// Variable reports whether values live in the byte store.
func (k FieldKind) Variable() bool { return k == String || k == Object }

// PropertyKind tags the variant of a Property.
type PropertyKind uint8

const (
	// KindField is a scalar or variable-length value.
	KindField PropertyKind = iota + 1
	// KindSingular references one element of a fixed resource.
	KindSingular
	// KindPolymorphicSingular references one element of any resource.
	KindPolymorphicSingular
	// KindPlural references many elements of a fixed resource.
	KindPlural
	// KindPolymorphicPlural references many elements of any resource.
	KindPolymorphicPlural
)

func (k PropertyKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindSingular:
		return "has_one"
	case KindPolymorphicSingular:
		return "has_one_polymorphic"
	case KindPlural:
		return "has_many"
	case KindPolymorphicPlural:
		return "has_many_polymorphic"
	default:
		return fmt.Sprintf("PropertyKind(%d)", uint8(k))
	}
}

// IndexKind selects the on-disk shape of a property index.
type IndexKind uint8

const (
	// NoIndex leaves the property unindexed.
	NoIndex IndexKind = iota
	// FlatIndex keeps every key in one compressed file.
	FlatIndex
	// SegmentedIndex spreads keys over lazily loaded bucket files.
	SegmentedIndex
	// HashIndex keeps keys in a B+tree file.
	HashIndex
)

func (k IndexKind) String() string {
	switch k {
	case NoIndex:
		return "none"
	case FlatIndex:
		return "flat"
	case SegmentedIndex:
		return "segmented"
	case HashIndex:
		return "hash"
	default:
		return fmt.Sprintf("IndexKind(%d)", uint8(k))
	}
}

// Property is one declared property of a resource.
type Property struct {
	Name   string
	Kind   PropertyKind
	Field  FieldKind // KindField only
	Target string    // KindSingular and KindPlural only
	Index  IndexKind
}

// Field declares a value property.
func Field(name string, kind FieldKind) Property {
	return Property{Name: name, Kind: KindField, Field: kind}
}

// Singular declares a reference to one element of target.
func Singular(name, target string) Property {
	return Property{Name: name, Kind: KindSingular, Target: target}
}

// PolymorphicSingular declares a reference to one element of any resource.
func PolymorphicSingular(name string) Property {
	return Property{Name: name, Kind: KindPolymorphicSingular}
}

// Plural declares a collection of elements of target.
func Plural(name, target string) Property {
	return Property{Name: name, Kind: KindPlural, Target: target}
}

// PolymorphicPlural declares a collection of elements of any resource.
func PolymorphicPlural(name string) Property {
	return Property{Name: name, Kind: KindPolymorphicPlural}
}

// Indexed returns a copy of p indexed with kind.
func (p Property) Indexed(kind IndexKind) Property {
	p.Index = kind
	return p
}

// IsIndexed reports whether the property has an index.
func (p Property) IsIndexed() bool { return p.Index != NoIndex }

// IsAssociation reports whether the property references elements.
func (p Property) IsAssociation() bool { return p.Kind != KindField }

// IsPlural reports whether the property is a collection.
func (p Property) IsPlural() bool {
	return p.Kind == KindPlural || p.Kind == KindPolymorphicPlural
}

// Polymorphic reports whether referenced elements carry a type id.
func (p Property) Polymorphic() bool {
	return p.Kind == KindPolymorphicSingular || p.Kind == KindPolymorphicPlural
}

// Units returns the number of 8-byte slots the property occupies.
func (p Property) Units() int {
	switch p.Kind {
	case KindField:
		if p.Field.Variable() {
			return 2 // length, offset
		}
		return 1
	case KindSingular:
		return 1 // id
	case KindPolymorphicSingular:
		return 2 // id, type
	case KindPlural, KindPolymorphicPlural:
		return 2 // offset, count
	default:
		return 0
	}
}

func (p Property) String() string {
	switch p.Kind {
	case KindField:
		return fmt.Sprintf("%s %s(%s)", p.Kind, p.Name, p.Field)
	case KindSingular, KindPlural:
		return fmt.Sprintf("%s %s(%s)", p.Kind, p.Name, p.Target)
	default:
		return fmt.Sprintf("%s %s", p.Kind, p.Name)
	}
}
