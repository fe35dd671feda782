package atlas

import "fmt"

// ID is a concept identifier. Zero means unresolved.
type ID uint32

func (id ID) String() string {
	return fmt.Sprintf("0x%03X", uint32(id))
}

// Band boundaries. Each band is inclusive of its lower bound and
// exclusive of the next band's lower bound.
const (
	PrimitiveStart ID = 0x001
	ActionStart    ID = 0x0A0
	PropertyStart  ID = 0x0B0
	LogicStart     ID = 0x0C0
	ModalStart     ID = 0x0D0
	EntityStart    ID = 0x0E0
	MetaStart      ID = 0x0F0
	TemporalStart  ID = 0x100
	TemporalEnd    ID = 0x140
	IndustryStart  ID = 0x1000
	PrivateStart   ID = 0xF000
)

// Category is the band an id falls into.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryPrimitive
	CategoryAction
	CategoryProperty
	CategoryLogic
	CategoryModal
	CategoryEntity
	CategoryMeta
	CategoryTemporal
	CategoryStandard
	CategoryIndustry
	CategoryPrivate
)

var categoryNames = map[Category]string{
	CategoryUnknown:   "unknown",
	CategoryPrimitive: "primitive",
	CategoryAction:    "action",
	CategoryProperty:  "property",
	CategoryLogic:     "logic",
	CategoryModal:     "modal",
	CategoryEntity:    "entity",
	CategoryMeta:      "meta",
	CategoryTemporal:  "temporal",
	CategoryStandard:  "standard",
	CategoryIndustry:  "industry",
	CategoryPrivate:   "private",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// CategoryOf classifies id by band.
func CategoryOf(id ID) Category {
	switch {
	case id == 0:
		return CategoryUnknown
	case id < ActionStart:
		return CategoryPrimitive
	case id < PropertyStart:
		return CategoryAction
	case id < LogicStart:
		return CategoryProperty
	case id < ModalStart:
		return CategoryLogic
	case id < EntityStart:
		return CategoryModal
	case id < MetaStart:
		return CategoryEntity
	case id < TemporalStart:
		return CategoryMeta
	case id < TemporalEnd:
		return CategoryTemporal
	case id < IndustryStart:
		return CategoryStandard
	case id < PrivateStart:
		return CategoryIndustry
	default:
		return CategoryPrivate
	}
}

func IsAction(id ID) bool   { return CategoryOf(id) == CategoryAction }
func IsTemporal(id ID) bool { return CategoryOf(id) == CategoryTemporal }
