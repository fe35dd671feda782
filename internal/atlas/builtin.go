package atlas

// Well-known concept ids the compiler and codec refer to directly.
const (
	Move    ID = 0x0A1
	Scan    ID = 0x0A2
	Grab    ID = 0x0A3
	Release ID = 0x0A4
	Hover   ID = 0x0A5

	Speed    ID = 0x0B1
	Position ID = 0x0B2
	Status   ID = 0x0B3
	Battery  ID = 0x0B4

	If   ID = 0x0C1
	Then ID = 0x0C2
	Else ID = 0x0C3
	And  ID = 0x0C4
	Or   ID = 0x0C5
	Not  ID = 0x0C6

	Must   ID = 0x0D1
	Should ID = 0x0D2
	Can    ID = 0x0D3

	Drone    ID = 0x0E1
	Target   ID = 0x0E2
	Obstacle ID = 0x0E3
	Base     ID = 0x0E4
	Package  ID = 0x0E5
	Kitchen  ID = 0x0E6
	Shelf    ID = 0x0E7

	Uncertainty ID = 0x0F1
	Probability ID = 0x0F2
	Confidence  ID = 0x0F3
	Belief      ID = 0x0F4

	Second ID = 0x101
	Minute ID = 0x102
	Hour   ID = 0x103
	Day    ID = 0x104
	Week   ID = 0x105
)

var builtinConcepts = map[ID]string{
	Move:    "move",
	Scan:    "scan",
	Grab:    "grab",
	Release: "release",
	Hover:   "hover",

	Speed:    "speed",
	Position: "position",
	Status:   "status",
	Battery:  "battery",

	If:   "if",
	Then: "then",
	Else: "else",
	And:  "and",
	Or:   "or",
	Not:  "not",

	Must:   "must",
	Should: "should",
	Can:    "can",

	Drone:    "drone",
	Target:   "target",
	Obstacle: "obstacle",
	Base:     "base",
	Package:  "package",
	Kitchen:  "kitchen",
	Shelf:    "shelf",

	Uncertainty: "uncertainty",
	Probability: "probability",
	Confidence:  "confidence",
	Belief:      "belief",

	Second: "second",
	Minute: "minute",
	Hour:   "hour",
	Day:    "day",
	Week:   "week",
}

var builtinAliases = map[string]ID{
	"return":   Move,
	"go":       Move,
	"navigate": Move,
	"search":   Scan,
	"look":     Scan,
	"take":     Grab,
	"pick":     Grab,
	"drop":     Release,
	"place":    Release,
	"stop":     Hover,
	"wait":     Hover,
	"home":     Base,
	"area":     Target,
	"zone":     Target,
	"item":     Package,
	"cargo":    Package,
}
