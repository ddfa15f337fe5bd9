package settings

// Colour defaults
const (
	DefaultColorFamily = "neutral"
	DefaultColorStep   = 500
)

// ColorFamilies are the Tailwind colour families the squares can use
var ColorFamilies = []string{
	"slate", "gray", "zinc", "neutral", "stone",
	"red", "orange", "amber", "yellow", "lime", "green",
	"emerald", "teal", "cyan", "sky", "blue", "indigo",
	"violet", "purple", "fuchsia", "pink", "rose",
}

// ColorSteps are the Tailwind shade steps of every family
var ColorSteps = []int{50, 100, 200, 300, 400, 500, 600, 700, 800, 900, 950}

// LegacyColors are the single-value colours of settings before version 2
var LegacyColors = []string{"neutral", "red", "orange", "yellow", "emerald", "blue", "fuchsia", "rose"}

// IsColorFamily reports whether name is a known colour family
func IsColorFamily(name string) bool {
	for _, f := range ColorFamilies {
		if f == name {
			return true
		}
	}
	return false
}

// IsColorStep reports whether step is a known shade step
func IsColorStep(step int) bool {
	for _, s := range ColorSteps {
		if s == step {
			return true
		}
	}
	return false
}
