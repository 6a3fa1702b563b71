package license

import "strings"

// Tier names derived from the provider's product-variant name.
const (
	TierStandard = "standard"
	TierPro      = "pro"
	TierAgency   = "agency"
	TierLifetime = "lifetime"
)

// TierFromVariant derives the license tier from the purchased
// variant's name. Unknown variants fall back to standard.
func TierFromVariant(variantName string) string {
	name := strings.ToLower(variantName)
	switch {
	case strings.Contains(name, "lifetime"):
		return TierLifetime
	case strings.Contains(name, "agency"):
		return TierAgency
	case strings.Contains(name, "pro"):
		return TierPro
	default:
		return TierStandard
	}
}
