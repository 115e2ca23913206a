package markers

// Tier identifies where a marker set came from.
type Tier int

const (
	// TierStored means markers were served from the store without acquisition.
	TierStored Tier = iota
	// TierMetadata means markers came embedded in the API document.
	TierMetadata
	// TierScrape means markers were scraped from the companion web page.
	TierScrape
	// TierProbe means markers were derived from embedded container chapters.
	TierProbe
)

func (t Tier) String() string {
	switch t {
	case TierStored:
		return "stored"
	case TierMetadata:
		return "metadata"
	case TierScrape:
		return "scrape"
	case TierProbe:
		return "probe"
	default:
		return "unknown"
	}
}
