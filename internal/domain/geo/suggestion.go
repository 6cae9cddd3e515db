package geo

// Suggestion is a single autosuggest entry for a free-text address search.
// It is read-only and discarded once the user picks one.
type Suggestion struct {
	Title string  `json:"title"`
	Full  string  `json:"full"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}
