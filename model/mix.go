package model

// Mix is a full scene description. Seed, track list and duration are the sole
// determinants of exported audio content: rendering the same triple twice must
// produce byte-identical PCM.
type Mix struct {
	Seed            string
	Mood            string
	DurationMinutes int
	MasterVolume    float64
	Tracks          []Track
}
