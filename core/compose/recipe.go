package compose

import (
	"fmt"
	"math"
	"strings"

	"soundscape/model"
)

// RecipeText renders a human-readable listing of a mix: one header line plus
// one line per track. The same text is embedded in license certificates.
func RecipeText(mix model.Mix) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mood=%s • Length=%dm • Seed=%s", mix.Mood, mix.DurationMinutes, mix.Seed)
	for _, t := range mix.Tracks {
		folder := strings.TrimSuffix(t.Library(), "_events")
		vol := int(math.Round(t.Gain() * 100))
		line := fmt.Sprintf("\n- %s (%s) • %s/%s.mp3 • vol %d%%", trackName(t), t.Kind(), folder, t.Asset(), vol)
		if ev, ok := t.(model.EventTrack); ok {
			line += fmt.Sprintf(" • %s @ %g×", ev.Rate, ev.SpeedOrDefault())
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func trackName(t model.Track) string {
	switch v := t.(type) {
	case model.LoopTrack:
		if v.Name != "" {
			return v.Name
		}
	case model.EventTrack:
		if v.Name != "" {
			return v.Name
		}
	}
	return t.Library()
}
