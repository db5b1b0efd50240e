package render

import (
	"fmt"
	"strings"
	"time"

	"soundscape/core/compose"
	"soundscape/model"
)

// Certificate describes one licensed export. The text artifact is a pure
// function of these fields, so it can be regenerated from the job record.
type Certificate struct {
	JobID    string
	IssuedAt time.Time
	TermsURL string
	Mix      model.Mix
}

// Filename returns the certificate's artifact name.
func (c Certificate) Filename() string {
	return fmt.Sprintf("license_%s.txt", c.JobID)
}

// Text renders the license certificate accompanying every export.
func (c Certificate) Text() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SOUNDSCAPE EXPORT LICENSE CERTIFICATE\n")
	fmt.Fprintf(&sb, "=====================================\n\n")
	fmt.Fprintf(&sb, "Certificate ID: %s\n", c.JobID)
	fmt.Fprintf(&sb, "Issued:         %s\n", c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Duration:       %d minutes\n", c.Mix.DurationMinutes)
	fmt.Fprintf(&sb, "Seed:           %s\n\n", c.Mix.Seed)

	sb.WriteString("GRANT\n")
	sb.WriteString("The holder of this certificate is granted a perpetual, worldwide,\n")
	sb.WriteString("non-exclusive license to use the exported audio identified above in\n")
	sb.WriteString("personal and commercial productions, including monetized content.\n\n")

	sb.WriteString("RESTRICTIONS\n")
	sb.WriteString("- The exported audio may not be resold or redistributed as a standalone\n")
	sb.WriteString("  audio file, sample pack, or sound library.\n")
	sb.WriteString("- The underlying field recordings remain the property of their authors.\n")
	sb.WriteString("- This certificate may not be transferred separately from the export it\n")
	sb.WriteString("  identifies.\n\n")

	sb.WriteString("DISCLAIMER\n")
	sb.WriteString("Mixes are generated deterministically from a seed. Other customers may\n")
	sb.WriteString("generate similar or identical audio from the same inputs; no exclusivity\n")
	sb.WriteString("over the generated content is granted or implied.\n\n")

	fmt.Fprintf(&sb, "MIX\n%s\n", compose.RecipeText(c.Mix))

	if c.TermsURL != "" {
		fmt.Fprintf(&sb, "\nFull terms: %s\n", c.TermsURL)
	}

	return sb.String()
}

// CommentTag returns the human-readable certificate reference embedded in the
// WAV LIST/INFO comment field.
func (c Certificate) CommentTag() string {
	ref := fmt.Sprintf("License cert %s • seed=%s • duration=%dm",
		c.JobID, c.Mix.Seed, c.Mix.DurationMinutes)
	if c.TermsURL != "" {
		ref += " • terms: " + c.TermsURL
	}
	return ref
}
