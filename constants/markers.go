package constants

// Markers emitted around the text portion of a streaming response so that
// consumers splicing chunks into a larger output can find its boundaries.
const (
	StreamStartMarker = "|-START-|\n"
	StreamEndMarker   = "\n|-END-|"
)
