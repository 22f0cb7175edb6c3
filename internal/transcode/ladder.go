// Package transcode turns uploaded originals into the fixed rendition ladder
// using ffmpeg, one job at a time.
package transcode

// Rendition describes one rung of the output ladder. Height is the target
// frame height; width follows the source aspect ratio.
type Rendition struct {
	Label        string
	Height       int
	VideoBitrate string
	AudioBitrate string
}

// DefaultLadder returns the renditions produced for every upload, lowest
// first. The queue processes them in this order so the cheapest rendition is
// available soonest.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Label: "480p", Height: 480, VideoBitrate: "1200k", AudioBitrate: "128k"},
		{Label: "720p", Height: 720, VideoBitrate: "3000k", AudioBitrate: "160k"},
		{Label: "1080p", Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	}
}
