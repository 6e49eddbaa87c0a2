package content

import (
	"fmt"
	"regexp"
)

var youTubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?youtube(?:-nocookie)?\.com/(?:watch\?(?:[^#]*&)?v=|embed/|shorts/|v/|live/)([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`^(?:https?://)?youtu\.be/([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
}

// ExtractYouTubeID returns the 11-character video id of a YouTube URL.
func ExtractYouTubeID(url string) (string, bool) {
	for _, re := range youTubeIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ThumbnailURL is the high-quality still YouTube serves for a video id.
func ThumbnailURL(id string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", id)
}
