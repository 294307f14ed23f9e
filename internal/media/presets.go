// Package media downloads remote asset files and serves them resized or
// transcoded according to a named preset. Image work happens in-process;
// video work shells out to ffmpeg through a bounded worker pool.
package media

import "fmt"

type imagePreset struct {
	Width  int
	Height int
}

// Image preset labels match the size names the storefront sends verbatim.
var imagePresets = map[string]imagePreset{
	"Original (6000x4000)": {Width: 6000, Height: 4000},
	"Large (1920x1280)":    {Width: 1920, Height: 1280},
	"Medium (1280x1280)":   {Width: 1280, Height: 1280},
	"Small (640x427)":      {Width: 640, Height: 427},
}

// Video preset labels map to ffmpeg scale dimensions.
var videoPresets = map[string]string{
	"SD (360x640)":        "640:360",
	"SD (540x960)":        "960:540",
	"HD (720x1280)":       "1280:720",
	"Full HD (1080x1920)": "1920:1080",
	"Quad HD (1440x2560)": "2560:1440",
	"4K UHD (2160x3840)":  "3840:2160",
}

// ImagePreset resolves an image size label.
func ImagePreset(label string) (width, height int, ok bool) {
	preset, ok := imagePresets[label]
	return preset.Width, preset.Height, ok
}

// VideoScale resolves a video size label to an ffmpeg scale expression.
func VideoScale(label string) (string, bool) {
	scale, ok := videoPresets[label]
	return scale, ok
}

// Presets lists every known size label, for diagnostics.
func Presets() []string {
	labels := make([]string, 0, len(imagePresets)+len(videoPresets))
	for label := range imagePresets {
		labels = append(labels, label)
	}
	for label := range videoPresets {
		labels = append(labels, label)
	}
	return labels
}

func scaleFilter(scale string) string {
	return fmt.Sprintf("scale=%s", scale)
}
