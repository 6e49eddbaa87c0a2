package handlers

import (
	"fmt"
	"html/template"
	"slices"

	"github.com/Brownie44l1/snaplabel/internal/content"
	"github.com/Brownie44l1/snaplabel/internal/session"
)

type bar struct {
	Label     string
	Percent   string
	Width     string
	Highlight bool
}

type videoCard struct {
	URL   string
	Thumb string
}

type page struct {
	Labels     []string
	Error      string
	HasImage   bool
	Prediction string
	Bars       []bar
	Selected   string
	Texts      []string
	Images     []template.URL
	Videos     []videoCard
	NoContent  bool
}

func (h *Handler) buildPage(st session.State, requested, errMsg string) page {
	labels := h.classifier.Labels()
	p := page{
		Labels:   labels,
		Error:    errMsg,
		HasImage: st.HasImage() && st.LastResult != nil,
	}
	if !p.HasImage {
		return p
	}

	result := st.LastResult
	p.Prediction = result.Label
	for _, prob := range result.Ranked {
		pct := prob.Value * 100
		p.Bars = append(p.Bars, bar{
			Label:     prob.Label,
			Percent:   fmt.Sprintf("%.2f", pct),
			Width:     fmt.Sprintf("%.4f", pct),
			Highlight: prob.Label == result.Label,
		})
	}

	p.Selected = selectLabel(labels, requested, st.LastLabel)
	entry := h.content.Lookup(p.Selected)
	p.NoContent = entry.IsEmpty()
	p.Texts = entry.Texts
	for _, src := range entry.Images {
		// content comes from the operator's table, data: URIs included
		p.Images = append(p.Images, template.URL(src))
	}
	for _, v := range entry.Videos {
		card := videoCard{URL: v}
		if id, ok := content.ExtractYouTubeID(v); ok {
			card.Thumb = content.ThumbnailURL(id)
		}
		p.Videos = append(p.Videos, card)
	}
	return p
}

// selectLabel picks the label whose content is shown: the requested one if
// it is a known label, else the last prediction, else the first label.
func selectLabel(labels []string, requested, predicted string) string {
	switch {
	case slices.Contains(labels, requested):
		return requested
	case slices.Contains(labels, predicted):
		return predicted
	case len(labels) > 0:
		return labels[0]
	}
	return ""
}
