package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/templ"

	"github.com/medsim/osce/internal/chat"
	"github.com/medsim/osce/internal/model"
)

const scrollScript = `<script>(function(){var e=document.getElementById("transcript-end");if(e)e.scrollIntoView({block:"end"})})();</script>`

type assetBaseKey struct{}

// WithAssetBase makes server-relative image paths in transcripts resolve
// against base (the OSCE server URL).
func WithAssetBase(ctx context.Context, base string) context.Context {
	return context.WithValue(ctx, assetBaseKey{}, strings.TrimRight(base, "/"))
}

func assetURL(ctx context.Context, path string) string {
	base, _ := ctx.Value(assetBaseKey{}).(string)
	if base != "" && strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") {
		return base + path
	}
	return path
}

func roleLabel(ctx context.Context, r model.Role) string {
	switch r {
	case model.RoleUser:
		return t(ctx, "RoleUser")
	case model.RoleAssistant:
		return t(ctx, "RoleAssistant")
	}
	return t(ctx, "RoleSystem")
}

// Transcript renders the consultation so far. Images become thumbnails that
// open a full-size overlay and the list scrolls to the newest message.
func Transcript(msgs []model.ChatMessage) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div class="transcript">`)
		img := 0
		for _, m := range msgs {
			h.raw("<div")
			h.attr("class", "msg msg-"+string(m.Role))
			h.raw("><strong>")
			h.text(roleLabel(ctx, m.Role))
			h.raw(":</strong> ")
			for _, seg := range chat.Segments(m.Content) {
				if seg.Kind == chat.SegmentText {
					h.text(seg.Text)
					continue
				}
				img++
				image(ctx, h, img, seg)
			}
			h.raw("</div>")
		}
		h.raw(`<div id="transcript-end"></div></div>`, scrollScript)
	})
}

func image(ctx context.Context, h *htmlWriter, n int, seg chat.Segment) {
	id := fmt.Sprintf("zoom-%d", n)
	src := assetURL(ctx, seg.Path)
	alt := seg.Description

	h.raw(`<a class="thumb"`)
	h.attr("href", "#"+id)
	h.attr("title", t(ctx, "ViewImage"))
	h.raw("><img")
	h.url("src", src)
	h.attr("alt", alt)
	h.raw("></a>")
	if alt != "" {
		h.raw(`<em class="caption">`)
		h.text(alt)
		h.raw("</em>")
	}

	h.raw(`<div class="overlay"`)
	h.attr("id", id)
	h.raw(`><a class="close" href="#transcript-end">`)
	h.text(t(ctx, "CloseImage"))
	h.raw("</a><img")
	h.url("src", src)
	h.attr("alt", alt)
	h.raw("></div>")
}
