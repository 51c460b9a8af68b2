package service

import (
	"strings"

	"deskbridge/internal/media"
	"deskbridge/internal/models"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// ExpandRichText rewrites rich-text blocks into plain markdown text plus
// promoted image attachments. Helpdesk agents paste screenshots inline; the
// chat side cannot render arbitrary HTML, so embedded images become first
// class attachments and the markup becomes markdown. Images whose URL already
// appears as a declared attachment elsewhere in the message are not promoted
// twice.
func ExpandRichText(blocks []models.ContentBlock) []models.ContentBlock {
	declared := make(map[string]bool)
	for _, b := range blocks {
		if b.Attachment != nil && b.Attachment.SourceURL != "" {
			declared[b.Attachment.SourceURL] = true
		}
	}

	out := make([]models.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind != models.BlockRichText {
			out = append(out, b)
			continue
		}

		text, imgURLs := convertRichText(b.Text)
		if text != "" {
			out = append(out, models.ContentBlock{Kind: models.BlockText, Text: text})
		}
		for _, src := range imgURLs {
			if declared[src] {
				continue
			}
			declared[src] = true
			name := media.SanitizeFilename(fileNameFromURL(src))
			mime := media.MimeFromFilename(name)
			if !strings.HasPrefix(mime, "image/") {
				mime = "image/png"
			}
			out = append(out, models.ContentBlock{
				Kind: models.BlockImage,
				Attachment: &models.AttachmentRef{
					ContentID: uuid.NewString(),
					SourceURL: src,
					FileName:  media.EnsureExtension(name, mime),
					MimeType:  mime,
					Category:  models.MediaImage,
				},
			})
		}
	}
	return out
}

// convertRichText converts HTML to markdown and collects embedded image URLs
// in document order. Images are removed from the markup before conversion;
// they surface as promoted attachments, not as markdown image syntax.
func convertRichText(rawHTML string) (string, []string) {
	var (
		imgURLs  []string
		imgNodes []*html.Node
	)

	node, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		markdown, convErr := htmltomarkdown.ConvertString(rawHTML)
		if convErr != nil {
			return strings.TrimSpace(rawHTML), nil
		}
		return strings.TrimSpace(markdown), nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key == "src" && attr.Val != "" {
					imgURLs = append(imgURLs, attr.Val)
				}
			}
			imgNodes = append(imgNodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	for _, n := range imgNodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var buf strings.Builder
	if err := html.Render(&buf, node); err != nil {
		return strings.TrimSpace(textContent(node)), imgURLs
	}

	markdown, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		markdown = textContent(node)
	}
	return strings.TrimSpace(markdown), imgURLs
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func fileNameFromURL(src string) string {
	trimmed := strings.SplitN(src, "?", 2)[0]
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "image"
	}
	return trimmed
}
