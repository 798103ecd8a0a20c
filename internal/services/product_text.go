package services

import (
	"bytes"
	stdhtml "html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	strictPolicy = bluemonday.StrictPolicy()

	descriptionPolicyOnce sync.Once
	descriptionPolicy     *bluemonday.Policy

	descriptionMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

// sanitizePlain strips every tag from user input and trims surrounding space. The result
// is plain text; callers rendering it as HTML must escape it.
func sanitizePlain(value string) string {
	return strings.TrimSpace(stdhtml.UnescapeString(strictPolicy.Sanitize(value)))
}

func productDescriptionPolicy() *bluemonday.Policy {
	descriptionPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.RequireNoFollowOnLinks(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		descriptionPolicy = policy
	})
	return descriptionPolicy
}

// RenderDescriptionHTML renders a product description written in Markdown to sanitised HTML.
func RenderDescriptionHTML(markdown string) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := descriptionMarkdown.Convert([]byte(markdown), &buf); err != nil {
		return "<p>" + strictPolicy.Sanitize(markdown) + "</p>"
	}
	return strings.TrimSpace(productDescriptionPolicy().Sanitize(buf.String()))
}
