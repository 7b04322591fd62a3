package service

import (
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/classmate/internal/pkg/textutil"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const (
	AskExcerptChars  = 1200
	ChatExcerptChars = 1000
	DocumentChars    = 3000
	QuestionChars    = 4000
	SourceNameChars  = 255
	MaxPromptHits    = 5

	sourcePrefix = "Source: "
	hitSeparator = "\n\n"
)

type promptTemplate struct {
	hitsIntro   string
	hitsOutro   string
	searchIntro string
	searchOutro string
	docIntro    string
}

var askTemplate = promptTemplate{
	hitsIntro:   "Use the following document excerpts to answer the question. Cite sources where relevant.\n\nDocument excerpts:\n",
	hitsOutro:   "\n\nProvide a clear, concise answer in markdown.",
	searchIntro: "Use the following search results to answer the question. Cite sources where relevant.\n\nSearch results:\n",
	searchOutro: "\n\nProvide a clear, concise answer in markdown.",
	docIntro:    "Answer the question using the document content below.\n\nDocument:\n",
}

var chatTemplate = promptTemplate{
	hitsIntro:   "Answer the user's question using your knowledge and the following document excerpts (from uploaded documents):\n\nDocument Excerpts:\n",
	hitsOutro:   "\n\nProvide a comprehensive answer combining both your knowledge and the document excerpts. Cite sources when relevant.",
	searchIntro: "Answer the user's question using your knowledge and the following search results:\n\nSearch Results:\n",
	searchOutro: "\n\nProvide a comprehensive answer combining both your knowledge and the search results. Cite sources when relevant.",
	docIntro:    "Answer the user's question using the document content below.\n\nDocument:\n",
}

const (
	questionLabel = "\n\nQuestion: "
	userLabel     = "\n\nUser: "
)

// PromptContext carries whatever grounding material is available. Compose
// uses the first non-empty source in the order hits, search text, document.
type PromptContext struct {
	Hits       []vectorstore.Hit
	SearchText string
	Document   string
	// Preamble is prepended to a bare question, e.g. prior conversation.
	Preamble string
}

// PromptComposer builds bounded prompts. No output is longer than MaxChars
// runes regardless of input sizes.
type PromptComposer struct {
	excerptChars int
	tpl          promptTemplate
}

func NewAskComposer() *PromptComposer {
	return &PromptComposer{excerptChars: AskExcerptChars, tpl: askTemplate}
}

func NewChatComposer() *PromptComposer {
	return &PromptComposer{excerptChars: ChatExcerptChars, tpl: chatTemplate}
}

func (c *PromptComposer) ExcerptChars() int {
	return c.excerptChars
}

func (c *PromptComposer) Compose(question string, pc PromptContext) string {
	switch {
	case len(pc.Hits) > 0:
		return c.ComposeWithHits(question, pc.Hits)
	case strings.TrimSpace(pc.SearchText) != "":
		return c.ComposeWithSearch(question, pc.SearchText)
	case strings.TrimSpace(pc.Document) != "":
		return c.ComposeWithDocument(question, pc.Document)
	case strings.TrimSpace(pc.Preamble) != "":
		return c.clamp(textutil.Truncate(pc.Preamble, DocumentChars) + userLabel + c.question(question))
	default:
		return c.ComposeBare(question)
	}
}

func (c *PromptComposer) ComposeWithHits(question string, hits []vectorstore.Hit) string {
	if len(hits) == 0 {
		return c.ComposeBare(question)
	}
	if len(hits) > MaxPromptHits {
		hits = hits[:MaxPromptHits]
	}
	var sb strings.Builder
	sb.WriteString(c.tpl.hitsIntro)
	for i, h := range hits {
		if i > 0 {
			sb.WriteString(hitSeparator)
		}
		sb.WriteString(sourcePrefix)
		sb.WriteString(textutil.Truncate(singleLine(h.Filename), SourceNameChars))
		sb.WriteString("\n")
		sb.WriteString(textutil.Truncate(h.Text, c.excerptChars))
	}
	sb.WriteString(questionLabel)
	sb.WriteString(c.question(question))
	sb.WriteString(c.tpl.hitsOutro)
	return c.clamp(sb.String())
}

func (c *PromptComposer) ComposeWithSearch(question string, results string) string {
	if strings.TrimSpace(results) == "" {
		return c.ComposeBare(question)
	}
	return c.clamp(c.tpl.searchIntro + textutil.Truncate(results, DocumentChars) + questionLabel + c.question(question) + c.tpl.searchOutro)
}

func (c *PromptComposer) ComposeWithDocument(question string, content string) string {
	if strings.TrimSpace(content) == "" {
		return c.ComposeBare(question)
	}
	return c.clamp(c.tpl.docIntro + textutil.Truncate(content, DocumentChars) + questionLabel + c.question(question))
}

func (c *PromptComposer) ComposeBare(question string) string {
	return c.question(question)
}

// MaxChars is the largest prompt, in runes, any Compose variant can return.
func (c *PromptComposer) MaxChars() int {
	perHit := runes(sourcePrefix) + SourceNameChars + 1 + c.excerptChars
	hits := runes(c.tpl.hitsIntro) + MaxPromptHits*perHit + (MaxPromptHits-1)*runes(hitSeparator) +
		runes(questionLabel) + QuestionChars + runes(c.tpl.hitsOutro)
	search := runes(c.tpl.searchIntro) + DocumentChars + runes(questionLabel) + QuestionChars + runes(c.tpl.searchOutro)
	doc := runes(c.tpl.docIntro) + DocumentChars + runes(questionLabel) + QuestionChars
	preamble := DocumentChars + runes(userLabel) + QuestionChars
	return maxInt(hits, search, doc, preamble, QuestionChars)
}

func (c *PromptComposer) question(q string) string {
	return textutil.Truncate(strings.TrimSpace(q), QuestionChars)
}

func (c *PromptComposer) clamp(s string) string {
	return textutil.Truncate(s, c.MaxChars())
}

// FormatHits renders hits as plain search results text.
func FormatHits(hits []vectorstore.Hit, excerptChars int) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, sourcePrefix+textutil.Truncate(singleLine(h.Filename), SourceNameChars)+"\n"+textutil.Truncate(h.Text, excerptChars))
	}
	return strings.Join(parts, hitSeparator)
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

func maxInt(values ...int) int {
	out := 0
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}
