package chunker

import (
	"regexp"
	"strings"
)

// Line classifiers for regulation structure. Chinese numerals and
// arabic digits both occur in the wild.
var (
	chapterPattern    = regexp.MustCompile(`^第[一二三四五六七八九十百千万零0-9]+章`)
	sectionPattern    = regexp.MustCompile(`^第[一二三四五六七八九十百千万零0-9]+节`)
	articlePattern    = regexp.MustCompile(`第[一二三四五六七八九十百千万零0-9]+条`)
	articleAtStart    = regexp.MustCompile(`^第[一二三四五六七八九十百千万零0-9]+条`)
	subArticlePattern = regexp.MustCompile(`^（[一二三四五六七八九十]+）|^\([一二三四五六七八九十]+\)`)
)

// minMeaningfulChars is the floor below which a fragment counts as a
// bare title rather than content.
const minMeaningfulChars = 10

// Regulation splits legal text along its chapter/section/article
// hierarchy. Articles are the chunk unit; sub-article clauses fold into
// their parent article instead of standing alone. The active chapter
// and section become the chunk's section path.
type Regulation struct {
	cfg Config
}

// NewRegulation returns a Regulation strategy with cfg sizing.
func NewRegulation(cfg Config) *Regulation {
	return &Regulation{cfg: cfg.withDefaults()}
}

// Chunk implements Strategy.
func (r *Regulation) Chunk(doc Document) []Chunk {
	lines := strings.Split(doc.Text, "\n")

	var (
		chunks      []Chunk
		chapter     string
		section     string
		article     strings.Builder
		preamble    strings.Builder
		seenArticle bool
	)

	appendLine := func(b *strings.Builder, line string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}

	sectionPath := func() []string {
		var p []string
		if chapter != "" {
			p = append(p, chapter)
		}
		if section != "" {
			p = append(p, section)
		}
		return p
	}

	flushArticle := func() {
		text := strings.TrimSpace(article.String())
		article.Reset()
		if text == "" {
			return
		}
		if meaningfulChars(text) < minMeaningfulChars && !hasKeyInfo(text) {
			return
		}
		chunks = append(chunks, r.splitArticle(text, sectionPath())...)
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case chapterPattern.MatchString(line):
			flushArticle()
			chapter = line
			section = ""
		case sectionPattern.MatchString(line):
			flushArticle()
			section = line
		case articleAtStart.MatchString(line):
			flushArticle()
			seenArticle = true
			article.WriteString(line)
		case subArticlePattern.MatchString(line) && seenArticle:
			// Numbered clauses fold into the open article rather
			// than standing alone.
			appendLine(&article, line)
		default:
			// Continuation lines fold into the open article. Text
			// before the first article is preamble.
			if seenArticle {
				appendLine(&article, line)
			} else {
				appendLine(&preamble, line)
			}
		}
	}
	flushArticle()

	pre := strings.TrimSpace(preamble.String())
	if pre != "" && (meaningfulChars(pre) >= minMeaningfulChars || hasKeyInfo(pre)) {
		head := Chunk{Text: pre, SemanticBoundary: BoundarySemantic}
		chunks = append([]Chunk{head}, chunks...)
	}

	if len(chunks) == 0 {
		// No recognizable structure; let Default handle it.
		return NewDefault(r.cfg).Chunk(doc)
	}
	return chunks
}

// splitArticle emits one article chunk, re-splitting oversized articles
// at paragraph then sentence boundaries. Re-split pieces keep the
// article header as a prefix and are tagged sub_article.
func (r *Regulation) splitArticle(text string, path []string) []Chunk {
	if runeLen(text) <= r.cfg.ChunkSize {
		return []Chunk{{Text: text, SemanticBoundary: BoundaryArticle, SectionPath: path}}
	}

	header := articleHeader(text)
	prefix := ""
	if header != "" && header != text {
		prefix = header + "\n"
	}

	budget := r.cfg.ChunkSize - runeLen(prefix)
	if budget < r.cfg.ChunkSize/2 {
		budget = r.cfg.ChunkSize
	}

	var out []Chunk
	for _, piece := range splitSentences(text, budget) {
		body := strings.TrimSpace(piece)
		if body == "" {
			continue
		}
		t := body
		if prefix != "" && !strings.HasPrefix(body, header) {
			t = prefix + body
		}
		out = append(out, Chunk{Text: t, SemanticBoundary: BoundarySubArticle, SectionPath: path})
	}
	return out
}

// articleHeader returns the first line of an article, which carries the
// article number and usually its subject.
func articleHeader(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return ""
}
