package chunker

import "strings"

// Default splits unstructured text. Order of attempts: whole text if it
// fits, paragraph aggregation, sentence boundaries, fixed-length cuts
// with overlap. Each level only fires when the one above produced an
// oversized piece.
type Default struct {
	cfg Config
}

// NewDefault returns a Default strategy with cfg sizing.
func NewDefault(cfg Config) *Default {
	return &Default{cfg: cfg.withDefaults()}
}

// Chunk implements Strategy.
func (d *Default) Chunk(doc Document) []Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= d.cfg.ChunkSize {
		return []Chunk{{Text: text, SemanticBoundary: BoundaryFullText}}
	}

	var chunks []Chunk
	for _, sec := range mergeParagraphs(splitParagraphs(text), d.cfg.ChunkSize) {
		if runeLen(sec) <= d.cfg.ChunkSize {
			chunks = append(chunks, Chunk{Text: sec, SemanticBoundary: BoundarySemantic})
			continue
		}
		chunks = append(chunks, d.splitOversized(sec, "")...)
	}
	return chunks
}

// splitOversized breaks a piece that exceeds the chunk size, first at
// sentence boundaries, then by fixed-length cuts. prefix, when set, is
// re-applied to every produced chunk so each stays readable on its own.
func (d *Default) splitOversized(text, prefix string) []Chunk {
	sentences := splitSentences(text, d.cfg.ChunkSize)
	if len(sentences) > 1 {
		var out []Chunk
		for _, s := range sentences {
			if runeLen(s) <= d.cfg.ChunkSize {
				out = append(out, Chunk{Text: prefix + s, SemanticBoundary: BoundarySentence})
				continue
			}
			for _, f := range fixedLengthSplit(s, d.cfg.ChunkSize, d.cfg.Overlap) {
				out = append(out, Chunk{Text: prefix + f, SemanticBoundary: BoundaryFixedLength})
			}
		}
		return out
	}

	var out []Chunk
	for _, f := range fixedLengthSplit(text, d.cfg.ChunkSize, d.cfg.Overlap) {
		out = append(out, Chunk{Text: prefix + f, SemanticBoundary: BoundaryFixedLength})
	}
	return out
}

// ---------------------------------------------------------------------------
// Split primitives
// ---------------------------------------------------------------------------

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	var out []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeParagraphs greedily packs adjacent paragraphs up to the size
// limit. Oversized single paragraphs pass through untouched for the
// caller to re-split.
func mergeParagraphs(paras []string, size int) []string {
	var out []string
	var buf strings.Builder
	bufLen := 0
	flush := func() {
		if bufLen > 0 {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}
	for _, p := range paras {
		pl := runeLen(p)
		if pl > size {
			flush()
			out = append(out, p)
			continue
		}
		if bufLen > 0 && bufLen+pl+1 > size {
			flush()
		}
		if bufLen > 0 {
			buf.WriteString("\n")
			bufLen++
		}
		buf.WriteString(p)
		bufLen += pl
	}
	flush()
	return out
}

// splitSentences cuts text into pieces of at most size runes, breaking
// at the last sentence-ending punctuation within the window. A break is
// only taken past the half-size mark; otherwise the cut is hard, to
// avoid degenerate tiny pieces on punctuation-sparse text.
func splitSentences(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	minCut := size / 2

	var out []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := -1
		for i := end - 1; i > start+minCut; i-- {
			if isSentenceEnd(runes[i]) {
				cut = i + 1
				break
			}
		}
		if cut == -1 {
			cut = end
		}
		piece := strings.TrimSpace(string(runes[start:cut]))
		if piece != "" {
			out = append(out, piece)
		}
		start = cut
	}
	return out
}

// fixedLengthSplit is the last-resort cutter: size-rune windows with
// overlap runes carried between consecutive pieces.
func fixedLengthSplit(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
