package chunker

import (
	"regexp"
	"strings"
)

// Line classifiers for audit report structure: four header levels from
// "一、" down to "①" / "1）" items.
var (
	level1Pattern = regexp.MustCompile(`^[一二三四五六七八九十]+、`)
	level2Pattern = regexp.MustCompile(`^（[一二三四五六七八九十]+）|^\([一二三四五六七八九十]+\)`)
	level3Pattern = regexp.MustCompile(`^\d+[\.、]`)
	itemPattern   = regexp.MustCompile(`^[①②③④⑤⑥⑦⑧⑨⑩]|^\d+）|^\d+\)`)
)

// AuditReport aggregates audit report lines with a buffer-and-flush
// state machine. Level-1 and level-2 headers force a flush and reset
// the header path; lower-level content keeps accumulating under that
// path until another unit would exceed the chunk size, at which point
// the buffer flushes and a continuation buffer starts under the same
// path.
type AuditReport struct {
	cfg Config
}

// NewAuditReport returns an AuditReport strategy with cfg sizing.
func NewAuditReport(cfg Config) *AuditReport {
	return &AuditReport{cfg: cfg.withDefaults()}
}

type reportState struct {
	level1   string
	level2   string
	buf      strings.Builder
	bufLen   int
	contPart bool // current buffer continues an already flushed section
	chunks   []Chunk
	cfg      Config
}

func (st *reportState) headerPath() []string {
	var p []string
	if st.level1 != "" {
		p = append(p, st.level1)
	}
	if st.level2 != "" {
		p = append(p, st.level2)
	}
	return p
}

func (st *reportState) headerPrefix() string {
	path := st.headerPath()
	if len(path) == 0 {
		return ""
	}
	return strings.Join(path, " ") + "\n"
}

// flush emits the pending buffer as a chunk. Fragments below the
// meaningful-character floor are dropped unless they carry a monetary
// or finding keyword.
func (st *reportState) flush() {
	text := strings.TrimSpace(st.buf.String())
	st.buf.Reset()
	st.bufLen = 0
	if text == "" {
		return
	}
	if meaningfulChars(text) < minMeaningfulChars && !hasKeyInfo(text) {
		st.contPart = false
		return
	}
	boundary := BoundaryReport
	if st.contPart {
		boundary += "_cont"
	}
	st.chunks = append(st.chunks, Chunk{
		Text:             text,
		SemanticBoundary: boundary,
		SectionPath:      st.headerPath(),
	})
	st.contPart = false
}

// add appends one content line. When the line would push the buffer
// past the size limit, the buffer flushes first and the new buffer is
// re-seeded with the active header prefix.
func (st *reportState) add(line string) {
	ll := runeLen(line)
	if st.bufLen > 0 && st.bufLen+ll+1 > st.cfg.ChunkSize {
		st.flush()
		st.contPart = true
		st.seed(st.headerPrefix())
	}
	if st.bufLen > 0 {
		st.buf.WriteString("\n")
		st.bufLen++
	}
	st.buf.WriteString(line)
	st.bufLen += ll
}

func (st *reportState) seed(prefix string) {
	if prefix == "" {
		return
	}
	st.buf.WriteString(strings.TrimRight(prefix, "\n"))
	st.bufLen = runeLen(prefix)
}

// Chunk implements Strategy.
func (a *AuditReport) Chunk(doc Document) []Chunk {
	st := &reportState{cfg: a.cfg}
	sawHeader := false

	for _, raw := range strings.Split(doc.Text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case level1Pattern.MatchString(line):
			st.flush()
			sawHeader = true
			st.level1 = line
			st.level2 = ""
			st.seed(st.headerPrefix())
		case level2Pattern.MatchString(line):
			st.flush()
			sawHeader = true
			st.level2 = line
			st.seed(st.headerPrefix())
		case level3Pattern.MatchString(line), itemPattern.MatchString(line):
			st.add(line)
		default:
			st.add(line)
		}
	}
	st.flush()

	// Text with no recognizable report structure belongs to Default.
	if !sawHeader || len(st.chunks) == 0 {
		return NewDefault(a.cfg).Chunk(doc)
	}
	return st.chunks
}
