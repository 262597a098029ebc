// Package chunker splits documents into retrievable chunks using
// structure-aware strategies. A Smart dispatcher classifies each document
// and picks exactly one strategy: Default, Regulation, AuditReport or
// AuditIssue.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Document types understood by the dispatcher.
const (
	DocTypeRegulation = "regulation"
	DocTypeReport     = "report"
	DocTypeIssue      = "issue"
	DocTypeUnknown    = "unknown"
)

// Semantic boundary tags. Every chunk names the rule that produced it.
const (
	BoundaryFullText    = "full_text"
	BoundarySemantic    = "semantic_section"
	BoundarySentence    = "sentence"
	BoundaryFixedLength = "fixed_length_split"
	BoundaryArticle     = "article"
	BoundarySubArticle  = "sub_article"
	BoundaryReport      = "report_section"
	BoundaryIssueRow    = "issue_row"
)

// Document is a normalized input document. Produced by an external
// loader; immutable after ingestion.
type Document struct {
	DocID    string `json:"doc_id"`
	Text     string `json:"text"`
	Filename string `json:"filename"`
	DocType  string `json:"doc_type"`
	Title    string `json:"title"`
}

// Chunk is one retrievable unit of document text with structural
// provenance.
type Chunk struct {
	ChunkID          string   `json:"chunk_id"`
	DocID            string   `json:"doc_id"`
	Text             string   `json:"text"`
	SemanticBoundary string   `json:"semantic_boundary"`
	SectionPath      []string `json:"section_path,omitempty"`
	PageNos          []int    `json:"page_nos,omitempty"`
	CharCount        int      `json:"char_count"`
	DocType          string   `json:"doc_type"`
	Title            string   `json:"title"`
	Filename         string   `json:"filename"`
}

// Config controls chunk sizing.
type Config struct {
	ChunkSize int // target chunk size in characters
	Overlap   int // overlap between fixed-length splits
}

// DefaultChunkConfig returns the sizing used when a zero Config is given.
func DefaultChunkConfig() Config {
	return Config{ChunkSize: 800, Overlap: 80}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 800
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize / 10
	}
	return c
}

// Strategy turns one document into chunks.
type Strategy interface {
	Chunk(doc Document) []Chunk
}

// ---------------------------------------------------------------------------
// Smart dispatcher
// ---------------------------------------------------------------------------

// Smart classifies a document and delegates to one concrete strategy.
// Selection order: explicit doc type first, then structural probes
// (row markers, report headers, regulation keywords), then Default.
type Smart struct {
	cfg         Config
	plain       *Default
	regulation  *Regulation
	auditReport *AuditReport
	auditIssue  *AuditIssue
}

// NewSmart builds a dispatcher with all four strategies sharing cfg.
func NewSmart(cfg Config) *Smart {
	cfg = cfg.withDefaults()
	return &Smart{
		cfg:         cfg,
		plain:       NewDefault(cfg),
		regulation:  NewRegulation(cfg),
		auditReport: NewAuditReport(cfg),
		auditIssue:  NewAuditIssue(),
	}
}

// Chunk picks a strategy for doc and runs it. Page markers embedded by
// the loader are stripped from chunk text afterwards, with the page
// numbers recorded on each chunk.
func (s *Smart) Chunk(doc Document) []Chunk {
	chunks := s.pick(doc).Chunk(doc)
	return NormalizeChunks(doc, chunks)
}

// ChunkDocuments runs the dispatcher over a batch.
func (s *Smart) ChunkDocuments(docs []Document) []Chunk {
	var out []Chunk
	for _, d := range docs {
		out = append(out, s.Chunk(d)...)
	}
	return out
}

func (s *Smart) pick(doc Document) Strategy {
	switch doc.DocType {
	case DocTypeIssue:
		return s.auditIssue
	case DocTypeReport:
		return s.auditReport
	case DocTypeRegulation:
		return s.regulation
	}

	// Heuristic detection for untyped documents. Row markers are the
	// strongest signal, then report headers, then regulation structure.
	if strings.Contains(doc.Text, rowStartMarker) {
		return s.auditIssue
	}
	if looksLikeAuditReport(doc.Text, doc.Filename) {
		return s.auditReport
	}
	if looksLikeRegulation(doc.Text, doc.Filename) {
		return s.regulation
	}
	return s.plain
}

// DetectDocType reports the doc type the dispatcher would assign.
func (s *Smart) DetectDocType(doc Document) string {
	if doc.DocType != "" && doc.DocType != DocTypeUnknown {
		return doc.DocType
	}
	switch s.pick(doc).(type) {
	case *AuditIssue:
		return DocTypeIssue
	case *AuditReport:
		return DocTypeReport
	case *Regulation:
		return DocTypeRegulation
	}
	return DocTypeUnknown
}

var regulationKeywords = []string{"办法", "条例", "规定", "细则", "规范", "准则", "法"}

// looksLikeRegulation probes the filename and a text prefix for
// regulation markers. The probe is bounded; full-text scans are not
// worth their cost here.
func looksLikeRegulation(text, filename string) bool {
	for _, kw := range regulationKeywords {
		if strings.Contains(filename, kw) {
			return true
		}
	}
	head := runePrefix(text, 500)
	if articlePattern.MatchString(head) && chapterPattern.MatchString(runePrefix(text, 2000)) {
		return true
	}
	// Dense article numbering alone is enough.
	return len(articlePattern.FindAllString(runePrefix(text, 2000), -1)) >= 2
}

var reportKeywords = []string{"审计报告", "审计结果", "整改情况", "审计发现"}

func looksLikeAuditReport(text, filename string) bool {
	for _, kw := range reportKeywords {
		if strings.Contains(filename, kw) {
			return true
		}
	}
	head := runePrefix(text, 1000)
	for _, kw := range reportKeywords {
		if strings.Contains(head, kw) {
			return true
		}
	}
	return level1Pattern.MatchString(head) && strings.Contains(head, "审计")
}

// ---------------------------------------------------------------------------
// Chunk normalization
// ---------------------------------------------------------------------------

// pagePattern matches loader-embedded page boundary markers, double or
// single bracketed: [[PAGE:12]] or [PAGE:12].
var pagePattern = regexp.MustCompile(`\[\[?PAGE:(\d+)\]?\]`)

// StripPageMarkers removes page markers from text and returns the page
// numbers that were seen, in order, de-duplicated.
func StripPageMarkers(text string) (string, []int) {
	matches := pagePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var pages []int
	seen := map[int]bool{}
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		pages = append(pages, n)
	}
	clean := pagePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(clean), pages
}

// NormalizeChunks strips page markers, fills derived fields and assigns
// stable chunk IDs of the form {doc_id}_chunk_{idx}. Duplicate IDs get
// an extra _{idx} suffix. Empty chunks are dropped.
func NormalizeChunks(doc Document, chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	seen := map[string]bool{}
	for i, ch := range chunks {
		text, pages := StripPageMarkers(ch.Text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		ch.Text = text
		if len(pages) > 0 {
			ch.PageNos = pages
		}
		ch.DocID = doc.DocID
		ch.DocType = doc.DocType
		ch.Title = doc.Title
		ch.Filename = doc.Filename
		ch.CharCount = utf8.RuneCountInString(text)
		if ch.ChunkID == "" {
			ch.ChunkID = fmt.Sprintf("%s_chunk_%d", doc.DocID, i)
		}
		for seen[ch.ChunkID] {
			ch.ChunkID = fmt.Sprintf("%s_%d", ch.ChunkID, i)
		}
		seen[ch.ChunkID] = true
		out = append(out, ch)
	}
	return out
}

// ContentHash returns the stable content digest used for doc IDs:
// the first 16 hex characters of the text's SHA-256.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// ---------------------------------------------------------------------------
// Shared text helpers
// ---------------------------------------------------------------------------

func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// meaningfulChars counts letters and digits, which is what decides
// whether a fragment is a bare title or real content.
func meaningfulChars(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// keyInfoMarkers keep short fragments that carry monetary amounts or
// findings even when they fall below the meaningful-character floor.
var keyInfoMarkers = []string{"亿元", "万元", "违规", "问题"}

func hasKeyInfo(s string) bool {
	for _, m := range keyInfoMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// sentence-ending punctuation for CJK text, with western fallbacks.
var sentenceEnders = []rune{'。', '！', '？', '；', '.', '!', '?', ';'}

func isSentenceEnd(r rune) bool {
	for _, e := range sentenceEnders {
		if r == e {
			return true
		}
	}
	return false
}
