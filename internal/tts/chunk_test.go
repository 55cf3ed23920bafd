package tts

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode"
)

func TestChunkShortText(t *testing.T) {
	got := Chunk("  [warmly] Welcome to Saints and Seasons.  ", 900)
	if len(got) != 1 || got[0] != "[warmly] Welcome to Saints and Seasons." {
		t.Fatalf("got %q", got)
	}
	if got := Chunk("   ", 900); len(got) != 0 {
		t.Fatalf("whitespace-only text should yield nothing, got %q", got)
	}
}

func TestChunkCases(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "hard cut without whitespace",
			text:  strings.Repeat("a", 25),
			limit: 10,
			want:  []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)},
		},
		{
			name:  "soft cut at last whitespace",
			text:  "aaaaaaa bbbbbbb",
			limit: 10,
			want:  []string{"aaaaaaa", "bbbbbbb"},
		},
		{
			name:  "whitespace too early is ignored",
			text:  "aa bbbbbbbbbbbb",
			limit: 10,
			want:  []string{"aa bbbbbbb", "bbbbb"},
		},
		{
			name:  "tag straddling the limit is kept whole",
			text:  "aaaaaa [softly] then more",
			limit: 10,
			want:  []string{"aaaaaa [softly]", "then more"},
		},
		{
			name:  "tag with inner space runs to next whitespace",
			text:  "aaaaaaa [church bells]ring out",
			limit: 10,
			want:  []string{"aaaaaaa [church bells]ring", "out"},
		},
		{
			name:  "whitespace runs after a cut are skipped",
			text:  "aaaaaaa    bbbbbbb",
			limit: 10,
			want:  []string{"aaaaaaa", "bbbbbbb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Chunk(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestChunkDefaultLimit(t *testing.T) {
	text := strings.Repeat("word ", 400)
	for _, piece := range Chunk(text, 0) {
		if n := len([]rune(piece)); n > DefaultMaxChunk {
			t.Fatalf("piece of %d runes exceeds default limit", n)
		}
	}
}

func TestChunkCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 12)
	got := Chunk(text, 5)
	if len(got) != 3 || got[0] != strings.Repeat("é", 5) || got[2] != "éé" {
		t.Fatalf("got %q", got)
	}
}

var vocabulary = []string{
	"Nicholas", "bishop", "of", "Myra", "gave", "gold", "to", "three", "daughters",
	"[warmly]", "[thoughtfully]", "[church bells]", "[with wonder]", "saint,", "feast.",
	"Ambrose", "[laughs softly]", "—", "Noël", "children", "shoes",
}

func randomScriptText(r *rand.Rand) string {
	var b strings.Builder
	words := 50 + r.IntN(600)
	for i := 0; i < words; i++ {
		if i > 0 {
			if r.IntN(20) == 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(vocabulary[r.IntN(len(vocabulary))])
	}
	return b.String()
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestChunkProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(6, 12))
	for i := 0; i < 300; i++ {
		text := randomScriptText(r)
		limit := 40 + r.IntN(900)
		pieces := Chunk(text, limit)

		if got, want := stripSpace(strings.Join(pieces, "")), stripSpace(text); got != want {
			t.Fatalf("case %d: content changed", i)
		}
		for _, p := range pieces {
			if p == "" || p != strings.TrimSpace(p) {
				t.Fatalf("case %d: piece %q is empty or untrimmed", i, p)
			}
			depth := 0
			for _, c := range p {
				switch c {
				case '[':
					depth++
				case ']':
					depth--
				}
				if depth < 0 {
					t.Fatalf("case %d: piece %q closes a tag it did not open", i, p)
				}
			}
			if depth != 0 {
				t.Fatalf("case %d: piece %q splits a tag", i, p)
			}
		}
	}
}

func TestBatch(t *testing.T) {
	in := func(n int, voice string) DialogueInput {
		return DialogueInput{Text: strings.Repeat("x", n), VoiceID: voice}
	}

	tests := []struct {
		name   string
		inputs []DialogueInput
		budget int
		sizes  []int
	}{
		{name: "empty", inputs: nil, budget: 10, sizes: nil},
		{name: "fits in one", inputs: []DialogueInput{in(3, "a"), in(4, "b"), in(3, "a")}, budget: 10, sizes: []int{3}},
		{name: "greedy split", inputs: []DialogueInput{in(6, "a"), in(5, "b"), in(4, "a"), in(1, "b")}, budget: 10, sizes: []int{1, 3}},
		{name: "oversized alone", inputs: []DialogueInput{in(2, "a"), in(15, "b"), in(2, "a")}, budget: 10, sizes: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Batch(tt.inputs, tt.budget)
			if len(batches) != len(tt.sizes) {
				t.Fatalf("got %d batches, want %d", len(batches), len(tt.sizes))
			}
			var flat []DialogueInput
			for i, b := range batches {
				if len(b) != tt.sizes[i] {
					t.Errorf("batch %d has %d inputs, want %d", i, len(b), tt.sizes[i])
				}
				flat = append(flat, b...)
			}
			for i := range flat {
				if flat[i] != tt.inputs[i] {
					t.Fatalf("order not preserved at %d", i)
				}
			}
		})
	}
}

func TestBatchBudgetProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(25, 12))
	var inputs []DialogueInput
	for i := 0; i < 500; i++ {
		inputs = append(inputs, DialogueInput{Text: strings.Repeat("y", 1+r.IntN(DefaultMaxChunk)), VoiceID: "v"})
	}
	for _, b := range Batch(inputs, 0) {
		total := 0
		for _, in := range b {
			total += len(in.Text)
		}
		if total > DefaultRequestBudget {
			t.Fatalf("batch of %d characters exceeds budget", total)
		}
	}
}
