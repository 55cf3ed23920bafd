package tts

import "unicode"

// DefaultMaxChunk is the longest piece of one line sent as a single input.
const DefaultMaxChunk = 900

// DefaultRequestBudget bounds the total text of one dialogue request.
const DefaultRequestBudget = 2500

// Chunk splits text into pieces of roughly limit characters without ever
// cutting inside a square-bracket delivery tag such as [warmly]. It prefers
// whitespace outside tags once a piece is at least 60% of limit; when a tag
// straddles the limit the piece runs on to the tag's close and then to the
// next whitespace. Pieces are trimmed and empty ones dropped; no
// non-whitespace character is lost or reordered.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxChunk
	}
	rs := []rune(text)
	n := len(rs)
	if n <= limit {
		if piece := trimRunes(rs); len(piece) > 0 {
			return []string{string(piece)}
		}
		return nil
	}

	softMin := limit * 6 / 10
	var chunks []string
	i := 0
	for i < n {
		start := i
		depth := 0
		lastSpace := -1
		j := i
		for j < n && j-start < limit {
			switch rs[j] {
			case '[':
				depth++
			case ']':
				if depth > 0 {
					depth--
				}
			}
			if depth == 0 && unicode.IsSpace(rs[j]) {
				lastSpace = j
			}
			j++
		}

		cut := j
		switch {
		case j >= n:
			cut = n
		case depth > 0:
			for j < n && depth > 0 {
				switch rs[j] {
				case '[':
					depth++
				case ']':
					depth--
				}
				j++
			}
			for j < n && !unicode.IsSpace(rs[j]) {
				j++
			}
			cut = j
		case lastSpace != -1 && lastSpace-start >= softMin:
			cut = lastSpace
		}

		if piece := trimRunes(rs[start:cut]); len(piece) > 0 {
			chunks = append(chunks, string(piece))
		}
		i = cut
		for i < n && unicode.IsSpace(rs[i]) {
			i++
		}
	}
	return chunks
}

func trimRunes(rs []rune) []rune {
	for len(rs) > 0 && unicode.IsSpace(rs[0]) {
		rs = rs[1:]
	}
	for len(rs) > 0 && unicode.IsSpace(rs[len(rs)-1]) {
		rs = rs[:len(rs)-1]
	}
	return rs
}

// Batch packs inputs greedily, in order, into groups whose combined text is
// at most budget characters. An input longer than budget forms its own batch.
func Batch(inputs []DialogueInput, budget int) [][]DialogueInput {
	if budget <= 0 {
		budget = DefaultRequestBudget
	}
	var batches [][]DialogueInput
	var current []DialogueInput
	size := 0
	for _, in := range inputs {
		l := len([]rune(in.Text))
		if len(current) > 0 && size+l > budget {
			batches = append(batches, current)
			current, size = nil, 0
		}
		current = append(current, in)
		size += l
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
