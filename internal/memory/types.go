package memory

// Source identifies which layer contributed an Item.
type Source string

const (
	SourceStructured Source = "structured"
	SourceShortTerm  Source = "shortterm"
	SourceLongTerm   Source = "longterm"
	SourceEpisodic   Source = "episodic"
)

// Item is a single retrieved fact or snippet. Items are produced by layers,
// consumed by the assembler, and never persisted.
type Item struct {
	Source    Source
	Text      string
	Relevance float64 // set by the long-term layer only
	Timestamp string
}

// ContextBundle is the merged, budget-bounded set of Items used to build one
// reply prompt. Consumed exactly once, not persisted.
type ContextBundle struct {
	Items  []Item
	Budget int
	Size   int
}
