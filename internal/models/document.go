package models

import "time"

// Saying is a short aphorism produced by the model. It is the ground-truth
// label of one round of the experiment.
type Saying = string

// Essay is the explanatory text generated for a saying.
type Essay = string

type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Match is a similarity search hit. Lower distance is closer.
type Match struct {
	Document
	Distance float64
}

// Round records one retrieve-and-guess attempt for a saying.
type Round struct {
	Saying    Saying
	Essay     Essay
	Retrieved Match
	// RetrievedOwn is set when the nearest document is the essay written
	// for Saying.
	RetrievedOwn bool
	RawGuess     string
	Guess        string
	Found        bool
	Correct      bool
}

type Report struct {
	Model          string
	EmbeddingModel string
	Sayings        []Saying
	Rounds         []Round
	IndexDuration  time.Duration
}

// Score is the share of rounds whose extracted guess matched the saying.
func (r *Report) Score() float64 {
	if len(r.Rounds) == 0 {
		return 0
	}
	correct := 0
	for _, round := range r.Rounds {
		if round.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(r.Rounds))
}
