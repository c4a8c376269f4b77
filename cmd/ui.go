package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/braggingrights/internal/models"
	"github.com/xhad/braggingrights/pkg/workflow"
)

var barTheme = progressbar.Theme{
	Saucer:        "█",
	SaucerHead:    "█",
	SaucerPadding: "░",
	BarStart:      "[",
	BarEnd:        "]",
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("calls"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(barTheme),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getByteBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(barTheme),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// spin shows a spinner while fn runs.
func spin(description string, fn func() error) error {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				spinner.Add(1)
			}
		}
	}()

	err := fn()
	close(done)
	spinner.Finish()
	fmt.Print("\n")
	return err
}

var stepDescriptions = map[string]string{
	workflow.StepSayings: "💭 Generating sayings...",
	workflow.StepEssays:  "📝 Writing essays...",
	workflow.StepGuesses: "🔍 Retrieving and guessing...",
}

// stepBars shows one progress bar per workflow step.
type stepBars struct {
	current string
	bar     *progressbar.ProgressBar
}

func newStepBars() *stepBars {
	return &stepBars{}
}

func (s *stepBars) Update(step string, done, total int) {
	if step != s.current {
		s.Finish()
		s.current = step
		s.bar = getProgressBar(total, stepDescriptions[step])
	}
	s.bar.Set(done)
}

func (s *stepBars) Finish() {
	if s.bar != nil {
		s.bar.Finish()
		fmt.Print("\n")
		s.bar = nil
	}
}

// pullReporter renders Ollama pull progress: a byte bar for every layer
// download, a plain line for every other status.
type pullReporter struct {
	key string
	bar *progressbar.ProgressBar
}

func newPullReporter() *pullReporter {
	return &pullReporter{}
}

func (r *pullReporter) Report(model, status string, completed, total int64) {
	key := model + "/" + status
	if total > 0 {
		if key != r.key {
			r.Finish()
			r.key = key
			r.bar = getByteBar(total, fmt.Sprintf("⬇ %s %s", model, status))
		}
		r.bar.Set64(completed)
		return
	}

	if key != r.key {
		r.Finish()
		r.key = key
		fmt.Println(color.CyanString("%s: %s", model, status))
	}
}

func (r *pullReporter) Finish() {
	if r.bar != nil {
		r.bar.Finish()
		fmt.Print("\n")
		r.bar = nil
	}
	r.key = ""
}

func printReport(report *models.Report) {
	bold := color.New(color.Bold).SprintFunc()

	color.Cyan("\nResults for %s (embeddings: %s)", report.Model, report.EmbeddingModel)
	for i, round := range report.Rounds {
		fmt.Printf("\n%d. %s\n", i+1, bold(round.Saying))

		if round.RetrievedOwn {
			color.Green("   retrieved its own essay (distance %.4f)", round.Retrieved.Distance)
		} else {
			color.Yellow("   retrieved another essay (distance %.4f)", round.Retrieved.Distance)
		}

		switch {
		case !round.Found:
			color.Red("   ✗ no quoted guess in: %s", round.RawGuess)
		case round.Correct:
			color.Green("   ✓ guessed %q", round.Guess)
		default:
			color.Red("   ✗ guessed %q", round.Guess)
		}
	}

	correct := 0
	for _, round := range report.Rounds {
		if round.Correct {
			correct++
		}
	}
	score := fmt.Sprintf("\nScore: %d/%d (%.0f%%)", correct, len(report.Rounds), report.Score()*100)
	if report.Score() >= 0.5 {
		color.Green("%s", score)
	} else {
		color.Red("%s", score)
	}
	fmt.Printf("Indexing took %s\n", report.IndexDuration.Round(time.Millisecond))
}
