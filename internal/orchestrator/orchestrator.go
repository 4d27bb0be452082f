// Package orchestrator submits texts to the oracle and drives persistence,
// statistics refresh and user notifications from the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/spacesedan/sentiboard/internal/apperrors"
	"github.com/spacesedan/sentiboard/internal/clients"
	"github.com/spacesedan/sentiboard/internal/models"
)

const (
	titleError         = "Error"
	titleSingleDone    = "Analysis Complete"
	titleBatchDone     = "Batch Analysis Complete"
	titleCleared       = "Database Cleared"
	msgEmptySingle     = "Please enter some text to analyze"
	msgEmptyBatch      = "Please enter texts to analyze (one per line)"
	msgSingleFallback  = "Failed to analyze sentiment. Please try again."
	msgBatchFallback   = "Failed to analyze batch. Please try again."
	msgCleared         = "All sentiment data has been removed from the database"
	msgMissingResponse = "oracle returned no result for this text"
)

type Oracle interface {
	Predict(ctx context.Context, text string) (models.SentimentResult, error)
	BatchPredict(ctx context.Context, texts []string) (models.BatchPredictResponse, error)
}

type Store interface {
	Save(ctx context.Context, result models.SentimentResult) bool
	Clear(ctx context.Context, confirm clients.ConfirmFunc) error
}

type Stats interface {
	Refresh(ctx context.Context) error
	Reset()
}

type Notifier interface {
	Enqueue(n models.Notification) models.Notification
}

type Config struct {
	Oracle   Oracle
	Store    Store
	Stats    Stats
	Notifier Notifier
	Logger   *slog.Logger
}

type Orchestrator struct {
	oracle   Oracle
	store    Store
	stats    Stats
	notifier Notifier
	log      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		oracle:   cfg.Oracle,
		store:    cfg.Store,
		stats:    cfg.Stats,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
	}
}

// SubmitSingle classifies one text. A successful classification is returned
// even when saving it fails.
func (o *Orchestrator) SubmitSingle(ctx context.Context, text string) (models.SentimentResult, error) {
	const op = "submit_single"

	trimmed := strings.TrimSpace(text)
	if err := validateText(op, trimmed, msgEmptySingle); err != nil {
		o.fail(err, "")
		return models.SentimentResult{}, err
	}

	result, err := o.oracle.Predict(ctx, trimmed)
	if err != nil {
		o.log.Error("[Orchestrator] Prediction failed", slog.String("error", err.Error()))
		o.fail(err, msgSingleFallback)
		return models.SentimentResult{}, err
	}

	saved := o.store.Save(ctx, result)
	if saved {
		o.refresh(ctx)
	}

	description := fmt.Sprintf("Sentiment: %s (%s confidence)", result.PredictedClass, result.ConfidencePercent())
	if saved {
		description += " - Saved to database"
	}
	o.notify(models.SeverityInfo, titleSingleDone, description)

	return result, nil
}

// SubmitBatch classifies newline-delimited input in one oracle call. Blank
// lines are dropped; the outcome has one item per remaining line in input
// order. Successful items are saved one after another.
func (o *Orchestrator) SubmitBatch(ctx context.Context, input string) (models.BatchOutcome, error) {
	const op = "submit_batch"

	texts := SplitBatch(input)
	if len(texts) == 0 {
		err := apperrors.NewValidation(op, msgEmptyBatch)
		o.fail(err, "")
		return models.BatchOutcome{}, err
	}

	resp, err := o.oracle.BatchPredict(ctx, texts)
	if err != nil {
		o.log.Error("[Orchestrator] Batch prediction failed",
			slog.Int("batch_size", len(texts)),
			slog.String("error", err.Error()))
		o.fail(err, msgBatchFallback)
		return models.BatchOutcome{}, err
	}
	if len(resp.Results) != len(texts) {
		o.log.Warn("[Orchestrator] Oracle result count differs from input",
			slog.Int("inputs", len(texts)),
			slog.Int("results", len(resp.Results)))
	}

	outcome := models.BatchOutcome{
		Items:          make([]models.BatchItem, len(texts)),
		TotalProcessed: resp.TotalProcessed,
	}
	for i, text := range texts {
		item := models.BatchItem{Text: text, Outcome: models.PredictFailure{Reason: msgMissingResponse}}
		if i < len(resp.Results) {
			item.Outcome = resp.Results[i].Outcome()
		}
		if s, ok := item.Outcome.(models.PredictSuccess); ok && s.Result.Text == "" {
			s.Result.Text = text
			item.Outcome = s
		}
		outcome.Items[i] = item
	}
	if outcome.TotalProcessed == 0 {
		outcome.TotalProcessed = len(outcome.Items)
	}

	for i, item := range outcome.Items {
		switch v := item.Outcome.(type) {
		case models.PredictSuccess:
			if o.store.Save(ctx, v.Result) {
				outcome.Saved++
			} else {
				outcome.SaveFailures++
			}
		case models.PredictFailure:
			o.log.Warn("[Orchestrator] Batch item failed",
				slog.Int("index", i),
				slog.String("reason", v.Reason),
				slog.String("error_kind", string(apperrors.KindPartialItem)))
		}
	}
	if outcome.Saved > 0 {
		o.refresh(ctx)
	}

	description := fmt.Sprintf("Analyzed %d texts, saved %d to database", outcome.TotalProcessed, outcome.Saved)
	if failed := outcome.Failures(); failed > 0 {
		description += fmt.Sprintf(", %d failed", failed)
	}
	o.notify(models.SeverityInfo, titleBatchDone, description)

	o.log.Info("[Orchestrator] Batch complete",
		slog.Int("items", len(outcome.Items)),
		slog.Int("succeeded", outcome.Successes()),
		slog.Int("saved", outcome.Saved),
		slog.Int("save_failures", outcome.SaveFailures))
	return outcome, nil
}

// ClearAll removes every stored entry after confirm agrees, then drops the
// displayed statistics at once. A declined confirmation returns
// clients.ErrClearNotConfirmed and changes nothing.
func (o *Orchestrator) ClearAll(ctx context.Context, confirm clients.ConfirmFunc) error {
	err := o.store.Clear(ctx, confirm)
	if errors.Is(err, clients.ErrClearNotConfirmed) {
		return err
	}
	if err != nil {
		o.log.Error("[Orchestrator] Failed to clear database", slog.String("error", err.Error()))
		return err
	}

	o.stats.Reset()
	o.notify(models.SeverityInfo, titleCleared, msgCleared)
	return nil
}

// Refresh reloads statistics from the store.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.stats.Refresh(ctx)
}

// SplitBatch turns newline-delimited input into trimmed, non-blank lines.
func SplitBatch(input string) []string {
	lines := strings.Split(input, "\n")
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

func validateText(op, text, emptyMessage string) error {
	if text == "" {
		return apperrors.NewValidation(op, emptyMessage)
	}
	if utf8.RuneCountInString(text) > models.MaxTextLength {
		return apperrors.NewValidation(op, fmt.Sprintf("Text must be at most %d characters", models.MaxTextLength))
	}
	return nil
}

func (o *Orchestrator) refresh(ctx context.Context) {
	if o.stats == nil {
		return
	}
	if err := o.stats.Refresh(ctx); err != nil {
		o.log.Warn("[Orchestrator] Stats refresh failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) fail(err error, fallback string) {
	o.notify(models.SeverityDestructive, titleError, apperrors.UserMessage(err, fallback))
}

func (o *Orchestrator) notify(severity models.Severity, title, description string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Enqueue(models.Notification{
		Title:       title,
		Description: description,
		Severity:    severity,
	})
}
