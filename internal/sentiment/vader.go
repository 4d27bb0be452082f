// Package sentiment is a local stand-in for the classification oracle,
// scoring text with VADER.
package sentiment

import (
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"

	"github.com/spacesedan/sentiboard/internal/models"
)

var (
	analyzer    = govader.NewSentimentIntensityAnalyzer()
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders markdown and strips the resulting markup
// down to whitespace-normalized plain text.
func ConvertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(RemoveLinks(input)), blackfriday.WithNoExtensions())
	plain := tagPattern.ReplaceAllString(string(output), " ")
	return strings.Join(strings.Fields(plain), " ")
}

// Probabilities turns VADER's pos/neu/neg proportions into a distribution
// over the three classes. The compound score moves that share of the
// neutral mass to the side it points at, so clearly polar text is not
// classified neutral just because most of its words are.
func Probabilities(text string) map[models.SentimentClass]float64 {
	plain := ConvertMarkdownToText(text)
	if plain == "" {
		return neutralOnly()
	}
	scores := analyzer.PolarityScores(plain)

	pos, neg, neu := scores.Positive, scores.Negative, scores.Neutral
	total := pos + neg + neu
	if total <= 0 {
		return neutralOnly()
	}
	pos, neg, neu = pos/total, neg/total, neu/total

	shift := math.Abs(scores.Compound) * neu
	if scores.Compound > 0 {
		pos += shift
	} else {
		neg += shift
	}
	neu -= shift

	return map[models.SentimentClass]float64{
		models.Positive: pos,
		models.Negative: neg,
		models.Neutral:  neu,
	}
}

func neutralOnly() map[models.SentimentClass]float64 {
	return map[models.SentimentClass]float64{
		models.Positive: 0, models.Negative: 0, models.Neutral: 1,
	}
}

// Analyze classifies text. The caller is responsible for length checks.
func Analyze(text string) models.SentimentResult {
	probs := Probabilities(text)
	class, confidence := models.ArgMax(probs)
	return models.SentimentResult{
		Text:             text,
		PredictedClass:   class,
		Confidence:       confidence,
		AllProbabilities: probs,
	}
}
